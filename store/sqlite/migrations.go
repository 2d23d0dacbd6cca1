package sqlite

// Schema for the single record table. Replicated logs and documents
// share one shape; seq is the insertion-order contract. Payload, tags
// and storage_ids are stored as JSON text and filtered with the JSON1
// functions.
const schema = `
CREATE TABLE IF NOT EXISTS ledger_records (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    uid         TEXT NOT NULL UNIQUE,
    storage_id  TEXT NOT NULL,
    ledger_id   TEXT NOT NULL,
    tags        TEXT NOT NULL DEFAULT '[]',
    signature   TEXT NOT NULL DEFAULT '',
    payload     TEXT NOT NULL DEFAULT '{}',
    storage_ids TEXT NOT NULL DEFAULT '[]',
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_records_owner
    ON ledger_records (storage_id, ledger_id);
CREATE INDEX IF NOT EXISTS idx_ledger_records_ledger
    ON ledger_records (ledger_id);
`
