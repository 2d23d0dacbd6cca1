package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/RuSwift/microledger/store"
)

type recordModel struct {
	UID        string    `bson:"_id"`
	StorageID  string    `bson:"storage_id"`
	LedgerID   string    `bson:"ledger_id"`
	Tags       []string  `bson:"tags"`
	Signature  string    `bson:"signature"`
	Payload    bson.M    `bson:"payload"`
	StorageIDs []string  `bson:"storage_ids"`
	Seq        int64     `bson:"seq"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

func toModel(rec *store.Record) *recordModel {
	return &recordModel{
		UID:        rec.UID,
		StorageID:  rec.StorageID,
		LedgerID:   rec.LedgerID,
		Tags:       rec.Tags,
		Signature:  rec.Signature,
		Payload:    bson.M(rec.Payload),
		StorageIDs: rec.StorageIDs,
		Seq:        rec.Seq,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
}

func fromModel(m *recordModel) *store.Record {
	return &store.Record{
		UID:        m.UID,
		StorageID:  m.StorageID,
		LedgerID:   m.LedgerID,
		Tags:       m.Tags,
		Signature:  m.Signature,
		Payload:    normalizeMap(m.Payload),
		StorageIDs: m.StorageIDs,
		Seq:        m.Seq,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// normalizeMap rewrites BSON container types (bson.D, bson.A) into plain
// maps and slices so payloads look the same regardless of driver.
func normalizeMap(m bson.M) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		return normalizeMap(t)
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalizeValue(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}
