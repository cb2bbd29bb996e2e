package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"credit-scorer/internal/common"
	"credit-scorer/internal/features"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

var (
	keySchema     = []byte("schema")
	keyIDColumn   = []byte("id_column")
	keyHasOutcome = []byte("has_outcome")
	keyImportedAt = []byte("imported_at")
)

// clientRecord is the stored form of one row. Missing cells are null.
type clientRecord struct {
	ID      int64      `json:"id"`
	Values  []*float64 `json:"values"`
	Outcome *float64   `json:"outcome,omitempty"`
}

// SnapshotInfo describes a stored table.
type SnapshotInfo struct {
	IDColumn   string    `json:"id_column"`
	Schema     []string  `json:"schema"`
	HasOutcome bool      `json:"has_outcome"`
	Clients    int       `json:"clients"`
	ImportedAt time.Time `json:"imported_at"`
}

// SaveTable replaces the stored table with t in a single transaction.
func (s *Store) SaveTable(t *features.Table) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(clientsBucket)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return fmt.Errorf("reset clients bucket: %w", err)
		}
		b, err := tx.CreateBucket([]byte(clientsBucket))
		if err != nil {
			return fmt.Errorf("create clients bucket: %w", err)
		}

		for i, row := range t.LabeledRows() {
			rec := clientRecord{ID: row.ID, Values: make([]*float64, len(row.Values)), Outcome: row.Outcome}
			for j, v := range row.Values {
				if !math.IsNaN(v) && !math.IsInf(v, 0) {
					rec.Values[j] = &v
				}
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal client %d: %w", row.ID, err)
			}
			if err := b.Put(positionKey(i), data); err != nil {
				return fmt.Errorf("store client %d: %w", row.ID, err)
			}
		}

		meta, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		if err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		schema, err := json.Marshal(t.Schema())
		if err != nil {
			return fmt.Errorf("marshal schema: %w", err)
		}
		hasOutcome := []byte("false")
		if t.HasOutcome() {
			hasOutcome = []byte("true")
		}
		for key, value := range map[string][]byte{
			string(keySchema):     schema,
			string(keyIDColumn):   []byte(t.IDColumn()),
			string(keyHasOutcome): hasOutcome,
			string(keyImportedAt): []byte(time.Now().UTC().Format(time.RFC3339)),
		} {
			if err := meta.Put([]byte(key), value); err != nil {
				return fmt.Errorf("store %s: %w", key, err)
			}
		}

		log.Info().Str("db", s.db.Path()).Int("clients", t.Len()).Int("features", len(t.Schema())).Msg("Feature table saved")
		return nil
	})
}

// Info reads the snapshot metadata without loading rows.
func (s *Store) Info() (SnapshotInfo, error) {
	var info SnapshotInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		info, err = readInfo(tx)
		return err
	})
	return info, err
}

// LoadTable reads the stored table back, preserving the original row order.
func (s *Store) LoadTable() (*features.Table, error) {
	var (
		info SnapshotInfo
		rows []features.Row
	)

	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		if info, err = readInfo(tx); err != nil {
			return err
		}

		b := tx.Bucket([]byte(clientsBucket))
		rows = make([]features.Row, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var rec clientRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("%w: client record %x: %w", common.ErrSchema, k, err)
			}
			row := features.Row{ID: rec.ID, Values: make([]float64, len(rec.Values)), Outcome: rec.Outcome}
			for i, v := range rec.Values {
				row.Values[i] = math.NaN()
				if v != nil {
					row.Values[i] = *v
				}
			}
			rows = append(rows, row)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	t, err := features.NewTable(info.IDColumn, info.Schema, rows, info.HasOutcome)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", s.db.Path(), err)
	}

	log.Info().Str("db", s.db.Path()).Int("clients", t.Len()).Bool("has_outcome", t.HasOutcome()).Msg("Feature table loaded from snapshot")
	return t, nil
}

func readInfo(tx *bbolt.Tx) (SnapshotInfo, error) {
	meta := tx.Bucket([]byte(metaBucket))
	clients := tx.Bucket([]byte(clientsBucket))
	if meta == nil || clients == nil || meta.Get(keySchema) == nil {
		return SnapshotInfo{}, fmt.Errorf("%w: database holds no feature table", common.ErrConfiguration)
	}

	info := SnapshotInfo{
		IDColumn:   string(meta.Get(keyIDColumn)),
		HasOutcome: string(meta.Get(keyHasOutcome)) == "true",
		Clients:    clients.Stats().KeyN,
	}
	if err := json.Unmarshal(meta.Get(keySchema), &info.Schema); err != nil {
		return SnapshotInfo{}, fmt.Errorf("%w: stored schema: %w", common.ErrSchema, err)
	}
	if ts := meta.Get(keyImportedAt); ts != nil {
		if at, err := time.Parse(time.RFC3339, string(ts)); err == nil {
			info.ImportedAt = at
		}
	}
	return info, nil
}

// positionKey orders rows by their position in the source table.
func positionKey(i int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(i))
	return key
}
