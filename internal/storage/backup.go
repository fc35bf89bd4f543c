package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// backupPayload is the decompressed backup content: every key of both areas.
type backupPayload struct {
	Local map[string]json.RawMessage `json:"local"`
	Sync  map[string]json.RawMessage `json:"sync"`
}

// ExportBackup serializes the full store contents as an lz4-compressed blob.
// The blob is a standard lz4 frame wrapping a JSON object with both areas.
func (s *Store) ExportBackup() ([]byte, error) {
	local, err := s.GetAll(AreaLocal)
	if err != nil {
		return nil, fmt.Errorf("read local area: %w", err)
	}
	syncArea, err := s.GetAll(AreaSync)
	if err != nil {
		return nil, fmt.Errorf("read sync area: %w", err)
	}

	raw, err := json.Marshal(backupPayload{Local: local, Sync: syncArea})
	if err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}

	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compress backup: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish backup: %w", err)
	}
	return buf.Bytes(), nil
}

// ImportBackup restores a backup blob produced by ExportBackup, replacing
// the current contents of both areas in one transaction.
func (s *Store) ImportBackup(data []byte) error {
	zr := lz4.NewReader(bytes.NewReader(data))
	raw, err := io.ReadAll(zr)
	if err != nil {
		return fmt.Errorf("backup: decompress failed: %w", err)
	}

	var payload backupPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("backup: decode payload: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM kv"); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}

	for area, keys := range map[string]map[string]json.RawMessage{
		AreaLocal: payload.Local,
		AreaSync:  payload.Sync,
	} {
		for key, raw := range keys {
			_, err := tx.Exec("INSERT INTO kv (area, key, value) VALUES (?, ?, ?)",
				area, key, string(raw))
			if err != nil {
				return fmt.Errorf("restore %s/%s: %w", area, key, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit restore: %w", err)
	}
	return nil
}
