package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/drover-dev/drover/pkg/models"
)

// schemaVersion identifies the snapshot format for forward compatibility.
const schemaVersion = 1

// snapshot is the persisted unit. It is written whole and atomically so a
// concurrent reader never observes a partial registry.
type snapshot struct {
	SchemaVersion int                    `json:"schema_version"`
	WriterPID     int                    `json:"writer_pid"`
	Processes     []models.ProcessRecord `json:"processes"`
	LastUpdated   time.Time              `json:"last_updated"`
}

// readSnapshot loads a snapshot file. A missing file is empty state, not an
// error: first run and fresh installs have no registry yet.
func readSnapshot(path string) (*snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &snapshot{SchemaVersion: schemaVersion}, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return &s, nil
}

// writeSnapshot persists a snapshot atomically: marshal to a temp file in
// the same directory, then rename over the destination.
func writeSnapshot(path string, s *snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
