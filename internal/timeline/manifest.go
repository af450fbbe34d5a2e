package timeline

import (
	"encoding/json"
	"fmt"

	"github.com/google/renameio/v2"
)

// WriteManifest writes snap as indented JSON to path. Readers never observe a
// partially written file.
func WriteManifest(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	data = append(data, '\n')
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	return nil
}
