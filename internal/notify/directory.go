package notify

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadDirectory reads a JSON file mapping user ids to email addresses into a
// StaticDirectory.
func LoadDirectory(path string) (StaticDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("notify: failed to read contacts file: %w", err)
	}
	var dir StaticDirectory
	if err := json.Unmarshal(data, &dir); err != nil {
		return nil, fmt.Errorf("notify: failed to parse contacts file: %w", err)
	}
	return dir, nil
}
