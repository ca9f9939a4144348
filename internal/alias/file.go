// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package alias

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/renameio/v2"
)

// FileName is the custom alias table inside the data directory.
const FileName = "aliases.json"

// LoadFile reads a custom alias table (canonical -> aliases). A missing file is an empty table.
func LoadFile(path string) (map[string][]string, error) {
	// #nosec G304 -- path is derived from the operator-provided data directory
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read aliases: %w", err)
	}
	if len(data) == 0 {
		return map[string][]string{}, nil
	}
	var table map[string][]string
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("decode aliases: %w", err)
	}
	if table == nil {
		table = map[string][]string{}
	}
	return table, nil
}

// SaveFile writes the custom alias table atomically.
func SaveFile(path string, table map[string][]string) error {
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("encode aliases: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write aliases: %w", err)
	}
	return nil
}
