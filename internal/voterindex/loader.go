package voterindex

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Loader supplies the one-shot bulk registry load that populates the index.
type Loader interface {
	LoadAll(ctx context.Context) ([]VoterRecord, error)
}

// voterJSON mirrors the registry export format: voter identity fields merged
// with the polling unit assignment.
type voterJSON struct {
	VIN         string `json:"vin"`
	FullName    string `json:"full_name"`
	DateOfBirth string `json:"date_of_birth"`
	PollingUnit string `json:"polling_unit"`
	Ward        string `json:"ward"`
	LGA         string `json:"lga"`
}

// FileLoader reads the registry from a JSON file on disk.
type FileLoader struct {
	path string
}

// NewFileLoader constructs a loader for the given registry file.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// LoadAll reads and decodes the whole registry file. Order in the file is
// registration order and is preserved.
func (l *FileLoader) LoadAll(ctx context.Context) ([]VoterRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read voter registry %s: %w", l.path, err)
	}

	var entries []voterJSON
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode voter registry %s: %w", l.path, err)
	}

	records := make([]VoterRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, VoterRecord{
			VIN:         e.VIN,
			FullName:    e.FullName,
			DateOfBirth: e.DateOfBirth,
			PollingUnit: e.PollingUnit,
			Ward:        e.Ward,
			LGA:         e.LGA,
		})
	}
	return records, nil
}
