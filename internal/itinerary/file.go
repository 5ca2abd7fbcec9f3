package itinerary

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileSource reads vacation records from a JSON file. The file is re-read on
// every call so edits by the owning application are picked up without a
// restart; this package never writes it.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) ListTrackedCandidates(_ context.Context) ([]Vacation, error) {
	if s == nil || s.path == "" {
		return nil, fmt.Errorf("itinerary: no vacations file configured")
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("itinerary: read %s failed: %w", s.path, err)
	}
	var vacations []Vacation
	if err := json.Unmarshal(raw, &vacations); err != nil {
		return nil, fmt.Errorf("itinerary: parse %s failed: %w", s.path, err)
	}
	return vacations, nil
}
