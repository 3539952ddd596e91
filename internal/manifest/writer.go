package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AnyUserName/imgpress/internal/accounting"
)

// New creates an empty manifest with defaults.
func New(runID, environment, profileName string) *Manifest {
	return &Manifest{
		Version:     SupportedManifestVersion,
		RunID:       runID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Environment: environment,
		Profile:     profileName,
		Assets:      make(map[string]Asset),
	}
}

// ComputeStats recalculates aggregate statistics from assets.
func (m *Manifest) ComputeStats() {
	var s Stats
	var totals accounting.Totals
	s.TotalAssets = len(m.Assets)
	for _, a := range m.Assets {
		switch a.Status {
		case StatusFailed:
			s.Failed++
			continue
		case StatusCancelled:
			s.Cancelled++
			continue
		}
		s.Published++
		switch a.Tier {
		case "fallback":
			s.FallbackCount++
		case "passthrough":
			s.PassthroughCount++
		}
		s.TotalInputBytes += a.Source.Size
		if a.Output != nil {
			s.TotalOutputBytes += a.Output.Size
			if a.Output.MetadataEmbedded {
				s.MetadataEmbedded++
			}
			totals.Add(accounting.Stats{OriginalBytes: a.Source.Size, EncodedBytes: a.Output.Size})
		}
	}
	s.RatioPercent = totals.Stats().RatioPercent
	m.Stats = s
}

// WriteJSON serializes the manifest to a JSON file with stable ordering.
func WriteJSON(m *Manifest, path string) error {
	m.ComputeStats()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

// ReadJSON loads a manifest. A directory argument reads FileName inside it.
func ReadJSON(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		path = filepath.Join(path, FileName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
