package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// Validate checks manifest consistency and that every published artifact
// exists under baseDir with the recorded size. It returns one message per
// problem, in stable order.
func Validate(m *Manifest, baseDir string) []string {
	var errs []string

	if m.Version != SupportedManifestVersion {
		errs = append(errs, fmt.Sprintf("unsupported manifest version: %d", m.Version))
	}
	if m.RunID == "" {
		errs = append(errs, "missing run_id")
	}

	seenPaths := map[string]string{}
	published, failed, cancelled := 0, 0, 0
	keys := make([]string, 0, len(m.Assets))
	for k := range m.Assets {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		asset := m.Assets[key]
		switch asset.Status {
		case StatusFailed:
			failed++
			if asset.Error == "" {
				errs = append(errs, fmt.Sprintf("asset %q: failed without error message", key))
			}
			continue
		case StatusCancelled:
			cancelled++
			continue
		case StatusOK:
			published++
		default:
			errs = append(errs, fmt.Sprintf("asset %q: unknown status %q", key, asset.Status))
			continue
		}

		switch asset.Tier {
		case "primary", "fallback", "passthrough":
		default:
			errs = append(errs, fmt.Sprintf("asset %q: unknown tier %q", key, asset.Tier))
		}

		out := asset.Output
		if out == nil {
			errs = append(errs, fmt.Sprintf("asset %q: missing output", key))
			continue
		}
		if out.Format == "" {
			errs = append(errs, fmt.Sprintf("asset %q: empty output format", key))
		}
		if out.Width <= 0 || out.Height <= 0 {
			errs = append(errs, fmt.Sprintf("asset %q: invalid output dimensions %dx%d",
				key, out.Width, out.Height))
		}
		if out.Hash == "" {
			errs = append(errs, fmt.Sprintf("asset %q: missing hash", key))
		}
		if out.MetadataEmbedded && asset.Tier != "primary" {
			errs = append(errs, fmt.Sprintf("asset %q: metadata embedded by %s tier", key, asset.Tier))
		}
		if out.Path == "" {
			errs = append(errs, fmt.Sprintf("asset %q: missing path", key))
			continue
		}

		if prev, ok := seenPaths[out.Path]; ok {
			errs = append(errs, fmt.Sprintf("asset %q: path %q already used by %q", key, out.Path, prev))
		}
		seenPaths[out.Path] = key

		info, err := os.Stat(filepath.Join(baseDir, filepath.FromSlash(out.Path)))
		if err != nil {
			errs = append(errs, fmt.Sprintf("asset %q: file not found: %s", key, out.Path))
		} else if out.Size > 0 && info.Size() != out.Size {
			errs = append(errs, fmt.Sprintf("asset %q: size mismatch: manifest=%d, disk=%d",
				key, out.Size, info.Size()))
		}
	}

	if m.Stats.TotalAssets != len(m.Assets) {
		errs = append(errs, fmt.Sprintf("stats.total_assets mismatch: %d != %d", m.Stats.TotalAssets, len(m.Assets)))
	}
	if m.Stats.Published != published {
		errs = append(errs, fmt.Sprintf("stats.published mismatch: %d != %d", m.Stats.Published, published))
	}
	if m.Stats.Failed != failed {
		errs = append(errs, fmt.Sprintf("stats.failed mismatch: %d != %d", m.Stats.Failed, failed))
	}
	if m.Stats.Cancelled != cancelled {
		errs = append(errs, fmt.Sprintf("stats.cancelled mismatch: %d != %d", m.Stats.Cancelled, cancelled))
	}

	return errs
}
