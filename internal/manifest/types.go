// Package manifest records what a run published: a per-asset record store
// and the batch manifest written next to the output.
package manifest

// Manifest is the top-level output of a batch run.
type Manifest struct {
	Version     int              `json:"version"`
	RunID       string           `json:"run_id"`
	GeneratedAt string           `json:"generated_at"`
	Environment string           `json:"environment"`
	Profile     string           `json:"profile"`
	BaseURL     string           `json:"base_url,omitempty"`
	BuildInfo   *BuildInfo       `json:"build_info,omitempty"`
	Assets      map[string]Asset `json:"assets"`
	Stats       Stats            `json:"stats"`
}

// BuildInfo captures run-time parameters for diagnostics.
type BuildInfo struct {
	Workers     int      `json:"workers"`
	WebPBackend string   `json:"webp_backend"`
	Codecs      []string `json:"codecs"`
}

// Asset statuses.
const (
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Asset describes one source image and the artifact published for it.
type Asset struct {
	Status string            `json:"status"`
	Error  string            `json:"error,omitempty"`
	Source SourceInfo        `json:"source"`
	Output *OutputInfo       `json:"output,omitempty"`
	Tier   string            `json:"tier,omitempty"` // "primary", "fallback", "passthrough"
	Ratio  float64           `json:"ratio_percent"`
	Meta   map[string]string `json:"metadata,omitempty"`
}

// SourceInfo holds facts about the source image.
type SourceInfo struct {
	Path     string `json:"path"`
	Format   string `json:"format"`
	Size     int64  `json:"size"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	HasAlpha bool   `json:"has_alpha,omitempty"`
}

// OutputInfo is the published artifact.
type OutputInfo struct {
	Name             string `json:"name"`
	Path             string `json:"path"` // relative to the storage root
	URL              string `json:"url"`
	Format           string `json:"format"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	Size             int64  `json:"size"`
	Hash             string `json:"hash"`   // first 16 hex chars of xxhash64
	Digest           string `json:"digest"` // algo:hex integrity digest
	MetadataEmbedded bool   `json:"metadata_embedded"`
}

// Stats aggregates run metrics.
type Stats struct {
	TotalAssets      int     `json:"total_assets"`
	Published        int     `json:"published"`
	Failed           int     `json:"failed,omitempty"`
	Cancelled        int     `json:"cancelled,omitempty"`
	TotalInputBytes  int64   `json:"total_input_bytes"`
	TotalOutputBytes int64   `json:"total_output_bytes"`
	RatioPercent     float64 `json:"ratio_percent"`
	FallbackCount    int     `json:"fallback_count"`
	PassthroughCount int     `json:"passthrough_count"`
	MetadataEmbedded int     `json:"metadata_embedded"`
}

// SupportedManifestVersion is the current schema version.
const SupportedManifestVersion = 1

// FileName is the manifest's name inside an output directory.
const FileName = "imgpress.manifest.json"
