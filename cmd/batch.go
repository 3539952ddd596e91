package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/AnyUserName/imgpress/internal/manifest"
	"github.com/AnyUserName/imgpress/internal/pipeline"
)

var (
	batchOutDir   string
	batchProfile  string
	batchWorkers  int
	batchQuality  int
	batchTemplate string
)

var batchCmd = &cobra.Command{
	Use:   "batch <input_dir>",
	Short: "Convert a directory of images and write a manifest",
	Long: `Scans the input directory for images (jpeg, png, gif, webp, bmp, tiff),
converts each one with its metadata record embedded, publishes the results
under collision-free names and writes imgpress.manifest.json to the storage
root.

A file named <image>.json next to an image supplies per-asset metadata
overrides.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	f := batchCmd.Flags()
	f.StringVarP(&batchOutDir, "out", "o", "", "storage root (default from config)")
	f.StringVarP(&batchProfile, "profile", "p", "", "encode profile")
	f.IntVarP(&batchWorkers, "workers", "w", 0, "parallel encodes (0 = config)")
	f.IntVarP(&batchQuality, "quality", "q", 0, "quality 1-100 (0 = profile default)")
	f.StringVarP(&batchTemplate, "template", "t", "", "metadata template")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	start := time.Now()
	absInput, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve input path: %w", err)
	}

	a, err := newApp(appOptions{
		profile:  batchProfile,
		template: batchTemplate,
		workers:  batchWorkers,
		quality:  batchQuality,
		storeDir: batchOutDir,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	sources, err := pipeline.ScanImages(absInput)
	if err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no images found in %s", absInput)
	}
	logger.Debug("batch", "input", absInput, "output", a.store.Root(), "assets", len(sources))

	m, runErr := a.pipeline.Run(cmd.Context(), sources)
	m.BaseURL = a.cfg.Storage.PublicURL

	manifestPath := filepath.Join(a.store.Root(), manifest.FileName)
	if err := manifest.WriteJSON(m, manifestPath); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	printBatchReport(m, time.Since(start))
	return runErr
}

func printBatchReport(m *manifest.Manifest, elapsed time.Duration) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════╗")
	fmt.Println("║             imgpress batch complete              ║")
	fmt.Println("╚══════════════════════════════════════════════════╝")
	fmt.Println()

	s := m.Stats
	fmt.Printf("  Run:         %s (%s, profile %s)\n", m.RunID, m.Environment, m.Profile)
	fmt.Printf("  Assets:      %d\n", s.TotalAssets)
	fmt.Printf("  Published:   %d\n", s.Published)
	if s.Failed > 0 {
		fmt.Printf("  Failed:      %d\n", s.Failed)
	}
	if s.Cancelled > 0 {
		fmt.Printf("  Cancelled:   %d\n", s.Cancelled)
	}
	fmt.Printf("  Input size:  %s\n", humanize.IBytes(uint64(s.TotalInputBytes)))
	fmt.Printf("  Output size: %s\n", humanize.IBytes(uint64(s.TotalOutputBytes)))
	fmt.Printf("  Saved:       %.1f%%\n", s.RatioPercent)
	if s.FallbackCount > 0 || s.PassthroughCount > 0 {
		fmt.Printf("  Degraded:    %d fallback, %d passthrough (no metadata)\n", s.FallbackCount, s.PassthroughCount)
	}
	fmt.Printf("  Time:        %s\n", elapsed.Round(time.Millisecond))
	if m.BuildInfo != nil {
		fmt.Printf("  Workers:     %d  (webp: %s)\n", m.BuildInfo.Workers, m.BuildInfo.WebPBackend)
	}
	fmt.Println()

	printHeaviest(m, 10)
	printFailures(m)

	data, _ := json.Marshal(m)
	fmt.Printf("  Manifest:    %s (%s)\n", manifest.FileName, humanize.IBytes(uint64(len(data))))
	fmt.Println()
}

// printHeaviest lists the n largest published sources with their savings.
func printHeaviest(m *manifest.Manifest, n int) {
	type assetSize struct {
		key     string
		in, out int64
		ratio   float64
	}
	var items []assetSize
	for key, a := range m.Assets {
		if a.Status != manifest.StatusOK || a.Output == nil {
			continue
		}
		items = append(items, assetSize{key, a.Source.Size, a.Output.Size, a.Ratio})
	}
	if len(items) == 0 {
		return
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].in != items[j].in {
			return items[i].in > items[j].in
		}
		return items[i].key < items[j].key
	})
	n = min(n, len(items))
	fmt.Printf("  Top %d heaviest (original → published):\n", n)
	for _, it := range items[:n] {
		fmt.Printf("    %-40s %9s → %9s  (−%.0f%%)\n",
			truncKey(it.key, 40),
			humanize.IBytes(uint64(it.in)),
			humanize.IBytes(uint64(it.out)),
			it.ratio,
		)
	}
	fmt.Println()
}

func printFailures(m *manifest.Manifest) {
	var keys []string
	for key, a := range m.Assets {
		if a.Status == manifest.StatusFailed {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return
	}
	sort.Strings(keys)
	fmt.Println("  Failures:")
	for _, k := range keys {
		msg := m.Assets[k].Error
		if i := strings.IndexByte(msg, '\n'); i >= 0 {
			msg = msg[:i]
		}
		fmt.Printf("    %-40s %s\n", truncKey(k, 40), msg)
	}
	fmt.Println()
}

func truncKey(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max+3:]
}
