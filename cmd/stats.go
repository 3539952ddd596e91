package cmd

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/AnyUserName/imgpress/internal/manifest"
)

var statsCmd = &cobra.Command{
	Use:   "stats <out_dir_or_manifest>",
	Short: "Display statistics for a published batch",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(_ *cobra.Command, args []string) error {
	m, err := manifest.ReadJSON(args[0])
	if err != nil {
		return err
	}
	printStats(m)
	return nil
}

func printStats(m *manifest.Manifest) {
	fmt.Println()
	fmt.Printf("  Manifest version: %d\n", m.Version)
	fmt.Printf("  Run:              %s\n", m.RunID)
	fmt.Printf("  Generated:        %s\n", m.GeneratedAt)
	fmt.Printf("  Environment:      %s\n", m.Environment)
	fmt.Printf("  Profile:          %s\n", m.Profile)
	if m.BuildInfo != nil {
		fmt.Printf("  Workers:          %d\n", m.BuildInfo.Workers)
		fmt.Printf("  WebP backend:     %s\n", m.BuildInfo.WebPBackend)
	}
	fmt.Println()

	s := m.Stats
	fmt.Printf("  Total assets:     %d (%d published)\n", s.TotalAssets, s.Published)
	fmt.Printf("  Input size:       %s\n", humanize.IBytes(uint64(s.TotalInputBytes)))
	fmt.Printf("  Output size:      %s\n", humanize.IBytes(uint64(s.TotalOutputBytes)))
	fmt.Printf("  Saved:            %.1f%%\n", s.RatioPercent)
	fmt.Printf("  With metadata:    %d / %d\n", s.MetadataEmbedded, s.Published)
	fmt.Println()

	type bucket struct {
		count int
		bytes int64
	}
	formats := map[string]bucket{}
	tiers := map[string]int{}
	for _, a := range m.Assets {
		if a.Output == nil {
			continue
		}
		b := formats[a.Output.Format]
		b.count++
		b.bytes += a.Output.Size
		formats[a.Output.Format] = b
		tiers[a.Tier]++
	}

	fmt.Println("  Format breakdown:")
	for _, f := range sortedKeys(formats) {
		b := formats[f]
		fmt.Printf("    %-6s  %4d files  %s\n", f, b.count, humanize.IBytes(uint64(b.bytes)))
	}
	fmt.Println()

	fmt.Println("  Tier breakdown:")
	for _, t := range []string{"primary", "fallback", "passthrough"} {
		if n, ok := tiers[t]; ok {
			fmt.Printf("    %-12s %4d assets\n", t, n)
		}
	}

	var warnings []string
	for _, key := range sortedKeys(m.Assets) {
		a := m.Assets[key]
		switch {
		case a.Status == manifest.StatusFailed:
			warnings = append(warnings, fmt.Sprintf("asset %q failed: %s", key, a.Error))
		case a.Status == manifest.StatusCancelled:
			warnings = append(warnings, fmt.Sprintf("asset %q was cancelled", key))
		case a.Output != nil && !a.Output.MetadataEmbedded:
			warnings = append(warnings, fmt.Sprintf("asset %q published without metadata (%s)", key, a.Tier))
		}
	}
	if len(warnings) > 0 {
		fmt.Println()
		fmt.Printf("  Warnings (%d):\n", len(warnings))
		for _, w := range warnings {
			fmt.Printf("    ⚠ %s\n", w)
		}
	}
	fmt.Println()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
