package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AnyUserName/imgpress/internal/encoder"
	"github.com/AnyUserName/imgpress/internal/metadata"
	"github.com/AnyUserName/imgpress/internal/naming"
	"github.com/AnyUserName/imgpress/internal/pipeline"
)

var (
	convertOut       string
	convertProfile   string
	convertTemplate  string
	convertQuality   int
	convertPreserve  bool
	convertMetadata  string
	convertMaxWidth  int
	convertMaxHeight int
	convertFit       string
	convertAnchor    string
	convertUpload    bool
)

var convertCmd = &cobra.Command{
	Use:   "convert <image>",
	Short: "Convert one image, embedding its metadata record",
	Long: `Converts one image to WebP with the resolved metadata record embedded.

The record is resolved from the environment defaults, the named template and
the --metadata overrides (a JSON object, or @file to read one). With --upload
the result is named and stored instead of written to --out.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	f := convertCmd.Flags()
	f.StringVarP(&convertOut, "out", "o", "", "output file (default <name>.<ext> in the current directory)")
	f.StringVarP(&convertProfile, "profile", "p", "", "encode profile")
	f.StringVarP(&convertTemplate, "template", "t", "", "metadata template")
	f.IntVarP(&convertQuality, "quality", "q", 0, "quality 1-100 (0 = profile default)")
	f.BoolVar(&convertPreserve, "preserve-size", false, "keep original dimensions, skip resize and enhancement")
	f.StringVarP(&convertMetadata, "metadata", "m", "", "metadata overrides as JSON, or @file")
	f.IntVar(&convertMaxWidth, "max-width", 0, "bounding box width")
	f.IntVar(&convertMaxHeight, "max-height", 0, "bounding box height")
	f.StringVar(&convertFit, "fit", "", "cover, contain, fill, inside, outside")
	f.StringVar(&convertAnchor, "anchor", "", "crop anchor for cover, e.g. top-left")
	f.BoolVar(&convertUpload, "upload", false, "name and store the result")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	src := args[0]
	a, err := newApp(appOptions{template: convertTemplate})
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	in := pipeline.Input{
		Data:         data,
		Filename:     filepath.Base(src),
		Profile:      convertProfile,
		Quality:      convertQuality,
		PreserveSize: convertPreserve,
	}
	if in.Overrides, err = loadOverrides(convertMetadata); err != nil {
		return err
	}
	if convertMaxWidth > 0 || convertMaxHeight > 0 {
		fit, err := encoder.ParseFit(convertFit)
		if err != nil {
			return err
		}
		if convertAnchor != "" && !encoder.ValidAnchor(convertAnchor) {
			return fmt.Errorf("unknown anchor %q", convertAnchor)
		}
		in.Resize = &encoder.Resize{MaxWidth: convertMaxWidth, MaxHeight: convertMaxHeight, Fit: fit, Anchor: convertAnchor}
	}

	ctx := cmd.Context()
	if convertUpload {
		pub, err := a.pipeline.Process(ctx, in)
		if err != nil {
			return err
		}
		fmt.Printf("  %s -> %s\n", src, pub.URL)
		printConvertResult(&pub.Encoded)
		return nil
	}

	enc, err := a.pipeline.Encode(ctx, in)
	if err != nil {
		return err
	}
	out := convertOut
	if out == "" {
		out = naming.BaseName(src) + "." + enc.Result.Extension()
	}
	if err := os.WriteFile(out, enc.Result.Data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Printf("  %s -> %s\n", src, out)
	printConvertResult(enc)
	return nil
}

func printConvertResult(enc *pipeline.Encoded) {
	res := enc.Result
	fmt.Printf("  Size:      %s\n", enc.Stats)
	fmt.Printf("  Output:    %s %dx%d\n", res.Format, res.Width, res.Height)
	fmt.Printf("  Tier:      %s\n", res.Label())
	fmt.Printf("  Metadata:  %t\n", res.MetadataEmbedded)
	if res.Label() != string(encoder.TierPrimary) {
		fmt.Println("  Warning:   metadata embedding was skipped")
	}
}

// loadOverrides parses the --metadata flag. Invalid entries are logged and
// dropped like any other caller override.
func loadOverrides(arg string) (*metadata.Fields, error) {
	if arg == "" {
		return nil, nil
	}
	raw := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		var err error
		if raw, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read metadata: %w", err)
		}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("metadata must be a JSON object: %w", err)
	}
	f, err := metadata.ParseOverrides(m)
	if err != nil {
		logger.Warn("invalid metadata overrides dropped", "error", err)
	}
	return f, nil
}
