package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/AnyUserName/imgpress/internal/container"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <image>",
	Short: "Show the format and embedded metadata of an image",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print as JSON")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(_ *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	info, err := container.Inspect(data)
	if err != nil {
		return err
	}
	if inspectJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Printf("  Format:   %s %dx%d (%s)\n", info.Format, info.Width, info.Height, humanize.IBytes(uint64(info.Bytes)))
	if len(info.Chunks) > 0 {
		fmt.Printf("  Chunks:   %v\n", info.Chunks)
	}
	fmt.Printf("  EXIF:     %t\n", info.HasEXIF)
	fmt.Printf("  XMP:      %t\n", info.HasXMP)

	n := info.Native
	field := func(label, v string) {
		if v != "" {
			fmt.Printf("  %-16s %s\n", label+":", v)
		}
	}
	if !n.IsZero() {
		fmt.Println()
		field("Title", n.Title)
		field("Description", n.Description)
		field("Copyright", n.Copyright)
		field("Creator", n.Creator)
		field("Software", n.Software)
		field("UserComment", n.UserComment)
		field("ColorSpace", string(n.ColorSpace))
		if n.Orientation > 0 {
			fmt.Printf("  %-16s %d\n", "Orientation:", n.Orientation)
		}
		if n.Density > 0 {
			fmt.Printf("  %-16s %d dpi\n", "Density:", n.Density)
		}
	}
	if !info.Extended.IsZero() {
		fmt.Println()
		for _, kv := range info.Extended.Pairs() {
			field(kv[0], kv[1])
		}
	}
	return nil
}
