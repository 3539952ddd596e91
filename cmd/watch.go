package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AnyUserName/imgpress/internal/pipeline"
	"github.com/AnyUserName/imgpress/internal/watch"
)

var (
	watchInbox    string
	watchProfile  string
	watchTemplate string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Convert and publish images dropped into an inbox directory",
	Long: `Watches the inbox directory and publishes every image written to it.
Processed files move to .done/ and files that failed move to .failed/,
together with their <image>.json sidecar.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchInbox, "inbox", "i", "", "inbox directory (default from config)")
	watchCmd.Flags().StringVarP(&watchProfile, "profile", "p", "", "encode profile")
	watchCmd.Flags().StringVarP(&watchTemplate, "template", "t", "", "metadata template")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	a, err := newApp(appOptions{profile: watchProfile, template: watchTemplate})
	if err != nil {
		return err
	}
	defer a.Close()

	inbox := a.cfg.Watch.Inbox
	if watchInbox != "" {
		inbox = watchInbox
	}
	inbox, err = filepath.Abs(inbox)
	if err != nil {
		return err
	}

	h := watch.HandlerFunc(func(ctx context.Context, path string) error {
		src, err := pipeline.SourceFor(inbox, path)
		if err != nil {
			return err
		}
		pub, err := a.pipeline.ProcessFile(ctx, src)
		if err != nil {
			return err
		}
		logger.Info("published", "asset", src.RelPath, "url", pub.URL, "saved", pub.Stats.RatioString())
		return nil
	})
	w := watch.New(watch.Config{
		Inbox:    inbox,
		Debounce: a.cfg.Watch.Debounce,
		Match:    pipeline.IsImage,
	}, h, logger)
	return w.Run(cmd.Context())
}
