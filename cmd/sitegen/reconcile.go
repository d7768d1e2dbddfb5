package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/sitegen/localsite"
	"github.com/hazyhaar/sitegen/sitefile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <dir>",
	Short: "Run the file reconciliation pipeline over a local site",
	Long: `Run the file reconciliation pipeline over the files of a local directory.

Files are selected with doublestar patterns relative to <dir>, such as
"**/*.html" or "pages/**/*.{html,css}". The report is printed as JSON.
With --write the reconciled files are written back, and with --watch the
pipeline runs again whenever a selected file changes.`,
	Args: cobra.ExactArgs(1),
	RunE: runReconcile,
}

var (
	reconcileInclude  []string
	reconcileWrite    bool
	reconcileWatch    bool
	reconcileDebounce time.Duration
)

func init() {
	reconcileCmd.Flags().StringSliceVarP(&reconcileInclude, "include", "i", nil, "doublestar pattern selecting files (repeatable, default common web files)")
	reconcileCmd.Flags().BoolVarP(&reconcileWrite, "write", "w", false, "write reconciled files back to the directory")
	reconcileCmd.Flags().BoolVar(&reconcileWatch, "watch", false, "run again when a selected file changes")
	reconcileCmd.Flags().DurationVar(&reconcileDebounce, "debounce", localsite.DefaultDebounce, "quiet period before a watched change triggers a run")
	rootCmd.AddCommand(reconcileCmd)
}

// reconcileOutput is printed after each run.
type reconcileOutput struct {
	Dir     string          `json:"dir"`
	Files   []string        `json:"files"`
	Report  sitefile.Report `json:"report"`
	Written []string        `json:"written,omitempty"`
}

func runReconcile(cmd *cobra.Command, args []string) error {
	site, err := localsite.New(args[0], reconcileInclude...)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if err := reconcileDir(site, reconcileWrite, out); err != nil {
		return err
	}
	if !reconcileWatch {
		return nil
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info("watching", "dir", site.Root, "patterns", site.Patterns)
	return site.Watch(ctx, reconcileDebounce, logger, func() error {
		return reconcileDir(site, reconcileWrite, out)
	})
}

// reconcileDir loads the site, runs the pipeline and prints the outcome.
// Written files are identical on the next run, so a watch loop that
// writes back settles after one extra pass.
func reconcileDir(site *localsite.Site, write bool, w io.Writer) error {
	records, err := site.Load()
	if err != nil {
		return err
	}
	files, report := sitefile.ReconcileReport(records)
	res := reconcileOutput{Dir: site.Root, Report: report, Files: make([]string, 0, len(files))}
	for _, f := range files {
		res.Files = append(res.Files, f.Path)
	}
	if write {
		if res.Written, err = site.Write(files); err != nil {
			return err
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
