package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/service"
)

func newSyncCommand(opts *options) *cobra.Command {
	var (
		storeID   int64
		entityIDs []int64
	)

	cmd := &cobra.Command{
		Use:   "sync <provider>",
		Short: "Run an index provider",
		Long: `Run an index provider and wait for it to finish.

Without --store every store is rescanned. With --store only that store is
rescanned, and adding --ids limits the run to the given entity ids.

Examples:
  searchctl sync virtual_category_position
  searchctl sync virtual_category_position --store 1 --ids 6,8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := service.SyncInput{Provider: args[0], EntityIDs: entityIDs}
			if cmd.Flags().Changed("store") {
				in.StoreID = &storeID
			} else if len(entityIDs) > 0 {
				return fmt.Errorf("--ids requires --store")
			}

			comps, err := opts.components(cmd)
			if err != nil {
				return err
			}

			progress := newScanProgress(cmd.ErrOrStderr())
			in.Observer = progress
			run, err := comps.Sync.Run(cmd.Context(), in)
			progress.finish()
			if run != nil {
				printRun(cmd.OutOrStdout(), run)
			}
			return err
		},
	}

	cmd.Flags().Int64Var(&storeID, "store", 0, "store to resync")
	cmd.Flags().Int64SliceVar(&entityIDs, "ids", nil, "entity ids to resync within --store")
	return cmd
}

func printRun(w io.Writer, run *domain.SyncRun) {
	fmt.Fprintf(w, "Run %s (%s):\n", run.ID, run.Provider)
	fmt.Fprintf(w, "  Scope:    %s\n", run.Scope)
	if run.StoreID != nil {
		fmt.Fprintf(w, "  Store:    %d\n", *run.StoreID)
	}
	fmt.Fprintf(w, "  Entities: %d\n", run.EntityCount)
	fmt.Fprintf(w, "  Status:   %s\n", run.Status)
	if run.FinishedAt != nil {
		fmt.Fprintf(w, "  Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	if run.Error != "" {
		fmt.Fprintf(w, "  Error:    %s\n", run.Error)
	}
}

// scanProgress draws one progress bar per scanned store.
type scanProgress struct {
	mu  sync.Mutex
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newScanProgress(w io.Writer) *scanProgress {
	return &scanProgress{w: w}
}

func (p *scanProgress) ScanStarted(storeID int64, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.finishLocked()
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription(fmt.Sprintf("store %d", storeID)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(p.w)
		}),
	)
}

func (p *scanProgress) BatchSynced(_ int64, documents int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Add(documents)
	}
}

func (p *scanProgress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishLocked()
}

func (p *scanProgress) finishLocked() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
	p.bar = nil
}
