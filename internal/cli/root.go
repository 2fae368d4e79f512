// Package cli implements searchctl, the operator command line of the
// searchandising service.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/utafrali/searchandising/internal/app"
	"github.com/utafrali/searchandising/internal/config"
	"github.com/utafrali/searchandising/pkg/logger"
)

// EnvPrefix prefixes every environment variable read by searchctl.
const EnvPrefix = "SEARCHCTL_"

type options struct {
	cacheBackend string
	logLevel     string

	comps *app.Components
}

// Execute runs searchctl with args and releases every backend it opened.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts := &options{}
	root := newRootCommand(opts)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	return errors.Join(err, opts.close())
}

func newRootCommand(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "searchctl",
		Short: "Operate searchandising rules and index providers",
		Long: `searchctl runs index providers and inspects compiled merchandising rules
against the configured search engine and override storage.

Configuration is read from SEARCHCTL_ prefixed environment variables, for example
SEARCHCTL_SEARCH_ENGINE=memory or SEARCHCTL_CATALOG_PATH=catalog/**/*.yaml.

Example usage:
  searchctl sync virtual_category_position          # Resync every store
  searchctl sync search_terms_position --store 1    # Resync one store
  searchctl compile category 6 --store 1            # Show a virtual category query
  searchctl mapping                                 # Show provider field mappings`,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.cacheBackend, "cache", config.CacheBolt, "query cache tier: bolt, redis or none")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (defaults to SEARCHCTL_LOG_LEVEL)")

	root.AddCommand(
		newSyncCommand(opts),
		newCompileCommand(opts),
		newMappingCommand(opts),
	)
	return root
}

// components builds the services on first use. Commands that only print
// help never connect to a backend.
func (o *options) components(cmd *cobra.Command) (*app.Components, error) {
	if o.comps != nil {
		return o.comps, nil
	}
	if !slices.Contains([]string{config.CacheBolt, config.CacheRedis, config.CacheNone}, o.cacheBackend) {
		return nil, fmt.Errorf("invalid --cache %q", o.cacheBackend)
	}

	cfg, err := config.LoadWithPrefix(EnvPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.QueryCacheBackend = o.cacheBackend
	// the CLI only drives providers directly
	cfg.KafkaEnabled = false
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	log := logger.NewWithWriter("searchctl", cfg.LogLevel, cmd.ErrOrStderr())
	o.comps, err = app.Build(cmd.Context(), cfg, log)
	return o.comps, err
}

func (o *options) close() error {
	if o.comps == nil {
		return nil
	}
	err := o.comps.Close()
	o.comps = nil
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
