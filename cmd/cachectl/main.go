// Command cachectl inspects and maintains the dataset cache of a fleetlens
// deployment from the shell.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetlens/backend/internal/cache/disk"
	"github.com/fleetlens/backend/internal/cache/redis"
	"github.com/fleetlens/backend/internal/evaluation"
	"github.com/fleetlens/backend/internal/ingestion"
	"github.com/fleetlens/backend/internal/normalizer"
	"github.com/fleetlens/backend/internal/storage/sqlite"
	"github.com/fleetlens/backend/pkg/config"
)

type env struct {
	cfg       *config.Config
	db        *sqlite.Client
	store     *disk.Store
	processor *ingestion.Processor
	results   ResultCache
}

// ResultCache is the part of the chart result cache cachectl needs.
type ResultCache interface {
	InvalidateDataset(ctx context.Context, datasetKey string) (int, error)
	Close() error
}

// ResultCacheFactory connects to the chart result cache. A nil cache with a
// nil error means none is configured.
type ResultCacheFactory func(cfg *config.Config) (ResultCache, error)

// DefaultResultCacheFactory connects to redis when it is enabled.
func DefaultResultCacheFactory(cfg *config.Config) (ResultCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	client, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	return client, nil
}

var newResultCache ResultCacheFactory = DefaultResultCacheFactory

// invalidateOnEvict drops the cached chart results of every evicted dataset.
func invalidateOnEvict(results ResultCache, warn io.Writer) func(string) {
	return func(key string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n, err := results.InvalidateDataset(ctx, key)
		if err != nil {
			fmt.Fprintf(warn, "warning: cached charts of %s not invalidated: %v\n", key, err)
			return
		}
		if n > 0 {
			fmt.Fprintf(warn, "invalidated %d cached charts of %s\n", n, key)
		}
	}
}

func openEnv(configPath string, warn io.Writer) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(); err != nil {
		db.Close()
		return nil, err
	}

	results, err := newResultCache(cfg)
	if err != nil {
		fmt.Fprintf(warn, "warning: result cache unavailable, cached charts will expire by TTL: %v\n", err)
		results = nil
	}

	opts := disk.Options{
		Dir:           cfg.Storage.CacheDir,
		Compression:   cfg.Cache.Compression,
		MemoryEntries: 0,
		Normalizer:    normalizer.New(cfg.Normalizer.DateThreshold),
		Registry:      db,
	}
	if results != nil {
		opts.OnEvict = invalidateOnEvict(results, warn)
	}

	store, err := disk.NewStore(opts)
	if err != nil {
		if results != nil {
			results.Close()
		}
		db.Close()
		return nil, err
	}

	return &env{
		cfg:       cfg,
		db:        db,
		store:     store,
		processor: ingestion.NewProcessor(cfg.Storage.DataDir, store),
		results:   results,
	}, nil
}

func (e *env) Close() {
	if e.results != nil {
		e.results.Close()
	}
	e.db.Close()
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "cachectl",
		Short:        "cachectl - inspect and maintain the fleetlens dataset cache",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	withEnv := func(run func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()
			return run(cmd, e, args)
		}
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List cached datasets",
		Args:  cobra.NoArgs,
		RunE:  withEnv(runList),
	}

	warmCmd := &cobra.Command{
		Use:   "warm <dataset>",
		Short: "Build the cache entry for a file in the data folder",
		Args:  cobra.ExactArgs(1),
		RunE:  withEnv(runWarm),
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect <key>",
		Short: "Show the columns and usage of a cached dataset",
		Args:  cobra.ExactArgs(1),
		RunE:  withEnv(runInspect),
	}

	var olderThan time.Duration
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove uploaded datasets not used recently",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, e *env, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			removed, err := e.store.SweepUploads(cmd.Context(), olderThan, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d uploaded entries\n", removed)
			return nil
		}),
	}
	sweepCmd.Flags().DurationVar(&olderThan, "older-than", 72*time.Hour, "remove uploads unused for longer than this")

	evictCmd := &cobra.Command{
		Use:   "evict <key>",
		Short: "Remove one cached dataset",
		Args:  cobra.ExactArgs(1),
		RunE:  withEnv(runEvict),
	}

	var limit int
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize recent predictions by risk class",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, e *env, _ []string) error {
			records, err := e.db.GetPredictionHistory(limit)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), evaluation.SummarizeHistory(records).String())
			return nil
		}),
	}
	reportCmd.Flags().IntVar(&limit, "limit", 1000, "number of recent predictions to include")

	root.AddCommand(listCmd, warmCmd, inspectCmd, sweepCmd, evictCmd, reportCmd)
	return root
}

func runList(cmd *cobra.Command, e *env, _ []string) error {
	infos, err := e.store.List(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tKIND\tSOURCE\tSIZE\tMODIFIED")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			info.Key.String(), info.Key.Kind, info.Key.Name, info.Size, info.ModTime.Format(time.RFC3339))
	}
	return w.Flush()
}

func runWarm(cmd *cobra.Command, e *env, args []string) error {
	ds, err := e.processor.SelectDataset(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	state := "built"
	if ds.Cached {
		state = "already cached"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d rows, %d columns)\n", ds.Key, state, ds.Rows, len(ds.Columns))
	return nil
}

func runInspect(cmd *cobra.Command, e *env, args []string) error {
	entry, err := e.store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "key:  %s\npath: %s\nrows: %d\n", entry.Key, entry.Path, entry.Table.NumRows())
	if reg, err := e.db.GetCacheEntry(entry.Key.String()); err == nil {
		fmt.Fprintf(out, "hits: %d\nlast accessed: %s\n", reg.Hits, reg.LastAccessed.Format(time.RFC3339))
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nCOLUMN\tTYPE")
	for _, col := range entry.Table.Columns() {
		fmt.Fprintf(w, "%s\t%s\n", col.Name, col.Type)
	}
	return w.Flush()
}

func runEvict(cmd *cobra.Command, e *env, args []string) error {
	removed, err := e.store.Remove(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%s is not cached", args[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "evicted %s\n", args[0])
	return nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
