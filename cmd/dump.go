package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/planet-dump-go/internal/logger"
	"github.com/wegman-software/planet-dump-go/internal/metrics"
	"github.com/wegman-software/planet-dump-go/internal/planet"
	"github.com/wegman-software/planet-dump-go/internal/records"
	"github.com/wegman-software/planet-dump-go/internal/source"
	"github.com/wegman-software/planet-dump-go/internal/xmlout"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Write a planet XML file",
	Long: `Load every table from the configured source and write one planet file.

This stage:
  1. Reads changesets, nodes, ways, relations, their tags and children, and
     the public users, either from PostgreSQL or from a Parquet spool
  2. Keeps only the latest visible version of each element unless --history
  3. Writes the document in a single pass into the compression command,
     whose output is redirected to --output

The document time defaults to the newest timestamp in the data.`,
	Run: runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().StringVarP(&cfg.OutputFile, "output", "o", cfg.OutputFile, "Planet file to write")
	dumpCmd.Flags().StringVar(&cfg.CompressCommand, "compress-command", cfg.CompressCommand, "Shell command that compresses stdin to stdout")
	dumpCmd.Flags().StringVar(&cfg.Generator, "generator", cfg.Generator, "Value of the generator header attribute")
	dumpCmd.Flags().StringVar(&cfg.SnapshotTime, "snapshot-time", cfg.SnapshotTime, "Document time (RFC 3339); defaults to the newest timestamp in the data")
	dumpCmd.Flags().StringVar(&cfg.UserInfo, "user-info", cfg.UserInfo, "User detail: full or anonymous")
	dumpCmd.Flags().BoolVar(&cfg.History, "history", cfg.History, "Write every version with a visible attribute")
	dumpCmd.Flags().BoolVar(&cfg.Discussions, "discussions", cfg.Discussions, "Write changeset discussions")
	dumpCmd.Flags().BoolVar(&cfg.StrictOrder, "strict-order", cfg.StrictOrder, "Fail on input rows that are not sorted")
	dumpCmd.Flags().StringVar(&cfg.Source, "source", cfg.Source, "Input source: parquet or postgres")
}

func runDump(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if err := cfg.ValidateDump(); err != nil {
		exitWithError("invalid configuration", err)
	}
	userInfo, _ := cfg.UserInfoLevel()
	snapshot, _ := cfg.Snapshot()

	log.Info("Starting planet dump",
		zap.String("source", cfg.Source),
		zap.String("output", cfg.OutputFile),
		zap.String("compress", cfg.CompressCommand),
		zap.Stringer("user_info", userInfo),
		zap.Bool("history", cfg.History),
		zap.Bool("discussions", cfg.Discussions),
		zap.Int("workers", cfg.Workers),
	)

	totalStart := time.Now()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Phase 1: Load
	src, err := source.Open(ctx, cfg, log)
	if err != nil {
		exitWithError("failed to open source", err)
	}
	defer src.Close()

	loadStart := time.Now()
	ds, err := src.Load(ctx)
	if err != nil {
		exitWithError("load failed", err)
	}
	counts := ds.Counts()
	log.Info("Load complete",
		zap.Duration("duration", time.Since(loadStart).Round(time.Second)),
		zap.Int("changesets", counts.Changesets),
		zap.Int("nodes", counts.Nodes),
		zap.Int("ways", counts.Ways),
		zap.Int("relations", counts.Relations),
		zap.Int("tags", counts.Tags),
		zap.Int("comments", counts.Comments),
		zap.Int("public_users", counts.Users),
	)

	if !cfg.History {
		ds.LatestOnly()
		counts = ds.Counts()
		log.Debug("Reduced to current versions",
			zap.Int("nodes", counts.Nodes),
			zap.Int("ways", counts.Ways),
			zap.Int("relations", counts.Relations),
		)
	}

	now := snapshot
	if now.IsZero() {
		now = ds.MaxTimestamp()
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// Phase 2: Write
	sink, err := xmlout.OpenSink(cfg.CompressCommand, cfg.OutputFile)
	if err != nil {
		exitWithError("failed to start compression command", err)
	}
	out, err := xmlout.NewWriter(sink)
	if err != nil {
		exitWithError("failed to start document", err)
	}
	w, err := planet.NewWriter(out, records.NewUserMap(ds.Users), planet.Options{
		Now:         now,
		Generator:   cfg.Generator,
		UserInfo:    userInfo,
		History:     cfg.History,
		Discussions: cfg.Discussions,
		StrictOrder: cfg.StrictOrder,
	}, log)
	if err != nil {
		exitWithError("failed to write header", err)
	}

	total := int64(counts.Changesets + counts.Nodes + counts.Ways + counts.Relations)
	metricsCtx, cancelMetrics := context.WithCancel(ctx)
	collector := metrics.NewCollector(cfg.MetricsInterval, log,
		metrics.WithProgress(total, func() (int64, int64) {
			return w.Stats().Snapshot().Elements(), sink.BytesWritten()
		}),
	)
	go collector.Start(metricsCtx)

	writeStart := time.Now()
	err = w.WriteDataset(ds)
	cancelMetrics()
	if err != nil {
		exitWithError("dump failed", err)
	}

	st := w.Stats().Snapshot()
	written := sink.BytesWritten()
	writeElapsed := time.Since(writeStart)
	log.Info("Dump complete",
		zap.Duration("total_time", time.Since(totalStart).Round(time.Second)),
		zap.Duration("write_time", writeElapsed.Round(time.Second)),
		zap.Time("timestamp", now),
		zap.Int64("changesets", st.Changesets),
		zap.Int64("nodes", st.Nodes),
		zap.Int64("ways", st.Ways),
		zap.Int64("relations", st.Relations),
		zap.Int64("tags", st.Tags),
		zap.Int64("comments", st.Comments),
		zap.Int64("dropped_comments", st.DroppedComments),
		zap.String("xml_bytes", humanize.Bytes(uint64(written))),
		zap.String("write_rate", metrics.FormatRate(float64(written)/writeElapsed.Seconds())),
	)
}
