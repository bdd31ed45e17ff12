package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/planet-dump-go/internal/config"
	"github.com/wegman-software/planet-dump-go/internal/logger"
	"github.com/wegman-software/planet-dump-go/internal/source"
)

var spoolCmd = &cobra.Command{
	Use:   "spool",
	Short: "Copy the API tables from PostgreSQL into Parquet files",
	Long: `Read every table a dump needs from PostgreSQL, in dump order, and write
one zstd-compressed Parquet file per table into --input-dir.

Redacted versions and users whose data is not public are left out. A later
'dump --source parquet' reads the spool without touching the database.`,
	Run: runSpool,
}

func init() {
	rootCmd.AddCommand(spoolCmd)
}

func runSpool(cmd *cobra.Command, args []string) {
	log := logger.Get()

	dbCfg := *cfg
	dbCfg.Source = config.SourcePostgres
	if err := dbCfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	log.Info("Starting spool",
		zap.String("output_dir", cfg.InputDir),
		zap.String("database", cfg.DBName),
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("user", cfg.DBUser),
		zap.String("schema", cfg.DBSchema),
		zap.Strings("tables", source.Tables()),
	)

	start := time.Now()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := source.NewPostgres(ctx, &dbCfg, log)
	if err != nil {
		exitWithError("failed to connect", err)
	}
	defer pg.Close()

	rows, err := pg.Spool(ctx, cfg.InputDir, cfg.BatchSize)
	if err != nil {
		exitWithError("spool failed", err)
	}

	elapsed := time.Since(start)
	log.Info("Spool complete",
		zap.Duration("duration", elapsed.Round(time.Second)),
		zap.Int64("rows", rows),
		zap.Float64("throughput_rows_s", float64(rows)/elapsed.Seconds()),
	)
}
