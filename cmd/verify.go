package cmd

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/planet-dump-go/internal/logger"
	"github.com/wegman-software/planet-dump-go/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <planet-file>",
	Short: "Check that a planet file parses and is ordered",
	Long: `Read a planet file back (plain, .gz or .bz2) and check the header,
section order and element order, then report element counts.`,
	Args: cobra.ExactArgs(1),
	Run:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) {
	log := logger.Get()
	path := args[0]
	log.Info("Verifying planet file", zap.String("path", path))

	start := time.Now()
	report, err := verify.File(context.Background(), path)
	if err != nil {
		if report != nil {
			log.Info("Read before failure", zap.Int64("elements", report.Elements()))
		}
		exitWithError("verify failed", err)
	}

	log.Info("Verify complete",
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)),
		zap.String("generator", report.Generator),
		zap.Time("timestamp", report.Timestamp),
		zap.Int64("changesets", report.Changesets),
		zap.Int64("nodes", report.Nodes),
		zap.Int64("ways", report.Ways),
		zap.Int64("relations", report.Relations),
		zap.Int64("deleted_versions", report.DeletedVersions),
		zap.Int64("tags", report.Tags),
		zap.Int64("way_nodes", report.WayNodes),
		zap.Int64("members", report.Members),
		zap.Int64("comments", report.Comments),
	)
}
