// Package source loads the sorted input sequences for a planet dump, either
// from a PostgreSQL OSM API database or from a Parquet spool directory.
package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wegman-software/planet-dump-go/internal/config"
	"github.com/wegman-software/planet-dump-go/internal/records"
)

// Source produces a dataset ordered the way the planet writer merges it
type Source interface {
	Load(ctx context.Context) (*records.Dataset, error)
	Close() error
}

// Open returns the source selected by cfg.Source
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (Source, error) {
	switch cfg.Source {
	case config.SourceParquet:
		return NewParquet(cfg.InputDir, cfg.Workers, log), nil
	case config.SourcePostgres:
		return NewPostgres(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

// Tables lists the file stems of a spool directory
func Tables() []string {
	return []string{
		changesetCodec.table,
		changesetTagCodec.table,
		commentCodec.table,
		nodeCodec.table,
		nodeTagCodec.table,
		wayCodec.table,
		wayNodeCodec.table,
		wayTagCodec.table,
		relationCodec.table,
		memberCodec.table,
		relationTagCodec.table,
		userCodec.table,
	}
}
