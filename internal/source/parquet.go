package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/planet-dump-go/internal/records"
)

// Parquet reads a spool directory written by the spool command. Every
// table file must be present and already sorted.
type Parquet struct {
	dir     string
	workers int
	log     *zap.Logger
}

// NewParquet returns a source for the spool in dir
func NewParquet(dir string, workers int, log *zap.Logger) *Parquet {
	if workers < 1 {
		workers = 1
	}
	return &Parquet{dir: dir, workers: workers, log: log}
}

// Load reads all twelve tables, several at a time
func (p *Parquet) Load(ctx context.Context) (*records.Dataset, error) {
	if _, err := os.Stat(p.dir); err != nil {
		return nil, fmt.Errorf("spool directory: %w", err)
	}

	ds := &records.Dataset{}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	g.Go(func() (err error) { ds.Changesets, err = readTable(ctx, p, &changesetCodec); return })
	g.Go(func() (err error) { ds.ChangesetTags, err = readTable(ctx, p, &changesetTagCodec); return })
	g.Go(func() (err error) { ds.Comments, err = readTable(ctx, p, &commentCodec); return })
	g.Go(func() (err error) { ds.Nodes, err = readTable(ctx, p, &nodeCodec); return })
	g.Go(func() (err error) { ds.NodeTags, err = readTable(ctx, p, &nodeTagCodec); return })
	g.Go(func() (err error) { ds.Ways, err = readTable(ctx, p, &wayCodec); return })
	g.Go(func() (err error) { ds.WayNodes, err = readTable(ctx, p, &wayNodeCodec); return })
	g.Go(func() (err error) { ds.WayTags, err = readTable(ctx, p, &wayTagCodec); return })
	g.Go(func() (err error) { ds.Relations, err = readTable(ctx, p, &relationCodec); return })
	g.Go(func() (err error) { ds.Members, err = readTable(ctx, p, &memberCodec); return })
	g.Go(func() (err error) { ds.RelationTags, err = readTable(ctx, p, &relationTagCodec); return })
	g.Go(func() (err error) { ds.Users, err = readTable(ctx, p, &userCodec); return })

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Close is a no-op; files are closed as soon as they are read
func (p *Parquet) Close() error {
	return nil
}

func readTable[T any](ctx context.Context, p *Parquet, c *codec[T]) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(p.dir, c.file())
	p.log.Debug("Reading table", zap.String("table", c.table), zap.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", c.table, err)
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet reader for %s: %w", c.table, err)
	}
	defer pf.Close()

	arrowReader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow reader for %s: %w", c.table, err)
	}

	// arrow panics if the context passed to ReadTable is cancelled mid-read;
	// the group cancels as soon as another table fails
	tbl, err := arrowReader.ReadTable(context.WithoutCancel(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", c.table, err)
	}
	defer tbl.Release()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := checkSchema(c, tbl.Schema()); err != nil {
		return nil, err
	}

	out := make([]T, 0, tbl.NumRows())
	tr := array.NewTableReader(tbl, 64*1024)
	defer tr.Release()
	for tr.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := tr.Record()
		for i := 0; i < int(rec.NumRows()); i++ {
			v, err := c.decode(rec, i)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", c.table, len(out), err)
			}
			out = append(out, v)
		}
	}

	p.log.Info("Table loaded", zap.String("table", c.table), zap.Int("rows", len(out)))
	return out, nil
}
