package source

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/osm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/planet-dump-go/internal/config"
	"github.com/wegman-software/planet-dump-go/internal/records"
)

// Postgres reads an OSM API database. Every query orders its rows the way
// the planet writer merges them; redacted versions and non-public users are
// filtered out in SQL.
type Postgres struct {
	cfg  *config.Config
	pool *pgxpool.Pool
	log  *zap.Logger
}

// NewPostgres connects to the database named in cfg
func NewPostgres(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.Workers)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	return &Postgres{cfg: cfg, pool: pool, log: log}, nil
}

// Close closes connections
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Load reads every table into memory
func (p *Postgres) Load(ctx context.Context) (*records.Dataset, error) {
	ds := &records.Dataset{}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	g.Go(func() (err error) { ds.Changesets, err = collect(ctx, p, &changesetQuery); return })
	g.Go(func() (err error) { ds.ChangesetTags, err = collect(ctx, p, &changesetTagQuery); return })
	g.Go(func() (err error) { ds.Comments, err = collect(ctx, p, &commentQuery); return })
	g.Go(func() (err error) { ds.Nodes, err = collect(ctx, p, &nodeQuery); return })
	g.Go(func() (err error) { ds.NodeTags, err = collect(ctx, p, &nodeTagQuery); return })
	g.Go(func() (err error) { ds.Ways, err = collect(ctx, p, &wayQuery); return })
	g.Go(func() (err error) { ds.WayNodes, err = collect(ctx, p, &wayNodeQuery); return })
	g.Go(func() (err error) { ds.WayTags, err = collect(ctx, p, &wayTagQuery); return })
	g.Go(func() (err error) { ds.Relations, err = collect(ctx, p, &relationQuery); return })
	g.Go(func() (err error) { ds.Members, err = collect(ctx, p, &memberQuery); return })
	g.Go(func() (err error) { ds.RelationTags, err = collect(ctx, p, &relationTagQuery); return })
	g.Go(func() (err error) { ds.Users, err = collect(ctx, p, &userQuery); return })

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Spool copies every table into a Parquet spool directory without holding
// a table in memory. It returns the total number of rows written.
func (p *Postgres) Spool(ctx context.Context, dir string, batchSize int) (int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create spool directory: %w", err)
	}

	var total atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	spool := func(run func() (int64, error)) {
		g.Go(func() error {
			n, err := run()
			total.Add(n)
			return err
		})
	}
	spool(func() (int64, error) { return spoolTable(ctx, p, &changesetQuery, &changesetCodec, dir, batchSize) })
	spool(func() (int64, error) { return spoolTable(ctx, p, &changesetTagQuery, &changesetTagCodec, dir, batchSize) })
	spool(func() (int64, error) { return spoolTable(ctx, p, &commentQuery, &commentCodec, dir, batchSize) })
	spool(func() (int64, error) { return spoolTable(ctx, p, &nodeQuery, &nodeCodec, dir, batchSize) })
	spool(func() (int64, error) { return spoolTable(ctx, p, &nodeTagQuery, &nodeTagCodec, dir, batchSize) })
	spool(func() (int64, error) { return spoolTable(ctx, p, &wayQuery, &wayCodec, dir, batchSize) })
	spool(func() (int64, error) { return spoolTable(ctx, p, &wayNodeQuery, &wayNodeCodec, dir, batchSize) })
	spool(func() (int64, error) { return spoolTable(ctx, p, &wayTagQuery, &wayTagCodec, dir, batchSize) })
	spool(func() (int64, error) { return spoolTable(ctx, p, &relationQuery, &relationCodec, dir, batchSize) })
	spool(func() (int64, error) { return spoolTable(ctx, p, &memberQuery, &memberCodec, dir, batchSize) })
	spool(func() (int64, error) { return spoolTable(ctx, p, &relationTagQuery, &relationTagCodec, dir, batchSize) })
	spool(func() (int64, error) { return spoolTable(ctx, p, &userQuery, &userCodec, dir, batchSize) })

	err := g.Wait()
	return total.Load(), err
}

// query is an ordered SELECT over one API table. sql holds a single %s for
// the schema-qualified table name.
type query[T any] struct {
	table string
	sql   string
	scan  func(rows pgx.Rows) (T, error)
}

func (p *Postgres) run(ctx context.Context, table, sql string, each func(pgx.Rows) error) (int64, error) {
	name := pgx.Identifier{p.cfg.DBSchema, table}.Sanitize()
	start := time.Now()
	p.log.Debug("Querying table", zap.String("table", name))

	rows, err := p.pool.Query(ctx, fmt.Sprintf(sql, name))
	if err != nil {
		return 0, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var n int64
	for rows.Next() {
		if err := each(rows); err != nil {
			return n, fmt.Errorf("%s row %d: %w", table, n, err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("failed to read %s: %w", table, err)
	}

	p.log.Info("Table loaded",
		zap.String("table", table),
		zap.Int64("rows", n),
		zap.Duration("elapsed", time.Since(start)),
	)
	return n, nil
}

func collect[T any](ctx context.Context, p *Postgres, q *query[T]) ([]T, error) {
	var out []T
	_, err := p.run(ctx, q.table, q.sql, func(rows pgx.Rows) error {
		v, err := q.scan(rows)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

func spoolTable[T any](ctx context.Context, p *Postgres, q *query[T], c *codec[T], dir string, batchSize int) (int64, error) {
	w, err := newTableWriter(dir, c, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", c.file(), err)
	}
	n, err := p.run(ctx, q.table, q.sql, func(rows pgx.Rows) error {
		v, err := q.scan(rows)
		if err != nil {
			return err
		}
		return w.Write(&v)
	})
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return n, err
}

var changesetQuery = query[records.Changeset]{
	table: "changesets",
	sql: `SELECT id, created_at, closed_at, user_id, min_lat, min_lon, max_lat, max_lon, num_changes
		FROM %s ORDER BY id`,
	scan: func(rows pgx.Rows) (records.Changeset, error) {
		var c records.Changeset
		var id, uid int64
		err := rows.Scan(&id, &c.CreatedAt, &c.ClosedAt, &uid,
			&c.MinLat, &c.MinLon, &c.MaxLat, &c.MaxLon, &c.NumChanges)
		c.ID, c.UserID = osm.ChangesetID(id), osm.UserID(uid)
		c.CreatedAt, c.ClosedAt = c.CreatedAt.UTC(), c.ClosedAt.UTC()
		return c, err
	},
}

var changesetTagQuery = query[records.CurrentTag]{
	table: "changeset_tags",
	sql:   `SELECT changeset_id, k, v FROM %s ORDER BY changeset_id, k`,
	scan: func(rows pgx.Rows) (records.CurrentTag, error) {
		var t records.CurrentTag
		err := rows.Scan(&t.ElementID, &t.Key, &t.Value)
		return t, err
	},
}

var commentQuery = query[records.ChangesetComment]{
	table: "changeset_comments",
	sql: `SELECT changeset_id, author_id, created_at, body, visible
		FROM %s ORDER BY changeset_id, created_at, id`,
	scan: func(rows pgx.Rows) (records.ChangesetComment, error) {
		var c records.ChangesetComment
		var cs, author int64
		err := rows.Scan(&cs, &author, &c.CreatedAt, &c.Body, &c.Visible)
		c.ChangesetID, c.AuthorID = osm.ChangesetID(cs), osm.UserID(author)
		c.CreatedAt = c.CreatedAt.UTC()
		return c, err
	},
}

var nodeQuery = query[records.Node]{
	table: "nodes",
	sql: `SELECT node_id, version, timestamp, changeset_id, visible, latitude, longitude
		FROM %s WHERE redaction_id IS NULL ORDER BY node_id, version`,
	scan: func(rows pgx.Rows) (records.Node, error) {
		var n records.Node
		var id, cs int64
		err := rows.Scan(&id, &n.Version, &n.Timestamp, &cs, &n.Visible, &n.Latitude, &n.Longitude)
		n.ID, n.ChangesetID = osm.NodeID(id), osm.ChangesetID(cs)
		n.Timestamp = n.Timestamp.UTC()
		return n, err
	},
}

var wayQuery = query[records.Way]{
	table: "ways",
	sql: `SELECT way_id, version, timestamp, changeset_id, visible
		FROM %s WHERE redaction_id IS NULL ORDER BY way_id, version`,
	scan: func(rows pgx.Rows) (records.Way, error) {
		var w records.Way
		var id, cs int64
		err := rows.Scan(&id, &w.Version, &w.Timestamp, &cs, &w.Visible)
		w.ID, w.ChangesetID = osm.WayID(id), osm.ChangesetID(cs)
		w.Timestamp = w.Timestamp.UTC()
		return w, err
	},
}

var relationQuery = query[records.Relation]{
	table: "relations",
	sql: `SELECT relation_id, version, timestamp, changeset_id, visible
		FROM %s WHERE redaction_id IS NULL ORDER BY relation_id, version`,
	scan: func(rows pgx.Rows) (records.Relation, error) {
		var r records.Relation
		var id, cs int64
		err := rows.Scan(&id, &r.Version, &r.Timestamp, &cs, &r.Visible)
		r.ID, r.ChangesetID = osm.RelationID(id), osm.ChangesetID(cs)
		r.Timestamp = r.Timestamp.UTC()
		return r, err
	},
}

var wayNodeQuery = query[records.WayNode]{
	table: "way_nodes",
	sql:   `SELECT way_id, version, node_id, sequence_id FROM %s ORDER BY way_id, version, sequence_id`,
	scan: func(rows pgx.Rows) (records.WayNode, error) {
		var wn records.WayNode
		var way, node int64
		err := rows.Scan(&way, &wn.Version, &node, &wn.Sequence)
		wn.WayID, wn.NodeID = osm.WayID(way), osm.NodeID(node)
		return wn, err
	},
}

var memberQuery = query[records.RelationMember]{
	table: "relation_members",
	sql: `SELECT relation_id, version, member_type::text, member_id, member_role, sequence_id
		FROM %s ORDER BY relation_id, version, sequence_id`,
	scan: func(rows pgx.Rows) (records.RelationMember, error) {
		var m records.RelationMember
		var rel int64
		var typ string
		if err := rows.Scan(&rel, &m.Version, &typ, &m.MemberID, &m.Role, &m.Sequence); err != nil {
			return m, err
		}
		m.RelationID = osm.RelationID(rel)
		var err error
		m.Type, err = records.ParseMemberType(typ)
		return m, err
	},
}

var userQuery = query[records.User]{
	table: "users",
	sql:   `SELECT id, display_name FROM %s WHERE data_public ORDER BY id`,
	scan: func(rows pgx.Rows) (records.User, error) {
		var u records.User
		var id int64
		err := rows.Scan(&id, &u.DisplayName)
		u.ID = osm.UserID(id)
		return u, err
	},
}

func oldTagQuery(table, idColumn string) query[records.OldTag] {
	return query[records.OldTag]{
		table: table,
		sql: fmt.Sprintf(`SELECT %[1]s, version, k, v FROM %%s ORDER BY %[1]s, version, k`,
			pgx.Identifier{idColumn}.Sanitize()),
		scan: func(rows pgx.Rows) (records.OldTag, error) {
			var t records.OldTag
			err := rows.Scan(&t.ElementID, &t.Version, &t.Key, &t.Value)
			return t, err
		},
	}
}

var (
	nodeTagQuery     = oldTagQuery("node_tags", "node_id")
	wayTagQuery      = oldTagQuery("way_tags", "way_id")
	relationTagQuery = oldTagQuery("relation_tags", "relation_id")
)
