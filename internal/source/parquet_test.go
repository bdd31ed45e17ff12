package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wegman-software/planet-dump-go/internal/records"
)

func ptr(v int32) *int32 { return &v }

func sampleDataset() *records.Dataset {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &records.Dataset{
		Changesets: []records.Changeset{
			{ID: 1, CreatedAt: t0, ClosedAt: t0.Add(time.Hour), UserID: 7,
				MinLat: ptr(515000000), MinLon: ptr(-1000000), MaxLat: ptr(516000000), MaxLon: ptr(0), NumChanges: 3},
			{ID: 2, CreatedAt: t0, ClosedAt: t0.Add(24 * time.Hour), NumChanges: 0},
		},
		ChangesetTags: []records.CurrentTag{
			{ElementID: 1, Key: "comment", Value: "fix roads"},
			{ElementID: 1, Key: "created_by", Value: "JOSM"},
		},
		Comments: []records.ChangesetComment{
			{ChangesetID: 1, AuthorID: 7, CreatedAt: t0.Add(time.Minute), Body: "thanks <3", Visible: true},
			{ChangesetID: 1, AuthorID: 9, CreatedAt: t0.Add(2 * time.Minute), Body: "hidden", Visible: false},
		},
		Nodes: []records.Node{
			{ID: 10, Version: 1, Timestamp: t0, ChangesetID: 1, Visible: true, Latitude: 515000000, Longitude: -1000000},
			{ID: 10, Version: 2, Timestamp: t0.Add(time.Hour), ChangesetID: 1, Visible: false},
			{ID: 11, Version: 1, Timestamp: t0, ChangesetID: 1, Visible: true, Latitude: 1, Longitude: 2},
		},
		NodeTags: []records.OldTag{
			{ElementID: 10, Version: 1, Key: "amenity", Value: "cafe"},
		},
		Ways: []records.Way{
			{ID: 20, Version: 1, Timestamp: t0, ChangesetID: 1, Visible: true},
		},
		WayNodes: []records.WayNode{
			{WayID: 20, Version: 1, NodeID: 10, Sequence: 1},
			{WayID: 20, Version: 1, NodeID: 11, Sequence: 2},
		},
		WayTags: []records.OldTag{
			{ElementID: 20, Version: 1, Key: "highway", Value: "residential"},
		},
		Relations: []records.Relation{
			{ID: 30, Version: 1, Timestamp: t0, ChangesetID: 1, Visible: true},
		},
		Members: []records.RelationMember{
			{RelationID: 30, Version: 1, Type: osm.TypeWay, MemberID: 20, Role: "outer", Sequence: 1},
			{RelationID: 30, Version: 1, Type: osm.TypeNode, MemberID: 10, Role: "", Sequence: 2},
		},
		RelationTags: []records.OldTag{
			{ElementID: 30, Version: 1, Key: "type", Value: "multipolygon"},
		},
		Users: []records.User{
			{ID: 7, DisplayName: "alice"},
		},
	}
}

func writeAll[T any](t *testing.T, dir string, c *codec[T], rows []T) {
	t.Helper()
	w, err := newTableWriter(dir, c, 2)
	require.NoError(t, err)
	for i := range rows {
		require.NoError(t, w.Write(&rows[i]))
	}
	require.NoError(t, w.Close())
	assert.Equal(t, int64(len(rows)), w.Rows())
}

func writeSpool(t *testing.T, dir string, ds *records.Dataset) {
	t.Helper()
	writeAll(t, dir, &changesetCodec, ds.Changesets)
	writeAll(t, dir, &changesetTagCodec, ds.ChangesetTags)
	writeAll(t, dir, &commentCodec, ds.Comments)
	writeAll(t, dir, &nodeCodec, ds.Nodes)
	writeAll(t, dir, &nodeTagCodec, ds.NodeTags)
	writeAll(t, dir, &wayCodec, ds.Ways)
	writeAll(t, dir, &wayNodeCodec, ds.WayNodes)
	writeAll(t, dir, &wayTagCodec, ds.WayTags)
	writeAll(t, dir, &relationCodec, ds.Relations)
	writeAll(t, dir, &memberCodec, ds.Members)
	writeAll(t, dir, &relationTagCodec, ds.RelationTags)
	writeAll(t, dir, &userCodec, ds.Users)
}

func TestSpoolRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := sampleDataset()
	writeSpool(t, dir, want)

	for _, table := range Tables() {
		_, err := os.Stat(filepath.Join(dir, table+".parquet"))
		require.NoError(t, err, table)
	}

	got, err := NewParquet(dir, 4, zaptest.NewLogger(t)).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParquetNullableBBox(t *testing.T) {
	dir := t.TempDir()
	writeSpool(t, dir, sampleDataset())

	got, err := NewParquet(dir, 1, zaptest.NewLogger(t)).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Changesets, 2)

	_, _, _, _, ok := got.Changesets[0].BBox()
	assert.True(t, ok)
	_, _, _, _, ok = got.Changesets[1].BBox()
	assert.False(t, ok, "changeset without extent must stay without one")
}

func TestParquetMissingTable(t *testing.T) {
	dir := t.TempDir()
	writeSpool(t, dir, sampleDataset())
	require.NoError(t, os.Remove(filepath.Join(dir, "way_nodes.parquet")))

	_, err := NewParquet(dir, 2, zaptest.NewLogger(t)).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "way_nodes")
}

func TestParquetMissingTableAllWorkers(t *testing.T) {
	for _, table := range Tables() {
		t.Run(table, func(t *testing.T) {
			dir := t.TempDir()
			writeSpool(t, dir, sampleDataset())
			require.NoError(t, os.Remove(filepath.Join(dir, table+".parquet")))

			_, err := NewParquet(dir, len(Tables()), zaptest.NewLogger(t)).Load(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to open "+table)
			assert.NotErrorIs(t, err, context.Canceled)
		})
	}
}

func TestParquetCancelled(t *testing.T) {
	dir := t.TempDir()
	writeSpool(t, dir, sampleDataset())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewParquet(dir, 4, zaptest.NewLogger(t)).Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParquetSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	ds := sampleDataset()
	writeSpool(t, dir, ds)

	// overwrite users with a file of a different layout
	bad := changesetTagCodec
	bad.table = "users"
	writeAll(t, dir, &bad, ds.ChangesetTags)

	_, err := NewParquet(dir, 2, zaptest.NewLogger(t)).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "users: expected 2 columns, found 3")
}

func TestParquetMissingDirectory(t *testing.T) {
	_, err := NewParquet(filepath.Join(t.TempDir(), "nope"), 1, zaptest.NewLogger(t)).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spool directory")
}

func TestEmptyTable(t *testing.T) {
	dir := t.TempDir()
	ds := sampleDataset()
	ds.Comments = []records.ChangesetComment{}
	writeSpool(t, dir, ds)

	got, err := NewParquet(dir, 2, zaptest.NewLogger(t)).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got.Comments)
	assert.Len(t, got.Nodes, 3)
}
