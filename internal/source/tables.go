package source

import (
	"fmt"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/paulmach/osm"

	"github.com/wegman-software/planet-dump-go/internal/records"
)

// codec maps one record type to a Parquet table. Timestamps are stored as
// unix seconds; nullable bbox edges as nullable int32.
type codec[T any] struct {
	table  string
	fields []arrow.Field
	append func(b *array.RecordBuilder, v *T)
	decode func(rec arrow.Record, row int) (T, error)
}

func (c *codec[T]) schema() *arrow.Schema {
	return arrow.NewSchema(c.fields, nil)
}

func (c *codec[T]) file() string {
	return c.table + ".parquet"
}

var (
	int64Type  = arrow.PrimitiveTypes.Int64
	int32Type  = arrow.PrimitiveTypes.Int32
	stringType = arrow.BinaryTypes.String
	boolType   = arrow.FixedWidthTypes.Boolean
)

func field(name string, typ arrow.DataType) arrow.Field {
	return arrow.Field{Name: name, Type: typ}
}

func nullable(name string, typ arrow.DataType) arrow.Field {
	return arrow.Field{Name: name, Type: typ, Nullable: true}
}

var changesetCodec = codec[records.Changeset]{
	table: "changesets",
	fields: []arrow.Field{
		field("id", int64Type),
		field("created_at", int64Type),
		field("closed_at", int64Type),
		field("user_id", int64Type),
		nullable("min_lat", int32Type),
		nullable("min_lon", int32Type),
		nullable("max_lat", int32Type),
		nullable("max_lon", int32Type),
		field("num_changes", int32Type),
	},
	append: func(b *array.RecordBuilder, c *records.Changeset) {
		putInt64(b, 0, int64(c.ID))
		putInt64(b, 1, c.CreatedAt.Unix())
		putInt64(b, 2, c.ClosedAt.Unix())
		putInt64(b, 3, int64(c.UserID))
		putOptInt32(b, 4, c.MinLat)
		putOptInt32(b, 5, c.MinLon)
		putOptInt32(b, 6, c.MaxLat)
		putOptInt32(b, 7, c.MaxLon)
		putInt32(b, 8, c.NumChanges)
	},
	decode: func(rec arrow.Record, i int) (records.Changeset, error) {
		return records.Changeset{
			ID:         osm.ChangesetID(getInt64(rec, 0, i)),
			CreatedAt:  getTime(rec, 1, i),
			ClosedAt:   getTime(rec, 2, i),
			UserID:     osm.UserID(getInt64(rec, 3, i)),
			MinLat:     getOptInt32(rec, 4, i),
			MinLon:     getOptInt32(rec, 5, i),
			MaxLat:     getOptInt32(rec, 6, i),
			MaxLon:     getOptInt32(rec, 7, i),
			NumChanges: getInt32(rec, 8, i),
		}, nil
	},
}

var changesetTagCodec = codec[records.CurrentTag]{
	table:  "changeset_tags",
	fields: []arrow.Field{field("changeset_id", int64Type), field("k", stringType), field("v", stringType)},
	append: func(b *array.RecordBuilder, t *records.CurrentTag) {
		putInt64(b, 0, t.ElementID)
		putString(b, 1, t.Key)
		putString(b, 2, t.Value)
	},
	decode: func(rec arrow.Record, i int) (records.CurrentTag, error) {
		return records.CurrentTag{ElementID: getInt64(rec, 0, i), Key: getString(rec, 1, i), Value: getString(rec, 2, i)}, nil
	},
}

var commentCodec = codec[records.ChangesetComment]{
	table: "changeset_comments",
	fields: []arrow.Field{
		field("changeset_id", int64Type),
		field("author_id", int64Type),
		field("created_at", int64Type),
		field("body", stringType),
		field("visible", boolType),
	},
	append: func(b *array.RecordBuilder, c *records.ChangesetComment) {
		putInt64(b, 0, int64(c.ChangesetID))
		putInt64(b, 1, int64(c.AuthorID))
		putInt64(b, 2, c.CreatedAt.Unix())
		putString(b, 3, c.Body)
		putBool(b, 4, c.Visible)
	},
	decode: func(rec arrow.Record, i int) (records.ChangesetComment, error) {
		return records.ChangesetComment{
			ChangesetID: osm.ChangesetID(getInt64(rec, 0, i)),
			AuthorID:    osm.UserID(getInt64(rec, 1, i)),
			CreatedAt:   getTime(rec, 2, i),
			Body:        getString(rec, 3, i),
			Visible:     getBool(rec, 4, i),
		}, nil
	},
}

var nodeCodec = codec[records.Node]{
	table: "nodes",
	fields: []arrow.Field{
		field("node_id", int64Type),
		field("version", int64Type),
		field("timestamp", int64Type),
		field("changeset_id", int64Type),
		field("visible", boolType),
		field("latitude", int32Type),
		field("longitude", int32Type),
	},
	append: func(b *array.RecordBuilder, n *records.Node) {
		putInt64(b, 0, int64(n.ID))
		putInt64(b, 1, n.Version)
		putInt64(b, 2, n.Timestamp.Unix())
		putInt64(b, 3, int64(n.ChangesetID))
		putBool(b, 4, n.Visible)
		putInt32(b, 5, n.Latitude)
		putInt32(b, 6, n.Longitude)
	},
	decode: func(rec arrow.Record, i int) (records.Node, error) {
		return records.Node{
			ID:          osm.NodeID(getInt64(rec, 0, i)),
			Version:     getInt64(rec, 1, i),
			Timestamp:   getTime(rec, 2, i),
			ChangesetID: osm.ChangesetID(getInt64(rec, 3, i)),
			Visible:     getBool(rec, 4, i),
			Latitude:    getInt32(rec, 5, i),
			Longitude:   getInt32(rec, 6, i),
		}, nil
	},
}

var wayCodec = codec[records.Way]{
	table:  "ways",
	fields: elementFields("way_id"),
	append: func(b *array.RecordBuilder, w *records.Way) {
		putElement(b, int64(w.ID), w.Version, w.Timestamp, w.ChangesetID, w.Visible)
	},
	decode: func(rec arrow.Record, i int) (records.Way, error) {
		id, version, ts, cs, visible := getElement(rec, i)
		return records.Way{ID: osm.WayID(id), Version: version, Timestamp: ts, ChangesetID: cs, Visible: visible}, nil
	},
}

var relationCodec = codec[records.Relation]{
	table:  "relations",
	fields: elementFields("relation_id"),
	append: func(b *array.RecordBuilder, r *records.Relation) {
		putElement(b, int64(r.ID), r.Version, r.Timestamp, r.ChangesetID, r.Visible)
	},
	decode: func(rec arrow.Record, i int) (records.Relation, error) {
		id, version, ts, cs, visible := getElement(rec, i)
		return records.Relation{ID: osm.RelationID(id), Version: version, Timestamp: ts, ChangesetID: cs, Visible: visible}, nil
	},
}

var wayNodeCodec = codec[records.WayNode]{
	table: "way_nodes",
	fields: []arrow.Field{
		field("way_id", int64Type),
		field("version", int64Type),
		field("node_id", int64Type),
		field("sequence_id", int64Type),
	},
	append: func(b *array.RecordBuilder, wn *records.WayNode) {
		putInt64(b, 0, int64(wn.WayID))
		putInt64(b, 1, wn.Version)
		putInt64(b, 2, int64(wn.NodeID))
		putInt64(b, 3, wn.Sequence)
	},
	decode: func(rec arrow.Record, i int) (records.WayNode, error) {
		return records.WayNode{
			WayID:    osm.WayID(getInt64(rec, 0, i)),
			Version:  getInt64(rec, 1, i),
			NodeID:   osm.NodeID(getInt64(rec, 2, i)),
			Sequence: getInt64(rec, 3, i),
		}, nil
	},
}

var memberCodec = codec[records.RelationMember]{
	table: "relation_members",
	fields: []arrow.Field{
		field("relation_id", int64Type),
		field("version", int64Type),
		field("member_type", stringType),
		field("member_id", int64Type),
		field("member_role", stringType),
		field("sequence_id", int64Type),
	},
	append: func(b *array.RecordBuilder, m *records.RelationMember) {
		putInt64(b, 0, int64(m.RelationID))
		putInt64(b, 1, m.Version)
		putString(b, 2, string(m.Type))
		putInt64(b, 3, m.MemberID)
		putString(b, 4, m.Role)
		putInt64(b, 5, m.Sequence)
	},
	decode: func(rec arrow.Record, i int) (records.RelationMember, error) {
		typ, err := records.ParseMemberType(getString(rec, 2, i))
		if err != nil {
			return records.RelationMember{}, err
		}
		return records.RelationMember{
			RelationID: osm.RelationID(getInt64(rec, 0, i)),
			Version:    getInt64(rec, 1, i),
			Type:       typ,
			MemberID:   getInt64(rec, 3, i),
			Role:       getString(rec, 4, i),
			Sequence:   getInt64(rec, 5, i),
		}, nil
	},
}

var userCodec = codec[records.User]{
	table:  "users",
	fields: []arrow.Field{field("id", int64Type), field("display_name", stringType)},
	append: func(b *array.RecordBuilder, u *records.User) {
		putInt64(b, 0, int64(u.ID))
		putString(b, 1, u.DisplayName)
	},
	decode: func(rec arrow.Record, i int) (records.User, error) {
		return records.User{ID: osm.UserID(getInt64(rec, 0, i)), DisplayName: getString(rec, 1, i)}, nil
	},
}

// oldTagCodec is shared by node, way and relation tags
func oldTagCodec(table, idColumn string) codec[records.OldTag] {
	return codec[records.OldTag]{
		table: table,
		fields: []arrow.Field{
			field(idColumn, int64Type),
			field("version", int64Type),
			field("k", stringType),
			field("v", stringType),
		},
		append: func(b *array.RecordBuilder, t *records.OldTag) {
			putInt64(b, 0, t.ElementID)
			putInt64(b, 1, t.Version)
			putString(b, 2, t.Key)
			putString(b, 3, t.Value)
		},
		decode: func(rec arrow.Record, i int) (records.OldTag, error) {
			return records.OldTag{
				ElementID: getInt64(rec, 0, i),
				Version:   getInt64(rec, 1, i),
				Key:       getString(rec, 2, i),
				Value:     getString(rec, 3, i),
			}, nil
		},
	}
}

var (
	nodeTagCodec     = oldTagCodec("node_tags", "node_id")
	wayTagCodec      = oldTagCodec("way_tags", "way_id")
	relationTagCodec = oldTagCodec("relation_tags", "relation_id")
)

func elementFields(idColumn string) []arrow.Field {
	return []arrow.Field{
		field(idColumn, int64Type),
		field("version", int64Type),
		field("timestamp", int64Type),
		field("changeset_id", int64Type),
		field("visible", boolType),
	}
}

func putElement(b *array.RecordBuilder, id, version int64, ts time.Time, cs osm.ChangesetID, visible bool) {
	putInt64(b, 0, id)
	putInt64(b, 1, version)
	putInt64(b, 2, ts.Unix())
	putInt64(b, 3, int64(cs))
	putBool(b, 4, visible)
}

func getElement(rec arrow.Record, i int) (id, version int64, ts time.Time, cs osm.ChangesetID, visible bool) {
	return getInt64(rec, 0, i), getInt64(rec, 1, i), getTime(rec, 2, i), osm.ChangesetID(getInt64(rec, 3, i)), getBool(rec, 4, i)
}

func putInt64(b *array.RecordBuilder, col int, v int64) {
	b.Field(col).(*array.Int64Builder).Append(v)
}

func putInt32(b *array.RecordBuilder, col int, v int32) {
	b.Field(col).(*array.Int32Builder).Append(v)
}

func putOptInt32(b *array.RecordBuilder, col int, v *int32) {
	fb := b.Field(col).(*array.Int32Builder)
	if v == nil {
		fb.AppendNull()
		return
	}
	fb.Append(*v)
}

func putString(b *array.RecordBuilder, col int, v string) {
	b.Field(col).(*array.StringBuilder).Append(v)
}

func putBool(b *array.RecordBuilder, col int, v bool) {
	b.Field(col).(*array.BooleanBuilder).Append(v)
}

func getInt64(rec arrow.Record, col, row int) int64 {
	return rec.Column(col).(*array.Int64).Value(row)
}

func getInt32(rec arrow.Record, col, row int) int32 {
	return rec.Column(col).(*array.Int32).Value(row)
}

func getOptInt32(rec arrow.Record, col, row int) *int32 {
	arr := rec.Column(col).(*array.Int32)
	if arr.IsNull(row) {
		return nil
	}
	v := arr.Value(row)
	return &v
}

func getString(rec arrow.Record, col, row int) string {
	return rec.Column(col).(*array.String).Value(row)
}

func getBool(rec arrow.Record, col, row int) bool {
	return rec.Column(col).(*array.Boolean).Value(row)
}

func getTime(rec arrow.Record, col, row int) time.Time {
	return time.Unix(getInt64(rec, col, row), 0).UTC()
}

// checkSchema makes sure a file was written with the layout c expects
func checkSchema[T any](c *codec[T], got *arrow.Schema) error {
	if got.NumFields() != len(c.fields) {
		return fmt.Errorf("%s: expected %d columns, found %d", c.table, len(c.fields), got.NumFields())
	}
	for i, want := range c.fields {
		f := got.Field(i)
		if f.Name != want.Name || !arrow.TypeEqual(f.Type, want.Type) {
			return fmt.Errorf("%s: column %d is %s %s, expected %s %s", c.table, i, f.Name, f.Type, want.Name, want.Type)
		}
	}
	return nil
}
