// Package planet assembles a full OSM planet document from sorted record
// sequences.
//
// A Writer is built for one document and driven in schema order: header on
// construction, then Changesets, Nodes, Ways and Relations, then Finish.
// Child rows (tags, way nodes, members, comments) are joined to their parent
// with forward-only cursors, so memory use does not grow with the fan-out
// of any element.
package planet

import (
	"fmt"
	"time"

	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/wegman-software/planet-dump-go/internal/mergejoin"
	"github.com/wegman-software/planet-dump-go/internal/records"
)

// Fixed header values
const (
	License     = "http://opendatacommons.org/licenses/odbl/1-0/"
	Copyright   = "OpenStreetMap and contributors"
	Version     = "0.6"
	Attribution = "http://www.openstreetmap.org/copyright"
	Origin      = "http://www.openstreetmap.org/api/0.6"
	WorldBox    = "-90,-180,90,180"
)

// Options controls what a Writer emits
type Options struct {
	// Now is the document time: the header timestamp and the cut-off that
	// decides whether a changeset is open.
	Now       time.Time
	Generator string
	UserInfo  records.UserInfoLevel
	// History adds the visible attribute. The caller decides which
	// versions are in the input.
	History     bool
	Discussions bool
	// StrictOrder makes the child cursors fail on keys that go backwards
	StrictOrder bool
}

// Writer produces one planet document
type Writer struct {
	out   Emitter
	e     stickyEmitter
	opts  Options
	users records.UserMap
	log   *zap.Logger

	// changeset id -> author, filled only at full user detail and only for
	// authors present in users
	changesetUsers map[osm.ChangesetID]osm.UserID

	stats Stats
}

// NewWriter writes the osm and bound header elements. On error the emitter
// is aborted and no Writer is returned.
func NewWriter(out Emitter, users records.UserMap, opts Options, log *zap.Logger) (*Writer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if users == nil {
		users = records.UserMap{}
	}
	w := &Writer{
		out:            out,
		e:              stickyEmitter{out: out},
		opts:           opts,
		users:          users,
		log:            log,
		changesetUsers: make(map[osm.ChangesetID]osm.UserID),
	}

	e := &w.e
	e.begin("osm")
	e.str("license", License)
	e.str("copyright", Copyright)
	e.str("version", Version)
	e.str("generator", opts.Generator)
	e.str("attribution", Attribution)
	e.time("timestamp", opts.Now)

	e.begin("bound")
	e.str("box", WorldBox)
	e.str("origin", Origin)
	e.end()

	if e.err != nil {
		_ = out.Abort()
		return nil, fmt.Errorf("write header: %w", e.err)
	}
	return w, nil
}

// Stats returns the writer's live counters
func (w *Writer) Stats() *Stats {
	return &w.stats
}

// Changesets writes every changeset with its tags and, when enabled, its
// discussion. tags and comments are sorted by changeset id.
func (w *Writer) Changesets(changesets []records.Changeset, tags []records.CurrentTag, comments []records.ChangesetComment) error {
	tagCur := newCursor(w.opts.StrictOrder, tags, func(t *records.CurrentTag) mergejoin.Key {
		return mergejoin.Key{ID: t.ElementID}
	})
	commentCur := newCursor(w.opts.StrictOrder, comments, func(c *records.ChangesetComment) mergejoin.Key {
		return mergejoin.Key{ID: int64(c.ChangesetID)}
	})

	for i := range changesets {
		if err := w.changeset(&changesets[i], tagCur, commentCur); err != nil {
			return fmt.Errorf("changeset %d: %w", changesets[i].ID, err)
		}
	}
	return nil
}

func (w *Writer) changeset(cs *records.Changeset, tagCur *mergejoin.Cursor[records.CurrentTag], commentCur *mergejoin.Cursor[records.ChangesetComment]) error {
	e := &w.e
	key := mergejoin.Key{ID: int64(cs.ID)}

	e.begin("changeset")
	e.int64("id", int64(cs.ID))
	e.time("created_at", cs.CreatedAt)
	open := cs.ClosedAt.After(w.opts.Now)
	if !open {
		e.time("closed_at", cs.ClosedAt)
	}
	e.boolean("open", open)

	if w.opts.UserInfo == records.UserInfoFull {
		if name, ok := w.users.Lookup(cs.UserID); ok {
			e.str("user", name)
			e.int64("uid", int64(cs.UserID))
			w.changesetUsers[cs.ID] = cs.UserID
		}
	}

	if minLat, minLon, maxLat, maxLon, ok := cs.BBox(); ok {
		e.float("min_lat", minLat)
		e.float("min_lon", minLon)
		e.float("max_lat", maxLat)
		e.float("max_lon", maxLon)
	}
	e.int32("num_changes", cs.NumChanges)

	visible := commentCur.Count(key, func(c *records.ChangesetComment) bool { return c.Visible })
	e.int64("comments_count", int64(visible))
	if e.err != nil {
		return e.err
	}

	if err := tagCur.Collect(key, func(t *records.CurrentTag) error {
		return w.tag(t.Key, t.Value)
	}); err != nil {
		return err
	}

	if visible > 0 && w.opts.Discussions {
		e.begin("discussion")
		if err := commentCur.Collect(key, w.comment); err != nil {
			return err
		}
		e.end()
	} else if err := commentCur.Skip(key); err != nil {
		return err
	}

	e.end()
	if e.err != nil {
		return e.err
	}
	w.stats.Changesets.Add(1)
	return nil
}

func (w *Writer) comment(c *records.ChangesetComment) error {
	if !c.Visible {
		return nil
	}
	name, ok := w.users.Lookup(c.AuthorID)
	if !ok {
		w.log.Warn("Dropping comment by non-public user",
			zap.Int64("user_id", int64(c.AuthorID)),
			zap.Int64("changeset_id", int64(c.ChangesetID)))
		w.stats.DroppedComments.Add(1)
		return nil
	}

	e := &w.e
	e.begin("comment")
	if w.opts.UserInfo == records.UserInfoFull {
		e.int64("uid", int64(c.AuthorID))
		e.str("user", name)
	}
	e.time("date", c.CreatedAt)
	e.begin("text")
	e.text(c.Body)
	e.end()
	e.end()
	if e.err == nil {
		w.stats.Comments.Add(1)
	}
	return e.err
}

// Nodes writes node versions sorted by (id, version) with their tags
func (w *Writer) Nodes(nodes []records.Node, tags []records.OldTag) error {
	tagCur := newCursor(w.opts.StrictOrder, tags, oldTagKey)

	for i := range nodes {
		n := &nodes[i]
		key := mergejoin.Key{ID: int64(n.ID), Version: n.Version}
		e := &w.e

		e.begin("node")
		e.int64("id", int64(n.ID))
		if n.Visible {
			e.float("lat", records.Unscale(n.Latitude))
			e.float("lon", records.Unscale(n.Longitude))
		}
		w.common(n.Timestamp, n.Version, n.ChangesetID, n.Visible)
		if err := w.children(n.Visible, key, tagCur, nil); err != nil {
			return fmt.Errorf("node %d v%d: %w", n.ID, n.Version, err)
		}
		e.end()
		if e.err != nil {
			return fmt.Errorf("node %d v%d: %w", n.ID, n.Version, e.err)
		}
		w.stats.Nodes.Add(1)
	}
	return nil
}

// Ways writes way versions with their node references, then their tags
func (w *Writer) Ways(ways []records.Way, wayNodes []records.WayNode, tags []records.OldTag) error {
	tagCur := newCursor(w.opts.StrictOrder, tags, oldTagKey)
	ndCur := newCursor(w.opts.StrictOrder, wayNodes, func(wn *records.WayNode) mergejoin.Key {
		return mergejoin.Key{ID: int64(wn.WayID), Version: wn.Version}
	})

	for i := range ways {
		way := &ways[i]
		key := mergejoin.Key{ID: int64(way.ID), Version: way.Version}
		e := &w.e

		e.begin("way")
		e.int64("id", int64(way.ID))
		w.common(way.Timestamp, way.Version, way.ChangesetID, way.Visible)
		err := w.children(way.Visible, key, tagCur, func() error {
			if !way.Visible {
				return ndCur.Skip(key)
			}
			return ndCur.Collect(key, func(wn *records.WayNode) error {
				e.begin("nd")
				e.int64("ref", int64(wn.NodeID))
				e.end()
				if e.err == nil {
					w.stats.WayNodes.Add(1)
				}
				return e.err
			})
		})
		if err != nil {
			return fmt.Errorf("way %d v%d: %w", way.ID, way.Version, err)
		}
		e.end()
		if e.err != nil {
			return fmt.Errorf("way %d v%d: %w", way.ID, way.Version, e.err)
		}
		w.stats.Ways.Add(1)
	}
	return nil
}

// Relations writes relation versions with their members, then their tags
func (w *Writer) Relations(relations []records.Relation, members []records.RelationMember, tags []records.OldTag) error {
	tagCur := newCursor(w.opts.StrictOrder, tags, oldTagKey)
	memberCur := newCursor(w.opts.StrictOrder, members, func(m *records.RelationMember) mergejoin.Key {
		return mergejoin.Key{ID: int64(m.RelationID), Version: m.Version}
	})

	for i := range relations {
		r := &relations[i]
		key := mergejoin.Key{ID: int64(r.ID), Version: r.Version}
		e := &w.e

		e.begin("relation")
		e.int64("id", int64(r.ID))
		w.common(r.Timestamp, r.Version, r.ChangesetID, r.Visible)
		err := w.children(r.Visible, key, tagCur, func() error {
			if !r.Visible {
				return memberCur.Skip(key)
			}
			return memberCur.Collect(key, func(m *records.RelationMember) error {
				e.begin("member")
				e.str("type", string(m.Type))
				e.int64("ref", m.MemberID)
				e.str("role", m.Role)
				e.end()
				if e.err == nil {
					w.stats.Members.Add(1)
				}
				return e.err
			})
		})
		if err != nil {
			return fmt.Errorf("relation %d v%d: %w", r.ID, r.Version, err)
		}
		e.end()
		if e.err != nil {
			return fmt.Errorf("relation %d v%d: %w", r.ID, r.Version, e.err)
		}
		w.stats.Relations.Add(1)
	}
	return nil
}

// WriteDataset writes every section of ds and finishes the document. On any
// error the emitter is aborted before returning.
func (w *Writer) WriteDataset(ds *records.Dataset) error {
	steps := []struct {
		name string
		run  func() error
	}{
		{"changesets", func() error { return w.Changesets(ds.Changesets, ds.ChangesetTags, ds.Comments) }},
		{"nodes", func() error { return w.Nodes(ds.Nodes, ds.NodeTags) }},
		{"ways", func() error { return w.Ways(ds.Ways, ds.WayNodes, ds.WayTags) }},
		{"relations", func() error { return w.Relations(ds.Relations, ds.Members, ds.RelationTags) }},
	}
	for _, step := range steps {
		start := time.Now()
		w.log.Debug("Writing section", zap.String("section", step.name))
		if err := step.run(); err != nil {
			_ = w.Abort()
			return fmt.Errorf("write %s: %w", step.name, err)
		}
		w.log.Debug("Section complete", zap.String("section", step.name), zap.Duration("duration", time.Since(start)))
	}
	return w.Finish()
}

// Finish closes the document and the output stream
func (w *Writer) Finish() error {
	if err := w.out.Finish(); err != nil {
		return fmt.Errorf("finish document: %w", err)
	}
	return nil
}

// Abort releases the output stream without completing the document
func (w *Writer) Abort() error {
	return w.out.Abort()
}

// common writes the attributes shared by nodes, ways and relations
func (w *Writer) common(ts time.Time, version int64, cs osm.ChangesetID, visible bool) {
	e := &w.e
	e.time("timestamp", ts)
	e.int64("version", version)
	e.int64("changeset", int64(cs))
	if w.opts.History {
		e.boolean("visible", visible)
	}
	if w.opts.UserInfo != records.UserInfoFull {
		return
	}
	uid, ok := w.changesetUsers[cs]
	if !ok {
		return
	}
	if name, ok := w.users.Lookup(uid); ok {
		e.str("user", name)
		e.int64("uid", int64(uid))
	}
}

// children writes the element-specific children (if any) and then the
// tags of one version. Deleted versions write nothing but still move the
// tag cursor past their rows.
func (w *Writer) children(visible bool, key mergejoin.Key, tagCur *mergejoin.Cursor[records.OldTag], inner func() error) error {
	if w.e.err != nil {
		return w.e.err
	}
	if inner != nil {
		if err := inner(); err != nil {
			return err
		}
	}
	if !visible {
		return tagCur.Skip(key)
	}
	return tagCur.Collect(key, func(t *records.OldTag) error {
		return w.tag(t.Key, t.Value)
	})
}

func (w *Writer) tag(k, v string) error {
	e := &w.e
	e.begin("tag")
	e.str("k", k)
	e.str("v", v)
	e.end()
	if e.err == nil {
		w.stats.Tags.Add(1)
	}
	return e.err
}

func oldTagKey(t *records.OldTag) mergejoin.Key {
	return mergejoin.Key{ID: t.ElementID, Version: t.Version}
}

func newCursor[T any](strict bool, items []T, keyOf func(*T) mergejoin.Key) *mergejoin.Cursor[T] {
	c := mergejoin.NewCursor(items, keyOf)
	c.SetStrict(strict)
	return c
}
