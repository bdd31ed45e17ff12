package records

import "time"

// Dataset holds every input sequence for one dump pass. Each slice must be
// sorted the way the planet writer expects:
//
//	Changesets, ChangesetTags, Comments  by changeset id
//	Nodes, Ways, Relations               by id, then version ascending
//	NodeTags, WayTags, RelationTags      by (element id, version)
//	WayNodes, Members                    by (parent id, version, sequence)
//
// Users is unordered.
type Dataset struct {
	Changesets    []Changeset
	ChangesetTags []CurrentTag
	Comments      []ChangesetComment

	Nodes    []Node
	NodeTags []OldTag

	Ways     []Way
	WayNodes []WayNode
	WayTags  []OldTag

	Relations    []Relation
	Members      []RelationMember
	RelationTags []OldTag

	Users []User
}

// Counts summarises the size of a dataset
type Counts struct {
	Changesets int
	Nodes      int
	Ways       int
	Relations  int
	Tags       int
	Comments   int
	Users      int
}

// Counts returns the number of rows in each sequence
func (d *Dataset) Counts() Counts {
	return Counts{
		Changesets: len(d.Changesets),
		Nodes:      len(d.Nodes),
		Ways:       len(d.Ways),
		Relations:  len(d.Relations),
		Tags:       len(d.ChangesetTags) + len(d.NodeTags) + len(d.WayTags) + len(d.RelationTags),
		Comments:   len(d.Comments),
		Users:      len(d.Users),
	}
}

// MaxTimestamp returns the latest edit time in the dataset. Changeset
// closed_at is ignored: open changesets carry a closing time in the future.
func (d *Dataset) MaxTimestamp() time.Time {
	var max time.Time
	bump := func(t time.Time) {
		if t.After(max) {
			max = t
		}
	}
	for i := range d.Changesets {
		bump(d.Changesets[i].CreatedAt)
	}
	for i := range d.Comments {
		bump(d.Comments[i].CreatedAt)
	}
	for i := range d.Nodes {
		bump(d.Nodes[i].Timestamp)
	}
	for i := range d.Ways {
		bump(d.Ways[i].Timestamp)
	}
	for i := range d.Relations {
		bump(d.Relations[i].Timestamp)
	}
	return max
}

// LatestOnly reduces nodes, ways and relations to their latest version and
// drops elements whose latest version is deleted. Child rows are left alone;
// the merge join skips the ones that no longer have a parent.
func (d *Dataset) LatestOnly() {
	d.Nodes = latest(d.Nodes, func(n *Node) (int64, bool) { return int64(n.ID), n.Visible })
	d.Ways = latest(d.Ways, func(w *Way) (int64, bool) { return int64(w.ID), w.Visible })
	d.Relations = latest(d.Relations, func(r *Relation) (int64, bool) { return int64(r.ID), r.Visible })
}

// latest filters in place, relying on versions being ascending within an id
func latest[T any](items []T, info func(*T) (int64, bool)) []T {
	out := items[:0]
	for i := range items {
		id, visible := info(&items[i])
		if i+1 < len(items) {
			if next, _ := info(&items[i+1]); next == id {
				continue
			}
		}
		if visible {
			out = append(out, items[i])
		}
	}
	return out
}
