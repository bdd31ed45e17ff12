package planet

import "sync/atomic"

// Stats counts what the writer has emitted. Counters are atomic so a
// progress reporter may read them while a dump is running.
type Stats struct {
	Changesets      atomic.Int64
	Nodes           atomic.Int64
	Ways            atomic.Int64
	Relations       atomic.Int64
	Tags            atomic.Int64
	WayNodes        atomic.Int64
	Members         atomic.Int64
	Comments        atomic.Int64
	DroppedComments atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats
type StatsSnapshot struct {
	Changesets      int64
	Nodes           int64
	Ways            int64
	Relations       int64
	Tags            int64
	WayNodes        int64
	Members         int64
	Comments        int64
	DroppedComments int64
}

// Snapshot returns the current counter values
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Changesets:      s.Changesets.Load(),
		Nodes:           s.Nodes.Load(),
		Ways:            s.Ways.Load(),
		Relations:       s.Relations.Load(),
		Tags:            s.Tags.Load(),
		WayNodes:        s.WayNodes.Load(),
		Members:         s.Members.Load(),
		Comments:        s.Comments.Load(),
		DroppedComments: s.DroppedComments.Load(),
	}
}

// Elements is the number of top-level elements written so far
func (s StatsSnapshot) Elements() int64 {
	return s.Changesets + s.Nodes + s.Ways + s.Relations
}
