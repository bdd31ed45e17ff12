// Package verify reads a planet document back and checks its structure:
// the root header, section order, id order within each section, and
// comment counts against the discussion actually written.
package verify

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/paulmach/osm"
)

// Report summarises a planet document
type Report struct {
	Version   string
	Generator string
	Timestamp time.Time
	Bound     string

	Changesets      int64
	Nodes           int64
	Ways            int64
	Relations       int64
	Tags            int64
	WayNodes        int64
	Members         int64
	Comments        int64
	DeletedVersions int64
}

// Elements returns the number of top-level elements
func (r *Report) Elements() int64 {
	return r.Changesets + r.Nodes + r.Ways + r.Relations
}

// Error describes the first structural problem found
type Error struct {
	Element string
	ID      int64
	Version int
	Reason  string
}

func (e *Error) Error() string {
	if e.Element == "" {
		return "verify: " + e.Reason
	}
	if e.Version > 0 {
		return fmt.Sprintf("verify: %s %d v%d: %s", e.Element, e.ID, e.Version, e.Reason)
	}
	return fmt.Sprintf("verify: %s %d: %s", e.Element, e.ID, e.Reason)
}

// section ranks follow document order
var sectionRank = map[string]int{
	"changeset": 1,
	"node":      2,
	"way":       3,
	"relation":  4,
}

type position struct {
	element string
	id      int64
	version int
}

// ordering tracks the last element seen and rejects anything that goes
// backwards. Within a section (id, version) must strictly increase.
type ordering struct {
	last position
	seen bool
}

func (o *ordering) check(p position) error {
	defer func() { o.last, o.seen = p, true }()
	if !o.seen {
		return nil
	}
	lr, pr := sectionRank[o.last.element], sectionRank[p.element]
	switch {
	case pr < lr:
		return &Error{Element: p.element, ID: p.id, Version: p.version,
			Reason: fmt.Sprintf("appears after %s section", o.last.element)}
	case pr > lr:
		return nil
	}
	if p.id < o.last.id || (p.id == o.last.id && p.version <= o.last.version) {
		return &Error{Element: p.element, ID: p.id, Version: p.version,
			Reason: fmt.Sprintf("out of order after %s %d v%d", o.last.element, o.last.id, o.last.version)}
	}
	return nil
}

// File checks the planet file at path
func File(ctx context.Context, path string) (*Report, error) {
	r, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return Reader(ctx, r)
}

// Reader checks a planet document read from r. The returned report covers
// everything read up to the first problem.
func Reader(ctx context.Context, r io.Reader) (*Report, error) {
	decoder := xml.NewDecoder(r)
	report := &Report{}
	var order ordering
	rootSeen := false

	for {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report, fmt.Errorf("XML parse error: %w", err)
		}

		se, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		if !rootSeen {
			if se.Name.Local != "osm" {
				return report, &Error{Reason: fmt.Sprintf("root element is <%s>, expected <osm>", se.Name.Local)}
			}
			if err := readHeader(se, report); err != nil {
				return report, err
			}
			rootSeen = true
			continue
		}

		if err := readElement(decoder, se, report, &order); err != nil {
			return report, err
		}
	}

	if !rootSeen {
		return report, &Error{Reason: "no <osm> root element"}
	}
	return report, nil
}

func readHeader(se xml.StartElement, report *Report) error {
	for _, attr := range se.Attr {
		switch attr.Name.Local {
		case "version":
			report.Version = attr.Value
		case "generator":
			report.Generator = attr.Value
		case "timestamp":
			t, err := time.Parse(time.RFC3339, attr.Value)
			if err != nil {
				return &Error{Reason: fmt.Sprintf("bad header timestamp %q", attr.Value)}
			}
			report.Timestamp = t
		}
	}
	if report.Version != "0.6" {
		return &Error{Reason: fmt.Sprintf("unsupported version %q", report.Version)}
	}
	return nil
}

func readElement(decoder *xml.Decoder, se xml.StartElement, report *Report, order *ordering) error {
	switch se.Name.Local {
	case "bound":
		for _, attr := range se.Attr {
			if attr.Name.Local == "box" {
				report.Bound = attr.Value
			}
		}
		return decoder.Skip()

	case "changeset":
		var c osm.Changeset
		if err := decoder.DecodeElement(&c, &se); err != nil {
			return fmt.Errorf("changeset: %w", err)
		}
		if err := order.check(position{element: "changeset", id: int64(c.ID)}); err != nil {
			return err
		}
		report.Changesets++
		report.Tags += int64(len(c.Tags))
		if c.Discussion != nil {
			n := len(c.Discussion.Comments)
			if n > c.CommentsCount {
				return &Error{Element: "changeset", ID: int64(c.ID),
					Reason: fmt.Sprintf("%d comments written but comments_count is %d", n, c.CommentsCount)}
			}
			report.Comments += int64(n)
		}

	case "node":
		var n osm.Node
		if err := decoder.DecodeElement(&n, &se); err != nil {
			return fmt.Errorf("node: %w", err)
		}
		if err := order.check(position{element: "node", id: int64(n.ID), version: n.Version}); err != nil {
			return err
		}
		report.Nodes++
		report.Tags += int64(len(n.Tags))
		if deleted(se) {
			report.DeletedVersions++
		}

	case "way":
		var w osm.Way
		if err := decoder.DecodeElement(&w, &se); err != nil {
			return fmt.Errorf("way: %w", err)
		}
		if err := order.check(position{element: "way", id: int64(w.ID), version: w.Version}); err != nil {
			return err
		}
		report.Ways++
		report.Tags += int64(len(w.Tags))
		report.WayNodes += int64(len(w.Nodes))
		if deleted(se) {
			report.DeletedVersions++
		}

	case "relation":
		var r osm.Relation
		if err := decoder.DecodeElement(&r, &se); err != nil {
			return fmt.Errorf("relation: %w", err)
		}
		if err := order.check(position{element: "relation", id: int64(r.ID), version: r.Version}); err != nil {
			return err
		}
		report.Relations++
		report.Tags += int64(len(r.Tags))
		report.Members += int64(len(r.Members))
		if deleted(se) {
			report.DeletedVersions++
		}

	default:
		return decoder.Skip()
	}
	return nil
}

// deleted reports an explicit visible="false"; current planets carry no
// visible attribute at all
func deleted(se xml.StartElement) bool {
	for _, attr := range se.Attr {
		if attr.Name.Local == "visible" {
			return attr.Value == "false"
		}
	}
	return false
}
