package records

import (
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/osm"
)

// Scale is the fixed-point factor for stored coordinates (lat/lon × 10^7)
const Scale = 10_000_000

// Unscale converts a fixed-point coordinate back to degrees
func Unscale(scaled int32) float64 {
	return float64(scaled) / Scale
}

// UserInfoLevel controls whether identifying user fields are written
type UserInfoLevel int

const (
	// UserInfoFull writes user and uid attributes for public users
	UserInfoFull UserInfoLevel = iota
	// UserInfoAnonymous never writes user or uid attributes
	UserInfoAnonymous
)

func (l UserInfoLevel) String() string {
	switch l {
	case UserInfoFull:
		return "full"
	case UserInfoAnonymous:
		return "anonymous"
	default:
		return fmt.Sprintf("UserInfoLevel(%d)", int(l))
	}
}

// ParseUserInfoLevel parses "full" or "anonymous" (also "none", "anonymised")
func ParseUserInfoLevel(s string) (UserInfoLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full":
		return UserInfoFull, nil
	case "anonymous", "anonymised", "anonymized", "none":
		return UserInfoAnonymous, nil
	}
	return UserInfoFull, fmt.Errorf("unknown user info level %q (want full or anonymous)", s)
}

// Changeset is a batch of edits by one user. Bounding box fields are
// fixed-point and nil when the changeset has no extent.
type Changeset struct {
	ID         osm.ChangesetID
	CreatedAt  time.Time
	ClosedAt   time.Time
	UserID     osm.UserID // 0 if unknown
	MinLat     *int32
	MinLon     *int32
	MaxLat     *int32
	MaxLon     *int32
	NumChanges int32
}

// BBox returns the unscaled bounding box, ok only if all four edges are set
func (c *Changeset) BBox() (minLat, minLon, maxLat, maxLon float64, ok bool) {
	if c.MinLat == nil || c.MinLon == nil || c.MaxLat == nil || c.MaxLon == nil {
		return 0, 0, 0, 0, false
	}
	return Unscale(*c.MinLat), Unscale(*c.MinLon), Unscale(*c.MaxLat), Unscale(*c.MaxLon), true
}

// CurrentTag is a tag on a changeset (changesets are unversioned)
type CurrentTag struct {
	ElementID int64
	Key       string
	Value     string
}

// OldTag is a tag on one version of a node, way or relation
type OldTag struct {
	ElementID int64
	Version   int64
	Key       string
	Value     string
}

// Node is one version of an OSM node
type Node struct {
	ID          osm.NodeID
	Version     int64
	Timestamp   time.Time
	ChangesetID osm.ChangesetID
	Visible     bool
	Latitude    int32 // scaled: lat * 10^7
	Longitude   int32 // scaled: lon * 10^7
}

// Way is one version of an OSM way
type Way struct {
	ID          osm.WayID
	Version     int64
	Timestamp   time.Time
	ChangesetID osm.ChangesetID
	Visible     bool
}

// WayNode is one node reference of a way version
type WayNode struct {
	WayID    osm.WayID
	Version  int64
	NodeID   osm.NodeID
	Sequence int64
}

// Relation is one version of an OSM relation
type Relation struct {
	ID          osm.RelationID
	Version     int64
	Timestamp   time.Time
	ChangesetID osm.ChangesetID
	Visible     bool
}

// RelationMember is one member of a relation version
type RelationMember struct {
	RelationID osm.RelationID
	Version    int64
	Type       osm.Type // osm.TypeNode, osm.TypeWay or osm.TypeRelation
	MemberID   int64
	Role       string
	Sequence   int64
}

// ChangesetComment is one discussion comment on a changeset
type ChangesetComment struct {
	ChangesetID osm.ChangesetID
	AuthorID    osm.UserID
	CreatedAt   time.Time
	Body        string
	Visible     bool
}

// User is a user whose data is public
type User struct {
	ID          osm.UserID
	DisplayName string
}

// UserMap resolves user ids to display names. Users absent from the
// map are treated as non-public.
type UserMap map[osm.UserID]string

// NewUserMap builds a lookup from a user list
func NewUserMap(users []User) UserMap {
	m := make(UserMap, len(users))
	for _, u := range users {
		m[u.ID] = u.DisplayName
	}
	return m
}

// Lookup returns the display name for a user id
func (m UserMap) Lookup(id osm.UserID) (string, bool) {
	if id == 0 {
		return "", false
	}
	name, ok := m[id]
	return name, ok
}

// ParseMemberType maps the database enum ("Node", "Way", "Relation" in any
// case, or the single-letter forms) to an osm.Type
func ParseMemberType(s string) (osm.Type, error) {
	switch strings.ToLower(s) {
	case "node", "n":
		return osm.TypeNode, nil
	case "way", "w":
		return osm.TypeWay, nil
	case "relation", "r":
		return osm.TypeRelation, nil
	}
	return "", fmt.Errorf("unknown member type %q", s)
}
