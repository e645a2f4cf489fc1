//nolint:revive // types is a common Go package naming convention
package types

import "fmt"

// QueryType is a query number shifted left by 8 and or'ed with its flags.
type QueryType uint32

// Query type flags.
const (
	QueryFlagUpstream   QueryType = 1 << 0
	QueryFlagDownstream QueryType = 1 << 1
	QueryFlagSerialized QueryType = 1 << 2

	queryFlagBoth = QueryFlagUpstream | QueryFlagDownstream
)

// Query types.
const (
	QueryUnknown    QueryType = 0
	QueryPosition   QueryType = 10<<8 | queryFlagBoth
	QueryDuration   QueryType = 20<<8 | queryFlagBoth
	QueryLatency    QueryType = 30<<8 | queryFlagBoth
	QueryJitter     QueryType = 40<<8 | queryFlagBoth
	QueryRate       QueryType = 50<<8 | queryFlagBoth
	QuerySeeking    QueryType = 60<<8 | queryFlagBoth
	QuerySegment    QueryType = 70<<8 | queryFlagBoth
	QueryConvert    QueryType = 80<<8 | queryFlagBoth
	QueryFormats    QueryType = 90<<8 | queryFlagBoth
	QueryBuffering  QueryType = 110<<8 | queryFlagBoth
	QueryCustom     QueryType = 120<<8 | queryFlagBoth
	QueryURI        QueryType = 130<<8 | queryFlagBoth
	QueryAllocation QueryType = 140<<8 | QueryFlagDownstream | QueryFlagSerialized
	QueryScheduling QueryType = 150<<8 | QueryFlagUpstream
	QueryAcceptCaps QueryType = 160<<8 | queryFlagBoth
	QueryCaps       QueryType = 170<<8 | queryFlagBoth
	QueryDrain      QueryType = 180<<8 | QueryFlagDownstream | QueryFlagSerialized
	QueryContext    QueryType = 190<<8 | queryFlagBoth
	QueryBitrate    QueryType = 200<<8 | QueryFlagDownstream
)

var queryNames = map[QueryType]string{
	QueryUnknown:    "unknown",
	QueryPosition:   "position",
	QueryDuration:   "duration",
	QueryLatency:    "latency",
	QueryJitter:     "jitter",
	QueryRate:       "rate",
	QuerySeeking:    "seeking",
	QuerySegment:    "segment",
	QueryConvert:    "convert",
	QueryFormats:    "formats",
	QueryBuffering:  "buffering",
	QueryCustom:     "custom",
	QueryURI:        "uri",
	QueryAllocation: "allocation",
	QueryScheduling: "scheduling",
	QueryAcceptCaps: "accept-caps",
	QueryCaps:       "caps",
	QueryDrain:      "drain",
	QueryContext:    "context",
	QueryBitrate:    "bitrate",
}

func (t QueryType) String() string {
	if name, ok := queryNames[t]; ok {
		return name
	}
	return fmt.Sprintf("query-%d", uint32(t)>>8)
}

// IsUpstream reports whether the query can travel upstream.
func (t QueryType) IsUpstream() bool { return t&QueryFlagUpstream != 0 }

// IsDownstream reports whether the query can travel downstream.
func (t QueryType) IsDownstream() bool { return t&QueryFlagDownstream != 0 }

// IsSerialized reports whether the query is ordered with buffers.
func (t QueryType) IsSerialized() bool { return t&QueryFlagSerialized != 0 }

// Query asks a question of a peer; the answer is written into Structure.
type Query struct {
	Type      QueryType
	Structure *Structure
}

// NewQuery returns a query of type t.
func NewQuery(t QueryType, s *Structure) *Query {
	return &Query{Type: t, Structure: s}
}

// NewPositionQuery asks for the current position in time format.
func NewPositionQuery() *Query {
	return NewQuery(QueryPosition, NewStructure("GstQueryPosition",
		"format", "time",
		"current", int64(-1),
	))
}

// NewDurationQuery asks for the total duration in time format.
func NewDurationQuery() *Query {
	return NewQuery(QueryDuration, NewStructure("GstQueryDuration",
		"format", "time",
		"duration", int64(-1),
	))
}

// NewDrainQuery asks downstream to release all buffers it holds.
func NewDrainQuery() *Query {
	return NewQuery(QueryDrain, nil)
}

// SetPosition answers a position query.
func (q *Query) SetPosition(cur int64) {
	q.writable().Set("current", cur)
}

// Position returns the answered position, or -1.
func (q *Query) Position() int64 {
	if v, ok := q.Structure.GetInt64("current"); ok {
		return v
	}
	return -1
}

// SetDuration answers a duration query.
func (q *Query) SetDuration(d int64) {
	q.writable().Set("duration", d)
}

// Duration returns the answered duration, or -1.
func (q *Query) Duration() int64 {
	if v, ok := q.Structure.GetInt64("duration"); ok {
		return v
	}
	return -1
}

// writable returns the structure, creating an empty one named after the
// query type when needed.
func (q *Query) writable() *Structure {
	if q.Structure == nil {
		q.Structure = NewStructure("GstQuery-" + q.Type.String())
	}
	return q.Structure
}

// MergeReply replaces the fields of q's structure with those of reply,
// keeping q (and its structure) as the same objects.
func (q *Query) MergeReply(reply *Query) {
	if reply == nil || reply.Structure == nil {
		return
	}
	s := q.writable()
	s.RemoveAll()
	for _, f := range reply.Structure.Fields {
		s.Set(f.Name, f.Value)
	}
}
