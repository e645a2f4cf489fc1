//nolint:revive // types is a common Go package naming convention
package types

import "math"

// ClockTimeNone marks an unset timestamp or duration.
const ClockTimeNone uint64 = math.MaxUint64

// OffsetNone marks an unset buffer offset.
const OffsetNone uint64 = math.MaxUint64

// BufferFlags are the per-buffer flag bits.
type BufferFlags uint64

// Buffer flags.
const (
	BufferFlagLive         BufferFlags = 1 << 4
	BufferFlagDecodeOnly   BufferFlags = 1 << 5
	BufferFlagDiscont      BufferFlags = 1 << 6
	BufferFlagResync       BufferFlags = 1 << 7
	BufferFlagCorrupted    BufferFlags = 1 << 8
	BufferFlagMarker       BufferFlags = 1 << 9
	BufferFlagHeader       BufferFlags = 1 << 10
	BufferFlagGap          BufferFlags = 1 << 11
	BufferFlagDroppable    BufferFlags = 1 << 12
	BufferFlagDeltaUnit    BufferFlags = 1 << 13
	BufferFlagSyncAfter    BufferFlags = 1 << 15
	BufferFlagNonDroppable BufferFlags = 1 << 16
)

// Buffer is a chunk of media data with its timing metadata.
type Buffer struct {
	PTS       uint64
	DTS       uint64
	Duration  uint64
	Offset    uint64
	OffsetEnd uint64
	Flags     BufferFlags
	Data      []byte
	Metas     []*Meta
}

// NewBuffer returns a buffer holding data with every timing field unset.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{
		PTS:       ClockTimeNone,
		DTS:       ClockTimeNone,
		Duration:  ClockTimeNone,
		Offset:    OffsetNone,
		OffsetEnd: OffsetNone,
		Data:      data,
	}
}

// AddMeta attaches a metadata entry.
func (b *Buffer) AddMeta(m *Meta) {
	b.Metas = append(b.Metas, m)
}

// Size returns the payload size in bytes.
func (b *Buffer) Size() int { return len(b.Data) }

// Meta is a typed metadata entry attached to a buffer.
//
// API names the metadata API type. Only entries whose API is listed in
// SupportedMetaAPIs are carried across the wire; Info carries the
// entry-specific data.
type Meta struct {
	API   string
	Flags uint32
	Size  uint64
	Info  *Structure
}

// ProtectionMetaAPI is the API name of protection (decryption) metadata.
const ProtectionMetaAPI = "GstProtectionMetaAPI"

// protectionMetaSize is the in-memory size the originating runtime reports
// for a protection meta.
const protectionMetaSize = 24

// SupportedMetaAPIs lists the metadata APIs that round-trip.
var SupportedMetaAPIs = map[string]bool{
	ProtectionMetaAPI: true,
}

// NewProtectionMeta returns protection metadata carrying info.
func NewProtectionMeta(info *Structure) *Meta {
	return &Meta{API: ProtectionMetaAPI, Size: protectionMetaSize, Info: info}
}
