//nolint:revive // types is a common Go package naming convention
package types

// Version is the canonical project version.
// The CLI and the wire protocol share this version.
const Version = "0.3.0"

// ProtocolVersion identifies the frame layout. Both ends of a descriptor
// pair must agree on it; it is not carried on the wire.
const ProtocolVersion = 1
