//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Structure is a named, ordered collection of typed fields.
//
// Its string form is the one carried on the wire:
//
//	name, key=(type)value, other=(string)"quoted";
//
// Only values with a registered string form survive serialization. The
// built-in types are string, bool, int32, uint32, int64, uint64 and float64.
// Additional value types can be registered with RegisterValueCodec.
type Structure struct {
	Name   string
	Fields []Field
}

// Field is a single named value of a Structure.
type Field struct {
	Name  string
	Value any
}

// ErrInvalidStructure is returned when a structure string cannot be parsed.
var ErrInvalidStructure = errors.New("invalid structure string")

// NewStructure builds a structure from alternating name/value pairs.
// Pairs whose name is not a string are ignored.
func NewStructure(name string, kv ...any) *Structure {
	s := &Structure{Name: name}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		s.Set(key, kv[i+1])
	}
	return s
}

// Get returns the value of the named field.
func (s *Structure) Get(name string) (any, bool) {
	if s == nil {
		return nil, false
	}
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// GetString returns a string field.
func (s *Structure) GetString(name string) (string, bool) {
	v, ok := s.Get(name)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// GetInt64 returns an integer field widened to int64.
func (s *Structure) GetInt64(name string) (int64, bool) {
	v, ok := s.Get(name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	default:
		return 0, false
	}
}

// Set replaces the named field or appends it.
func (s *Structure) Set(name string, value any) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			s.Fields[i].Value = value
			return
		}
	}
	s.Fields = append(s.Fields, Field{Name: name, Value: value})
}

// Remove deletes the named field if present.
func (s *Structure) Remove(name string) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			s.Fields = append(s.Fields[:i], s.Fields[i+1:]...)
			return
		}
	}
}

// RemoveAll deletes every field, keeping the name.
func (s *Structure) RemoveAll() {
	s.Fields = s.Fields[:0]
}

// Copy returns a shallow copy with its own field slice.
func (s *Structure) Copy() *Structure {
	if s == nil {
		return nil
	}
	c := &Structure{Name: s.Name, Fields: make([]Field, len(s.Fields))}
	copy(c.Fields, s.Fields)
	return c
}

// Equal reports whether both structures have the same name and fields in
// the same order.
func (s *Structure) Equal(o *Structure) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.Name != o.Name || len(s.Fields) != len(o.Fields) {
		return false
	}
	for i := range s.Fields {
		if s.Fields[i].Name != o.Fields[i].Name {
			return false
		}
		if !valueEqual(s.Fields[i].Value, o.Fields[i].Value) {
			return false
		}
	}
	return true
}

// String serializes the structure. Fields whose value type has no string
// form are dropped.
func (s *Structure) String() string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(s.Name)
	for _, f := range s.Fields {
		typeName, text, ok := serializeValue(f.Value)
		if !ok {
			continue
		}
		b.WriteString(", ")
		b.WriteString(f.Name)
		b.WriteString("=(")
		b.WriteString(typeName)
		b.WriteString(")")
		b.WriteString(text)
	}
	b.WriteString(";")
	return b.String()
}

// Validate reports whether the string form of s can be parsed back: the
// structure name and every field name must be non-empty and made of
// letters, digits and "_-/.:+". A nil structure is valid.
func (s *Structure) Validate() error {
	if s == nil {
		return nil
	}
	if !validName(s.Name) {
		return fmt.Errorf("%w: bad name %q", ErrInvalidStructure, s.Name)
	}
	for _, f := range s.Fields {
		if !validName(f.Name) {
			return fmt.Errorf("%w: bad field name %q in %s", ErrInvalidStructure, f.Name, s.Name)
		}
	}
	return nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isIdentByte(name[i]) {
			return false
		}
	}
	return true
}

// ValueCodec gives a value type a string form inside structures.
type ValueCodec struct {
	// TypeName is written in parentheses before the value.
	TypeName string
	// Serialize returns the text form, or false if v is not handled.
	Serialize func(v any) (string, bool)
	// Deserialize parses the text form.
	Deserialize func(s string) (any, error)
	// Equal compares two values of this type.
	Equal func(a, b any) bool
}

var (
	codecsMu sync.RWMutex
	codecs   = map[string]*ValueCodec{}
)

// RegisterValueCodec registers (or replaces) a codec for a custom value type.
func RegisterValueCodec(c *ValueCodec) {
	codecsMu.Lock()
	codecs[c.TypeName] = c
	codecsMu.Unlock()
}

func lookupCodec(typeName string) *ValueCodec {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	return codecs[typeName]
}

func customCodecs() []*ValueCodec {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	out := make([]*ValueCodec, 0, len(codecs))
	for _, c := range codecs {
		out = append(out, c)
	}
	return out
}

func serializeValue(v any) (typeName, text string, ok bool) {
	switch x := v.(type) {
	case string:
		return "string", quoteString(x), true
	case bool:
		if x {
			return "boolean", "true", true
		}
		return "boolean", "false", true
	case int32:
		return "int", strconv.FormatInt(int64(x), 10), true
	case uint32:
		return "uint", strconv.FormatUint(uint64(x), 10), true
	case int64:
		return "gint64", strconv.FormatInt(x, 10), true
	case uint64:
		return "guint64", strconv.FormatUint(x, 10), true
	case float64:
		return "double", strconv.FormatFloat(x, 'g', -1, 64), true
	}
	for _, c := range customCodecs() {
		if text, ok := c.Serialize(v); ok {
			return c.TypeName, text, true
		}
	}
	return "", "", false
}

func valueEqual(a, b any) bool {
	switch a.(type) {
	case string, bool, int32, uint32, int64, uint64, float64:
		return a == b
	}
	for _, c := range customCodecs() {
		if _, ok := c.Serialize(a); ok {
			return c.Equal(a, b)
		}
	}
	return false
}

func quoteString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}

// ParseStructure parses the string form produced by Structure.String.
func ParseStructure(str string) (*Structure, error) {
	p := &structParser{s: str}
	p.skipSpace()
	name := p.ident()
	if name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidStructure)
	}
	s := &Structure{Name: name}
	for {
		p.skipSpace()
		if p.eof() {
			return s, nil
		}
		if p.peek() == ';' {
			p.pos++
			p.skipSpace()
			if !p.eof() {
				return nil, fmt.Errorf("%w: trailing data at %d", ErrInvalidStructure, p.pos)
			}
			return s, nil
		}
		if p.peek() != ',' {
			return nil, fmt.Errorf("%w: expected ',' at %d", ErrInvalidStructure, p.pos)
		}
		p.pos++
		p.skipSpace()
		key := p.ident()
		if key == "" {
			return nil, fmt.Errorf("%w: missing field name at %d", ErrInvalidStructure, p.pos)
		}
		p.skipSpace()
		if p.eof() || p.peek() != '=' {
			return nil, fmt.Errorf("%w: expected '=' after %q", ErrInvalidStructure, key)
		}
		p.pos++
		p.skipSpace()
		value, err := p.value()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		s.Fields = append(s.Fields, Field{Name: key, Value: value})
	}
}

type structParser struct {
	s   string
	pos int
}

func (p *structParser) eof() bool  { return p.pos >= len(p.s) }
func (p *structParser) peek() byte { return p.s[p.pos] }

func (p *structParser) skipSpace() {
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t' || p.peek() == '\n') {
		p.pos++
	}
}

func isIdentByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '-' || c == '/' || c == '.' || c == ':' || c == '+'
}

func (p *structParser) ident() string {
	start := p.pos
	for !p.eof() && isIdentByte(p.peek()) {
		p.pos++
	}
	return p.s[start:p.pos]
}

func (p *structParser) value() (any, error) {
	typeName := ""
	if !p.eof() && p.peek() == '(' {
		end := strings.IndexByte(p.s[p.pos:], ')')
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated type", ErrInvalidStructure)
		}
		typeName = strings.TrimSpace(p.s[p.pos+1 : p.pos+end])
		p.pos += end + 1
		p.skipSpace()
	}
	if p.eof() {
		return nil, fmt.Errorf("%w: missing value", ErrInvalidStructure)
	}

	if p.peek() == '"' {
		text, err := p.quoted()
		if err != nil {
			return nil, err
		}
		if typeName == "" || isStringType(typeName) {
			return text, nil
		}
		return convertValue(typeName, text)
	}

	start := p.pos
	for !p.eof() && p.peek() != ',' && p.peek() != ';' {
		p.pos++
	}
	text := strings.TrimSpace(p.s[start:p.pos])
	if text == "" {
		return nil, fmt.Errorf("%w: empty value", ErrInvalidStructure)
	}
	if typeName == "" {
		return inferValue(text), nil
	}
	return convertValue(typeName, text)
}

func (p *structParser) quoted() (string, error) {
	var b strings.Builder
	p.pos++ // opening quote
	for !p.eof() {
		c := p.peek()
		p.pos++
		switch c {
		case '\\':
			if p.eof() {
				return "", fmt.Errorf("%w: dangling escape", ErrInvalidStructure)
			}
			b.WriteByte(p.peek())
			p.pos++
		case '"':
			return b.String(), nil
		default:
			b.WriteByte(c)
		}
	}
	return "", fmt.Errorf("%w: unterminated string", ErrInvalidStructure)
}

func isStringType(t string) bool {
	return t == "string" || t == "str" || t == "s" || t == "gchararray"
}

func convertValue(typeName, text string) (any, error) {
	switch typeName {
	case "string", "str", "s", "gchararray":
		return text, nil
	case "boolean", "bool", "b", "gboolean":
		v, ok := parseBool(text)
		if !ok {
			return nil, fmt.Errorf("%w: bad boolean %q", ErrInvalidStructure, text)
		}
		return v, nil
	case "int", "i", "gint":
		v, err := strconv.ParseInt(text, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStructure, err)
		}
		return int32(v), nil
	case "uint", "u", "guint":
		v, err := strconv.ParseUint(text, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStructure, err)
		}
		return uint32(v), nil
	case "gint64", "int64":
		v, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStructure, err)
		}
		return v, nil
	case "guint64", "uint64":
		v, err := strconv.ParseUint(text, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStructure, err)
		}
		return v, nil
	case "double", "d", "gdouble", "float", "f":
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStructure, err)
		}
		return v, nil
	}
	c := lookupCodec(typeName)
	if c == nil {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidStructure, typeName)
	}
	return c.Deserialize(text)
}

func parseBool(text string) (value, ok bool) {
	switch strings.ToLower(text) {
	case "true", "yes", "t", "1":
		return true, true
	case "false", "no", "f", "0":
		return false, true
	}
	return false, false
}

func inferValue(text string) any {
	if v, err := strconv.ParseInt(text, 10, 32); err == nil {
		return int32(v)
	}
	if v, err := strconv.ParseInt(text, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return v
	}
	if v, ok := parseBool(text); ok {
		return v
	}
	return text
}
