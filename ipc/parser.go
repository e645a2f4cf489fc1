package ipc

import (
	"bytes"
	"errors"
	"io"
)

// FrameParser turns an arbitrarily chunked byte stream into frames.
//
// The parser is either waiting for a header or, once a header has been
// read, waiting for that header's payload. Bytes are accumulated until
// the current step can complete; short input is never an error.
type FrameParser struct {
	buf     bytes.Buffer
	pending bool
	hdr     Header
}

// NewFrameParser creates a parser waiting for a header.
func NewFrameParser() *FrameParser {
	return &FrameParser{}
}

// Feed appends bytes read from the stream.
func (p *FrameParser) Feed(b []byte) {
	p.buf.Write(b)
}

// Buffered returns the number of bytes not yet consumed.
func (p *FrameParser) Buffered() int {
	return p.buf.Len()
}

// Expecting returns the type of the frame whose payload is being
// collected, or 0 when the parser waits for a header.
func (p *FrameParser) Expecting() DataType {
	if !p.pending {
		return 0
	}
	return p.hdr.Type
}

// Next returns the next complete frame. ok is false when more bytes are
// needed. Any error is fatal: the stream can no longer be parsed.
func (p *FrameParser) Next() (f Frame, ok bool, err error) {
	if !p.pending {
		if p.buf.Len() < HeaderSize {
			return Frame{}, false, nil
		}
		hdr, err := ParseHeader(p.buf.Bytes())
		if err != nil {
			return Frame{}, false, err
		}
		p.buf.Next(HeaderSize)
		p.hdr = hdr
		p.pending = true
	}
	if p.buf.Len() < int(p.hdr.Length) {
		return Frame{}, false, nil
	}
	f.Header = p.hdr
	f.Payload = append([]byte(nil), p.buf.Next(int(p.hdr.Length))...)
	p.pending = false
	return f, true, nil
}

// Reset drops buffered bytes and waits for a new header.
func (p *FrameParser) Reset() {
	p.buf.Reset()
	p.pending = false
	p.hdr = Header{}
}

// FrameDecoder reads frames from a stream.
type FrameDecoder struct {
	reader io.Reader
	parser *FrameParser
	chunk  []byte
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r, parser: NewFrameParser(), chunk: make([]byte, 4096)}
}

// ReadFrame reads a single frame from the stream.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorTruncated: stream ended inside a frame
//   - any other *FrameError: the stream is corrupt
func (d *FrameDecoder) ReadFrame() (Frame, error) {
	for {
		f, ok, err := d.parser.Next()
		if err != nil {
			return Frame{}, err
		}
		if ok {
			return f, nil
		}
		n, err := d.reader.Read(d.chunk)
		if n > 0 {
			d.parser.Feed(d.chunk[:n])
			continue
		}
		if errors.Is(err, io.EOF) {
			if d.parser.Buffered() == 0 && d.parser.Expecting() == 0 {
				return Frame{}, io.EOF
			}
			return Frame{}, &FrameError{
				Kind: FrameErrorTruncated,
				Type: d.parser.Expecting(),
				Msg:  "stream ended inside a frame",
				Err:  io.ErrUnexpectedEOF,
			}
		}
		if err != nil {
			return Frame{}, err
		}
	}
}
