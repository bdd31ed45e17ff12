// Package xmlout writes well-formed XML into a compressed output stream.
//
// The Writer knows nothing about the planet schema: it opens and closes
// elements, writes typed attributes and text, and replaces control bytes
// that XML cannot carry. Every method returns an *XMLWriteError naming the
// failed operation; any error leaves the document unusable.
package xmlout

import (
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/shabbyrobe/xmlwriter"
)

// Writer emits XML into a Sink. It owns the sink from construction: Finish
// or Abort closes it.
type Writer struct {
	xw      *xmlwriter.Writer
	sink    Sink
	scratch []byte
	done    bool
}

// Option configures a Writer
type Option func(*options)

type options struct {
	indent  string
	bufSize int
}

// WithIndent sets the per-level indent string (default one space)
func WithIndent(indent string) Option {
	return func(o *options) { o.indent = indent }
}

// WithBufferSize sets the size of the output buffer in front of the sink
func WithBufferSize(n int) Option {
	return func(o *options) { o.bufSize = n }
}

// NewWriter starts a UTF-8 document on sink. If the XML declaration cannot
// be written the sink is closed before returning.
func NewWriter(sink Sink, opts ...Option) (*Writer, error) {
	o := options{indent: " ", bufSize: 64 * 1024}
	for _, opt := range opts {
		opt(&o)
	}

	xw := xmlwriter.Open(sink, xmlwriter.WithIndentString(o.indent), func(w *xmlwriter.Writer) {
		w.InitialBufSize = o.bufSize
	})
	w := &Writer{
		xw:      xw,
		sink:    sink,
		scratch: make([]byte, 0, 64),
	}
	if err := xw.StartDoc(xmlwriter.Doc{}); err != nil {
		_ = w.Abort()
		return nil, wrap("start document", err)
	}
	return w, nil
}

// Begin opens a child element of the current element
func (w *Writer) Begin(name string) error {
	return wrap("begin", w.xw.StartElem(xmlwriter.Elem{Name: name}))
}

// End closes the innermost open element
func (w *Writer) End() error {
	return wrap("end", w.xw.EndElem())
}

// AttrBool writes "true" or "false"
func (w *Writer) AttrBool(name string, v bool) error {
	value := "false"
	if v {
		value = "true"
	}
	return wrap("attribute:bool", w.xw.WriteAttr(xmlwriter.Attr{Name: name, Value: value}))
}

// AttrInt32 writes a decimal integer
func (w *Writer) AttrInt32(name string, v int32) error {
	w.scratch = strconv.AppendInt(w.scratch[:0], int64(v), 10)
	return wrap("attribute:int32", w.xw.WriteAttr(xmlwriter.Attr{Name: name, Value: string(w.scratch)}))
}

// AttrInt64 writes a decimal integer
func (w *Writer) AttrInt64(name string, v int64) error {
	w.scratch = strconv.AppendInt(w.scratch[:0], v, 10)
	return wrap("attribute:int64", w.xw.WriteAttr(xmlwriter.Attr{Name: name, Value: string(w.scratch)}))
}

// AttrFloat writes v with exactly seven decimal places
func (w *Writer) AttrFloat(name string, v float64) error {
	w.scratch = strconv.AppendFloat(w.scratch[:0], v, 'f', 7, 64)
	return wrap("attribute:double", w.xw.WriteAttr(xmlwriter.Attr{Name: name, Value: string(w.scratch)}))
}

// AttrTime writes t as YYYY-MM-DDTHH:MM:SSZ. The zero time writes an empty
// value; callers are expected to skip the attribute instead.
func (w *Writer) AttrTime(name string, t time.Time) error {
	w.scratch = AppendTime(w.scratch[:0], t)
	return wrap("attribute:timestamp", w.xw.WriteAttr(xmlwriter.Attr{Name: name, Value: string(w.scratch)}))
}

// AttrString writes a sanitized string value
func (w *Writer) AttrString(name, v string) error {
	return wrap("attribute:string", w.xw.WriteAttr(xmlwriter.Attr{Name: name, Value: Sanitize(v)}))
}

// Text writes sanitized character data into the current element. Carriage
// returns are written as &#13; so a parser does not fold CRLF into LF.
func (w *Writer) Text(v string) error {
	v = Sanitize(v)
	for {
		i := strings.IndexByte(v, '\r')
		if i < 0 {
			return wrap("text", w.xw.WriteText(v))
		}
		// the text node closes the start tag before the raw reference
		if err := w.xw.WriteText(v[:i]); err != nil {
			return wrap("text", err)
		}
		if err := w.xw.WriteRaw("&#13;"); err != nil {
			return wrap("text", err)
		}
		v = v[i+1:]
	}
}

// Finish closes every open element, flushes and closes the sink. The sink
// is closed even if ending the document fails; all errors are returned.
func (w *Writer) Finish() error {
	if w.done {
		return nil
	}
	w.done = true

	var result *multierror.Error
	if err := w.xw.EndAllFlush(); err != nil {
		result = multierror.Append(result, wrap("end document", err))
	}
	if err := w.sink.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Abort closes the sink without finishing the document. Used on the error
// path so the compressor process is not left behind.
func (w *Writer) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	return w.sink.Close()
}
