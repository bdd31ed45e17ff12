package xmlout

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufferSink struct {
	bytes.Buffer
	closes int
}

func (s *bufferSink) Close() error {
	s.closes++
	return nil
}

// brokenSink accepts limit bytes then fails every write
type brokenSink struct {
	limit    int
	n        int
	closes   int
	closeErr error
}

func (s *brokenSink) Write(p []byte) (int, error) {
	if s.n+len(p) > s.limit {
		room := s.limit - s.n
		s.n = s.limit
		return room, &WriteError{Wanted: len(p), Written: room}
	}
	s.n += len(p)
	return len(p), nil
}

func (s *brokenSink) Close() error {
	s.closes++
	return s.closeErr
}

func TestWriterDocument(t *testing.T) {
	sink := &bufferSink{}
	w, err := NewWriter(sink)
	require.NoError(t, err)

	ts := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, w.Begin("root"))
	require.NoError(t, w.AttrString("name", "a \"quoted\" <value> & more"))
	require.NoError(t, w.AttrBool("flag", true))
	require.NoError(t, w.AttrBool("other", false))
	require.NoError(t, w.AttrInt32("small", -42))
	require.NoError(t, w.AttrInt64("big", 9_000_000_000))
	require.NoError(t, w.AttrFloat("lat", 51.5))
	require.NoError(t, w.AttrTime("when", ts))
	require.NoError(t, w.Begin("child"))
	require.NoError(t, w.AttrString("ctl", "bad\x01byte\ttab"))
	require.NoError(t, w.End())
	require.NoError(t, w.Begin("text"))
	require.NoError(t, w.Text("line one\nline\x02two"))
	require.NoError(t, w.End())
	require.NoError(t, w.Finish())

	assert.Equal(t, 1, sink.closes)
	out := sink.String()
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`), out)
	assert.Contains(t, out, `flag="true"`)
	assert.Contains(t, out, `lat="51.5000000"`)
	assert.Contains(t, out, `when="2024-01-15T12:00:00Z"`)

	var doc struct {
		Name  string `xml:"name,attr"`
		Flag  bool   `xml:"flag,attr"`
		Small int32  `xml:"small,attr"`
		Big   int64  `xml:"big,attr"`
		Child struct {
			Ctl string `xml:"ctl,attr"`
		} `xml:"child"`
		Text string `xml:"text"`
	}
	require.NoError(t, xml.Unmarshal(sink.Bytes(), &doc))
	assert.Equal(t, "a \"quoted\" <value> & more", doc.Name)
	assert.True(t, doc.Flag)
	assert.Equal(t, int32(-42), doc.Small)
	assert.Equal(t, int64(9_000_000_000), doc.Big)
	assert.Equal(t, "bad?byte\ttab", doc.Child.Ctl)
	assert.Equal(t, "line one\nline?two", doc.Text)
}

func TestWriterTextKeepsCarriageReturns(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"crlf", "line1\r\nline2"},
		{"leading", "\rstart"},
		{"trailing", "end\r"},
		{"repeated", "a\r\rb"},
		{"only", "\r"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &bufferSink{}
			w, err := NewWriter(sink)
			require.NoError(t, err)
			require.NoError(t, w.Begin("comment"))
			require.NoError(t, w.Begin("text"))
			require.NoError(t, w.Text(tt.body))
			require.NoError(t, w.End())
			require.NoError(t, w.End())
			require.NoError(t, w.Finish())

			out := sink.String()
			assert.NotContains(t, out, "\r")
			assert.Contains(t, out, "<text>"+strings.ReplaceAll(tt.body, "\r", "&#13;")+"</text>")

			var doc struct {
				Text string `xml:"text"`
			}
			require.NoError(t, xml.Unmarshal(sink.Bytes(), &doc))
			assert.Equal(t, tt.body, doc.Text)
		})
	}
}

func TestWriterFinishTwice(t *testing.T) {
	sink := &bufferSink{}
	w, err := NewWriter(sink)
	require.NoError(t, err)
	require.NoError(t, w.Begin("osm"))

	require.NoError(t, w.Finish())
	require.NoError(t, w.Finish())
	require.NoError(t, w.Abort())
	assert.Equal(t, 1, sink.closes)
}

func TestWriterSurfacesSinkFailure(t *testing.T) {
	sink := &brokenSink{limit: 100}
	w, err := NewWriter(sink, WithBufferSize(16))
	require.NoError(t, err)

	require.NoError(t, w.Begin("osm"))
	var failure error
	for i := 0; i < 1000 && failure == nil; i++ {
		if err := w.Begin("node"); err != nil {
			failure = err
			break
		}
		if err := w.AttrInt64("id", int64(i)); err != nil {
			failure = err
			break
		}
		failure = w.End()
	}
	require.Error(t, failure)

	var xerr *XMLWriteError
	require.True(t, errors.As(failure, &xerr))
	assert.NotEmpty(t, xerr.Op)

	var werr *WriteError
	assert.True(t, errors.As(failure, &werr), "underlying sink error must be preserved: %v", failure)

	require.NoError(t, w.Abort())
	assert.Equal(t, 1, sink.closes)
}

func TestWriterFinishClosesSinkOnFlushError(t *testing.T) {
	closeErr := errors.New("compressor died")
	sink := &brokenSink{limit: 10, closeErr: closeErr}
	w, err := NewWriter(sink)
	require.NoError(t, err)
	require.NoError(t, w.Begin("osm"))
	require.NoError(t, w.AttrString("generator", strings.Repeat("x", 200)))

	err = w.Finish()
	require.Error(t, err)
	assert.Equal(t, 1, sink.closes, "sink must be closed even though the flush failed")
	assert.ErrorIs(t, err, closeErr)

	var xerr *XMLWriteError
	require.True(t, errors.As(err, &xerr))
	assert.Equal(t, "end document", xerr.Op)
}

func TestWriterRejectsUnbalancedEnd(t *testing.T) {
	sink := &bufferSink{}
	w, err := NewWriter(sink)
	require.NoError(t, err)

	err = w.End()
	var xerr *XMLWriteError
	require.True(t, errors.As(err, &xerr))
	assert.Equal(t, "end", xerr.Op)
	require.NoError(t, w.Abort())
}
