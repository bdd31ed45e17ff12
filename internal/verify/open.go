package verify

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

type fileReader struct {
	io.Reader
	closers []io.Closer
}

func (f *fileReader) Close() error {
	var first error
	for i := len(f.closers) - 1; i >= 0; i-- {
		if err := f.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenFile opens a planet file, decompressing .gz and .bz2 by suffix
func OpenFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open planet file: %w", err)
	}
	r := &fileReader{Reader: bufio.NewReaderSize(f, 1<<20), closers: []io.Closer{f}}

	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(r.Reader)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		r.Reader = gz
		r.closers = append(r.closers, gz)
	case strings.HasSuffix(path, ".bz2"):
		r.Reader = bzip2.NewReader(r.Reader)
	}
	return r, nil
}
