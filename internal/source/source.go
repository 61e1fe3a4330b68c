package source

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"github.com/roach88/loopmerge/internal/ir"
)

// Options restrict what is decoded. Event caps are not applied here; the
// engine's Budget counts events after filtering.
type Options struct {
	// Class drops the excluded stream without decoding it.
	Class ir.EventClass
}

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic = []byte{0x1f, 0x8b}
)

// Load reads the document at path.
func Load(path string, opts Options) (ir.Streams, error) {
	f, err := os.Open(path)
	if err != nil {
		return ir.Streams{}, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	streams, err := Decode(f, opts)
	if err != nil {
		return ir.Streams{}, fmt.Errorf("%s: %w", path, err)
	}
	return streams, nil
}

// Decode reads a document from r, decompressing it first when it starts
// with a zstd or gzip header.
func Decode(r io.Reader, opts Options) (ir.Streams, error) {
	plain, closeFn, err := decompress(r)
	if err != nil {
		return ir.Streams{}, err
	}
	defer closeFn()

	var doc Document
	dec := yaml.NewDecoder(plain)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return ir.Streams{}, nil
		}
		return ir.Streams{}, fmt.Errorf("parse source: %w", err)
	}
	return doc.Streams(opts)
}

// decompress sniffs the header of r and wraps it in the matching decoder.
func decompress(r io.Reader) (io.Reader, func(), error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(zstdMagic))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, nil, fmt.Errorf("read source: %w", err)
	}

	switch {
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("open zstd source: %w", err)
		}
		return zr, zr.Close, nil
	case bytes.HasPrefix(head, gzipMagic):
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("open gzip source: %w", err)
		}
		return gr, func() { gr.Close() }, nil
	default:
		return br, func() {}, nil
	}
}
