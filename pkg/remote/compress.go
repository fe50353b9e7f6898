package remote

import (
	"bufio"
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// nopWriteCloser lets uncompressed streams share the compressed path.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// newStreamWriter wraps w with zstd compression when compress is set. Close
// flushes the compressor but never closes w.
func newStreamWriter(w io.Writer, compress bool) (io.WriteCloser, error) {
	if !compress {
		return nopWriteCloser{w}, nil
	}
	return zstd.NewWriter(w)
}

// newStreamReader detects a zstd stream by its magic number and
// decompresses it. Plain streams pass through.
func newStreamReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(zstdMagic))
	if err != nil && err != io.EOF {
		return nil, err
	}
	if !bytes.Equal(head, zstdMagic) {
		return io.NopCloser(br), nil
	}
	dec, err := zstd.NewReader(br)
	if err != nil {
		return nil, err
	}
	return &zstdReadCloser{dec: dec}, nil
}

type zstdReadCloser struct {
	dec *zstd.Decoder
}

func (z *zstdReadCloser) Read(p []byte) (int, error) {
	return z.dec.Read(p)
}

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return nil
}
