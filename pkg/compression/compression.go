// Package compression provides zstd for query payloads: a gRPC compressor
// registered as "zstd" and whole-body helpers for HTTP.
package compression

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/grpc/encoding"
	_ "google.golang.org/grpc/encoding/gzip"
)

const (
	Zstd = "zstd"
	Gzip = "gzip"
	None = "none"
)

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	decoderOnce sync.Once
	decoder     *zstd.Decoder
)

func sharedEncoder() *zstd.Encoder {
	encoderOnce.Do(func() {
		// A nil writer is valid when only EncodeAll is used.
		encoder, _ = zstd.NewWriter(nil)
	})
	return encoder
}

func sharedDecoder() *zstd.Decoder {
	decoderOnce.Do(func() {
		decoder, _ = zstd.NewReader(nil)
	})
	return decoder
}

// Compress zstd-encodes a whole body.
func Compress(data []byte) []byte {
	return sharedEncoder().EncodeAll(data, make([]byte, 0, len(data)/2))
}

func Decompress(data []byte) ([]byte, error) {
	out, err := sharedDecoder().DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress zstd body: %w", err)
	}
	return out, nil
}

// Accepts reports whether an Accept-Encoding header lists zstd.
func Accepts(acceptEncoding string) bool {
	for _, part := range strings.Split(acceptEncoding, ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(name, Zstd) {
			return true
		}
	}
	return false
}

// Valid reports whether name is a supported gRPC compression setting.
func Valid(name string) bool {
	switch name {
	case "", None, Zstd, Gzip:
		return true
	}
	return false
}

func init() {
	encoding.RegisterCompressor(grpcCompressor{})
}

type grpcCompressor struct{}

func (grpcCompressor) Name() string {
	return Zstd
}

func (grpcCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	return zw, nil
}

func (grpcCompressor) Decompress(r io.Reader) (io.Reader, error) {
	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	return &closingReader{zr: zr}, nil
}

// closingReader releases the decoder once the message has been read.
type closingReader struct {
	zr *zstd.Decoder
}

func (c *closingReader) Read(p []byte) (int, error) {
	n, err := c.zr.Read(p)
	if err == io.EOF {
		c.zr.Close()
	}
	return n, err
}
