// Package decompress implements the write-ingress decompression stage. It
// inspects the Content-Encoding hint of an incoming request, inflates the
// body with the matching decoder, and enforces a hard cap on the decoded
// size so that a small compressed payload cannot expand without bound.
package decompress

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	apperrors "github.com/meridian-search/meridian/pkg/errors"
)

// Algorithm is the closed set of supported content encodings.
type Algorithm int

const (
	// Identity means the body is already uncompressed.
	Identity Algorithm = iota
	Gzip
	Brotli
	Zstd
)

func (a Algorithm) String() string {
	switch a {
	case Identity:
		return "identity"
	case Gzip:
		return "gzip"
	case Brotli:
		return "br"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", int(a))
	}
}

// Config bounds the decompression stage. MaxDecodedBytes must be positive;
// there is deliberately no way to request an unbounded decode.
type Config struct {
	MaxDecodedBytes   int64
	BrotliBufferBytes int
}

// DefaultBrotliBufferBytes is the brotli read-buffer size used when the
// config leaves it zero.
const DefaultBrotliBufferBytes = 4096

// ParseContentEncoding maps a Content-Encoding header value to an Algorithm.
// The empty string means the body is raw. Matching is exact and
// case-sensitive; anything unrecognised is an unsupported-algorithm error.
func ParseContentEncoding(hint string) (Algorithm, error) {
	switch hint {
	case "":
		return Identity, nil
	case "gzip":
		return Gzip, nil
	case "br":
		return Brotli, nil
	case "zstd":
		return Zstd, nil
	default:
		return Identity, fmt.Errorf("%w: %q", apperrors.ErrUnsupportedEncoding, hint)
	}
}

// Decode inflates body according to the Content-Encoding hint and returns the
// decoded bytes. Decoders are instantiated per call; no state is shared
// between requests. Failures map to exactly one of the sentinel errors
// ErrUnsupportedEncoding, ErrMalformedBody, or ErrPayloadTooLarge.
func Decode(cfg Config, hint string, body io.Reader) ([]byte, error) {
	algorithm, err := ParseContentEncoding(hint)
	if err != nil {
		return nil, err
	}

	switch algorithm {
	case Identity:
		return readBounded(body, cfg.MaxDecodedBytes, false)
	case Gzip:
		reader, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedBody, err)
		}
		defer reader.Close()
		return readBounded(reader, cfg.MaxDecodedBytes, true)
	case Brotli:
		bufSize := cfg.BrotliBufferBytes
		if bufSize <= 0 {
			bufSize = DefaultBrotliBufferBytes
		}
		reader := brotli.NewReader(bufio.NewReaderSize(body, bufSize))
		return readBounded(reader, cfg.MaxDecodedBytes, true)
	case Zstd:
		decoder, err := zstd.NewReader(body, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedBody, err)
		}
		defer decoder.Close()
		return readBounded(decoder, cfg.MaxDecodedBytes, true)
	default:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedEncoding, algorithm)
	}
}

// readBounded drains r into a growing buffer, aborting as soon as more than
// max bytes have been produced. The extra byte of headroom lets us tell
// "exactly max" apart from "over max" without reading the whole expansion.
func readBounded(r io.Reader, max int64, decoding bool) ([]byte, error) {
	limited := io.LimitReader(r, max+1)
	var buf bytes.Buffer
	n, err := buf.ReadFrom(limited)
	if err != nil {
		if decoding {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedBody, err)
		}
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	if n > max {
		return nil, fmt.Errorf("%w: decoded size exceeds %d bytes", apperrors.ErrPayloadTooLarge, max)
	}
	return buf.Bytes(), nil
}
