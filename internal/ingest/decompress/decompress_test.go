package decompress

import (
	"bytes"
	"errors"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	apperrors "github.com/meridian-search/meridian/pkg/errors"
)

func testConfig() Config {
	return Config{MaxDecodedBytes: 1 << 20, BrotliBufferBytes: 4096}
}

func gzipCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func brotliCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("brotli write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("brotli close: %v", err)
	}
	return buf.Bytes()
}

func zstdCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("zstd write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}
	return buf.Bytes()
}

func TestPassThrough(t *testing.T) {
	body := []byte(`{}`)
	decoded, err := Decode(testConfig(), "", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(decoded, body) {
		t.Fatalf("expected %q, got %q", body, decoded)
	}
}

func TestGzipRoundTrip(t *testing.T) {
	body := []byte("hello")
	decoded, err := Decode(testConfig(), "gzip", bytes.NewReader(gzipCompress(t, body)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(decoded, body) {
		t.Fatalf("expected %q, got %q", body, decoded)
	}
}

func TestBrotliRoundTrip(t *testing.T) {
	body := bytes.Repeat([]byte("segment metadata "), 500)
	decoded, err := Decode(testConfig(), "br", bytes.NewReader(brotliCompress(t, body)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(decoded, body) {
		t.Fatalf("decoded body does not match original (%d vs %d bytes)", len(decoded), len(body))
	}
}

func TestZstdRoundTrip(t *testing.T) {
	body := bytes.Repeat([]byte("0123456789"), 1000)
	decoded, err := Decode(testConfig(), "zstd", bytes.NewReader(zstdCompress(t, body)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(decoded, body) {
		t.Fatalf("decoded body does not match original (%d vs %d bytes)", len(decoded), len(body))
	}
}

func TestUnsupportedAlgorithm(t *testing.T) {
	// The set of recognised encodings is closed and matching is exact.
	for _, hint := range []string{"deflate", "GZIP", "Br", "zstd ", "lz4", "identity"} {
		_, err := Decode(testConfig(), hint, bytes.NewReader([]byte("data")))
		if !errors.Is(err, apperrors.ErrUnsupportedEncoding) {
			t.Errorf("hint %q: expected ErrUnsupportedEncoding, got %v", hint, err)
		}
	}
}

func TestMalformedBody(t *testing.T) {
	garbage := []byte("definitely not compressed")
	truncatedGzip := gzipCompress(t, bytes.Repeat([]byte("x"), 4096))
	truncatedGzip = truncatedGzip[:len(truncatedGzip)/2]

	cases := []struct {
		name string
		hint string
		body []byte
	}{
		{"gzip garbage", "gzip", garbage},
		{"gzip truncated", "gzip", truncatedGzip},
		{"brotli garbage", "br", garbage},
		{"zstd garbage", "zstd", garbage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(testConfig(), tc.hint, bytes.NewReader(tc.body))
			if !errors.Is(err, apperrors.ErrMalformedBody) {
				t.Fatalf("expected ErrMalformedBody, got %v", err)
			}
		})
	}
}

func TestPayloadTooLarge(t *testing.T) {
	cfg := Config{MaxDecodedBytes: 16384, BrotliBufferBytes: 4096}
	big := bytes.Repeat([]byte("a"), 32*1024)

	cases := []struct {
		name string
		hint string
		body []byte
	}{
		{"brotli bomb", "br", brotliCompress(t, big)},
		{"gzip bomb", "gzip", gzipCompress(t, big)},
		{"zstd bomb", "zstd", zstdCompress(t, big)},
		{"oversized raw body", "", big},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(cfg, tc.hint, bytes.NewReader(tc.body))
			if !errors.Is(err, apperrors.ErrPayloadTooLarge) {
				t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
			}
		})
	}
}

func TestDecodedSizeExactlyAtCap(t *testing.T) {
	body := bytes.Repeat([]byte("b"), 16384)
	cfg := Config{MaxDecodedBytes: 16384, BrotliBufferBytes: 4096}
	decoded, err := Decode(cfg, "gzip", bytes.NewReader(gzipCompress(t, body)))
	if err != nil {
		t.Fatalf("unexpected error at exact cap: %v", err)
	}
	if len(decoded) != 16384 {
		t.Fatalf("expected %d bytes, got %d", 16384, len(decoded))
	}
}

func TestParseContentEncoding(t *testing.T) {
	cases := []struct {
		hint string
		want Algorithm
	}{
		{"", Identity},
		{"gzip", Gzip},
		{"br", Brotli},
		{"zstd", Zstd},
	}
	for _, tc := range cases {
		got, err := ParseContentEncoding(tc.hint)
		if err != nil {
			t.Fatalf("hint %q: unexpected error: %v", tc.hint, err)
		}
		if got != tc.want {
			t.Errorf("hint %q: expected %v, got %v", tc.hint, tc.want, got)
		}
	}
}
