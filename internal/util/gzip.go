// internal/util/gzip.go
// Transparent gzip framing helper shared by the HTTP transport (response
// bodies) and the naming listener's UDP push receiver (datagram payloads),
// grounded on the original Rust client's Utils::gz_encode/gz_decode
// (examples/src/gz_encode_decode.rs).
package util

import (
	"bytes"
	"compress/gzip"
	"io"
)

// gzMagic is the two-byte gzip header used to detect framed payloads.
var gzMagic = [2]byte{0x1F, 0x8B}

// GzEncode gzip-compresses b at the given compression level (any level
// gzip.NewWriterLevel accepts, -2 to 9; other levels fall back to
// gzip.DefaultCompression).
func GzEncode(b []byte, level int) []byte {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		w = gzip.NewWriter(&buf)
	}
	_, _ = w.Write(b)
	_ = w.Close()
	return buf.Bytes()
}

// GzDecode transparently decodes b if it is gzip-framed (leading 1F 8B
// magic bytes), returning b unchanged otherwise.
func GzDecode(b []byte) []byte {
	if len(b) < 2 || b[0] != gzMagic[0] || b[1] != gzMagic[1] {
		return b
	}
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return b
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return b
	}
	return out
}
