package util

import (
	"bytes"
	"testing"
	"testing/quick"
)

func TestRoundTrip(t *testing.T) {
	f := func(b []byte) bool {
		enc := GzEncode(b, 1)
		dec := GzDecode(enc)
		return bytes.Equal(b, dec)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}

func TestDecodeNonGzipPassesThrough(t *testing.T) {
	plain := []byte("not gzipped")
	if got := GzDecode(plain); !bytes.Equal(got, plain) {
		t.Fatalf("expected passthrough for non-gzip data, got %v", got)
	}
}
