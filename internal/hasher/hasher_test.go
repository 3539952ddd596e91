package hasher

import (
	"strings"
	"testing"
)

func TestContentHash(t *testing.T) {
	a := ContentHash([]byte("hello"), 16)
	if len(a) != 16 {
		t.Fatalf("len = %d, want 16", len(a))
	}
	if a != ContentHash([]byte("hello"), 16) {
		t.Fatal("hash is not deterministic")
	}
	if a == ContentHash([]byte("hellp"), 16) {
		t.Fatal("different inputs share a hash")
	}
	if got := ContentHash([]byte("hello"), 8); got != a[:8] {
		t.Fatalf("truncated = %s, want %s", got, a[:8])
	}
}

func TestDigest(t *testing.T) {
	d, err := Digest([]byte("abc"), AlgoSHA256)
	if err != nil {
		t.Fatal(err)
	}
	want := "sha256:ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if d != want {
		t.Fatalf("got %s, want %s", d, want)
	}

	b, err := Digest([]byte("abc"), "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(b, "blake3:") || len(b) != len("blake3:")+64 {
		t.Fatalf("unexpected blake3 digest %q", b)
	}

	if _, err := Digest(nil, "md5"); err == nil {
		t.Fatal("expected error for unsupported algorithm")
	}
}
