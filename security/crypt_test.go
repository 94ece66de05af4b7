package security

import (
	"bytes"
	"testing"
)

func TestCryptInfo_NilIsIdentity(t *testing.T) {
	var ci *CryptInfo
	data := []byte("plain")
	if !bytes.Equal(ci.EncryptBytes(1, 0, data), data) {
		t.Fatal("nil CryptInfo must pass bytes through")
	}
	if !bytes.Equal(ci.DecryptBytes(1, 0, data), data) {
		t.Fatal("nil CryptInfo must pass bytes through")
	}
}

func TestNoopHandler(t *testing.T) {
	h := NoopHandler()
	if h.IsEncrypted() {
		t.Fatal("noop handler reports encrypted")
	}
	if err := h.Authenticate("anything"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Info() != nil {
		t.Fatal("noop handler must carry no crypt info")
	}
}

func TestHandlerBuilder_NoFilter(t *testing.T) {
	h, err := (&HandlerBuilder{}).Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.IsEncrypted() {
		t.Fatal("expected unencrypted handler")
	}
}

func TestHandlerBuilder_UnsupportedFilter(t *testing.T) {
	if _, err := (&HandlerBuilder{}).WithFilter("Custom").Build(); err == nil {
		t.Fatal("expected error for non-standard filter")
	}
}

func rc4Handler(t *testing.T) *standardHandler {
	t.Helper()
	h, err := (&HandlerBuilder{}).
		WithFilter("Standard").
		WithVersion(2, 3).
		WithLength(128).
		WithOwnerEntry(make([]byte, 32)).
		WithUserEntry(nil). // damaged entry: authentication accepts
		WithPermissions(-4).
		WithFileID([]byte("0123456789abcdef")).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	std, ok := h.(*standardHandler)
	if !ok {
		t.Fatalf("got %T", h)
	}
	if err := std.Authenticate(""); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	return std
}

func TestStandardHandler_RC4RoundTrip(t *testing.T) {
	h := rc4Handler(t)
	ci := h.Info()
	plain := []byte("stream payload bytes")
	enc := ci.EncryptBytes(7, 0, plain)
	if bytes.Equal(enc, plain) {
		t.Fatal("encryption was identity")
	}
	dec := ci.DecryptBytes(7, 0, enc)
	if !bytes.Equal(dec, plain) {
		t.Fatalf("round trip: got %q", dec)
	}
}

func TestStandardHandler_KeyVariesPerObject(t *testing.T) {
	h := rc4Handler(t)
	ci := h.Info()
	plain := []byte("same bytes")
	a := ci.EncryptBytes(1, 0, plain)
	b := ci.EncryptBytes(2, 0, plain)
	if bytes.Equal(a, b) {
		t.Fatal("object key must vary with the object number")
	}
}

func TestStandardHandler_AESRoundTrip(t *testing.T) {
	h, err := (&HandlerBuilder{}).
		WithFilter("Standard").
		WithVersion(4, 4).
		WithLength(128).
		WithOwnerEntry(make([]byte, 32)).
		WithPermissions(-4).
		WithFileID([]byte("0123456789abcdef")).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.Authenticate(""); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	ci := h.Info()
	plain := []byte("an AES encrypted stream body")
	enc := ci.EncryptBytes(3, 0, plain)
	if bytes.Equal(enc, plain) || len(enc)%16 != 0 {
		t.Fatalf("unexpected ciphertext shape: %d bytes", len(enc))
	}
	dec := ci.DecryptBytes(3, 0, enc)
	if !bytes.Equal(dec, plain) {
		t.Fatalf("round trip: got %q", dec)
	}
}

func TestBuilder_RejectsBadLength(t *testing.T) {
	_, err := (&HandlerBuilder{}).WithFilter("Standard").WithVersion(2, 3).WithLength(42).Build()
	if err == nil {
		t.Fatal("expected error for length not a multiple of 8")
	}
}
