package session

import (
	"errors"
	"testing"
	"time"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	return c
}

func TestGuestRoundTrip(t *testing.T) {
	c := newTestCodec(t)

	g := &Guest{IssuedAt: time.Now().UTC()}
	g.AddToken("token-a")
	g.AddToken("token-b")

	encoded, err := c.Encode(g)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var got Guest
	if err := c.Decode(encoded, &got); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !got.HasToken("token-a") || !got.HasToken("token-b") {
		t.Errorf("decoded session lost tokens: %+v", got)
	}
	if got.HasToken("token-c") {
		t.Error("HasToken true for absent token")
	}
}

func TestAddTokenIdempotent(t *testing.T) {
	g := &Guest{}
	g.AddToken("tok")
	g.AddToken("tok")
	if len(g.AuthenticatedTokens) != 1 {
		t.Errorf("expected 1 token, got %d", len(g.AuthenticatedTokens))
	}
}

func TestInternalRoundTrip(t *testing.T) {
	c := newTestCodec(t)

	encoded, err := c.Encode(&Internal{UserID: "alice", Admin: true, IssuedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var got Internal
	if err := c.Decode(encoded, &got); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.UserID != "alice" || !got.Admin {
		t.Errorf("decoded session mismatch: %+v", got)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	c := newTestCodec(t)

	for _, input := range []string{"", "not-base64!!!", "YWJjZA=="} {
		var g Guest
		if err := c.Decode(input, &g); !errors.Is(err, ErrInvalidSession) {
			t.Errorf("Decode(%q) = %v, want ErrInvalidSession", input, err)
		}
	}
}

func TestDecodeRejectsOtherSecret(t *testing.T) {
	a := newTestCodec(t)
	b, err := NewCodec("different-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}

	encoded, _ := a.Encode(&Guest{AuthenticatedTokens: []string{"tok"}})

	var g Guest
	if err := b.Decode(encoded, &g); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession, got %v", err)
	}
}
