package signing

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestSigner(t *testing.T) {
	s := NewSigner([]byte("topsecret"), 5*time.Minute)
	sig := s.Sign(42, 1700000000)
	if len(sig) == 0 {
		t.Fatalf("expected signature")
	}
	s.now = func() time.Time { return time.Unix(1699999000, 0) }
	if err := s.Verify(42, "1700000000", sig); err != nil {
		t.Fatalf("expected signature to validate: %v", err)
	}
	if err := s.Verify(43, "1700000000", sig); err != ErrInvalidSignature {
		t.Fatalf("expected validation to fail for wrong document id, got %v", err)
	}
	if err := s.Verify(42, "42", sig); err != ErrInvalidSignature {
		t.Fatalf("expected validation to fail for wrong expiry, got %v", err)
	}
	if err := s.Verify(42, "soon", sig); err != ErrInvalidSignature {
		t.Fatalf("expected validation to fail for malformed expiry, got %v", err)
	}
}

func TestSignerExpiry(t *testing.T) {
	s := NewSigner([]byte("topsecret"), time.Minute)
	start := time.Unix(1700000000, 0)
	s.now = func() time.Time { return start }
	link := s.URL("/documents/file/7/", 7)
	if !strings.HasPrefix(link, "/documents/file/7/?") {
		t.Fatalf("unexpected link %q", link)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	q := u.Query()
	if err := s.Verify(7, q.Get("expires"), q.Get("signature")); err != nil {
		t.Fatalf("fresh link rejected: %v", err)
	}
	s.now = func() time.Time { return start.Add(2 * time.Minute) }
	if err := s.Verify(7, q.Get("expires"), q.Get("signature")); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}
