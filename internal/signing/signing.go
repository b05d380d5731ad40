// Package signing issues short-lived HMAC signed links to stored PDFs so the
// browser viewer can fetch the file without exposing its object key.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

var (
	// ErrInvalidSignature means the signature does not match the link.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrExpired means the link was valid but its expiry has passed.
	ErrExpired = errors.New("signed link expired")
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a Signer whose links stay valid for ttl.
func NewSigner(secret []byte, ttl time.Duration) *Signer {
	return &Signer{secret: secret, ttl: ttl, now: time.Now}
}

// Sign returns the hex signature for a document id and expiry.
func (s *Signer) Sign(documentID int64, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%d:%d", documentID, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

// URL returns path with expires and signature query parameters attached.
func (s *Signer) URL(path string, documentID int64) string {
	exp := s.now().Add(s.ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(exp, 10))
	q.Set("signature", s.Sign(documentID, exp))
	return path + "?" + q.Encode()
}

// Verify checks a signature and its expiry.
func (s *Signer) Verify(documentID int64, expires, signature string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	expected := s.Sign(documentID, exp)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	if s.now().Unix() > exp {
		return ErrExpired
	}
	return nil
}
