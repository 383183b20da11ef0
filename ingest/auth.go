package ingest

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

// Authenticate checks the request credentials against secret. Either a
// "Authorization: Bearer <secret>" header or an "apikey: <secret>" header is
// enough. An empty secret fails closed with ErrConfiguration.
func Authenticate(secret string, header http.Header) error {
	if secret == "" {
		return fmt.Errorf("%w: INGEST_SECRET_KEY is not set", ErrConfiguration)
	}
	if token, ok := strings.CutPrefix(header.Get("Authorization"), "Bearer "); ok && equal(token, secret) {
		return nil
	}
	if equal(header.Get("apikey"), secret) {
		return nil
	}
	return ErrUnauthorized
}

func equal(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
