// Package id generates compact random identifiers for aggregates and runs.
package id

import (
	"encoding/base32"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a lowercase base32-encoded UUIDv4 without padding.
//
// The 26-character form sorts and reads better than canonical UUID syntax in
// file paths and log lines while keeping the same 128 bits of randomness.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ToLower(encoding.EncodeToString(value[:])), nil
}
