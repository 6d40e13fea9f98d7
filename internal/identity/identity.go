// Package identity generates and parses agent identifiers.
//
// An agent ID is the agent's chosen name followed by a dash and eight
// lowercase hex characters drawn from crypto/rand, e.g. "bobby-3f9a01c2".
// The suffix keeps IDs unique across a few hundred concurrent agents that
// may share a name.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// SuffixLen is the number of hex characters appended to a name.
const SuffixLen = 8

// MaxNameLen is the longest name an agent may register under.
const MaxNameLen = 64

// ErrInvalidName is returned for names that cannot be embedded in a bus
// subject token.
var ErrInvalidName = errors.New("name must start with a letter or digit and contain only letters, digits, '-' or '_' (max 64 characters)")

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ValidateName checks that name is safe to use as the prefix of an ID.
// Spaces, dots and the subject wildcards '*' and '>' are rejected.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("identity: name is required")
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("identity: %q: %w", name, ErrInvalidName)
	}
	return nil
}

// Generate creates a new ID for name in <name>-xxxxxxxx format.
func Generate(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	b := make([]byte, SuffixLen/2)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("identity: generate ID: %w", err)
	}
	return name + "-" + hex.EncodeToString(b), nil
}

// Valid reports whether id ends in a generated suffix with a non-empty name
// before it.
func Valid(id string) bool {
	_, ok := split(id)
	return ok
}

// ShortName returns the portion of id preceding the generated suffix. IDs
// without a generated suffix are returned unchanged.
func ShortName(id string) string {
	if name, ok := split(id); ok {
		return name
	}
	return id
}

func split(id string) (string, bool) {
	i := len(id) - SuffixLen - 1
	if i < 1 || id[i] != '-' {
		return "", false
	}
	for _, c := range id[i+1:] {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", false
		}
	}
	return id[:i], true
}
