// Package directory resolves a user-supplied agent reference (an exact ID or
// a bare name) against a presence snapshot.
package directory

import (
	"errors"

	"github.com/zulandar/switchboard/internal/models"
)

// ErrNotFound is returned when no candidate matches a reference.
var ErrNotFound = errors.New("directory: agent not found")

// Matches returns every candidate the reference could mean: the single
// exact-ID match if one exists, otherwise all candidates whose Name equals
// reference.
func Matches(reference string, candidates []models.Agent) []models.Agent {
	if reference == "" {
		return nil
	}
	for _, c := range candidates {
		if c.ID == reference {
			return []models.Agent{c}
		}
	}
	var out []models.Agent
	for _, c := range candidates {
		if c.Name == reference {
			out = append(out, c)
		}
	}
	return out
}

// Resolve picks one agent for reference. An exact ID match wins; otherwise
// the name match with the most recent LastSeen is chosen, ties going to the
// later registration.
func Resolve(reference string, candidates []models.Agent) (*models.Agent, error) {
	matches := Matches(reference, candidates)
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	best := matches[0]
	for _, m := range matches[1:] {
		if newer(m, best) {
			best = m
		}
	}
	return &best, nil
}

func newer(a, b models.Agent) bool {
	if !a.LastSeen.Equal(b.LastSeen) {
		return a.LastSeen.After(b.LastSeen)
	}
	return a.Seq > b.Seq
}
