package drift

import (
	"errors"
	"fmt"

	"github.com/sahilm/fuzzy"
)

var (
	// ErrNoCandidates means no deployment name resembles the query.
	ErrNoCandidates = errors.New("no matching deployments")
	// ErrAborted means the operator declined the offered candidate.
	ErrAborted = errors.New("aborted")
)

// Chooser asks the operator to pick between candidate deployments.
type Chooser interface {
	Confirm(message string) (bool, error)
	Choose(message string, options []string) (string, error)
}

// Candidates ranks names by fuzzy similarity to query, best first. Names
// that do not match at all are left out.
func Candidates(query string, names []string) []string {
	matches := fuzzy.Find(query, names)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Str)
	}
	return out
}

// Resolve narrows names to the one the operator meant by query. A single
// candidate is confirmed, several are offered as a choice.
func Resolve(query string, names []string, chooser Chooser) (string, error) {
	candidates := Candidates(query, names)
	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("%w for %q", ErrNoCandidates, query)
	case 1:
		ok, err := chooser.Confirm(fmt.Sprintf("%q not found. Did you mean %q?", query, candidates[0]))
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ErrAborted
		}
		return candidates[0], nil
	default:
		choice, err := chooser.Choose(fmt.Sprintf("%q not found. Select a deployment:", query), candidates)
		if err != nil {
			return "", err
		}
		return choice, nil
	}
}
