package ticket

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// The three patterns for ticket keys live here and nowhere else:
// exact ids ("ENG-42"), ids embedded in branch names
// ("feature/eng-42-login"), and bare prefixes used for repository routing.
var (
	idPattern       = regexp.MustCompile(`(?i)^([A-Z]+)-(\d+)$`)
	embeddedPattern = regexp.MustCompile(`(?i)([A-Z]+-\d+)`)
	prefixPattern   = regexp.MustCompile(`(?i)([A-Z]{2,})-\d+`)
)

// ID is a validated work-tracker ticket key such as "ENG-42".
// The zero value is not a valid ID; construct through Parse or FromBranch.
type ID struct {
	Prefix string // uppercased, e.g. "ENG"
	Number int
}

// Parse validates a bare ticket key. Matching is case-insensitive; the
// returned ID is normalized to uppercase.
func Parse(s string) (ID, error) {
	m := idPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return ID{}, fmt.Errorf("invalid ticket id: %q", s)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return ID{}, fmt.Errorf("invalid ticket number in %q: %w", s, err)
	}
	return ID{Prefix: strings.ToUpper(m[1]), Number: n}, nil
}

// FromBranch extracts the first ticket key embedded in a branch name.
// ok is false when the branch carries no recognizable key.
func FromBranch(branch string) (ID, bool) {
	m := embeddedPattern.FindString(branch)
	if m == "" {
		return ID{}, false
	}
	id, err := Parse(m)
	if err != nil {
		return ID{}, false
	}
	return id, true
}

// PrefixesFromBranches collects the distinct ticket prefixes found across
// a set of branch names, uppercased. Only prefixes of two or more letters
// count, so branch names like "v2-1" don't produce bogus prefixes.
func PrefixesFromBranches(branches []string) []string {
	seen := make(map[string]bool)
	var prefixes []string
	for _, b := range branches {
		for _, m := range prefixPattern.FindAllStringSubmatch(b, -1) {
			p := strings.ToUpper(m[1])
			if !seen[p] {
				seen[p] = true
				prefixes = append(prefixes, p)
			}
		}
	}
	return prefixes
}

// String returns the canonical "PREFIX-NUMBER" form.
func (id ID) String() string {
	return fmt.Sprintf("%s-%d", id.Prefix, id.Number)
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id.Prefix == "" && id.Number == 0
}
