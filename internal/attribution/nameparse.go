package attribution

import (
	"sort"
	"strings"

	"tessera/internal/registry"
	id "tessera/pkg/domain"
)

// Compound tokens like "cityofchicago" show up in portal hostnames; the bare
// place name is recovered by stripping the prefix.
var compoundPrefixes = []string{"cityof", "townof", "countyof", "villageof", "boroughof"}

// nameIndex maps normalized place tokens to the jurisdictions carrying them,
// built from the centroid directory's jurisdiction codes. The terminal code
// segment is the place token: "us/il/chicago" indexes as "chicago",
// "us/ny/new-york" as "new york".
type nameIndex struct {
	tokens  []string
	byToken map[string][]id.JurisdictionID
}

func newNameIndex(dir *registry.CentroidDirectory) *nameIndex {
	byToken := make(map[string][]id.JurisdictionID)
	for _, e := range dir.Entries() {
		segments := strings.Split(e.Jurisdiction.String(), "/")
		token := strings.ReplaceAll(segments[len(segments)-1], "-", " ")
		if token == "" {
			continue
		}
		byToken[token] = append(byToken[token], e.Jurisdiction)
	}

	tokens := make([]string, 0, len(byToken))
	for token := range byToken {
		tokens = append(tokens, token)
	}
	// Longest token first, so "east chicago" beats "chicago"; ties break
	// lexicographically to keep matching deterministic.
	sort.Slice(tokens, func(i, j int) bool {
		if len(tokens[i]) != len(tokens[j]) {
			return len(tokens[i]) > len(tokens[j])
		}
		return tokens[i] < tokens[j]
	})

	return &nameIndex{tokens: tokens, byToken: byToken}
}

// match scans free text for a known place token. A token shared by several
// jurisdictions cannot disambiguate and is skipped in favor of the next.
func (ix *nameIndex) match(text string) (id.JurisdictionID, string, bool) {
	normalized := normalizeFreeText(text)
	if normalized == "" {
		return "", "", false
	}
	for _, token := range ix.tokens {
		if !strings.Contains(normalized, " "+token+" ") {
			continue
		}
		jids := ix.byToken[token]
		if len(jids) == 1 {
			return jids[0], token, true
		}
	}
	return "", "", false
}

// normalizeFreeText lowercases, strips punctuation to spaces, and expands
// compound tokens, returning a space-padded token stream for word-boundary
// matching. Empty input normalizes to "".
func normalizeFreeText(s string) string {
	lower := strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	if len(fields) == 0 {
		return ""
	}
	expanded := make([]string, 0, len(fields))
	for _, f := range fields {
		expanded = append(expanded, f)
		for _, prefix := range compoundPrefixes {
			if rest, ok := strings.CutPrefix(f, prefix); ok && len(rest) >= 3 {
				expanded = append(expanded, rest)
			}
		}
	}
	return " " + strings.Join(expanded, " ") + " "
}
