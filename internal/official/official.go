// Package official estimates whether a domain is the canonical website of
// the organization named in a query, using acronym and word-overlap
// heuristics. The rule is reproducible by construction; false positives and
// negatives are expected and acceptable.
package official

import "strings"

// Threshold is the score at or above which a domain is classified as the
// organization's own site.
const Threshold = 0.5

// Generic organizational terms that carry no identity signal.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "or": {}, "in": {}, "at": {}, "of": {}, "to": {},
	"for": {}, "a": {}, "an": {}, "center": {}, "clinic": {}, "hospital": {},
	"medical": {}, "health": {}, "healthcare": {}, "services": {}, "care": {},
	"treatment": {}, "facility": {},
}

// Healthcare naming conventions that commonly anchor a provider's domain.
// When the base label starts or ends with a term, the word-overlap score is
// raised to at least that term's weight.
var boundaryTerms = []struct {
	term   string
	weight float64
}{
	{"mhr", 0.8},
	{"mhc", 0.8},
	{"bhc", 0.7},
	{"rc", 0.7},
	{"health", 0.6},
	{"recovery", 0.6},
	{"rehab", 0.6},
}

// Score rates how likely domainName is the official site of orgName.
// Exact acronym collision is treated as near-certain identification;
// partial word overlap is a weaker, additive signal. Result is in [0,1].
func Score(domainName, orgName string, significant []string) float64 {
	d := strings.ToLower(strings.TrimSpace(domainName))
	d = strings.TrimPrefix(d, "www.")
	if d == "" || strings.TrimSpace(orgName) == "" {
		return 0
	}
	baseLabel := d
	if i := strings.IndexByte(d, '.'); i >= 0 {
		baseLabel = d[:i]
	}

	acronyms := acronymCandidates(orgWords(orgName))
	for _, a := range acronyms {
		if baseLabel == a || baseLabel == "the"+a {
			return 1.0
		}
	}
	parts := strings.FieldsFunc(d, func(r rune) bool {
		return r == '-' || r == '.' || r == '_'
	})
	for _, a := range acronyms {
		for _, p := range parts {
			if p == a {
				return 0.9
			}
		}
	}

	return boundaryFloor(baseLabel, wordRatio(baseLabel, significant))
}

// IsOfficial applies the classification threshold.
func IsOfficial(domainName, orgName string, significant []string) bool {
	return Score(domainName, orgName, significant) >= Threshold
}

func wordRatio(baseLabel string, significant []string) float64 {
	if len(significant) == 0 {
		return 0
	}
	present := make([]bool, len(significant))
	matched := 0
	for i, w := range significant {
		if w != "" && strings.Contains(baseLabel, strings.ToLower(w)) {
			present[i] = true
			matched++
		}
	}
	ratio := float64(matched) / float64(len(significant))
	for i := 0; i+1 < len(present); i++ {
		if present[i] && present[i+1] {
			ratio += 0.2
		}
	}
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

func boundaryFloor(baseLabel string, ratio float64) float64 {
	for _, b := range boundaryTerms {
		if strings.HasPrefix(baseLabel, b.term) || strings.HasSuffix(baseLabel, b.term) {
			if ratio < b.weight {
				ratio = b.weight
			}
		}
	}
	return ratio
}

func orgWords(orgName string) []string {
	fields := strings.Fields(strings.ToLower(orgName))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?'\"()")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// acronymCandidates builds the acronym set for an organization name:
// initials of all words, initials of non-stop words, the first word itself
// when short enough to already be an acronym, and initials of every pair
// and triple of consecutive non-stop words.
func acronymCandidates(words []string) []string {
	if len(words) == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	add := func(a string) {
		if len(a) < 2 {
			return
		}
		if _, ok := seen[a]; ok {
			return
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}

	add(initials(words))

	var nonStop []string
	for _, w := range words {
		if _, ok := stopWords[w]; !ok {
			nonStop = append(nonStop, w)
		}
	}
	add(initials(nonStop))

	if len(words[0]) <= 5 {
		add(words[0])
	}

	for i := 0; i+1 < len(nonStop); i++ {
		add(initials(nonStop[i : i+2]))
		if i+2 < len(nonStop) {
			add(initials(nonStop[i : i+3]))
		}
	}
	return out
}

func initials(words []string) string {
	var b strings.Builder
	for _, w := range words {
		if w != "" {
			b.WriteByte(w[0])
		}
	}
	return b.String()
}
