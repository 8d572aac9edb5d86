package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	quotedRe       = regexp.MustCompile(`['"]([^'"]+)['"]`)
	companyNameRes = []*regexp.Regexp{
		regexp.MustCompile(`(?:Company|Provider|Client|Vendor|Contractor|Supplier|Customer)\s+Name.*?['"]([^'"]+)['"]`),
		regexp.MustCompile(`[Cc]hange\s+(?:the\s+)?([^'"].*?(?:Inc|LLC|Ltd|Corporation|Corp|Company|Co))[^'"].*?from`),
		regexp.MustCompile(`[Uu]pdate\s+(?:the\s+)?([^'"].*?(?:Inc|LLC|Ltd|Corporation|Corp|Company|Co))[^'"].*?from`),
	}
)

// ExtractEntities pulls the names an instruction refers to: quoted strings
// longer than three runes and common company-name phrasings. Order is kept, duplicates dropped.
func ExtractEntities(instruction string) []string {
	var found []string
	for _, m := range quotedRe.FindAllStringSubmatch(instruction, -1) {
		if utf8.RuneCountInString(m[1]) > 3 {
			found = append(found, m[1])
		}
	}
	for _, re := range companyNameRes {
		for _, m := range re.FindAllStringSubmatch(instruction, -1) {
			s := strings.TrimSpace(m[1])
			if utf8.RuneCountInString(s) > 3 {
				found = append(found, s)
			}
		}
	}

	seen := make(map[string]struct{}, len(found))
	out := found[:0]
	for _, e := range found {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Relevant reports whether text mentions any entity, ignoring case.
// Any two adjacent words of a multi-word entity, at least five characters together, also match.
// With no entities every chunk is relevant.
func Relevant(text string, entities []string) bool {
	if len(entities) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, e := range entities {
		if strings.Contains(lower, strings.ToLower(e)) {
			return true
		}
	}
	for _, e := range entities {
		words := strings.Fields(e)
		for i := 0; i+1 < len(words); i++ {
			pair := strings.ToLower(words[i] + " " + words[i+1])
			if utf8.RuneCountInString(pair) >= 5 && strings.Contains(lower, pair) {
				return true
			}
		}
	}
	return false
}
