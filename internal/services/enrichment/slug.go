package enrichment

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// slugify folds accents, lowercases and joins ASCII alphanumeric runs with sep.
func slugify(s, sep string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var parts []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			cur.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return strings.Join(parts, sep)
}

// placeholderEmail builds first_last@inactive.<company>.com for customers
// who never gave an address.
func placeholderEmail(firstName, lastName, companyName, fallback string) string {
	local := strings.Trim(slugify(firstName, "-")+"_"+slugify(lastName, "-"), "_")
	if local == "" {
		local = fallback
	}
	domain := slugify(companyName, "-")
	if domain == "" {
		domain = "company"
	}
	return local + "@inactive." + domain + ".com"
}
