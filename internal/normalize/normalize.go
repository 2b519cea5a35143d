// Package normalize canonicalizes the contact anchors used for contractor
// matching: phone numbers, emails, domains and company names.
//
// Every function is total: invalid input yields an empty string (or 0 for
// ratios), never an error.
package normalize

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// webmailDomains carry no company identity, so they never produce a domain.
var webmailDomains = map[string]struct{}{
	"gmail.com":      {},
	"googlemail.com": {},
	"yahoo.com":      {},
	"ymail.com":      {},
	"rocketmail.com": {},
	"hotmail.com":    {},
	"outlook.com":    {},
	"live.com":       {},
	"msn.com":        {},
	"aol.com":        {},
	"icloud.com":     {},
	"me.com":         {},
	"mac.com":        {},
	"protonmail.com": {},
	"proton.me":      {},
	"comcast.net":    {},
	"att.net":        {},
	"sbcglobal.net":  {},
	"bellsouth.net":  {},
	"verizon.net":    {},
	"cox.net":        {},
	"charter.net":    {},
	"earthlink.net":  {},
	"frontier.com":   {},
	"mail.com":       {},
	"gmx.com":        {},
}

// companySuffixes lists legal-entity and filler suffixes stripped from
// company names. Sorted longest first at init so "l.l.c." wins over "llc".
var companySuffixes = []string{
	", llc", " llc", " l.l.c.", " l.l.c", ", l.l.c.",
	", inc.", ", inc", " inc.", " inc", " incorporated",
	", corp.", " corp.", " corp", " corporation",
	" co.", " co", " company",
	", ltd", " ltd.", " ltd", " limited",
	" l.p.", " lp", " llp", " l.l.p.", " pllc", " p.c.", " pc", " p.a.", " pa",
	" dba", " d/b/a",
	" contracting", " contractors", " contractor",
	" solutions", " services", " service", " enterprises",
	" group", " holdings",
}

var multiSpaceRe = regexp.MustCompile(`\s+`)

func init() {
	sort.SliceStable(companySuffixes, func(i, j int) bool {
		return len(companySuffixes[i]) > len(companySuffixes[j])
	})
}

// Phone reduces a phone number to its 10-digit North American form.
// A leading country code "1" on an 11-digit number is dropped; anything
// else that is not exactly 10 digits returns "".
func Phone(s string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return ""
	}
	return digits
}

// Email lowercases and trims an email address. No validation is performed.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ExtractDomain returns the lowercased domain of an email address, or ""
// when the address has no domain or belongs to a webmail provider.
func ExtractDomain(email string) string {
	e := Email(email)
	at := strings.LastIndex(e, "@")
	if at < 0 || at == len(e)-1 {
		return ""
	}
	domain := strings.Trim(e[at+1:], ". ")
	if domain == "" {
		return ""
	}
	if IsWebmail(domain) {
		return ""
	}
	return domain
}

// WebsiteDomain returns the registrable host of a website URL, bare domain
// or email address, without "www.". Webmail hosts yield "".
func WebsiteDomain(site string) string {
	s := strings.ToLower(strings.TrimSpace(site))
	if s == "" {
		return ""
	}
	if strings.Contains(s, "@") && !strings.Contains(s, "/") {
		return ExtractDomain(s)
	}
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(strings.Trim(s, ". "), "www.")
	if !strings.Contains(s, ".") || IsWebmail(s) {
		return ""
	}
	return s
}

// IsWebmail reports whether domain is a consumer webmail provider.
func IsWebmail(domain string) bool {
	_, ok := webmailDomains[strings.ToLower(strings.TrimSpace(domain))]
	return ok
}

// CompanyName standardizes a company name for matching:
//  1. lowercase and fold accents
//  2. strip legal-entity and filler suffixes, longest first, until none apply
//  3. strip punctuation ("&" becomes "and", "-" and "/" become spaces)
//  4. collapse whitespace
func CompanyName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = strings.ToLower(foldAccents(name))
	name = stripSuffixes(name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '&':
			b.WriteString(" and ")
		case r == '-' || r == '/' || r == '_':
			b.WriteRune(' ')
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r):
			b.WriteRune(r)
		}
	}

	name = multiSpaceRe.ReplaceAllString(b.String(), " ")
	name = strings.TrimSpace(name)

	// Punctuation removal can expose another suffix ("acme hvac, llc." -> "acme hvac llc").
	return strings.TrimSpace(stripSuffixes(name))
}

func stripSuffixes(name string) string {
	for {
		stripped := false
		for _, suffix := range companySuffixes {
			if len(name) > len(suffix) && strings.HasSuffix(name, suffix) {
				name = strings.TrimSpace(strings.TrimSuffix(name, suffix))
				stripped = true
				break
			}
		}
		if !stripped {
			return name
		}
	}
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
