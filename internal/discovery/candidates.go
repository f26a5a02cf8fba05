package discovery

import (
	"strings"
)

// nameStopwords are dropped from district names before slugging. What is left
// is the part people actually register domains with.
var nameStopwords = map[string]bool{
	"school":       true,
	"schools":      true,
	"district":     true,
	"unified":      true,
	"independent":  true,
	"consolidated": true,
	"community":    true,
	"county":       true,
	"public":       true,
	"city":         false, // kept: "Jersey City" style names need it
	"of":           true,
	"the":          true,
	"isd":          true,
	"usd":          true,
	"cusd":         true,
	"sd":           true,
	"no":           true,
	"no.":          true,
}

// personalMailProviders never host a district site.
var personalMailProviders = map[string]bool{
	"gmail.com":    true,
	"yahoo.com":    true,
	"hotmail.com":  true,
	"outlook.com":  true,
	"aol.com":      true,
	"icloud.com":   true,
	"comcast.net":  true,
	"msn.com":      true,
	"live.com":     true,
	"me.com":       true,
	"sbcglobal.net": true,
}

// mailSubsystemPrefixes are subdomains that point at mail infrastructure
// rather than the public site.
var mailSubsystemPrefixes = []string{"mail.", "smtp.", "mx.", "email.", "webmail.", "pop.", "imap."}

// nameTokens lowercases, strips punctuation, and drops stopwords and bare
// numbers from a district name.
func nameTokens(name string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	var tokens []string
	for _, tok := range strings.Fields(b.String()) {
		if nameStopwords[tok] {
			continue
		}
		if isAllDigits(tok) {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// NameCandidates builds ranked hostname guesses from a district name and its
// two-letter state code: jurisdiction-convention suffixes first, generic
// school-site suffixes after, each tried with and without www.
func NameCandidates(name, state string) []string {
	tokens := nameTokens(name)
	if len(tokens) == 0 {
		return nil
	}
	state = strings.ToLower(strings.TrimSpace(state))

	slugs := []string{strings.Join(tokens, "")}
	if len(tokens) > 1 {
		slugs = append(slugs, strings.Join(tokens, "-"))
	}

	var suffixes []string
	if len(state) == 2 {
		suffixes = append(suffixes, ".k12."+state+".us")
	}
	suffixes = append(suffixes, ".org", "schools.org", "sd.org")
	if len(state) == 2 {
		suffixes = append(suffixes, "."+state+".us")
	}
	suffixes = append(suffixes, ".com")

	var out []string
	seen := map[string]bool{}
	add := func(candidate string) {
		if u, ok := Normalize(candidate); ok && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	for _, suffix := range suffixes {
		for _, slug := range slugs {
			add("https://www." + slug + suffix)
			add("https://" + slug + suffix)
		}
	}
	return out
}

// EmailDomainCandidates derives site guesses from a contact email's domain.
// Personal providers yield nothing; mail-subsystem subdomains are stripped.
func EmailDomainCandidates(email string) []string {
	_, domain, ok := strings.Cut(strings.ToLower(strings.TrimSpace(email)), "@")
	if !ok || domain == "" || !strings.Contains(domain, ".") {
		return nil
	}
	if personalMailProviders[domain] {
		return nil
	}
	for _, prefix := range mailSubsystemPrefixes {
		if strings.HasPrefix(domain, prefix) {
			domain = strings.TrimPrefix(domain, prefix)
			break
		}
	}
	if personalMailProviders[domain] || !strings.Contains(domain, ".") {
		return nil
	}

	var out []string
	seen := map[string]bool{}
	add := func(candidate string) {
		if u, ok := Normalize(candidate); ok && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	if !strings.HasPrefix(domain, "www.") {
		add("https://www." + domain)
	}
	add("https://" + domain)
	return out
}
