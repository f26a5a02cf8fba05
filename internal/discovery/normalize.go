package discovery

import (
	"net/url"
	"regexp"
	"strings"
)

// junkValues are loader artifacts that mean "no URL known".
var junkValues = map[string]bool{
	"n/a":  true,
	"n.a.": true,
	"na":   true,
	"none": true,
	"null": true,
	"-":    true,
	"tbd":  true,
}

// placeholderHosts are bare jurisdiction skeletons that registries record in
// place of a real site. Probing them always lands on a state portal, so they
// are rejected outright before any strategy spends requests on them.
var placeholderHosts = []*regexp.Regexp{
	regexp.MustCompile(`^(www\.)?k12\.[a-z]{2}\.us$`),
	regexp.MustCompile(`^(www\.)?sde\.[a-z]{2}\.(us|gov)$`),
	regexp.MustCompile(`^(www\.)?doe\.[a-z]{2}\.(us|gov)$`),
	regexp.MustCompile(`^(www\.)?state\.[a-z]{2}\.us$`),
}

func isPlaceholderHost(host string) bool {
	host = strings.ToLower(host)
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	for _, re := range placeholderHosts {
		if re.MatchString(host) {
			return true
		}
	}
	return false
}

// Normalize turns a raw hint string into a valid absolute URL. It returns
// false for junk values, strings under 4 characters, schemeless strings with
// embedded whitespace, and anything that fails URL parsing or lacks a dotted
// host. Already-valid absolute URLs with a lowercase host pass through
// unchanged.
func Normalize(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if len(s) < 4 {
		return "", false
	}
	if junkValues[strings.ToLower(s)] {
		return "", false
	}
	hasScheme := strings.Contains(s, "://")
	if !hasScheme {
		if strings.ContainsAny(s, " \t") {
			return "", false
		}
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", false
	}
	u.Host = strings.ToLower(u.Host)
	if !strings.Contains(u.Host, ".") {
		return "", false
	}
	if isPlaceholderHost(u.Host) {
		return "", false
	}
	return u.String(), true
}

// hostOf extracts a bare lowercase hostname from a raw hint, tolerating
// missing schemes and trailing paths.
func hostOf(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if _, rest, ok := strings.Cut(s, "://"); ok {
		s = rest
	}
	if h, _, ok := strings.Cut(s, "/"); ok {
		s = h
	}
	if h, _, ok := strings.Cut(s, ":"); ok {
		s = h
	}
	return s
}

// hasTLD reports whether the host (ignoring a www prefix) contains a dot,
// i.e. looks like it ends in a top-level domain.
func hasTLD(host string) bool {
	host = strings.TrimPrefix(host, "www.")
	return strings.Contains(host, ".")
}

// RepairVariants expands one raw hint into an ordered, deduplicated candidate
// list: the normalized hint itself, then typo corrections (ww. prefix, doubled
// www, mail-server subdomains recorded as the public site), then TLD guesses
// for hosts that have none. Placeholder domains yield nothing.
func RepairVariants(raw string) []string {
	host := hostOf(raw)
	if host == "" || isPlaceholderHost(host) {
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
	addHost := func(h string) {
		if h == "" || isPlaceholderHost(h) {
			return
		}
		if !hasTLD(h) {
			bare := strings.TrimPrefix(h, "www.")
			for _, tld := range []string{".org", ".com"} {
				add("https://www." + bare + tld)
				add("https://" + bare + tld)
			}
			return
		}
		add("https://" + h)
	}

	add(raw)

	if strings.HasPrefix(host, "ww.") && !strings.HasPrefix(host, "www.") {
		addHost("www." + strings.TrimPrefix(host, "ww."))
	}
	if strings.HasPrefix(host, "www.www.") {
		addHost(strings.TrimPrefix(host, "www."))
	}
	for _, sub := range []string{"mail.", "email."} {
		if strings.HasPrefix(host, sub) {
			stripped := strings.TrimPrefix(host, sub)
			addHost(stripped)
			addHost("www." + stripped)
		}
	}
	if !hasTLD(host) {
		addHost(host)
	}

	return out
}

// HostPermutations returns the www/scheme permutations of one hint, used when
// plain repairs found nothing live.
func HostPermutations(raw string) []string {
	host := hostOf(raw)
	if host == "" || !strings.Contains(host, ".") || isPlaceholderHost(host) {
		return nil
	}
	bare := strings.TrimPrefix(host, "www.")

	var out []string
	seen := map[string]bool{}
	for _, h := range []string{"www." + bare, bare} {
		for _, scheme := range []string{"https://", "http://"} {
			if u, ok := Normalize(scheme + h); ok && !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
	}
	return out
}

// RegistrableDomain reduces a host to the part an organization actually
// registers, so two URLs can be compared for "same site". Handles the
// k12.<state>.us convention where the registrable unit is four labels deep.
func RegistrableDomain(host string) string {
	host = strings.ToLower(host)
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	host = strings.TrimPrefix(host, "www.")
	labels := strings.Split(host, ".")
	n := len(labels)
	if n >= 4 && labels[n-1] == "us" && labels[n-3] == "k12" {
		return strings.Join(labels[n-4:], ".")
	}
	if n >= 3 && labels[n-1] == "us" {
		return strings.Join(labels[n-3:], ".")
	}
	if n >= 2 {
		return strings.Join(labels[n-2:], ".")
	}
	return host
}

// SameRegistrableDomain reports whether two URLs share a registrable domain.
func SameRegistrableDomain(a, b string) bool {
	ua, err1 := url.Parse(a)
	ub, err2 := url.Parse(b)
	if err1 != nil || err2 != nil {
		return false
	}
	if ua.Host == "" || ub.Host == "" {
		return false
	}
	return RegistrableDomain(ua.Host) == RegistrableDomain(ub.Host)
}
