package bot

import (
	"regexp"
	"strings"
)

type ViolationType string

const (
	ViolationPhone ViolationType = "phone"
	ViolationLink  ViolationType = "link"
	ViolationFlood ViolationType = "flood"
)

type Violation struct {
	Type  ViolationType
	Match string
}

var (
	phonePattern  = regexp.MustCompile(`\+?\d[\d\s\-().]{8,}\d`)
	digitPattern  = regexp.MustCompile(`\d`)
	urlPattern    = regexp.MustCompile(`(?i)https?://[^\s]+`)
	domainPattern = regexp.MustCompile(`(?i)\b[a-z0-9][-a-z0-9]*\.(com|net|org|io|me|ly|gg|fr|ru|xyz|online|site|shop)\b[^\s]*`)
)

// Check looks for contact details, unapproved links and character floods.
func Check(text string, allowedDomains []string) *Violation {
	if match := phonePattern.FindString(text); match != "" {
		if len(digitPattern.FindAllString(match, -1)) >= 10 {
			return &Violation{Type: ViolationPhone, Match: match}
		}
	}

	lower := strings.ToLower(text)
	for _, url := range urlPattern.FindAllString(lower, -1) {
		if !isAllowed(url, allowedDomains) {
			return &Violation{Type: ViolationLink, Match: url}
		}
	}
	for _, domain := range domainPattern.FindAllString(lower, -1) {
		if !isAllowed(domain, allowedDomains) {
			return &Violation{Type: ViolationLink, Match: domain}
		}
	}

	if run := longestRun(text); run >= 12 {
		return &Violation{Type: ViolationFlood, Match: text}
	}
	return nil
}

func isAllowed(url string, allowedDomains []string) bool {
	for _, domain := range allowedDomains {
		if strings.Contains(url, strings.ToLower(domain)) {
			return true
		}
	}
	return false
}

// longestRun is the length of the longest sequence of one repeated rune.
func longestRun(text string) int {
	best, run := 0, 0
	var prev rune
	for i, r := range text {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		prev = r
		if run > best {
			best = run
		}
	}
	return best
}
