package capture

import (
	"net"
	"net/url"
	"strings"
)

// codeTokens are cheap signals that multi-line text is source code.
var codeTokens = []string{
	";", "{", "}", "=>", "#include",
	"func ", "def ", "class ", "import ", "return ",
	"const ", "let ", "var ", "public ", "fn ",
}

// knownDomainTags maps well-known domains to canonical short tags.
// Subdomains of a listed domain inherit its tag.
var knownDomainTags = map[string]string{
	"github.com":                "github",
	"gist.github.com":           "github",
	"gitlab.com":                "gitlab",
	"stackoverflow.com":         "stackoverflow",
	"docs.python.org":           "python",
	"pkg.go.dev":                "go",
	"go.dev":                    "go",
	"developer.mozilla.org":     "mdn",
	"docs.rs":                   "rust",
	"crates.io":                 "rust",
	"npmjs.com":                 "npm",
	"youtube.com":               "youtube",
	"youtu.be":                  "youtube",
	"en.wikipedia.org":          "wikipedia",
	"wikipedia.org":             "wikipedia",
	"news.ycombinator.com":      "hackernews",
	"reddit.com":                "reddit",
	"docs.google.com":           "gdocs",
	"learn.microsoft.com":       "microsoft",
	"developer.apple.com":       "apple",
	"medium.com":                "medium",
	"arxiv.org":                 "arxiv",
	"figma.com":                 "figma",
	"notion.so":                 "notion",
	"linear.app":                "linear",
	"atlassian.net":             "jira",
	"docs.github.com":           "github",
	"raw.githubusercontent.com": "github",
}

// IsURL reports whether text parses as an absolute URL with a host.
// Text containing whitespace is never a URL.
func IsURL(text string) bool {
	if text == "" || strings.ContainsAny(text, " \t\r\n") {
		return false
	}
	u, err := url.Parse(text)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}

// Classify infers the capture type of trimmed text. It is a heuristic that
// leans toward TypeText when signals are weak.
func Classify(text string) Type {
	if IsURL(text) {
		return TypeLink
	}
	if strings.Contains(text, "\n") {
		for _, tok := range codeTokens {
			if strings.Contains(text, tok) {
				return TypeCode
			}
		}
	}
	return TypeText
}

// ExtractDomain returns the lower-cased host of an absolute URL without
// port or leading "www.". ok is false if value is not a URL with a domain.
func ExtractDomain(value string) (domain string, ok bool) {
	if !IsURL(value) {
		return "", false
	}
	u, err := url.Parse(value)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", false
	}
	return host, true
}

// AutoTags derives tags from a URL value. Well-known domains map to fixed
// tags; any other domain yields its first label. IP hosts yield nothing.
func AutoTags(value string) []string {
	domain, ok := ExtractDomain(value)
	if !ok {
		return nil
	}
	if tag, ok := lookupDomainTag(domain); ok {
		return []string{tag}
	}
	if net.ParseIP(domain) != nil {
		return nil
	}
	label, _, _ := strings.Cut(domain, ".")
	if label == "" {
		return nil
	}
	return []string{label}
}

// lookupDomainTag matches domain or any parent domain against the table.
func lookupDomainTag(domain string) (string, bool) {
	for d := domain; d != ""; {
		if tag, ok := knownDomainTags[d]; ok {
			return tag, true
		}
		_, rest, found := strings.Cut(d, ".")
		if !found {
			break
		}
		d = rest
	}
	return "", false
}
