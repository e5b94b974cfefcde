package mirror

import (
	"net/url"
	"regexp"
	"strings"
)

var hrefPattern = regexp.MustCompile(`href="([^"?#]+)"`)

// parseListing extracts entry names from a directory index page. Mirror
// indexes are machine-generated one-link-per-entry HTML; the href target's
// last path element is the entry name, with a trailing slash preserved for
// subdirectories.
func parseListing(body []byte) []string {
	var entries []string
	seen := make(map[string]bool)

	for _, m := range hrefPattern.FindAllStringSubmatch(string(body), -1) {
		target := m[1]

		if unescaped, err := url.PathUnescape(target); err == nil {
			target = unescaped
		}

		name := entryName(target)
		if name == "" || name == "../" || name == "./" || seen[name] {
			continue
		}

		seen[name] = true
		entries = append(entries, name)
	}

	return entries
}

func entryName(target string) string {
	dir := strings.HasSuffix(target, "/")

	trimmed := strings.TrimSuffix(target, "/")
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[i+1:]
	}

	if trimmed == "" || trimmed == ".." || trimmed == "." {
		return ""
	}

	if dir {
		return trimmed + "/"
	}

	return trimmed
}
