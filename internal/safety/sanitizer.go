package safety

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Identifier-shaped tokens inside a command: namespace:path.
var identifierPattern = regexp.MustCompile(`[A-Za-z0-9._\-]+:[A-Za-z0-9/._\-]+`)

var (
	namespaceBad = regexp.MustCompile(`[^a-z0-9._\-]`)
	pathBad      = regexp.MustCompile(`[^a-z0-9/._\-]`)
)

// SanitizeIdentifier normalises a namespaced resource identifier. Control
// characters are stripped, disallowed characters become "_", everything is
// lower-cased, and an empty path becomes "unknown".
func SanitizeIdentifier(id string) string {
	id = stripControl(id)
	ns, path, found := strings.Cut(id, ":")
	if !found {
		path = ns
		ns = "minecraft"
	}
	ns = namespaceBad.ReplaceAllString(strings.ToLower(ns), "_")
	path = pathBad.ReplaceAllString(strings.ToLower(path), "_")
	if ns == "" {
		ns = "minecraft"
	}
	if path == "" {
		path = "unknown"
	}
	return ns + ":" + path
}

// SanitizeCommand rewrites identifier-shaped tokens in place and leaves the
// rest of the command (selectors, coordinates, NBT blobs) untouched.
func SanitizeCommand(cmd string) string {
	cmd = stripControl(cmd)
	return identifierPattern.ReplaceAllStringFunc(cmd, SanitizeIdentifier)
}

// ScanPatch walks a world-patch object depth first and reports warnings for
// suspicious string values. It never mutates the patch.
func ScanPatch(patch map[string]any) []string {
	var warns []string
	scanValue("", patch, &warns)
	return warns
}

func scanValue(path string, v any, warns *[]string) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			scanValue(joinPath(path, k), child, warns)
		}
	case []any:
		for i, child := range val {
			scanValue(fmt.Sprintf("%s[%d]", path, i), child, warns)
		}
	case []string:
		for i, child := range val {
			scanValue(fmt.Sprintf("%s[%d]", path, i), child, warns)
		}
	case string:
		for _, tok := range disallowedTokens {
			if strings.Contains(val, tok) {
				*warns = append(*warns, fmt.Sprintf("patch_value_disallowed_token:%s:%s", path, printableToken(tok)))
			}
		}
		if hasControl(val) {
			*warns = append(*warns, "patch_value_control_characters:"+path)
		}
	}
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

func hasControl(s string) bool {
	return strings.ContainsFunc(s, unicode.IsControl)
}
