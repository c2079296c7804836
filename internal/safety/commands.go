// Package safety validates game commands and resource identifiers before
// anything reaches the dispatch path. Everything here is pure and
// concurrency-safe.
package safety

import (
	"regexp"
	"strings"
)

// Tokens that terminate or chain shell-like execution. Any occurrence is an
// error regardless of position.
var disallowedTokens = []string{";", "&&", "||", "`", "$(", "\n", "\r"}

// Command prefixes that are never allowed to reach the server.
var bannedPrefixes = []string{"op ", "deop ", "stop", "reload"}

// Allow-listed command heads. Anything else is a warning, not an error.
var allowedHeads = map[string]struct{}{
	"setblock": {},
	"fill":     {},
	"clone":    {},
	"summon":   {},
	"execute":  {},
	"function": {},
	"particle": {},
	"title":    {},
	"tellraw":  {},
}

// Clauses permitted inside an execute chain.
var executeClauses = map[string]struct{}{
	"as": {}, "at": {}, "in": {}, "positioned": {}, "rotated": {},
	"facing": {}, "anchored": {}, "align": {}, "unless": {}, "if": {},
	"store": {}, "summon": {}, "run": {}, "on": {},
}

var (
	functionIDPattern = regexp.MustCompile(`^[a-z0-9_.:-]+$`)
	charsetPattern    = regexp.MustCompile(`^[A-Za-z0-9_{}:^~.\-\s,/|=\[\]]*$`)
)

// ValidateCommand checks one command string against the dispatch policy and
// returns errors (must not dispatch) and warnings (needs confirmation).
func ValidateCommand(cmd string) (errs, warns []string) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(cmd), "/"))
	if trimmed == "" {
		errs = append(errs, "command_empty")
		return errs, warns
	}

	for _, tok := range disallowedTokens {
		if strings.Contains(cmd, tok) {
			errs = append(errs, "command_contains_disallowed_token:"+printableToken(tok))
		}
	}
	lower := strings.ToLower(trimmed)
	for _, p := range bannedPrefixes {
		if strings.HasPrefix(lower, p) {
			errs = append(errs, "command_banned_prefix:"+strings.TrimSpace(p))
		}
	}

	fields := strings.Fields(trimmed)
	head := strings.ToLower(fields[0])
	if _, ok := allowedHeads[head]; !ok {
		warns = append(warns, "command_head_not_whitelisted:"+head)
	}

	switch head {
	case "function":
		if len(fields) < 2 {
			errs = append(errs, "function_missing_id")
		} else if !functionIDPattern.MatchString(fields[1]) {
			errs = append(errs, "function_invalid_id:"+fields[1])
		}
	case "execute":
		if !validExecuteChain(fields[1:]) {
			warns = append(warns, "execute_unknown_clause")
		}
	}

	if !charsetPattern.MatchString(cmd) {
		warns = append(warns, "command_contains_suspicious_characters")
	}
	return errs, warns
}

// ValidateCommands aggregates ValidateCommand over a batch.
func ValidateCommands(cmds []string) (errs, warns []string) {
	for _, c := range cmds {
		e, w := ValidateCommand(c)
		errs = append(errs, e...)
		warns = append(warns, w...)
	}
	return errs, warns
}

// validExecuteChain walks the clause keywords up to the run subcommand. The
// payload after "run" is a nested command and is not re-checked here.
func validExecuteChain(fields []string) bool {
	i := 0
	for i < len(fields) {
		word := strings.ToLower(fields[i])
		if _, ok := executeClauses[word]; ok {
			if word == "run" {
				return true
			}
			i++
			// Skip clause arguments until the next known clause keyword.
			for i < len(fields) {
				next := strings.ToLower(fields[i])
				if _, isClause := executeClauses[next]; isClause {
					break
				}
				i++
			}
			continue
		}
		return false
	}
	return true
}

func printableToken(tok string) string {
	switch tok {
	case "\n":
		return "\\n"
	case "\r":
		return "\\r"
	}
	return tok
}
