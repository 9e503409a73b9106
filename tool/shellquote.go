package tool

import "strings"

// shellSafe lists the characters that never need quoting in a POSIX shell
// word. Anything outside this set forces single-quoting.
const shellSafe = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789@%+=:,./-_"

// shellQuote returns s as a single POSIX shell word. Single quotes inside s
// are closed, escaped, and reopened ('\''), which is the only escape a
// single-quoted shell string needs.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !strings.ContainsRune(shellSafe, r) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
