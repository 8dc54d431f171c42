package commands

import (
	"strings"
)

// Parse splits "<prefix><name> [args...]" into a lowercased command
// name and its arguments. A "@botname" suffix on the name, as group
// chats append, is stripped. ok is false when text does not start with
// the prefix or carries no name after it.
func Parse(text, prefix string) (string, []string, bool) {
	trimmed := strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(trimmed, prefix) {
		return "", nil, false
	}

	rest := strings.TrimPrefix(trimmed, prefix)
	if rest == "" || rest[0] == ' ' || rest[0] == '\t' {
		return "", nil, false
	}
	fields := strings.Fields(rest)

	name := strings.ToLower(fields[0])
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", nil, false
	}
	return name, fields[1:], true
}
