// Package llmutil post-processes raw model output.
package llmutil

import (
	"regexp"
	"strings"
)

// \x60 is a backtick; raw strings cannot contain one.
var (
	fencedBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60[a-zA-Z0-9_+-]*[ \t]*\r?\n?(.*?)\x60\x60\x60")
	goBlockRegex     = regexp.MustCompile("(?s)\x60\x60\x60(?:go|golang)[ \t]*\r?\n(.*?)\x60\x60\x60")
)

// CleanCodeOutput strips markdown fences from a model response. When the
// response holds several fenced blocks the first Go block wins, then the first
// block of any language. A response with no fence is returned trimmed. An
// unterminated opening fence is dropped along with its language tag.
func CleanCodeOutput(content string) string {
	content = strings.TrimSpace(content)
	if !strings.Contains(content, "```") {
		return content
	}
	if m := goBlockRegex.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	if m := fencedBlockRegex.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(content, "```") {
		rest := strings.TrimPrefix(content, "```")
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			rest = rest[i+1:]
		} else {
			rest = ""
		}
		return strings.TrimSpace(rest)
	}
	return content
}
