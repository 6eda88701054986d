package assistant

import (
	"regexp"
	"strings"
)

var (
	goFence  = regexp.MustCompile("(?s)```[ \\t]*(?:go|golang)[ \\t]*\\r?\\n(.*?)```")
	anyFence = regexp.MustCompile("(?s)```[^\\n`]*\\r?\\n(.*?)```")
)

// ExtractCode returns the body of the first ```go fence, else of the first
// fence of any language, else the whole text. An unterminated opening fence
// is dropped.
func ExtractCode(text string) string {
	if m := goFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := anyFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			return ""
		}
	}
	return strings.TrimSpace(s)
}
