package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var permalinkIDRe = regexp.MustCompile(`/(?:permalink|posts)/(\w+)`)

// contentPrefixRunes bounds the content prefix used for fingerprinting so
// that trailing edits (and expansion tail differences) do not change a
// post's identity.
const contentPrefixRunes = 100

// Fingerprint derives the stable post identifier. The platform's own post
// id from the permalink wins when present; otherwise the fingerprint is a
// hash of the author and a whitespace-normalized content prefix. Engagement
// counts and timestamps are deliberately excluded, both change between
// passes on the same post.
func Fingerprint(author, content, postURL string) string {
	if m := permalinkIDRe.FindStringSubmatch(postURL); m != nil {
		return m[1]
	}
	prefix := []rune(normalizeWhitespace(content))
	if len(prefix) > contentPrefixRunes {
		prefix = prefix[:contentPrefixRunes]
	}
	sum := sha256.Sum256([]byte(author + "|" + string(prefix)))
	return hex.EncodeToString(sum[:])
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
