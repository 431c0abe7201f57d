package anonymize

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// tokenRe matches any replacement token, reversible or not.
var tokenRe = regexp.MustCompile(`\[([A-Z_]+)_([0-9a-f]{8})\]`)

// reversibleToken derives the deterministic token for a plaintext: the same
// secret and plaintext always produce the same token, so repeated mentions of
// one entity collapse to one identifier across the corpus.
func reversibleToken(secret []byte, kind Kind, plaintext string) string {
	h := sha256.New()
	h.Write(secret)
	h.Write([]byte(":"))
	h.Write([]byte(plaintext))
	digest := hex.EncodeToString(h.Sum(nil))
	return fmt.Sprintf("[%s_%s]", strings.ToUpper(string(kind)), digest[:8])
}

// irreversibleToken draws a random identifier. Nothing is retained that could
// link it back to the plaintext.
func irreversibleToken(kind Kind) (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("token entropy: %w", err)
	}
	return fmt.Sprintf("[%s_%s]", strings.ToUpper(string(kind)), hex.EncodeToString(b[:])), nil
}

// IsToken reports whether s is exactly one replacement token.
func IsToken(s string) bool {
	m := tokenRe.FindStringIndex(s)
	return m != nil && m[0] == 0 && m[1] == len(s)
}

// stripTokens blanks token occurrences so re-scanning does not flag the
// replacements themselves.
func stripTokens(s string) string {
	return tokenRe.ReplaceAllStringFunc(s, func(m string) string {
		return strings.Repeat(" ", len(m))
	})
}
