// Package quality decides whether a transcription is real speech or one of
// the artefacts speech models produce for silence and noise.
package quality

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
)

// Reason names the rule that rejected a transcript.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonTooShort   Reason = "too_short"
	ReasonDenylisted Reason = "denylisted"
	ReasonBracketed  Reason = "bracketed"
	ReasonRepetitive Reason = "repetitive"
)

const (
	minLength       = 2
	bracketedMaxLen = 30
)

// denylist holds lower-cased outputs whisper is known to hallucinate on
// silence or background noise.
var denylist = []string{
	"[blank_audio]",
	"(blank audio)",
	"[silence]",
	"(silence)",
	"[inaudible]",
	"(inaudible)",
	"[music]",
	"(music)",
	"you",
	"thank you.",
	"thanks for watching.",
	"thank you for watching.",
	"thanks for watching!",
	"subscribe",
	"please subscribe",
	"...",
	"♪",
}

var bracketed = regexp.MustCompile(`^[\[(].*[\])]$`)

// Verdict is the outcome of [Evaluate].
type Verdict struct {
	OK     bool
	Reason Reason
}

// Evaluate applies the rules in order and stops at the first rejection.
func Evaluate(text string) Verdict {
	trimmed := strings.TrimSpace(text)
	// Lengths are in user-perceived characters, so an emoji with a skin tone
	// modifier counts once.
	n := uniseg.GraphemeClusterCount(trimmed)
	if n < minLength {
		return reject(ReasonTooShort)
	}

	lowered := strings.ToLower(trimmed)
	for _, p := range denylist {
		if lowered == p || lowered == "["+p+"]" || lowered == "("+p+")" {
			return reject(ReasonDenylisted)
		}
	}

	if n < bracketedMaxLen && bracketed.MatchString(trimmed) {
		return reject(ReasonBracketed)
	}

	if distinctNonSpace(trimmed) <= 1 {
		return reject(ReasonRepetitive)
	}
	return Verdict{OK: true}
}

// IsUsable reports whether text should be injected.
func IsUsable(text string) bool { return Evaluate(text).OK }

func reject(r Reason) Verdict { return Verdict{Reason: r} }

func distinctNonSpace(s string) int {
	seen := make(map[rune]struct{}, 4)
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		seen[r] = struct{}{}
		if len(seen) > 1 {
			break
		}
	}
	return len(seen)
}
