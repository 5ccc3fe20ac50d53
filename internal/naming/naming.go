// Package naming builds download file names for finished conversions.
package naming

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

const (
	maxTitleRunes = 50
	maxKeyRunes   = 20
	maxTempo      = 300
	fallbackTitle = "Track"
)

// Generate returns "<title>[-<n>BPM][-<key>].<format>".
// Parameters:
//   - title: source title; reduced to word characters, whitespace and hyphens
//   - tempo: optional tempo; only used when its integer part is in (0, 300]
//   - key: optional musical key such as "C Minor"; spaces are dropped
//   - format: extension without the dot
//
// Returns:
//   - a file name that is safe on common filesystems
func Generate(title string, tempo *float64, key *string, format string) string {
	parts := []string{cleanTitle(title)}

	if tempo != nil && !math.IsNaN(*tempo) && !math.IsInf(*tempo, 0) {
		if bpm := int(*tempo); bpm > 0 && bpm <= maxTempo {
			parts = append(parts, strconv.Itoa(bpm)+"BPM")
		}
	}

	if key != nil {
		k := strings.Join(strings.Fields(stripSpecial(*key)), "")
		if k != "" && runeLen(k) <= maxKeyRunes {
			parts = append(parts, k)
		}
	}

	return strings.Join(parts, "-") + "." + format
}

func cleanTitle(title string) string {
	name := strings.Join(strings.Fields(stripSpecial(title)), "-")
	if r := []rune(name); len(r) > maxTitleRunes {
		name = string(r[:maxTitleRunes])
	}
	name = collapseHyphens(name)
	name = strings.Trim(name, "-")
	if name == "" {
		return fallbackTitle
	}
	return name
}

// stripSpecial keeps word characters, whitespace and hyphens.
func stripSpecial(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isWord(r) || unicode.IsSpace(r) || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

func collapseHyphens(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prev := false
	for _, r := range s {
		if r == '-' {
			if prev {
				continue
			}
			prev = true
		} else {
			prev = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func runeLen(s string) int {
	return len([]rune(s))
}
