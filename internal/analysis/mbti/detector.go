package mbti

import (
	"strings"
	"unicode"

	"github.com/zhouzirui/mbti-relay/backend/internal/model/personality"
)

// Detection is the outcome of scanning a verdict for a type code.
type Detection struct {
	Code string
}

var knownCodes = func() map[string]struct{} {
	codes := make(map[string]struct{}, 16)
	for _, code := range personality.NewMemoryStore(personality.Seed()).Codes() {
		codes[code] = struct{}{}
	}
	return codes
}()

// Detect returns the first whole-word four-letter type named in text.
// The verdict itself is never rewritten; this only annotates it for display.
func Detect(text string) (Detection, bool) {
	start := -1
	for i, r := range text + " " {
		if unicode.IsLetter(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start < 0 {
			continue
		}
		word := text[start:i]
		if len(word) == 4 {
			code := strings.ToUpper(word)
			if _, ok := knownCodes[code]; ok {
				return Detection{Code: code}, true
			}
		}
		start = -1
	}
	return Detection{}, false
}
