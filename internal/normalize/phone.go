package normalize

import (
	"regexp"
	"strings"
)

const (
	// CountryCode and TrunkPrefix describe the national dialing plan the
	// two platforms store numbers in. "0912345678" and "+84912345678" are
	// the same subscriber and must land on the same index keys.
	CountryCode = "84"
	TrunkPrefix = "0"

	// MaxNoteLength bounds note mining; longer notes are skipped entirely.
	MaxNoteLength = 512
)

var separatorReplacer = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// phone-shaped digit run: 8-11 digits starting with the trunk prefix or
// the country code.
var notePhonePattern = regexp.MustCompile(`(?:84|0)[0-9]{7,9}`)

// CleanPhone strips separators and a single leading plus sign.
func CleanPhone(raw string) string {
	cleaned := separatorReplacer.Replace(strings.TrimSpace(raw))
	cleaned = strings.TrimPrefix(cleaned, "+")
	return cleaned
}

// PhoneVariants returns the set of canonical key variants for a raw phone
// number: the cleaned form plus, when the number carries a recognizable
// national prefix, the alternate-prefix form (trunk digit swapped with the
// country code). The result is deduplicated; order carries no meaning.
// An unusable input yields an empty set.
func PhoneVariants(raw string) []string {
	cleaned := CleanPhone(raw)
	if !isPhoneShaped(cleaned) {
		return nil
	}

	variants := map[string]struct{}{cleaned: {}}

	if strings.HasPrefix(cleaned, TrunkPrefix) {
		variants[CountryCode+cleaned[len(TrunkPrefix):]] = struct{}{}
	} else if strings.HasPrefix(cleaned, CountryCode) {
		variants[TrunkPrefix+cleaned[len(CountryCode):]] = struct{}{}
	}

	return setToSlice(variants)
}

// NotePhoneVariants mines phone-shaped substrings out of a free-text note
// and normalizes each hit. A note may contribute zero or more variants.
// Notes longer than MaxNoteLength are skipped. A hit flanked by further
// digits is a fragment of a longer run (order numbers, tracking codes),
// not a phone number, and is rejected rather than truncated.
func NotePhoneVariants(note string) []string {
	if note == "" || len(note) > MaxNoteLength {
		return nil
	}

	cleaned := separatorReplacer.Replace(note)

	variants := make(map[string]struct{})
	for _, loc := range notePhonePattern.FindAllStringIndex(cleaned, -1) {
		if loc[0] > 0 && isDigit(cleaned[loc[0]-1]) {
			continue
		}
		if loc[1] < len(cleaned) && isDigit(cleaned[loc[1]]) {
			continue
		}
		for _, v := range PhoneVariants(cleaned[loc[0]:loc[1]]) {
			variants[v] = struct{}{}
		}
	}
	if len(variants) == 0 {
		return nil
	}
	return setToSlice(variants)
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isPhoneShaped(cleaned string) bool {
	if len(cleaned) < 8 || len(cleaned) > 11 {
		return false
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return false
		}
	}
	return strings.HasPrefix(cleaned, TrunkPrefix) || strings.HasPrefix(cleaned, CountryCode)
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	return out
}
