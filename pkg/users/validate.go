package users

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// Display name bounds, in runes.
const (
	MinNameLength = 2
	MaxNameLength = 50
)

var (
	ErrNameTooShort = errors.New("display name too short")
	ErrNameTooLong  = errors.New("display name too long")
	ErrNameNumeric  = errors.New("display name looks like a phone number")
	ErrNameBadChars = errors.New("display name contains invalid characters")
)

// phoneLikeRe matches strings made only of digits and phone punctuation.
var phoneLikeRe = regexp.MustCompile(`^[0-9+\-\s().]+$`)

// ValidateDisplayName checks a candidate display name against the rules
// a registration step enforces: rune-length bounds, not phone-like, and
// letters plus a small set of name punctuation only.
func ValidateDisplayName(name string) error {
	trimmed := strings.TrimSpace(name)
	runes := []rune(trimmed)

	if len(runes) < MinNameLength {
		return ErrNameTooShort
	}
	if len(runes) > MaxNameLength {
		return ErrNameTooLong
	}
	if phoneLikeRe.MatchString(trimmed) {
		return ErrNameNumeric
	}
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsSpace(r) {
			continue
		}
		switch r {
		case '\'', '-', '.', '’':
			continue
		}
		return ErrNameBadChars
	}
	return nil
}
