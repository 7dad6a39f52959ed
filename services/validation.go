// crew-registry-system/services/validation.go
package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ValidationError is a user-facing rejection of a submitted field. It is
// surfaced as message text and never logged as a system fault.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

const (
	handleMinLen = 2
	handleMaxLen = 32

	contentMinLen         = 10
	contentMinDistinct    = 5
	contentMaxRepeat      = 10
	contentMinRealWords   = 2
	contentRealWordMinLen = 3
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateHandle checks an in-game handle against RSI's charset rules
// before anything is written remotely.
func ValidateHandle(handle string) error {
	if len(handle) < handleMinLen || len(handle) > handleMaxLen {
		return &ValidationError{Field: "handle", Reason: fmt.Sprintf("must be %d-%d characters", handleMinLen, handleMaxLen)}
	}
	if !handlePattern.MatchString(handle) {
		return &ValidationError{Field: "handle", Reason: "only letters, digits, dot, dash and underscore are allowed"}
	}
	return nil
}

// ValidateContent runs the anti-spam heuristics on a free-text answer
// (gameplay interests, referral notes). These are keyboard-mash filters,
// not semantic checks.
func ValidateContent(field, text string) error {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < contentMinLen {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("needs at least %d characters", contentMinLen)}
	}

	distinct := make(map[rune]bool)
	repeat, maxRepeat := 0, 0
	var prev rune
	for i, r := range trimmed {
		distinct[r] = true
		if i > 0 && r == prev {
			repeat++
		} else {
			repeat = 1
		}
		if repeat > maxRepeat {
			maxRepeat = repeat
		}
		prev = r
	}
	if len(distinct) < contentMinDistinct {
		return &ValidationError{Field: field, Reason: "needs more variety than that"}
	}
	if maxRepeat > contentMaxRepeat {
		return &ValidationError{Field: field, Reason: "too much character repetition"}
	}

	realWords := 0
	for _, word := range strings.Fields(trimmed) {
		if len(word) >= contentRealWordMinLen {
			realWords++
		}
	}
	if realWords < contentMinRealWords {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("needs at least %d real words", contentMinRealWords)}
	}
	return nil
}

// Known timezone abbreviations accepted as-is.
var tzAbbrevs = map[string]bool{
	"UTC": true, "GMT": true,
	"EST": true, "EDT": true, "CST": true, "CDT": true,
	"MST": true, "MDT": true, "PST": true, "PDT": true,
	"AKST": true, "AKDT": true, "HST": true,
	"BST": true, "CET": true, "CEST": true, "EET": true, "EEST": true,
	"WET": true, "WEST": true, "MSK": true,
	"IST": true, "JST": true, "KST": true, "SGT": true, "HKT": true,
	"AEST": true, "AEDT": true, "ACST": true, "AWST": true, "NZST": true, "NZDT": true,
}

var tzOffsetPattern = regexp.MustCompile(`^(?:UTC|GMT)([+-])(\d{1,2})(?::([0-5]\d))?$`)

// ValidateTimezone accepts a known abbreviation or a UTC/GMT offset with
// hours in [-12, +14].
func ValidateTimezone(tz string) error {
	cleaned := strings.ToUpper(strings.TrimSpace(tz))
	if tzAbbrevs[cleaned] {
		return nil
	}

	m := tzOffsetPattern.FindStringSubmatch(cleaned)
	if m == nil {
		return &ValidationError{Field: "timezone", Reason: "use a known abbreviation or UTC±HH[:MM]"}
	}
	hours, err := strconv.Atoi(m[2])
	if err != nil {
		return &ValidationError{Field: "timezone", Reason: "invalid offset"}
	}
	if m[1] == "-" && hours > 12 {
		return &ValidationError{Field: "timezone", Reason: "offset must be within -12 to +14"}
	}
	if m[1] == "+" && hours > 14 {
		return &ValidationError{Field: "timezone", Reason: "offset must be within -12 to +14"}
	}
	return nil
}
