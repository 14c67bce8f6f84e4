// Package phone canonicalizes user-entered phone numbers into the MSISDN
// format the mobile-money provider expects.
package phone

import "strings"

const bareSubscriberLen = 9

// Normalize converts input into international MSISDN form using the given
// default country code. Rules, in order: strip every non-digit; keep numbers
// already carrying the country code; replace a leading trunk "0" with the
// country code; prepend the country code to bare 9-digit subscriber numbers.
// Anything else is returned as-is and left for the provider to reject.
// Empty input yields an empty string.
func Normalize(input, countryCode string) string {
	digits := digitsOnly(input)
	if digits == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(digits, countryCode):
		return digits
	case strings.HasPrefix(digits, "0"):
		return countryCode + digits[1:]
	case len(digits) == bareSubscriberLen:
		return countryCode + digits
	default:
		return digits
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
