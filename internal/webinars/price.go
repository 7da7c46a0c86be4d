package webinars

import (
	"errors"
	"strconv"
	"strings"
)

var errInvalidPrice = errors.New("price must be a non-negative amount with at most two decimals")

// ParsePriceMinor converts a decimal major-unit amount ("500", "500.5",
// "500.00") to minor units without going through floating point.
func ParsePriceMinor(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || strings.HasPrefix(whole, "-") || strings.HasPrefix(whole, "+") {
		return 0, errInvalidPrice
	}
	if hasFrac && (len(frac) == 0 || len(frac) > 2) {
		return 0, errInvalidPrice
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units > (1<<62)/100 {
		return 0, errInvalidPrice
	}
	var minor int64
	if hasFrac {
		for len(frac) < 2 {
			frac += "0"
		}
		if minor, err = strconv.ParseInt(frac, 10, 64); err != nil || minor < 0 {
			return 0, errInvalidPrice
		}
	}
	return units*100 + minor, nil
}
