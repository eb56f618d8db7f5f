package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/c360/rulescope/errors"
)

// Calendar units are fixed-length approximations. Event expiry is a coarse
// retention hint, not a schedule.
const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
	year  = 365 * day
)

// ParseExpires parses an event expiry string: a non-negative integer followed
// by a unit suffix. Supported suffixes are "s" (seconds), "m" (minutes),
// "h" (hours), "d" (days), "w" (weeks), "mn" (months) and "y" (years).
func ParseExpires(value string) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errors.WrapInvalid(errors.ErrInvalidExpiry,
			"rules", "ParseExpires", "empty expiry")
	}

	unit := time.Duration(0)
	digits := trimmed
	switch {
	case strings.HasSuffix(trimmed, "mn"):
		unit = month
		digits = strings.TrimSuffix(trimmed, "mn")
	case strings.HasSuffix(trimmed, "s"):
		unit = time.Second
		digits = strings.TrimSuffix(trimmed, "s")
	case strings.HasSuffix(trimmed, "m"):
		unit = time.Minute
		digits = strings.TrimSuffix(trimmed, "m")
	case strings.HasSuffix(trimmed, "h"):
		unit = time.Hour
		digits = strings.TrimSuffix(trimmed, "h")
	case strings.HasSuffix(trimmed, "d"):
		unit = day
		digits = strings.TrimSuffix(trimmed, "d")
	case strings.HasSuffix(trimmed, "w"):
		unit = week
		digits = strings.TrimSuffix(trimmed, "w")
	case strings.HasSuffix(trimmed, "y"):
		unit = year
		digits = strings.TrimSuffix(trimmed, "y")
	default:
		return 0, errors.WrapInvalid(errors.ErrInvalidExpiry,
			"rules", "ParseExpires", fmt.Sprintf("unknown unit in %q", value))
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n < 0 {
		return 0, errors.WrapInvalid(errors.ErrInvalidExpiry,
			"rules", "ParseExpires", fmt.Sprintf("invalid magnitude in %q", value))
	}

	return time.Duration(n) * unit, nil
}
