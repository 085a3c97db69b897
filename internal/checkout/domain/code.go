package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Order codes are shown to customers and used for lookup; the shape
// ORD-YYYYMMDD-NNNN is a stable external contract.
const (
	codePrefix = "ORD"
	SerialMax  = 9999
)

var (
	ErrCodesExhausted = errors.New("order codes exhausted for the day")
	errBadCode        = errors.New("malformed order code")
)

// OrderCode renders the code for a day and serial. Serials are date-scoped
// and start at 1.
func OrderCode(day time.Time, serial int) string {
	return fmt.Sprintf("%s-%s-%04d", codePrefix, day.Format("20060102"), serial)
}

// CodeDayPrefix is the shared prefix of every code issued on the given
// day, including the trailing dash.
func CodeDayPrefix(day time.Time) string {
	return fmt.Sprintf("%s-%s-", codePrefix, day.Format("20060102"))
}

// SerialOf extracts the serial from a code produced by OrderCode.
func SerialOf(code string) (int, error) {
	parts := strings.Split(code, "-")
	if len(parts) != 3 || parts[0] != codePrefix {
		return 0, fmt.Errorf("%w: %q", errBadCode, code)
	}
	serial, err := strconv.Atoi(parts[2])
	if err != nil || serial < 1 {
		return 0, fmt.Errorf("%w: %q", errBadCode, code)
	}
	return serial, nil
}
