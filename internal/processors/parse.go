package processors

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var (
	errNotNumber  = errors.New("not a number")
	errNotInteger = errors.New("not a whole number")
	errNotDate    = errors.New("not a recognised date")
)

var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"02/01/2006 15:04",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
}

// cleanCell strips spreadsheet artifacts: surrounding quotes and the ="..."
// formula wrapper some exports use to keep leading zeros.
func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	return strings.TrimSpace(strings.Trim(s, `"`))
}

// parseDecimal accepts currency symbols, thousands separators and either
// "." or "," as decimal separator. The rightmost separator is the decimal
// one when both appear.
func parseDecimal(raw string) (float64, error) {
	s := cleanCell(raw)
	s = strings.NewReplacer("$", "", "\u20ac", "", "\u00a3", "", " ", "", "\u00a0", "").Replace(s)
	if s == "" {
		return 0, errNotNumber
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	if !numericRegex.MatchString(s) {
		return 0, errNotNumber
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errNotNumber
	}
	if negative {
		v = -v
	}
	return v, nil
}

// parseInt accepts integral decimals such as "12.0" from spreadsheet cells.
func parseInt(raw string) (int, error) {
	v, err := parseDecimal(raw)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) || v > math.MaxInt32 || v < math.MinInt32 {
		return 0, errNotInteger
	}
	return int(v), nil
}

// parseDate accepts the common layouts and Excel serial day numbers.
func parseDate(raw string) (time.Time, error) {
	s := cleanCell(raw)
	if s == "" {
		return time.Time{}, errNotDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < 2958466 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errNotDate
}
