package ntriples

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// XSD is the XML Schema datatype namespace.
const XSD = "http://www.w3.org/2001/XMLSchema#"

var (
	integerRe  = regexp.MustCompile(`^[+-]?[0-9]+$`)
	decimalRe  = regexp.MustCompile(`^[+-]?([0-9]+(\.[0-9]*)?|\.[0-9]+)$`)
	doubleRe   = regexp.MustCompile(`^([+-]?([0-9]+(\.[0-9]*)?|\.[0-9]+)([eE][+-]?[0-9]+)?|[+-]?INF|NaN)$`)
	dateRe     = regexp.MustCompile(`^-?([0-9]{4,})-([0-9]{2})-([0-9]{2})(Z|[+-][0-9]{2}:[0-9]{2})?$`)
	dateTimeRe = regexp.MustCompile(`^-?([0-9]{4,})-([0-9]{2})-([0-9]{2})T([0-9]{2}):([0-9]{2}):([0-9]{2})(\.[0-9]+)?(Z|[+-][0-9]{2}:[0-9]{2})?$`)
)

type intRange struct {
	min, max *big.Int
}

func bound(s string) *big.Int {
	v, _ := new(big.Int).SetString(s, 10)
	return v
}

// Value-space bounds of the derived integer types. A nil side is unbounded.
var integerTypes = map[string]intRange{
	"integer":            {},
	"long":               {bound("-9223372036854775808"), bound("9223372036854775807")},
	"int":                {bound("-2147483648"), bound("2147483647")},
	"short":              {bound("-32768"), bound("32767")},
	"byte":               {bound("-128"), bound("127")},
	"nonNegativeInteger": {bound("0"), nil},
	"positiveInteger":    {bound("1"), nil},
	"nonPositiveInteger": {nil, bound("0")},
	"negativeInteger":    {nil, bound("-1")},
	"unsignedLong":       {bound("0"), bound("18446744073709551615")},
	"unsignedInt":        {bound("0"), bound("4294967295")},
	"unsignedShort":      {bound("0"), bound("65535")},
	"unsignedByte":       {bound("0"), bound("255")},
}

// checkLexicalForm rejects values outside the lexical space of the well-known
// XSD datatypes. Unknown datatypes are accepted as-is.
func checkLexicalForm(value, datatype string) error {
	local, ok := strings.CutPrefix(datatype, XSD)
	if !ok {
		return nil
	}
	if r, ok := integerTypes[local]; ok {
		return checkInteger(value, local, r)
	}
	switch local {
	case "decimal":
		if !decimalRe.MatchString(value) {
			return invalidFor(value, local)
		}
	case "double", "float":
		if !doubleRe.MatchString(value) {
			return invalidFor(value, local)
		}
	case "boolean":
		switch value {
		case "true", "false", "1", "0":
		default:
			return invalidFor(value, local)
		}
	case "date":
		m := dateRe.FindStringSubmatch(value)
		if m == nil || !validDate(m[1], m[2], m[3]) {
			return invalidFor(value, local)
		}
	case "dateTime":
		m := dateTimeRe.FindStringSubmatch(value)
		if m == nil || !validDate(m[1], m[2], m[3]) || !validClock(m[4], m[5], m[6]) {
			return invalidFor(value, local)
		}
	case "anyURI":
		if strings.ContainsAny(value, " \t\n\r") {
			return invalidFor(value, local)
		}
	}
	return nil
}

func checkInteger(value, local string, r intRange) error {
	if !integerRe.MatchString(value) {
		return invalidFor(value, local)
	}
	n, ok := new(big.Int).SetString(strings.TrimPrefix(value, "+"), 10)
	if !ok {
		return invalidFor(value, local)
	}
	if r.min != nil && n.Cmp(r.min) < 0 {
		return fmt.Errorf("value %q is out of range for xsd:%s", value, local)
	}
	if r.max != nil && n.Cmp(r.max) > 0 {
		return fmt.Errorf("value %q is out of range for xsd:%s", value, local)
	}
	return nil
}

func validDate(year, month, day string) bool {
	y, err := strconv.Atoi(year)
	if err != nil || y == 0 {
		return false
	}
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	if m < 1 || m > 12 || d < 1 {
		return false
	}
	// Day 0 of the following month is the last day of this one.
	last := time.Date(y, time.Month(m)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	return d <= last
}

func validClock(hour, minute, second string) bool {
	h, _ := strconv.Atoi(hour)
	m, _ := strconv.Atoi(minute)
	s, _ := strconv.Atoi(second)
	if h == 24 {
		return m == 0 && s == 0
	}
	return h < 24 && m < 60 && s < 60
}

func invalidFor(value, local string) error {
	return fmt.Errorf("value %q is not a valid xsd:%s", value, local)
}
