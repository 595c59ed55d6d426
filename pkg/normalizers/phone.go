package normalizers

import (
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Phone types
const (
	PhoneTypeMobile   = "mobile"
	PhoneTypeLandline = "landline"
)

// ParsedPhone is a Philippine phone number in E.164 form.
type ParsedPhone struct {
	E164 string
	Type string
}

// Phone normalizes a Philippine phone number. Mobile numbers ("0917 123
// 4567", "+63 917 123 4567", "9171234567") and landlines with an area code
// ("02-8123-4567") all come out as +63 E.164. Numbers without an area code
// or with the wrong digit count are malformed.
func (n *Normalizer) Phone(raw string) (*ParsedPhone, error) {
	digits := DigitsOnly(raw)
	if digits == "" {
		return nil, &models.MalformedInputError{Field: "phone", Value: raw, Reason: "no digits"}
	}

	national := digits
	switch {
	case strings.HasPrefix(digits, "63") && len(digits) >= 11:
		national = digits[2:]
	case strings.HasPrefix(digits, "0"):
		national = digits[1:]
	}

	switch {
	case len(national) == 10 && strings.HasPrefix(national, "9"):
		return &ParsedPhone{E164: "+63" + national, Type: PhoneTypeMobile}, nil
	case len(national) >= 8 && len(national) <= 10:
		return &ParsedPhone{E164: "+63" + national, Type: PhoneTypeLandline}, nil
	default:
		return nil, &models.MalformedInputError{
			Field:  "phone",
			Value:  raw,
			Reason: "not a recognizable Philippine number",
		}
	}
}
