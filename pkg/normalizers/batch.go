package normalizers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// batchPatterns are tried in order; the first match wins. Groups are the
// year digits and the optional semester code with sub-number.
var batchPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)batch\s+no[:.]?\s*(\d{2,4})-([A-Z]+\d*)`), // Batch No: 95-S
	regexp.MustCompile(`(?i)batch\s+(\d{2,4})-([A-Z]+\d*)`),           // Batch 95-S
	regexp.MustCompile(`(?i)(\d{2,4})-([A-Z]+\d*)`),                   // 95-S, 2001-B1
	regexp.MustCompile(`(?i)batch\s+(?:of\s+)?(\d{2,4})`),             // Batch 99
	regexp.MustCompile(`(\d{2,4})`),                                   // bare year
}

var semesterParts = regexp.MustCompile(`(?i)^([A-Z]+)(\d*)$`)

// ParsedBatch is a membership batch in canonical form. Label is the
// canonical rendering ("1995-S", "2001-B1", or "1999" without a semester).
type ParsedBatch struct {
	Year      int
	Semester  string
	SubNumber *int
	Label     string
	Decade    int
}

// Era renders the decade as a display era, "'90s" before 2000 and "2000s"
// after.
func (b *ParsedBatch) Era() string {
	if b.Decade < 2000 {
		return fmt.Sprintf("'%02ds", b.Decade%100)
	}
	return fmt.Sprintf("%ds", b.Decade)
}

// Batch parses a raw batch designation. Two-digit years pivot on the
// configured year: below it they land in the 2000s, at or above it in the
// 1900s. Parsing the canonical label returns the same result. Unparseable
// input is malformed, never fatal.
func (n *Normalizer) Batch(raw string) (*ParsedBatch, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return nil, &models.MalformedInputError{Field: "batch", Value: raw, Reason: "empty"}
	}

	for _, pattern := range batchPatterns {
		match := pattern.FindStringSubmatch(cleaned)
		if match == nil {
			continue
		}

		year, err := n.batchYear(match[1])
		if err != nil {
			return nil, &models.MalformedInputError{Field: "batch", Value: raw, Reason: err.Error()}
		}

		parsed := &ParsedBatch{
			Year:   year,
			Decade: (year / 10) * 10,
		}

		if len(match) >= 3 && match[2] != "" {
			parts := semesterParts.FindStringSubmatch(match[2])
			if parts != nil {
				parsed.Semester = strings.ToUpper(parts[1])
				if parts[2] != "" {
					sub, _ := strconv.Atoi(parts[2])
					parsed.SubNumber = &sub
				}
			}
		}

		parsed.Label = batchLabel(parsed)
		return parsed, nil
	}

	return nil, &models.MalformedInputError{Field: "batch", Value: raw, Reason: "no recognizable batch designation"}
}

func (n *Normalizer) batchYear(digits string) (int, error) {
	year, err := strconv.Atoi(digits)
	if err != nil {
		return 0, err
	}

	switch len(digits) {
	case 2:
		if year < n.config.BatchPivotYear {
			year += 2000
		} else {
			year += 1900
		}
	case 4:
	default:
		return 0, fmt.Errorf("%d-digit year", len(digits))
	}

	if year < n.config.BatchMinYear || year > n.config.MaxBatchYear {
		return 0, fmt.Errorf("year %d outside %d-%d", year, n.config.BatchMinYear, n.config.MaxBatchYear)
	}
	return year, nil
}

func batchLabel(b *ParsedBatch) string {
	if b.Semester == "" {
		return strconv.Itoa(b.Year)
	}
	label := fmt.Sprintf("%d-%s", b.Year, b.Semester)
	if b.SubNumber != nil {
		label += strconv.Itoa(*b.SubNumber)
	}
	return label
}
