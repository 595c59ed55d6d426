package normalizers

import (
	"regexp"
	"strconv"
	"time"
)

// Source names carry their collection date as a four-digit year
// ("directory-2019.xlsx") or a decade marker ("dekada90", "'90s").
var (
	vintageYearPattern = regexp.MustCompile(`(?:19|20)\d{2}`)
	vintageEraPattern  = regexp.MustCompile(`(?i)(?:dekada\s*([1-9]0)\b|'?([1-9]0)s\b)`)
)

// Vintage estimates when a source's data was collected from the source
// name. A year hint pins the vintage to January of that year; a decade
// marker lands mid-decade. Returns nil when the name carries no usable
// hint, so callers fall back to the import time.
func (n *Normalizer) Vintage(sourceName string) *time.Time {
	if match := vintageYearPattern.FindString(sourceName); match != "" {
		year, _ := strconv.Atoi(match)
		if year >= n.config.BatchMinYear && year <= n.config.MaxBatchYear {
			return vintageDate(year)
		}
	}

	if match := vintageEraPattern.FindStringSubmatch(sourceName); match != nil {
		digits := match[1]
		if digits == "" {
			digits = match[2]
		}
		decade, _ := strconv.Atoi(digits)
		// Same pivot as batch years, then the middle of the decade.
		if decade < n.config.BatchPivotYear {
			decade += 2000
		} else {
			decade += 1900
		}
		if year := decade + 5; year >= n.config.BatchMinYear && year <= n.config.MaxBatchYear {
			return vintageDate(year)
		}
	}

	return nil
}

func vintageDate(year int) *time.Time {
	t := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return &t
}
