package normalizers

import (
	"regexp"
	"strings"
)

// ParsedLocation is a location resolved to a canonical city and region.
type ParsedLocation struct {
	City   string
	Region string
	// Known reports whether the city came from the vocabulary rather than
	// passing through.
	Known bool
}

var cityFromAddressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)([A-Za-zñÑ' ]+?)\s+City\b`),
	regexp.MustCompile(`(?i)([A-Za-zñÑ' ]+?),\s*Metro Manila`),
	regexp.MustCompile(`(?i)([A-Za-zñÑ' ]+?),\s*Philippines`),
	regexp.MustCompile(`([A-Za-zñÑ' ]+?),\s*\d{4}`), // city before a zip code
}

// Location resolves a free-form location (a city name, an alias like "QC",
// or a full address) to its canonical city. Unrecognized values pass
// through title-cased so nothing is lost, just unindexed.
func (n *Normalizer) Location(raw string) *ParsedLocation {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return nil
	}

	city, known := n.vocabulary.CanonicalCity(cleaned)
	if known {
		return &ParsedLocation{City: city, Region: n.vocabulary.RegionOf(city), Known: true}
	}

	// Not a direct hit; treat it as an address and pull the city out.
	if candidate := n.cityFromAddress(cleaned); candidate != "" {
		resolved, resolvedKnown := n.vocabulary.CanonicalCity(candidate)
		return &ParsedLocation{City: resolved, Region: n.vocabulary.RegionOf(resolved), Known: resolvedKnown}
	}

	return &ParsedLocation{City: city, Known: false}
}

// cityFromAddress scans an address for city markers, then falls back to
// any known city or alias appearing anywhere in the text.
func (n *Normalizer) cityFromAddress(address string) string {
	for _, pattern := range cityFromAddressPatterns {
		if match := pattern.FindStringSubmatch(address); match != nil {
			candidate := strings.TrimSpace(match[1])
			// The capture is greedy on spaces; keep the last two words at
			// most ("1234 Ayala Avenue Makati" -> "Makati").
			words := strings.Fields(candidate)
			if len(words) > 2 {
				candidate = strings.Join(words[len(words)-2:], " ")
				if _, known := n.vocabulary.CanonicalCity(candidate); !known {
					candidate = words[len(words)-1]
				}
			}
			return candidate
		}
	}

	if city, known := n.vocabulary.FindLocation(address); known {
		return city
	}
	return ""
}
