package vocab

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Load reads a YAML vocabulary file and overlays it on the defaults.
// Sections the file leaves empty keep their default values, so a deployment
// can extend just the company domain table without restating the keyword
// tables. An empty path returns the defaults unchanged.
func Load(path string) (*Vocabulary, error) {
	v := Default()
	if path == "" {
		return v, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary file %q: %w", path, err)
	}

	var overlay Vocabulary
	if err := yaml.Unmarshal(content, &overlay); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vocabulary file %q: %w", path, err)
	}

	if len(overlay.Categories) > 0 {
		v.Categories = overlay.Categories
	}
	if len(overlay.LocationAliases) > 0 {
		for alias, canonical := range overlay.LocationAliases {
			v.LocationAliases[alias] = canonical
		}
	}
	if len(overlay.Regions) > 0 {
		for region, cities := range overlay.Regions {
			v.Regions[region] = cities
		}
	}
	if len(overlay.UrgencyTerms) > 0 {
		v.UrgencyTerms = overlay.UrgencyTerms
	}
	if len(overlay.CompanyDomains) > 0 {
		for domain, company := range overlay.CompanyDomains {
			v.CompanyDomains[domain] = company
		}
	}
	if len(overlay.PersonalDomains) > 0 {
		v.PersonalDomains = append(v.PersonalDomains, overlay.PersonalDomains...)
	}
	if len(overlay.SectorCategories) > 0 {
		for sector, category := range overlay.SectorCategories {
			v.SectorCategories[sector] = category
		}
	}

	v.Finalize()
	return v, nil
}
