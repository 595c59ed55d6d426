// Package vocab holds the shared vocabulary: service categories with their
// keyword tables, location aliases and regions, urgency terms, and email
// domain intelligence. Normalization, inference, query parsing, and ranking
// all read the same instance so a category inferred from a company name is
// the same category a query keyword resolves to.
package vocab

import (
	"sort"
	"strings"
	"unicode"
)

// Category is one service category (Legal, Medical, ...) with the keywords
// that map free text onto it.
type Category struct {
	Name string `yaml:"name" json:"name"`
	// Keywords mark text as belonging to this category.
	Keywords []string `yaml:"keywords" json:"keywords"`
	// HighConfidence keywords are strong signals (a "lawyer" token outweighs
	// a stray "legal").
	HighConfidence []string `yaml:"high_confidence" json:"high_confidence"`
	// Specializations maps a specialization label to the keywords that
	// select it, e.g. "family law" -> [family, divorce, custody].
	Specializations map[string][]string `yaml:"specializations" json:"specializations"`
}

// Vocabulary is immutable after Finalize. Components receive it by pointer
// and never mutate it.
type Vocabulary struct {
	Categories      []Category          `yaml:"categories" json:"categories"`
	LocationAliases map[string]string   `yaml:"location_aliases" json:"location_aliases"`
	Regions         map[string][]string `yaml:"regions" json:"regions"`
	UrgencyTerms    []string            `yaml:"urgency_terms" json:"urgency_terms"`
	CompanyDomains  map[string]string   `yaml:"company_domains" json:"company_domains"`
	PersonalDomains []string            `yaml:"personal_domains" json:"personal_domains"`
	// SectorCategories maps an email domain sector to a category name,
	// e.g. "medical" -> "Medical".
	SectorCategories map[string]string `yaml:"sector_categories" json:"sector_categories"`

	categoryIndex map[string]*Category
	aliasIndex    map[string]string
	regionIndex   map[string]string
	personalIndex map[string]bool
	cityIndex     map[string]string
	locationNames []string
}

// CategoryMatch is one category keyword hit in a piece of text.
type CategoryMatch struct {
	Category       string
	Keyword        string
	HighConfidence bool
	Hits           int
}

// Finalize builds the lookup indexes. Must be called once after loading and
// before any lookups.
func (v *Vocabulary) Finalize() {
	v.categoryIndex = make(map[string]*Category, len(v.Categories))
	for i := range v.Categories {
		c := &v.Categories[i]
		v.categoryIndex[strings.ToLower(c.Name)] = c
	}

	v.aliasIndex = make(map[string]string, len(v.LocationAliases))
	for alias, canonical := range v.LocationAliases {
		v.aliasIndex[strings.ToLower(alias)] = canonical
	}

	v.regionIndex = make(map[string]string)
	v.cityIndex = make(map[string]string)
	for region, cities := range v.Regions {
		for _, city := range cities {
			v.regionIndex[strings.ToLower(city)] = region
			v.cityIndex[strings.ToLower(city)] = city
		}
	}

	v.personalIndex = make(map[string]bool, len(v.PersonalDomains))
	for _, domain := range v.PersonalDomains {
		v.personalIndex[strings.ToLower(domain)] = true
	}

	seen := make(map[string]bool, len(v.aliasIndex)+len(v.cityIndex))
	v.locationNames = v.locationNames[:0]
	for alias := range v.aliasIndex {
		if !seen[alias] {
			seen[alias] = true
			v.locationNames = append(v.locationNames, alias)
		}
	}
	for city := range v.cityIndex {
		if !seen[city] {
			seen[city] = true
			v.locationNames = append(v.locationNames, city)
		}
	}
	// Longest first so "quezon city" wins over "quezon" when both appear.
	sort.Slice(v.locationNames, func(i, j int) bool {
		if len(v.locationNames[i]) != len(v.locationNames[j]) {
			return len(v.locationNames[i]) > len(v.locationNames[j])
		}
		return v.locationNames[i] < v.locationNames[j]
	})
}

// CategoryByName looks up a category case-insensitively.
func (v *Vocabulary) CategoryByName(name string) (*Category, bool) {
	c, ok := v.categoryIndex[strings.ToLower(name)]
	return c, ok
}

// MatchCategories reports every category with at least one keyword hit in
// text, in category declaration order. Single-word keywords match whole
// tokens only, so "it" does not fire inside "visit".
func (v *Vocabulary) MatchCategories(text string) []CategoryMatch {
	tokens := tokenSet(text)
	padded := paddedText(text)

	var matches []CategoryMatch
	for i := range v.Categories {
		c := &v.Categories[i]
		match := CategoryMatch{Category: c.Name}
		for _, kw := range c.Keywords {
			if containsTerm(tokens, padded, kw) {
				match.Hits++
				if match.Keyword == "" {
					match.Keyword = kw
				}
			}
		}
		for _, kw := range c.HighConfidence {
			if containsTerm(tokens, padded, kw) {
				match.HighConfidence = true
				match.Keyword = kw
			}
		}
		if match.Hits > 0 || match.HighConfidence {
			if match.Hits == 0 {
				match.Hits = 1
			}
			matches = append(matches, match)
		}
	}
	return matches
}

// MatchSpecializations reports the specialization labels of category whose
// keywords appear in text, in declaration-independent sorted order.
func (v *Vocabulary) MatchSpecializations(category string, text string) []string {
	c, ok := v.CategoryByName(category)
	if !ok {
		return nil
	}
	tokens := tokenSet(text)
	padded := paddedText(text)

	var labels []string
	for label, keywords := range c.Specializations {
		for _, kw := range keywords {
			if containsTerm(tokens, padded, kw) {
				labels = append(labels, label)
				break
			}
		}
	}
	sort.Strings(labels)
	return labels
}

// CanonicalCity resolves an alias or raw location to its canonical city
// name. The second return reports whether the input was recognized.
func (v *Vocabulary) CanonicalCity(raw string) (string, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	if cleaned == "" {
		return "", false
	}
	if canonical, ok := v.aliasIndex[cleaned]; ok {
		return canonical, true
	}
	// "Makati City" and "Makati" are the same place.
	for _, suffix := range []string{" city", " municipality", " town"} {
		if strings.HasSuffix(cleaned, suffix) {
			base := strings.TrimSuffix(cleaned, suffix)
			if canonical, ok := v.aliasIndex[base]; ok {
				return canonical, true
			}
			if canonical, ok := v.cityIndex[base]; ok {
				return canonical, true
			}
		}
	}
	if canonical, ok := v.cityIndex[cleaned]; ok {
		return canonical, true
	}
	return titleCase(cleaned), false
}

// RegionOf returns the region a canonical city belongs to, or "".
func (v *Vocabulary) RegionOf(city string) string {
	return v.regionIndex[strings.ToLower(city)]
}

// SameRegion reports whether two canonical cities share a known region.
func (v *Vocabulary) SameRegion(a, b string) bool {
	ra := v.RegionOf(a)
	return ra != "" && ra == v.RegionOf(b)
}

// KnownLocations returns every alias and city name, lowercased and longest
// first, for multi-word scanning by the address and query parsers.
func (v *Vocabulary) KnownLocations() []string {
	return v.locationNames
}

// FindLocation scans free text for a known location name, longest names
// first, and resolves the hit to its canonical city. Matches respect word
// boundaries so "Rizal" does not fire inside "Rizalino".
func (v *Vocabulary) FindLocation(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, name := range v.locationNames {
		if containsWord(lowered, name) {
			city, _ := v.CanonicalCity(name)
			return city, true
		}
	}
	return "", false
}

// LocationMention is one location hit found in free text.
type LocationMention struct {
	// Mention is the matched text, lowercased.
	Mention string
	// City is the canonical city the mention resolves to.
	City string
}

// FindLocations scans free text for every known location mention. Longer
// names match first and their spans are consumed, so "Quezon City" does not
// also yield "Quezon". Mentions come back in order of appearance; the same
// city can appear more than once when the text mentions it under different
// names.
func (v *Vocabulary) FindLocations(text string) []LocationMention {
	type hit struct {
		pos     int
		mention LocationMention
	}

	working := []byte(strings.ToLower(text))
	var hits []hit
	for _, name := range v.locationNames {
		for {
			idx := indexWord(string(working), name)
			if idx < 0 {
				break
			}
			city, _ := v.CanonicalCity(name)
			hits = append(hits, hit{pos: idx, mention: LocationMention{Mention: name, City: city}})
			for i := idx; i < idx+len(name); i++ {
				working[i] = '#'
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	mentions := make([]LocationMention, 0, len(hits))
	for _, h := range hits {
		mentions = append(mentions, h.mention)
	}
	return mentions
}

func containsWord(text, word string) bool {
	return indexWord(text, word) >= 0
}

// indexWord returns the offset of the first whole-word occurrence of word
// in text, or -1. Both arguments must already be lowercased.
func indexWord(text, word string) int {
	for from := 0; ; {
		idx := strings.Index(text[from:], word)
		if idx < 0 {
			return -1
		}
		idx += from
		before := idx == 0 || !isWordByte(text[idx-1])
		end := idx + len(word)
		after := end >= len(text) || !isWordByte(text[end])
		if before && after {
			return idx
		}
		from = idx + 1
	}
}

func isWordByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

// IsUrgent reports whether text contains an urgency term.
func (v *Vocabulary) IsUrgent(text string) bool {
	tokens := tokenSet(text)
	padded := paddedText(text)
	for _, term := range v.UrgencyTerms {
		if containsTerm(tokens, padded, term) {
			return true
		}
	}
	return false
}

// CompanyForDomain resolves an email domain to a known company name.
func (v *Vocabulary) CompanyForDomain(domain string) (string, bool) {
	name, ok := v.CompanyDomains[strings.ToLower(domain)]
	return name, ok && name != ""
}

// IsPersonalDomain reports whether the domain is a personal mail provider.
func (v *Vocabulary) IsPersonalDomain(domain string) bool {
	return v.personalIndex[strings.ToLower(domain)]
}

// DomainSector classifies an email domain as educational, government,
// medical, personal, corporate, or unknown.
func (v *Vocabulary) DomainSector(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if d == "" {
		return "unknown"
	}
	if v.IsPersonalDomain(d) {
		return "personal"
	}
	switch {
	case strings.HasSuffix(d, ".edu") || strings.HasSuffix(d, ".edu.ph"):
		return "educational"
	case strings.HasSuffix(d, ".gov") || strings.HasSuffix(d, ".gov.ph") || strings.HasSuffix(d, ".mil"):
		return "government"
	case strings.Contains(d, "hospital") || strings.Contains(d, "medical") || strings.Contains(d, "health") || strings.Contains(d, "clinic"):
		return "medical"
	case strings.Contains(d, "."):
		return "corporate"
	default:
		return "unknown"
	}
}

// CategoryForSector maps a domain sector to a category name, if configured.
func (v *Vocabulary) CategoryForSector(sector string) (string, bool) {
	name, ok := v.SectorCategories[strings.ToLower(sector)]
	return name, ok && name != ""
}

func tokenSet(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		tokens[tok] = true
	}
	return tokens
}

// paddedText lowercases text, collapses non-alphanumerics to single spaces,
// and pads it so multi-word terms can be matched with boundary safety.
func paddedText(text string) string {
	var b strings.Builder
	b.WriteByte(' ')
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
		} else if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	if !lastSpace {
		b.WriteByte(' ')
	}
	return b.String()
}

func containsTerm(tokens map[string]bool, padded string, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return false
	}
	if !strings.Contains(term, " ") {
		return tokens[term]
	}
	return strings.Contains(padded, " "+term+" ")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			r[0] = unicode.ToUpper(r[0])
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

