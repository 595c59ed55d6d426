package vocab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchCategories(t *testing.T) {
	v := Default()

	tests := []struct {
		name           string
		text           string
		wantCategory   string
		wantHighConf   bool
		wantNoMatches  bool
	}{
		{
			name:         "attorney title is a high confidence legal match",
			text:         "Senior Attorney at Cruz & Associates",
			wantCategory: "Legal",
			wantHighConf: true,
		},
		{
			name:         "litigation keyword is a plain legal match",
			text:         "handles litigation support",
			wantCategory: "Legal",
			wantHighConf: false,
		},
		{
			name:         "surgeon is a high confidence medical match",
			text:         "Cardiac Surgeon, St. Luke's",
			wantCategory: "Medical",
			wantHighConf: true,
		},
		{
			name:          "short keywords do not fire inside longer words",
			text:          "visit lawton plaza",
			wantNoMatches: true,
		},
		{
			name:          "empty text",
			text:          "",
			wantNoMatches: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := v.MatchCategories(tt.text)

			if tt.wantNoMatches {
				assert.Empty(t, matches)
				return
			}

			require.NotEmpty(t, matches)
			assert.Equal(t, tt.wantCategory, matches[0].Category)
			assert.Equal(t, tt.wantHighConf, matches[0].HighConfidence)
		})
	}
}

func TestMatchCategories_MultipleHits(t *testing.T) {
	v := Default()

	matches := v.MatchCategories("lawyer and notary public, legal services")

	require.NotEmpty(t, matches)
	assert.Equal(t, "Legal", matches[0].Category)
	assert.True(t, matches[0].HighConfidence)
	assert.GreaterOrEqual(t, matches[0].Hits, 3)
}

func TestMatchSpecializations(t *testing.T) {
	v := Default()

	tests := []struct {
		name     string
		category string
		text     string
		want     []string
	}{
		{
			name:     "family law keywords",
			category: "Legal",
			text:     "divorce and child custody cases",
			want:     []string{"family law"},
		},
		{
			name:     "cardiology keywords",
			category: "Medical",
			text:     "heart specialist",
			want:     []string{"cardiology"},
		},
		{
			name:     "unknown category",
			category: "Astrology",
			text:     "anything",
			want:     nil,
		},
		{
			name:     "no specialization keywords",
			category: "Legal",
			text:     "general practice",
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.MatchSpecializations(tt.category, tt.text))
		})
	}
}

func TestCanonicalCity(t *testing.T) {
	v := Default()

	tests := []struct {
		name      string
		raw       string
		want      string
		wantKnown bool
	}{
		{name: "qc alias", raw: "QC", want: "Quezon City", wantKnown: true},
		{name: "bgc alias", raw: "BGC", want: "Taguig", wantKnown: true},
		{name: "ortigas alias", raw: "Ortigas", want: "Pasig", wantKnown: true},
		{name: "city suffix stripped", raw: "Makati City", want: "Makati", wantKnown: true},
		{name: "already canonical", raw: "Manila", want: "Manila", wantKnown: true},
		{name: "case insensitive", raw: "mAkAtI cBd", want: "Makati", wantKnown: true},
		{name: "unknown passes through title cased", raw: "san  pablo", want: "San Pablo", wantKnown: false},
		{name: "empty", raw: "  ", want: "", wantKnown: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, known := v.CanonicalCity(tt.raw)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantKnown, known)
		})
	}
}

func TestFindLocation(t *testing.T) {
	v := Default()

	city, found := v.FindLocation("Unit 4B Ortigas Center, Pasig")
	assert.True(t, found)
	assert.Equal(t, "Pasig", city)

	_, found = v.FindLocation("Rizalino Building, somewhere")
	assert.False(t, found, "city names should not fire inside longer words")
}

func TestFindLocations(t *testing.T) {
	v := Default()

	t.Run("mentions in order of appearance", func(t *testing.T) {
		mentions := v.FindLocations("meetup in Makati or Pasig next week")

		require.Len(t, mentions, 2)
		assert.Equal(t, "Makati", mentions[0].City)
		assert.Equal(t, "Pasig", mentions[1].City)
	})

	t.Run("longer names consume their span", func(t *testing.T) {
		mentions := v.FindLocations("based in Quezon City")

		require.Len(t, mentions, 1)
		assert.Equal(t, "quezon city", mentions[0].Mention)
		assert.Equal(t, "Quezon City", mentions[0].City)
	})

	t.Run("aliases resolve to their city", func(t *testing.T) {
		mentions := v.FindLocations("moved from QC to BGC")

		require.Len(t, mentions, 2)
		assert.Equal(t, "Quezon City", mentions[0].City)
		assert.Equal(t, "Taguig", mentions[1].City)
	})

	t.Run("no mentions", func(t *testing.T) {
		assert.Empty(t, v.FindLocations("no places here"))
	})
}

func TestRegions(t *testing.T) {
	v := Default()

	assert.Equal(t, "Metro Manila", v.RegionOf("Makati"))
	assert.Equal(t, "Central Luzon", v.RegionOf("Bulacan"))
	assert.True(t, v.SameRegion("Makati", "Quezon City"))
	assert.False(t, v.SameRegion("Makati", "Cebu"))
	assert.False(t, v.SameRegion("Atlantis", "Atlantis"))
}

func TestIsUrgent(t *testing.T) {
	v := Default()

	assert.True(t, v.IsUrgent("I need a lawyer ASAP"))
	assert.True(t, v.IsUrgent("need now, any cardiologist"))
	assert.False(t, v.IsUrgent("looking for a dentist sometime next month"))
}

func TestDomainSector(t *testing.T) {
	v := Default()

	tests := []struct {
		domain string
		want   string
	}{
		{domain: "gmail.com", want: "personal"},
		{domain: "up.edu.ph", want: "educational"},
		{domain: "dof.gov.ph", want: "government"},
		{domain: "stlukeshospital.ph", want: "medical"},
		{domain: "petron.com", want: "corporate"},
		{domain: "localhost", want: "unknown"},
		{domain: "", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			assert.Equal(t, tt.want, v.DomainSector(tt.domain))
		})
	}
}

func TestCompanyForDomain(t *testing.T) {
	v := Default()

	company, ok := v.CompanyForDomain("PETRON.COM")
	assert.True(t, ok)
	assert.Equal(t, "Petron Corporation", company)

	_, ok = v.CompanyForDomain("gmail.com")
	assert.False(t, ok)
}

func TestCategoryForSector(t *testing.T) {
	v := Default()

	category, ok := v.CategoryForSector("medical")
	assert.True(t, ok)
	assert.Equal(t, "Medical", category)

	_, ok = v.CategoryForSector("corporate")
	assert.False(t, ok)
}
