package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestPhone(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		name     string
		raw      string
		wantE164 string
		wantType string
	}{
		{
			name:     "mobile with leading zero",
			raw:      "0917-123-4567",
			wantE164: "+639171234567",
			wantType: PhoneTypeMobile,
		},
		{
			name:     "mobile with country code",
			raw:      "+63 917 123 4567",
			wantE164: "+639171234567",
			wantType: PhoneTypeMobile,
		},
		{
			name:     "mobile without leading zero",
			raw:      "9171234567",
			wantE164: "+639171234567",
			wantType: PhoneTypeMobile,
		},
		{
			name:     "metro manila landline",
			raw:      "(02) 8123-4567",
			wantE164: "+63281234567",
			wantType: PhoneTypeLandline,
		},
		{
			name:     "provincial landline",
			raw:      "082-222-1234",
			wantE164: "+63822221234",
			wantType: PhoneTypeLandline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := n.Phone(tt.raw)
			require.NoError(t, err)

			assert.Equal(t, tt.wantE164, parsed.E164)
			assert.Equal(t, tt.wantType, parsed.Type)
		})
	}
}

func TestPhone_Idempotent(t *testing.T) {
	n := newTestNormalizer()

	for _, raw := range []string{"0917 123 4567", "(02) 8123-4567"} {
		t.Run(raw, func(t *testing.T) {
			first, err := n.Phone(raw)
			require.NoError(t, err)

			second, err := n.Phone(first.E164)
			require.NoError(t, err)

			assert.Equal(t, first, second)
		})
	}
}

func TestPhone_Malformed(t *testing.T) {
	n := newTestNormalizer()

	for _, raw := range []string{"", "no digits here", "123", "812-3456"} {
		t.Run(raw, func(t *testing.T) {
			parsed, err := n.Phone(raw)

			require.Error(t, err)
			assert.Nil(t, parsed)
			assert.True(t, models.IsMalformedInput(err))
		})
	}
}

func TestEmail(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		name        string
		raw         string
		wantAddress string
		wantDomain  string
		wantSector  string
		wantCompany string
	}{
		{
			name:        "personal provider",
			raw:         "  Juan.Cruz@GMAIL.com ",
			wantAddress: "juan.cruz@gmail.com",
			wantDomain:  "gmail.com",
			wantSector:  "personal",
		},
		{
			name:        "known company domain",
			raw:         "jcruz@petron.com",
			wantAddress: "jcruz@petron.com",
			wantDomain:  "petron.com",
			wantSector:  "corporate",
			wantCompany: "Petron Corporation",
		},
		{
			name:        "university domain",
			raw:         "jcruz@up.edu.ph",
			wantAddress: "jcruz@up.edu.ph",
			wantDomain:  "up.edu.ph",
			wantSector:  "educational",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := n.Email(tt.raw)
			require.NoError(t, err)

			assert.Equal(t, tt.wantAddress, parsed.Address)
			assert.Equal(t, tt.wantDomain, parsed.Domain)
			assert.Equal(t, tt.wantSector, parsed.Sector)
			assert.Equal(t, tt.wantCompany, parsed.Company)
		})
	}
}

func TestEmail_Malformed(t *testing.T) {
	n := newTestNormalizer()

	for _, raw := range []string{"", "not-an-email", "two@@example.com", "@example.com", "user@", "user@nodot"} {
		t.Run(raw, func(t *testing.T) {
			parsed, err := n.Email(raw)

			require.Error(t, err)
			assert.Nil(t, parsed)
			assert.True(t, models.IsMalformedInput(err))
		})
	}
}
