package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestBatch(t *testing.T) {
	n := newTestNormalizer()

	sub2 := 2
	tests := []struct {
		name         string
		raw          string
		wantYear     int
		wantSemester string
		wantSub      *int
		wantLabel    string
		wantDecade   int
	}{
		{
			name:         "two digit year with semester",
			raw:          "95-S",
			wantYear:     1995,
			wantSemester: "S",
			wantLabel:    "1995-S",
			wantDecade:   1990,
		},
		{
			name:         "batch prefix",
			raw:          "Batch 95-S",
			wantYear:     1995,
			wantSemester: "S",
			wantLabel:    "1995-S",
			wantDecade:   1990,
		},
		{
			name:         "batch no prefix",
			raw:          "Batch No: 01-B",
			wantYear:     2001,
			wantSemester: "B",
			wantLabel:    "2001-B",
			wantDecade:   2000,
		},
		{
			name:         "sub number",
			raw:          "95-S2",
			wantYear:     1995,
			wantSemester: "S",
			wantSub:      &sub2,
			wantLabel:    "1995-S2",
			wantDecade:   1990,
		},
		{
			name:         "four digit year with semester",
			raw:          "2001-B1",
			wantYear:     2001,
			wantSemester: "B",
			wantSub:      ptrInt(1),
			wantLabel:    "2001-B1",
			wantDecade:   2000,
		},
		{
			name:       "bare four digit year",
			raw:        "1999",
			wantYear:   1999,
			wantLabel:  "1999",
			wantDecade: 1990,
		},
		{
			name:       "bare two digit year pivots low to 2000s",
			raw:        "05",
			wantYear:   2005,
			wantLabel:  "2005",
			wantDecade: 2000,
		},
		{
			name:       "batch of phrasing",
			raw:        "Batch of 1988",
			wantYear:   1988,
			wantLabel:  "1988",
			wantDecade: 1980,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := n.Batch(tt.raw)
			require.NoError(t, err)

			assert.Equal(t, tt.wantYear, parsed.Year)
			assert.Equal(t, tt.wantSemester, parsed.Semester)
			assert.Equal(t, tt.wantSub, parsed.SubNumber)
			assert.Equal(t, tt.wantLabel, parsed.Label)
			assert.Equal(t, tt.wantDecade, parsed.Decade)
		})
	}
}

func TestBatch_Idempotent(t *testing.T) {
	n := newTestNormalizer()

	for _, raw := range []string{"95-S", "Batch 01-B2", "1999", "Batch of 88"} {
		t.Run(raw, func(t *testing.T) {
			first, err := n.Batch(raw)
			require.NoError(t, err)

			second, err := n.Batch(first.Label)
			require.NoError(t, err)

			assert.Equal(t, first, second)
		})
	}
}

func TestBatch_Malformed(t *testing.T) {
	n := newTestNormalizer()

	for _, raw := range []string{"", "unknown", "Batch ??", "195-S", "1850"} {
		t.Run(raw, func(t *testing.T) {
			parsed, err := n.Batch(raw)

			require.Error(t, err)
			assert.Nil(t, parsed)
			assert.True(t, models.IsMalformedInput(err))
		})
	}
}

func TestBatch_PivotConfigurable(t *testing.T) {
	n := New(nil, Config{BatchPivotYear: 30, BatchMinYear: 1900})

	parsed, err := n.Batch("45")
	require.NoError(t, err)
	assert.Equal(t, 1945, parsed.Year)

	parsed, err = n.Batch("10")
	require.NoError(t, err)
	assert.Equal(t, 2010, parsed.Year)
}

func TestBatchEra(t *testing.T) {
	b := &ParsedBatch{Decade: 1990}
	assert.Equal(t, "'90s", b.Era())

	b = &ParsedBatch{Decade: 2000}
	assert.Equal(t, "2000s", b.Era())
}

func ptrInt(v int) *int {
	return &v
}
