package merging

import (
	"sort"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Field merge strategies. Identity fields trust the primary record;
// contact and work fields trust whoever reported most recently;
// specializations accumulate.
const (
	strategyPreferPrimary = "prefer_primary"
	strategyMostRecent    = "most_recent"
	strategyUnion         = "union"
)

// mergeField describes one field the resolver manages on the golden
// record. Values travel as any with concrete types string, int, bool, or
// []string.
type mergeField struct {
	name     string
	strategy string
	get      func(*models.Member) any
	set      func(*models.Member, any)
}

func strField(name, strategy string, get func(*models.Member) **string) mergeField {
	return mergeField{
		name:     name,
		strategy: strategy,
		get: func(m *models.Member) any {
			p := *get(m)
			if p == nil || *p == "" {
				return nil
			}
			return *p
		},
		set: func(m *models.Member, v any) {
			s := v.(string)
			*get(m) = &s
		},
	}
}

func intField(name, strategy string, get func(*models.Member) **int) mergeField {
	return mergeField{
		name:     name,
		strategy: strategy,
		get: func(m *models.Member) any {
			p := *get(m)
			if p == nil {
				return nil
			}
			return *p
		},
		set: func(m *models.Member, v any) {
			i := v.(int)
			*get(m) = &i
		},
	}
}

// mergeFields is the full table of merge-managed fields, in change record
// order.
var mergeFields = []mergeField{
	strField("first_name", strategyPreferPrimary, func(m *models.Member) **string { return &m.FirstName }),
	strField("middle_name", strategyPreferPrimary, func(m *models.Member) **string { return &m.MiddleName }),
	strField("last_name", strategyPreferPrimary, func(m *models.Member) **string { return &m.LastName }),
	strField("nickname", strategyPreferPrimary, func(m *models.Member) **string { return &m.Nickname }),
	strField("honorific", strategyPreferPrimary, func(m *models.Member) **string { return &m.Honorific }),
	strField("name_suffix", strategyPreferPrimary, func(m *models.Member) **string { return &m.NameSuffix }),
	intField("batch_year", strategyPreferPrimary, func(m *models.Member) **int { return &m.BatchYear }),
	strField("batch_semester", strategyPreferPrimary, func(m *models.Member) **string { return &m.BatchSemester }),
	intField("batch_sub_number", strategyPreferPrimary, func(m *models.Member) **int { return &m.BatchSubNumber }),
	strField("batch_label", strategyPreferPrimary, func(m *models.Member) **string { return &m.BatchLabel }),
	intField("batch_decade", strategyPreferPrimary, func(m *models.Member) **int { return &m.BatchDecade }),
	strField("chapter_name", strategyPreferPrimary, func(m *models.Member) **string { return &m.ChapterName }),
	strField("email", strategyMostRecent, func(m *models.Member) **string { return &m.Email }),
	strField("email_domain", strategyMostRecent, func(m *models.Member) **string { return &m.EmailDomain }),
	strField("email_sector", strategyMostRecent, func(m *models.Member) **string { return &m.EmailSector }),
	strField("mobile_number", strategyMostRecent, func(m *models.Member) **string { return &m.MobileNumber }),
	strField("landline_number", strategyMostRecent, func(m *models.Member) **string { return &m.LandlineNumber }),
	strField("home_address", strategyMostRecent, func(m *models.Member) **string { return &m.HomeAddress }),
	strField("home_city", strategyMostRecent, func(m *models.Member) **string { return &m.HomeCity }),
	strField("home_region", strategyMostRecent, func(m *models.Member) **string { return &m.HomeRegion }),
	strField("office_address", strategyMostRecent, func(m *models.Member) **string { return &m.OfficeAddress }),
	strField("office_city", strategyMostRecent, func(m *models.Member) **string { return &m.OfficeCity }),
	strField("office_region", strategyMostRecent, func(m *models.Member) **string { return &m.OfficeRegion }),
	strField("job_title", strategyMostRecent, func(m *models.Member) **string { return &m.JobTitle }),
	strField("company", strategyMostRecent, func(m *models.Member) **string { return &m.Company }),
	strField("declared_profession", strategyMostRecent, func(m *models.Member) **string { return &m.DeclaredProfession }),
	{
		name:     "specializations",
		strategy: strategyUnion,
		get: func(m *models.Member) any {
			specs := m.Specializations.GetValue()
			if len(specs) == 0 {
				return nil
			}
			return specs
		},
		set: func(m *models.Member, v any) {
			m.Specializations.Data = v.([]string)
		},
	},
	{
		name:     "open_to_referrals",
		strategy: strategyMostRecent,
		get: func(m *models.Member) any {
			if m.OpenToReferrals == nil {
				return nil
			}
			return *m.OpenToReferrals
		},
		set: func(m *models.Member, v any) {
			b := v.(bool)
			m.OpenToReferrals = &b
		},
	},
}

// fieldValue is one member's value for a field under merge. CollectedAt
// is the best estimate of when the value was current: the record's data
// vintage or a later verification, falling back to the row update time.
type fieldValue struct {
	Value       any
	MemberID    string
	CollectedAt time.Time
	IsPrimary   bool
}

// resolveValue picks the winning value for one field. Returns the value
// and the member it came from; nil when no record has the field.
func resolveValue(field mergeField, values []fieldValue) (any, string) {
	if len(values) == 0 {
		return nil, ""
	}

	switch field.strategy {
	case strategyPreferPrimary:
		for _, v := range values {
			if v.IsPrimary {
				return v.Value, v.MemberID
			}
		}
		return newest(values)
	case strategyUnion:
		return unionStrings(values), ""
	default: // most_recent
		return newest(values)
	}
}

// newest returns the value with the latest collected date. Ties go to the
// primary record, then the smallest member id, so merges stay
// deterministic.
func newest(values []fieldValue) (any, string) {
	best := values[0]
	for _, v := range values[1:] {
		switch {
		case v.CollectedAt.After(best.CollectedAt):
			best = v
		case v.CollectedAt.Equal(best.CollectedAt):
			if (v.IsPrimary && !best.IsPrimary) || (v.IsPrimary == best.IsPrimary && v.MemberID < best.MemberID) {
				best = v
			}
		}
	}
	return best.Value, best.MemberID
}

// unionStrings merges every record's list into one sorted, deduplicated
// list.
func unionStrings(values []fieldValue) any {
	seen := make(map[string]bool)
	var union []string
	for _, v := range values {
		items, ok := v.Value.([]string)
		if !ok {
			continue
		}
		for _, item := range items {
			if !seen[item] {
				seen[item] = true
				union = append(union, item)
			}
		}
	}
	if union == nil {
		return nil
	}
	sort.Strings(union)
	return union
}
