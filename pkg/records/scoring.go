package records

import "github.com/Ramsey-B/fern/pkg/models"

// completenessWeights value contactability and profession data over the
// rest: a member you can reach and route is worth more to the directory
// than one with every address field filled.
var completenessWeights = []struct {
	name      string
	weight    float64
	populated func(*models.Member) bool
}{
	{"name_parts", 0.10, func(m *models.Member) bool { return m.FirstName != nil && m.LastName != nil }},
	{"email", 0.15, func(m *models.Member) bool { return m.Email != nil }},
	{"mobile", 0.10, func(m *models.Member) bool { return m.MobileNumber != nil }},
	{"landline", 0.05, func(m *models.Member) bool { return m.LandlineNumber != nil }},
	{"batch", 0.10, func(m *models.Member) bool { return m.BatchYear != nil }},
	{"chapter", 0.05, func(m *models.Member) bool { return m.ChapterName != nil }},
	{"home_location", 0.10, func(m *models.Member) bool { return m.HomeCity != nil || m.HomeAddress != nil }},
	{"office_location", 0.10, func(m *models.Member) bool { return m.OfficeCity != nil || m.OfficeAddress != nil }},
	{"profession", 0.15, func(m *models.Member) bool { return m.DeclaredProfession != nil || m.JobTitle != nil }},
	{"company", 0.05, func(m *models.Member) bool { return m.Company != nil }},
	{"referral_flag", 0.05, func(m *models.Member) bool { return m.OpenToReferrals != nil }},
}

// Completeness scores how much of a member's profile is populated, 0 to 1.
func Completeness(m *models.Member) float64 {
	var score float64
	for _, fw := range completenessWeights {
		if fw.populated(m) {
			score += fw.weight
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

// Confidence scores how much the record can be trusted, 0 to 1.
// Completeness carries the base; a real email, a declared profession, and
// a parsed batch each add trust, and inference contributes only in
// proportion to its own confidence.
func Confidence(m *models.Member) float64 {
	score := Completeness(m) * 0.4

	if m.Email != nil {
		score += 0.2
	}
	if m.DeclaredProfession != nil {
		score += 0.2
	}
	if m.BatchYear != nil {
		score += 0.1
	}
	score += m.InferredConfidence() * 0.1

	if score > 1 {
		score = 1
	}
	return score
}

// VerifiedConfidence is the confidence score after a human vouches for
// the record. The bonus lifts a verified record above an equally
// complete unverified one.
func VerifiedConfidence(m *models.Member) float64 {
	score := Confidence(m) + 0.2
	if score > 1 {
		score = 1
	}
	return score
}
