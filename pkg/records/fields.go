package records

import (
	"encoding/json"

	"github.com/Ramsey-B/fern/pkg/models"
)

// fieldOrder is the canonical order change records are written in, so a
// record's history reads the same way every time.
var fieldOrder = []string{
	"full_name",
	"first_name",
	"middle_name",
	"last_name",
	"nickname",
	"honorific",
	"name_suffix",
	"batch_year",
	"batch_semester",
	"batch_sub_number",
	"batch_label",
	"chapter_name",
	"email",
	"mobile_number",
	"landline_number",
	"home_address",
	"home_city",
	"office_address",
	"office_city",
	"job_title",
	"company",
	"declared_profession",
	"specializations",
	"open_to_referrals",
}

// snapshotFields captures the change-tracked fields as plain values.
// Nil means unpopulated; the map always holds every tracked field.
func snapshotFields(m *models.Member) map[string]any {
	snapshot := map[string]any{
		"full_name":           stringValue(m.FullName),
		"first_name":          ptrValue(m.FirstName),
		"middle_name":         ptrValue(m.MiddleName),
		"last_name":           ptrValue(m.LastName),
		"nickname":            ptrValue(m.Nickname),
		"honorific":           ptrValue(m.Honorific),
		"name_suffix":         ptrValue(m.NameSuffix),
		"batch_semester":      ptrValue(m.BatchSemester),
		"batch_label":         ptrValue(m.BatchLabel),
		"chapter_name":        ptrValue(m.ChapterName),
		"email":               ptrValue(m.Email),
		"mobile_number":       ptrValue(m.MobileNumber),
		"landline_number":     ptrValue(m.LandlineNumber),
		"home_address":        ptrValue(m.HomeAddress),
		"home_city":           ptrValue(m.HomeCity),
		"office_address":      ptrValue(m.OfficeAddress),
		"office_city":         ptrValue(m.OfficeCity),
		"job_title":           ptrValue(m.JobTitle),
		"company":             ptrValue(m.Company),
		"declared_profession": ptrValue(m.DeclaredProfession),
	}

	if m.BatchYear != nil {
		snapshot["batch_year"] = *m.BatchYear
	} else {
		snapshot["batch_year"] = nil
	}
	if m.BatchSubNumber != nil {
		snapshot["batch_sub_number"] = *m.BatchSubNumber
	} else {
		snapshot["batch_sub_number"] = nil
	}
	if specs := m.Specializations.GetValue(); len(specs) > 0 {
		snapshot["specializations"] = specs
	} else {
		snapshot["specializations"] = nil
	}
	if m.OpenToReferrals != nil {
		snapshot["open_to_referrals"] = *m.OpenToReferrals
	} else {
		snapshot["open_to_referrals"] = nil
	}

	return snapshot
}

func stringValue(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func ptrValue(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

// jsonEqual compares two values by their JSON form, which matches how
// change record values are stored.
func jsonEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}

// inferenceEqual ignores InferredAt so re-running inference with the same
// conclusion is a no-op.
func inferenceEqual(a, b *models.InferenceResult) bool {
	if a == nil || b == nil {
		return a == b
	}
	return jsonEqual(comparableInference(a), comparableInference(b))
}

func comparableInference(r *models.InferenceResult) map[string]any {
	return map[string]any{
		"profession":      r.Profession,
		"specializations": r.Specializations,
		"work_city":       r.WorkCity,
		"alternatives":    r.Alternatives,
	}
}
