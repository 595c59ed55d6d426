// Package extractor maps raw import records onto canonical field names.
// Sources disagree about everything: header names ("NAME", "Full Name",
// "member_name"), nesting ("contact.email"), and sometimes whole records
// crammed into one text blob. The extractor absorbs those differences so
// the rest of the pipeline only sees canonical fields.
package extractor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Canonical field names produced by the extractor.
const (
	FieldName            = "name"
	FieldNickname        = "nickname"
	FieldEmail           = "email"
	FieldMobile          = "mobile"
	FieldPhone           = "phone"
	FieldHomeAddress     = "home_address"
	FieldHomeCity        = "home_city"
	FieldOfficeAddress   = "office_address"
	FieldOfficeCity      = "office_city"
	FieldJobTitle        = "job_title"
	FieldProfession      = "profession"
	FieldCompany         = "company"
	FieldBatch           = "batch"
	FieldChapter         = "chapter"
	FieldOpenToReferrals = "open_to_referrals"
)

// fieldAliases maps each canonical field to the header spellings sources
// use for it. Aliases are matched after lowercasing and collapsing
// spaces, dots, dashes, and underscores.
var fieldAliases = map[string][]string{
	FieldName:            {"name", "fullname", "membername", "completename", "nombre"},
	FieldNickname:        {"nickname", "nick", "alias"},
	FieldEmail:           {"email", "emailaddress", "emailadd"},
	FieldMobile:          {"mobile", "mobileno", "mobilenumber", "cell", "cellphone", "contactno", "contactnumber"},
	FieldPhone:           {"phone", "tel", "telno", "telephone", "landline", "phonenumber"},
	FieldHomeAddress:     {"homeaddress", "address", "residence", "residentialaddress"},
	FieldHomeCity:        {"homecity", "city"},
	FieldOfficeAddress:   {"officeaddress", "workaddress", "businessaddress", "office"},
	FieldOfficeCity:      {"officecity", "workcity"},
	FieldJobTitle:        {"jobtitle", "position", "occupation", "job", "work", "designation"},
	FieldProfession:      {"profession", "professionalfield", "field"},
	FieldCompany:         {"company", "employer", "companyname", "firm"},
	FieldBatch:           {"batch", "batchno", "batchnumber", "batchyear"},
	FieldChapter:         {"chapter", "school"},
	FieldOpenToReferrals: {"opentoreferrals", "willingtohelp", "availableforreferrals"},
}

// Extractor maps raw records onto canonical fields.
type Extractor struct{}

// New creates a new Extractor
func New() *Extractor {
	return &Extractor{}
}

// Canonicalize maps a raw record's keys onto canonical field names.
// Unrecognized keys are dropped; the caller keeps the original bag for
// provenance. When several aliases of one field are present, the earliest
// alias in the field's list wins, so results never depend on map order.
func (e *Extractor) Canonicalize(raw map[string]any) map[string]any {
	collapsed := make(map[string]any, len(raw))
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ck := collapseKey(k)
		if _, ok := collapsed[ck]; !ok && !isEmptyValue(raw[k]) {
			collapsed[ck] = raw[k]
		}
	}

	fields := make(map[string]any)
	for canonical, aliases := range fieldAliases {
		if value, ok := collapsed[collapseKey(canonical)]; ok {
			fields[canonical] = value
			continue
		}
		for _, alias := range aliases {
			if value, ok := collapsed[alias]; ok {
				fields[canonical] = value
				break
			}
		}
	}
	return fields
}

// Extract extracts a value from nested data using a dot path with optional
// array indexes: "contact.email", "phones[0]", "employment.company".
func (e *Extractor) Extract(data any, path string) (any, error) {
	if path == "" {
		return data, nil
	}

	current := data
	for _, part := range parsePath(path) {
		var err error
		current, err = extractPart(current, part)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, nil
		}
	}
	return current, nil
}

// ExtractString extracts a value and converts it to a string
func (e *Extractor) ExtractString(data any, path string) (*string, error) {
	value, err := e.Extract(data, path)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}
	s := ToString(value)
	return &s, nil
}

// pathPart represents a parsed path segment
type pathPart struct {
	key        string
	isArray    bool
	arrayIndex int
}

// parsePath parses a dot-notation path into parts
func parsePath(path string) []pathPart {
	var parts []pathPart
	for _, seg := range strings.Split(path, ".") {
		part := pathPart{key: seg}
		if idx := strings.Index(seg, "["); idx != -1 && strings.HasSuffix(seg, "]") {
			part.key = seg[:idx]
			if i, err := strconv.Atoi(seg[idx+1 : len(seg)-1]); err == nil {
				part.isArray = true
				part.arrayIndex = i
			}
		}
		parts = append(parts, part)
	}
	return parts
}

// extractPart extracts a value for a single path part
func extractPart(data any, part pathPart) (any, error) {
	var value any = data

	if part.key != "" {
		switch v := data.(type) {
		case map[string]any:
			val, ok := v[part.key]
			if !ok {
				return nil, nil
			}
			value = val
		case map[string]string:
			val, ok := v[part.key]
			if !ok {
				return nil, nil
			}
			value = val
		default:
			return nil, fmt.Errorf("cannot extract key %q from type %T", part.key, data)
		}
	}

	if part.isArray {
		arr, ok := toArray(value)
		if !ok {
			return nil, fmt.Errorf("expected array for index access, got %T", value)
		}
		if part.arrayIndex < 0 || part.arrayIndex >= len(arr) {
			return nil, nil
		}
		return arr[part.arrayIndex], nil
	}

	return value, nil
}

// toArray converts a value to an array
func toArray(v any) ([]any, bool) {
	switch arr := v.(type) {
	case []any:
		return arr, true
	case []string:
		result := make([]any, len(arr))
		for i, s := range arr {
			result[i] = s
		}
		return result, true
	default:
		return nil, false
	}
}

// ToString converts any value to a string
func ToString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		// Sheet imports hand integers over as floats.
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return fmt.Sprintf("%v", val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// FromJSON parses JSON data and returns it as a map
func FromJSON(data json.RawMessage) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// collapseKey lowercases a header and strips separators so "Batch No.",
// "batch_no", and "BATCH-NO" all compare equal.
func collapseKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		switch r {
		case ' ', '_', '-', '.', ':', '#':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}
