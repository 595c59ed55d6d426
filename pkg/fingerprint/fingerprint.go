// Package fingerprint produces deterministic hashes of member data so the
// pipeline can skip records whose content has not changed since the last
// import.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Generate creates a deterministic fingerprint for a raw field bag.
// The fingerprint is a SHA256 hash of the canonicalized JSON.
func Generate(data map[string]any) string {
	return GenerateWithExclusions(data, nil)
}

// GenerateWithExclusions creates a fingerprint excluding specified fields.
// The excludeFields set contains dot-notation paths to exclude (e.g.,
// "last_updated", "metadata.row_number"). Top-level fields are matched
// directly; nested paths are matched hierarchically. Imports use this to
// ignore volatile source columns like sync timestamps.
func GenerateWithExclusions(data map[string]any, excludeFields map[string]bool) string {
	canonical := canonicalize(data, excludeFields, "")
	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:])
}

// FromJSON creates a fingerprint from a raw JSON document.
func FromJSON(data json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return "", err
	}
	return Generate(m), nil
}

// Member fingerprints the normalized identity of a member. Only content
// fields participate; resolution state, scores, and timestamps do not, so
// re-running inference or detection never makes a record look changed.
func Member(m *models.Member) string {
	identity := map[string]any{
		"full_name":       m.FullName,
		"first_name":      deref(m.FirstName),
		"middle_name":     deref(m.MiddleName),
		"last_name":       deref(m.LastName),
		"nickname":        deref(m.Nickname),
		"honorific":       deref(m.Honorific),
		"name_suffix":     deref(m.NameSuffix),
		"batch_label":     deref(m.BatchLabel),
		"chapter_name":    deref(m.ChapterName),
		"email":           deref(m.Email),
		"mobile_number":   deref(m.MobileNumber),
		"landline_number": deref(m.LandlineNumber),
		"home_address":    deref(m.HomeAddress),
		"home_city":       deref(m.HomeCity),
		"office_address":  deref(m.OfficeAddress),
		"office_city":     deref(m.OfficeCity),
		"job_title":       deref(m.JobTitle),
		"company":         deref(m.Company),
		"profession":      deref(m.DeclaredProfession),
		"specializations": m.Specializations.GetValue(),
	}
	return Generate(identity)
}

// HasChanged compares two fingerprints to detect changes
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint != newFingerprint
}

// canonicalize creates a deterministic string representation by sorting map
// keys and recursively processing nested structures. currentPath tracks the
// dot-notation path for exclusion matching.
func canonicalize(data any, excludeFields map[string]bool, currentPath string) string {
	switch v := data.(type) {
	case map[string]any:
		return canonicalizeMap(v, excludeFields, currentPath)
	case []any:
		return canonicalizeArray(v, excludeFields, currentPath)
	case []string:
		arr := make([]any, len(v))
		for i, s := range v {
			arr[i] = s
		}
		return canonicalizeArray(arr, excludeFields, currentPath)
	default:
		// For primitives, use JSON encoding
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func canonicalizeMap(m map[string]any, excludeFields map[string]bool, currentPath string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := "{"
	first := true
	for _, k := range keys {
		fieldPath := k
		if currentPath != "" {
			fieldPath = currentPath + "." + k
		}
		if shouldExcludeField(fieldPath, excludeFields) {
			continue
		}

		if !first {
			result += ","
		}
		first = false
		keyJSON, _ := json.Marshal(k)
		result += string(keyJSON) + ":" + canonicalize(m[k], excludeFields, fieldPath)
	}
	result += "}"
	return result
}

func canonicalizeArray(arr []any, excludeFields map[string]bool, currentPath string) string {
	result := "["
	for i, v := range arr {
		if i > 0 {
			result += ","
		}
		// Array elements share the parent path; individual indices cannot
		// be excluded.
		result += canonicalize(v, excludeFields, currentPath)
	}
	result += "]"
	return result
}

// shouldExcludeField checks if a field path should be excluded.
// Supports exact matches and prefix matches for nested objects.
func shouldExcludeField(fieldPath string, excludeFields map[string]bool) bool {
	if excludeFields == nil {
		return false
	}
	if excludeFields[fieldPath] {
		return true
	}
	for excluded := range excludeFields {
		if strings.HasPrefix(fieldPath, excluded+".") {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
