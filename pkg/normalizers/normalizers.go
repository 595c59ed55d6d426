// Package normalizers provides field normalization for member records and
// match indexing.
package normalizers

import (
	"regexp"
	"strings"
	"unicode"
)

// Func is a function that normalizes a string value
type Func func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Func)

func init() {
	// Register built-in normalizers
	Register("lowercase", Lowercase)
	Register("uppercase", Uppercase)
	Register("trim", Trim)
	Register("digits_only", DigitsOnly)
	Register("alphanumeric", Alphanumeric)
	Register("remove_whitespace", RemoveWhitespace)
	Register("remove_punctuation", RemovePunctuation)
	Register("nname", MatchableName)
	Register("naddress", NormalizeAddress)
}

// Register adds a normalizer to the registry
func Register(name string, fn Func) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Func, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Built-in normalizers

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Uppercase converts string to uppercase
func Uppercase(s string) string {
	return strings.ToUpper(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Alphanumeric keeps only alphanumeric characters
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// RemoveWhitespace removes all whitespace characters
func RemoveWhitespace(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// MatchableName lowercases a name, strips honorifics, suffixes, and
// punctuation, and collapses whitespace. The output is a comparison key,
// not a display name: "Atty. Juan Dela Cruz Jr." and "juan dela cruz"
// produce the same key.
func MatchableName(s string) string {
	words := strings.Fields(strings.ToLower(s))
	var cleaned []string
	for _, word := range words {
		word = strings.Trim(word, ".,")
		if word == "" || honorifics[word] || nameSuffixes[word] {
			continue
		}
		cleaned = append(cleaned, keepLettersDigits(word))
	}
	return strings.Join(cleaned, " ")
}

// NormalizeAddress lowercases an address and collapses the usual
// Philippine address abbreviations so "Barangay" and "Brgy." compare equal.
func NormalizeAddress(s string) string {
	s = strings.ToLower(s)

	replacements := map[string]string{
		" street":      " st",
		" avenue":      " ave",
		" boulevard":   " blvd",
		" road":        " rd",
		" barangay":    " brgy",
		" building":    " bldg",
		" subdivision": " subd",
		" village":     " vlg",
		" corner":      " cor",
		" highway":     " hwy",
	}
	for full, abbr := range replacements {
		s = strings.ReplaceAll(s, full, abbr)
	}

	spaceRe := regexp.MustCompile(`\s+`)
	s = spaceRe.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}

func keepLettersDigits(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
