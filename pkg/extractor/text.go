package extractor

import (
	"regexp"
	"strings"
)

// labelPatterns pull labeled values out of free-text blobs. Some sources
// deliver whole member records as one "NAME: ... EMAIL: ..." column.
var labelPatterns = []struct {
	field   string
	pattern *regexp.Regexp
}{
	{FieldName, regexp.MustCompile(`(?im)^\s*(?:NAME|FULL NAME|NOMBRE)[:\s]\s*(.+)$`)},
	{FieldNickname, regexp.MustCompile(`(?im)^\s*(?:NICKNAME|NICK)[:\s]\s*(.+)$`)},
	{FieldEmail, regexp.MustCompile(`(?im)^\s*(?:EMAIL|E-MAIL)[:\s]\s*(.+)$`)},
	{FieldMobile, regexp.MustCompile(`(?im)^\s*(?:MOBILE|CELL)[:\s]\s*(.+)$`)},
	{FieldPhone, regexp.MustCompile(`(?im)^\s*(?:PHONE|TEL)[:\s]\s*(.+)$`)},
	{FieldHomeAddress, regexp.MustCompile(`(?im)^\s*(?:ADDRESS|HOME ADDRESS)[:\s]\s*(.+)$`)},
	{FieldProfession, regexp.MustCompile(`(?im)^\s*PROFESSION[:\s]\s*(.+)$`)},
	{FieldJobTitle, regexp.MustCompile(`(?im)^\s*(?:JOB|WORK|OCCUPATION)[:\s]\s*(.+)$`)},
	{FieldCompany, regexp.MustCompile(`(?im)^\s*(?:COMPANY|EMPLOYER|OFFICE)[:\s]\s*(.+)$`)},
	{FieldBatch, regexp.MustCompile(`(?im)^\s*(?:BATCH|BATCH NO)[:\s]\s*(.+)$`)},
	{FieldChapter, regexp.MustCompile(`(?im)^\s*(?:CHAPTER|SCHOOL)[:\s]\s*(.+)$`)},
}

// ParseStructuredText parses a labeled text blob into canonical fields.
func (e *Extractor) ParseStructuredText(text string) map[string]string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	fields := make(map[string]string)
	for _, lp := range labelPatterns {
		if _, taken := fields[lp.field]; taken {
			continue
		}
		if match := lp.pattern.FindStringSubmatch(text); match != nil {
			value := strings.TrimSpace(match[1])
			if value != "" {
				fields[lp.field] = value
			}
		}
	}
	return fields
}

// phonePatterns cover the formats Philippine directories actually contain.
var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\+63\s?\d{2,3}\s?\d{3}\s?\d{4}`), // +63 format
	regexp.MustCompile(`09\d{2}[-\s]?\d{3}[-\s]?\d{4}`),  // mobile
	regexp.MustCompile(`0\d{2}-\d{3}-\d{4}`),             // 0XX-XXX-XXXX
	regexp.MustCompile(`\(\d{2,3}\)\s?\d{3,4}-?\d{4}`),   // (XX) XXXX-XXXX
}

// ExtractPhones pulls phone numbers out of free text, first match order,
// without duplicates.
func (e *Extractor) ExtractPhones(text string) []string {
	var numbers []string
	seen := make(map[string]bool)
	for _, pattern := range phonePatterns {
		for _, match := range pattern.FindAllString(text, -1) {
			if !seen[match] {
				seen[match] = true
				numbers = append(numbers, match)
			}
		}
	}
	return numbers
}
