package normalizers

import (
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// ParsedEmail is a lowercased email with its domain classification.
type ParsedEmail struct {
	Address string
	Domain  string
	// Sector is the domain classification: personal, corporate,
	// educational, government, medical, or unknown.
	Sector string
	// Company is the employer the domain maps to, when known.
	Company string
}

// Email normalizes an email address and classifies its domain. Addresses
// without exactly one @ or with an empty side are malformed.
func (n *Normalizer) Email(raw string) (*ParsedEmail, error) {
	address := strings.ToLower(strings.TrimSpace(raw))
	if address == "" {
		return nil, &models.MalformedInputError{Field: "email", Value: raw, Reason: "empty"}
	}

	at := strings.Count(address, "@")
	if at != 1 {
		return nil, &models.MalformedInputError{Field: "email", Value: raw, Reason: "expected exactly one @"}
	}

	parts := strings.SplitN(address, "@", 2)
	local, domain := parts[0], parts[1]
	if local == "" || domain == "" || !strings.Contains(domain, ".") {
		return nil, &models.MalformedInputError{Field: "email", Value: raw, Reason: "incomplete address"}
	}

	parsed := &ParsedEmail{
		Address: address,
		Domain:  domain,
		Sector:  n.vocabulary.DomainSector(domain),
	}
	if company, ok := n.vocabulary.CompanyForDomain(domain); ok {
		parsed.Company = company
	}
	return parsed, nil
}
