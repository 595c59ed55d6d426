package normalizers

import (
	"strings"
	"unicode"

	"github.com/Ramsey-B/fern/pkg/models"
)

// honorifics are titles that precede a name.
var honorifics = map[string]bool{
	"dr": true, "atty": true, "eng": true, "engr": true, "prof": true,
}

// nameSuffixes are generational and professional suffixes that follow a name.
var nameSuffixes = map[string]bool{
	"jr": true, "sr": true, "ii": true, "iii": true, "iv": true,
	"md": true, "pe": true, "esq": true,
}

// surnameParticles join into the following word when splitting a Filipino
// surname: "Dela Cruz" is one last name, not a middle name and a last name.
var surnameParticles = map[string]bool{
	"de": true, "del": true, "dela": true, "delos": true, "delas": true,
	"la": true, "los": true, "san": true, "sta": true, "santa": true,
	"santo": true, "van": true, "von": true,
}

// ParsedName is a person's name split into canonical parts. Full is the
// title-cased display form without honorifics or suffixes.
type ParsedName struct {
	Full      string
	First     string
	Middle    string
	Last      string
	Honorific string
	Suffix    string
}

// Name parses and canonicalizes a person's name. Honorifics and suffixes
// are captured separately, the remaining words are title-cased, and
// surname particles stay attached to the surname. A name with no letters
// at all is malformed.
func (n *Normalizer) Name(raw string) (ParsedName, error) {
	words := strings.Fields(raw)

	var parsed ParsedName
	var core []string
	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,"))
		switch {
		case cleaned == "":
		case honorifics[cleaned] && len(core) == 0 && parsed.Honorific == "":
			parsed.Honorific = cleaned
		case nameSuffixes[cleaned] && len(core) > 0:
			if parsed.Suffix == "" {
				parsed.Suffix = cleaned
			}
		default:
			core = append(core, titleWord(cleaned))
		}
	}

	if len(core) == 0 {
		return ParsedName{}, &models.MalformedInputError{
			Field:  "name",
			Value:  raw,
			Reason: "no name words left after removing titles",
		}
	}

	parsed.Full = strings.Join(core, " ")

	switch len(core) {
	case 1:
		parsed.Last = core[0]
	case 2:
		parsed.First = core[0]
		parsed.Last = core[1]
	default:
		parsed.First = core[0]
		last := lastNameStart(core)
		parsed.Last = strings.Join(core[last:], " ")
		if last > 1 {
			parsed.Middle = strings.Join(core[1:last], " ")
		}
	}

	return parsed, nil
}

// lastNameStart finds where the surname begins, walking back over particles
// so "Juan Miguel Dela Cruz" yields last name "Dela Cruz".
func lastNameStart(words []string) int {
	start := len(words) - 1
	for start > 1 && surnameParticles[strings.ToLower(words[start-1])] {
		start--
	}
	return start
}

func titleWord(word string) string {
	r := []rune(word)
	if len(r) > 0 {
		r[0] = unicode.ToUpper(r[0])
	}
	return string(r)
}
