// Package realitio decodes the templated question text posted to Realitio.
package realitio

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// FieldSeparator delimits the fields of a question's data string.
const FieldSeparator = "\u241f"

const maxFields = 4

// Built-in template ids.
const (
	TemplateBool         int64 = 0
	TemplateUint         int64 = 1
	TemplateSingleSelect int64 = 2
)

// ErrUnsupportedTemplate is returned for template ids the indexer ignores.
var ErrUnsupportedTemplate = errors.New("realitio: unsupported template")

var outcomePattern = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)

// Details are the decoded fields of a question. Fields missing from the data
// string are left empty.
type Details struct {
	Title    string
	Outcomes []string
	Category string
	Language string
}

// Parse decodes data according to templateID. Single-select questions carry
// title, outcomes, category and language; binary and numeric questions
// (including the deployment's nuanced binary template) carry title, category
// and language.
func Parse(templateID int64, data string, nuancedBinaryTemplateID int64) (Details, error) {
	fields := split(data)
	var d Details

	switch {
	case templateID == TemplateSingleSelect:
		d.Title = Unescape(fields[0])
		if len(fields) >= 2 {
			d.Outcomes = ParseOutcomes(fields[1])
		}
		if len(fields) >= 3 {
			d.Category = Unescape(fields[2])
		}
		if len(fields) >= 4 {
			d.Language = Unescape(fields[3])
		}
	case templateID == TemplateBool, templateID == TemplateUint, templateID == nuancedBinaryTemplateID:
		d.Title = Unescape(fields[0])
		if len(fields) >= 2 {
			d.Category = Unescape(fields[1])
		}
		if len(fields) >= 3 {
			d.Language = Unescape(fields[2])
		}
	default:
		return Details{}, fmt.Errorf("%w: %d", ErrUnsupportedTemplate, templateID)
	}
	return d, nil
}

// split returns at most the first four fields; anything after is dropped.
func split(data string) []string {
	fields := strings.Split(data, FieldSeparator)
	if len(fields) > maxFields {
		fields = fields[:maxFields]
	}
	return fields
}

// ParseOutcomes extracts the quoted entries of an outcome list such as
// `"Yes", "No", "Say \"maybe\""`.
func ParseOutcomes(s string) []string {
	matches := outcomePattern.FindAllStringSubmatch(s, -1)
	outcomes := make([]string, 0, len(matches))
	for _, m := range matches {
		outcomes = append(outcomes, Unescape(m[1]))
	}
	return outcomes
}

// Unescape resolves JSON string escapes. Malformed input is returned as is.
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
