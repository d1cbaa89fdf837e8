// Package template fills {{name}} placeholders in message drafts with
// contact fields.
package template

import (
	"regexp"
	"slices"
	"strings"

	"wacrm/internal/models"
)

var placeholderRegex = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Fields every contact can fill.
const (
	FieldPhone     = "phone"
	FieldName      = "name"
	FieldFirstName = "first_name"
	FieldEmail     = "email"
	FieldCategory  = "category"
)

// BuiltIn lists the placeholders ContactValues provides, sorted.
var BuiltIn = []string{FieldCategory, FieldEmail, FieldFirstName, FieldName, FieldPhone}

// Extract returns the unique placeholder names used in content, sorted.
func Extract(content string) []string {
	var names []string
	for _, match := range placeholderRegex.FindAllStringSubmatch(content, -1) {
		names = append(names, match[1])
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Unknown returns the placeholders in content that no contact can fill.
func Unknown(content string) []string {
	var unknown []string
	for _, name := range Extract(content) {
		if !slices.Contains(BuiltIn, name) {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// Fill replaces placeholders with values. Placeholders without a value are
// left in place and returned, sorted, as missing.
func Fill(content string, values map[string]string) (string, []string) {
	var missing []string
	filled := placeholderRegex.ReplaceAllStringFunc(content, func(match string) string {
		name := match[2 : len(match)-2]
		if value, ok := values[name]; ok {
			return value
		}
		missing = append(missing, name)
		return match
	})
	slices.Sort(missing)
	return filled, slices.Compact(missing)
}

type PreviewResult struct {
	Original            string   `json:"original"`
	Preview             string   `json:"preview"`
	PlaceholdersFound   []string `json:"placeholders_found"`
	PlaceholdersFilled  []string `json:"placeholders_filled"`
	PlaceholdersMissing []string `json:"placeholders_missing"`
}

// Preview fills content with values and reports which placeholders were used.
func Preview(content string, values map[string]string) PreviewResult {
	found := Extract(content)
	filled, missing := Fill(content, values)

	filledNames := make([]string, 0, len(found))
	for _, name := range found {
		if !slices.Contains(missing, name) {
			filledNames = append(filledNames, name)
		}
	}
	if missing == nil {
		missing = []string{}
	}
	if found == nil {
		found = []string{}
	}

	return PreviewResult{
		Original:            content,
		Preview:             filled,
		PlaceholdersFound:   found,
		PlaceholdersFilled:  filledNames,
		PlaceholdersMissing: missing,
	}
}

// ContactValues returns the placeholder values of one contact. An empty
// name falls back to the phone number.
func ContactValues(c models.Contact) map[string]string {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = c.Phone
	}
	first, _, _ := strings.Cut(name, " ")

	return map[string]string{
		FieldPhone:     c.Phone,
		FieldName:      name,
		FieldFirstName: first,
		FieldEmail:     c.Email,
		FieldCategory:  c.CategoryName,
	}
}

// SampleValues fills every built-in placeholder for previews without a contact.
func SampleValues() map[string]string {
	return ContactValues(models.Contact{
		Phone:        "31612345678",
		Name:         "Jane Doe",
		Email:        "jane@example.com",
		CategoryName: "Customers",
	})
}
