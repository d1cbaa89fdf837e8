package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Row is one parsed CSV line. Line is the 1-based line in the source file.
type Row struct {
	Line     int
	Phone    string
	Name     string
	Email    string
	Category string
}

const (
	colPhone    = "phone"
	colName     = "name"
	colEmail    = "email"
	colCategory = "category"
)

var headerAliases = map[string]string{
	"phone":        colPhone,
	"phone_number": colPhone,
	"number":       colPhone,
	"mobile":       colPhone,
	"whatsapp":     colPhone,
	"name":         colName,
	"full_name":    colName,
	"email":        colEmail,
	"e-mail":       colEmail,
	"category":     colCategory,
	"group":        colCategory,
}

// ParseCSV reads contacts from r. The first record is a header naming the
// columns; a phone column is required and unknown columns are ignored.
// Both comma and semicolon separated files are accepted.
func ParseCSV(r io.Reader) ([]Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	text := strings.TrimPrefix(string(data), "\ufeff")

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = detectSeparator(text)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("CSV file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int)
	for i, name := range header {
		key, ok := headerAliases[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			continue
		}
		if _, seen := columns[key]; !seen {
			columns[key] = i
		}
	}
	if _, ok := columns[colPhone]; !ok {
		return nil, fmt.Errorf("CSV header has no phone column")
	}

	field := func(record []string, key string) string {
		i, ok := columns[key]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if isBlank(record) {
			continue
		}
		rows = append(rows, Row{
			Line:     line,
			Phone:    field(record, colPhone),
			Name:     field(record, colName),
			Email:    field(record, colEmail),
			Category: field(record, colCategory),
		})
	}

	return rows, nil
}

func detectSeparator(text string) rune {
	first, _, _ := strings.Cut(text, "\n")
	if strings.Count(first, ";") > strings.Count(first, ",") {
		return ';'
	}
	return ','
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
