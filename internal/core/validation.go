package core

// validation.go checks uploaded files against a module schema.
//
// Validation happens at two levels:
//  1. Header validation: every required field must have a column. A mismatch
//     rejects the whole file before any row is looked at.
//  2. Row validation: each cell is checked against its FieldSpec and converted
//     into the typed value stored on the record.

import (
	"fmt"
	"strings"
)

// HeaderCheck is the result of comparing uploaded columns with a module.
// When OK is false, Mismatch carries the diagnostic.
type HeaderCheck struct {
	OK       bool
	Mismatch *HeaderMismatch

	// columns maps field name to the uploaded column that supplies it.
	columns map[string]string
}

// Column returns the uploaded column bound to a field.
func (h HeaderCheck) Column(field string) (string, bool) {
	col, ok := h.columns[field]
	return col, ok
}

// Err returns the check as a *HeaderMismatchError, or nil when OK.
func (h HeaderCheck) Err(moduleID string) error {
	if h.OK {
		return nil
	}
	return &HeaderMismatchError{Module: moduleID, Mismatch: *h.Mismatch}
}

// normalizeHeader folds a header cell for comparison: trimmed, lowercased,
// without the trailing "*" templates put on required columns.
func normalizeHeader(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimSuffix(s, "*"))
	return strings.ToLower(s)
}

// ValidateHeader binds uploaded columns to module fields.
// A column matches a field by name or label, case-insensitively.
func ValidateHeader(def ModuleDefinition, uploaded []string) HeaderCheck {
	byHeader := make(map[string]string, len(uploaded))
	for _, col := range uploaded {
		key := normalizeHeader(col)
		if key == "" {
			continue
		}
		if _, dup := byHeader[key]; !dup {
			byHeader[key] = col
		}
	}

	check := HeaderCheck{columns: make(map[string]string, len(def.Fields))}
	var missing, expected []string

	for _, f := range def.Fields {
		expected = append(expected, f.Name)

		col, ok := byHeader[strings.ToLower(f.Name)]
		if !ok {
			col, ok = byHeader[normalizeHeader(f.DisplayLabel())]
		}
		if ok {
			check.columns[f.Name] = col
			continue
		}
		if f.Required {
			missing = append(missing, f.Name)
		}
	}

	if len(missing) == 0 && (len(check.columns) > 0 || len(def.Fields) == 0) {
		check.OK = true
		return check
	}

	suggestion := fmt.Sprintf("Please download the correct template for %s.", def.Name)
	if len(missing) > 0 {
		labels := make([]string, len(missing))
		for i, name := range missing {
			f, _ := def.Field(name)
			labels[i] = f.DisplayLabel()
		}
		suggestion = fmt.Sprintf("Add the missing columns (%s) or download the %s template.",
			strings.Join(labels, ", "), def.Name)
	} else {
		suggestion = fmt.Sprintf("This file appears to be for a different module. %s", suggestion)
	}

	check.Mismatch = &HeaderMismatch{
		MissingColumns:  nonNil(missing),
		ExpectedColumns: expected,
		UploadedColumns: nonNil(append([]string(nil), uploaded...)),
		Suggestion:      suggestion,
	}
	return check
}

// FieldError is a single field-level validation problem.
type FieldError struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return e.Message
}

// RowValidation is the outcome of validating a single row.
type RowValidation struct {
	IsValid       bool
	MissingFields []string
	TypeErrors    []FieldError
	Warnings      []FieldError

	// Fields is the typed record payload: dates as YYYY-MM-DD strings,
	// numbers as float64, select values in their canonical spelling.
	Fields map[string]any
}

// Messages returns every invalidating problem in field order.
func (v RowValidation) Messages() []string {
	msgs := make([]string, 0, len(v.MissingFields)+len(v.TypeErrors))
	for _, name := range v.MissingFields {
		msgs = append(msgs, name+" is required")
	}
	for _, te := range v.TypeErrors {
		msgs = append(msgs, te.Message)
	}
	return msgs
}

// Message joins Messages into a single row failure reason.
func (v RowValidation) Message() string {
	return strings.Join(v.Messages(), "; ")
}

// ValidateRow checks a row against the module fields.
//
// A row is invalid when a required field is blank or a date/number field
// fails to parse. Email and select problems invalidate required fields only;
// on optional fields they become warnings and the value is left out.
func ValidateRow(def ModuleDefinition, check HeaderCheck, row Row) RowValidation {
	result := RowValidation{IsValid: true, Fields: make(map[string]any, len(def.Fields))}

	for _, f := range def.Fields {
		var raw string
		if col, ok := check.Column(f.Name); ok {
			raw = CleanCell(row.Values[col])
		}

		if raw == "" {
			if f.Required {
				result.IsValid = false
				result.MissingFields = append(result.MissingFields, f.Name)
			}
			continue
		}

		value, problem := convertCell(f, raw)
		if problem == "" {
			result.Fields[f.Name] = value
			continue
		}

		fe := FieldError{Field: f.Name, Value: raw, Message: problem}
		if f.Type == FieldDate || f.Type == FieldNumber || f.Required {
			result.IsValid = false
			result.TypeErrors = append(result.TypeErrors, fe)
		} else {
			result.Warnings = append(result.Warnings, fe)
		}
	}

	return result
}

// convertCell returns the typed value or a problem description.
func convertCell(f FieldSpec, raw string) (any, string) {
	switch f.Type {
	case FieldDate:
		if d, ok := ParseDate(raw); ok {
			return d, ""
		}
		return nil, fmt.Sprintf("%s must be a valid date (YYYY-MM-DD)", f.Name)
	case FieldNumber:
		if n, ok := ParseNumber(raw); ok {
			return n, ""
		}
		return nil, fmt.Sprintf("%s must be a number", f.Name)
	case FieldEmail:
		if e, ok := ParseEmail(raw); ok {
			return e, ""
		}
		return nil, fmt.Sprintf("%s must be a valid email address", f.Name)
	case FieldSelect:
		if opt, ok := MatchOption(raw, f.Options); ok {
			return opt, ""
		}
		return nil, fmt.Sprintf("%s must be one of: %s", f.Name, strings.Join(f.Options, ", "))
	default:
		return raw, ""
	}
}

// displayData returns the module columns of a row for preview and error output.
func displayData(def ModuleDefinition, check HeaderCheck, row Row) map[string]string {
	data := make(map[string]string, len(def.Fields))
	for _, f := range def.Fields {
		if col, ok := check.Column(f.Name); ok {
			data[f.Name] = strings.TrimSpace(row.Values[col])
		}
	}
	return data
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
