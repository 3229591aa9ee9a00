package core

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// InstructionsSheetName holds the field reference in generated templates.
const InstructionsSheetName = "Instructions"

// RequiredMarker is appended to required column labels in templates.
// ValidateHeader ignores it when matching.
const RequiredMarker = " *"

// TemplateHeader returns the column labels written to a module template.
func TemplateHeader(def ModuleDefinition) []string {
	header := make([]string, len(def.Fields))
	for i, f := range def.Fields {
		header[i] = f.DisplayLabel()
		if f.Required {
			header[i] += RequiredMarker
		}
	}
	return header
}

// Template builds the downloadable workbook for a module: a Data sheet with
// the column header and an example row, and an Instructions sheet that
// documents every field.
func (s *Service) Template(moduleID string) (*File, error) {
	def, err := s.registry.Get(moduleID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), DataSheetName); err != nil {
		return nil, fmt.Errorf("name data sheet: %w", err)
	}

	header := TemplateHeader(def)
	headerRow := make([]any, len(header))
	exampleRow := make([]any, len(def.Fields))
	for i, fs := range def.Fields {
		headerRow[i] = header[i]
		exampleRow[i] = fs.Example
	}
	if err := writeSheetRow(f, DataSheetName, 1, headerRow); err != nil {
		return nil, err
	}
	if err := writeSheetRow(f, DataSheetName, 2, exampleRow); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(InstructionsSheetName); err != nil {
		return nil, fmt.Errorf("create instructions sheet: %w", err)
	}
	rows := [][]any{
		{"Field", "Column", "Type", "Required", "Allowed values", "Example"},
	}
	for _, fs := range def.Fields {
		required := "No"
		if fs.Required {
			required = "Yes"
		}
		rows = append(rows, []any{fs.Name, fs.DisplayLabel(), string(fs.Type), required, strings.Join(fs.Options, ", "), fs.Example})
	}
	rows = append(rows,
		[]any{},
		[]any{"Delete the example row before uploading. Columns marked * are required."},
	)
	if def.RequiresAccount {
		rows = append(rows, []any{fmt.Sprintf("A login is created for every imported row using the %s column.", def.AccountEmailField)})
	}
	for i, r := range rows {
		if err := writeSheetRow(f, InstructionsSheetName, i+1, r); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write template: %w", err)
	}

	return &File{
		FileName: fmt.Sprintf("%s_template.xlsx", def.ID),
		MIMEType: XLSXMimeType,
		Data:     buf.Bytes(),
	}, nil
}
