package core

import (
	"time"
)

// FieldType represents the expected data type for an import column.
type FieldType string

const (
	FieldText   FieldType = "text"
	FieldEmail  FieldType = "email"
	FieldSelect FieldType = "select"
	FieldDate   FieldType = "date"
	FieldNumber FieldType = "number"
)

// FieldSpec defines one column of a module's import/export schema.
type FieldSpec struct {
	Name     string    `yaml:"name" json:"name"`         // Record key and canonical header
	Label    string    `yaml:"label" json:"label"`       // Header shown in templates
	Type     FieldType `yaml:"type" json:"type"`         // Defaults to text
	Required bool      `yaml:"required" json:"required"` // Header and value must be present
	Example  string    `yaml:"example" json:"example,omitempty"`
	Options  []string  `yaml:"options" json:"options,omitempty"` // Allowed values for FieldSelect
}

// DisplayLabel returns the label, falling back to the field name.
func (f FieldSpec) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// ExportField is one column of a module's export sheet.
type ExportField struct {
	Key   string `yaml:"key" json:"key"`
	Label string `yaml:"label" json:"label"`
}

// AccountRole is the login role assigned to accounts provisioned for a module.
type AccountRole string

const (
	RoleStudent          AccountRole = "STUDENT"
	RoleTeachingStaff    AccountRole = "TEACHING_STAFF"
	RoleNonTeachingStaff AccountRole = "NON_TEACHING_STAFF"
	RoleParent           AccountRole = "PARENT"
)

// ModuleDefinition describes an importable/exportable domain module.
// Definitions are registered at startup and never mutated afterward.
type ModuleDefinition struct {
	ID                string        `yaml:"id" json:"id"`
	Name              string        `yaml:"name" json:"name"`
	Description       string        `yaml:"description" json:"description"`
	Fields            []FieldSpec   `yaml:"fields" json:"fields"`
	RequiresAccount   bool          `yaml:"requiresAccount" json:"requiresAccount"`
	AccountRole       AccountRole   `yaml:"accountRole" json:"accountRole,omitempty"`
	AccountEmailField string        `yaml:"accountEmailField" json:"accountEmailField,omitempty"`
	NaturalKeys       []string      `yaml:"naturalKeys" json:"naturalKeys,omitempty"`
	ExportFields      []ExportField `yaml:"exportFields" json:"exportFields,omitempty"`
	Exportable        bool          `yaml:"exportable" json:"exportable"`
}

// FieldCount returns the number of fields in the module schema.
func (m ModuleDefinition) FieldCount() int {
	return len(m.Fields)
}

// RequiredCount returns the number of required fields.
func (m ModuleDefinition) RequiredCount() int {
	n := 0
	for _, f := range m.Fields {
		if f.Required {
			n++
		}
	}
	return n
}

// Field returns the definition of the named field.
func (m ModuleDefinition) Field(name string) (FieldSpec, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Summary returns the listing view of the module.
func (m ModuleDefinition) Summary() ModuleSummary {
	return ModuleSummary{
		ID:              m.ID,
		Name:            m.Name,
		Description:     m.Description,
		FieldCount:      m.FieldCount(),
		RequiredCount:   m.RequiredCount(),
		RequiresAccount: m.RequiresAccount,
		Exportable:      m.Exportable,
	}
}

// ModuleSummary is the listing view of a ModuleDefinition.
type ModuleSummary struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	FieldCount      int    `json:"fieldCount"`
	RequiredCount   int    `json:"requiredCount"`
	RequiresAccount bool   `json:"requiresAccount"`
	Exportable      bool   `json:"exportable"`
}

// Row is one non-blank data row of an uploaded file.
type Row struct {
	Number int               // 1-based over non-blank data rows
	Line   int               // Physical line (CSV) or sheet row (XLSX)
	Values map[string]string // Uploaded column -> raw cell
}

// UploadedTable is the parsed form of an uploaded file.
// It lives for one request and is never persisted.
type UploadedTable struct {
	FileName string
	Columns  []string
	Rows     []Row
}

// Record is a persisted domain record as seen through the record store.
type Record struct {
	ID        string         `json:"id"`
	Module    string         `json:"module"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ImportHistoryEntry summarizes one committed import. Entries are append-only.
type ImportHistoryEntry struct {
	ID              string    `json:"id"`
	SchoolID        string    `json:"schoolId"`
	Module          string    `json:"module"`
	FileName        string    `json:"fileName"`
	TotalRows       int       `json:"totalRows"`
	Success         int       `json:"success"`
	Failed          int       `json:"failed"`
	Skipped         int       `json:"skipped"`
	AccountsCreated int       `json:"accountsCreated"`
	AccountsFailed  int       `json:"accountsFailed"`
	Actor           string    `json:"actor"`
	IPAddress       string    `json:"ipAddress,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// HistoryFilter narrows a history listing. Module is optional.
type HistoryFilter struct {
	SchoolID string
	Module   string
	Limit    int
}

// File is a generated spreadsheet ready for download.
type File struct {
	FileName string `json:"fileName"`
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"fileData"`
}

// XLSXMimeType is the content type of every generated workbook.
const XLSXMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
