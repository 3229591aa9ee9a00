package core

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/schoolbulk/internal/logging"
)

// RowStatus classifies a previewed row. Statuses are disjoint: invalid rows
// are not checked for duplicates.
type RowStatus string

const (
	RowValid     RowStatus = "valid"
	RowInvalid   RowStatus = "invalid"
	RowDuplicate RowStatus = "duplicate"
)

// RowOutcome is the preview verdict for one row.
type RowOutcome struct {
	RowNumber       int               `json:"rowNumber"`
	Line            int               `json:"line"`
	Status          RowStatus         `json:"status"`
	IsValid         bool              `json:"isValid"`
	IsDuplicate     bool              `json:"isDuplicate"`
	DuplicateReason string            `json:"duplicateReason,omitempty"`
	Data            map[string]string `json:"data"`
	Errors          []string          `json:"errors"`
	Warnings        []FieldError      `json:"warnings,omitempty"`
}

// PreviewResult is the read-only dry run of an import.
type PreviewResult struct {
	FileName         string       `json:"fileName"`
	Module           string       `json:"module"`
	TotalRows        int          `json:"totalRows"`
	ValidRows        int          `json:"validRows"`
	DuplicateRows    int          `json:"duplicateRows"`
	InvalidRows      int          `json:"invalidRows"`
	RequiresAuth     bool         `json:"requiresAuth"`
	Columns          []string     `json:"columns"`
	Rows             []RowOutcome `json:"rows"`
	Page             int          `json:"page,omitempty"`
	PageSize         int          `json:"pageSize,omitempty"`
	ProcessingTimeMs int64        `json:"processingTimeMs"`
}

// Window returns a copy whose Rows hold only the requested page.
// Counts always describe the whole file. Pages are 1-based; a size <= 0
// returns every row.
func (p *PreviewResult) Window(page, size int) *PreviewResult {
	out := *p
	if size <= 0 {
		return &out
	}
	if page < 1 {
		page = 1
	}

	// Compare in page units first so large pages cannot overflow.
	start := len(p.Rows)
	if page-1 <= len(p.Rows)/size {
		start = min((page-1)*size, len(p.Rows))
	}
	end := len(p.Rows)
	if size < end-start {
		end = start + size
	}

	out.Rows = p.Rows[start:end]
	out.Page = page
	out.PageSize = size
	return &out
}

// Preview validates a table against a module without writing anything.
// A header mismatch is returned as *HeaderMismatchError before any row is
// examined.
func (s *Service) Preview(ctx context.Context, schoolID, moduleID string, table *UploadedTable) (*PreviewResult, error) {
	startTime := s.now()

	def, err := s.registry.Get(moduleID)
	if err != nil {
		return nil, err
	}

	check := ValidateHeader(def, table.Columns)
	if err := check.Err(def.ID); err != nil {
		return nil, err
	}

	index, err := s.loadKeyIndex(ctx, schoolID, def)
	if err != nil {
		return nil, err
	}

	result := &PreviewResult{
		FileName:     table.FileName,
		Module:       def.ID,
		TotalRows:    len(table.Rows),
		RequiresAuth: def.RequiresAccount,
		Columns:      table.Columns,
		Rows:         make([]RowOutcome, 0, len(table.Rows)),
	}

	for _, row := range table.Rows {
		outcome := RowOutcome{
			RowNumber: row.Number,
			Line:      row.Line,
			Data:      displayData(def, check, row),
			Errors:    []string{},
		}

		v := ValidateRow(def, check, row)
		outcome.Warnings = v.Warnings

		switch {
		case !v.IsValid:
			outcome.Status = RowInvalid
			outcome.Errors = v.Messages()
			result.InvalidRows++
		default:
			outcome.IsValid = true
			if dup, found := FindDuplicate(def, v.Fields, index); found {
				outcome.Status = RowDuplicate
				outcome.IsDuplicate = true
				outcome.DuplicateReason = dup.Reason()
				result.DuplicateRows++
			} else {
				outcome.Status = RowValid
				index.Add(v.Fields, row.Number)
				result.ValidRows++
			}
		}

		result.Rows = append(result.Rows, outcome)
	}

	result.ProcessingTimeMs = s.now().Sub(startTime).Milliseconds()

	logging.WithFields(ctx, "module", def.ID, "school_id", schoolID).Debug("preview complete",
		"rows", result.TotalRows,
		"valid", result.ValidRows,
		"duplicate", result.DuplicateRows,
		"invalid", result.InvalidRows,
	)

	return result, nil
}

// loadKeyIndex seeds a KeyIndex with the natural keys of persisted records.
func (s *Service) loadKeyIndex(ctx context.Context, schoolID string, def ModuleDefinition) (*KeyIndex, error) {
	index := NewKeyIndex(def.NaturalKeys)
	if len(def.NaturalKeys) == 0 {
		return index, nil
	}

	records, err := s.records.ListRecords(ctx, schoolID, def.ID)
	if err != nil {
		return nil, fmt.Errorf("load existing %s records: %w", def.ID, err)
	}
	for _, rec := range records {
		index.AddRecord(rec.Fields)
	}
	return index, nil
}
