package core

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/schoolbulk/internal/logging"
)

// maxSheetNameLen is the sheet name limit imposed by spreadsheet formats.
const maxSheetNameLen = 31

// ModuleExportStat reports what one module contributed to an export.
type ModuleExportStat struct {
	Module      string `json:"module"`
	Name        string `json:"name"`
	Sheet       string `json:"sheet"`
	RecordCount int    `json:"recordCount"`
	Error       string `json:"error,omitempty"`
}

// ExportJob is a generated multi-sheet export. It is never persisted.
type ExportJob struct {
	ModuleIDs []string           `json:"moduleIds"`
	Modules   []ModuleExportStat `json:"stats"`
	File
}

// TotalRecords sums the record counts of every module.
func (j *ExportJob) TotalRecords() int {
	n := 0
	for _, m := range j.Modules {
		n += m.RecordCount
	}
	return n
}

// Export writes the current records of each module to its own sheet of one
// workbook. A module whose records cannot be read still gets a header-only
// sheet and a zero count; the export carries on with the others.
func (s *Service) Export(ctx context.Context, schoolID string, moduleIDs []string) (*ExportJob, error) {
	ids := dedupeIDs(moduleIDs)
	if len(ids) == 0 {
		return nil, ErrNoModulesSelected
	}

	defs := make([]ModuleDefinition, len(ids))
	for i, id := range ids {
		def, err := s.registry.Get(id)
		if err != nil {
			return nil, err
		}
		defs[i] = def
	}

	f := excelize.NewFile()
	defer f.Close()

	log := logging.WithFields(ctx, "school_id", schoolID)
	job := &ExportJob{ModuleIDs: ids}
	usedSheets := make(map[string]bool, len(defs))

	for i, def := range defs {
		sheet := uniqueSheetName(def.Name, usedSheets)
		stat := ModuleExportStat{Module: def.ID, Name: def.Name, Sheet: sheet}

		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
				return nil, fmt.Errorf("name sheet %q: %w", sheet, err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("create sheet %q: %w", sheet, err)
		}

		if err := writeSheetRow(f, sheet, 1, exportHeader(def)); err != nil {
			return nil, err
		}

		records, err := s.records.ListRecords(ctx, schoolID, def.ID)
		if err != nil {
			log.Warn("export module failed", "module", def.ID, "error", err)
			stat.Error = err.Error()
			job.Modules = append(job.Modules, stat)
			continue
		}

		for r, rec := range records {
			if err := writeSheetRow(f, sheet, r+2, projectRecord(def, rec)); err != nil {
				return nil, err
			}
		}
		stat.RecordCount = len(records)
		job.Modules = append(job.Modules, stat)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	job.File = File{
		FileName: fmt.Sprintf("export_%s.xlsx", s.now().Format(DateLayout)),
		MIMEType: XLSXMimeType,
		Data:     buf.Bytes(),
	}

	log.Info("export complete", "modules", len(ids), "records", job.TotalRecords())
	return job, nil
}

func exportHeader(def ModuleDefinition) []any {
	header := make([]any, len(def.ExportFields))
	for i, ef := range def.ExportFields {
		header[i] = ef.Label
	}
	return header
}

// projectRecord flattens a record onto the module's export columns.
func projectRecord(def ModuleDefinition, rec Record) []any {
	row := make([]any, len(def.ExportFields))
	for i, ef := range def.ExportFields {
		switch ef.Key {
		case "id":
			row[i] = rec.ID
		case "createdAt":
			row[i] = FormatValue(rec.CreatedAt)
		default:
			row[i] = FormatValue(rec.Fields[ef.Key])
		}
	}
	return row
}

func writeSheetRow(f *excelize.File, sheet string, rowNum int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write sheet %q row %d: %w", sheet, rowNum, err)
	}
	return nil
}

// uniqueSheetName truncates to the sheet name limit, strips characters
// spreadsheets reject, and suffixes repeats.
func uniqueSheetName(name string, used map[string]bool) string {
	base := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, name)
	if base == "" {
		base = "Sheet"
	}
	base = truncateRunes(base, maxSheetNameLen)

	candidate := base
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		candidate = truncateRunes(base, maxSheetNameLen-len(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
