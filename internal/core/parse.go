package core

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// DataSheetName is the sheet read from uploaded workbooks when present.
const DataSheetName = "Data"

var (
	zipSignature = []byte("PK\x03\x04")
	utf8BOM      = []byte{0xEF, 0xBB, 0xBF}
)

// ParseFile turns uploaded bytes into an UploadedTable.
//
// Workbooks (detected by their zip signature) are read with excelize from the
// "Data" sheet or the first sheet; everything else is read as CSV. The first
// non-empty row is the header. Blank rows are skipped and do not consume row
// numbers.
func ParseFile(fileName string, data []byte) (*UploadedTable, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	var (
		records []sourceRow
		err     error
	)
	if bytes.HasPrefix(data, zipSignature) {
		records, err = readWorkbook(data)
	} else {
		records, err = readCSV(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableFile, err)
	}

	return buildTable(fileName, records)
}

// sourceRow is one record of the uploaded file with its physical line.
type sourceRow struct {
	line  int
	cells []string
}

func readWorkbook(data []byte) ([]sourceRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	sheet := sheets[0]
	for _, name := range sheets {
		if strings.EqualFold(name, DataSheetName) {
			sheet = name
			break
		}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	out := make([]sourceRow, len(rows))
	for i, cells := range rows {
		out[i] = sourceRow{line: i + 1, cells: cells}
	}
	return out, nil
}

// readCSV reads every record. encoding/csv drops empty lines, so each
// record's line comes from FieldPos.
func readCSV(data []byte) ([]sourceRow, error) {
	data = sanitizeUTF8(bytes.TrimPrefix(data, utf8BOM))
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, fmt.Errorf("binary content is not tabular text")
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var out []sourceRow
	for {
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		line, _ := r.FieldPos(0)
		out = append(out, sourceRow{line: line, cells: cells})
	}
	return out, nil
}

func buildTable(fileName string, records []sourceRow) (*UploadedTable, error) {
	headerAt := -1
	for i, rec := range records {
		if !isEmptyRow(rec.cells) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, ErrEmptyFile
	}

	columns := make([]string, len(records[headerAt].cells))
	for i, h := range records[headerAt].cells {
		columns[i] = strings.TrimSpace(h)
	}

	table := &UploadedTable{FileName: fileName, Columns: columns}
	for i := headerAt + 1; i < len(records); i++ {
		rec := records[i].cells
		if isEmptyRow(rec) {
			continue
		}

		values := make(map[string]string, len(columns))
		for c, col := range columns {
			if col == "" {
				continue
			}
			// A repeated header keeps the value of its first column,
			// the one ValidateHeader binds.
			if _, seen := values[col]; seen {
				continue
			}
			if c < len(rec) {
				values[col] = rec[c]
			} else {
				values[col] = ""
			}
		}

		table.Rows = append(table.Rows, Row{
			Number: len(table.Rows) + 1,
			Line:   records[i].line,
			Values: values,
		})
	}

	if len(table.Rows) == 0 {
		return nil, ErrEmptyFile
	}
	return table, nil
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// sanitizeUTF8 replaces invalid byte sequences with U+FFFD.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
