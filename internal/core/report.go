package core

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jszwec/csvutil"
)

// FailureLine is one row of the downloadable failure report.
type FailureLine struct {
	Channel  string `csv:"channel"`
	Row      int    `csv:"row,omitempty"`
	Email    string `csv:"email,omitempty"`
	RecordID string `csv:"record_id,omitempty"`
	Message  string `csv:"message"`
}

// FailureLines lists both failure channels of an outcome, record failures
// first, each in row order. The email of a failed record is read from the
// module's account email field.
func FailureLines(def ModuleDefinition, o *ImportOutcome) []FailureLine {
	emailField := def.AccountEmailField
	if emailField == "" {
		emailField = "email"
	}

	lines := make([]FailureLine, 0, len(o.Errors)+len(o.AccountErrors))
	for _, e := range o.Errors {
		lines = append(lines, FailureLine{Channel: "record", Row: e.Row, Email: e.Data[emailField], Message: e.Message})
	}
	for _, e := range o.AccountErrors {
		lines = append(lines, FailureLine{Channel: "account", Row: e.Row, Email: e.Email, RecordID: e.RecordID, Message: e.Message})
	}
	return lines
}

// WriteFailureReport writes the failures of an outcome as CSV.
// The header is written even when there are no failures.
func WriteFailureReport(w io.Writer, def ModuleDefinition, o *ImportOutcome) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	lines := FailureLines(def, o)
	if len(lines) == 0 {
		if err := enc.EncodeHeader(FailureLine{}); err != nil {
			return fmt.Errorf("encode report header: %w", err)
		}
	}
	for _, line := range lines {
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("encode report line: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}
