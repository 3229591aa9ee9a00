package core

import "strings"

// RowResultKind tags the variant of a committed row.
type RowResultKind int

const (
	RowSuccess RowResultKind = iota
	RowInvalidResult
	RowDuplicateSkipped
	RowRecordError
)

func (k RowResultKind) String() string {
	switch k {
	case RowSuccess:
		return "success"
	case RowInvalidResult:
		return "invalid"
	case RowDuplicateSkipped:
		return "duplicate"
	case RowRecordError:
		return "record_error"
	default:
		return "unknown"
	}
}

// RowResult is the commit verdict for one row.
type RowResult struct {
	Kind     RowResultKind
	Row      int
	RecordID string            // RowSuccess only
	Message  string            // Failure reason or duplicate reason
	Data     map[string]string // Display columns for error output
}

// AccountResultKind tags the variant of an account provisioning attempt.
type AccountResultKind int

const (
	AccountCreated AccountResultKind = iota
	AccountFailed
)

func (k AccountResultKind) String() string {
	if k == AccountCreated {
		return "created"
	}
	return "failed"
}

// AccountResult is the outcome of provisioning one account.
type AccountResult struct {
	Kind        AccountResultKind
	Row         int
	Email       string
	RecordID    string
	AccountID   string
	Message     string
	EmailQueued bool
}

// RowError is a failed row in the record channel.
type RowError struct {
	Row     int               `json:"row"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data,omitempty"`
}

// AccountError is a failed provisioning attempt in the account channel.
// CanRetry entries can be passed to RetryAccounts as-is.
type AccountError struct {
	Row      int    `json:"row,omitempty"`
	Email    string `json:"email"`
	RecordID string `json:"recordId"`
	Message  string `json:"message"`
	CanRetry bool   `json:"canRetry"`
}

// ImportOutcome aggregates a commit. Total counts rows that were attempted
// or rejected; skipped duplicates are reported separately, so
// Success+Failed == Total and Total+Skipped == RowsInFile.
type ImportOutcome struct {
	Module          string         `json:"module"`
	FileName        string         `json:"fileName"`
	RowsInFile      int            `json:"rowsInFile"`
	Total           int            `json:"total"`
	Success         int            `json:"success"`
	Failed          int            `json:"failed"`
	Skipped         int            `json:"skipped"`
	Errors          []RowError     `json:"errors"`
	RequiresAccount bool           `json:"requiresAuth"`
	AccountsCreated int            `json:"accountsCreated"`
	AccountsFailed  int            `json:"accountsFailed"`
	AccountErrors   []AccountError `json:"accountErrors"`
	EmailsQueued    int            `json:"emailsQueued"`
	HistoryID       string         `json:"historyId,omitempty"`
	Interrupted     bool           `json:"interrupted,omitempty"`
}

// summarize reduces the per-row and per-account variants into an outcome.
func summarize(def ModuleDefinition, fileName string, rows []RowResult, accounts []AccountResult) *ImportOutcome {
	out := &ImportOutcome{
		Module:          def.ID,
		FileName:        fileName,
		RowsInFile:      len(rows),
		RequiresAccount: def.RequiresAccount,
		Errors:          []RowError{},
		AccountErrors:   []AccountError{},
	}

	for _, r := range rows {
		switch r.Kind {
		case RowSuccess:
			out.Success++
		case RowDuplicateSkipped:
			out.Skipped++
		case RowInvalidResult, RowRecordError:
			out.Failed++
			out.Errors = append(out.Errors, RowError{Row: r.Row, Message: r.Message, Data: r.Data})
		}
	}
	out.Total = out.Success + out.Failed

	for _, a := range accounts {
		switch a.Kind {
		case AccountCreated:
			out.AccountsCreated++
			if a.EmailQueued {
				out.EmailsQueued++
			}
		case AccountFailed:
			out.AccountsFailed++
			out.AccountErrors = append(out.AccountErrors, AccountError{
				Row:      a.Row,
				Email:    a.Email,
				RecordID: a.RecordID,
				Message:  a.Message,
				CanRetry: a.RecordID != "",
			})
		}
	}

	return out
}

// RetriedAccount identifies an account created by a retry.
type RetriedAccount struct {
	Email     string `json:"email"`
	RecordID  string `json:"recordId"`
	AccountID string `json:"accountId"`
}

// RetryOutcome is the account-channel delta produced by RetryAccounts.
type RetryOutcome struct {
	Module       string           `json:"module"`
	Success      int              `json:"success"`
	Failed       int              `json:"failed"`
	Created      []RetriedAccount `json:"created"`
	Errors       []AccountError   `json:"errors"`
	EmailsQueued int              `json:"emailsQueued"`
}

// ApplyRetry merges a retry delta into the account channel of an earlier
// outcome. Record counters are never touched.
func (o *ImportOutcome) ApplyRetry(delta *RetryOutcome) {
	created := make(map[string]bool, len(delta.Created))
	for _, c := range delta.Created {
		created[retryKey(c.RecordID, c.Email)] = true
	}
	failed := make(map[string]AccountError, len(delta.Errors))
	for _, e := range delta.Errors {
		failed[retryKey(e.RecordID, e.Email)] = e
	}

	remaining := make([]AccountError, 0, len(o.AccountErrors))
	for _, e := range o.AccountErrors {
		key := retryKey(e.RecordID, e.Email)
		if created[key] {
			delete(created, key)
			o.AccountsCreated++
			o.AccountsFailed--
			continue
		}
		if upd, ok := failed[key]; ok {
			e.Message = upd.Message
		}
		remaining = append(remaining, e)
	}

	o.AccountErrors = remaining
	o.EmailsQueued += delta.EmailsQueued
}

func retryKey(recordID, email string) string {
	return recordID + "\x00" + strings.ToLower(email)
}
