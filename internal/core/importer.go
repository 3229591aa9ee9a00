package core

import (
	"context"

	"github.com/google/uuid"

	"github.com/JonMunkholm/schoolbulk/internal/logging"
)

// interruptedMessage marks rows never reached because the caller went away.
const interruptedMessage = "import interrupted"

// CommitOptions are the caller's policy flags for a commit.
type CommitOptions struct {
	SendEmails     bool
	SkipDuplicates bool
	ActorID        string
}

// DefaultCommitOptions skips duplicates and sends no email.
func DefaultCommitOptions() CommitOptions {
	return CommitOptions{SkipDuplicates: true}
}

// Commit imports a table into a module.
//
// Header and rows are validated again regardless of any earlier preview.
// Rows are processed one at a time in file order; a failure on one row is
// recorded and never stops the rest. Accounts for successful rows are
// provisioned by a bounded worker pool. Rows already written stay written if
// ctx is cancelled part way; the rest are reported as interrupted.
// Exactly one history entry is appended per commit.
func (s *Service) Commit(ctx context.Context, schoolID, moduleID string, table *UploadedTable, opts CommitOptions) (*ImportOutcome, error) {
	def, err := s.registry.Get(moduleID)
	if err != nil {
		return nil, err
	}

	check := ValidateHeader(def, table.Columns)
	if err := check.Err(def.ID); err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	index, err := s.loadKeyIndex(ctx, schoolID, def)
	if err != nil {
		return nil, err
	}

	log := logging.WithFields(ctx,
		"module", def.ID,
		"school_id", schoolID,
		"file", table.FileName,
	)
	log.Info("import started", "rows", len(table.Rows), "skip_duplicates", opts.SkipDuplicates)

	rows := make([]RowResult, len(table.Rows))
	pool := s.newAccountPool(len(table.Rows))
	interrupted := false

	for i, row := range table.Rows {
		if !interrupted && ctx.Err() != nil {
			interrupted = true
			log.Warn("import interrupted", "at_row", row.Number, "error", ctx.Err())
		}
		if interrupted {
			rows[i] = RowResult{Kind: RowRecordError, Row: row.Number, Message: interruptedMessage}
			continue
		}

		data := displayData(def, check, row)

		v := ValidateRow(def, check, row)
		if !v.IsValid {
			rows[i] = RowResult{Kind: RowInvalidResult, Row: row.Number, Message: v.Message(), Data: data}
			continue
		}

		if dup, found := FindDuplicate(def, v.Fields, index); found && opts.SkipDuplicates {
			rows[i] = RowResult{Kind: RowDuplicateSkipped, Row: row.Number, Message: dup.Reason(), Data: data}
			continue
		}

		recordID, err := s.records.CreateRecord(ctx, schoolID, def.ID, v.Fields)
		if err != nil {
			log.Warn("record create failed", "row", row.Number, "error", err)
			rows[i] = RowResult{Kind: RowRecordError, Row: row.Number, Message: recordErrorMessage(err), Data: data}
			continue
		}

		index.Add(v.Fields, row.Number)
		rows[i] = RowResult{Kind: RowSuccess, Row: row.Number, RecordID: recordID}

		if def.RequiresAccount {
			job := accountJobFor(def, schoolID, row.Number, recordID, v.Fields)
			pool.submit(i, func() AccountResult {
				return s.provisionAccount(ctx, def, job, opts.SendEmails)
			})
		}
	}

	outcome := summarize(def, table.FileName, rows, pool.results())
	outcome.Interrupted = interrupted

	entry := &ImportHistoryEntry{
		ID:              uuid.NewString(),
		SchoolID:        schoolID,
		Module:          def.ID,
		FileName:        table.FileName,
		TotalRows:       outcome.RowsInFile,
		Success:         outcome.Success,
		Failed:          outcome.Failed,
		Skipped:         outcome.Skipped,
		AccountsCreated: outcome.AccountsCreated,
		AccountsFailed:  outcome.AccountsFailed,
		Actor:           opts.ActorID,
		IPAddress:       IPAddressFromContext(ctx),
		CreatedAt:       s.now().UTC(),
	}
	if err := s.history.AppendHistory(context.WithoutCancel(ctx), entry); err != nil {
		log.Error("failed to write import history", "error", err)
	} else {
		outcome.HistoryID = entry.ID
	}

	log.Info("import complete",
		"total", outcome.Total,
		"success", outcome.Success,
		"failed", outcome.Failed,
		"skipped", outcome.Skipped,
		"accounts_created", outcome.AccountsCreated,
		"accounts_failed", outcome.AccountsFailed,
	)

	return outcome, nil
}

// recordErrorMessage is the row message for a failed record write. Known
// storage failures get their user-facing text; anything else is passed
// through so the row still says what went wrong.
func recordErrorMessage(err error) string {
	if IsUserFacing(err) {
		return FormatUserError(err)
	}
	return err.Error()
}
