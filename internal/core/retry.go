package core

import (
	"context"
	"strings"

	"github.com/JonMunkholm/schoolbulk/internal/logging"
)

// RetryEntry identifies a previously failed account by email and record.
type RetryEntry struct {
	Email    string `json:"email"`
	RecordID string `json:"recordId"`
}

// RetryOptions are the caller's flags for an account retry.
type RetryOptions struct {
	SendEmails bool
}

// RetryAccounts provisions accounts again for entries that failed during an
// earlier commit. Each entry gets a new credential and is independent of the
// others. Primary records are never read or written.
func (s *Service) RetryAccounts(ctx context.Context, schoolID, moduleID string, entries []RetryEntry, opts RetryOptions) (*RetryOutcome, error) {
	def, err := s.registry.Get(moduleID)
	if err != nil {
		return nil, err
	}
	if !def.RequiresAccount {
		return nil, ErrAccountsNotSupported
	}
	if len(entries) == 0 {
		return nil, ErrNoRetryEntries
	}

	pool := s.newAccountPool(len(entries))
	for i, entry := range entries {
		job := accountJob{
			SchoolID: schoolID,
			Email:    strings.TrimSpace(entry.Email),
			RecordID: strings.TrimSpace(entry.RecordID),
		}

		if job.RecordID == "" {
			pool.slots[i] = &AccountResult{Kind: AccountFailed, Email: job.Email, Message: "recordId is required"}
			continue
		}
		if email, ok := ParseEmail(job.Email); ok {
			job.Email = email
		} else if job.Email != "" {
			pool.slots[i] = &AccountResult{Kind: AccountFailed, Email: job.Email, RecordID: job.RecordID,
				Message: def.AccountEmailField + " must be a valid email address"}
			continue
		}

		pool.submit(i, func() AccountResult {
			return s.provisionAccount(ctx, def, job, opts.SendEmails)
		})
	}

	out := &RetryOutcome{
		Module:  def.ID,
		Created: []RetriedAccount{},
		Errors:  []AccountError{},
	}
	for _, res := range pool.results() {
		switch res.Kind {
		case AccountCreated:
			out.Success++
			out.Created = append(out.Created, RetriedAccount{Email: res.Email, RecordID: res.RecordID, AccountID: res.AccountID})
			if res.EmailQueued {
				out.EmailsQueued++
			}
		case AccountFailed:
			out.Failed++
			out.Errors = append(out.Errors, AccountError{
				Email:    res.Email,
				RecordID: res.RecordID,
				Message:  res.Message,
				CanRetry: res.RecordID != "",
			})
		}
	}

	logging.WithFields(ctx, "module", def.ID, "school_id", schoolID).Info("account retry complete",
		"entries", len(entries),
		"success", out.Success,
		"failed", out.Failed,
	)

	return out, nil
}
