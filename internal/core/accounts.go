package core

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/schoolbulk/internal/logging"
)

// accountJob is one provisioning attempt handed to the worker pool.
type accountJob struct {
	SchoolID    string
	Row         int
	Email       string
	RecordID    string
	DisplayName string
}

// accountPool runs provisioning calls with bounded concurrency. Every job
// writes its own slot, so results stay attributed to their row and are
// summed only after Wait.
type accountPool struct {
	g     errgroup.Group
	slots []*AccountResult
}

func (s *Service) newAccountPool(size int) *accountPool {
	p := &accountPool{slots: make([]*AccountResult, size)}
	p.g.SetLimit(s.accountWorkers)
	return p
}

// submit blocks while all workers are busy.
func (p *accountPool) submit(slot int, run func() AccountResult) {
	p.g.Go(func() error {
		res := run()
		p.slots[slot] = &res
		return nil
	})
}

// results waits for every job and returns the filled slots in order.
func (p *accountPool) results() []AccountResult {
	_ = p.g.Wait()

	out := make([]AccountResult, 0, len(p.slots))
	for _, r := range p.slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// provisionAccount creates one account with a fresh credential. A call that
// exceeds the account timeout fails with the message "timeout".
func (s *Service) provisionAccount(ctx context.Context, def ModuleDefinition, job accountJob, sendEmails bool) AccountResult {
	res := AccountResult{
		Kind:     AccountFailed,
		Row:      job.Row,
		Email:    job.Email,
		RecordID: job.RecordID,
	}
	log := logging.WithFields(ctx, "module", def.ID, "school_id", job.SchoolID, "record_id", job.RecordID)

	if job.Email == "" {
		res.Message = def.AccountEmailField + " is required for account provisioning"
		return res
	}

	credential, err := s.newCredential(def.AccountRole)
	if err != nil {
		res.Message = err.Error()
		return res
	}

	callCtx, cancel := context.WithTimeout(ctx, s.accountTimeout)
	accountID, err := s.accounts.CreateAccount(callCtx, AccountRequest{
		SchoolID:    job.SchoolID,
		Email:       job.Email,
		Credential:  credential,
		Role:        def.AccountRole,
		RecordID:    job.RecordID,
		DisplayName: job.DisplayName,
	})
	timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
	cancel()

	if err != nil {
		if timedOut || errors.Is(err, context.DeadlineExceeded) {
			res.Message = "timeout"
		} else {
			res.Message = err.Error()
		}
		log.Warn("account provisioning failed", "row", job.Row, "error", err)
		return res
	}

	res.Kind = AccountCreated
	res.AccountID = accountID

	if sendEmails {
		res.EmailQueued = s.sendCredential(ctx, def, job, credential)
	}

	return res
}

// sendCredential delivers the credential email. Failures are logged only;
// they never revert the account or the record.
func (s *Service) sendCredential(ctx context.Context, def ModuleDefinition, job accountJob, credential string) bool {
	mailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.emailTimeout)
	defer cancel()

	err := s.notifier.SendCredentialEmail(mailCtx, CredentialEmail{
		To:         job.Email,
		Name:       job.DisplayName,
		Role:       def.AccountRole,
		Credential: credential,
		LoginURL:   s.loginURL,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("credential email failed",
			"module", def.ID,
			"record_id", job.RecordID,
			"error", err,
		)
		return false
	}
	return true
}

// accountJobFor builds the provisioning job for a freshly created record.
func accountJobFor(def ModuleDefinition, schoolID string, row int, recordID string, fields map[string]any) accountJob {
	email, _ := fields[def.AccountEmailField].(string)
	return accountJob{
		SchoolID:    schoolID,
		Row:         row,
		Email:       strings.TrimSpace(email),
		RecordID:    recordID,
		DisplayName: recordDisplayName(fields),
	}
}

// recordDisplayName picks the best human name available on a record.
func recordDisplayName(fields map[string]any) string {
	for _, key := range []string{"name", "fullName", "guardianName"} {
		if v, ok := fields[key].(string); ok && v != "" {
			return v
		}
	}
	first, _ := fields["firstName"].(string)
	last, _ := fields["lastName"].(string)
	return strings.TrimSpace(first + " " + last)
}
