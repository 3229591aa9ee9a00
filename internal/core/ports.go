package core

import "context"

// RecordStore persists the primary domain records created by imports.
type RecordStore interface {
	CreateRecord(ctx context.Context, schoolID, moduleID string, fields map[string]any) (string, error)
	ListRecords(ctx context.Context, schoolID, moduleID string) ([]Record, error)
}

// AccountRequest asks the identity provider for a login tied to a record.
type AccountRequest struct {
	SchoolID    string
	Email       string
	Credential  string
	Role        AccountRole
	RecordID    string
	DisplayName string
}

// AccountProvider creates login identities.
type AccountProvider interface {
	CreateAccount(ctx context.Context, req AccountRequest) (string, error)
}

// CredentialEmail is the message sent to a newly provisioned account holder.
type CredentialEmail struct {
	To         string
	Name       string
	Role       AccountRole
	Credential string
	LoginURL   string
}

// Notifier delivers credential emails. Failures are logged by the caller
// and never retried.
type Notifier interface {
	SendCredentialEmail(ctx context.Context, msg CredentialEmail) error
}

// HistoryStore is the append-only log of committed imports.
type HistoryStore interface {
	AppendHistory(ctx context.Context, entry *ImportHistoryEntry) error
	ListHistory(ctx context.Context, filter HistoryFilter) ([]ImportHistoryEntry, error)
}
