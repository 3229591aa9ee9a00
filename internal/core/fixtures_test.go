package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// testingT is satisfied by both *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

var fixedNow = time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)

const testCredential = "Student@kQmZpx42"

func testDefinitions() []ModuleDefinition {
	return []ModuleDefinition{
		{
			ID:   "students",
			Name: "Students",
			Fields: []FieldSpec{
				{Name: "firstName", Label: "First Name", Required: true, Example: "Ada"},
				{Name: "lastName", Label: "Last Name", Required: true, Example: "Lovelace"},
				{Name: "email", Label: "Email", Type: FieldEmail, Required: true, Example: "ada@school.test"},
				{Name: "admissionNo", Label: "Admission No", Required: true, Example: "ADM001"},
				{Name: "dateOfBirth", Label: "Date of Birth", Type: FieldDate, Example: "2012-05-14"},
				{Name: "gender", Label: "Gender", Type: FieldSelect, Options: []string{"Male", "Female", "Other"}, Example: "Female"},
				{Name: "guardianEmail", Label: "Guardian Email", Type: FieldEmail},
			},
			RequiresAccount: true,
			AccountRole:     RoleStudent,
			NaturalKeys:     []string{"email", "admissionNo"},
			Exportable:      true,
		},
		{
			ID:   "teachers",
			Name: "Teachers",
			Fields: []FieldSpec{
				{Name: "fullName", Label: "Full Name", Required: true},
				{Name: "email", Label: "Email", Type: FieldEmail, Required: true},
			},
			RequiresAccount: true,
			AccountRole:     RoleTeachingStaff,
			NaturalKeys:     []string{"email"},
			Exportable:      true,
		},
		{
			ID:   "classes",
			Name: "Classes",
			Fields: []FieldSpec{
				{Name: "name", Label: "Class Name", Required: true},
				{Name: "grade", Label: "Grade", Type: FieldNumber},
				{Name: "room", Label: "Room"},
			},
			NaturalKeys: []string{"name"},
			Exportable:  true,
		},
	}
}

func testRegistry(t testingT) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, def := range testDefinitions() {
		require.NoError(t, reg.Add(def))
	}
	return reg
}

// ----------------------------------------------------------------------------
// Fakes
// ----------------------------------------------------------------------------

type fakeRecords struct {
	mu      sync.Mutex
	records map[string][]Record
	created int

	// createErr fails CreateRecord for matching payloads.
	createErr func(moduleID string, fields map[string]any) error
	// listErr fails ListRecords per module.
	listErr map[string]error
	// afterCreate runs after every successful create with the running count.
	afterCreate func(n int)
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{records: make(map[string][]Record), listErr: make(map[string]error)}
}

func (f *fakeRecords) CreateRecord(_ context.Context, schoolID, moduleID string, fields map[string]any) (string, error) {
	if f.createErr != nil {
		if err := f.createErr(moduleID, fields); err != nil {
			return "", err
		}
	}

	f.mu.Lock()
	f.created++
	n := f.created
	id := fmt.Sprintf("rec-%d", n)
	f.records[schoolID+"/"+moduleID] = append(f.records[schoolID+"/"+moduleID], Record{
		ID:        id,
		Module:    moduleID,
		Fields:    fields,
		CreatedAt: fixedNow,
	})
	f.mu.Unlock()

	if f.afterCreate != nil {
		f.afterCreate(n)
	}
	return id, nil
}

func (f *fakeRecords) ListRecords(_ context.Context, schoolID, moduleID string) ([]Record, error) {
	if err := f.listErr[moduleID]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Record(nil), f.records[schoolID+"/"+moduleID]...), nil
}

func (f *fakeRecords) count(schoolID, moduleID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records[schoolID+"/"+moduleID])
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []ImportHistoryEntry
	err     error
}

func (f *fakeHistory) AppendHistory(_ context.Context, entry *ImportHistoryEntry) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeHistory) ListHistory(_ context.Context, filter HistoryFilter) ([]ImportHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []ImportHistoryEntry
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if e.SchoolID != filter.SchoolID || (filter.Module != "" && e.Module != filter.Module) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// fakeAccounts accepts every request with a unique email.
type fakeAccounts struct {
	mu       sync.Mutex
	requests []AccountRequest
}

func (f *fakeAccounts) CreateAccount(_ context.Context, req AccountRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if strings.EqualFold(r.Email, req.Email) {
			return "", fmt.Errorf("account already exists")
		}
	}
	f.requests = append(f.requests, req)
	return fmt.Sprintf("acct-%d", len(f.requests)), nil
}

type mockAccounts struct {
	mock.Mock
}

func (m *mockAccounts) CreateAccount(ctx context.Context, req AccountRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func forEmail(email string) any {
	return mock.MatchedBy(func(req AccountRequest) bool { return req.Email == email })
}

// blockUntilDone makes a mocked call hang until its context expires.
func blockUntilDone(args mock.Arguments) {
	<-args.Get(0).(context.Context).Done()
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []CredentialEmail
	err  error
}

func (n *recordingNotifier) SendCredentialEmail(_ context.Context, msg CredentialEmail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

// ----------------------------------------------------------------------------
// Service construction
// ----------------------------------------------------------------------------

type testDeps struct {
	records  *fakeRecords
	history  *fakeHistory
	accounts AccountProvider
	notifier *recordingNotifier
}

func newTestService(t testingT, accounts AccountProvider, opts Options) (*Service, *testDeps) {
	t.Helper()

	deps := &testDeps{
		records:  newFakeRecords(),
		history:  &fakeHistory{},
		accounts: accounts,
		notifier: &recordingNotifier{},
	}
	if deps.accounts == nil {
		deps.accounts = &fakeAccounts{}
	}

	svc, err := NewService(Dependencies{
		Registry: testRegistry(t),
		Records:  deps.records,
		History:  deps.history,
		Accounts: deps.accounts,
		Notifier: deps.notifier,
	}, opts)
	require.NoError(t, err)

	svc.now = func() time.Time { return fixedNow }
	svc.newCredential = func(AccountRole) (string, error) { return testCredential, nil }
	return svc, deps
}

// ----------------------------------------------------------------------------
// Upload builders
// ----------------------------------------------------------------------------

var studentHeader = []string{"First Name", "Last Name", "Email", "Admission No", "Date of Birth", "Gender", "Guardian Email"}

func studentRow(i int) []string {
	return []string{
		fmt.Sprintf("First%d", i),
		fmt.Sprintf("Last%d", i),
		fmt.Sprintf("student%d@school.test", i),
		fmt.Sprintf("ADM%03d", i),
		"2012-05-14",
		"Female",
		"",
	}
}

// studentsTable builds an n-row students upload; edit may change any row.
func studentsTable(t testingT, n int, edit func(i int, row []string)) *UploadedTable {
	t.Helper()
	rows := make([][]string, n)
	for i := range rows {
		rows[i] = studentRow(i + 1)
		if edit != nil {
			edit(i+1, rows[i])
		}
	}
	return csvTable(t, "students.csv", studentHeader, rows)
}

func csvTable(t testingT, name string, header []string, rows [][]string) *UploadedTable {
	t.Helper()
	var b strings.Builder
	b.WriteString(strings.Join(header, ",") + "\n")
	for _, r := range rows {
		b.WriteString(strings.Join(r, ",") + "\n")
	}
	table, err := ParseFile(name, []byte(b.String()))
	require.NoError(t, err)
	return table
}
