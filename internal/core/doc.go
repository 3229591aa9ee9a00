// Package core provides the business logic for bulk spreadsheet import and
// export of school records.
//
// The package holds all domain logic independent of any transport or storage.
// Web handlers, the migrator, and tests drive it through [Service]; storage,
// identity, and mail are reached through the ports in ports.go.
//
// # Module Registry
//
// Every importable kind of record is a [ModuleDefinition] registered at init
// time. The built-in catalog lives in the modules subpackage:
//
//	core.Register(core.ModuleDefinition{
//	    ID:   "students",
//	    Name: "Students",
//	    Fields: []core.FieldSpec{
//	        {Name: "firstName", Label: "First Name", Required: true},
//	        {Name: "email", Type: core.FieldEmail, Required: true},
//	    },
//	    RequiresAccount: true,
//	    AccountRole:     core.RoleStudent,
//	    NaturalKeys:     []string{"email"},
//	})
//
// # Import Flow
//
//  1. [ParseFile] turns an .xlsx or .csv upload into an [UploadedTable]
//  2. [ValidateHeader] rejects files that do not match the module template
//  3. [Service.Preview] validates every row and flags duplicates without writing
//  4. [Service.Commit] persists valid rows one at a time, then provisions
//     accounts on a bounded worker pool
//  5. [Service.RetryAccounts] re-attempts only the failed account creations
//
// Record failures and account failures are reported on separate channels of
// [ImportOutcome]. A record that saved but whose account failed is still a
// success on the record channel.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - MOD001: Unknown module
//   - FILE001-FILE005: File errors (size, format, empty)
//   - VAL004: Template mapping not matched
//   - IMP001-IMP004: Import and retry errors
//   - EXP001: Export errors
//   - DB001-DB006: Database errors
package core
