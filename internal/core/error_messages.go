package core

// error_messages.go maps technical errors to operator-facing messages with a
// support code.
//
// Codes by category:
//
//	MOD001  Module not found
//	FILE001 File too large          FILE002 Unreadable file
//	FILE004 No file provided        FILE005 Empty file
//	VAL004  Template mapping not matched
//	IMP001  Too many imports        IMP002 Accounts not supported
//	IMP003  Nothing to retry        IMP004 Invalid request body
//	EXP001  No modules selected
//	DB001-DB006 Database faults     UPL004/UPL005 Cancelled / timed out
//	RATE001 Rate limited            ERR000 Unknown
//
// Sentinel errors are matched first with errors.Is; anything else falls back
// to case-insensitive substring patterns, first match wins.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

var sentinelMessages = []sentinelMessage{
	{ErrModuleNotFound, UserMessage{"Module not found", "Check the module name against the module list", "MOD001"}},
	{ErrHeaderMismatch, UserMessage{"Template mapping not matched", "Please download the correct template", "VAL004"}},
	{ErrUnreadableFile, UserMessage{"The file could not be read as a spreadsheet", "Upload an .xlsx or .csv file saved from the template", "FILE002"}},
	{ErrEmptyFile, UserMessage{"The uploaded file has no data rows", "Add at least one row below the header", "FILE005"}},
	{ErrNoModulesSelected, UserMessage{"No modules selected", "Select at least one module to export", "EXP001"}},
	{ErrTooManyImports, UserMessage{"System is busy processing other imports", "Please wait a moment and try again", "IMP001"}},
	{ErrAccountsNotSupported, UserMessage{"This module does not create accounts", "Retry is only available for modules with logins", "IMP002"}},
	{ErrNoRetryEntries, UserMessage{"No accounts to retry", "Select at least one failed account", "IMP003"}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{"A record with this value already exists", "Review the duplicate rows and try again", "DB001"}},
	{"violates unique", UserMessage{"A duplicate value was found", "Review your data for duplicate key values", "DB002"}},
	{"violates foreign key", UserMessage{"Referenced record does not exist", "Import the referenced module first", "DB003"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB006"}},
	{"file too large", UserMessage{"File exceeds the maximum size limit", "Split the file into smaller files", "FILE001"}},
	{"request body too large", UserMessage{"File exceeds the maximum size limit", "Split the file into smaller files", "FILE001"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a file to upload", "FILE004"}},
	{"invalid request body", UserMessage{"The request could not be understood", "Check the request payload", "IMP004"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "UPL004"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try a smaller file or try again later", "UPL005"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// defaultMessage is returned when nothing matches. Support staff should check
// the application logs for the technical error behind an ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders an error as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
