package core

// error_messages.go maps errors to messages an operator can act on.
//
// Every error gets a support code. Specific messages are matched on the
// error text first; anything left is mapped by its catalog error kind, and
// unclassified errors fall back to ERR000.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Invalid CSV
//	FILE003 - Empty file, or a header with no rows under it
//	FILE004 - No file provided
//	FILE005 - Header does not match the restaurant's template
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - A row failed validation
//	VAL002 - Duplicate item names in one import
//	VAL003 - Nothing to import
//
// # Upload and Request Errors (UPL001-UPL099)
//
//	UPL001 - Too many uploads in progress
//	UPL002 - Request cancelled
//	UPL003 - Request timed out
//	REQ001 - Malformed request body
//
// # Kind Errors
//
//	AUTH001 - Caller lacks the capability
//	NF001   - Referenced record does not exist
//	CON001  - Conflicting write
//	TX001   - Transaction failed and was rolled back
//	EXT001  - Point-of-sale or other external service failed
//	ERR000  - Unknown error; check the logs for the technical error

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are matched case-insensitively with strings.Contains. The
// first match wins, so specific patterns come first.
var errorPatterns = []errorPattern{
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller imports",
			Code:    "FILE001",
		},
	},
	{
		pattern: "not valid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Export the spreadsheet as comma-separated values",
			Code:    "FILE002",
		},
	},
	{
		pattern: "file is empty",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Download the template and fill in at least one item",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no data rows",
		msg: UserMessage{
			Message: "The file has a header but no items",
			Action:  "Add item rows below the header",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "header mismatch",
		msg: UserMessage{
			Message: "The columns do not match this restaurant's template",
			Action:  "Download the current template and copy your rows into it",
			Code:    "FILE005",
		},
	},
	{
		pattern: "appears on rows",
		msg: UserMessage{
			Message: "The same item appears more than once",
			Action:  "Give every item a unique name or merge the rows",
			Code:    "VAL002",
		},
	},
	{
		pattern: "no rows to import",
		msg: UserMessage{
			Message: "There is nothing to import",
			Action:  "Send at least one item",
			Code:    "VAL003",
		},
	},
	{
		pattern: "pos export has no items",
		msg: UserMessage{
			Message: "The point-of-sale inventory is empty",
			Action:  "Add items in the point-of-sale system and sync again",
			Code:    "VAL003",
		},
	},
	{
		pattern: "invalid request body",
		msg: UserMessage{
			Message: "The request body could not be read",
			Action:  "Send a JSON body in the documented shape",
			Code:    "REQ001",
		},
	},
	{
		pattern: "too many concurrent uploads",
		msg: UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "UPL001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL003",
		},
	},
}

type kindMessage struct {
	kind error
	msg  UserMessage
}

// kindMessages is consulted in order after the patterns.
var kindMessages = []kindMessage{
	{
		kind: catalog.ErrAuthorization,
		msg: UserMessage{
			Message: "You are not allowed to do this for this restaurant",
			Action:  "Ask an administrator for access",
			Code:    "AUTH001",
		},
	},
	{
		kind: catalog.ErrNotFound,
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Check the id and try again",
			Code:    "NF001",
		},
	},
	{
		kind: catalog.ErrConflict,
		msg: UserMessage{
			Message: "Another change touched the same records",
			Action:  "Please try again",
			Code:    "CON001",
		},
	},
	{
		kind: catalog.ErrTransaction,
		msg: UserMessage{
			Message: "The import could not be saved and nothing was changed",
			Action:  "Please try again or contact support",
			Code:    "TX001",
		},
	},
	{
		kind: catalog.ErrExternalService,
		msg: UserMessage{
			Message: "The point-of-sale system could not be reached",
			Action:  "Reconnect the point-of-sale account if this keeps happening",
			Code:    "EXT001",
		},
	},
	{
		kind: catalog.ErrValidation,
		msg: UserMessage{
			Message: "A row failed validation",
			Action:  "Fix the listed fields and upload again",
			Code:    "VAL001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
//	err := catalog.Errorf(catalog.ErrNotFound, "load menu", "menu %q", id)
//	msg := MapError(err)
//	// msg.Code == "NF001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	for _, km := range kindMessages {
		if errors.Is(err, km.kind) {
			return km.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
