package core

// # Error Codes Reference
//
// User-facing errors carry a code that staff can quote when something goes
// wrong during a front-desk shift. Codes are grouped by category:
//
// # Store Errors (STORE001-STORE099)
//
//	STORE001 - Persistence failure: Reservations could not be saved
//	           Action: Your previous data is unchanged. Please try again
//	           Patterns: "persistence failure"
//
//	STORE002 - Store unreachable: Unable to connect to the shared store
//	           Action: Please try again in a few moments
//	           Patterns: "connection refused", "connection reset"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid date range: Check-out is before check-in
//	         Action: Correct the check-out date
//	         Patterns: "invalid date range"
//
//	VAL002 - Invalid date: Date could not be read
//	         Action: Use YYYY-MM-DD or YYYY/MM/DD
//	         Patterns: "invalid date"
//
//	VAL003 - Required field: Required field is empty
//	         Action: Fill in room, guest name, check-in and check-out
//	         Patterns: "required field"
//
//	VAL004 - Bad request: Request body could not be read
//	         Action: Send a JSON object with the booking fields
//	         Patterns: "invalid request body"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds maximum size limit
//	          Action: Export a shorter date range
//	          Patterns: "file too large"
//
//	FILE002 - Too many files: Too many files selected
//	          Action: Select fewer files per upload
//	          Patterns: "too many files"
//
//	FILE004 - No file: No file was selected
//	          Action: Please select ReservationList.CSV
//	          Patterns: "no file provided"
//
//	FILE005 - Empty dataset: No valid reservation rows found
//	          Action: Check the file is a reservation export with 予約区分 and チェックイン日 columns
//	          Patterns: "empty dataset"
//
// # Ingest Errors (ING001-ING099)
//
//	ING001 - System busy: Too many imports in progress
//	         Action: Please wait a moment and try again
//	         Patterns: "too many concurrent ingests"
//
//	ING002 - Not loaded: No reservation data loaded
//	         Action: Upload a reservation export first
//	         Patterns: "no reservation data loaded"
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled
//	REQ002 - Request timeout
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests
//
// # Default Error (ERR000)
//
// Fallback when no pattern matches. Check the logs for the original error.
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Store
	{
		pattern: "persistence failure",
		msg: UserMessage{
			Message: "Reservations could not be saved",
			Action:  "Your previous data is unchanged. Please try again",
			Code:    "STORE001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the shared store",
			Action:  "Please try again in a few moments",
			Code:    "STORE002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Unable to connect to the shared store",
			Action:  "Please try again in a few moments",
			Code:    "STORE002",
		},
	},

	// Validation
	{
		pattern: "invalid date range",
		msg: UserMessage{
			Message: "Check-out is before check-in",
			Action:  "Correct the check-out date",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Date could not be read",
			Action:  "Use YYYY-MM-DD or YYYY/MM/DD",
			Code:    "VAL002",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Fill in room, guest name, check-in and check-out",
			Code:    "VAL003",
		},
	},
	{
		pattern: "invalid request body",
		msg: UserMessage{
			Message: "Request body could not be read",
			Action:  "Send a JSON object with the booking fields",
			Code:    "VAL004",
		},
	},

	// Files
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Export a shorter date range",
			Code:    "FILE001",
		},
	},
	{
		pattern: "too many files",
		msg: UserMessage{
			Message: "Too many files selected",
			Action:  "Select fewer files per upload",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select ReservationList.CSV",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty dataset",
		msg: UserMessage{
			Message: "No valid reservation rows found",
			Action:  "Check the file is a reservation export with 予約区分 and チェックイン日 columns",
			Code:    "FILE005",
		},
	},

	// Ingest
	{
		pattern: "too many concurrent ingests",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "ING001",
		},
	},
	{
		pattern: "no reservation data loaded",
		msg: UserMessage{
			Message: "No reservation data loaded",
			Action:  "Upload a reservation export first",
			Code:    "ING002",
		},
	},

	// Request
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try again with a smaller file",
			Code:    "REQ002",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Matching is case-insensitive and the first matching pattern wins.
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

	return defaultMessage
}

// FormatUserError creates "Message (Code: XXX). Action" for display.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
