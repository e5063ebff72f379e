package export

import (
	"context"
	"errors"
)

// UserMessage is an operator-facing rendering of a technical error. The
// code gives support something stable to search for; the action tells the
// operator what to try.
type UserMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// MapError converts a technical error into an operator-facing message.
// Technical details stay in the logs; the message is safe to show.
func MapError(err error) UserMessage {
	switch {
	case errors.Is(err, ErrDirNotWritable):
		return UserMessage{
			Code:    "EXP001",
			Message: "The export service does not have sufficient permissions to write to the uploads folder.",
			Action:  "Check ownership and permissions of the configured export directory.",
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return UserMessage{
			Code:    "EXP002",
			Message: "The export batch was interrupted before it finished.",
			Action:  "Delete the partial export file and trigger the export again.",
		}
	default:
		return UserMessage{
			Code:    "EXP000",
			Message: "The export batch failed unexpectedly.",
			Action:  "Check the server logs for details, then delete the partial export file and retry.",
		}
	}
}
