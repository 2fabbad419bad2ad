package dataengine

import "errors"

// Sentinel errors, compared with errors.Is — the teacher's store package
// follows the same pattern (ErrBlobNotFound).
var (
	ErrServerNotFound  = errors.New("dataengine: server not found")
	ErrChannelNotFound = errors.New("dataengine: channel not found")
	ErrInviteNotFound  = errors.New("dataengine: invite not found")
	ErrInviteExhausted = errors.New("dataengine: invite exhausted")
	ErrNotAuthorized   = errors.New("dataengine: not authorized")
)
