package domain

import "errors"

var (
	// ErrAuthenticationFailed rejects a connection at registration. Fatal
	// to that connection only.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrNotAMember rejects a room operation; the connection stays alive.
	ErrNotAMember = errors.New("not a member of conversation")
	// ErrPersistenceFailed aborts a send before any broadcast. The caller
	// should retry the whole send.
	ErrPersistenceFailed = errors.New("message persistence failed")
	// ErrInvalidStateTransition marks an out-of-order or duplicate receipt.
	// Expected under at-least-once client acks; never surfaced to users.
	ErrInvalidStateTransition = errors.New("invalid receipt state transition")

	ErrInvalidConversationID = errors.New("invalid conversation id")
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrInvalidMessageID      = errors.New("invalid message id")
	ErrMessageNotFound       = errors.New("message not found")
	ErrInvalidUserID         = errors.New("invalid user id")
	ErrUserNotFound          = errors.New("user not found")
	ErrUserExists            = errors.New("user already exists")
)
