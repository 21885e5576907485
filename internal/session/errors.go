package session

import "errors"

// Protocol violations surfaced to the caller; handlers map these to
// user-displayable HTTP errors.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrNotParticipant   = errors.New("caller is not a participant of this session")
	ErrNotInvitee       = errors.New("only the invitee can accept this invite")
	ErrNotPending       = errors.New("invite is no longer pending")
	ErrInviteExpired    = errors.New("invite has expired")
	ErrInviteCeiling    = errors.New("pending invite limit reached")
	ErrDuplicateInvite  = errors.New("an invite between these runners already exists")
	ErrSelfInvite       = errors.New("cannot invite yourself")
	ErrAlreadyActive    = errors.New("already in an active run")
	ErrSessionClosed    = errors.New("session is already completed or cancelled")
	ErrSessionNotActive = errors.New("session is not active")
	ErrNoActiveSession  = errors.New("no active session")
)
