package services

import (
	"errors"
	"net/http"
)

// Code classifies an engine error so the transport layer can map it.
type Code string

const (
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeNotFound           Code = "NOT_FOUND"
	CodePreconditionFailed Code = "PRECONDITION_FAILED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeCapacityExceeded   Code = "CAPACITY_EXCEEDED"
	CodeConflict           Code = "CONFLICT"
	CodeUnavailable        Code = "UNAVAILABLE"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeInternal           Code = "INTERNAL"
)

// HTTPStatus maps a code to the status REST handlers respond with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodePreconditionFailed:
		return http.StatusPreconditionFailed
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeCapacityExceeded, CodeConflict:
		return http.StatusConflict
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Invalid reports a malformed request.
func Invalid(msg string, cause error) *Error {
	return Wrap(CodeInvalidArgument, msg, cause)
}

// Wrap attaches a code and message to a lower level error.
func Wrap(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the user visible message for err. Errors without a code
// are reported generically.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

var (
	ErrSessionNotFound     = newError(CodeNotFound, "session not found")
	ErrParticipantNotFound = newError(CodeNotFound, "participant not found")
	ErrRoundNotFound       = newError(CodeNotFound, "round not found")
	ErrAccountNotFound     = newError(CodeNotFound, "account not found")

	ErrSessionInProgress        = newError(CodePreconditionFailed, "session already in progress")
	ErrSessionFinished          = newError(CodePreconditionFailed, "session has finished")
	ErrSessionNotWaiting        = newError(CodePreconditionFailed, "session is not waiting for players")
	ErrSessionNotPlaying        = newError(CodePreconditionFailed, "session is not playing")
	ErrSessionNotFinished       = newError(CodePreconditionFailed, "session has not finished")
	ErrInsufficientParticipants = newError(CodePreconditionFailed, "at least 2 participants are required")
	ErrNoActiveRound            = newError(CodePreconditionFailed, "no active round")
	ErrParticipantEliminated    = newError(CodePreconditionFailed, "participant is eliminated")
	ErrIdentityRequired         = newError(CodePreconditionFailed, "an account or anonymous id is required")
	ErrAnonymousHost            = newError(CodePreconditionFailed, "guests cannot become host")
	ErrCannotKickSelf           = newError(CodePreconditionFailed, "host cannot kick themselves")

	ErrNotHost = newError(CodeForbidden, "only the host can do that")

	ErrInvalidCredentials = newError(CodeUnauthenticated, "invalid credentials")
	ErrInvalidToken       = newError(CodeUnauthenticated, "invalid token")

	ErrSessionFull        = newError(CodeCapacityExceeded, "session is full")
	ErrMaxPlayersTooSmall = newError(CodeCapacityExceeded, "max players is below the current roster size")

	ErrDuplicateGuess       = newError(CodeConflict, "guess already submitted for this round")
	ErrDuplicateParticipant = newError(CodeConflict, "participant already joined")
	ErrUsernameTaken        = newError(CodeConflict, "username already taken")
	ErrInviteCodeTaken      = newError(CodeConflict, "invite code already taken")

	ErrNoItemsAvailable = newError(CodeUnavailable, "no items available")

	ErrRateLimited = newError(CodeRateLimited, "too many actions, slow down")
)
