package authstate

import (
	"context"
	"errors"

	"github.com/spec-kit/folio/internal/client/api"
	apperrors "github.com/spec-kit/folio/pkg/util"
)

// ErrorKind classifies failures surfaced to the user.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindMissingToken
	KindInvalidToken
	KindUserNotFound
	KindAccountDeactivated
	KindInsufficientRole
	KindNetworkUnavailable
	KindInvalidCredentials
	KindMalformedLoginResponse
	KindTimeout
	KindRateLimited
)

var kindMessages = map[ErrorKind]string{
	KindMissingToken:           "Please sign in to continue.",
	KindInvalidToken:           "Your session has expired. Please sign in again.",
	KindUserNotFound:           "This account no longer exists.",
	KindAccountDeactivated:     "This account has been deactivated.",
	KindInsufficientRole:       "You do not have permission to do that.",
	KindNetworkUnavailable:     "Cannot reach the server. Check your connection and retry.",
	KindInvalidCredentials:     "Invalid email or password.",
	KindMalformedLoginResponse: "The server sent an unexpected login response.",
	KindTimeout:                "The server took too long to respond.",
	KindRateLimited:            "Too many login attempts. Try again later.",
}

var codeKinds = map[string]ErrorKind{
	apperrors.CodeMissingToken:       KindMissingToken,
	apperrors.CodeInvalidToken:       KindInvalidToken,
	apperrors.CodeUserNotFound:       KindUserNotFound,
	apperrors.CodeAccountDeactivated: KindAccountDeactivated,
	apperrors.CodeInsufficientRole:   KindInsufficientRole,
	apperrors.CodeInvalidCredentials: KindInvalidCredentials,
	apperrors.CodeRateLimited:        KindRateLimited,
}

func (k ErrorKind) String() string {
	switch k {
	case KindMissingToken:
		return "MissingToken"
	case KindInvalidToken:
		return "InvalidToken"
	case KindUserNotFound:
		return "UserNotFound"
	case KindAccountDeactivated:
		return "AccountDeactivated"
	case KindInsufficientRole:
		return "InsufficientRole"
	case KindNetworkUnavailable:
		return "NetworkUnavailable"
	case KindInvalidCredentials:
		return "InvalidCredentials"
	case KindMalformedLoginResponse:
		return "MalformedLoginResponse"
	case KindTimeout:
		return "Timeout"
	case KindRateLimited:
		return "RateLimited"
	default:
		return "Unknown"
	}
}

// Error is what Login and friends return; Err keeps the underlying cause.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return Message(e)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrInvalidCredentials) match on kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrNetworkUnavailable = &Error{Kind: KindNetworkUnavailable}
	ErrMalformedLogin     = &Error{Kind: KindMalformedLoginResponse}
	ErrAccountDeactivated = &Error{Kind: KindAccountDeactivated}
	ErrBusy               = errors.New("authstate: another login or logout is in progress")
	ErrSuperseded         = errors.New("authstate: result discarded by a newer operation")
)

// Classify maps any error onto a kind without inspecting message text.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, api.ErrMalformedLoginResponse) {
		return KindMalformedLoginResponse
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var re *api.ResponseError
	if errors.As(err, &re) {
		if kind, ok := codeKinds[re.Code]; ok {
			return kind
		}
		return KindUnknown
	}
	if api.IsTransport(err) {
		return KindNetworkUnavailable
	}
	return KindUnknown
}

// Message returns the user-facing text for err. Unrecognized errors keep
// their original message.
func Message(err error) string {
	if err == nil {
		return ""
	}
	kind := Classify(err)
	if msg, ok := kindMessages[kind]; ok {
		return msg
	}
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Err != nil {
			return ae.Err.Error()
		}
		return "authentication failed"
	}
	var re *api.ResponseError
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	return err.Error()
}
