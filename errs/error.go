package errs

import (
	"fmt"
	"time"
)

// Error is the fixed-schema in-process representation of an exception that
// may cross a block-transfer connection. All attribute fields are optional
// and mirror spec.md §7's attribute set verbatim.
type Error struct {
	Kind    Kind
	Message string // what(): short, human-oriented message.

	ErrNo                   *int
	FileName                string
	FileOpenMode            string
	AttrMessage             string
	TimeThrown              time.Time
	FunctionName            string
	SystemCode              *int
	CategoryName            string // "generic", "system", or ""
	ErrorCode               *int
	ErrorCodeMessage        string
	IsExpected              *bool
	TaskInfo                string
	HostName                string
	ServiceName             string
	EndpointAddress         string
	EndpointPort            *uint16
	HttpUrl                 string
	HttpRedirectUrl         string
	HttpStatusCode          *int
	HttpResponseHeaders     string
	HttpRequestDetails      string
	ParserFile              string
	ParserLine              *uint32
	ParserColumn            *uint32
	ParserReason            string
	ExternalCommandOutput   string
	ExternalCommandExitCode *int
	StringValue             string
	IsUserFriendly          *bool

	// ErrorUUID tags a Timeout (or other shared-Kind) error with a finer
	// sub-cause, eg ResponseTimeout, per spec.md §8's conversation timeout
	// scenario.
	ErrorUUID string

	SslIsVerifyFailed        *bool
	SslIsVerifyError         *int
	SslIsVerifyErrorMessage  string
	SslIsVerifyErrorString   string
	SslIsVerifySubjectName   string

	// Cause, when set, is the wrapped originating error (eg the last
	// transport error behind a ServerNoConnection).
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

// Unwrap supports errors.Is/errors.As over Cause.
func (e *Error) Unwrap() error { return e.Cause }

// New constructs a minimal Error of the given kind and message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind, wrapping cause, and using
// cause's message unless a friendlier message is provided.
func Wrap(cause error, kind Kind, message string) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// ResponseTimeout is the ErrorUUID attribute value attached to a Timeout
// raised while waiting for an acknowledgement or reply, per spec.md §8.
const ResponseTimeout = "ResponseTimeout"

// genericFriendlyUnexpectedMessage is the message shown to end users for
// exceptions that are not flagged IsUserFriendly, per spec.md §7.
const genericFriendlyUnexpectedMessage = "An unexpected error has occurred."

// UserVisibleMessage returns the message to present to an end user: the
// exception's own message if IsUserFriendly or if the kind is UserMessage,
// otherwise a generic placeholder.
func (e *Error) UserVisibleMessage() string {
	if e.IsUserFriendly != nil && *e.IsUserFriendly {
		return e.Error()
	}
	if e.Kind == UserMessage {
		return e.Error()
	}
	return genericFriendlyUnexpectedMessage
}
