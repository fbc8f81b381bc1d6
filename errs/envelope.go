package errs

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// redacted is substituted for any sensitive attribute value when an
// envelope is serialized, per spec.md §7's redaction policy.
const redacted = "[REDACTED]"

// ExceptionProperties is the JSON shape of an Error's optional attributes.
type ExceptionProperties struct {
	ErrNo                   *int    `json:"errNo,omitempty"`
	FileName                string  `json:"fileName,omitempty"`
	FileOpenMode            string  `json:"fileOpenMode,omitempty"`
	Message                 string  `json:"message,omitempty"`
	TimeThrown              string  `json:"timeThrown,omitempty"`
	FunctionName            string  `json:"functionName,omitempty"`
	SystemCode              *int    `json:"systemCode,omitempty"`
	CategoryName            string  `json:"categoryName,omitempty"`
	ErrorCode               *int    `json:"errorCode,omitempty"`
	ErrorCodeMessage        string  `json:"errorCodeMessage,omitempty"`
	IsExpected              *bool   `json:"isExpected,omitempty"`
	TaskInfo                string  `json:"taskInfo,omitempty"`
	HostName                string  `json:"hostName,omitempty"`
	ServiceName             string  `json:"serviceName,omitempty"`
	EndpointAddress         string  `json:"endpointAddress,omitempty"`
	EndpointPort            *uint16 `json:"endpointPort,omitempty"`
	HttpUrl                 string  `json:"httpUrl,omitempty"`
	HttpRedirectUrl         string  `json:"httpRedirectUrl,omitempty"`
	HttpStatusCode          *int    `json:"httpStatusCode,omitempty"`
	HttpResponseHeaders     string  `json:"httpResponseHeaders,omitempty"`
	HttpRequestDetails      string  `json:"httpRequestDetails,omitempty"`
	ParserFile              string  `json:"parserFile,omitempty"`
	ParserLine              *uint32 `json:"parserLine,omitempty"`
	ParserColumn            *uint32 `json:"parserColumn,omitempty"`
	ParserReason            string  `json:"parserReason,omitempty"`
	ExternalCommandOutput   string  `json:"externalCommandOutput,omitempty"`
	ExternalCommandExitCode *int    `json:"externalCommandExitCode,omitempty"`
	StringValue             string  `json:"stringValue,omitempty"`
	IsUserFriendly          *bool   `json:"isUserFriendly,omitempty"`
	ErrorUUID               string  `json:"errorUuid,omitempty"`

	SslIsVerifyFailed       *bool  `json:"sslIsVerifyFailed,omitempty"`
	SslIsVerifyError        *int   `json:"sslIsVerifyError,omitempty"`
	SslIsVerifyErrorMessage string `json:"sslIsVerifyErrorMessage,omitempty"`
	SslIsVerifyErrorString  string `json:"sslIsVerifyErrorString,omitempty"`
	SslIsVerifySubjectName  string `json:"sslIsVerifySubjectName,omitempty"`
}

// Result is the inner "result" object of the server-error envelope.
type Result struct {
	ExceptionType       string               `json:"exceptionType"`
	ExceptionMessage    string               `json:"exceptionMessage,omitempty"`
	ExceptionFullDump   string               `json:"exceptionFullDump,omitempty"`
	ExceptionProperties *ExceptionProperties `json:"exceptionProperties,omitempty"`
	Message             string               `json:"message,omitempty"`
}

// Envelope is the round-trippable JSON representation of spec.md §6's
// server-error envelope.
type Envelope struct {
	Result Result `json:"result"`
}

// NewEnvelope serializes err (ideally an *Error) into the wire envelope.
// If err is not an *Error it is treated as Unexpected. Redact is always
// applied; it does not know the raw authentication token, so a caller
// holding the token payload scrubs it afterwards with RedactToken.
func NewEnvelope(err error) Envelope {
	var e *Error
	if ae, ok := err.(*Error); ok {
		e = ae
	} else {
		e = &Error{Kind: Unexpected, Message: err.Error()}
	}

	var props = &ExceptionProperties{
		ErrNo:                   e.ErrNo,
		FileName:                e.FileName,
		FileOpenMode:            e.FileOpenMode,
		Message:                 e.AttrMessage,
		FunctionName:            e.FunctionName,
		SystemCode:              e.SystemCode,
		CategoryName:            e.CategoryName,
		ErrorCode:               e.ErrorCode,
		ErrorCodeMessage:        e.ErrorCodeMessage,
		IsExpected:              e.IsExpected,
		TaskInfo:                e.TaskInfo,
		HostName:                e.HostName,
		ServiceName:             e.ServiceName,
		EndpointAddress:         e.EndpointAddress,
		EndpointPort:            e.EndpointPort,
		HttpUrl:                 e.HttpUrl,
		HttpRedirectUrl:         e.HttpRedirectUrl,
		HttpStatusCode:          e.HttpStatusCode,
		HttpResponseHeaders:     e.HttpResponseHeaders,
		HttpRequestDetails:      e.HttpRequestDetails,
		ParserFile:              e.ParserFile,
		ParserLine:              e.ParserLine,
		ParserColumn:            e.ParserColumn,
		ParserReason:            e.ParserReason,
		ExternalCommandOutput:   e.ExternalCommandOutput,
		ExternalCommandExitCode: e.ExternalCommandExitCode,
		StringValue:             e.StringValue,
		IsUserFriendly:          e.IsUserFriendly,
		ErrorUUID:               e.ErrorUUID,
		SslIsVerifyFailed:       e.SslIsVerifyFailed,
		SslIsVerifyError:        e.SslIsVerifyError,
		SslIsVerifyErrorMessage: e.SslIsVerifyErrorMessage,
		SslIsVerifyErrorString:  e.SslIsVerifyErrorString,
		SslIsVerifySubjectName:  e.SslIsVerifySubjectName,
	}
	if !e.TimeThrown.IsZero() {
		props.TimeThrown = e.TimeThrown.Format(time.RFC3339Nano)
	}

	var fullDump = e.Error()
	if e.Cause != nil {
		fullDump = fullDump + ": " + e.Cause.Error()
	}

	var env = Envelope{Result: Result{
		ExceptionType:       e.Kind.exceptionTypeName(),
		ExceptionMessage:    e.Error(),
		ExceptionFullDump:   fullDump,
		ExceptionProperties: props,
		Message:             e.UserVisibleMessage(),
	}}

	return Redact(env)
}

// Redact scrubs any authentication-token-shaped payload from the envelope's
// diagnostic text, replacing it with the literal "[REDACTED]" per
// spec.md §7. Detection is conservative: only StringValue is scrubbed, and
// only when the error kind is UserAuthentication or Security. Literal
// occurrences of a known token string are scrubbed by RedactToken.
func Redact(env Envelope) Envelope {
	if env.Result.ExceptionProperties != nil {
		var k = kindFromExceptionType(env.Result.ExceptionType)
		if (k == UserAuthentication || k == Security) && env.Result.ExceptionProperties.StringValue != "" {
			env.Result.ExceptionProperties.StringValue = redacted
		}
	}
	return env
}

// RedactToken removes every occurrence of tokenData from the envelope's
// textual fields, used by callers who hold the raw authentication token
// payload and must ensure it never survives serialization.
func RedactToken(env Envelope, tokenData string) Envelope {
	if tokenData == "" {
		return env
	}
	env.Result.ExceptionMessage = strings.ReplaceAll(env.Result.ExceptionMessage, tokenData, redacted)
	env.Result.ExceptionFullDump = strings.ReplaceAll(env.Result.ExceptionFullDump, tokenData, redacted)
	env.Result.Message = strings.ReplaceAll(env.Result.Message, tokenData, redacted)
	return env
}

// Marshal serializes the envelope to JSON.
func (env Envelope) Marshal() ([]byte, error) {
	var b, err = json.Marshal(env)
	if err != nil {
		return nil, errors.WithMessage(err, "marshal error envelope")
	}
	return b, nil
}

// ParseEnvelope parses a previously-marshalled envelope.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if len(data) == 0 {
		return env, New(Argument, "empty server-error envelope")
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, New(Argument, "unmarshal error envelope: %v", err)
	}
	if env.Result.ExceptionType == "" {
		return env, New(Argument, "server-error envelope missing exceptionType")
	}
	return env, nil
}

// Restore reconstructs an *Error from an Envelope, the inverse of
// NewEnvelope, per spec.md §8's round-trip invariant.
func (env Envelope) Restore() *Error {
	var kind = kindFromExceptionType(env.Result.ExceptionType)
	var e = &Error{Kind: kind, Message: env.Result.ExceptionMessage}

	var p = env.Result.ExceptionProperties
	if p == nil {
		return e
	}

	e.ErrNo = p.ErrNo
	e.FileName = p.FileName
	e.FileOpenMode = p.FileOpenMode
	e.AttrMessage = p.Message
	e.FunctionName = p.FunctionName
	e.SystemCode = p.SystemCode
	e.CategoryName = p.CategoryName
	e.ErrorCode = p.ErrorCode
	e.ErrorCodeMessage = p.ErrorCodeMessage
	e.IsExpected = p.IsExpected
	e.TaskInfo = p.TaskInfo
	e.HostName = p.HostName
	e.ServiceName = p.ServiceName
	e.EndpointAddress = p.EndpointAddress
	e.EndpointPort = p.EndpointPort
	e.HttpUrl = p.HttpUrl
	e.HttpRedirectUrl = p.HttpRedirectUrl
	e.HttpStatusCode = p.HttpStatusCode
	e.HttpResponseHeaders = p.HttpResponseHeaders
	e.HttpRequestDetails = p.HttpRequestDetails
	e.ParserFile = p.ParserFile
	e.ParserLine = p.ParserLine
	e.ParserColumn = p.ParserColumn
	e.ParserReason = p.ParserReason
	e.ExternalCommandOutput = p.ExternalCommandOutput
	e.ExternalCommandExitCode = p.ExternalCommandExitCode
	e.StringValue = p.StringValue
	e.IsUserFriendly = p.IsUserFriendly
	e.ErrorUUID = p.ErrorUUID
	e.SslIsVerifyFailed = p.SslIsVerifyFailed
	e.SslIsVerifyError = p.SslIsVerifyError
	e.SslIsVerifyErrorMessage = p.SslIsVerifyErrorMessage
	e.SslIsVerifyErrorString = p.SslIsVerifyErrorString
	e.SslIsVerifySubjectName = p.SslIsVerifySubjectName

	if p.TimeThrown != "" {
		if t, err := time.Parse(time.RFC3339Nano, p.TimeThrown); err == nil {
			e.TimeThrown = t
		}
	}

	return e
}
