package errs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTripPreservesKindAndAttributes(t *testing.T) {
	var errNo = 13
	var httpStatus = 400
	var e = &Error{
		Kind:           HttpServer,
		Message:        "bad",
		ErrNo:          &errNo,
		HttpStatusCode: &httpStatus,
	}

	var env = NewEnvelope(e)
	var restored = env.Restore()

	assert.Equal(t, HttpServer, restored.Kind)
	assert.Equal(t, "bad", restored.Error())
	assert.Equal(t, &errNo, restored.ErrNo)
	assert.Equal(t, &httpStatus, restored.HttpStatusCode)
}

func TestUnknownExceptionTypeBecomesUnexpected(t *testing.T) {
	var env, err = ParseEnvelope([]byte(`{"result":{"exceptionType":"bl::SomeFutureException"}}`))
	assert.NoError(t, err)
	assert.Equal(t, Unexpected, env.Restore().Kind)
}

func TestMalformedEnvelopeRaisesArgument(t *testing.T) {
	var _, err = ParseEnvelope([]byte(``))
	assert.Error(t, err)

	var ae, ok = err.(*Error)
	assert.True(t, ok)
	assert.Equal(t, Argument, ae.Kind)
}

func TestDuplicateUserMessageBranchIsSingleCase(t *testing.T) {
	assert.Equal(t, UserMessage, kindFromExceptionType("bl::UserMessageException"))
}

func TestInvalidDataFormatPreservesOwnKind(t *testing.T) {
	// Spec's open question: the original factory falls through to Xml for
	// this exceptionType; this port treats the textual kind as authoritative.
	assert.Equal(t, InvalidDataFormat, kindFromExceptionType("bl::InvalidDataFormatException"))
	assert.NotEqual(t, Xml, kindFromExceptionType("bl::InvalidDataFormatException"))
}

func TestRedactionRemovesTokenSubstring(t *testing.T) {
	var env = NewEnvelope(&Error{Kind: UserAuthentication, Message: "token rejected: s3cr3t-token"})
	env = RedactToken(env, "s3cr3t-token")

	var bytes, err = env.Marshal()
	assert.NoError(t, err)
	assert.NotContains(t, string(bytes), "s3cr3t-token")
}

func TestIsUserFriendlyControlsVisibleMessage(t *testing.T) {
	var friendly = true
	var e = &Error{Kind: UserMessage, Message: "quota exceeded", IsUserFriendly: &friendly}
	assert.Equal(t, "quota exceeded", e.UserVisibleMessage())

	var notFriendly = &Error{Kind: Unexpected, Message: "nil pointer at 0xdeadbeef"}
	assert.Equal(t, genericFriendlyUnexpectedMessage, notFriendly.UserVisibleMessage())
}
