package resilience

import (
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient_TaggedError(t *testing.T) {
	err := NewTransientError(eris.New("service overloaded"), 503)
	assert.True(t, IsTransient(err))
}

func TestIsTransient_WrappedTaggedError(t *testing.T) {
	inner := NewTransientError(eris.New("rate limited"), 429)
	assert.True(t, IsTransient(eris.Wrap(inner, "video search")))
}

func TestIsTransient_NilAndPermanent(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(eris.New("channel not found")))
}

func TestIsTransient_SyscallErrors(t *testing.T) {
	for _, errno := range []syscall.Errno{
		syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED,
	} {
		assert.True(t, IsTransient(eris.Wrap(errno, "dial tcp")), "errno %v", errno)
	}
}

func TestIsTransient_NetworkTimeout(t *testing.T) {
	err := &net.DNSError{IsTimeout: true, Err: "lookup timed out"}
	assert.True(t, IsTransient(err))
}

func TestIsTransient_TransportMessageFragments(t *testing.T) {
	for _, msg := range []string{
		"read tcp: connection reset by peer",
		"write: broken pipe",
		"net/http: TLS handshake timeout",
		"Get \"https://www.googleapis.com\": i/o timeout",
		"http: server closed idle connection",
	} {
		assert.True(t, IsTransient(eris.New(msg)), "message %q", msg)
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 301, 400, 401, 403, 404, 409, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestTransientError_UnwrapAndMessage(t *testing.T) {
	inner := eris.New("quota exceeded")
	te := NewTransientError(inner, 429)

	assert.True(t, eris.Is(te, inner))
	assert.Equal(t, 429, te.StatusCode)
	assert.Equal(t, "quota exceeded", te.Error())
}
