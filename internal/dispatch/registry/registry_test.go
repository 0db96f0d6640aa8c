package registry

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/model"
)

type fakeTransport struct {
	sent   [][]byte
	closed int
}

func (t *fakeTransport) Send(payload []byte) error {
	t.sent = append(t.sent, payload)
	return nil
}

func (t *fakeTransport) Close() error {
	t.closed++
	return nil
}

type stubVerifier struct{ subjects map[string]string }

func (v stubVerifier) Verify(token string) (string, error) {
	if s, ok := v.subjects[token]; ok {
		return s, nil
	}
	return "", errors.New("bad token")
}

func newTestRegistry() *Registry {
	return New(stubVerifier{subjects: map[string]string{"tok-d1": "d1"}}, zerolog.Nop())
}

func TestRegisterAndAuthenticate(t *testing.T) {
	r := newTestRegistry()
	connID := r.Register(&fakeTransport{})

	_, err := r.Subject(connID)
	assert.ErrorIs(t, err, model.ErrUnauthenticated)

	subject, err := r.Authenticate(connID, "tok-d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", subject)

	got, err := r.Subject(connID)
	require.NoError(t, err)
	assert.Equal(t, "d1", got)
}

func TestAuthenticateFailureKeepsConnection(t *testing.T) {
	r := newTestRegistry()
	connID := r.Register(&fakeTransport{})

	_, err := r.Authenticate(connID, "garbage")
	assert.ErrorIs(t, err, model.ErrAuth)

	// The connection survives a failed authentication.
	assert.Equal(t, 1, r.Count())
	assert.NoError(t, r.Send(connID, []byte("hi")))
}

func TestSendUnknownConn(t *testing.T) {
	r := newTestRegistry()
	err := r.Send("missing", []byte("hi"))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCloseIdempotentAndHooksOnce(t *testing.T) {
	r := newTestRegistry()

	var calls []string
	r.OnClose(func(connID, subject string) {
		calls = append(calls, connID+"/"+subject)
	})

	tr := &fakeTransport{}
	connID := r.Register(tr)
	_, err := r.Authenticate(connID, "tok-d1")
	require.NoError(t, err)

	r.Close(connID)
	r.Close(connID)
	r.Close(connID)

	assert.Equal(t, []string{connID + "/d1"}, calls)
	assert.Equal(t, 1, tr.closed)
	assert.Equal(t, 0, r.Count())

	err = r.Send(connID, []byte("hi"))
	assert.ErrorIs(t, err, model.ErrNotFound)
}
