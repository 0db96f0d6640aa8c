package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.Generate("driver-1", "DRIVER")
	require.NoError(t, err)

	subject, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "driver-1", subject)
}

func TestVerifyBearerPrefix(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.Generate("driver-1", "DRIVER")
	require.NoError(t, err)

	subject, err := v.Verify("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "driver-1", subject)
}

func TestVerifyWrongSecret(t *testing.T) {
	token, err := NewVerifier("secret-a").Generate("driver-1", "DRIVER")
	require.NoError(t, err)

	_, err = NewVerifier("secret-b").Verify(token)
	assert.Error(t, err)
}

func TestVerifyGarbage(t *testing.T) {
	v := NewVerifier("test-secret")
	_, err := v.Verify("not.a.token")
	assert.Error(t, err)

	_, err = v.Verify("")
	assert.Error(t, err)
}
