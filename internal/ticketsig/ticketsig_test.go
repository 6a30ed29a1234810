package ticketsig

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSigner_EmptySecret(t *testing.T) {
	s, err := NewSigner("")

	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	s, err := NewSigner("unit-test-secret")
	require.NoError(t, err)

	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload, sig := s.Issue(
		uuid.New(), uuid.New(), uuid.New(),
		"Ada Lovelace",
		issuedAt,
	)

	assert.True(t, s.Verify(payload, sig))

	var p Payload
	require.NoError(t, json.Unmarshal([]byte(payload), &p))
	assert.Equal(t, "Ada Lovelace", p.AttendeeName)
	assert.Equal(t, issuedAt.UnixMilli(), p.IssuedAtMS)
}

func TestVerify_TamperedPayload(t *testing.T) {
	s, err := NewSigner("unit-test-secret")
	require.NoError(t, err)

	payload, sig := s.Issue(uuid.New(), uuid.New(), uuid.New(), "Ada", time.Now())

	tampered := []byte(payload)
	tampered[len(tampered)-2] ^= 0x01

	assert.False(t, s.Verify(string(tampered), sig))
}

func TestVerify_TamperedSignature(t *testing.T) {
	s, err := NewSigner("unit-test-secret")
	require.NoError(t, err)

	payload, sig := s.Issue(uuid.New(), uuid.New(), uuid.New(), "Ada", time.Now())

	flipped := []byte(sig)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}

	assert.False(t, s.Verify(payload, string(flipped)))
	assert.False(t, s.Verify(payload, "not-hex"))
}

func TestVerify_WrongSecret(t *testing.T) {
	s1, err := NewSigner("secret-one")
	require.NoError(t, err)
	s2, err := NewSigner("secret-two")
	require.NoError(t, err)

	payload, sig := s1.Issue(uuid.New(), uuid.New(), uuid.New(), "Ada", time.Now())

	assert.False(t, s2.Verify(payload, sig))
}
