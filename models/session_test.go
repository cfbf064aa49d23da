package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatusTransitionsAreForwardOnly(t *testing.T) {
	require.True(t, SessionWaiting.CanTransitionTo(SessionActive))
	require.True(t, SessionWaiting.CanTransitionTo(SessionCancelled))
	require.True(t, SessionActive.CanTransitionTo(SessionEnded))
	require.True(t, SessionActive.CanTransitionTo(SessionTransferred))
	require.True(t, SessionActive.CanTransitionTo(SessionActive))

	require.False(t, SessionActive.CanTransitionTo(SessionWaiting))
	require.False(t, SessionEnded.CanTransitionTo(SessionActive))
	require.False(t, SessionEnded.CanTransitionTo(SessionWaiting))
	require.False(t, SessionCancelled.CanTransitionTo(SessionActive))
}

func TestTimestampPrefersUpdatedAt(t *testing.T) {
	created := time.Now().Add(-time.Hour)
	s := Session{CreatedAt: created}
	require.Equal(t, created, s.Timestamp())

	updated := time.Now()
	s.UpdatedAt = updated
	require.Equal(t, updated, s.Timestamp())
}

func TestSessionIDUnmarshalAcceptsStringAndNumber(t *testing.T) {
	var v struct {
		ID SessionID `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"sessionId": " 42_7 "}`), &v))
	require.Equal(t, "42_7", v.ID.String())

	require.NoError(t, json.Unmarshal([]byte(`{"sessionId": 12345}`), &v))
	require.Equal(t, "12345", v.ID.String())

	require.NoError(t, json.Unmarshal([]byte(`{"sessionId": null}`), &v))
	require.Equal(t, "", v.ID.String())
}
