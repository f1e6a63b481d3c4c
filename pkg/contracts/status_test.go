package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusDraft, StatusSent, true},
		{StatusDraft, StatusVoided, true},
		{StatusDraft, StatusSigned, false},
		{StatusDraft, StatusDeclined, false},
		{StatusSent, StatusSigned, true},
		{StatusSent, StatusDeclined, true},
		{StatusSent, StatusVoided, true},
		{StatusSent, StatusDraft, false},
		{StatusSigned, StatusVoided, false},
		{StatusDeclined, StatusSent, false},
		{StatusVoided, StatusDraft, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatus_Final(t *testing.T) {
	assert.False(t, StatusDraft.Final())
	assert.False(t, StatusSent.Final())
	assert.True(t, StatusSigned.Final())
	assert.True(t, StatusDeclined.Final())
	assert.True(t, StatusVoided.Final())
	assert.False(t, Status("archived").Final())
	assert.False(t, Status("archived").Valid())
}

func TestCheckTransition(t *testing.T) {
	err := checkTransition(StatusSigned, StatusVoided)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "signed -> voided")

	assert.NoError(t, checkTransition(StatusDraft, StatusSent))
	assert.Equal(t, "contract.declined", eventFor(StatusDeclined))
}
