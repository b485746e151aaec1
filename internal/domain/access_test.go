package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanAccess(t *testing.T) {
	header := &ChatHeader{ChatID: "c1", DoctorUserID: "doc", PatientUserID: "pat"}
	details := &ChatDetails{
		ChatID:  "c1",
		Doctor:  Participant{UserID: "doc"},
		Patient: Participant{UserID: "pat"},
	}

	for _, p := range []ChatParticipants{header, details} {
		assert.True(t, CanAccess(p, "doc"))
		assert.True(t, CanAccess(p, "pat"))
		assert.False(t, CanAccess(p, "stranger"))
		assert.False(t, CanAccess(p, ""))
	}
	assert.False(t, CanAccess(nil, "doc"))
}

func TestCounterpart(t *testing.T) {
	header := &ChatHeader{DoctorUserID: "doc", PatientUserID: "pat"}

	other, role, ok := Counterpart(header, "doc")
	assert.True(t, ok)
	assert.Equal(t, "pat", other)
	assert.Equal(t, RolePatient, role)

	other, role, ok = Counterpart(header, "pat")
	assert.True(t, ok)
	assert.Equal(t, "doc", other)
	assert.Equal(t, RoleDoctor, role)

	_, _, ok = Counterpart(header, "x")
	assert.False(t, ok)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "пр", Truncate("привет", 2))
}
