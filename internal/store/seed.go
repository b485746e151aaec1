package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"medchat/internal/domain"
)

// Person is the display name of a seeded user.
type Person struct {
	FirstName string
	LastName  string
}

// Pair identifies a provisioned doctor, patient and their ACTIVE connection.
type Pair struct {
	DoctorUserID  string
	PatientUserID string
	DoctorID      string
	PatientID     string
	ConnectionID  string
}

// SeedPair provisions a doctor user, a patient user, their profiles and an
// ACTIVE connection between them.
func SeedPair(ctx context.Context, p Provisioner, doctor, patient Person, now time.Time) (*Pair, error) {
	pair := &Pair{
		DoctorUserID:  uuid.NewString(),
		PatientUserID: uuid.NewString(),
		DoctorID:      uuid.NewString(),
		PatientID:     uuid.NewString(),
		ConnectionID:  uuid.NewString(),
	}

	if err := p.CreateUser(ctx, &domain.User{
		ID: pair.DoctorUserID, FirstName: doctor.FirstName, LastName: doctor.LastName,
		Role: domain.RoleDoctor, CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("seed doctor user: %w", err)
	}
	if err := p.CreateUser(ctx, &domain.User{
		ID: pair.PatientUserID, FirstName: patient.FirstName, LastName: patient.LastName,
		Role: domain.RolePatient, CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("seed patient user: %w", err)
	}
	if err := p.CreateDoctor(ctx, pair.DoctorID, pair.DoctorUserID); err != nil {
		return nil, err
	}
	if err := p.CreatePatient(ctx, pair.PatientID, pair.PatientUserID); err != nil {
		return nil, err
	}
	if err := p.CreateConnection(ctx, &domain.Connection{
		ID: pair.ConnectionID, DoctorID: pair.DoctorID, PatientID: pair.PatientID,
		Status: domain.ConnectionActive, CreatedAt: now,
	}); err != nil {
		return nil, err
	}
	return pair, nil
}
