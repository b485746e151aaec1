package domain

// ChatParticipants is implemented by every chat projection that knows both
// sides' user ids. Authorization is decided only through this capability so
// the cached header and the full details can never disagree.
type ChatParticipants interface {
	ParticipantUserIDs() (doctorUserID, patientUserID string)
}

func (d *ChatDetails) ParticipantUserIDs() (string, string) {
	return d.Doctor.UserID, d.Patient.UserID
}

func (h *ChatHeader) ParticipantUserIDs() (string, string) {
	return h.DoctorUserID, h.PatientUserID
}

func (c *Connection) ParticipantUserIDs() (string, string) {
	return c.DoctorUserID, c.PatientUserID
}

// CanAccess reports whether userID is the doctor-side or patient-side user.
func CanAccess(p ChatParticipants, userID string) bool {
	if p == nil || userID == "" {
		return false
	}
	doctor, patient := p.ParticipantUserIDs()
	return userID == doctor || userID == patient
}

// Counterpart returns the other participant's user id and role.
// ok is false when userID is not a participant.
func Counterpart(p ChatParticipants, userID string) (otherUserID string, otherRole Role, ok bool) {
	doctor, patient := p.ParticipantUserIDs()
	switch userID {
	case doctor:
		return patient, RolePatient, true
	case patient:
		return doctor, RoleDoctor, true
	}
	return "", "", false
}
