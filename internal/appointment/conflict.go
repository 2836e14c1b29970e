package appointment

import "github.com/google/uuid"

// ConflictPair is two active appointments sharing doctor, date and time.
// A precedes B in the input order; neither is treated as the original.
type ConflictPair struct {
	A uuid.UUID `json:"a"`
	B uuid.UUID `json:"b"`
}

// ConflictPairs compares every unordered pair of active appointments.
// The scan is quadratic in the number of active appointments, which stays in
// the hundreds per listing window at clinic scale.
func ConflictPairs(appts []Appointment) []ConflictPair {
	active := make([]Appointment, 0, len(appts))
	for _, a := range appts {
		if a.Status.Active() {
			active = append(active, a)
		}
	}

	var pairs []ConflictPair
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			a, b := active[i], active[j]
			if a.ID == b.ID {
				continue
			}
			if a.DoctorID == b.DoctorID &&
				a.AppointmentDate == b.AppointmentDate &&
				a.AppointmentTime == b.AppointmentTime {
				pairs = append(pairs, ConflictPair{A: a.ID, B: b.ID})
			}
		}
	}
	return pairs
}

// DetectConflicts returns the ids of every appointment in at least one conflicting pair.
func DetectConflicts(appts []Appointment) map[uuid.UUID]struct{} {
	ids := make(map[uuid.UUID]struct{})
	for _, p := range ConflictPairs(appts) {
		ids[p.A] = struct{}{}
		ids[p.B] = struct{}{}
	}
	return ids
}
