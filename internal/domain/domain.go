package domain

import "time"

// Severity is the triage classification of an emergency.
type Severity string

const (
	SeverityHigh    Severity = "HIGH"
	SeverityMedium  Severity = "MEDIUM"
	SeverityLow     Severity = "LOW"
	SeverityUnknown Severity = "UNKNOWN"
)

// Valid reports whether s is one of the defined severity values.
func (s Severity) Valid() bool {
	switch s {
	case SeverityHigh, SeverityMedium, SeverityLow, SeverityUnknown:
		return true
	}
	return false
}

// Status is the lifecycle state of a rescue request. PENDING is declared for
// wire compatibility but requests are created directly in DISPATCHED.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusDispatched Status = "DISPATCHED"
	StatusArrived    Status = "ARRIVED"
	StatusCompleted  Status = "COMPLETED"
)

func (s Status) Terminal() bool { return s == StatusCompleted }

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type TriageResult struct {
	Severity   Severity `json:"severity" enum:"HIGH,MEDIUM,LOW,UNKNOWN"`
	Advice     string   `json:"advice"`
	Department string   `json:"department"`
}

type EmergencyContact struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Relation string `json:"relation"`
}

type PatientProfile struct {
	FullName          string           `json:"full_name"`
	DateOfBirth       string           `json:"date_of_birth,omitempty"`
	Allergies         string           `json:"allergies,omitempty"`
	MedicalConditions string           `json:"medical_conditions,omitempty"`
	Contact           EmergencyContact `json:"contact"`
}

// VictimData describes the initiating event, not live state; it is immutable
// after the request is created. ProfileData is a snapshot copied by value at
// submission time, so later profile edits do not touch past requests.
type VictimData struct {
	Name        string          `json:"name,omitempty"`
	Symptoms    string          `json:"symptoms"`
	Conscious   bool            `json:"conscious"`
	ProfileData *PatientProfile `json:"profile_data,omitempty"`
}

// RescueRequest is one emergency episode, from submission to completion.
// Status is the only field either side mutates after creation.
type RescueRequest struct {
	ID         string        `json:"id"`
	Timestamp  int64         `json:"timestamp"`
	Victim     VictimData    `json:"victim"`
	Location   *Coordinates  `json:"location,omitempty"`
	Triage     *TriageResult `json:"triage,omitempty"`
	Status     Status        `json:"status" enum:"PENDING,DISPATCHED,ARRIVED,COMPLETED"`
	ETAMinutes int           `json:"eta_minutes"`
}

// CreatedAt converts the epoch-millisecond timestamp.
func (r RescueRequest) CreatedAt() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// RemainingETA is the locally decremented view of the arrival estimate. The
// stored ETAMinutes never changes except on arrival; views derive the
// countdown from elapsed time instead of writing it back.
func (r RescueRequest) RemainingETA(now time.Time) int {
	if r.Status != StatusDispatched {
		return 0
	}
	elapsed := int(now.Sub(r.CreatedAt()) / time.Minute)
	if elapsed >= r.ETAMinutes {
		return 0
	}
	return r.ETAMinutes - elapsed
}
