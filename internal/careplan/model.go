package careplan

import (
	"time"

	"github.com/google/uuid"
)

type PrescriptionStatus string

const (
	PrescriptionActive   PrescriptionStatus = "Active"
	PrescriptionInactive PrescriptionStatus = "Inactive"
	PrescriptionPending  PrescriptionStatus = "Pending"
	PrescriptionReviewed PrescriptionStatus = "Reviewed"
	PrescriptionFlagged  PrescriptionStatus = "Flagged"
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "Pending"
	TaskCompleted TaskStatus = "Completed"
	TaskMissed    TaskStatus = "Missed"
)

// CanTransitionTo renders the one-way task state machine:
// Pending -> Completed, Pending -> Missed. Completed and Missed are terminal.
func (s TaskStatus) CanTransitionTo(to TaskStatus) bool {
	return s == TaskPending && (to == TaskCompleted || to == TaskMissed)
}

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

type User struct {
	ID        uuid.UUID
	Email     string
	Name      string
	Role      Role
	Locale    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Prescription is one analyzed prescription image. The image reference is
// immutable after creation.
type Prescription struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	ImageURL        string
	MedicationName  string
	Dosage          string
	Frequency       string
	AdditionalNotes string
	Status          PrescriptionStatus
	CreatedAt       time.Time
}

// CarePlan groups the tasks derived from one prescription. It is 1:1 with
// the prescription that triggered it and never updated after creation.
type CarePlan struct {
	ID             uuid.UUID
	PatientID      uuid.UUID
	PrescriptionID uuid.UUID
	CreatedAt      time.Time
}

// Task is one dated, bilingual reminder item. DueDate is kept as the
// generator produced it; no date validation is applied.
type Task struct {
	ID         uuid.UUID
	CarePlanID uuid.UUID
	Type       string
	TextEN     string
	TextKN     string
	DueDate    string
	Status     TaskStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TaskLog records one task completion event.
type TaskLog struct {
	ID          uuid.UUID
	TaskID      uuid.UUID
	CompletedAt time.Time
}

// Chat is a messaging thread between exactly two users. Participants are
// stored sorted so that (a,b) and (b,a) hit the same row, and PairKey is
// the canonical identifier enforcing at most one chat per pair.
type Chat struct {
	ID             uuid.UUID
	ParticipantOne uuid.UUID
	ParticipantTwo uuid.UUID
	PairKey        string
	LastMessage    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (c *Chat) HasParticipant(id uuid.UUID) bool {
	return c.ParticipantOne == id || c.ParticipantTwo == id
}

func (c *Chat) Participants() []uuid.UUID {
	return []uuid.UUID{c.ParticipantOne, c.ParticipantTwo}
}

// SortParticipants orders a pair of user ids canonically.
func SortParticipants(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if b.String() < a.String() {
		return b, a
	}
	return a, b
}

// PairKey derives the canonical identifier for an unordered participant pair.
func PairKey(a, b uuid.UUID) string {
	lo, hi := SortParticipants(a, b)
	return lo.String() + ":" + hi.String()
}

type Message struct {
	ID        uuid.UUID
	ChatID    uuid.UUID
	SenderID  uuid.UUID
	Text      string
	CreatedAt time.Time
}

type EventLog struct {
	ID         int64
	EventType  string
	CarePlanID *uuid.UUID
	Payload    []byte
	CreatedAt  time.Time
}

// CarePlanDetail is a care plan hydrated with its prescription and tasks.
type CarePlanDetail struct {
	CarePlan
	Prescription *Prescription
	Tasks        []Task
}

// AdherenceSummary is a per-patient tally of task outcomes plus the most
// recent completion events.
type AdherenceSummary struct {
	Total      int
	Pending    int
	Completed  int
	Missed     int
	RecentLogs []TaskLog
}
