package careplan

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrPrescriptionNotFound = errors.New("prescription not found")
	ErrCarePlanNotFound     = errors.New("care plan not found")
	ErrTaskNotFound         = errors.New("task not found")
	ErrChatNotFound         = errors.New("chat not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)

	CreatePrescription(ctx context.Context, p Prescription) (*Prescription, error)
	GetPrescriptionByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	ListPrescriptionsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Prescription, error)

	CreateCarePlan(ctx context.Context, cp CarePlan) (*CarePlan, error)
	GetCarePlanByID(ctx context.Context, id uuid.UUID) (*CarePlan, error)
	GetCarePlanDetail(ctx context.Context, id uuid.UUID) (*CarePlanDetail, error)
	ListCarePlansByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]CarePlan, error)

	CreateTasks(ctx context.Context, tasks []Task) ([]Task, error)
	GetTaskByID(ctx context.Context, id uuid.UUID) (*Task, error)
	ListTasksByCarePlan(ctx context.Context, carePlanID uuid.UUID) ([]Task, error)
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, from, to TaskStatus) (*Task, error)

	// Missed-task worker
	FindOverduePending(ctx context.Context, now time.Time) ([]Task, error)

	InsertTaskLog(ctx context.Context, tl TaskLog) (*TaskLog, error)
	ListRecentTaskLogsByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]TaskLog, error)
	CountTasksByStatus(ctx context.Context, patientID uuid.UUID) (map[TaskStatus]int, error)

	// Chat find-or-create support
	FindChatByPairKey(ctx context.Context, pairKey string) (*Chat, error)
	CreateChat(ctx context.Context, chat Chat, seed Message) (*Chat, error)
	GetChatByID(ctx context.Context, id uuid.UUID) (*Chat, error)
	ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]Chat, error)
	AppendMessage(ctx context.Context, m Message) (*Message, error)
	ListMessages(ctx context.Context, chatID uuid.UUID) ([]Message, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
