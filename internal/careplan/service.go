package careplan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medimitra/careplan-service/internal/config"
	"github.com/medimitra/careplan-service/internal/genai"
	redisclient "github.com/medimitra/careplan-service/internal/redis"
)

const (
	EventCarePlanCreated = "CARE_PLAN_CREATED"
	EventTaskCompleted   = "TASK_COMPLETED"
	EventTaskMissed      = "TASK_MISSED"
	EventChatCreated     = "CHAT_CREATED"
)

// seedMessageText opens the thread a doctor-initiated run establishes with
// the patient.
const seedMessageText = "Hello! I have set up a care plan for your new prescription. Let me know if you have any questions."

var (
	ErrNotAuthenticated      = errors.New("user is not authenticated")
	ErrAnalysisFailed        = errors.New("could not analyze prescription")
	ErrStorageUpload         = errors.New("could not store prescription image")
	ErrTaskGeneration        = errors.New("could not generate tasks")
	ErrInvalidTaskTransition = errors.New("invalid task status transition")
	ErrNotChatParticipant    = errors.New("sender is not a participant of this chat")
	ErrEmptyMessage          = errors.New("message text is required")
	ErrChatBeingCreated      = errors.New("chat is currently being created, please retry")
)

// Analyzer extracts structured prescription fields from an image.
type Analyzer interface {
	AnalyzePrescription(ctx context.Context, img genai.Image) (*genai.Analysis, error)
}

// TaskGenerator derives a dated reminder schedule from an analysis.
type TaskGenerator interface {
	GenerateTasks(ctx context.Context, a genai.Analysis, now time.Time, windowDays int) ([]genai.GeneratedTask, error)
}

// BlobStore persists raw prescription images and returns retrievable URLs.
type BlobStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

type Service struct {
	repo     Repository
	blobs    BlobStore
	analyzer Analyzer
	tasks    TaskGenerator
	locker   redisclient.Locker
	cfg      config.Config
}

func NewService(repo Repository, blobs BlobStore, analyzer Analyzer, tasks TaskGenerator, locker redisclient.Locker, cfg config.Config) *Service {
	return &Service{
		repo:     repo,
		blobs:    blobs,
		analyzer: analyzer,
		tasks:    tasks,
		locker:   locker,
		cfg:      cfg,
	}
}

type CreatePlanInput struct {
	ImageData string    // inline-encoded image (data URI)
	PatientID uuid.UUID // optional target patient; uuid.Nil means the actor's own plan
	ActorID   uuid.UUID // authenticated acting user
}

// PlanBundle is the composed result of one successful care-plan run.
// Chat is set only for delegated (doctor-initiated) runs.
type PlanBundle struct {
	Prescription Prescription
	CarePlan     CarePlan
	Tasks        []Task
	Chat         *Chat
}

// CreatePlan executes the end-to-end care-plan workflow: analyze the image,
// upload it, persist the prescription and care plan, generate and persist
// the tasks, and for delegated runs establish the doctor/patient chat.
//
// There is no rollback: a task-generation failure leaves the already-written
// prescription and care plan in place, and callers can distinguish the
// failing step through the wrapped sentinel errors.
func (s *Service) CreatePlan(ctx context.Context, in CreatePlanInput) (*PlanBundle, error) {
	if in.ActorID == uuid.Nil {
		return nil, ErrNotAuthenticated
	}

	// 1. Resolve the target patient; a distinct explicit patient id marks
	// the run as delegated (doctor-initiated).
	patientID := in.ActorID
	delegated := false
	if in.PatientID != uuid.Nil && in.PatientID != in.ActorID {
		patientID = in.PatientID
		delegated = true

		if _, err := s.repo.GetUserByID(ctx, patientID); err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load patient: %w", err)
		}
	}

	img, err := DecodeImageDataURI(in.ImageData)
	if err != nil {
		return nil, err
	}

	// 2. Analyze the prescription image.
	analysis, err := s.analyzer.AnalyzePrescription(ctx, *img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	if analysis == nil {
		return nil, ErrAnalysisFailed
	}

	// 3. Upload the raw image; no prescription record exists without a URL.
	key := fmt.Sprintf("prescriptions/%s/%d", patientID, time.Now().UnixMilli())
	imageURL, err := s.blobs.Upload(ctx, key, img.MIMEType, img.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUpload, err)
	}

	// 4. Persist the prescription.
	prescription, err := s.repo.CreatePrescription(ctx, Prescription{
		ID:              uuid.New(),
		PatientID:       patientID,
		ImageURL:        imageURL,
		MedicationName:  analysis.MedicationName,
		Dosage:          analysis.Dosage,
		Frequency:       analysis.Frequency,
		AdditionalNotes: analysis.AdditionalNotes,
		Status:          PrescriptionActive,
	})
	if err != nil {
		return nil, fmt.Errorf("create prescription: %w", err)
	}

	// 5. Persist the care plan linking to it.
	carePlan, err := s.repo.CreateCarePlan(ctx, CarePlan{
		ID:             uuid.New(),
		PatientID:      patientID,
		PrescriptionID: prescription.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("create care plan: %w", err)
	}

	// 6. Generate the reminder schedule. The prescription and care plan
	// stay in place if this fails.
	generated, err := s.tasks.GenerateTasks(ctx, *analysis, time.Now(), s.cfg.TaskWindowDays)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTaskGeneration, err)
	}
	if len(generated) == 0 {
		return nil, ErrTaskGeneration
	}

	// 7. Persist the tasks, preserving the generator's status.
	tasks := make([]Task, 0, len(generated))
	for _, g := range generated {
		status := TaskStatus(g.Status)
		if status == "" {
			status = TaskPending
		}
		tasks = append(tasks, Task{
			ID:         uuid.New(),
			CarePlanID: carePlan.ID,
			Type:       g.Type,
			TextEN:     g.TextEN,
			TextKN:     g.TextKN,
			DueDate:    g.DueDate,
			Status:     status,
		})
	}

	saved, err := s.repo.CreateTasks(ctx, tasks)
	if err != nil {
		return nil, fmt.Errorf("save tasks: %w", err)
	}

	bundle := &PlanBundle{
		Prescription: *prescription,
		CarePlan:     *carePlan,
		Tasks:        saved,
	}

	// 8. Delegated runs bootstrap (or reuse) the doctor/patient chat.
	if delegated {
		chat, err := s.findOrCreateChat(ctx, in.ActorID, patientID)
		if err != nil {
			return nil, fmt.Errorf("chat bootstrap: %w", err)
		}
		bundle.Chat = chat
	}

	s.logEvent(ctx, &carePlan.ID, EventCarePlanCreated, map[string]any{
		"patient_id":      patientID.String(),
		"prescription_id": prescription.ID.String(),
		"task_count":      len(saved),
		"delegated":       delegated,
	})

	return bundle, nil
}

// findOrCreateChat returns the single chat for the unordered participant
// pair, creating it with a seed message when none exists. The pair lock plus
// the pair_key unique constraint make the find-or-create race-free.
func (s *Service) findOrCreateChat(ctx context.Context, actorID, patientID uuid.UUID) (*Chat, error) {
	pairKey := PairKey(actorID, patientID)

	existing, err := s.repo.FindChatByPairKey(ctx, pairKey)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrChatNotFound) {
		return nil, fmt.Errorf("find chat: %w", err)
	}

	var chat *Chat

	err = s.locker.WithChatLock(ctx, pairKey, func(lockCtx context.Context) error {
		// Re-check inside the critical section.
		existing, err := s.repo.FindChatByPairKey(lockCtx, pairKey)
		if err == nil {
			chat = existing
			return nil
		}
		if !errors.Is(err, ErrChatNotFound) {
			return fmt.Errorf("find chat: %w", err)
		}

		one, two := SortParticipants(actorID, patientID)
		created, err := s.repo.CreateChat(lockCtx, Chat{
			ID:             uuid.New(),
			ParticipantOne: one,
			ParticipantTwo: two,
			PairKey:        pairKey,
			LastMessage:    seedMessageText,
		}, Message{
			ID:       uuid.New(),
			SenderID: actorID,
			Text:     seedMessageText,
		})
		if err != nil {
			return fmt.Errorf("create chat: %w", err)
		}

		chat = created

		s.logEvent(lockCtx, nil, EventChatCreated, map[string]any{
			"chat_id":  created.ID.String(),
			"pair_key": pairKey,
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrChatBeingCreated
		}
		return nil, err
	}

	return chat, nil
}

// CompleteTask moves a pending task to completed and records a TaskLog.
func (s *Service) CompleteTask(ctx context.Context, actorID, taskID uuid.UUID) (*Task, *TaskLog, error) {
	if actorID == uuid.Nil {
		return nil, nil, ErrNotAuthenticated
	}

	task, err := s.repo.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, nil, fmt.Errorf("load task: %w", err)
	}

	if !task.Status.CanTransitionTo(TaskCompleted) {
		return nil, nil, ErrInvalidTaskTransition
	}

	updated, err := s.repo.UpdateTaskStatus(ctx, taskID, TaskPending, TaskCompleted)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			// Lost a race with a concurrent transition.
			return nil, nil, ErrInvalidTaskTransition
		}
		return nil, nil, fmt.Errorf("complete task: %w", err)
	}

	tl, err := s.repo.InsertTaskLog(ctx, TaskLog{ID: uuid.New(), TaskID: taskID})
	if err != nil {
		return nil, nil, fmt.Errorf("record task log: %w", err)
	}

	s.logEvent(ctx, &updated.CarePlanID, EventTaskCompleted, map[string]any{
		"task_id": taskID.String(),
	})

	return updated, tl, nil
}

// MissTask moves a pending task to missed.
func (s *Service) MissTask(ctx context.Context, actorID, taskID uuid.UUID) (*Task, error) {
	if actorID == uuid.Nil {
		return nil, ErrNotAuthenticated
	}

	task, err := s.repo.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}

	if !task.Status.CanTransitionTo(TaskMissed) {
		return nil, ErrInvalidTaskTransition
	}

	updated, err := s.repo.UpdateTaskStatus(ctx, taskID, TaskPending, TaskMissed)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return nil, ErrInvalidTaskTransition
		}
		return nil, fmt.Errorf("miss task: %w", err)
	}

	s.logEvent(ctx, &updated.CarePlanID, EventTaskMissed, map[string]any{
		"task_id": taskID.String(),
		"reason":  "patient",
	})

	return updated, nil
}

// MarkOverdueTasksMissed is called by the worker periodically to move
// pending tasks whose due date has passed into the missed state.
func (s *Service) MarkOverdueTasksMissed(ctx context.Context) error {
	overdue, err := s.repo.FindOverduePending(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("find overdue pending tasks: %w", err)
	}

	for _, task := range overdue {
		_, err := s.repo.UpdateTaskStatus(ctx, task.ID, TaskPending, TaskMissed)
		if err != nil && !errors.Is(err, ErrTaskNotFound) {
			log.Printf("failed to mark task %s as missed: %v", task.ID, err)
			continue
		}
		s.logEvent(ctx, &task.CarePlanID, EventTaskMissed, map[string]any{
			"task_id": task.ID.String(),
			"reason":  "worker",
		})
	}

	return nil
}

// SendMessage appends a message to a chat the sender participates in.
func (s *Service) SendMessage(ctx context.Context, senderID, chatID uuid.UUID, text string) (*Message, error) {
	if senderID == uuid.Nil {
		return nil, ErrNotAuthenticated
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	chat, err := s.repo.GetChatByID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	if !chat.HasParticipant(senderID) {
		return nil, ErrNotChatParticipant
	}

	msg, err := s.repo.AppendMessage(ctx, Message{
		ID:       uuid.New(),
		ChatID:   chatID,
		SenderID: senderID,
		Text:     text,
	})
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	return msg, nil
}

// ListChats returns the chats a user participates in, most recent first.
func (s *Service) ListChats(ctx context.Context, userID uuid.UUID) ([]Chat, error) {
	if userID == uuid.Nil {
		return nil, ErrNotAuthenticated
	}
	chats, err := s.repo.ListChatsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

// ListMessages returns a chat's messages in chronological order. The reader
// must be a participant.
func (s *Service) ListMessages(ctx context.Context, readerID, chatID uuid.UUID) ([]Message, error) {
	if readerID == uuid.Nil {
		return nil, ErrNotAuthenticated
	}

	chat, err := s.repo.GetChatByID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	if !chat.HasParticipant(readerID) {
		return nil, ErrNotChatParticipant
	}

	msgs, err := s.repo.ListMessages(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// GetCarePlan retrieves a care plan hydrated with its prescription and tasks.
func (s *Service) GetCarePlan(ctx context.Context, id uuid.UUID) (*CarePlanDetail, error) {
	detail, err := s.repo.GetCarePlanDetail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get care plan: %w", err)
	}
	return detail, nil
}

// ListCarePlans retrieves a patient's care plans.
func (s *Service) ListCarePlans(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]CarePlan, error) {
	limit, offset = clampPage(limit, offset)
	plans, err := s.repo.ListCarePlansByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list care plans: %w", err)
	}
	return plans, nil
}

// ListPrescriptions retrieves a patient's prescriptions.
func (s *Service) ListPrescriptions(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Prescription, error) {
	limit, offset = clampPage(limit, offset)
	prescriptions, err := s.repo.ListPrescriptionsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	return prescriptions, nil
}

// AdherenceSummary tallies a patient's task outcomes and recent completions.
func (s *Service) AdherenceSummary(ctx context.Context, patientID uuid.UUID) (*AdherenceSummary, error) {
	counts, err := s.repo.CountTasksByStatus(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}

	logs, err := s.repo.ListRecentTaskLogsByPatient(ctx, patientID, 5)
	if err != nil {
		return nil, fmt.Errorf("list recent task logs: %w", err)
	}

	summary := &AdherenceSummary{
		Pending:    counts[TaskPending],
		Completed:  counts[TaskCompleted],
		Missed:     counts[TaskMissed],
		RecentLogs: logs,
	}
	summary.Total = summary.Pending + summary.Completed + summary.Missed

	return summary, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Service) logEvent(ctx context.Context, carePlanID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	ev := EventLog{
		EventType:  eventType,
		CarePlanID: carePlanID,
		Payload:    data,
		CreatedAt:  time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s: %v", eventType, err)
	}
}
