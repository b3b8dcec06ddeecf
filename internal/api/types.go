package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medimitra/careplan-service/internal/careplan"
)

type CreateCarePlanRequest struct {
	ImageData string `json:"image_data"`
	PatientID string `json:"patient_id,omitempty"`
}

type SendMessageRequest struct {
	Text string `json:"text"`
}

type PrescriptionResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	ImageURL        string    `json:"image_url"`
	MedicationName  string    `json:"medication_name"`
	Dosage          string    `json:"dosage"`
	Frequency       string    `json:"frequency"`
	AdditionalNotes string    `json:"additional_notes"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

type CarePlanResponse struct {
	ID             uuid.UUID `json:"id"`
	PatientID      uuid.UUID `json:"patient_id"`
	PrescriptionID uuid.UUID `json:"prescription_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type TaskResponse struct {
	ID         uuid.UUID `json:"id"`
	CarePlanID uuid.UUID `json:"care_plan_id"`
	Type       string    `json:"task_type"`
	TextEN     string    `json:"text_en"`
	TextKN     string    `json:"text_kn"`
	DueDate    string    `json:"due_date"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type TaskLogResponse struct {
	ID          uuid.UUID `json:"id"`
	TaskID      uuid.UUID `json:"task_id"`
	CompletedAt time.Time `json:"completed_at"`
}

type ChatResponse struct {
	ID           uuid.UUID   `json:"id"`
	Participants []uuid.UUID `json:"participants"`
	LastMessage  string      `json:"last_message"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type MessageResponse struct {
	ID        uuid.UUID `json:"id"`
	ChatID    uuid.UUID `json:"chat_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateCarePlanResponse is the bundle a successful workflow run returns.
// Chat is present only when the run was created on a patient's behalf.
type CreateCarePlanResponse struct {
	Prescription PrescriptionResponse `json:"prescription"`
	CarePlan     CarePlanResponse     `json:"care_plan"`
	Tasks        []TaskResponse       `json:"tasks"`
	Chat         *ChatResponse        `json:"chat,omitempty"`
}

type CarePlanDetailResponse struct {
	CarePlanResponse
	Prescription *PrescriptionResponse `json:"prescription,omitempty"`
	Tasks        []TaskResponse        `json:"tasks"`
}

type TaskCompletionResponse struct {
	Task TaskResponse     `json:"task"`
	Log  *TaskLogResponse `json:"log,omitempty"`
}

type AdherenceResponse struct {
	Total      int               `json:"total"`
	Pending    int               `json:"pending"`
	Completed  int               `json:"completed"`
	Missed     int               `json:"missed"`
	RecentLogs []TaskLogResponse `json:"recent_logs"`
}

func toPrescriptionResponse(p careplan.Prescription) PrescriptionResponse {
	return PrescriptionResponse{
		ID:              p.ID,
		PatientID:       p.PatientID,
		ImageURL:        p.ImageURL,
		MedicationName:  p.MedicationName,
		Dosage:          p.Dosage,
		Frequency:       p.Frequency,
		AdditionalNotes: p.AdditionalNotes,
		Status:          string(p.Status),
		CreatedAt:       p.CreatedAt,
	}
}

func toCarePlanResponse(cp careplan.CarePlan) CarePlanResponse {
	return CarePlanResponse{
		ID:             cp.ID,
		PatientID:      cp.PatientID,
		PrescriptionID: cp.PrescriptionID,
		CreatedAt:      cp.CreatedAt,
	}
}

func toTaskResponse(t careplan.Task) TaskResponse {
	return TaskResponse{
		ID:         t.ID,
		CarePlanID: t.CarePlanID,
		Type:       t.Type,
		TextEN:     t.TextEN,
		TextKN:     t.TextKN,
		DueDate:    t.DueDate,
		Status:     string(t.Status),
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

func toTaskResponses(tasks []careplan.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(t))
	}
	return out
}

func toTaskLogResponse(tl careplan.TaskLog) TaskLogResponse {
	return TaskLogResponse{ID: tl.ID, TaskID: tl.TaskID, CompletedAt: tl.CompletedAt}
}

func toChatResponse(c careplan.Chat) ChatResponse {
	return ChatResponse{
		ID:           c.ID,
		Participants: c.Participants(),
		LastMessage:  c.LastMessage,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func toMessageResponse(m careplan.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}
