package careplan

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medimitra/careplan-service/internal/genai"
)

// Compile-time check to ensure mockRepository implements Repository.
var _ Repository = (*mockRepository)(nil)

// mockRepository is an in-memory Repository. Every method records what it
// stored and can be overridden per test through its function field.
type mockRepository struct {
	users map[uuid.UUID]*User

	prescriptions []Prescription
	carePlans     []CarePlan
	tasks         []Task
	taskLogs      []TaskLog
	chats         map[string]*Chat
	messages      []Message
	events        []EventLog

	CreatePrescriptionFunc func(ctx context.Context, p Prescription) (*Prescription, error)
	CreateCarePlanFunc     func(ctx context.Context, cp CarePlan) (*CarePlan, error)
	CreateTasksFunc        func(ctx context.Context, tasks []Task) ([]Task, error)
	CreateChatFunc         func(ctx context.Context, chat Chat, seed Message) (*Chat, error)
	UpdateTaskStatusFunc   func(ctx context.Context, id uuid.UUID, from, to TaskStatus) (*Task, error)
	InsertTaskLogFunc      func(ctx context.Context, tl TaskLog) (*TaskLog, error)
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users: make(map[uuid.UUID]*User),
		chats: make(map[string]*Chat),
	}
}

func (m *mockRepository) addUser(role Role) uuid.UUID {
	id := uuid.New()
	m.users[id] = &User{ID: id, Role: role, Locale: "en", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	return id
}

func (m *mockRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func (m *mockRepository) CreatePrescription(ctx context.Context, p Prescription) (*Prescription, error) {
	if m.CreatePrescriptionFunc != nil {
		return m.CreatePrescriptionFunc(ctx, p)
	}
	p.CreatedAt = time.Now()
	m.prescriptions = append(m.prescriptions, p)
	return &p, nil
}

func (m *mockRepository) GetPrescriptionByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	for i := range m.prescriptions {
		if m.prescriptions[i].ID == id {
			return &m.prescriptions[i], nil
		}
	}
	return nil, ErrPrescriptionNotFound
}

func (m *mockRepository) ListPrescriptionsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Prescription, error) {
	var out []Prescription
	for _, p := range m.prescriptions {
		if p.PatientID == patientID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepository) CreateCarePlan(ctx context.Context, cp CarePlan) (*CarePlan, error) {
	if m.CreateCarePlanFunc != nil {
		return m.CreateCarePlanFunc(ctx, cp)
	}
	cp.CreatedAt = time.Now()
	m.carePlans = append(m.carePlans, cp)
	return &cp, nil
}

func (m *mockRepository) GetCarePlanByID(ctx context.Context, id uuid.UUID) (*CarePlan, error) {
	for i := range m.carePlans {
		if m.carePlans[i].ID == id {
			return &m.carePlans[i], nil
		}
	}
	return nil, ErrCarePlanNotFound
}

func (m *mockRepository) GetCarePlanDetail(ctx context.Context, id uuid.UUID) (*CarePlanDetail, error) {
	cp, err := m.GetCarePlanByID(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &CarePlanDetail{CarePlan: *cp}
	if p, err := m.GetPrescriptionByID(ctx, cp.PrescriptionID); err == nil {
		detail.Prescription = p
	}
	detail.Tasks, _ = m.ListTasksByCarePlan(ctx, id)
	return detail, nil
}

func (m *mockRepository) ListCarePlansByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]CarePlan, error) {
	var out []CarePlan
	for _, cp := range m.carePlans {
		if cp.PatientID == patientID {
			out = append(out, cp)
		}
	}
	return out, nil
}

func (m *mockRepository) CreateTasks(ctx context.Context, tasks []Task) ([]Task, error) {
	if m.CreateTasksFunc != nil {
		return m.CreateTasksFunc(ctx, tasks)
	}
	for i := range tasks {
		tasks[i].CreatedAt = time.Now()
		tasks[i].UpdatedAt = tasks[i].CreatedAt
	}
	m.tasks = append(m.tasks, tasks...)
	return tasks, nil
}

func (m *mockRepository) GetTaskByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			return &m.tasks[i], nil
		}
	}
	return nil, ErrTaskNotFound
}

func (m *mockRepository) ListTasksByCarePlan(ctx context.Context, carePlanID uuid.UUID) ([]Task, error) {
	var out []Task
	for _, t := range m.tasks {
		if t.CarePlanID == carePlanID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockRepository) UpdateTaskStatus(ctx context.Context, id uuid.UUID, from, to TaskStatus) (*Task, error) {
	if m.UpdateTaskStatusFunc != nil {
		return m.UpdateTaskStatusFunc(ctx, id, from, to)
	}
	for i := range m.tasks {
		if m.tasks[i].ID == id && m.tasks[i].Status == from {
			m.tasks[i].Status = to
			m.tasks[i].UpdatedAt = time.Now()
			return &m.tasks[i], nil
		}
	}
	return nil, ErrTaskNotFound
}

func (m *mockRepository) FindOverduePending(ctx context.Context, now time.Time) ([]Task, error) {
	var out []Task
	for _, t := range m.tasks {
		if t.Status != TaskPending || len(t.DueDate) < 10 {
			continue
		}
		due, err := time.Parse("2006-01-02", t.DueDate[:10])
		if err != nil {
			continue
		}
		if due.Before(now.Truncate(24 * time.Hour)) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockRepository) InsertTaskLog(ctx context.Context, tl TaskLog) (*TaskLog, error) {
	if m.InsertTaskLogFunc != nil {
		return m.InsertTaskLogFunc(ctx, tl)
	}
	tl.CompletedAt = time.Now()
	m.taskLogs = append(m.taskLogs, tl)
	return &tl, nil
}

func (m *mockRepository) ListRecentTaskLogsByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]TaskLog, error) {
	if len(m.taskLogs) > limit {
		return m.taskLogs[len(m.taskLogs)-limit:], nil
	}
	return m.taskLogs, nil
}

func (m *mockRepository) CountTasksByStatus(ctx context.Context, patientID uuid.UUID) (map[TaskStatus]int, error) {
	counts := make(map[TaskStatus]int)
	for _, cp := range m.carePlans {
		if cp.PatientID != patientID {
			continue
		}
		for _, t := range m.tasks {
			if t.CarePlanID == cp.ID {
				counts[t.Status]++
			}
		}
	}
	return counts, nil
}

func (m *mockRepository) FindChatByPairKey(ctx context.Context, pairKey string) (*Chat, error) {
	if c, ok := m.chats[pairKey]; ok {
		return c, nil
	}
	return nil, ErrChatNotFound
}

func (m *mockRepository) CreateChat(ctx context.Context, chat Chat, seed Message) (*Chat, error) {
	if m.CreateChatFunc != nil {
		return m.CreateChatFunc(ctx, chat, seed)
	}
	if existing, ok := m.chats[chat.PairKey]; ok {
		return existing, nil
	}
	chat.CreatedAt = time.Now()
	chat.UpdatedAt = chat.CreatedAt
	m.chats[chat.PairKey] = &chat
	seed.ChatID = chat.ID
	seed.CreatedAt = chat.CreatedAt
	m.messages = append(m.messages, seed)
	return &chat, nil
}

func (m *mockRepository) GetChatByID(ctx context.Context, id uuid.UUID) (*Chat, error) {
	for _, c := range m.chats {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, ErrChatNotFound
}

func (m *mockRepository) ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]Chat, error) {
	var out []Chat
	for _, c := range m.chats {
		if c.HasParticipant(userID) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockRepository) AppendMessage(ctx context.Context, msg Message) (*Message, error) {
	msg.CreatedAt = time.Now()
	m.messages = append(m.messages, msg)
	for _, c := range m.chats {
		if c.ID == msg.ChatID {
			c.LastMessage = msg.Text
			c.UpdatedAt = msg.CreatedAt
		}
	}
	return &msg, nil
}

func (m *mockRepository) ListMessages(ctx context.Context, chatID uuid.UUID) ([]Message, error) {
	var out []Message
	for _, msg := range m.messages {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *mockRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	m.events = append(m.events, ev)
	return nil
}

// --- collaborator mocks ---

type mockAnalyzer struct {
	AnalyzeFunc func(ctx context.Context, img genai.Image) (*genai.Analysis, error)
	calls       int
}

func (m *mockAnalyzer) AnalyzePrescription(ctx context.Context, img genai.Image) (*genai.Analysis, error) {
	m.calls++
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, img)
	}
	return &genai.Analysis{
		MedicationName:  "Metformin",
		Dosage:          "500mg",
		Frequency:       "twice daily",
		AdditionalNotes: genai.Unknown,
	}, nil
}

type mockTaskGenerator struct {
	GenerateFunc func(ctx context.Context, a genai.Analysis, now time.Time, windowDays int) ([]genai.GeneratedTask, error)
	lastAnalysis genai.Analysis
}

func (m *mockTaskGenerator) GenerateTasks(ctx context.Context, a genai.Analysis, now time.Time, windowDays int) ([]genai.GeneratedTask, error) {
	m.lastAnalysis = a
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, a, now, windowDays)
	}
	tasks := make([]genai.GeneratedTask, 0, windowDays)
	for i := 0; i < windowDays; i++ {
		tasks = append(tasks, genai.GeneratedTask{
			Type:    "Medication",
			TextEN:  "Take " + a.MedicationName + " " + a.Dosage,
			TextKN:  "ಔಷಧಿ ತೆಗೆದುಕೊಳ್ಳಿ",
			DueDate: now.AddDate(0, 0, i+1).Format("2006-01-02"),
			Status:  "Pending",
		})
	}
	return tasks, nil
}

type mockBlobStore struct {
	UploadFunc func(ctx context.Context, key, contentType string, data []byte) (string, error)
	lastKey    string
	calls      int
}

func (m *mockBlobStore) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	m.calls++
	m.lastKey = key
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, key, contentType, data)
	}
	return "https://images.test/" + key, nil
}

// noopLocker runs the critical section inline.
type noopLocker struct {
	acquireErr error
}

func (l *noopLocker) WithChatLock(ctx context.Context, pairKey string, fn func(ctx context.Context) error) error {
	if l.acquireErr != nil {
		return l.acquireErr
	}
	return fn(ctx)
}

var errBoom = errors.New("boom")
