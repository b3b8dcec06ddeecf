package careplan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanUser(row pgx.Row) (*User, error) {
	var u User

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.Role,
		&u.Locale,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &u, nil
}

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription

	err := row.Scan(
		&p.ID,
		&p.PatientID,
		&p.ImageURL,
		&p.MedicationName,
		&p.Dosage,
		&p.Frequency,
		&p.AdditionalNotes,
		&p.Status,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrescriptionNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanCarePlan(row pgx.Row) (*CarePlan, error) {
	var cp CarePlan

	err := row.Scan(
		&cp.ID,
		&cp.PatientID,
		&cp.PrescriptionID,
		&cp.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCarePlanNotFound
		}
		return nil, err
	}

	return &cp, nil
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task

	err := row.Scan(
		&t.ID,
		&t.CarePlanID,
		&t.Type,
		&t.TextEN,
		&t.TextKN,
		&t.DueDate,
		&t.Status,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	return &t, nil
}

func scanChat(row pgx.Row) (*Chat, error) {
	var c Chat
	var lastMessage *string

	err := row.Scan(
		&c.ID,
		&c.ParticipantOne,
		&c.ParticipantTwo,
		&c.PairKey,
		&lastMessage,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}

	if lastMessage != nil {
		c.LastMessage = *lastMessage
	}
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Users

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, name, role, locale, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

// Prescriptions

func (r *PgRepository) CreatePrescription(ctx context.Context, p Prescription) (*Prescription, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO prescriptions (id, patient_id, image_url, medication_name, dosage, frequency, additional_notes, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING id, patient_id, image_url, medication_name, dosage, frequency, additional_notes, status, created_at
	`, p.ID, p.PatientID, p.ImageURL, p.MedicationName, p.Dosage, p.Frequency, p.AdditionalNotes, p.Status)

	return scanPrescription(row)
}

func (r *PgRepository) GetPrescriptionByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, image_url, medication_name, dosage, frequency, additional_notes, status, created_at
		FROM prescriptions
		WHERE id = $1
	`, id)
	return scanPrescription(row)
}

func (r *PgRepository) ListPrescriptionsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Prescription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_id, image_url, medication_name, dosage, frequency, additional_notes, status, created_at
		FROM prescriptions
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	return result, rows.Err()
}

// Care plans

func (r *PgRepository) CreateCarePlan(ctx context.Context, cp CarePlan) (*CarePlan, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO care_plans (id, patient_id, prescription_id, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, patient_id, prescription_id, created_at
	`, cp.ID, cp.PatientID, cp.PrescriptionID)

	return scanCarePlan(row)
}

func (r *PgRepository) GetCarePlanByID(ctx context.Context, id uuid.UUID) (*CarePlan, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, prescription_id, created_at
		FROM care_plans
		WHERE id = $1
	`, id)
	return scanCarePlan(row)
}

func (r *PgRepository) GetCarePlanDetail(ctx context.Context, id uuid.UUID) (*CarePlanDetail, error) {
	cp, err := r.GetCarePlanByID(ctx, id)
	if err != nil {
		return nil, err
	}

	prescription, err := r.GetPrescriptionByID(ctx, cp.PrescriptionID)
	if err != nil && !errors.Is(err, ErrPrescriptionNotFound) {
		return nil, err
	}

	tasks, err := r.ListTasksByCarePlan(ctx, cp.ID)
	if err != nil {
		return nil, err
	}

	return &CarePlanDetail{
		CarePlan:     *cp,
		Prescription: prescription,
		Tasks:        tasks,
	}, nil
}

func (r *PgRepository) ListCarePlansByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]CarePlan, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_id, prescription_id, created_at
		FROM care_plans
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CarePlan
	for rows.Next() {
		cp, err := scanCarePlan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *cp)
	}

	return result, rows.Err()
}

// Tasks

func (r *PgRepository) CreateTasks(ctx context.Context, tasks []Task) ([]Task, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	saved := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		row := tx.QueryRow(ctx, `
			INSERT INTO care_plan_tasks (id, care_plan_id, task_type, text_en, text_kn, due_date, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			RETURNING id, care_plan_id, task_type, text_en, text_kn, due_date, status, created_at, updated_at
		`, t.ID, t.CarePlanID, t.Type, t.TextEN, t.TextKN, t.DueDate, t.Status)

		inserted, err := scanTask(row)
		if err != nil {
			return nil, fmt.Errorf("insert task %s: %w", t.ID, err)
		}
		saved = append(saved, *inserted)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return saved, nil
}

func (r *PgRepository) GetTaskByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, care_plan_id, task_type, text_en, text_kn, due_date, status, created_at, updated_at
		FROM care_plan_tasks
		WHERE id = $1
	`, id)
	return scanTask(row)
}

func (r *PgRepository) ListTasksByCarePlan(ctx context.Context, carePlanID uuid.UUID) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, care_plan_id, task_type, text_en, text_kn, due_date, status, created_at, updated_at
		FROM care_plan_tasks
		WHERE care_plan_id = $1
		ORDER BY due_date, created_at
	`, carePlanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}

	return result, rows.Err()
}

func (r *PgRepository) UpdateTaskStatus(ctx context.Context, id uuid.UUID, from, to TaskStatus) (*Task, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE care_plan_tasks
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, care_plan_id, task_type, text_en, text_kn, due_date, status, created_at, updated_at
	`, id, to, from)

	return scanTask(row)
}

func (r *PgRepository) FindOverduePending(ctx context.Context, now time.Time) ([]Task, error) {
	// due_date is free-form model output; only rows with a parseable ISO
	// date prefix participate in overdue detection.
	rows, err := r.pool.Query(ctx, `
		SELECT id, care_plan_id, task_type, text_en, text_kn, due_date, status, created_at, updated_at
		FROM care_plan_tasks
		WHERE status = 'Pending'
		  AND due_date ~ '^\d{4}-\d{2}-\d{2}'
		  AND left(due_date, 10)::date < $1::date
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}

	return result, rows.Err()
}

// Task logs

func (r *PgRepository) InsertTaskLog(ctx context.Context, tl TaskLog) (*TaskLog, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO task_logs (id, task_id, completed_at)
		VALUES ($1, $2, now())
		RETURNING id, task_id, completed_at
	`, tl.ID, tl.TaskID)

	var saved TaskLog
	if err := row.Scan(&saved.ID, &saved.TaskID, &saved.CompletedAt); err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *PgRepository) ListRecentTaskLogsByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]TaskLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tl.id, tl.task_id, tl.completed_at
		FROM task_logs tl
		JOIN care_plan_tasks t ON t.id = tl.task_id
		JOIN care_plans cp ON cp.id = t.care_plan_id
		WHERE cp.patient_id = $1
		ORDER BY tl.completed_at DESC
		LIMIT $2
	`, patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TaskLog
	for rows.Next() {
		var tl TaskLog
		if err := rows.Scan(&tl.ID, &tl.TaskID, &tl.CompletedAt); err != nil {
			return nil, err
		}
		result = append(result, tl)
	}

	return result, rows.Err()
}

func (r *PgRepository) CountTasksByStatus(ctx context.Context, patientID uuid.UUID) (map[TaskStatus]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.status, COUNT(*)
		FROM care_plan_tasks t
		JOIN care_plans cp ON cp.id = t.care_plan_id
		WHERE cp.patient_id = $1
		GROUP BY t.status
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[TaskStatus]int)
	for rows.Next() {
		var status TaskStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}

	return counts, rows.Err()
}

// Chats

func (r *PgRepository) FindChatByPairKey(ctx context.Context, pairKey string) (*Chat, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, participant_one, participant_two, pair_key, last_message, created_at, updated_at
		FROM chats
		WHERE pair_key = $1
	`, pairKey)
	return scanChat(row)
}

// CreateChat inserts the chat and its seed message in one transaction.
// pair_key carries a unique constraint, so a concurrent create for the same
// pair loses the race and receives the existing chat instead.
func (r *PgRepository) CreateChat(ctx context.Context, chat Chat, seed Message) (*Chat, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO chats (id, participant_one, participant_two, pair_key, last_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING id, participant_one, participant_two, pair_key, last_message, created_at, updated_at
	`, chat.ID, chat.ParticipantOne, chat.ParticipantTwo, chat.PairKey, chat.LastMessage)

	created, err := scanChat(row)
	if err != nil {
		if isUniqueViolation(err) {
			return r.FindChatByPairKey(ctx, chat.PairKey)
		}
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO chat_messages (id, chat_id, sender_id, body, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, seed.ID, created.ID, seed.SenderID, seed.Text)
	if err != nil {
		return nil, fmt.Errorf("insert seed message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return r.FindChatByPairKey(ctx, chat.PairKey)
		}
		return nil, err
	}

	return created, nil
}

func (r *PgRepository) GetChatByID(ctx context.Context, id uuid.UUID) (*Chat, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, participant_one, participant_two, pair_key, last_message, created_at, updated_at
		FROM chats
		WHERE id = $1
	`, id)
	return scanChat(row)
}

func (r *PgRepository) ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]Chat, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, participant_one, participant_two, pair_key, last_message, created_at, updated_at
		FROM chats
		WHERE participant_one = $1 OR participant_two = $1
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}

	return result, rows.Err()
}

// AppendMessage inserts the message and refreshes the chat's last_message
// in one transaction.
func (r *PgRepository) AppendMessage(ctx context.Context, m Message) (*Message, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO chat_messages (id, chat_id, sender_id, body, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, chat_id, sender_id, body, created_at
	`, m.ID, m.ChatID, m.SenderID, m.Text)

	var saved Message
	if err := row.Scan(&saved.ID, &saved.ChatID, &saved.SenderID, &saved.Text, &saved.CreatedAt); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE chats
		SET last_message = $2,
		    updated_at = now()
		WHERE id = $1
	`, m.ChatID, m.Text)
	if err != nil {
		return nil, fmt.Errorf("update last message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &saved, nil
}

func (r *PgRepository) ListMessages(ctx context.Context, chatID uuid.UUID) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, chat_id, sender_id, body, created_at
		FROM chat_messages
		WHERE chat_id = $1
		ORDER BY created_at ASC
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}

	return result, rows.Err()
}

// Events

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, care_plan_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.CarePlanID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
