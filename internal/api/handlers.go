package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medimitra/careplan-service/internal/careplan"
	redisclient "github.com/medimitra/careplan-service/internal/redis"
)

func createCarePlanHandler(svc *careplan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateCarePlanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		in := careplan.CreatePlanInput{
			ImageData: req.ImageData,
			ActorID:   GetActorID(r.Context()),
		}

		if req.PatientID != "" {
			patientID, err := uuid.Parse(req.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			in.PatientID = patientID
		}

		bundle, err := svc.CreatePlan(r.Context(), in)
		if err != nil {
			handleCreatePlanError(w, err)
			return
		}

		resp := CreateCarePlanResponse{
			Prescription: toPrescriptionResponse(bundle.Prescription),
			CarePlan:     toCarePlanResponse(bundle.CarePlan),
			Tasks:        toTaskResponses(bundle.Tasks),
		}
		if bundle.Chat != nil {
			chat := toChatResponse(*bundle.Chat)
			resp.Chat = &chat
		}

		writeData(w, http.StatusCreated, resp)
	}
}

func listCarePlansHandler(svc *careplan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID := GetActorID(r.Context())
		if actorID == uuid.Nil {
			writeError(w, http.StatusUnauthorized, "not_authenticated", "X-User-ID header is required")
			return
		}

		patientID, ok := patientFromQuery(w, r, actorID)
		if !ok {
			return
		}
		limit, offset := paginationFromQuery(r)

		plans, err := svc.ListCarePlans(r.Context(), patientID, limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		out := make([]CarePlanResponse, 0, len(plans))
		for _, cp := range plans {
			out = append(out, toCarePlanResponse(cp))
		}
		writeData(w, http.StatusOK, out)
	}
}

func getCarePlanHandler(svc *careplan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_care_plan_id", "id must be a valid UUID")
			return
		}

		detail, err := svc.GetCarePlan(r.Context(), id)
		if err != nil {
			if errors.Is(err, careplan.ErrCarePlanNotFound) {
				writeError(w, http.StatusNotFound, "care_plan_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := CarePlanDetailResponse{
			CarePlanResponse: toCarePlanResponse(detail.CarePlan),
			Tasks:            toTaskResponses(detail.Tasks),
		}
		if detail.Prescription != nil {
			p := toPrescriptionResponse(*detail.Prescription)
			resp.Prescription = &p
		}

		writeData(w, http.StatusOK, resp)
	}
}

func completeTaskHandler(svc *careplan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, ok := planTaskFromPath(w, r, svc)
		if !ok {
			return
		}

		task, tl, err := svc.CompleteTask(r.Context(), GetActorID(r.Context()), taskID)
		if err != nil {
			handleTaskError(w, err)
			return
		}

		resp := TaskCompletionResponse{Task: toTaskResponse(*task)}
		if tl != nil {
			logResp := toTaskLogResponse(*tl)
			resp.Log = &logResp
		}

		writeData(w, http.StatusOK, resp)
	}
}

func missTaskHandler(svc *careplan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, ok := planTaskFromPath(w, r, svc)
		if !ok {
			return
		}

		task, err := svc.MissTask(r.Context(), GetActorID(r.Context()), taskID)
		if err != nil {
			handleTaskError(w, err)
			return
		}

		writeData(w, http.StatusOK, TaskCompletionResponse{Task: toTaskResponse(*task)})
	}
}

func listPrescriptionsHandler(svc *careplan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID := GetActorID(r.Context())
		if actorID == uuid.Nil {
			writeError(w, http.StatusUnauthorized, "not_authenticated", "X-User-ID header is required")
			return
		}

		patientID, ok := patientFromQuery(w, r, actorID)
		if !ok {
			return
		}
		limit, offset := paginationFromQuery(r)

		prescriptions, err := svc.ListPrescriptions(r.Context(), patientID, limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		out := make([]PrescriptionResponse, 0, len(prescriptions))
		for _, p := range prescriptions {
			out = append(out, toPrescriptionResponse(p))
		}
		writeData(w, http.StatusOK, out)
	}
}

func listChatsHandler(svc *careplan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chats, err := svc.ListChats(r.Context(), GetActorID(r.Context()))
		if err != nil {
			handleChatError(w, err)
			return
		}

		out := make([]ChatResponse, 0, len(chats))
		for _, c := range chats {
			out = append(out, toChatResponse(c))
		}
		writeData(w, http.StatusOK, out)
	}
}

func listMessagesHandler(svc *careplan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_chat_id", "id must be a valid UUID")
			return
		}

		msgs, err := svc.ListMessages(r.Context(), GetActorID(r.Context()), chatID)
		if err != nil {
			handleChatError(w, err)
			return
		}

		out := make([]MessageResponse, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, toMessageResponse(m))
		}
		writeData(w, http.StatusOK, out)
	}
}

func sendMessageHandler(svc *careplan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_chat_id", "id must be a valid UUID")
			return
		}

		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		msg, err := svc.SendMessage(r.Context(), GetActorID(r.Context()), chatID, req.Text)
		if err != nil {
			handleChatError(w, err)
			return
		}

		writeData(w, http.StatusCreated, toMessageResponse(*msg))
	}
}

func adherenceHandler(svc *careplan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID := GetActorID(r.Context())
		if actorID == uuid.Nil {
			writeError(w, http.StatusUnauthorized, "not_authenticated", "X-User-ID header is required")
			return
		}

		patientID, ok := patientFromQuery(w, r, actorID)
		if !ok {
			return
		}

		summary, err := svc.AdherenceSummary(r.Context(), patientID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := AdherenceResponse{
			Total:      summary.Total,
			Pending:    summary.Pending,
			Completed:  summary.Completed,
			Missed:     summary.Missed,
			RecentLogs: make([]TaskLogResponse, 0, len(summary.RecentLogs)),
		}
		for _, tl := range summary.RecentLogs {
			resp.RecentLogs = append(resp.RecentLogs, toTaskLogResponse(tl))
		}

		writeData(w, http.StatusOK, resp)
	}
}

// planTaskFromPath parses the nested route ids and verifies the task belongs
// to the addressed care plan before any state change happens.
func planTaskFromPath(w http.ResponseWriter, r *http.Request, svc *careplan.Service) (uuid.UUID, bool) {
	planID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_care_plan_id", "id must be a valid UUID")
		return uuid.Nil, false
	}

	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_task_id", "taskID must be a valid UUID")
		return uuid.Nil, false
	}

	detail, err := svc.GetCarePlan(r.Context(), planID)
	if err != nil {
		if errors.Is(err, careplan.ErrCarePlanNotFound) {
			writeError(w, http.StatusNotFound, "care_plan_not_found", err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return uuid.Nil, false
	}

	for _, t := range detail.Tasks {
		if t.ID == taskID {
			return taskID, true
		}
	}

	writeError(w, http.StatusNotFound, "task_not_found", "task does not belong to this care plan")
	return uuid.Nil, false
}

func patientFromQuery(w http.ResponseWriter, r *http.Request, fallback uuid.UUID) (uuid.UUID, bool) {
	raw := r.URL.Query().Get("patient_id")
	if raw == "" {
		return fallback, true
	}
	patientID, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
		return uuid.Nil, false
	}
	return patientID, true
}

func paginationFromQuery(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

func handleCreatePlanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, careplan.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not_authenticated", err.Error())
	case errors.Is(err, careplan.ErrInvalidImage):
		writeError(w, http.StatusBadRequest, "invalid_image", err.Error())
	case errors.Is(err, careplan.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, careplan.ErrAnalysisFailed):
		writeError(w, http.StatusUnprocessableEntity, "analysis_failed", err.Error())
	case errors.Is(err, careplan.ErrStorageUpload):
		writeError(w, http.StatusBadGateway, "storage_upload_failed", err.Error())
	case errors.Is(err, careplan.ErrTaskGeneration):
		writeError(w, http.StatusBadGateway, "task_generation_failed", err.Error())
	case errors.Is(err, careplan.ErrChatBeingCreated),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "chat_being_created", "chat is currently being created, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleTaskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, careplan.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not_authenticated", err.Error())
	case errors.Is(err, careplan.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task_not_found", err.Error())
	case errors.Is(err, careplan.ErrInvalidTaskTransition):
		writeError(w, http.StatusConflict, "invalid_task_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, careplan.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not_authenticated", err.Error())
	case errors.Is(err, careplan.ErrChatNotFound):
		writeError(w, http.StatusNotFound, "chat_not_found", err.Error())
	case errors.Is(err, careplan.ErrNotChatParticipant):
		writeError(w, http.StatusForbidden, "not_chat_participant", err.Error())
	case errors.Is(err, careplan.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "empty_message", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
