package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/housing-queue/internal/queue"
	"github.com/mmeshcher/housing-queue/internal/validation"
)

type queueCheckRequest struct {
	IIN string `json:"iin"`
}

type queueCheckItem struct {
	Number        string `json:"number"`
	Status        string `json:"status"`
	PriorityScore int    `json:"priority_score"`
	Position      *int   `json:"position,omitempty"`
	SubmittedAt   string `json:"submitted_at"`
}

type queueCheckResponse struct {
	Applications []queueCheckItem `json:"applications"`
	TotalInQueue int              `json:"total_in_queue"`
}

type queueEntryResponse struct {
	Rank          int    `json:"rank"`
	Number        string `json:"number"`
	ApplicantIIN  string `json:"applicant_iin"`
	PriorityScore int    `json:"priority_score"`
	SubmittedAt   string `json:"submitted_at"`
}

type queuePageResponse struct {
	Page         int                  `json:"page"`
	TotalPages   int                  `json:"total_pages"`
	TotalEntries int                  `json:"total_entries"`
	Entries      []queueEntryResponse `json:"entries"`
}

type queuePositionResponse struct {
	Number   string `json:"number"`
	Position int    `json:"position"`
}

// CheckQueue показывает заявления владельца ИИН и их места в очереди. Доступен без входа.
func (h *Handler) CheckQueue(w http.ResponseWriter, r *http.Request) {
	var req queueCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	check, err := h.service.CheckQueue(r.Context(), req.IIN)
	if err != nil {
		h.writeError(w, err, "check queue error")
		return
	}

	resp := queueCheckResponse{
		Applications: make([]queueCheckItem, 0, len(check.Applications)),
		TotalInQueue: check.TotalInQueue,
	}
	for _, a := range check.Applications {
		item := queueCheckItem{
			Number:        a.Number,
			Status:        string(a.Status),
			PriorityScore: a.PriorityScore,
			SubmittedAt:   a.SubmittedAt.Format(time.RFC3339),
		}
		if pos, ok := check.Positions[a.Number]; ok {
			item.Position = &pos
		}
		resp.Applications = append(resp.Applications, item)
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListQueue возвращает страницу очереди. Параметры: iin, from, to, page.
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := queue.Filter{IIN: q.Get("iin")}

	var err error
	if filter.From, err = optionalInt(q.Get("from")); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if filter.To, err = optionalInt(q.Get("to")); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	page := 1
	if v := q.Get("page"); v != "" {
		// Нечисловая страница трактуется как первая.
		if n, convErr := strconv.Atoi(v); convErr == nil {
			page = n
		}
	}

	result, err := h.service.ListQueue(r.Context(), filter, page)
	if err != nil {
		h.writeError(w, err, "list queue error")
		return
	}

	resp := queuePageResponse{
		Page:         result.Number,
		TotalPages:   result.TotalPages,
		TotalEntries: result.TotalEntries,
		Entries:      make([]queueEntryResponse, 0, len(result.Entries)),
	}
	for _, e := range result.Entries {
		resp.Entries = append(resp.Entries, queueEntryResponse{
			Rank:          e.Rank,
			Number:        e.Application.Number,
			ApplicantIIN:  e.Application.ApplicantIIN,
			PriorityScore: e.Application.PriorityScore,
			SubmittedAt:   e.Application.SubmittedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetQueuePosition возвращает место заявления в очереди.
func (h *Handler) GetQueuePosition(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	if !validation.IsValidApplicationNumber(number) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	pos, err := h.service.QueuePosition(r.Context(), number)
	if err != nil {
		h.writeError(w, err, "queue position error")
		return
	}

	writeJSON(w, http.StatusOK, queuePositionResponse{Number: number, Position: pos})
}

func optionalInt(v string) (*int, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
