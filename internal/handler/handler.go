// Package handler содержит HTTP-обработчики API портала жилищной очереди.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/housing-queue/internal/metrics"
	"github.com/mmeshcher/housing-queue/internal/middleware"
	"github.com/mmeshcher/housing-queue/internal/model"
	"github.com/mmeshcher/housing-queue/internal/queue"
	"github.com/mmeshcher/housing-queue/internal/repository"
	"github.com/mmeshcher/housing-queue/internal/service"
	"github.com/mmeshcher/housing-queue/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, iin, fullName, password string) (int64, error)
	AuthenticateUser(ctx context.Context, iin, password string) (*model.User, error)
	SubmitApplication(ctx context.Context, applicantID int64, form model.ApplicationForm) (*model.Application, error)
	UpdateApplication(ctx context.Context, applicantID int64, number string, form model.ApplicationForm) (*model.Application, error)
	GetApplication(ctx context.Context, number string) (*model.ApplicationDetails, error)
	ListApplicationsByApplicant(ctx context.Context, applicantID int64) ([]model.Application, error)
	CheckQueue(ctx context.Context, iin string) (*model.QueueCheck, error)
	ListQueue(ctx context.Context, filter queue.Filter, page int) (queue.Page, error)
	QueuePosition(ctx context.Context, number string) (int, error)
	ChangeStatus(ctx context.Context, number string, status model.ApplicationStatus, actor *int64, note string) (*model.Application, bool, error)
	RejectApplication(ctx context.Context, number string, actor *int64, reason string, documentRenewal bool) (*model.Application, bool, error)
	AttachDocument(ctx context.Context, applicantID int64, number string, docType model.DocumentType, name, storageKey string) (*model.Document, error)
	RemoveDocument(ctx context.Context, applicantID int64, number string, docType model.DocumentType) error
}

// Handler реализует HTTP-обработчики API портала.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	rateLimiter    *middleware.RateLimiter
	metrics        *metrics.Metrics
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(
	s Service,
	logger *zap.Logger,
	auth *middleware.AuthMiddleware,
	limiter *middleware.RateLimiter,
	m *metrics.Metrics,
) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		rateLimiter:    limiter,
		metrics:        m,
	}
}

type registerRequest struct {
	IIN      string `json:"iin"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type loginRequest struct {
	IIN      string `json:"iin"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового заявителя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.IIN == "" || req.Password == "" || strings.TrimSpace(req.FullName) == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.IIN, strings.TrimSpace(req.FullName), req.Password)
	if err != nil {
		h.writeError(w, err, "register user error")
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, userID, false); err != nil {
		h.writeError(w, err, "set auth cookie error")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.IIN == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.IIN, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.writeError(w, err, "login user error")
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, u.ID, u.IsAdmin); err != nil {
		h.writeError(w, err, "set auth cookie error")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// writeError переводит ошибку сервиса в HTTP-статус. Неизвестные ошибки логируются как 500.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, validation.ErrSchemaMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, validation.ErrInvalidIIN),
		errors.Is(err, validation.ErrInvalidHousehold),
		errors.Is(err, validation.ErrInvalidForm),
		errors.Is(err, validation.ErrInvalidDocument),
		errors.Is(err, service.ErrInvalidStatus):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrApplicationNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, service.ErrDocumentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, repository.ErrUserExists),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrNotEditable),
		errors.Is(err, queue.ErrNotInQueue),
		errors.Is(err, queue.ErrEmptyQueue):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Error(msg, append(fields, zap.Error(err))...)
	}
	http.Error(w, http.StatusText(status), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
