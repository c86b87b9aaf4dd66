// Package service реализует бизнес-логику портала жилищной очереди.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/housing-queue/internal/metrics"
	"github.com/mmeshcher/housing-queue/internal/model"
	"github.com/mmeshcher/housing-queue/internal/repository"
	"github.com/mmeshcher/housing-queue/internal/validation"
)

var (
	// ErrInvalidCredentials возвращается при неверном ИИН или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidStatus возвращается для неизвестного статуса заявления.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidTransition возвращается, если переход между статусами запрещён.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotEditable возвращается при попытке изменить заявление, которое уже рассматривается.
	ErrNotEditable = errors.New("application is not editable")
	// ErrForbidden возвращается, если заявление принадлежит другому пользователю.
	ErrForbidden = errors.New("application belongs to another applicant")
	// ErrDocumentNotFound возвращается, если у заявления нет текущего документа этой категории.
	ErrDocumentNotFound = errors.New("document not found")
)

const (
	defaultNotifyTimeout = 10 * time.Second
	minPasswordLength    = 6
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, u model.User) (int64, error)
	GetUserByIIN(ctx context.Context, iin string) (*model.User, error)
	CreateApplication(ctx context.Context, app model.Application, entry model.StatusHistoryEntry) (*model.Application, error)
	GetApplication(ctx context.Context, number string) (*model.Application, error)
	GetApplicationsByApplicant(ctx context.Context, applicantID int64) ([]model.Application, error)
	GetQueueSnapshot(ctx context.Context) ([]model.Application, error)
	UpdateApplication(ctx context.Context, number string, mutate repository.MutateFunc) (*model.Application, error)
	GetHistory(ctx context.Context, applicationID int64) ([]model.StatusHistoryEntry, error)
	ReplaceDocument(ctx context.Context, doc model.Document) error
	RetireDocument(ctx context.Context, applicationID int64, docType model.DocumentType) (bool, error)
	GetDocuments(ctx context.Context, applicationID int64) ([]model.Document, error)
	GetApplicationsForAccrual(ctx context.Context, limit int) ([]repository.ApplicationForAccrual, error)
}

// Notifier доставляет уведомления заявителям.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// Service содержит бизнес-логику портала.
type Service struct {
	repo     Repository
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger

	now           func() time.Time
	notifyTimeout time.Duration

	notifications sync.WaitGroup
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithMetrics задаёт набор метрик.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithNotifyTimeout ограничивает время доставки уведомлений об одном переходе.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.notifyTimeout = d
	}
}

// NewService создаёт новый сервис с указанным репозиторием и системой уведомлений.
func NewService(repo Repository, notifier Notifier, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		notifier:      notifier,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
		notifyTimeout: defaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Close дожидается отправки уведомлений и закрывает ресурсы сервиса.
func (s *Service) Close() error {
	s.notifications.Wait()
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового заявителя.
func (s *Service) RegisterUser(ctx context.Context, iin, fullName, password string) (int64, error) {
	return s.createUser(ctx, iin, fullName, password, false)
}

// CreateAdmin создаёт пользователя с правами администратора.
func (s *Service) CreateAdmin(ctx context.Context, iin, fullName, password string) (int64, error) {
	return s.createUser(ctx, iin, fullName, password, true)
}

func (s *Service) createUser(ctx context.Context, iin, fullName, password string, isAdmin bool) (int64, error) {
	if !validation.IsValidIIN(iin) {
		return 0, validation.ErrInvalidIIN
	}
	if len(password) < minPasswordLength {
		return 0, fmt.Errorf("%w: password must be at least %d characters", validation.ErrInvalidForm, minPasswordLength)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.repo.CreateUser(ctx, model.User{
		IIN:          iin,
		FullName:     fullName,
		PasswordHash: hashed,
		IsAdmin:      isAdmin,
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return 0, repository.ErrUserExists
		}
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет ИИН и пароль и возвращает пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, iin, password string) (*model.User, error) {
	u, err := s.repo.GetUserByIIN(ctx, iin)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}
