package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/housing-queue/internal/model"
	"github.com/mmeshcher/housing-queue/internal/repository"
)

const (
	statusChangeTitle    = "Application Status Updated"
	statusChangeMessage  = "Your application status has changed to %s."
	rejectedMessage      = `Your application status has changed to "Rejected".`
	documentRenewalTitle = "Document Renewal Required"
	documentRenewalText  = "Your application requires document renewal."
)

// errUnchanged откатывает транзакцию, когда запрошенный статус совпадает с текущим.
var errUnchanged = errors.New("status unchanged")

// ChangeStatus переводит заявление в новый статус от имени actor (nil означает систему).
// Возвращает false, если заявление уже находилось в этом статусе: тогда ни история,
// ни уведомления не создаются.
func (s *Service) ChangeStatus(ctx context.Context, number string, next model.ApplicationStatus, actor *int64, note string) (*model.Application, bool, error) {
	if !next.Valid() {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidStatus, next)
	}

	app, previous, changed, err := s.transition(ctx, number, next, actor, note, nil)
	if err != nil || !changed {
		return app, false, err
	}

	message := fmt.Sprintf(statusChangeMessage, next)
	if next == model.StatusRejectedByManager {
		message = rejectedMessage
	}
	s.dispatch(ctx, s.notification(app, model.NotificationStatusChange, statusChangeTitle, message))

	s.logger.Info("application status changed",
		zap.String("application", app.Number),
		zap.String("from", string(previous)),
		zap.String("to", string(next)),
	)
	return app, true, nil
}

// RejectApplication отклоняет заявление с указанием причины. Если требуется
// обновить документы, заявитель получает отдельное уведомление об этом раньше
// уведомления о смене статуса.
func (s *Service) RejectApplication(ctx context.Context, number string, actor *int64, reason string, documentRenewal bool) (*model.Application, bool, error) {
	app, previous, changed, err := s.transition(ctx, number, model.StatusRejectedByManager, actor, reason, func(a *model.Application) {
		a.RejectionReason = reason
		a.DocumentRenewal = documentRenewal
	})
	if err != nil || !changed {
		return app, false, err
	}

	var notes []model.Notification
	if documentRenewal {
		notes = append(notes, s.notification(app, model.NotificationDocumentRenewal, documentRenewalTitle, documentRenewalText))
	}
	notes = append(notes, s.notification(app, model.NotificationStatusChange, statusChangeTitle, rejectedMessage))
	s.dispatch(ctx, notes...)

	s.logger.Info("application rejected",
		zap.String("application", app.Number),
		zap.String("from", string(previous)),
		zap.Bool("document_renewal", documentRenewal),
	)
	return app, true, nil
}

// transition сохраняет новый статус и запись истории в одной транзакции.
func (s *Service) transition(
	ctx context.Context,
	number string,
	next model.ApplicationStatus,
	actor *int64,
	note string,
	apply func(a *model.Application),
) (*model.Application, model.ApplicationStatus, bool, error) {
	var previous model.ApplicationStatus

	app, err := s.repo.UpdateApplication(ctx, number, func(a *model.Application) (repository.Change, error) {
		if a.Status == next {
			return repository.Change{}, errUnchanged
		}
		if !a.Status.CanTransitionTo(next) {
			return repository.Change{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, next)
		}

		previous = a.Status
		a.Status = next
		if apply != nil {
			apply(a)
		}

		entry := model.StatusHistoryEntry{
			PreviousStatus: previous,
			NewStatus:      next,
			ChangedAt:      s.now(),
			ChangedBy:      actor,
			Notes:          note,
		}
		return repository.Change{History: &entry}, nil
	})
	if errors.Is(err, errUnchanged) {
		current, err := s.repo.GetApplication(ctx, number)
		if err != nil {
			return nil, "", false, err
		}
		return current, current.Status, false, nil
	}
	if err != nil {
		return nil, "", false, err
	}

	s.metrics.StatusTransitions.WithLabelValues(string(previous), string(next)).Inc()
	return app, previous, true, nil
}

func (s *Service) notification(app *model.Application, kind model.NotificationKind, title, message string) model.Notification {
	return model.Notification{
		ID:                uuid.NewString(),
		ApplicationID:     app.ID,
		ApplicationNumber: app.Number,
		ApplicantID:       app.ApplicantID,
		Kind:              kind,
		Title:             title,
		Message:           message,
		CreatedAt:         s.now(),
	}
}

// dispatch отправляет уведомления в фоне, не задерживая и не откатывая переход.
// Контекст запроса не отменяет доставку: она ограничена только notifyTimeout.
func (s *Service) dispatch(ctx context.Context, notes ...model.Notification) {
	if s.notifier == nil || len(notes) == 0 {
		return
	}

	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()

		for _, n := range notes {
			if err := s.notifier.Notify(ctx, n); err != nil {
				s.metrics.NotificationFailures.WithLabelValues(string(n.Kind)).Inc()
				s.logger.Warn("notification delivery failed",
					zap.String("application", n.ApplicationNumber),
					zap.String("kind", string(n.Kind)),
					zap.Error(err),
				)
				continue
			}
			s.metrics.NotificationsSent.WithLabelValues(string(n.Kind)).Inc()
		}
	}()
}
