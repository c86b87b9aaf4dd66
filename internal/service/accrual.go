package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mmeshcher/housing-queue/internal/model"
	"github.com/mmeshcher/housing-queue/internal/repository"
	"github.com/mmeshcher/housing-queue/internal/scoring"
)

const accrualBatchSize = 100

// StartWaitingYearsAccrual запускает по расписанию cron пересчёт срока ожидания
// нерешённых заявлений. Планировщик останавливается вместе с ctx.
func (s *Service) StartWaitingYearsAccrual(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithLocation(time.UTC))

	_, err := c.AddFunc(schedule, func() {
		if n := s.processAccrualBatch(ctx); n > 0 {
			s.logger.Info("waiting years accrued", zap.Int("applications", n))
		}
	})
	if err != nil {
		return fmt.Errorf("parse accrual schedule %q: %w", schedule, err)
	}

	c.Start()

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()

	return nil
}

// processAccrualBatch обновляет срок ожидания и приоритет и возвращает число
// изменённых заявлений. Заявление, которое не удалось обновить, откладывается
// до следующего запуска.
func (s *Service) processAccrualBatch(ctx context.Context) int {
	updated := 0

	for {
		due, err := s.repo.GetApplicationsForAccrual(ctx, accrualBatchSize)
		if err != nil {
			s.logger.Error("select applications for accrual", zap.Error(err))
			return updated
		}

		progress := 0
		for _, d := range due {
			if ctx.Err() != nil {
				return updated
			}

			years := repository.FullYearsBetween(d.SubmittedAt, s.now())
			_, err := s.repo.UpdateApplication(ctx, d.Number, func(a *model.Application) (repository.Change, error) {
				if !a.Status.Unresolved() || years <= a.Household.WaitingYears {
					return repository.Change{}, errUnchanged
				}
				a.Household.WaitingYears = years
				a.PriorityScore = scoring.ComputePriority(a.Household)
				return repository.Change{}, nil
			})
			if errors.Is(err, errUnchanged) {
				continue
			}
			if err != nil {
				s.logger.Warn("accrue waiting years",
					zap.String("application", d.Number),
					zap.Error(err),
				)
				continue
			}

			progress++
			s.metrics.WaitingYearsAccrued.Inc()
		}

		updated += progress
		if len(due) < accrualBatchSize || progress == 0 {
			return updated
		}
	}
}
