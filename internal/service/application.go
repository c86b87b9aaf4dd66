package service

import (
	"context"
	"errors"

	"github.com/mmeshcher/housing-queue/internal/model"
	"github.com/mmeshcher/housing-queue/internal/queue"
	"github.com/mmeshcher/housing-queue/internal/repository"
	"github.com/mmeshcher/housing-queue/internal/scoring"
	"github.com/mmeshcher/housing-queue/internal/validation"
)

const submittedNote = "Application submitted"

// flagDocuments связывает флаги семьи с документами, которые их подтверждают.
var flagDocuments = []struct {
	flag    func(model.HouseholdFacts) bool
	docType model.DocumentType
}{
	{flag: func(f model.HouseholdFacts) bool { return f.IsVeteran }, docType: model.DocumentVeteranStatus},
	{flag: func(f model.HouseholdFacts) bool { return f.IsSingleParent }, docType: model.DocumentSingleParentProof},
	{flag: func(f model.HouseholdFacts) bool { return f.HasDisability }, docType: model.DocumentDisabilityCertificate},
}

// SubmitApplication проверяет анкету, считает приоритет и сохраняет новое заявление.
func (s *Service) SubmitApplication(ctx context.Context, applicantID int64, form model.ApplicationForm) (*model.Application, error) {
	form.Household = form.Household.Normalized()
	if err := validation.ValidateForm(form); err != nil {
		return nil, err
	}

	form.Household.WaitingYears = 0

	app := model.Application{
		ApplicantID:     applicantID,
		ApplicationForm: form,
		Status:          model.StatusSubmitted,
		PriorityScore:   scoring.ComputePriority(form.Household),
	}

	entry := model.StatusHistoryEntry{
		NewStatus: model.StatusSubmitted,
		ChangedAt: s.now(),
		ChangedBy: &applicantID,
		Notes:     submittedNote,
	}

	created, err := s.repo.CreateApplication(ctx, app, entry)
	if err != nil {
		return nil, err
	}

	s.metrics.PriorityScore.Observe(float64(created.PriorityScore))
	return created, nil
}

// UpdateApplication заменяет анкету заявления, пока оно не принято к рассмотрению.
// Документы, подтверждавшие снятые флаги, выводятся из обращения в той же транзакции.
func (s *Service) UpdateApplication(ctx context.Context, applicantID int64, number string, form model.ApplicationForm) (*model.Application, error) {
	form.Household = form.Household.Normalized()
	if err := validation.ValidateForm(form); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateApplication(ctx, number, func(a *model.Application) (repository.Change, error) {
		if a.ApplicantID != applicantID {
			return repository.Change{}, ErrForbidden
		}
		if a.Status != model.StatusSubmitted {
			return repository.Change{}, ErrNotEditable
		}

		var retire []model.DocumentType
		for _, fd := range flagDocuments {
			if fd.flag(a.Household) && !fd.flag(form.Household) {
				retire = append(retire, fd.docType)
			}
		}

		waitingYears := a.Household.WaitingYears
		a.ApplicationForm = form
		a.Household.WaitingYears = waitingYears
		a.PriorityScore = scoring.ComputePriority(a.Household)

		return repository.Change{RetireDocuments: retire}, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PriorityScore.Observe(float64(updated.PriorityScore))
	return updated, nil
}

// GetApplication возвращает заявление с историей, документами и местом в очереди.
func (s *Service) GetApplication(ctx context.Context, number string) (*model.ApplicationDetails, error) {
	app, err := s.repo.GetApplication(ctx, number)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.GetHistory(ctx, app.ID)
	if err != nil {
		return nil, err
	}

	docs, err := s.repo.GetDocuments(ctx, app.ID)
	if err != nil {
		return nil, err
	}

	details := &model.ApplicationDetails{
		Application: *app,
		History:     history,
		Documents:   docs,
	}

	if app.Status == model.StatusInQueue {
		snapshot, err := s.queueSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		// Статус мог смениться между чтениями: тогда места просто нет.
		if pos, err := queue.Position(snapshot, app.Number); err == nil {
			details.QueuePosition = &pos
		}
	}

	return details, nil
}

// ListApplicationsByApplicant возвращает заявления пользователя.
func (s *Service) ListApplicationsByApplicant(ctx context.Context, applicantID int64) ([]model.Application, error) {
	return s.repo.GetApplicationsByApplicant(ctx, applicantID)
}

// CheckQueue возвращает заявления владельца ИИН и места тех из них, что стоят в очереди.
func (s *Service) CheckQueue(ctx context.Context, iin string) (*model.QueueCheck, error) {
	if !validation.IsValidIIN(iin) {
		return nil, validation.ErrInvalidIIN
	}

	u, err := s.repo.GetUserByIIN(ctx, iin)
	if err != nil {
		return nil, err
	}

	apps, err := s.repo.GetApplicationsByApplicant(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.queueSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	ranked := queue.Rank(snapshot)
	positions := make(map[string]int)
	for _, e := range ranked {
		if e.Application.ApplicantID == u.ID {
			positions[e.Application.Number] = e.Rank
		}
	}

	return &model.QueueCheck{
		Applications: apps,
		Positions:    positions,
		TotalInQueue: len(ranked),
	}, nil
}

// ListQueue возвращает страницу очереди с учётом фильтров.
func (s *Service) ListQueue(ctx context.Context, filter queue.Filter, page int) (queue.Page, error) {
	if filter.IIN != "" && !validation.IsValidIINFragment(filter.IIN) {
		return queue.Page{}, validation.ErrInvalidIIN
	}

	snapshot, err := s.queueSnapshot(ctx)
	if err != nil {
		return queue.Page{}, err
	}

	return queue.List(snapshot, filter, page), nil
}

// QueuePosition возвращает место заявления в очереди.
func (s *Service) QueuePosition(ctx context.Context, number string) (int, error) {
	snapshot, err := s.queueSnapshot(ctx)
	if err != nil {
		return 0, err
	}

	pos, err := queue.Position(snapshot, number)
	if errors.Is(err, queue.ErrNotInQueue) || errors.Is(err, queue.ErrEmptyQueue) {
		if _, getErr := s.repo.GetApplication(ctx, number); getErr != nil {
			return 0, getErr
		}
	}
	return pos, err
}

func (s *Service) queueSnapshot(ctx context.Context) ([]model.Application, error) {
	snapshot, err := s.repo.GetQueueSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.QueueSize.Set(float64(len(snapshot)))
	return snapshot, nil
}
