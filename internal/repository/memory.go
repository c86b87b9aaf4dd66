package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/housing-queue/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Используется, когда
// DATABASE_URI не задан, и в тестах сервиса.
type MemoryRepository struct {
	mu  sync.Mutex
	now func() time.Time

	users      map[int64]model.User
	usersByIIN map[string]int64
	nextUserID int64

	apps      map[int64]model.Application
	byNumber  map[string]int64
	nextAppID int64
	nextSeq   int64

	history       []model.StatusHistoryEntry
	nextHistoryID int64

	documents []model.Document
}

// MemoryOption настраивает MemoryRepository.
type MemoryOption func(*MemoryRepository)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) MemoryOption {
	return func(r *MemoryRepository) {
		r.now = now
	}
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository(opts ...MemoryOption) *MemoryRepository {
	r := &MemoryRepository{
		now:        func() time.Time { return time.Now().UTC() },
		users:      make(map[int64]model.User),
		usersByIIN: make(map[string]int64),
		apps:       make(map[int64]model.Application),
		byNumber:   make(map[string]int64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close ничего не делает и нужен для совместимости с PostgresRepository.
func (r *MemoryRepository) Close() error {
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *MemoryRepository) CreateUser(_ context.Context, u model.User) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.usersByIIN[u.IIN]; ok {
		return 0, fmt.Errorf("%w: %s", ErrUserExists, u.IIN)
	}

	r.nextUserID++
	u.ID = r.nextUserID
	u.CreatedAt = r.now()
	r.users[u.ID] = u
	r.usersByIIN[u.IIN] = u.ID

	return u.ID, nil
}

// GetUserByIIN возвращает пользователя по ИИН.
func (r *MemoryRepository) GetUserByIIN(_ context.Context, iin string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.usersByIIN[iin]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := r.users[id]
	return &u, nil
}

// CreateApplication сохраняет новое заявление вместе с первой записью истории.
func (r *MemoryRepository) CreateApplication(_ context.Context, app model.Application, entry model.StatusHistoryEntry) (*model.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[app.ApplicantID]; !ok {
		return nil, ErrUserNotFound
	}

	// Номер расходуется даже при неудаче, как nextval в PostgreSQL.
	r.nextSeq++
	app.Seq = r.nextSeq
	app.Number = model.FormatApplicationNumber(app.Seq)
	app.ID = r.nextAppID + 1
	app.SubmittedAt = r.now()
	app.UpdatedAt = app.SubmittedAt

	entry.ApplicationID = app.ID
	if err := r.appendHistory(entry); err != nil {
		return nil, err
	}

	r.nextAppID = app.ID
	r.apps[app.ID] = app
	r.byNumber[app.Number] = app.ID

	res := r.withApplicant(app)
	return &res, nil
}

// GetApplication возвращает заявление по номеру.
func (r *MemoryRepository) GetApplication(_ context.Context, number string) (*model.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byNumber[number]
	if !ok {
		return nil, ErrApplicationNotFound
	}
	a := r.withApplicant(r.apps[id])
	return &a, nil
}

// GetApplicationsByApplicant возвращает заявления пользователя, новые первыми.
func (r *MemoryRepository) GetApplicationsByApplicant(_ context.Context, applicantID int64) ([]model.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Application
	for _, a := range r.apps {
		if a.ApplicantID == applicantID {
			res = append(res, r.withApplicant(a))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].SubmittedAt.Equal(res[j].SubmittedAt) {
			return res[i].SubmittedAt.After(res[j].SubmittedAt)
		}
		return res[i].Seq > res[j].Seq
	})
	return res, nil
}

// GetQueueSnapshot возвращает копии всех заявлений со статусом IN_QUEUE.
func (r *MemoryRepository) GetQueueSnapshot(_ context.Context) ([]model.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Application
	for _, a := range r.apps {
		if a.Status == model.StatusInQueue {
			res = append(res, r.withApplicant(a))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Seq < res[j].Seq })
	return res, nil
}

// UpdateApplication применяет mutate к копии заявления и сохраняет результат
// только если запись истории тоже удалась.
func (r *MemoryRepository) UpdateApplication(_ context.Context, number string, mutate MutateFunc) (*model.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byNumber[number]
	if !ok {
		return nil, ErrApplicationNotFound
	}

	a := r.withApplicant(r.apps[id])
	if a.Household.LivingArea != nil {
		area := *a.Household.LivingArea
		a.Household.LivingArea = &area
	}

	change, err := mutate(&a)
	if err != nil {
		return nil, err
	}

	if change.History != nil {
		entry := *change.History
		entry.ApplicationID = a.ID
		if err := r.appendHistory(entry); err != nil {
			return nil, err
		}
	}

	a.UpdatedAt = r.now()
	r.apps[id] = a

	if len(change.RetireDocuments) > 0 {
		retired := r.now()
		for i := range r.documents {
			d := &r.documents[i]
			if d.ApplicationID != a.ID || d.RetiredAt != nil {
				continue
			}
			for _, t := range change.RetireDocuments {
				if d.Type == t {
					d.RetiredAt = &retired
				}
			}
		}
	}

	return &a, nil
}

// appendHistory проверяет автора записи так же, как внешний ключ changed_by в PostgreSQL.
func (r *MemoryRepository) appendHistory(entry model.StatusHistoryEntry) error {
	if entry.ChangedBy != nil {
		if _, ok := r.users[*entry.ChangedBy]; !ok {
			return fmt.Errorf("insert history: %w", ErrUserNotFound)
		}
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = r.now()
	}
	r.nextHistoryID++
	entry.ID = r.nextHistoryID
	r.history = append(r.history, entry)
	return nil
}

// GetHistory возвращает историю статусов заявления, новые записи первыми.
func (r *MemoryRepository) GetHistory(_ context.Context, applicationID int64) ([]model.StatusHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.StatusHistoryEntry
	for _, e := range r.history {
		if e.ApplicationID != applicationID {
			continue
		}
		e.ChangedByName = model.SystemActorName
		if e.ChangedBy != nil {
			if u, ok := r.users[*e.ChangedBy]; ok {
				e.ChangedByName = u.FullName
			}
		}
		res = append(res, e)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].ChangedAt.Equal(res[j].ChangedAt) {
			return res[i].ChangedAt.After(res[j].ChangedAt)
		}
		return res[i].ID > res[j].ID
	})
	return res, nil
}

// ReplaceDocument делает документ текущим для своей категории.
func (r *MemoryRepository) ReplaceDocument(_ context.Context, doc model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.retire(doc.ApplicationID, doc.Type)
	doc.RetiredAt = nil
	r.documents = append(r.documents, doc)
	return nil
}

// RetireDocument выводит из обращения текущий документ категории.
func (r *MemoryRepository) RetireDocument(_ context.Context, applicationID int64, docType model.DocumentType) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.retire(applicationID, docType), nil
}

func (r *MemoryRepository) retire(applicationID int64, docType model.DocumentType) bool {
	retired := false
	now := r.now()
	for i := range r.documents {
		d := &r.documents[i]
		if d.ApplicationID == applicationID && d.Type == docType && d.RetiredAt == nil {
			d.RetiredAt = &now
			retired = true
		}
	}
	return retired
}

// GetDocuments возвращает текущие документы заявления.
func (r *MemoryRepository) GetDocuments(_ context.Context, applicationID int64) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Document
	for _, d := range r.documents {
		if d.ApplicationID == applicationID && d.RetiredAt == nil {
			res = append(res, d)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Type < res[j].Type })
	return res, nil
}

// GetApplicationsForAccrual возвращает нерешённые заявления с устаревшим сроком ожидания.
func (r *MemoryRepository) GetApplicationsForAccrual(_ context.Context, limit int) ([]ApplicationForAccrual, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var res []ApplicationForAccrual
	for _, a := range r.apps {
		if !a.Status.Unresolved() {
			continue
		}
		if FullYearsBetween(a.SubmittedAt, now) <= a.Household.WaitingYears {
			continue
		}
		res = append(res, ApplicationForAccrual{
			Number:       a.Number,
			SubmittedAt:  a.SubmittedAt,
			WaitingYears: a.Household.WaitingYears,
		})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].SubmittedAt.Before(res[j].SubmittedAt) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *MemoryRepository) withApplicant(a model.Application) model.Application {
	if u, ok := r.users[a.ApplicantID]; ok {
		a.ApplicantIIN = u.IIN
		a.ApplicantName = u.FullName
	}
	return a
}
