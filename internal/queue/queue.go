// Package queue упорядочивает заявления, стоящие в очереди, и вычисляет их позиции.
//
// Порядок: приоритет по убыванию, затем время подачи по возрастанию, затем
// порядковый номер заявления. Последний ключ делает порядок полным даже при
// совпадающих отметках времени.
package queue

import (
	"errors"
	"sort"
	"strings"

	"github.com/mmeshcher/housing-queue/internal/model"
)

// PageSize задаёт число записей на странице списка очереди.
const PageSize = 10

var (
	// ErrEmptyQueue возвращается, если в очереди нет ни одного заявления.
	ErrEmptyQueue = errors.New("queue is empty")
	// ErrNotInQueue возвращается для заявления, которое не стоит в очереди.
	ErrNotInQueue = errors.New("application is not in queue")
)

// Entry связывает заявление с его местом в очереди.
type Entry struct {
	Rank        int
	Application model.Application
}

// Filter задаёт необязательные условия выборки из очереди.
type Filter struct {
	IIN  string
	From *int
	To   *int
}

// Page описывает одну страницу списка очереди.
type Page struct {
	Entries      []Entry
	Number       int
	TotalPages   int
	TotalEntries int
}

// Less сообщает, стоит ли заявление a в очереди раньше b.
func Less(a, b model.Application) bool {
	if a.PriorityScore != b.PriorityScore {
		return a.PriorityScore > b.PriorityScore
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.Seq < b.Seq
}

// Rank возвращает заявления со статусом IN_QUEUE в порядке очереди с номерами от 1.
// Входной срез не изменяется.
func Rank(apps []model.Application) []Entry {
	members := make([]model.Application, 0, len(apps))
	for _, a := range apps {
		if a.Status == model.StatusInQueue {
			members = append(members, a)
		}
	}

	sort.SliceStable(members, func(i, j int) bool {
		return Less(members[i], members[j])
	})

	entries := make([]Entry, len(members))
	for i, a := range members {
		entries[i] = Entry{Rank: i + 1, Application: a}
	}
	return entries
}

// Position возвращает место заявления с указанным номером: число заявлений
// впереди плюс один.
func Position(apps []model.Application, number string) (int, error) {
	var (
		target  *model.Application
		members int
	)
	for i := range apps {
		if apps[i].Status != model.StatusInQueue {
			continue
		}
		members++
		if apps[i].Number == number {
			target = &apps[i]
		}
	}

	if members == 0 {
		return 0, ErrEmptyQueue
	}
	if target == nil {
		return 0, ErrNotInQueue
	}

	ahead := 0
	for _, a := range apps {
		if a.Status == model.StatusInQueue && a.Number != number && Less(a, *target) {
			ahead++
		}
	}
	return ahead + 1, nil
}

// List возвращает страницу очереди. Места назначаются по всей очереди до
// применения фильтра, так что отфильтрованные записи сохраняют свои номера.
// Страница меньше 1 заменяется первой, страница за концом списка заменяется последней.
func List(apps []model.Application, filter Filter, page int) Page {
	ranked := Rank(apps)

	filtered := make([]Entry, 0, len(ranked))
	for _, e := range ranked {
		if filter.matches(e) {
			filtered = append(filtered, e)
		}
	}

	totalPages := (len(filtered) + PageSize - 1) / PageSize
	if totalPages == 0 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * PageSize
	end := start + PageSize
	if end > len(filtered) {
		end = len(filtered)
	}

	return Page{
		Entries:      filtered[start:end],
		Number:       page,
		TotalPages:   totalPages,
		TotalEntries: len(filtered),
	}
}

func (f Filter) matches(e Entry) bool {
	if f.IIN != "" && !strings.Contains(strings.ToLower(e.Application.ApplicantIIN), strings.ToLower(f.IIN)) {
		return false
	}
	if f.From != nil && e.Rank < *f.From {
		return false
	}
	if f.To != nil && e.Rank > *f.To {
		return false
	}
	return true
}
