// Package repository содержит реализации хранилища заявлений: PostgreSQL и in-memory.
package repository

import (
	"errors"
	"time"

	"github.com/mmeshcher/housing-queue/internal/model"
)

// ErrUserExists возвращается при попытке создать пользователя с уже существующим ИИН.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrApplicationNotFound возвращается, если заявление не найдено.
	ErrApplicationNotFound = errors.New("application not found")
)

// Change описывает записи, которые сохраняются в одной транзакции с изменённым заявлением.
type Change struct {
	History         *model.StatusHistoryEntry
	RetireDocuments []model.DocumentType
}

// MutateFunc изменяет заявление, заблокированное на время транзакции.
// Ошибка отменяет транзакцию целиком.
type MutateFunc func(app *model.Application) (Change, error)

// ApplicationForAccrual описывает нерешённое заявление, у которого пора увеличить срок ожидания.
type ApplicationForAccrual struct {
	Number       string
	SubmittedAt  time.Time
	WaitingYears int
}

// FullYearsBetween возвращает число полных лет между двумя моментами.
func FullYearsBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	years := to.Year() - from.Year()
	if from.AddDate(years, 0, 0).After(to) {
		years--
	}
	return years
}
