// Package notify доставляет уведомления заявителям во внешние системы.
package notify

import (
	"context"
	"errors"

	"github.com/mmeshcher/housing-queue/internal/model"
)

// Notifier принимает уведомление к доставке.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// Nop отбрасывает уведомления. Используется, когда доставка не настроена.
type Nop struct{}

// Notify ничего не делает.
func (Nop) Notify(context.Context, model.Notification) error {
	return nil
}

// Multi передаёт уведомление всем получателям и собирает их ошибки.
type Multi []Notifier

// Notify вызывает каждого получателя, даже если предыдущий вернул ошибку.
func (m Multi) Notify(ctx context.Context, n model.Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
