package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mmeshcher/housing-queue/internal/model"
	"github.com/mmeshcher/housing-queue/internal/validation"
)

// AttachDocument делает документ текущим для категории, заменяя прежний.
// storageKey выдаёт внешнее хранилище файлов.
func (s *Service) AttachDocument(ctx context.Context, applicantID int64, number string, docType model.DocumentType, name, storageKey string) (*model.Document, error) {
	if !validation.IsValidDocumentType(docType) {
		return nil, fmt.Errorf("%w: unknown type %q", validation.ErrInvalidDocument, docType)
	}
	if strings.TrimSpace(storageKey) == "" {
		return nil, fmt.Errorf("%w: storage key is required", validation.ErrInvalidDocument)
	}

	app, err := s.documentTarget(ctx, applicantID, number)
	if err != nil {
		return nil, err
	}

	doc := model.Document{
		ID:            uuid.NewString(),
		ApplicationID: app.ID,
		Type:          docType,
		Name:          name,
		StorageKey:    storageKey,
		UploadedAt:    s.now(),
	}
	if err := s.repo.ReplaceDocument(ctx, doc); err != nil {
		return nil, err
	}

	return &doc, nil
}

// RemoveDocument выводит из обращения текущий документ категории.
func (s *Service) RemoveDocument(ctx context.Context, applicantID int64, number string, docType model.DocumentType) error {
	if !validation.IsValidDocumentType(docType) {
		return fmt.Errorf("%w: unknown type %q", validation.ErrInvalidDocument, docType)
	}

	app, err := s.documentTarget(ctx, applicantID, number)
	if err != nil {
		return err
	}

	removed, err := s.repo.RetireDocument(ctx, app.ID, docType)
	if err != nil {
		return err
	}
	if !removed {
		return ErrDocumentNotFound
	}
	return nil
}

// documentTarget возвращает заявление, документы которого владелец может менять:
// до рассмотрения или после запроса на обновление документов.
func (s *Service) documentTarget(ctx context.Context, applicantID int64, number string) (*model.Application, error) {
	app, err := s.repo.GetApplication(ctx, number)
	if err != nil {
		return nil, err
	}
	if app.ApplicantID != applicantID {
		return nil, ErrForbidden
	}
	if app.Status != model.StatusSubmitted && !app.DocumentRenewal {
		return nil, ErrNotEditable
	}
	return app, nil
}
