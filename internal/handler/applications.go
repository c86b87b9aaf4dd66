package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/housing-queue/internal/middleware"
	"github.com/mmeshcher/housing-queue/internal/model"
	"github.com/mmeshcher/housing-queue/internal/service"
	"github.com/mmeshcher/housing-queue/internal/validation"
)

const maxFormBytes = 64 << 10

type applicationRequest struct {
	AdultsCount        int      `json:"adults_count"`
	ChildrenCount      int      `json:"children_count"`
	ElderlyCount       int      `json:"elderly_count"`
	MonthlyIncome      float64  `json:"monthly_income"`
	CurrentLivingArea  *float64 `json:"current_living_area"`
	HasDisability      bool     `json:"has_disability"`
	DisabilityDetails  string   `json:"disability_details"`
	IsVeteran          bool     `json:"is_veteran"`
	IsSingleParent     bool     `json:"is_single_parent"`
	IsHomeless         bool     `json:"is_homeless"`
	IsForWard          bool     `json:"is_for_ward"`
	Category           string   `json:"category"`
	LargeFamilyAward   string   `json:"large_family_award"`
	ResidenceCondition string   `json:"residence_condition"`
	CurrentAddress     string   `json:"current_address"`
	Notes              string   `json:"notes"`
}

func (req applicationRequest) form() model.ApplicationForm {
	return model.ApplicationForm{
		Household: model.HouseholdFacts{
			AdultsCount:    req.AdultsCount,
			ChildrenCount:  req.ChildrenCount,
			ElderlyCount:   req.ElderlyCount,
			MonthlyIncome:  req.MonthlyIncome,
			LivingArea:     req.CurrentLivingArea,
			HasDisability:  req.HasDisability,
			IsVeteran:      req.IsVeteran,
			IsSingleParent: req.IsSingleParent,
			IsHomeless:     req.IsHomeless,
		},
		Category:           model.Category(req.Category),
		LargeFamilyAward:   model.Award(req.LargeFamilyAward),
		IsForWard:          req.IsForWard,
		CurrentAddress:     req.CurrentAddress,
		ResidenceCondition: model.ResidenceCondition(req.ResidenceCondition),
		DisabilityDetails:  req.DisabilityDetails,
		Notes:              req.Notes,
	}
}

type historyResponse struct {
	PreviousStatus string `json:"previous_status,omitempty"`
	NewStatus      string `json:"new_status"`
	ChangedAt      string `json:"changed_at"`
	ChangedBy      string `json:"changed_by"`
	Notes          string `json:"notes,omitempty"`
}

type documentResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Name       string `json:"name"`
	StorageKey string `json:"storage_key"`
	UploadedAt string `json:"uploaded_at"`
}

type applicationResponse struct {
	Number             string   `json:"number"`
	ApplicantIIN       string   `json:"applicant_iin"`
	ApplicantName      string   `json:"applicant_name"`
	Status             string   `json:"status"`
	StatusLabel        string   `json:"status_label"`
	PriorityScore      int      `json:"priority_score"`
	AdultsCount        int      `json:"adults_count"`
	ChildrenCount      int      `json:"children_count"`
	ElderlyCount       int      `json:"elderly_count"`
	MonthlyIncome      float64  `json:"monthly_income"`
	CurrentLivingArea  *float64 `json:"current_living_area"`
	HasDisability      bool     `json:"has_disability"`
	IsVeteran          bool     `json:"is_veteran"`
	IsSingleParent     bool     `json:"is_single_parent"`
	IsHomeless         bool     `json:"is_homeless"`
	WaitingYears       int      `json:"waiting_years"`
	Category           string   `json:"category"`
	LargeFamilyAward   string   `json:"large_family_award,omitempty"`
	ResidenceCondition string   `json:"residence_condition"`
	CurrentAddress     string   `json:"current_address"`
	RejectionReason    string   `json:"rejection_reason,omitempty"`
	DocumentRenewal    bool     `json:"document_renewal"`
	DocumentVerified   bool     `json:"document_verified"`
	SubmittedAt        string   `json:"submitted_at"`
	UpdatedAt          string   `json:"updated_at"`

	QueuePosition *int               `json:"queue_position,omitempty"`
	History       []historyResponse  `json:"history,omitempty"`
	Documents     []documentResponse `json:"documents,omitempty"`
}

func newApplicationResponse(a model.Application) applicationResponse {
	return applicationResponse{
		Number:             a.Number,
		ApplicantIIN:       a.ApplicantIIN,
		ApplicantName:      a.ApplicantName,
		Status:             string(a.Status),
		StatusLabel:        a.Status.Label(),
		PriorityScore:      a.PriorityScore,
		AdultsCount:        a.Household.AdultsCount,
		ChildrenCount:      a.Household.ChildrenCount,
		ElderlyCount:       a.Household.ElderlyCount,
		MonthlyIncome:      a.Household.MonthlyIncome,
		CurrentLivingArea:  a.Household.LivingArea,
		HasDisability:      a.Household.HasDisability,
		IsVeteran:          a.Household.IsVeteran,
		IsSingleParent:     a.Household.IsSingleParent,
		IsHomeless:         a.Household.IsHomeless,
		WaitingYears:       a.Household.WaitingYears,
		Category:           string(a.Category),
		LargeFamilyAward:   string(a.LargeFamilyAward),
		ResidenceCondition: string(a.ResidenceCondition),
		CurrentAddress:     a.CurrentAddress,
		RejectionReason:    a.RejectionReason,
		DocumentRenewal:    a.DocumentRenewal,
		DocumentVerified:   a.DocumentVerified,
		SubmittedAt:        a.SubmittedAt.Format(time.RFC3339),
		UpdatedAt:          a.UpdatedAt.Format(time.RFC3339),
	}
}

func newDocumentResponse(d model.Document) documentResponse {
	return documentResponse{
		ID:         d.ID,
		Type:       string(d.Type),
		Name:       d.Name,
		StorageKey: d.StorageKey,
		UploadedAt: d.UploadedAt.Format(time.RFC3339),
	}
}

// decodeApplication проверяет тело запроса по JSON-схеме и разбирает анкету.
func decodeApplication(r *http.Request) (model.ApplicationForm, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFormBytes))
	if err != nil {
		return model.ApplicationForm{}, fmt.Errorf("%w: read body: %v", validation.ErrSchemaMismatch, err)
	}

	if err := validation.ValidateApplicationPayload(body); err != nil {
		return model.ApplicationForm{}, err
	}

	var req applicationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return model.ApplicationForm{}, fmt.Errorf("%w: %v", validation.ErrSchemaMismatch, err)
	}

	return req.form(), nil
}

// SubmitApplication принимает новое заявление текущего пользователя.
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	form, err := decodeApplication(r)
	if err != nil {
		h.writeError(w, err, "decode application error")
		return
	}

	app, err := h.service.SubmitApplication(r.Context(), userID, form)
	if err != nil {
		h.writeError(w, err, "submit application error", zap.Int64("userID", userID))
		return
	}

	writeJSON(w, http.StatusCreated, newApplicationResponse(*app))
}

// UpdateApplication заменяет анкету заявления текущего пользователя.
func (h *Handler) UpdateApplication(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	number := chi.URLParam(r, "number")
	if !validation.IsValidApplicationNumber(number) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	form, err := decodeApplication(r)
	if err != nil {
		h.writeError(w, err, "decode application error")
		return
	}

	app, err := h.service.UpdateApplication(r.Context(), userID, number, form)
	if err != nil {
		h.writeError(w, err, "update application error", zap.String("application", number))
		return
	}

	writeJSON(w, http.StatusOK, newApplicationResponse(*app))
}

// GetApplications возвращает список заявлений текущего пользователя.
func (h *Handler) GetApplications(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	apps, err := h.service.ListApplicationsByApplicant(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get applications error", zap.Int64("userID", userID))
		return
	}

	if len(apps) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]applicationResponse, 0, len(apps))
	for _, a := range apps {
		resp = append(resp, newApplicationResponse(a))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetApplication возвращает заявление с историей, документами и местом в очереди.
// Чужое заявление доступно только администратору.
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	number := chi.URLParam(r, "number")
	if !validation.IsValidApplicationNumber(number) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	details, err := h.service.GetApplication(r.Context(), number)
	if err != nil {
		h.writeError(w, err, "get application error", zap.String("application", number))
		return
	}

	if details.Application.ApplicantID != p.UserID && !p.IsAdmin {
		h.writeError(w, service.ErrForbidden, "get application error")
		return
	}

	resp := newApplicationResponse(details.Application)
	resp.QueuePosition = details.QueuePosition
	for _, e := range details.History {
		resp.History = append(resp.History, historyResponse{
			PreviousStatus: string(e.PreviousStatus),
			NewStatus:      string(e.NewStatus),
			ChangedAt:      e.ChangedAt.Format(time.RFC3339),
			ChangedBy:      e.ChangedByName,
			Notes:          e.Notes,
		})
	}
	for _, d := range details.Documents {
		resp.Documents = append(resp.Documents, newDocumentResponse(d))
	}

	writeJSON(w, http.StatusOK, resp)
}
