package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mmeshcher/housing-queue/internal/model"
)

const (
	maxMembersPerGroup = 50
	// numeric(10,2) в исходной схеме
	maxAmount = 99999999.99
)

var (
	// ErrInvalidHousehold возвращается при недопустимом составе или доходе семьи.
	ErrInvalidHousehold = errors.New("invalid household data")
	// ErrInvalidForm возвращается при недопустимых прочих полях заявления.
	ErrInvalidForm = errors.New("invalid application form")
	// ErrInvalidDocument возвращается при неизвестной категории или пустой ссылке на документ.
	ErrInvalidDocument = errors.New("invalid document")
)

var (
	categories = map[model.Category]struct{}{
		model.CategoryOrphan:             {},
		model.CategoryLargeFamily:        {},
		model.CategorySocialVulnerable:   {},
		model.CategoryGovernmentEmployee: {},
		model.CategoryBudgetWorker:       {},
		model.CategoryMilitary:           {},
		model.CategoryAstronaut:          {},
		model.CategoryElectedOfficial:    {},
		model.CategoryEmergencyHousing:   {},
	}
	awards = map[model.Award]struct{}{
		model.AwardNone:            {},
		model.AwardAltynAlqa:       {},
		model.AwardKumisAlqa:       {},
		model.AwardMotherHeroine:   {},
		model.AwardMaternalGloryI:  {},
		model.AwardMaternalGloryII: {},
	}
	conditions = map[model.ResidenceCondition]struct{}{
		model.ResidenceGood:     {},
		model.ResidenceAdequate: {},
		model.ResidencePoor:     {},
		model.ResidenceUnsafe:   {},
	}
	documentTypes = map[model.DocumentType]struct{}{
		model.DocumentIDProof:               {},
		model.DocumentIncomeStatement:       {},
		model.DocumentDisabilityCertificate: {},
		model.DocumentVeteranStatus:         {},
		model.DocumentSingleParentProof:     {},
		model.DocumentOther:                 {},
	}
)

// ValidateHousehold проверяет сведения о семье до расчёта приоритета.
// Хотя бы один взрослый обязателен, поэтому делитель плотности всегда положителен.
func ValidateHousehold(f model.HouseholdFacts) error {
	switch {
	case f.AdultsCount < 1 || f.AdultsCount > maxMembersPerGroup:
		return fmt.Errorf("%w: adults count %d out of range", ErrInvalidHousehold, f.AdultsCount)
	case f.ChildrenCount < 0 || f.ChildrenCount > maxMembersPerGroup:
		return fmt.Errorf("%w: children count %d out of range", ErrInvalidHousehold, f.ChildrenCount)
	case f.ElderlyCount < 0 || f.ElderlyCount > maxMembersPerGroup:
		return fmt.Errorf("%w: elderly count %d out of range", ErrInvalidHousehold, f.ElderlyCount)
	case f.MonthlyIncome < 0 || f.MonthlyIncome > maxAmount:
		return fmt.Errorf("%w: monthly income out of range", ErrInvalidHousehold)
	case f.LivingArea != nil && (*f.LivingArea < 0 || *f.LivingArea > maxAmount):
		return fmt.Errorf("%w: living area out of range", ErrInvalidHousehold)
	case f.WaitingYears < 0:
		return fmt.Errorf("%w: negative waiting years", ErrInvalidHousehold)
	}
	return nil
}

// ValidateForm проверяет анкету заявления целиком.
func ValidateForm(form model.ApplicationForm) error {
	if err := ValidateHousehold(form.Household); err != nil {
		return err
	}
	if _, ok := categories[form.Category]; !ok {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidForm, form.Category)
	}
	if form.LargeFamilyAward != "" {
		if _, ok := awards[form.LargeFamilyAward]; !ok {
			return fmt.Errorf("%w: unknown award %q", ErrInvalidForm, form.LargeFamilyAward)
		}
	}
	if _, ok := conditions[form.ResidenceCondition]; !ok {
		return fmt.Errorf("%w: unknown residence condition %q", ErrInvalidForm, form.ResidenceCondition)
	}
	if strings.TrimSpace(form.CurrentAddress) == "" {
		return fmt.Errorf("%w: current address is required", ErrInvalidForm)
	}
	return nil
}

// IsValidDocumentType проверяет категорию документа.
func IsValidDocumentType(t model.DocumentType) bool {
	_, ok := documentTypes[t]
	return ok
}
