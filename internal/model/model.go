// Package model содержит доменные сущности портала жилищной очереди.
package model

import (
	"fmt"
	"math"
	"time"
)

// User представляет зарегистрированного пользователя портала.
type User struct {
	ID           int64
	IIN          string
	FullName     string
	PasswordHash []byte
	IsAdmin      bool
	CreatedAt    time.Time
}

// ApplicationStatus описывает статус рассмотрения заявления.
type ApplicationStatus string

const (
	StatusSubmitted         ApplicationStatus = "SUBMITTED"
	StatusInQueue           ApplicationStatus = "IN_QUEUE"
	StatusHousingOffered    ApplicationStatus = "HOUSING_OFFERED"
	StatusRejectedByManager ApplicationStatus = "REJECTED_BY_MANAGER"
)

// Valid сообщает, является ли значение известным статусом.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusSubmitted, StatusInQueue, StatusHousingOffered, StatusRejectedByManager:
		return true
	}
	return false
}

// Unresolved сообщает, ожидает ли заявление решения.
func (s ApplicationStatus) Unresolved() bool {
	return s == StatusSubmitted || s == StatusInQueue
}

// CanTransitionTo проверяет допустимость перехода между разными статусами.
// Переход в тот же статус считается пустой операцией и здесь не рассматривается.
func (s ApplicationStatus) CanTransitionTo(next ApplicationStatus) bool {
	switch next {
	case StatusInQueue:
		return s == StatusSubmitted
	case StatusHousingOffered:
		return s == StatusInQueue
	case StatusRejectedByManager:
		return s != StatusRejectedByManager
	}
	return false
}

// Label возвращает человекочитаемое название статуса.
func (s ApplicationStatus) Label() string {
	switch s {
	case StatusSubmitted:
		return "Submitted"
	case StatusInQueue:
		return "In Queue"
	case StatusHousingOffered:
		return "Housing Offered"
	case StatusRejectedByManager:
		return "Rejected by Manager"
	}
	return string(s)
}

// Category описывает льготную категорию заявителя.
type Category string

const (
	CategoryOrphan             Category = "ORPHAN"
	CategoryLargeFamily        Category = "LARGE_FAMILY"
	CategorySocialVulnerable   Category = "SOCIAL_VULNERABLE"
	CategoryGovernmentEmployee Category = "GOVERNMENT_EMPLOYEE"
	CategoryBudgetWorker       Category = "BUDGET_WORKER"
	CategoryMilitary           Category = "MILITARY"
	CategoryAstronaut          Category = "ASTRONAUT"
	CategoryElectedOfficial    Category = "ELECTED_OFFICIAL"
	CategoryEmergencyHousing   Category = "EMERGENCY_HOUSING"
)

// Award описывает награду многодетной семьи.
type Award string

const (
	AwardNone            Award = "NO_AWARD"
	AwardAltynAlqa       Award = "ALTYN_ALQA"
	AwardKumisAlqa       Award = "KUMIS_ALQA"
	AwardMotherHeroine   Award = "MOTHER_HEROINE"
	AwardMaternalGloryI  Award = "MATERNAL_GLORY_I"
	AwardMaternalGloryII Award = "MATERNAL_GLORY_II"
)

// ResidenceCondition описывает состояние текущего жилья.
type ResidenceCondition string

const (
	ResidenceGood     ResidenceCondition = "GOOD"
	ResidenceAdequate ResidenceCondition = "ADEQUATE"
	ResidencePoor     ResidenceCondition = "POOR"
	ResidenceUnsafe   ResidenceCondition = "UNSAFE"
)

// HouseholdFacts содержит сведения о семье, влияющие на приоритет.
type HouseholdFacts struct {
	AdultsCount    int
	ChildrenCount  int
	ElderlyCount   int
	MonthlyIncome  float64
	LivingArea     *float64
	HasDisability  bool
	IsVeteran      bool
	IsSingleParent bool
	IsHomeless     bool
	WaitingYears   int
}

// Normalized возвращает сведения с доходом и площадью, округлёнными до сотых,
// в том виде, в каком они хранятся. Приоритет считается только по таким сведениям.
func (f HouseholdFacts) Normalized() HouseholdFacts {
	f.MonthlyIncome = roundHundredths(f.MonthlyIncome)
	if f.LivingArea != nil {
		area := roundHundredths(*f.LivingArea)
		f.LivingArea = &area
	}
	return f
}

func roundHundredths(v float64) float64 {
	return math.Round(v*100) / 100
}

// Occupants возвращает общее число членов семьи.
func (f HouseholdFacts) Occupants() int {
	return f.AdultsCount + f.ChildrenCount + f.ElderlyCount
}

// ApplicationForm содержит данные, которые заявитель заполняет сам.
type ApplicationForm struct {
	Household          HouseholdFacts
	Category           Category
	LargeFamilyAward   Award
	IsForWard          bool
	CurrentAddress     string
	ResidenceCondition ResidenceCondition
	DisabilityDetails  string
	Notes              string
}

// Application описывает заявление семьи на жилищную помощь.
type Application struct {
	ID            int64
	Seq           int64
	Number        string
	ApplicantID   int64
	ApplicantIIN  string
	ApplicantName string

	ApplicationForm

	Status           ApplicationStatus
	RejectionReason  string
	DocumentRenewal  bool
	DocumentVerified bool
	PriorityScore    int

	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// FormatApplicationNumber формирует номер заявления по порядковому номеру.
func FormatApplicationNumber(seq int64) string {
	return fmt.Sprintf("APP%06d", seq)
}

// StatusHistoryEntry фиксирует один переход статуса заявления.
type StatusHistoryEntry struct {
	ID             int64
	ApplicationID  int64
	PreviousStatus ApplicationStatus
	NewStatus      ApplicationStatus
	ChangedAt      time.Time
	ChangedBy      *int64
	ChangedByName  string
	Notes          string
}

// SystemActorName подставляется вместо имени, если переход выполнен без пользователя.
const SystemActorName = "System"

// DocumentType описывает категорию подтверждающего документа.
type DocumentType string

const (
	DocumentIDProof               DocumentType = "ID_PROOF"
	DocumentIncomeStatement       DocumentType = "INCOME_STATEMENT"
	DocumentDisabilityCertificate DocumentType = "DISABILITY_CERTIFICATE"
	DocumentVeteranStatus         DocumentType = "VETERAN_STATUS"
	DocumentSingleParentProof     DocumentType = "SINGLE_PARENT_PROOF"
	DocumentOther                 DocumentType = "OTHER"
)

// Document описывает загруженный документ. Файл хранится во внешнем хранилище,
// здесь остаётся только ссылка на него.
type Document struct {
	ID            string
	ApplicationID int64
	Type          DocumentType
	Name          string
	StorageKey    string
	UploadedAt    time.Time
	RetiredAt     *time.Time
}

// NotificationKind описывает тип уведомления заявителю.
type NotificationKind string

const (
	NotificationStatusChange    NotificationKind = "STATUS_CHANGE"
	NotificationDocumentRenewal NotificationKind = "DOCUMENT_RENEWAL"
)

// Notification описывает уведомление, передаваемое внешней системе доставки.
type Notification struct {
	ID                string           `json:"id"`
	ApplicationID     int64            `json:"application_id"`
	ApplicationNumber string           `json:"application_number"`
	ApplicantID       int64            `json:"applicant_id"`
	Kind              NotificationKind `json:"kind"`
	Title             string           `json:"title"`
	Message           string           `json:"message"`
	CreatedAt         time.Time        `json:"created_at"`
}

// ApplicationDetails объединяет заявление, его историю, документы и место в очереди.
type ApplicationDetails struct {
	Application   Application
	History       []StatusHistoryEntry
	Documents     []Document
	QueuePosition *int
}

// QueueCheck содержит результат публичной проверки очереди по ИИН.
type QueueCheck struct {
	Applications []Application
	Positions    map[string]int
	TotalInQueue int
}
