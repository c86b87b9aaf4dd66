// Package scoring вычисляет приоритет заявления по сведениям о семье.
package scoring

import (
	"math"

	"github.com/mmeshcher/housing-queue/internal/model"
)

const (
	// ReferenceIncome задаёт доход, начиная с которого доходный фактор равен нулю.
	ReferenceIncome = 100000

	maxIncomePoints      = 20
	pointsPerChild       = 10
	disabilityPoints     = 15
	veteranPoints        = 10
	singleParentPoints   = 10
	pointsPerWaitingYear = 5
)

// Пороги плотности в квадратных метрах на человека, проверяются строго по возрастанию.
var densityBands = []struct {
	below  float64
	points int
}{
	{below: 6, points: 15},
	{below: 10, points: 10},
	{below: 15, points: 5},
}

// ComputePriority возвращает приоритет заявления. Функция чистая и определена
// для любых допустимых сведений: при неполных данных о площади фактор плотности
// просто не учитывается.
func ComputePriority(f model.HouseholdFacts) int {
	score := IncomePoints(f.MonthlyIncome)
	score += pointsPerChild * f.ChildrenCount
	if f.HasDisability {
		score += disabilityPoints
	}
	score += DensityPoints(f)
	if f.IsVeteran {
		score += veteranPoints
	}
	if f.IsSingleParent {
		score += singleParentPoints
	}
	score += pointsPerWaitingYear * f.WaitingYears
	return score
}

// IncomePoints вычисляет доходный фактор: floor(20 * (ref - income) / ref).
// Расчёт ведётся в копейках, чтобы не терять точность на границах.
func IncomePoints(monthlyIncome float64) int {
	const refCents = int64(ReferenceIncome) * 100

	incomeCents := toHundredths(monthlyIncome)
	if incomeCents >= refCents {
		return 0
	}
	if incomeCents < 0 {
		incomeCents = 0
	}
	return int(maxIncomePoints * (refCents - incomeCents) / refCents)
}

// DensityPoints вычисляет фактор плотности проживания. Вместо деления площади
// на число жильцов порог умножается на него, поэтому граница 6 м² точная.
func DensityPoints(f model.HouseholdFacts) int {
	occupants := f.Occupants()
	if occupants <= 0 || f.LivingArea == nil {
		return 0
	}

	area := *f.LivingArea
	for _, band := range densityBands {
		if area < band.below*float64(occupants) {
			return band.points
		}
	}
	return 0
}

func toHundredths(v float64) int64 {
	return int64(math.Round(v * 100))
}
