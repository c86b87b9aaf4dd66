package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mmeshcher/housing-queue/internal/model"
)

func area(v float64) *float64 {
	return &v
}

func TestIncomePoints(t *testing.T) {
	tests := []struct {
		name   string
		income float64
		want   int
	}{
		{name: "zero income", income: 0, want: 20},
		{name: "half of reference", income: 50000, want: 10},
		{name: "reference income", income: 100000, want: 0},
		{name: "above reference", income: 250000, want: 0},
		{name: "just below reference", income: 99999.99, want: 0},
		{name: "floored", income: 4999.99, want: 19},
		{name: "five percent", income: 5000, want: 19},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IncomePoints(tt.income))
		})
	}
}

func TestDensityPoints(t *testing.T) {
	tests := []struct {
		name  string
		facts model.HouseholdFacts
		want  int
	}{
		{
			name:  "exactly six per person is not below six",
			facts: model.HouseholdFacts{AdultsCount: 5, ChildrenCount: 5, LivingArea: area(60)},
			want:  10,
		},
		{
			name:  "just below six per person",
			facts: model.HouseholdFacts{AdultsCount: 5, ChildrenCount: 5, LivingArea: area(59.99)},
			want:  15,
		},
		{
			name:  "single occupant 5.99",
			facts: model.HouseholdFacts{AdultsCount: 1, LivingArea: area(5.99)},
			want:  15,
		},
		{
			name:  "between ten and fifteen",
			facts: model.HouseholdFacts{AdultsCount: 2, LivingArea: area(24)},
			want:  5,
		},
		{
			name:  "fifteen and more",
			facts: model.HouseholdFacts{AdultsCount: 2, LivingArea: area(30)},
			want:  0,
		},
		{
			name:  "unknown area",
			facts: model.HouseholdFacts{AdultsCount: 3},
			want:  0,
		},
		{
			name:  "no occupants",
			facts: model.HouseholdFacts{LivingArea: area(40)},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DensityPoints(tt.facts))
		})
	}
}

func TestComputePriority(t *testing.T) {
	facts := model.HouseholdFacts{
		AdultsCount:    2,
		ChildrenCount:  3,
		ElderlyCount:   1,
		MonthlyIncome:  50000,
		LivingArea:     area(30),
		HasDisability:  true,
		IsVeteran:      true,
		IsSingleParent: true,
		WaitingYears:   4,
	}

	// 10 (доход) + 30 (дети) + 15 + 15 (5 м² на человека) + 10 + 10 + 20
	assert.Equal(t, 110, ComputePriority(facts))
	assert.Equal(t, ComputePriority(facts), ComputePriority(facts))
}

func TestComputePriority_ZeroOccupantsDoesNotPanic(t *testing.T) {
	facts := model.HouseholdFacts{LivingArea: area(50), MonthlyIncome: 200000}
	assert.NotPanics(t, func() {
		assert.Equal(t, 0, ComputePriority(facts))
	})
}

func TestComputePriority_Monotonic(t *testing.T) {
	base := model.HouseholdFacts{
		AdultsCount:   2,
		ChildrenCount: 1,
		MonthlyIncome: 80000,
		LivingArea:    area(70),
		WaitingYears:  1,
	}
	baseScore := ComputePriority(base)

	bumps := map[string]func(f *model.HouseholdFacts){
		"children":      func(f *model.HouseholdFacts) { f.ChildrenCount++ },
		"waiting years": func(f *model.HouseholdFacts) { f.WaitingYears++ },
		"disability":    func(f *model.HouseholdFacts) { f.HasDisability = true },
		"veteran":       func(f *model.HouseholdFacts) { f.IsVeteran = true },
		"single parent": func(f *model.HouseholdFacts) { f.IsSingleParent = true },
	}

	for name, bump := range bumps {
		t.Run(name, func(t *testing.T) {
			f := base
			bump(&f)
			assert.GreaterOrEqual(t, ComputePriority(f), baseScore)
		})
	}
}
