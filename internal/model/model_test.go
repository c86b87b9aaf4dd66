package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from ApplicationStatus
		to   ApplicationStatus
		want bool
	}{
		{StatusSubmitted, StatusInQueue, true},
		{StatusInQueue, StatusHousingOffered, true},
		{StatusSubmitted, StatusHousingOffered, false},
		{StatusInQueue, StatusSubmitted, false},
		{StatusHousingOffered, StatusInQueue, false},
		{StatusSubmitted, StatusRejectedByManager, true},
		{StatusInQueue, StatusRejectedByManager, true},
		{StatusHousingOffered, StatusRejectedByManager, true},
		{StatusRejectedByManager, StatusInQueue, false},
		{StatusRejectedByManager, StatusSubmitted, false},
		{StatusSubmitted, ApplicationStatus("UNDER_REVIEW"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Fatalf("CanTransitionTo = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatApplicationNumber(t *testing.T) {
	if got := FormatApplicationNumber(1); got != "APP000001" {
		t.Fatalf("FormatApplicationNumber(1) = %q", got)
	}
	if got := FormatApplicationNumber(1234567); got != "APP1234567" {
		t.Fatalf("FormatApplicationNumber(1234567) = %q", got)
	}
}

func TestHouseholdFactsNormalized(t *testing.T) {
	area := 59.996
	f := HouseholdFacts{AdultsCount: 5, ChildrenCount: 5, MonthlyIncome: 4999.994, LivingArea: &area}

	got := f.Normalized()

	require.NotNil(t, got.LivingArea)
	assert.Equal(t, 60.0, *got.LivingArea)
	assert.Equal(t, 4999.99, got.MonthlyIncome)
	assert.Equal(t, 59.996, area, "исходные сведения не меняются")

	assert.Nil(t, HouseholdFacts{AdultsCount: 1}.Normalized().LivingArea)
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "In Queue", StatusInQueue.Label())
	assert.Equal(t, "Rejected by Manager", StatusRejectedByManager.Label())
	assert.Equal(t, "ARCHIVED", ApplicationStatus("ARCHIVED").Label())
}
