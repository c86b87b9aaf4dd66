package queue

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/housing-queue/internal/model"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func app(seq int64, score int, submitted time.Time, status model.ApplicationStatus) model.Application {
	return model.Application{
		ID:            seq,
		Seq:           seq,
		Number:        model.FormatApplicationNumber(seq),
		ApplicantIIN:  fmt.Sprintf("9001011%05d", seq),
		Status:        status,
		PriorityScore: score,
		SubmittedAt:   submitted,
	}
}

func intPtr(v int) *int {
	return &v
}

func TestRank_TieBreakBySubmissionTime(t *testing.T) {
	apps := []model.Application{
		app(3, 60, base.Add(2*time.Hour), model.StatusInQueue),
		app(2, 80, base.Add(time.Hour), model.StatusInQueue),
		app(1, 80, base, model.StatusInQueue),
	}

	entries := Rank(apps)
	require.Len(t, entries, 3)

	assert.Equal(t, "APP000001", entries[0].Application.Number)
	assert.Equal(t, "APP000002", entries[1].Application.Number)
	assert.Equal(t, "APP000003", entries[2].Application.Number)
	for i, e := range entries {
		assert.Equal(t, i+1, e.Rank)
	}
}

func TestRank_IdenticalTimestampsFallBackToSequence(t *testing.T) {
	apps := []model.Application{
		app(9, 50, base, model.StatusInQueue),
		app(4, 50, base, model.StatusInQueue),
	}

	entries := Rank(apps)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(4), entries[0].Application.Seq)
	assert.Equal(t, int64(9), entries[1].Application.Seq)
}

func TestRank_SkipsApplicationsOutsideQueue(t *testing.T) {
	apps := []model.Application{
		app(1, 100, base, model.StatusSubmitted),
		app(2, 10, base, model.StatusInQueue),
		app(3, 90, base, model.StatusRejectedByManager),
	}

	entries := Rank(apps)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, int64(2), entries[0].Application.Seq)
}

func TestPosition(t *testing.T) {
	apps := []model.Application{
		app(1, 80, base, model.StatusInQueue),
		app(2, 80, base.Add(time.Minute), model.StatusInQueue),
		app(3, 60, base.Add(2*time.Minute), model.StatusInQueue),
		app(4, 99, base, model.StatusSubmitted),
	}

	for i, number := range []string{"APP000001", "APP000002", "APP000003"} {
		pos, err := Position(apps, number)
		require.NoError(t, err)
		assert.Equal(t, i+1, pos)
	}

	_, err := Position(apps, "APP000004")
	assert.ErrorIs(t, err, ErrNotInQueue)

	_, err = Position(apps, "APP999999")
	assert.ErrorIs(t, err, ErrNotInQueue)
}

func TestPosition_EmptyQueue(t *testing.T) {
	_, err := Position(nil, "APP000001")
	assert.ErrorIs(t, err, ErrEmptyQueue)

	_, err = Position([]model.Application{app(1, 10, base, model.StatusSubmitted)}, "APP000001")
	assert.ErrorIs(t, err, ErrEmptyQueue)
}

func TestPosition_MatchesRank(t *testing.T) {
	var apps []model.Application
	for i := int64(1); i <= 25; i++ {
		apps = append(apps, app(i, int(i%4)*10, base.Add(time.Duration(i%3)*time.Minute), model.StatusInQueue))
	}

	for _, e := range Rank(apps) {
		pos, err := Position(apps, e.Application.Number)
		require.NoError(t, err)
		assert.Equal(t, e.Rank, pos, e.Application.Number)
	}
}

func fifteenInQueue() []model.Application {
	apps := make([]model.Application, 0, 15)
	for i := int64(1); i <= 15; i++ {
		// при равенстве раньше идёт меньший номер
		apps = append(apps, app(i, 200-int(i), base, model.StatusInQueue))
	}
	return apps
}

func TestList_RankRangeAppliedAfterRanking(t *testing.T) {
	page := List(fifteenInQueue(), Filter{From: intPtr(11), To: intPtr(15)}, 1)

	require.Len(t, page.Entries, 5)
	assert.Equal(t, 5, page.TotalEntries)
	assert.Equal(t, 1, page.TotalPages)
	for i, e := range page.Entries {
		assert.Equal(t, 11+i, e.Rank)
		assert.Equal(t, int64(11+i), e.Application.Seq)
	}
}

func TestList_FromGreaterThanTo(t *testing.T) {
	page := List(fifteenInQueue(), Filter{From: intPtr(10), To: intPtr(3)}, 1)

	assert.Empty(t, page.Entries)
	assert.Equal(t, 0, page.TotalEntries)
	assert.Equal(t, 1, page.Number)
}

func TestList_Pagination(t *testing.T) {
	apps := fifteenInQueue()

	first := List(apps, Filter{}, 1)
	require.Len(t, first.Entries, PageSize)
	assert.Equal(t, 2, first.TotalPages)
	assert.Equal(t, 1, first.Entries[0].Rank)

	second := List(apps, Filter{}, 2)
	require.Len(t, second.Entries, 5)
	assert.Equal(t, 11, second.Entries[0].Rank)

	overflow := List(apps, Filter{}, 42)
	assert.Equal(t, 2, overflow.Number)
	assert.Equal(t, second.Entries, overflow.Entries)

	invalid := List(apps, Filter{}, 0)
	assert.Equal(t, 1, invalid.Number)
}

func TestList_IINSubstringKeepsOriginalRank(t *testing.T) {
	apps := fifteenInQueue()

	page := List(apps, Filter{IIN: "00012"}, 1)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, 12, page.Entries[0].Rank)
	assert.Equal(t, "900101100012", page.Entries[0].Application.ApplicantIIN)
}
