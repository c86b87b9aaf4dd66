package repository

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mmeshcher/housing-queue/internal/model"
	"github.com/mmeshcher/housing-queue/internal/scoring"
)

var testDSN string

func TestMain(m *testing.M) {
	flag.Parse()

	var terminate func(context.Context, ...testcontainers.TerminateOption) error
	if !testing.Short() {
		dsn, stop, err := startPostgres()
		if err != nil {
			fmt.Fprintf(os.Stderr, "postgres container unavailable, integration tests skipped: %v\n", err)
		} else {
			testDSN = dsn
			terminate = stop
		}
	}

	code := m.Run()

	if terminate != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := terminate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "teardown error: %v\n", err)
		}
		cancel()
	}

	os.Exit(code)
}

// startPostgres поднимает контейнер Postgres. Без Docker testcontainers паникует
// при поиске хоста, поэтому паника превращается в обычную ошибку.
func startPostgres() (dsn string, stop func(context.Context, ...testcontainers.TerminateOption) error, err error) {
	defer func() {
		if r := recover(); r != nil {
			dsn, stop, err = "", nil, fmt.Errorf("docker is not available: %v", r)
		}
	}()

	ctx := context.Background()

	ctr, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("housing"),
		postgres.WithUsername("housing"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return "", nil, err
	}

	dsn, err = ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return "", ctr.Terminate, err
	}

	return dsn, ctr.Terminate, nil
}

func newTestPostgres(t *testing.T) *PostgresRepository {
	t.Helper()
	if testDSN == "" {
		t.Skip("postgres container is not running")
	}

	repo, err := NewPostgresRepository(testDSN)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	_, err = repo.pool.Exec(context.Background(),
		`TRUNCATE application_documents, application_history, applications, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	return repo
}

func TestPostgresRepository_StoredFactsKeepScore(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()

	uid, err := repo.CreateUser(ctx, model.User{IIN: "900101300123", FullName: "Aigerim", PasswordHash: []byte("hash")})
	require.NoError(t, err)

	area := 59.996
	input := newApplication(uid)
	input.Household = model.HouseholdFacts{AdultsCount: 5, ChildrenCount: 5, MonthlyIncome: 4999.994, LivingArea: &area}.Normalized()
	input.PriorityScore = scoring.ComputePriority(input.Household)

	app, err := repo.CreateApplication(ctx, input, submittedEntry())
	require.NoError(t, err)

	got, err := repo.GetApplication(ctx, app.Number)
	require.NoError(t, err)
	assert.Equal(t, input.PriorityScore, got.PriorityScore)
	assert.Equal(t, got.PriorityScore, scoring.ComputePriority(got.Household))
}

func TestPostgresRepository_ApplicationLifecycle(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()

	uid, err := repo.CreateUser(ctx, model.User{IIN: "900101300123", FullName: "Aigerim", PasswordHash: []byte("hash")})
	require.NoError(t, err)

	_, err = repo.CreateUser(ctx, model.User{IIN: "900101300123", FullName: "Other", PasswordHash: []byte("hash")})
	assert.ErrorIs(t, err, ErrUserExists)

	area := 42.5
	input := newApplication(uid)
	input.Household.LivingArea = &area
	input.Household.MonthlyIncome = 12345.67

	app, err := repo.CreateApplication(ctx, input, submittedEntry())
	require.NoError(t, err)
	assert.Regexp(t, `^APP\d{6}$`, app.Number)
	assert.Equal(t, "Aigerim", app.ApplicantName)

	got, err := repo.GetApplication(ctx, app.Number)
	require.NoError(t, err)
	assert.InDelta(t, 12345.67, got.Household.MonthlyIncome, 0.001)
	require.NotNil(t, got.Household.LivingArea)
	assert.InDelta(t, 42.5, *got.Household.LivingArea, 0.001)
	assert.Equal(t, model.StatusSubmitted, got.Status)

	_, err = repo.UpdateApplication(ctx, app.Number, func(a *model.Application) (Change, error) {
		entry := model.StatusHistoryEntry{PreviousStatus: a.Status, NewStatus: model.StatusInQueue, ChangedBy: &uid}
		a.Status = model.StatusInQueue
		return Change{History: &entry}, nil
	})
	require.NoError(t, err)

	queue, err := repo.GetQueueSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, app.Number, queue[0].Number)

	history, err := repo.GetHistory(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.StatusInQueue, history[0].NewStatus)
	assert.Equal(t, "Aigerim", history[0].ChangedByName)
	assert.Equal(t, model.SystemActorName, history[1].ChangedByName)

	_, err = repo.GetApplication(ctx, "APP999999")
	assert.ErrorIs(t, err, ErrApplicationNotFound)
}

func TestPostgresRepository_FailedMutationRollsBack(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()

	uid, err := repo.CreateUser(ctx, model.User{IIN: "900101300123", FullName: "Aigerim", PasswordHash: []byte("hash")})
	require.NoError(t, err)
	app, err := repo.CreateApplication(ctx, newApplication(uid), submittedEntry())
	require.NoError(t, err)

	// Несуществующий автор нарушает внешний ключ при записи истории.
	ghost := int64(424242)
	_, err = repo.UpdateApplication(ctx, app.Number, func(a *model.Application) (Change, error) {
		entry := model.StatusHistoryEntry{PreviousStatus: a.Status, NewStatus: model.StatusInQueue, ChangedBy: &ghost}
		a.Status = model.StatusInQueue
		return Change{History: &entry}, nil
	})
	require.Error(t, err)

	got, err := repo.GetApplication(ctx, app.Number)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, got.Status)
}

func TestPostgresRepository_ConcurrentNumbering(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()

	uid, err := repo.CreateUser(ctx, model.User{IIN: "900101300123", FullName: "Aigerim", PasswordHash: []byte("hash")})
	require.NoError(t, err)

	const n = 20
	var (
		mu      sync.Mutex
		numbers = make(map[string]bool)
		wg      sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app, err := repo.CreateApplication(ctx, newApplication(uid), submittedEntry())
			if err != nil {
				t.Errorf("create application: %v", err)
				return
			}
			mu.Lock()
			numbers[app.Number] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, numbers, n)
}

func TestPostgresRepository_Documents(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()

	uid, err := repo.CreateUser(ctx, model.User{IIN: "900101300123", FullName: "Aigerim", PasswordHash: []byte("hash")})
	require.NoError(t, err)
	app, err := repo.CreateApplication(ctx, newApplication(uid), submittedEntry())
	require.NoError(t, err)

	ids := []string{"3f1c2b7e-5d1a-4c43-9a55-0a4b7e1f0001", "3f1c2b7e-5d1a-4c43-9a55-0a4b7e1f0002"}
	for _, id := range ids {
		require.NoError(t, repo.ReplaceDocument(ctx, model.Document{
			ID: id, ApplicationID: app.ID, Type: model.DocumentIncomeStatement,
			Name: "income.pdf", StorageKey: "docs/" + id, UploadedAt: time.Now().UTC(),
		}))
	}

	docs, err := repo.GetDocuments(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, ids[1], docs[0].ID)

	removed, err := repo.RetireDocument(ctx, app.ID, model.DocumentIncomeStatement)
	require.NoError(t, err)
	assert.True(t, removed)

	docs, err = repo.GetDocuments(ctx, app.ID)
	require.NoError(t, err)
	assert.Empty(t, docs)
}
