package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/housing-queue/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const applicationColumns = `a.id, a.seq, a.number, a.applicant_id, u.iin, u.full_name,
	a.adults_count, a.children_count, a.elderly_count, a.monthly_income, a.living_area,
	a.has_disability, a.is_veteran, a.is_single_parent, a.is_homeless, a.waiting_years,
	a.category, a.large_family_award, a.is_for_ward, a.current_address, a.residence_condition,
	a.disability_details, a.notes,
	a.status, a.rejection_reason, a.document_renewal, a.document_verified, a.priority_score,
	a.submitted_at, a.updated_at`

const applicationFrom = ` FROM applications a JOIN users u ON u.id = a.applicant_id `

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраим только конфликты сериализации, взаимоблокировки и обрывы соединения.
		retryable := isConnectionError(err)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			retryable = pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
		}

		if !retryable || i == len(delays) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u model.User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (iin, full_name, password_hash, is_admin) VALUES ($1, $2, $3, $4) RETURNING id`,
		u.IIN, u.FullName, u.PasswordHash, u.IsAdmin,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, u.IIN)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByIIN возвращает пользователя по ИИН.
func (r *PostgresRepository) GetUserByIIN(ctx context.Context, iin string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, iin, full_name, password_hash, is_admin, created_at FROM users WHERE iin = $1`,
		iin,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.IIN, &u.FullName, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// CreateApplication сохраняет новое заявление вместе с первой записью истории.
// Порядковый номер берётся из последовательности БД: nextval атомарен и не
// возвращает одно значение дважды даже при откате транзакции.
func (r *PostgresRepository) CreateApplication(ctx context.Context, app model.Application, entry model.StatusHistoryEntry) (*model.Application, error) {
	var created *model.Application

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var seq int64
		if err := tx.QueryRow(ctx, `SELECT nextval('application_number_seq')`).Scan(&seq); err != nil {
			return fmt.Errorf("next application number: %w", err)
		}

		a := app
		a.Seq = seq
		a.Number = model.FormatApplicationNumber(seq)

		err = tx.QueryRow(ctx,
			`INSERT INTO applications (
				seq, number, applicant_id,
				adults_count, children_count, elderly_count, monthly_income, living_area,
				has_disability, is_veteran, is_single_parent, is_homeless, waiting_years,
				category, large_family_award, is_for_ward, current_address, residence_condition,
				disability_details, notes, status, priority_score
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
			RETURNING id, submitted_at, updated_at`,
			a.Seq, a.Number, a.ApplicantID,
			a.Household.AdultsCount, a.Household.ChildrenCount, a.Household.ElderlyCount,
			toCents(a.Household.MonthlyIncome), toCentiPtr(a.Household.LivingArea),
			a.Household.HasDisability, a.Household.IsVeteran, a.Household.IsSingleParent,
			a.Household.IsHomeless, a.Household.WaitingYears,
			string(a.Category), string(a.LargeFamilyAward), a.IsForWard, a.CurrentAddress,
			string(a.ResidenceCondition), a.DisabilityDetails, a.Notes,
			string(a.Status), a.PriorityScore,
		).Scan(&a.ID, &a.SubmittedAt, &a.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
				return ErrUserNotFound
			}
			return fmt.Errorf("insert application: %w", err)
		}

		entry.ApplicationID = a.ID
		if err := insertHistory(ctx, tx, entry); err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `SELECT iin, full_name FROM users WHERE id = $1`, a.ApplicantID).
			Scan(&a.ApplicantIIN, &a.ApplicantName)
		if err != nil {
			return fmt.Errorf("select applicant: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		created = &a
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// GetApplication возвращает заявление по номеру.
func (r *PostgresRepository) GetApplication(ctx context.Context, number string) (*model.Application, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+applicationColumns+applicationFrom+`WHERE a.number = $1`, number)

	a, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("get application: %w", err)
	}
	return a, nil
}

// GetApplicationsByApplicant возвращает заявления пользователя, новые первыми.
func (r *PostgresRepository) GetApplicationsByApplicant(ctx context.Context, applicantID int64) ([]model.Application, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+applicationColumns+applicationFrom+`WHERE a.applicant_id = $1 ORDER BY a.submitted_at DESC, a.seq DESC`,
		applicantID,
	)
	if err != nil {
		return nil, fmt.Errorf("select applications: %w", err)
	}
	return collectApplications(rows)
}

// GetQueueSnapshot возвращает все заявления со статусом IN_QUEUE, прочитанные
// в одной read-only транзакции REPEATABLE READ. Места, посчитанные по снимку,
// верны на момент чтения.
func (r *PostgresRepository) GetQueueSnapshot(ctx context.Context) ([]model.Application, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT `+applicationColumns+applicationFrom+
			`WHERE a.status = $1 ORDER BY a.priority_score DESC, a.submitted_at, a.seq`,
		string(model.StatusInQueue),
	)
	if err != nil {
		return nil, fmt.Errorf("select queue: %w", err)
	}

	apps, err := collectApplications(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return apps, nil
}

// UpdateApplication блокирует строку заявления, применяет mutate и сохраняет
// заявление вместе с записью истории в одной транзакции. Пересчёт приоритета и
// смена статуса одного заявления таким образом сериализуются.
func (r *PostgresRepository) UpdateApplication(ctx context.Context, number string, mutate MutateFunc) (*model.Application, error) {
	var updated *model.Application

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		row := tx.QueryRow(ctx,
			`SELECT `+applicationColumns+applicationFrom+`WHERE a.number = $1 FOR UPDATE OF a`,
			number,
		)
		a, err := scanApplication(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrApplicationNotFound
			}
			return fmt.Errorf("lock application: %w", err)
		}

		change, err := mutate(a)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx,
			`UPDATE applications SET
				adults_count = $2, children_count = $3, elderly_count = $4,
				monthly_income = $5, living_area = $6,
				has_disability = $7, is_veteran = $8, is_single_parent = $9, is_homeless = $10,
				waiting_years = $11,
				category = $12, large_family_award = $13, is_for_ward = $14, current_address = $15,
				residence_condition = $16, disability_details = $17, notes = $18,
				status = $19, rejection_reason = $20, document_renewal = $21, document_verified = $22,
				priority_score = $23, updated_at = now()
			 WHERE id = $1
			 RETURNING updated_at`,
			a.ID,
			a.Household.AdultsCount, a.Household.ChildrenCount, a.Household.ElderlyCount,
			toCents(a.Household.MonthlyIncome), toCentiPtr(a.Household.LivingArea),
			a.Household.HasDisability, a.Household.IsVeteran, a.Household.IsSingleParent,
			a.Household.IsHomeless, a.Household.WaitingYears,
			string(a.Category), string(a.LargeFamilyAward), a.IsForWard, a.CurrentAddress,
			string(a.ResidenceCondition), a.DisabilityDetails, a.Notes,
			string(a.Status), a.RejectionReason, a.DocumentRenewal, a.DocumentVerified,
			a.PriorityScore,
		).Scan(&a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update application: %w", err)
		}

		if change.History != nil {
			entry := *change.History
			entry.ApplicationID = a.ID
			if err := insertHistory(ctx, tx, entry); err != nil {
				return err
			}
		}

		if len(change.RetireDocuments) > 0 {
			types := make([]string, 0, len(change.RetireDocuments))
			for _, t := range change.RetireDocuments {
				types = append(types, string(t))
			}
			_, err := tx.Exec(ctx,
				`UPDATE application_documents SET retired_at = now()
				 WHERE application_id = $1 AND retired_at IS NULL AND document_type = ANY($2)`,
				a.ID, types,
			)
			if err != nil {
				return fmt.Errorf("retire documents: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, entry model.StatusHistoryEntry) error {
	changedAt := entry.ChangedAt
	if changedAt.IsZero() {
		changedAt = time.Now().UTC()
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO application_history (application_id, previous_status, new_status, changed_at, changed_by, notes)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ApplicationID, string(entry.PreviousStatus), string(entry.NewStatus), changedAt, entry.ChangedBy, entry.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// GetHistory возвращает историю статусов заявления, новые записи первыми.
func (r *PostgresRepository) GetHistory(ctx context.Context, applicationID int64) ([]model.StatusHistoryEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT h.id, h.application_id, h.previous_status, h.new_status, h.changed_at, h.changed_by,
		        COALESCE(u.full_name, ''), h.notes
		 FROM application_history h
		 LEFT JOIN users u ON u.id = h.changed_by
		 WHERE h.application_id = $1
		 ORDER BY h.changed_at DESC, h.id DESC`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer rows.Close()

	var res []model.StatusHistoryEntry
	for rows.Next() {
		var (
			e              model.StatusHistoryEntry
			previous, next string
		)
		if err := rows.Scan(&e.ID, &e.ApplicationID, &previous, &next, &e.ChangedAt, &e.ChangedBy, &e.ChangedByName, &e.Notes); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.PreviousStatus = model.ApplicationStatus(previous)
		e.NewStatus = model.ApplicationStatus(next)
		if e.ChangedBy == nil {
			e.ChangedByName = model.SystemActorName
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ReplaceDocument делает документ текущим для своей категории, выводя из
// обращения предыдущий документ той же категории.
func (r *PostgresRepository) ReplaceDocument(ctx context.Context, doc model.Document) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE application_documents SET retired_at = now()
		 WHERE application_id = $1 AND document_type = $2 AND retired_at IS NULL`,
		doc.ApplicationID, string(doc.Type),
	)
	if err != nil {
		return fmt.Errorf("retire previous document: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO application_documents (id, application_id, document_type, name, storage_key, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		doc.ID, doc.ApplicationID, string(doc.Type), doc.Name, doc.StorageKey, doc.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// RetireDocument выводит из обращения текущий документ категории и сообщает, был ли он.
func (r *PostgresRepository) RetireDocument(ctx context.Context, applicationID int64, docType model.DocumentType) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE application_documents SET retired_at = now()
		 WHERE application_id = $1 AND document_type = $2 AND retired_at IS NULL`,
		applicationID, string(docType),
	)
	if err != nil {
		return false, fmt.Errorf("retire document: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetDocuments возвращает текущие документы заявления.
func (r *PostgresRepository) GetDocuments(ctx context.Context, applicationID int64) ([]model.Document, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, application_id, document_type, name, storage_key, uploaded_at
		 FROM application_documents
		 WHERE application_id = $1 AND retired_at IS NULL
		 ORDER BY document_type`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer rows.Close()

	var res []model.Document
	for rows.Next() {
		var (
			d       model.Document
			docType string
		)
		if err := rows.Scan(&d.ID, &d.ApplicationID, &docType, &d.Name, &d.StorageKey, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Type = model.DocumentType(docType)
		res = append(res, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetApplicationsForAccrual возвращает нерешённые заявления, у которых число
// полных лет ожидания превысило сохранённое.
func (r *PostgresRepository) GetApplicationsForAccrual(ctx context.Context, limit int) ([]ApplicationForAccrual, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT number, submitted_at, waiting_years
		 FROM applications
		 WHERE status IN ($1, $2)
		   AND submitted_at <= now() - make_interval(years => waiting_years + 1)
		 ORDER BY submitted_at
		 LIMIT $3`,
		string(model.StatusSubmitted),
		string(model.StatusInQueue),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select applications for accrual: %w", err)
	}
	defer rows.Close()

	var res []ApplicationForAccrual
	for rows.Next() {
		var a ApplicationForAccrual
		if err := rows.Scan(&a.Number, &a.SubmittedAt, &a.WaitingYears); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		res = append(res, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApplication(row scanner) (*model.Application, error) {
	var (
		a                                   model.Application
		incomeCents                         int64
		areaCenti                           *int64
		category, award, condition, status string
	)

	err := row.Scan(
		&a.ID, &a.Seq, &a.Number, &a.ApplicantID, &a.ApplicantIIN, &a.ApplicantName,
		&a.Household.AdultsCount, &a.Household.ChildrenCount, &a.Household.ElderlyCount,
		&incomeCents, &areaCenti,
		&a.Household.HasDisability, &a.Household.IsVeteran, &a.Household.IsSingleParent,
		&a.Household.IsHomeless, &a.Household.WaitingYears,
		&category, &award, &a.IsForWard, &a.CurrentAddress, &condition,
		&a.DisabilityDetails, &a.Notes,
		&status, &a.RejectionReason, &a.DocumentRenewal, &a.DocumentVerified, &a.PriorityScore,
		&a.SubmittedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Household.MonthlyIncome = float64(incomeCents) / 100
	if areaCenti != nil {
		v := float64(*areaCenti) / 100
		a.Household.LivingArea = &v
	}
	a.Category = model.Category(category)
	a.LargeFamilyAward = model.Award(award)
	a.ResidenceCondition = model.ResidenceCondition(condition)
	a.Status = model.ApplicationStatus(status)

	return &a, nil
}

func collectApplications(rows pgx.Rows) ([]model.Application, error) {
	defer rows.Close()

	var res []model.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		res = append(res, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func toCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

func toCentiPtr(v *float64) *int64 {
	if v == nil {
		return nil
	}
	c := toCents(*v)
	return &c
}
