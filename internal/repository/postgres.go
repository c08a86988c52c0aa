package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/kassa-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
// Используется вместо файлового хранилища, когда задан DATABASE_URI.
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

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			// Ретраи полезны для Serialization Failure или Deadlocks.
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const invoiceColumns = `id, transaction_type, customer_name, description, amount_cents, status,
	 employee_id, employee_name, employee_avatar, created_at, updated_at, is_archived`

func scanInvoices(rows pgx.Rows) ([]model.Invoice, error) {
	var invoices []model.Invoice
	for rows.Next() {
		var inv model.Invoice
		var status string
		if err := rows.Scan(
			&inv.ID, &inv.TransactionType, &inv.CustomerName, &inv.Description,
			&inv.AmountCents, &status, &inv.EmployeeID, &inv.EmployeeName,
			&inv.EmployeeAvatar, &inv.CreatedAt, &inv.UpdatedAt, &inv.IsArchived,
		); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		inv.Status = model.InvoiceStatus(status)
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return invoices, nil
}

// ListInvoices возвращает все фактуры, новые первыми.
func (r *PostgresRepository) ListInvoices(ctx context.Context) ([]model.Invoice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+invoiceColumns+`
		 FROM invoices
		 ORDER BY seq DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select invoices: %w", err)
	}
	defer rows.Close()

	return scanInvoices(rows)
}

// ListUnarchivedInvoices возвращает фактуры, ещё не попавшие в архив.
func (r *PostgresRepository) ListUnarchivedInvoices(ctx context.Context) ([]model.Invoice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+invoiceColumns+`
		 FROM invoices
		 WHERE NOT is_archived
		 ORDER BY seq DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select unarchived invoices: %w", err)
	}
	defer rows.Close()

	return scanInvoices(rows)
}

// AddInvoice сохраняет новую фактуру.
func (r *PostgresRepository) AddInvoice(ctx context.Context, inv model.Invoice) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO invoices (id, transaction_type, customer_name, description, amount_cents, status,
			 employee_id, employee_name, employee_avatar, created_at, updated_at, is_archived)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			inv.ID, inv.TransactionType, inv.CustomerName, inv.Description, inv.AmountCents,
			string(inv.Status), inv.EmployeeID, inv.EmployeeName, inv.EmployeeAvatar,
			inv.CreatedAt, inv.UpdatedAt, inv.IsArchived,
		)
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}
		return nil
	})
}

// GetInvoice возвращает фактуру по идентификатору.
func (r *PostgresRepository) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+`
		 FROM invoices
		 WHERE id = $1`,
		id,
	)

	var inv model.Invoice
	var status string
	err := row.Scan(
		&inv.ID, &inv.TransactionType, &inv.CustomerName, &inv.Description,
		&inv.AmountCents, &status, &inv.EmployeeID, &inv.EmployeeName,
		&inv.EmployeeAvatar, &inv.CreatedAt, &inv.UpdatedAt, &inv.IsArchived,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	inv.Status = model.InvoiceStatus(status)

	return &inv, nil
}

// SaveInvoice заменяет фактуру с тем же идентификатором целиком.
func (r *PostgresRepository) SaveInvoice(ctx context.Context, inv model.Invoice) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE invoices
		 SET transaction_type = $2, customer_name = $3, description = $4, amount_cents = $5,
		     status = $6, employee_id = $7, employee_name = $8, employee_avatar = $9,
		     updated_at = $10, is_archived = $11
		 WHERE id = $1`,
		inv.ID, inv.TransactionType, inv.CustomerName, inv.Description, inv.AmountCents,
		string(inv.Status), inv.EmployeeID, inv.EmployeeName, inv.EmployeeAvatar,
		inv.UpdatedAt, inv.IsArchived,
	)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// MarkInvoicesArchived массово выставляет фактурам признак архивности.
// Уже архивные фактуры не затрагиваются, повторный вызов — no-op.
func (r *PostgresRepository) MarkInvoicesArchived(ctx context.Context, ids []string, updatedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`UPDATE invoices
			 SET is_archived = TRUE, updated_at = $2
			 WHERE id = ANY($1) AND NOT is_archived`,
			ids, updatedAt,
		)
		if err != nil {
			return fmt.Errorf("mark invoices archived: %w", err)
		}
		return nil
	})
}

// ListArchives возвращает индекс архивов в порядке их создания.
func (r *PostgresRepository) ListArchives(ctx context.Context) ([]model.Archive, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, date, total_sales_cents, supplied_amount_cents, opening_next_day_cents,
		        employee_id_who_archived, created_at, filename
		 FROM archives
		 ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("select archives: %w", err)
	}
	defer rows.Close()

	var archives []model.Archive
	for rows.Next() {
		var a model.Archive
		if err := rows.Scan(
			&a.ID, &a.Date, &a.TotalSalesCents, &a.SuppliedAmountCents,
			&a.OpeningForNextDayCents, &a.EmployeeIDWhoArchived, &a.CreatedAt, &a.Filename,
		); err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		archives = append(archives, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return archives, nil
}

// AddArchive записывает запись индекса и снимок архива в одной транзакции.
func (r *PostgresRepository) AddArchive(ctx context.Context, data model.ArchiveData) error {
	snapshot, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode archive snapshot: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO archives (id, date, total_sales_cents, supplied_amount_cents, opening_next_day_cents,
		 employee_id_who_archived, created_at, filename)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		data.ID, data.Date, data.TotalSalesCents, data.SuppliedAmountCents,
		data.OpeningForNextDayCents, data.EmployeeIDWhoArchived, data.CreatedAt, data.Filename,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrArchiveExists, data.Filename)
		}
		return fmt.Errorf("insert archive: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO archive_snapshots (filename, data) VALUES ($1, $2)`,
		data.Filename, snapshot,
	)
	if err != nil {
		return fmt.Errorf("insert archive snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetArchiveData возвращает снимок архива по имени файла.
func (r *PostgresRepository) GetArchiveData(ctx context.Context, filename string) (*model.ArchiveData, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT data FROM archive_snapshots WHERE filename = $1`,
		filename,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrArchiveNotFound
		}
		return nil, fmt.Errorf("get archive snapshot: %w", err)
	}

	var data model.ArchiveData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode archive snapshot: %w", err)
	}

	return &data, nil
}

// ListEmployees возвращает всех сотрудников.
func (r *PostgresRepository) ListEmployees(ctx context.Context) ([]model.Employee, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, avatar, is_active, created_at, updated_at
		 FROM employees
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("select employees: %w", err)
	}
	defer rows.Close()

	var employees []model.Employee
	for rows.Next() {
		var emp model.Employee
		if err := rows.Scan(&emp.ID, &emp.Name, &emp.Avatar, &emp.IsActive, &emp.CreatedAt, &emp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		employees = append(employees, emp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return employees, nil
}

// GetEmployee возвращает сотрудника по идентификатору.
func (r *PostgresRepository) GetEmployee(ctx context.Context, id string) (*model.Employee, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, avatar, is_active, created_at, updated_at
		 FROM employees
		 WHERE id = $1`,
		id,
	)

	var emp model.Employee
	err := row.Scan(&emp.ID, &emp.Name, &emp.Avatar, &emp.IsActive, &emp.CreatedAt, &emp.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmployeeNotFound
		}
		return nil, fmt.Errorf("get employee: %w", err)
	}

	return &emp, nil
}

// AddEmployee добавляет сотрудника.
func (r *PostgresRepository) AddEmployee(ctx context.Context, emp model.Employee) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO employees (id, name, avatar, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		emp.ID, emp.Name, emp.Avatar, emp.IsActive, emp.CreatedAt, emp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert employee: %w", err)
	}
	return nil
}

// SaveEmployee заменяет сотрудника с тем же идентификатором целиком.
func (r *PostgresRepository) SaveEmployee(ctx context.Context, emp model.Employee) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE employees
		 SET name = $2, avatar = $3, is_active = $4, updated_at = $5
		 WHERE id = $1`,
		emp.ID, emp.Name, emp.Avatar, emp.IsActive, emp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update employee: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrEmployeeNotFound
	}
	return nil
}

// GetSettings возвращает документ настроек.
func (r *PostgresRepository) GetSettings(ctx context.Context) (*model.Settings, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM settings WHERE id = 1`).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}

	var settings model.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &settings, nil
}

// SaveSettings заменяет документ настроек целиком.
func (r *PostgresRepository) SaveSettings(ctx context.Context, settings model.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO settings (id, data) VALUES (1, $1)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
		raw,
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
