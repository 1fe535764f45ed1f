package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/employee-records-api/internal/models"
)

const employeeColumns = `id, first_name, middle_name, last_name, login_id, date_of_birth, department, salary,
        permanent_address, current_address, document_key, document_file_name, document_mime_type,
        document_size_bytes, document_url, document_uploaded_at, created_at, updated_at`

const uniqueViolation = "23505"

// QueryObserver receives the duration of each statement.
type QueryObserver func(label string, duration time.Duration)

// EmployeePostgresRepository persists employee records in PostgreSQL.
type EmployeePostgresRepository struct {
	db      *sqlx.DB
	observe QueryObserver
	now     func() time.Time
}

// NewEmployeePostgresRepository constructs the repository. observe may be nil.
func NewEmployeePostgresRepository(db *sqlx.DB, observe QueryObserver) *EmployeePostgresRepository {
	return &EmployeePostgresRepository{
		db:      db,
		observe: observe,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type employeeRow struct {
	ID                 string          `db:"id"`
	FirstName          string          `db:"first_name"`
	MiddleName         string          `db:"middle_name"`
	LastName           string          `db:"last_name"`
	LoginID            string          `db:"login_id"`
	DateOfBirth        time.Time       `db:"date_of_birth"`
	Department         string          `db:"department"`
	Salary             decimal.Decimal `db:"salary"`
	PermanentAddress   string          `db:"permanent_address"`
	CurrentAddress     string          `db:"current_address"`
	DocumentKey        sql.NullString  `db:"document_key"`
	DocumentFileName   sql.NullString  `db:"document_file_name"`
	DocumentMimeType   sql.NullString  `db:"document_mime_type"`
	DocumentSizeBytes  sql.NullInt64   `db:"document_size_bytes"`
	DocumentURL        sql.NullString  `db:"document_url"`
	DocumentUploadedAt sql.NullTime    `db:"document_uploaded_at"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

func toRow(e *models.Employee) employeeRow {
	row := employeeRow{
		ID:               e.ID,
		FirstName:        e.FirstName,
		MiddleName:       e.MiddleName,
		LastName:         e.LastName,
		LoginID:          e.LoginID,
		DateOfBirth:      models.TruncateDate(e.DateOfBirth),
		Department:       string(e.Department),
		Salary:           e.Salary,
		PermanentAddress: e.PermanentAddress,
		CurrentAddress:   e.CurrentAddress,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
	if doc := e.Document; doc != nil {
		row.DocumentKey = sql.NullString{String: doc.Key, Valid: doc.Key != ""}
		row.DocumentFileName = sql.NullString{String: doc.FileName, Valid: true}
		row.DocumentMimeType = sql.NullString{String: doc.MimeType, Valid: true}
		row.DocumentSizeBytes = sql.NullInt64{Int64: doc.SizeBytes, Valid: true}
		row.DocumentURL = sql.NullString{String: doc.URL, Valid: doc.Key == "" && doc.URL != ""}
		row.DocumentUploadedAt = sql.NullTime{Time: doc.UploadedAt, Valid: !doc.UploadedAt.IsZero()}
	}
	return row
}

func (row employeeRow) toModel() models.Employee {
	e := models.Employee{
		ID:               row.ID,
		FirstName:        row.FirstName,
		MiddleName:       row.MiddleName,
		LastName:         row.LastName,
		LoginID:          row.LoginID,
		DateOfBirth:      models.TruncateDate(row.DateOfBirth),
		Department:       models.Department(row.Department),
		Salary:           row.Salary,
		PermanentAddress: row.PermanentAddress,
		CurrentAddress:   row.CurrentAddress,
		CreatedAt:        row.CreatedAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
	}
	if row.DocumentKey.Valid || row.DocumentURL.Valid {
		e.Document = &models.Document{
			Key:        row.DocumentKey.String,
			FileName:   row.DocumentFileName.String,
			MimeType:   row.DocumentMimeType.String,
			SizeBytes:  row.DocumentSizeBytes.Int64,
			URL:        row.DocumentURL.String,
			UploadedAt: row.DocumentUploadedAt.Time.UTC(),
		}
	}
	return e
}

func (r *EmployeePostgresRepository) track(label string, start time.Time) {
	if r.observe != nil {
		r.observe(label, time.Since(start))
	}
}

// Create inserts a new record. Unique violations return ErrDuplicateKey.
func (r *EmployeePostgresRepository) Create(ctx context.Context, employee *models.Employee) error {
	defer r.track("employees.create", time.Now())
	now := r.now().Truncate(time.Microsecond)
	employee.CreatedAt = now
	employee.UpdatedAt = now

	const query = `INSERT INTO employees (id, first_name, middle_name, last_name, login_id, date_of_birth, department, salary,
        permanent_address, current_address, document_key, document_file_name, document_mime_type,
        document_size_bytes, document_url, document_uploaded_at, created_at, updated_at)
        VALUES (:id, :first_name, :middle_name, :last_name, :login_id, :date_of_birth, :department, :salary,
        :permanent_address, :current_address, :document_key, :document_file_name, :document_mime_type,
        :document_size_bytes, :document_url, :document_uploaded_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, toRow(employee)); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create employee %s: %w", employee.ID, ErrDuplicateKey)
		}
		return fmt.Errorf("create employee: %w", err)
	}
	return nil
}

// Update replaces the mutable columns. Login and creation time are read back from the row.
func (r *EmployeePostgresRepository) Update(ctx context.Context, employee *models.Employee) error {
	defer r.track("employees.update", time.Now())
	row := toRow(employee)
	const query = `UPDATE employees SET first_name = $2, middle_name = $3, last_name = $4, date_of_birth = $5,
        department = $6, salary = $7, permanent_address = $8, current_address = $9, document_key = $10,
        document_file_name = $11, document_mime_type = $12, document_size_bytes = $13, document_url = $14,
        document_uploaded_at = $15, updated_at = GREATEST($16, updated_at + INTERVAL '1 microsecond')
        WHERE id = $1 RETURNING login_id, created_at, updated_at`

	var out struct {
		LoginID   string    `db:"login_id"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err := r.db.QueryRowxContext(ctx, query,
		row.ID, row.FirstName, row.MiddleName, row.LastName, row.DateOfBirth,
		row.Department, row.Salary, row.PermanentAddress, row.CurrentAddress, row.DocumentKey,
		row.DocumentFileName, row.DocumentMimeType, row.DocumentSizeBytes, row.DocumentURL,
		row.DocumentUploadedAt, r.now().Truncate(time.Microsecond),
	).StructScan(&out)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("update employee: %w", err)
	}
	employee.LoginID = out.LoginID
	employee.CreatedAt = out.CreatedAt.UTC()
	employee.UpdatedAt = out.UpdatedAt.UTC()
	return nil
}

// Delete removes a record by identifier.
func (r *EmployeePostgresRepository) Delete(ctx context.Context, id string) error {
	defer r.track("employees.delete", time.Now())
	res, err := r.db.ExecContext(ctx, `DELETE FROM employees WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete employee: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete employee rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByID fetches a record by identifier.
func (r *EmployeePostgresRepository) FindByID(ctx context.Context, id string) (*models.Employee, error) {
	defer r.track("employees.find", time.Now())
	var row employeeRow
	query := fmt.Sprintf("SELECT %s FROM employees WHERE id = $1", employeeColumns)
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	e := row.toModel()
	return &e, nil
}

// Search applies the filter in SQL, preserving insertion order.
func (r *EmployeePostgresRepository) Search(ctx context.Context, filter models.EmployeeFilter) ([]models.Employee, int, error) {
	defer r.track("employees.search", time.Now())
	conditions := []string{"1=1"}
	args := []interface{}{}

	like := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, "%"+escapeLike(value)+"%")
		conditions = append(conditions, fmt.Sprintf("%s ILIKE $%d", column, len(args)))
	}
	like("id", filter.ID)
	like("first_name", filter.FirstName)
	like("last_name", filter.LastName)
	like("login_id", filter.LoginID)
	if filter.Department != "" {
		args = append(args, string(filter.Department))
		conditions = append(conditions, fmt.Sprintf("department = $%d", len(args)))
	}
	if filter.DOBStart != nil {
		args = append(args, models.TruncateDate(*filter.DOBStart))
		conditions = append(conditions, fmt.Sprintf("date_of_birth >= $%d", len(args)))
	}
	if filter.DOBEnd != nil {
		args = append(args, models.TruncateDate(*filter.DOBEnd))
		conditions = append(conditions, fmt.Sprintf("date_of_birth <= $%d", len(args)))
	}

	where := strings.Join(conditions, " AND ")
	query := fmt.Sprintf("SELECT %s FROM employees WHERE %s ORDER BY seq", employeeColumns, where)
	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, (page-1)*filter.Limit)
	}

	// Page and total share one snapshot so the count always matches the rows.
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin search: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var rows []employeeRow
	if err := tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("search employees: %w", err)
	}

	var total int
	if err := tx.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM employees WHERE %s", where), args...); err != nil {
		return nil, 0, fmt.Errorf("count employees: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit search: %w", err)
	}

	out := make([]models.Employee, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, total, nil
}

// ListIdentifiers returns every identifier in insertion order.
func (r *EmployeePostgresRepository) ListIdentifiers(ctx context.Context) ([]string, error) {
	defer r.track("employees.ids", time.Now())
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM employees ORDER BY seq`); err != nil {
		return nil, fmt.Errorf("list employee ids: %w", err)
	}
	return ids, nil
}

// LoginExists reports whether login is assigned to any record.
func (r *EmployeePostgresRepository) LoginExists(ctx context.Context, login string) (bool, error) {
	defer r.track("employees.login_exists", time.Now())
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM employees WHERE login_id = $1)`, login); err != nil {
		return false, fmt.Errorf("check login: %w", err)
	}
	return exists, nil
}

// Count returns the number of rows.
func (r *EmployeePostgresRepository) Count(ctx context.Context) (int, error) {
	defer r.track("employees.count", time.Now())
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM employees`); err != nil {
		return 0, fmt.Errorf("count employees: %w", err)
	}
	return total, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}
