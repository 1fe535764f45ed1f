package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/employee-records-api/internal/models"
)

func newEmployeeMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var employeeRowColumns = []string{
	"id", "first_name", "middle_name", "last_name", "login_id", "date_of_birth", "department", "salary",
	"permanent_address", "current_address", "document_key", "document_file_name", "document_mime_type",
	"document_size_bytes", "document_url", "document_uploaded_at", "created_at", "updated_at",
}

func TestEmployeePostgresRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newEmployeeMock(t)
	defer cleanup()
	repo := NewEmployeePostgresRepository(db, nil)

	mock.ExpectExec("INSERT INTO employees").
		WillReturnResult(sqlmock.NewResult(1, 1))

	emp := sampleEmployee("EMP00001", "jdoe")
	require.NoError(t, repo.Create(context.Background(), emp))
	assert.False(t, emp.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmployeePostgresRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newEmployeeMock(t)
	defer cleanup()
	repo := NewEmployeePostgresRepository(db, nil)

	mock.ExpectExec("INSERT INTO employees").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.Create(context.Background(), sampleEmployee("EMP00001", "jdoe"))
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmployeePostgresRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newEmployeeMock(t)
	defer cleanup()
	var observed []string
	repo := NewEmployeePostgresRepository(db, func(label string, _ time.Duration) {
		observed = append(observed, label)
	})

	now := time.Now().UTC()
	rows := sqlmock.NewRows(employeeRowColumns).
		AddRow("EMP00001", "John", "", "Doe", "jdoe", time.Date(1990, 5, 15, 0, 0, 0, 0, time.UTC), "Engineering", "85000.00",
			"1 Main St", "1 Main St", "employees/a.pdf", "id.pdf", "application/pdf", int64(20480), nil, now, now, now)
	mock.ExpectQuery(`SELECT .* FROM employees WHERE id = \$1`).
		WithArgs("EMP00001").
		WillReturnRows(rows)

	emp, err := repo.FindByID(context.Background(), "EMP00001")
	require.NoError(t, err)
	assert.Equal(t, "jdoe", emp.LoginID)
	assert.Equal(t, "85000", emp.Salary.String())
	require.NotNil(t, emp.Document)
	assert.Equal(t, "employees/a.pdf", emp.Document.Key)
	assert.Equal(t, []string{"employees.find"}, observed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmployeePostgresRepositoryFindByIDMissing(t *testing.T) {
	db, mock, cleanup := newEmployeeMock(t)
	defer cleanup()
	repo := NewEmployeePostgresRepository(db, nil)

	mock.ExpectQuery(`SELECT .* FROM employees WHERE id = \$1`).
		WithArgs("EMP00404").
		WillReturnRows(sqlmock.NewRows(employeeRowColumns))

	_, err := repo.FindByID(context.Background(), "EMP00404")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestEmployeePostgresRepositorySearch(t *testing.T) {
	db, mock, cleanup := newEmployeeMock(t)
	defer cleanup()
	repo := NewEmployeePostgresRepository(db, nil)

	start := time.Date(1985, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(employeeRowColumns).
		AddRow("EMP00002", "Jane", "Marie", "Smith", "jsmith", time.Date(1988, 9, 23, 0, 0, 0, 0, time.UTC), "HR", "75000",
			"2 Side St", "2 Side St", nil, "id.pdf", "application/pdf", int64(20480), "https://example.com/id.pdf", now, now, now)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM employees WHERE 1=1 AND first_name ILIKE $1 AND department = $2 AND date_of_birth >= $3 ORDER BY seq LIMIT 10 OFFSET 10")).
		WithArgs(`%50\%%`, "HR", start).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM employees WHERE 1=1 AND first_name ILIKE $1 AND department = $2 AND date_of_birth >= $3")).
		WithArgs(`%50\%%`, "HR", start).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectCommit()

	page, total, err := repo.Search(context.Background(), models.EmployeeFilter{
		FirstName:  "50%",
		Department: models.DepartmentHR,
		DOBStart:   &start,
		Page:       2,
		Limit:      10,
	})
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, page, 1)
	assert.True(t, page[0].Document.Static())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmployeePostgresRepositorySearchCountFailureRollsBack(t *testing.T) {
	db, mock, cleanup := newEmployeeMock(t)
	defer cleanup()
	repo := NewEmployeePostgresRepository(db, nil)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(employeeRowColumns).
		AddRow("EMP00001", "John", "", "Doe", "jdoe", time.Date(1990, 5, 15, 0, 0, 0, 0, time.UTC), "Engineering", "85000",
			"1 Main St", "1 Main St", nil, nil, nil, nil, nil, nil, now, now)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM employees WHERE 1=1 ORDER BY seq LIMIT 10 OFFSET 0")).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM employees WHERE 1=1")).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, _, err := repo.Search(context.Background(), models.EmployeeFilter{Page: 1, Limit: 10})
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmployeePostgresRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newEmployeeMock(t)
	defer cleanup()
	repo := NewEmployeePostgresRepository(db, nil)

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)
	mock.ExpectQuery(`UPDATE employees SET .* WHERE id = \$1 RETURNING login_id, created_at, updated_at`).
		WillReturnRows(sqlmock.NewRows([]string{"login_id", "created_at", "updated_at"}).AddRow("jdoe", created, updated))

	emp := sampleEmployee("EMP00001", "ignored")
	require.NoError(t, repo.Update(context.Background(), emp))
	assert.Equal(t, "jdoe", emp.LoginID)
	assert.Equal(t, created, emp.CreatedAt)
	assert.Equal(t, updated, emp.UpdatedAt)

	mock.ExpectQuery(`UPDATE employees SET`).
		WillReturnRows(sqlmock.NewRows([]string{"login_id", "created_at", "updated_at"}))
	assert.ErrorIs(t, repo.Update(context.Background(), sampleEmployee("EMP00404", "x")), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmployeePostgresRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newEmployeeMock(t)
	defer cleanup()
	repo := NewEmployeePostgresRepository(db, nil)

	mock.ExpectExec(`DELETE FROM employees WHERE id = \$1`).WithArgs("EMP00001").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM employees WHERE id = \$1`).WithArgs("EMP00404").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "EMP00001"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "EMP00404"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmployeePostgresRepositoryLoginExists(t *testing.T) {
	db, mock, cleanup := newEmployeeMock(t)
	defer cleanup()
	repo := NewEmployeePostgresRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM employees WHERE login_id = $1)")).
		WithArgs("jdoe").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.LoginExists(context.Background(), "jdoe")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\%b\_c\\d`, escapeLike(`a%b_c\d`))
}
