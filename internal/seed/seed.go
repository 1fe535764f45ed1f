// Package seed loads initial employee records from YAML.
package seed

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/employee-records-api/internal/models"
)

//go:embed employees.yaml
var defaultEmployees []byte

// Store is the subset of the record store the seeder writes to.
type Store interface {
	Create(ctx context.Context, employee *models.Employee) error
	FindByID(ctx context.Context, id string) (*models.Employee, error)
	LoginExists(ctx context.Context, login string) (bool, error)
}

type file struct {
	Employees []record `yaml:"employees"`
}

type record struct {
	ID               string   `yaml:"id"`
	FirstName        string   `yaml:"first_name"`
	MiddleName       string   `yaml:"middle_name"`
	LastName         string   `yaml:"last_name"`
	LoginID          string   `yaml:"login_id"`
	DateOfBirth      string   `yaml:"date_of_birth"`
	Department       string   `yaml:"department"`
	Salary           string   `yaml:"salary"`
	PermanentAddress string   `yaml:"permanent_address"`
	CurrentAddress   string   `yaml:"current_address"`
	Document         document `yaml:"document"`
}

type document struct {
	FileName  string `yaml:"file_name"`
	URL       string `yaml:"url"`
	MimeType  string `yaml:"mime_type"`
	SizeBytes int64  `yaml:"size_bytes"`
}

// Default returns the embedded records.
func Default() ([]models.Employee, error) {
	return Load(bytes.NewReader(defaultEmployees))
}

// LoadFile reads records from path, or the embedded defaults when path is empty.
func LoadFile(path string) ([]models.Employee, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses and validates employee records.
func Load(r io.Reader) ([]models.Employee, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var parsed file
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse seed YAML: %w", err)
	}

	out := make([]models.Employee, 0, len(parsed.Employees))
	ids := make(map[string]struct{}, len(parsed.Employees))
	logins := make(map[string]struct{}, len(parsed.Employees))
	for i, rec := range parsed.Employees {
		emp, err := rec.toModel()
		if err != nil {
			return nil, fmt.Errorf("employees[%d]: %w", i, err)
		}
		if _, dup := ids[emp.ID]; dup {
			return nil, fmt.Errorf("employees[%d]: duplicate id %s", i, emp.ID)
		}
		if _, dup := logins[emp.LoginID]; dup {
			return nil, fmt.Errorf("employees[%d]: duplicate login_id %s", i, emp.LoginID)
		}
		ids[emp.ID] = struct{}{}
		logins[emp.LoginID] = struct{}{}
		out = append(out, emp)
	}
	return out, nil
}

func (r record) toModel() (models.Employee, error) {
	if strings.TrimSpace(r.ID) == "" || strings.TrimSpace(r.LoginID) == "" {
		return models.Employee{}, errors.New("id and login_id are required")
	}
	if strings.TrimSpace(r.FirstName) == "" || strings.TrimSpace(r.LastName) == "" {
		return models.Employee{}, errors.New("first_name and last_name are required")
	}
	dob, err := models.ParseDate(r.DateOfBirth)
	if err != nil {
		return models.Employee{}, fmt.Errorf("date_of_birth: %w", err)
	}
	dept := models.Department(r.Department)
	if !dept.Valid() {
		return models.Employee{}, fmt.Errorf("unknown department %q", r.Department)
	}
	salary, err := decimal.NewFromString(r.Salary)
	if err != nil {
		return models.Employee{}, fmt.Errorf("salary: %w", err)
	}
	if !salary.IsPositive() {
		return models.Employee{}, errors.New("salary must be greater than 0")
	}

	emp := models.Employee{
		ID:               r.ID,
		FirstName:        r.FirstName,
		MiddleName:       r.MiddleName,
		LastName:         r.LastName,
		LoginID:          r.LoginID,
		DateOfBirth:      models.TruncateDate(dob),
		Department:       dept,
		Salary:           salary,
		PermanentAddress: r.PermanentAddress,
		CurrentAddress:   r.CurrentAddress,
	}
	if r.Document.URL != "" {
		mimeType := r.Document.MimeType
		if mimeType == "" {
			mimeType = "application/pdf"
		}
		emp.Document = &models.Document{
			FileName:  r.Document.FileName,
			MimeType:  mimeType,
			SizeBytes: r.Document.SizeBytes,
			URL:       r.Document.URL,
		}
	}
	return emp, nil
}

// Apply inserts records that are not already present and returns how many were added.
func Apply(ctx context.Context, store Store, records []models.Employee, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	inserted := 0
	for i := range records {
		emp := records[i].Clone()
		if _, err := store.FindByID(ctx, emp.ID); err == nil {
			logger.Debug("seed record exists, skipping", zap.String("employee_id", emp.ID))
			continue
		} else if !errors.Is(err, sql.ErrNoRows) {
			return inserted, fmt.Errorf("lookup seed %s: %w", emp.ID, err)
		}
		taken, err := store.LoginExists(ctx, emp.LoginID)
		if err != nil {
			return inserted, fmt.Errorf("lookup seed login %s: %w", emp.LoginID, err)
		}
		if taken {
			logger.Warn("seed login already assigned, skipping", zap.String("employee_id", emp.ID), zap.String("login_id", emp.LoginID))
			continue
		}
		if err := store.Create(ctx, &emp); err != nil {
			return inserted, fmt.Errorf("insert seed %s: %w", emp.ID, err)
		}
		inserted++
	}
	logger.Info("seed applied", zap.Int("inserted", inserted), zap.Int("total", len(records)))
	return inserted, nil
}
