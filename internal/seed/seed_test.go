package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/employee-records-api/internal/models"
	"github.com/noah-isme/employee-records-api/internal/repository"
)

func TestDefaultRecords(t *testing.T) {
	records, err := Default()
	require.NoError(t, err)
	require.Len(t, records, 3)

	want := []struct {
		id, name, login, dob string
		dept                 models.Department
		salary               int64
	}{
		{"EMP00001", "John Doe", "jdoe", "1990-05-15", models.DepartmentEngineering, 85000},
		{"EMP00002", "Jane Marie Smith", "jsmith", "1988-09-23", models.DepartmentHR, 75000},
		{"EMP00003", "Michael David Johnson", "mjohnson", "1992-11-08", models.DepartmentFinance, 90000},
	}
	for i, w := range want {
		got := records[i]
		assert.Equal(t, w.id, got.ID)
		assert.Equal(t, w.name, got.FullName())
		assert.Equal(t, w.login, got.LoginID)
		assert.Equal(t, w.dob, got.DateOfBirth.Format(models.DateLayout))
		assert.Equal(t, w.dept, got.Department)
		assert.Equal(t, w.salary, got.Salary.IntPart())
		require.NotNil(t, got.Document)
		assert.True(t, got.Document.Static())
	}
}

func TestLoadRejectsInvalidRecords(t *testing.T) {
	cases := map[string]string{
		"bad department": "employees:\n  - {id: EMP1, login_id: a, first_name: A, last_name: B, date_of_birth: '1990-01-01', department: Legal, salary: '1'}\n",
		"bad salary":     "employees:\n  - {id: EMP1, login_id: a, first_name: A, last_name: B, date_of_birth: '1990-01-01', department: HR, salary: '0'}\n",
		"bad date":       "employees:\n  - {id: EMP1, login_id: a, first_name: A, last_name: B, date_of_birth: 'soon', department: HR, salary: '1'}\n",
		"duplicate id":   "employees:\n  - {id: EMP1, login_id: a, first_name: A, last_name: B, date_of_birth: '1990-01-01', department: HR, salary: '1'}\n  - {id: EMP1, login_id: b, first_name: A, last_name: B, date_of_birth: '1990-01-01', department: HR, salary: '1'}\n",
		"not yaml":       "employees: [",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(raw))
			assert.Error(t, err)
		})
	}
}

func TestApplySkipsExisting(t *testing.T) {
	store := repository.NewEmployeeMemoryRepository()
	records, err := Default()
	require.NoError(t, err)

	inserted, err := Apply(context.Background(), store, records, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)

	inserted, err = Apply(context.Background(), store, records, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	ids, err := store.ListIdentifiers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"EMP00001", "EMP00002", "EMP00003"}, ids)
}

func TestLoadFileDefaultsToEmbedded(t *testing.T) {
	records, err := LoadFile("")
	require.NoError(t, err)
	assert.Len(t, records, 3)

	_, err = LoadFile("/nonexistent/seed.yaml")
	assert.Error(t, err)
}
