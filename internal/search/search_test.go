package search

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/employee-records-api/internal/models"
)

func date(raw string) time.Time {
	t, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		panic(err)
	}
	return t
}

func seedRecords() []models.Employee {
	return []models.Employee{
		{ID: "EMP00001", FirstName: "John", LastName: "Doe", LoginID: "jdoe", DateOfBirth: date("1990-05-15"), Department: models.DepartmentEngineering},
		{ID: "EMP00002", FirstName: "Jane", MiddleName: "Marie", LastName: "Smith", LoginID: "jsmith", DateOfBirth: date("1988-09-23"), Department: models.DepartmentHR},
		{ID: "EMP00003", FirstName: "Michael", MiddleName: "David", LastName: "Johnson", LoginID: "mjohnson", DateOfBirth: date("1992-11-08"), Department: models.DepartmentFinance},
	}
}

func ids(records []models.Employee) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestApplyFilters(t *testing.T) {
	start := date("1989-01-01")
	end := date("1992-11-08")
	hr := models.DepartmentHR

	cases := []struct {
		name   string
		filter models.EmployeeFilter
		want   []string
	}{
		{name: "no criteria", filter: models.EmployeeFilter{}, want: []string{"EMP00001", "EMP00002", "EMP00003"}},
		{name: "first name case insensitive", filter: models.EmployeeFilter{FirstName: "JO"}, want: []string{"EMP00001"}},
		{name: "last name substring", filter: models.EmployeeFilter{LastName: "son"}, want: []string{"EMP00003"}},
		{name: "id substring", filter: models.EmployeeFilter{ID: "emp0000"}, want: []string{"EMP00001", "EMP00002", "EMP00003"}},
		{name: "login", filter: models.EmployeeFilter{LoginID: "smi"}, want: []string{"EMP00002"}},
		{name: "department exact", filter: models.EmployeeFilter{Department: hr}, want: []string{"EMP00002"}},
		{name: "dob inclusive range", filter: models.EmployeeFilter{DOBStart: &start, DOBEnd: &end}, want: []string{"EMP00001", "EMP00003"}},
		{name: "conjunctive", filter: models.EmployeeFilter{FirstName: "j", Department: models.DepartmentEngineering}, want: []string{"EMP00001"}},
		{name: "no match", filter: models.EmployeeFilter{FirstName: "zzz"}, want: []string{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, total := Apply(seedRecords(), tc.filter)
			assert.Equal(t, tc.want, ids(page))
			assert.Equal(t, len(tc.want), total)
		})
	}
}

func TestApplyDOBBoundsIgnoreTimeOfDay(t *testing.T) {
	start := date("1990-05-15").Add(23 * time.Hour)
	end := date("1990-05-15")
	page, total := Apply(seedRecords(), models.EmployeeFilter{DOBStart: &start, DOBEnd: &end})
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{"EMP00001"}, ids(page))
}

func TestApplyPagination(t *testing.T) {
	records := make([]models.Employee, 0, 25)
	for i := 1; i <= 25; i++ {
		records = append(records, models.Employee{ID: fmt.Sprintf("EMP%05d", i), FirstName: "Ann"})
	}

	page, total := Apply(records, models.EmployeeFilter{Page: 3, Limit: 10})
	assert.Equal(t, 25, total)
	assert.Equal(t, []string{"EMP00021", "EMP00022", "EMP00023", "EMP00024", "EMP00025"}, ids(page))

	page, total = Apply(records, models.EmployeeFilter{Page: 4, Limit: 10})
	assert.Equal(t, 25, total)
	require.NotNil(t, page)
	assert.Empty(t, page)

	page, total = Apply(records, models.EmployeeFilter{})
	assert.Equal(t, 25, total)
	assert.Len(t, page, 25)
}

func TestApplyPagesPartitionMatches(t *testing.T) {
	records := make([]models.Employee, 0, 23)
	for i := 1; i <= 23; i++ {
		records = append(records, models.Employee{ID: fmt.Sprintf("EMP%05d", i)})
	}
	seen := make([]string, 0, 23)
	for p := 1; p <= 5; p++ {
		page, total := Apply(records, models.EmployeeFilter{Page: p, Limit: 5})
		assert.Equal(t, 23, total)
		seen = append(seen, ids(page)...)
	}
	assert.Equal(t, ids(records), seen)
}

func TestApplyIsPure(t *testing.T) {
	records := seedRecords()
	before := ids(records)
	_, _ = Apply(records, models.EmployeeFilter{FirstName: "j", Page: 1, Limit: 1})
	assert.Equal(t, before, ids(records))
}

func TestNormalize(t *testing.T) {
	got := Normalize(models.EmployeeFilter{Page: 0, Limit: 0, FirstName: "  jo "}, 10, 100)
	assert.Equal(t, 1, got.Page)
	assert.Equal(t, 10, got.Limit)
	assert.Equal(t, "jo", got.FirstName)

	got = Normalize(models.EmployeeFilter{Page: -3, Limit: 1000}, 10, 100)
	assert.Equal(t, 1, got.Page)
	assert.Equal(t, 100, got.Limit)

	got = Normalize(models.EmployeeFilter{Page: 2, Limit: 25}, 0, 0)
	assert.Equal(t, 2, got.Page)
	assert.Equal(t, 25, got.Limit)

	dob := date("1990-05-15").Add(15 * time.Hour)
	got = Normalize(models.EmployeeFilter{DOBStart: &dob}, 10, 100)
	require.NotNil(t, got.DOBStart)
	assert.Equal(t, date("1990-05-15"), *got.DOBStart)
}

func TestWindow(t *testing.T) {
	start, end := Window(2, 10, 15)
	assert.Equal(t, 10, start)
	assert.Equal(t, 15, end)

	start, end = Window(5, 10, 15)
	assert.Equal(t, 15, start)
	assert.Equal(t, 15, end)
}
