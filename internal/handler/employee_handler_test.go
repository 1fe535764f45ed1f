package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/employee-records-api/internal/dto"
	"github.com/noah-isme/employee-records-api/internal/middleware"
	"github.com/noah-isme/employee-records-api/internal/models"
	"github.com/noah-isme/employee-records-api/internal/service"
	appErrors "github.com/noah-isme/employee-records-api/pkg/errors"
)

type testEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

type fakeEmployeeSrv struct {
	searchResult *service.EmployeeSearchResult
	lastFilter   models.EmployeeFilter
	employee     *models.Employee
	err          error

	createReq    dto.CreateEmployeeRequest
	updateReq    dto.UpdateEmployeeRequest
	upload       []byte
	uploadName   string
	actor        *models.JWTClaims
	deletedID    string
	bulkReq      dto.BulkDeleteRequest
	exportFormat string
	download     *service.DocumentDownload
	token        string
}

func (f *fakeEmployeeSrv) Search(_ context.Context, filter models.EmployeeFilter) (*service.EmployeeSearchResult, error) {
	f.lastFilter = filter
	return f.searchResult, f.err
}

func (f *fakeEmployeeSrv) Get(context.Context, string) (*models.Employee, error) {
	return f.employee, f.err
}

func (f *fakeEmployeeSrv) captureUpload(upload *service.DocumentUpload) {
	if upload == nil {
		return
	}
	f.uploadName = upload.FileName
	f.upload, _ = io.ReadAll(upload.Content)
}

func (f *fakeEmployeeSrv) Create(_ context.Context, req dto.CreateEmployeeRequest, upload *service.DocumentUpload, actor *models.JWTClaims) (*models.Employee, error) {
	f.createReq = req
	f.actor = actor
	f.captureUpload(upload)
	return f.employee, f.err
}

func (f *fakeEmployeeSrv) Update(_ context.Context, _ string, req dto.UpdateEmployeeRequest, upload *service.DocumentUpload, actor *models.JWTClaims) (*models.Employee, error) {
	f.updateReq = req
	f.actor = actor
	f.captureUpload(upload)
	return f.employee, f.err
}

func (f *fakeEmployeeSrv) Delete(_ context.Context, id string, actor *models.JWTClaims) error {
	f.deletedID = id
	f.actor = actor
	return f.err
}

func (f *fakeEmployeeSrv) BulkDelete(_ context.Context, req dto.BulkDeleteRequest, _ *models.JWTClaims) (*dto.BulkDeleteResponse, error) {
	f.bulkReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.BulkDeleteResponse{
		Results: []models.BulkDeleteResult{{ID: "EMP00001", Deleted: true}, {ID: "EMP00009", Code: "NOT_FOUND"}},
		Deleted: 1,
		Failed:  1,
	}, nil
}

func (f *fakeEmployeeSrv) Export(_ context.Context, filter models.EmployeeFilter, format string) (*service.ExportFile, error) {
	f.lastFilter = filter
	f.exportFormat = format
	if f.err != nil {
		return nil, f.err
	}
	return &service.ExportFile{FileName: "employees-20240615-100000.csv", ContentType: "text/csv", Data: []byte("id\nEMP00001\n")}, nil
}

func (f *fakeEmployeeSrv) DocumentLink(_ context.Context, id string) (*dto.DocumentLinkResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dto.DocumentLinkResponse{EmployeeID: id, Document: models.Document{FileName: "passport.pdf", URL: "/api/v1/employees/" + id + "/document/download?token=t"}}, nil
}

func (f *fakeEmployeeSrv) OpenDocument(_ context.Context, _ string, token string) (*service.DocumentDownload, error) {
	f.token = token
	return f.download, f.err
}

func testContext(method, target string, body io.Reader, contentType string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, body)
	if contentType != "" {
		c.Request.Header.Set("Content-Type", contentType)
	}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{Username: "admin", IsAdmin: true, Role: models.RoleAdmin})
	return c, rec
}

func multipartBody(t *testing.T, fields map[string]string, document []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if document != nil {
		part, err := writer.CreateFormFile("document", "passport.pdf")
		require.NoError(t, err)
		_, err = part.Write(document)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestEmployeeHandlerSearch(t *testing.T) {
	srv := &fakeEmployeeSrv{searchResult: &service.EmployeeSearchResult{
		Items:      []models.Employee{{ID: "EMP00001", FirstName: "John"}},
		Pagination: models.Pagination{Page: 2, Limit: 1, Total: 3},
		CacheHit:   true,
	}}
	handler := NewEmployeeHandler(srv)

	c, rec := testContext(http.MethodGet, "/employees?first_name=jo&department=HR&dob_start=1990-01-01&dob_end=1999-12-31&page=2&limit=1", nil, "")
	handler.Search(c)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, models.Pagination{Page: 2, Limit: 1, Total: 3}, *env.Pagination)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Contains(t, string(env.Data), "EMP00001")

	assert.Equal(t, "jo", srv.lastFilter.FirstName)
	assert.Equal(t, models.DepartmentHR, srv.lastFilter.Department)
	require.NotNil(t, srv.lastFilter.DOBStart)
	require.NotNil(t, srv.lastFilter.DOBEnd)
	assert.Equal(t, 1999, srv.lastFilter.DOBEnd.Year())
	assert.Equal(t, 2, srv.lastFilter.Page)
	assert.Equal(t, 1, srv.lastFilter.Limit)
}

func TestEmployeeHandlerSearchRejectsBadQuery(t *testing.T) {
	cases := []string{
		"/employees?page=two",
		"/employees?limit=1.5",
		"/employees?dob_start=15/05/1990",
	}
	for _, target := range cases {
		t.Run(target, func(t *testing.T) {
			srv := &fakeEmployeeSrv{}
			c, rec := testContext(http.MethodGet, target, nil, "")
			NewEmployeeHandler(srv).Search(c)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, appErrors.ErrValidation.Code, decodeEnvelope(t, rec).Error.Code)
		})
	}
}

func TestEmployeeHandlerGetNotFound(t *testing.T) {
	srv := &fakeEmployeeSrv{err: appErrors.Clone(appErrors.ErrNotFound, "employee not found")}
	c, rec := testContext(http.MethodGet, "/employees/EMP00009", nil, "")
	c.Params = gin.Params{{Key: "id", Value: "EMP00009"}}

	NewEmployeeHandler(srv).Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "employee not found", decodeEnvelope(t, rec).Error.Message)
}

func TestEmployeeHandlerCreateMultipart(t *testing.T) {
	srv := &fakeEmployeeSrv{employee: &models.Employee{ID: "EMP00004", LoginID: "adoe"}}
	body, contentType := multipartBody(t, map[string]string{
		"first_name":        "Ann",
		"last_name":         "Doe",
		"date_of_birth":     "1990-05-15",
		"department":        "Support",
		"salary":            "65000.50",
		"permanent_address": "1 Main St",
		"same_address":      "true",
	}, []byte("%PDF-1.4 content"))

	c, rec := testContext(http.MethodPost, "/employees", body, contentType)
	NewEmployeeHandler(srv).Create(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, string(decodeEnvelope(t, rec).Data), "EMP00004")
	assert.Equal(t, "Ann", srv.createReq.FirstName)
	assert.Equal(t, models.DepartmentSupport, srv.createReq.Department)
	assert.True(t, decimal.RequireFromString("65000.50").Equal(srv.createReq.Salary))
	assert.True(t, srv.createReq.SameAddress)
	assert.Equal(t, "passport.pdf", srv.uploadName)
	assert.Equal(t, []byte("%PDF-1.4 content"), srv.upload)
	require.NotNil(t, srv.actor)
	assert.Equal(t, "admin", srv.actor.Username)
}

func TestEmployeeHandlerCreateRejectsBadSalary(t *testing.T) {
	srv := &fakeEmployeeSrv{}
	body, contentType := multipartBody(t, map[string]string{"salary": "lots"}, nil)

	c, rec := testContext(http.MethodPost, "/employees", body, contentType)
	NewEmployeeHandler(srv).Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "salary must be a number", decodeEnvelope(t, rec).Error.Message)
}

func TestEmployeeHandlerCreateWithoutDocument(t *testing.T) {
	srv := &fakeEmployeeSrv{err: appErrors.Clone(appErrors.ErrValidation, "document is required")}
	body, contentType := multipartBody(t, map[string]string{"first_name": "Ann"}, nil)

	c, rec := testContext(http.MethodPost, "/employees", body, contentType)
	NewEmployeeHandler(srv).Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, srv.upload)
}

func TestEmployeeHandlerUpdateJSON(t *testing.T) {
	srv := &fakeEmployeeSrv{employee: &models.Employee{ID: "EMP00001"}}
	c, rec := testContext(http.MethodPut, "/employees/EMP00001", strings.NewReader(`{"salary": 91000, "department": "Finance"}`), "application/json")
	c.Params = gin.Params{{Key: "id", Value: "EMP00001"}}

	NewEmployeeHandler(srv).Update(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, srv.updateReq.Salary)
	assert.True(t, decimal.NewFromInt(91000).Equal(*srv.updateReq.Salary))
	require.NotNil(t, srv.updateReq.Department)
	assert.Equal(t, models.DepartmentFinance, *srv.updateReq.Department)
	assert.Nil(t, srv.updateReq.FirstName)
}

func TestEmployeeHandlerUpdateMultipartKeepsOmittedFields(t *testing.T) {
	srv := &fakeEmployeeSrv{employee: &models.Employee{ID: "EMP00001"}}
	body, contentType := multipartBody(t, map[string]string{"last_name": "Smith"}, []byte("%PDF-1.4 new"))
	c, rec := testContext(http.MethodPut, "/employees/EMP00001", body, contentType)
	c.Params = gin.Params{{Key: "id", Value: "EMP00001"}}

	NewEmployeeHandler(srv).Update(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, srv.updateReq.LastName)
	assert.Equal(t, "Smith", *srv.updateReq.LastName)
	assert.Nil(t, srv.updateReq.FirstName)
	assert.Nil(t, srv.updateReq.Salary)
	assert.Equal(t, []byte("%PDF-1.4 new"), srv.upload)
}

func TestEmployeeHandlerUpdateRejectsMalformedJSON(t *testing.T) {
	srv := &fakeEmployeeSrv{}
	c, rec := testContext(http.MethodPut, "/employees/EMP00001", strings.NewReader(`{"salary":`), "application/json")

	NewEmployeeHandler(srv).Update(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmployeeHandlerDelete(t *testing.T) {
	srv := &fakeEmployeeSrv{}
	c, rec := testContext(http.MethodDelete, "/employees/EMP00001", nil, "")
	c.Params = gin.Params{{Key: "id", Value: "EMP00001"}}

	NewEmployeeHandler(srv).Delete(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "EMP00001", srv.deletedID)
}

func TestEmployeeHandlerBulkDelete(t *testing.T) {
	srv := &fakeEmployeeSrv{}
	c, rec := testContext(http.MethodPost, "/employees/bulk-delete", strings.NewReader(`{"ids":["EMP00001","EMP00009"]}`), "application/json")

	NewEmployeeHandler(srv).BulkDelete(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"EMP00001", "EMP00009"}, srv.bulkReq.IDs)
	var resp dto.BulkDeleteResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &resp))
	assert.Equal(t, 1, resp.Deleted)
	assert.Equal(t, 1, resp.Failed)
}

func TestEmployeeHandlerExport(t *testing.T) {
	srv := &fakeEmployeeSrv{}
	c, rec := testContext(http.MethodGet, "/employees/export?format=csv&department=HR", nil, "")

	NewEmployeeHandler(srv).Export(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "csv", srv.exportFormat)
	assert.Equal(t, models.DepartmentHR, srv.lastFilter.Department)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "employees-20240615-100000.csv")
	assert.Equal(t, "id\nEMP00001\n", rec.Body.String())
}

func TestEmployeeHandlerDocumentLink(t *testing.T) {
	srv := &fakeEmployeeSrv{}
	c, rec := testContext(http.MethodGet, "/employees/EMP00001/document", nil, "")
	c.Params = gin.Params{{Key: "id", Value: "EMP00001"}}

	NewEmployeeHandler(srv).DocumentLink(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(decodeEnvelope(t, rec).Data), "/employees/EMP00001/document/download?token=")
}

func TestEmployeeHandlerDownloadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 body"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	srv := &fakeEmployeeSrv{download: &service.DocumentDownload{File: file, FileName: "passport.pdf", MimeType: "application/pdf", SizeBytes: 13}}
	c, rec := testContext(http.MethodGet, "/employees/EMP00001/document/download?token=abc", nil, "")
	c.Params = gin.Params{{Key: "id", Value: "EMP00001"}}

	NewEmployeeHandler(srv).DownloadDocument(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", srv.token)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "passport.pdf")
	assert.Equal(t, "%PDF-1.4 body", rec.Body.String())
}

func TestEmployeeHandlerDownloadRejectsBadToken(t *testing.T) {
	srv := &fakeEmployeeSrv{err: appErrors.Clone(appErrors.ErrUnauthorized, "invalid download token")}
	c, rec := testContext(http.MethodGet, "/employees/EMP00001/document/download?token=bad", nil, "")

	NewEmployeeHandler(srv).DownloadDocument(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
