package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/employee-records-api/internal/dto"
	"github.com/noah-isme/employee-records-api/internal/middleware"
	"github.com/noah-isme/employee-records-api/internal/models"
	"github.com/noah-isme/employee-records-api/internal/service"
	appErrors "github.com/noah-isme/employee-records-api/pkg/errors"
	"github.com/noah-isme/employee-records-api/pkg/response"
)

const documentField = "document"

type employeeService interface {
	Search(ctx context.Context, filter models.EmployeeFilter) (*service.EmployeeSearchResult, error)
	Get(ctx context.Context, id string) (*models.Employee, error)
	Create(ctx context.Context, req dto.CreateEmployeeRequest, upload *service.DocumentUpload, actor *models.JWTClaims) (*models.Employee, error)
	Update(ctx context.Context, id string, req dto.UpdateEmployeeRequest, upload *service.DocumentUpload, actor *models.JWTClaims) (*models.Employee, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
	BulkDelete(ctx context.Context, req dto.BulkDeleteRequest, actor *models.JWTClaims) (*dto.BulkDeleteResponse, error)
	Export(ctx context.Context, filter models.EmployeeFilter, format string) (*service.ExportFile, error)
	DocumentLink(ctx context.Context, id string) (*dto.DocumentLinkResponse, error)
	OpenDocument(ctx context.Context, id, token string) (*service.DocumentDownload, error)
}

// EmployeeHandler exposes employee record endpoints.
type EmployeeHandler struct {
	service employeeService
}

// NewEmployeeHandler constructs the handler.
func NewEmployeeHandler(svc employeeService) *EmployeeHandler {
	return &EmployeeHandler{service: svc}
}

// Search godoc
// @Summary Search employees
// @Description Filters are conjunctive; text filters match case-insensitive substrings.
// @Tags Employees
// @Produce json
// @Security BearerAuth
// @Param id query string false "Employee ID substring"
// @Param first_name query string false "First name substring"
// @Param last_name query string false "Last name substring"
// @Param login_id query string false "Login handle substring"
// @Param department query string false "Department" Enums(Engineering, Support, HR, Finance)
// @Param dob_start query string false "Born on or after (YYYY-MM-DD)"
// @Param dob_end query string false "Born on or before (YYYY-MM-DD)"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /employees [get]
func (h *EmployeeHandler) Search(c *gin.Context) {
	filter, err := parseEmployeeFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Search(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, result.CacheHit)
	pagination := result.Pagination
	response.JSON(c, http.StatusOK, result.Items, &pagination, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get employee
// @Tags Employees
// @Produce json
// @Security BearerAuth
// @Param id path string true "Employee ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /employees/{id} [get]
func (h *EmployeeHandler) Get(c *gin.Context) {
	employee, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, employee, nil)
}

// Create godoc
// @Summary Add employee
// @Tags Employees
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param first_name formData string true "First name"
// @Param middle_name formData string false "Middle name"
// @Param last_name formData string true "Last name"
// @Param date_of_birth formData string true "Date of birth (YYYY-MM-DD)"
// @Param department formData string true "Department"
// @Param salary formData number true "Salary"
// @Param permanent_address formData string true "Permanent address"
// @Param current_address formData string false "Current address"
// @Param same_address formData bool false "Copy permanent address into current address"
// @Param document formData file true "Identity document (PDF, 10KB to 1MB)"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /employees [post]
func (h *EmployeeHandler) Create(c *gin.Context) {
	req, err := createRequestFromForm(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	upload, closeUpload, err := documentFromForm(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer closeUpload()

	employee, err := h.service.Create(c.Request.Context(), req, upload, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, employee)
}

// Update godoc
// @Summary Update employee
// @Description Accepts JSON or multipart form data. Only provided fields change; a new document replaces the old one.
// @Tags Employees
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param id path string true "Employee ID"
// @Param payload body dto.UpdateEmployeeRequest false "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /employees/{id} [put]
func (h *EmployeeHandler) Update(c *gin.Context) {
	var (
		req    dto.UpdateEmployeeRequest
		upload *service.DocumentUpload
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		var err error
		if req, err = updateRequestFromForm(c); err != nil {
			response.Error(c, err)
			return
		}
		var closeUpload func()
		if upload, closeUpload, err = documentFromForm(c); err != nil {
			response.Error(c, err)
			return
		}
		defer closeUpload()
	} else if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid employee payload"))
		return
	}

	employee, err := h.service.Update(c.Request.Context(), c.Param("id"), req, upload, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, employee, nil)
}

// Delete godoc
// @Summary Delete employee
// @Tags Employees
// @Security BearerAuth
// @Param id path string true "Employee ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /employees/{id} [delete]
func (h *EmployeeHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// BulkDelete godoc
// @Summary Delete several employees
// @Description Each identifier is deleted independently and reported per id.
// @Tags Employees
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.BulkDeleteRequest true "Identifiers"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /employees/bulk-delete [post]
func (h *EmployeeHandler) BulkDelete(c *gin.Context) {
	var req dto.BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk delete payload"))
		return
	}
	result, err := h.service.BulkDelete(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export employees
// @Description Renders every matching record as CSV, XLSX or PDF.
// @Tags Employees
// @Produce octet-stream
// @Security BearerAuth
// @Param format query string false "Export format" Enums(csv, xlsx, pdf)
// @Param department query string false "Department"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /employees/export [get]
func (h *EmployeeHandler) Export(c *gin.Context) {
	filter, err := parseEmployeeFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.service.Export(c.Request.Context(), filter, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.FileName, file.ContentType, file.Data)
}

// DocumentLink godoc
// @Summary Get identity document link
// @Tags Employees
// @Produce json
// @Security BearerAuth
// @Param id path string true "Employee ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /employees/{id}/document [get]
func (h *EmployeeHandler) DocumentLink(c *gin.Context) {
	link, err := h.service.DocumentLink(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// DownloadDocument godoc
// @Summary Download identity document
// @Tags Employees
// @Produce application/pdf
// @Param id path string true "Employee ID"
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /employees/{id}/document/download [get]
func (h *EmployeeHandler) DownloadDocument(c *gin.Context) {
	download, err := h.service.OpenDocument(c.Request.Context(), c.Param("id"), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.FileName))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, download.SizeBytes, download.MimeType, download.File, nil)
}

func parseEmployeeFilter(c *gin.Context) (models.EmployeeFilter, error) {
	filter := models.EmployeeFilter{
		ID:         c.Query("id"),
		FirstName:  c.Query("first_name"),
		LastName:   c.Query("last_name"),
		LoginID:    c.Query("login_id"),
		Department: models.Department(strings.TrimSpace(c.Query("department"))),
	}
	var err error
	if filter.DOBStart, err = optionalDate(c.Query("dob_start"), "dob_start"); err != nil {
		return filter, err
	}
	if filter.DOBEnd, err = optionalDate(c.Query("dob_end"), "dob_end"); err != nil {
		return filter, err
	}
	if filter.Page, err = optionalInt(c.Query("page"), "page"); err != nil {
		return filter, err
	}
	if filter.Limit, err = optionalInt(c.Query("limit"), "limit"); err != nil {
		return filter, err
	}
	return filter, nil
}

func optionalDate(raw, field string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := models.ParseDate(raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, field+" must be a date in YYYY-MM-DD format")
	}
	return &t, nil
}

func optionalInt(raw, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, field+" must be an integer")
	}
	return n, nil
}

func createRequestFromForm(c *gin.Context) (dto.CreateEmployeeRequest, error) {
	req := dto.CreateEmployeeRequest{
		FirstName:        c.PostForm("first_name"),
		MiddleName:       c.PostForm("middle_name"),
		LastName:         c.PostForm("last_name"),
		DateOfBirth:      c.PostForm("date_of_birth"),
		Department:       models.Department(c.PostForm("department")),
		PermanentAddress: c.PostForm("permanent_address"),
		CurrentAddress:   c.PostForm("current_address"),
	}
	if raw := strings.TrimSpace(c.PostForm("salary")); raw != "" {
		salary, err := decimal.NewFromString(raw)
		if err != nil {
			return req, appErrors.Clone(appErrors.ErrValidation, "salary must be a number")
		}
		req.Salary = salary
	}
	same, err := formBool(c, "same_address")
	if err != nil {
		return req, err
	}
	req.SameAddress = same
	return req, nil
}

func updateRequestFromForm(c *gin.Context) (dto.UpdateEmployeeRequest, error) {
	var req dto.UpdateEmployeeRequest
	text := func(field string) *string {
		if v, ok := c.GetPostForm(field); ok {
			return &v
		}
		return nil
	}
	req.FirstName = text("first_name")
	req.MiddleName = text("middle_name")
	req.LastName = text("last_name")
	req.DateOfBirth = text("date_of_birth")
	req.PermanentAddress = text("permanent_address")
	req.CurrentAddress = text("current_address")
	if v := text("department"); v != nil {
		dept := models.Department(*v)
		req.Department = &dept
	}
	if v := text("salary"); v != nil {
		salary, err := decimal.NewFromString(strings.TrimSpace(*v))
		if err != nil {
			return req, appErrors.Clone(appErrors.ErrValidation, "salary must be a number")
		}
		req.Salary = &salary
	}
	same, err := formBool(c, "same_address")
	if err != nil {
		return req, err
	}
	req.SameAddress = same
	return req, nil
}

func formBool(c *gin.Context, field string) (bool, error) {
	raw := strings.TrimSpace(c.PostForm(field))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, appErrors.Clone(appErrors.ErrValidation, field+" must be true or false")
	}
	return v, nil
}

// documentFromForm returns a nil upload when no document was attached.
func documentFromForm(c *gin.Context) (*service.DocumentUpload, func(), error) {
	noop := func() {}
	fileHeader, err := c.FormFile(documentField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, noop, nil
		}
		return nil, noop, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid multipart payload")
	}
	src, err := fileHeader.Open()
	if err != nil {
		return nil, noop, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open document")
	}
	return &service.DocumentUpload{
		FileName: fileHeader.Filename,
		Size:     fileHeader.Size,
		Content:  src,
	}, func() { _ = src.Close() }, nil
}
