package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/employee-records-api/internal/dto"
	"github.com/noah-isme/employee-records-api/internal/models"
	"github.com/noah-isme/employee-records-api/internal/repository"
	"github.com/noah-isme/employee-records-api/internal/search"
	appErrors "github.com/noah-isme/employee-records-api/pkg/errors"
	"github.com/noah-isme/employee-records-api/pkg/export"
	"github.com/noah-isme/employee-records-api/pkg/logger"
)

const (
	createMaxAttempts    = 3
	adultAge             = 18
	defaultExportMaxRows = 5000
)

type employeeStore interface {
	Create(ctx context.Context, employee *models.Employee) error
	Update(ctx context.Context, employee *models.Employee) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*models.Employee, error)
	Search(ctx context.Context, filter models.EmployeeFilter) ([]models.Employee, int, error)
	ListIdentifiers(ctx context.Context) ([]string, error)
	LoginExists(ctx context.Context, login string) (bool, error)
	Count(ctx context.Context) (int, error)
}

type employeeDocuments interface {
	Store(ctx context.Context, upload *DocumentUpload) (*models.Document, error)
	Link(employeeID string, doc *models.Document) (string, *time.Time, error)
	Decorate(e *models.Employee)
	Open(ctx context.Context, employeeID, token string, doc *models.Document) (*DocumentDownload, error)
	Discard(doc *models.Document)
}

// EmployeeServiceConfig bounds paging and exports.
type EmployeeServiceConfig struct {
	DefaultLimit  int
	MaxLimit      int
	ExportMaxRows int
	CacheTTL      time.Duration
}

// EmployeeSearchResult is one page of search output.
type EmployeeSearchResult struct {
	Items      []models.Employee
	Pagination models.Pagination
	CacheHit   bool
}

// ExportFile is a rendered export ready for download.
type ExportFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

type searchCacheKey struct {
	Generation uint64                `json:"generation"`
	Filter     models.EmployeeFilter `json:"filter"`
}

type cachedSearch struct {
	Items []models.Employee `json:"items"`
	Total int               `json:"total"`
}

// EmployeeService implements the employee record use cases.
// Create, update and delete are serialized so identifier and login generation
// never race with the insert that consumes them.
type EmployeeService struct {
	store     employeeStore
	ids       *IdentifierGenerator
	documents employeeDocuments
	cache     *CacheService
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       EmployeeServiceConfig
	renderers map[string]export.Renderer
	now       func() time.Time

	writeMu sync.Mutex
	// generation advances after every committed mutation. Search pages are
	// cached under the generation they were read in.
	generation atomic.Uint64
}

// NewEmployeeService wires the service. cache, audit and metrics may be nil.
func NewEmployeeService(store employeeStore, ids *IdentifierGenerator, documents employeeDocuments, cache *CacheService, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg EmployeeServiceConfig) *EmployeeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	if ids == nil {
		ids = NewIdentifierGenerator(nil, 0)
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = search.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = search.MaxLimit
	}
	if cfg.ExportMaxRows <= 0 {
		cfg.ExportMaxRows = defaultExportMaxRows
	}
	return &EmployeeService{
		store:     store,
		ids:       ids,
		documents: documents,
		cache:     cache,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		renderers: map[string]export.Renderer{
			"csv":  export.NewCSVExporter(),
			"xlsx": export.NewXLSXExporter(),
			"pdf":  export.NewPDFExporter(),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Search returns one page of matching records with document links applied.
func (s *EmployeeService) Search(ctx context.Context, filter models.EmployeeFilter) (*EmployeeSearchResult, error) {
	filter = search.Normalize(filter, s.cfg.DefaultLimit, s.cfg.MaxLimit)
	if filter.DOBStart != nil && filter.DOBEnd != nil && filter.DOBStart.After(*filter.DOBEnd) {
		return nil, validationFailure("dob_start must not be after dob_end")
	}
	if filter.Department != "" && !filter.Department.Valid() {
		return nil, validationFailure("department must be one of: Engineering, Support, HR, Finance")
	}

	gen := s.generation.Load()
	key := SearchKey(searchCacheKey{Generation: gen, Filter: filter})
	var cached cachedSearch
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &EmployeeSearchResult{
			Items:      nonNil(cached.Items),
			Pagination: models.Pagination{Page: filter.Page, Limit: filter.Limit, Total: cached.Total},
			CacheHit:   true,
		}, nil
	}

	items, total, err := s.store.Search(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search employees")
	}
	items = nonNil(items)
	for i := range items {
		s.documents.Decorate(&items[i])
	}
	if s.generation.Load() == gen {
		_ = s.cache.Set(ctx, key, cachedSearch{Items: items, Total: total}, s.cfg.CacheTTL)
	}

	return &EmployeeSearchResult{
		Items:      items,
		Pagination: models.Pagination{Page: filter.Page, Limit: filter.Limit, Total: total},
	}, nil
}

// Get returns a single record.
func (s *EmployeeService) Get(ctx context.Context, id string) (*models.Employee, error) {
	employee, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	s.documents.Decorate(employee)
	return employee, nil
}

// DocumentLink returns a retrievable link to the employee's identity document.
func (s *EmployeeService) DocumentLink(ctx context.Context, id string) (*dto.DocumentLinkResponse, error) {
	employee, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	link, expiresAt, err := s.documents.Link(employee.ID, employee.Document)
	if err != nil {
		return nil, err
	}
	doc := *employee.Document
	doc.URL = link
	return &dto.DocumentLinkResponse{Document: doc, EmployeeID: employee.ID, ExpiresAt: expiresAt}, nil
}

// OpenDocument verifies a signed download token and opens the employee's document.
func (s *EmployeeService) OpenDocument(ctx context.Context, id, token string) (*DocumentDownload, error) {
	employee, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if employee.Document == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "employee has no document")
	}
	return s.documents.Open(ctx, employee.ID, token, employee.Document)
}

// Create validates the request, stores the document and inserts a new record.
func (s *EmployeeService) Create(ctx context.Context, req dto.CreateEmployeeRequest, upload *DocumentUpload, actor *models.JWTClaims) (*models.Employee, error) {
	req.Normalize()
	dob, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}
	if upload == nil || upload.Content == nil {
		return nil, validationFailure("document is required")
	}
	if LoginCandidate(req.FirstName, req.LastName) == "" {
		return nil, validationFailure("first_name and last_name must contain letters")
	}

	doc, err := s.documents.Store(ctx, upload)
	if err != nil {
		return nil, err
	}

	employee, err := s.insert(ctx, req, dob, doc)
	if err != nil {
		s.documents.Discard(doc)
		return nil, err
	}

	s.afterMutation(ctx)
	s.record(ctx, actor, models.AuditActionEmployeeCreate, employee.ID, map[string]interface{}{
		"login_id":   employee.LoginID,
		"department": employee.Department,
	})
	logger.WithContext(ctx, s.logger).Info("employee created",
		zap.String("employee_id", employee.ID),
		zap.String("login_id", employee.LoginID),
		zap.String("actor", actorName(actor)))

	out := employee.Clone()
	s.documents.Decorate(&out)
	return &out, nil
}

func (s *EmployeeService) insert(ctx context.Context, req dto.CreateEmployeeRequest, dob time.Time, doc *models.Document) (*models.Employee, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var lastErr error
	for attempt := 0; attempt < createMaxAttempts; attempt++ {
		existing, err := s.store.ListIdentifiers(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read identifiers")
		}
		login, err := s.ids.NextLoginHandle(ctx, req.FirstName, req.LastName, s.store.LoginExists)
		if err != nil {
			switch {
			case errors.Is(err, ErrLoginNamespaceExhausted):
				return nil, appErrors.Wrap(err, appErrors.ErrCapacity.Code, appErrors.ErrCapacity.Status, appErrors.ErrCapacity.Message)
			case errors.Is(err, ErrEmptyLoginCandidate):
				return nil, validationFailure("first_name and last_name must contain letters")
			default:
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate login")
			}
		}

		employee := &models.Employee{
			ID:               NextEmployeeID(existing),
			FirstName:        req.FirstName,
			MiddleName:       req.MiddleName,
			LastName:         req.LastName,
			LoginID:          login,
			DateOfBirth:      dob,
			Department:       req.Department,
			Salary:           req.Salary,
			PermanentAddress: req.PermanentAddress,
			CurrentAddress:   req.CurrentAddress,
			Document:         doc,
		}
		err = s.store.Create(ctx, employee)
		if err == nil {
			return employee, nil
		}
		if !errors.Is(err, repository.ErrDuplicateKey) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create employee")
		}
		lastErr = err
		s.logger.Warn("identifier collision on insert, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return nil, appErrors.Wrap(lastErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "employee identifier or login already exists")
}

// Update applies a partial update. A new document replaces and discards the old one.
func (s *EmployeeService) Update(ctx context.Context, id string, req dto.UpdateEmployeeRequest, upload *DocumentUpload, actor *models.JWTClaims) (*models.Employee, error) {
	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.validateRequest(s.merge(current, req)); err != nil {
		return nil, err
	}

	var newDoc *models.Document
	if upload != nil && upload.Content != nil {
		if newDoc, err = s.documents.Store(ctx, upload); err != nil {
			return nil, err
		}
	}

	updated, replaced, err := s.apply(ctx, id, req, newDoc)
	if err != nil {
		s.documents.Discard(newDoc)
		return nil, err
	}
	if replaced != nil {
		s.documents.Discard(replaced)
	}

	s.afterMutation(ctx)
	s.record(ctx, actor, models.AuditActionEmployeeUpdate, updated.ID, map[string]interface{}{
		"fields":           req.Fields(),
		"document_changed": newDoc != nil,
	})
	logger.WithContext(ctx, s.logger).Info("employee updated", zap.String("employee_id", updated.ID), zap.String("actor", actorName(actor)))

	out := updated.Clone()
	s.documents.Decorate(&out)
	return &out, nil
}

func (s *EmployeeService) apply(ctx context.Context, id string, req dto.UpdateEmployeeRequest, newDoc *models.Document) (*models.Employee, *models.Document, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.find(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	merged := s.merge(current, req)
	dob, err := s.validateRequest(merged)
	if err != nil {
		return nil, nil, err
	}

	updated := current.Clone()
	updated.FirstName = merged.FirstName
	updated.MiddleName = merged.MiddleName
	updated.LastName = merged.LastName
	updated.DateOfBirth = dob
	updated.Department = merged.Department
	updated.Salary = merged.Salary
	updated.PermanentAddress = merged.PermanentAddress
	updated.CurrentAddress = merged.CurrentAddress

	var replaced *models.Document
	if newDoc != nil {
		replaced = current.Document
		updated.Document = newDoc
	}

	if err := s.store.Update(ctx, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "employee not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update employee")
	}
	return &updated, replaced, nil
}

// Delete removes a record and schedules its document for removal.
func (s *EmployeeService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	doc, err := s.remove(ctx, id)
	if err != nil {
		return err
	}
	s.documents.Discard(doc)
	s.afterMutation(ctx)
	s.record(ctx, actor, models.AuditActionEmployeeDelete, id, nil)
	logger.WithContext(ctx, s.logger).Info("employee deleted", zap.String("employee_id", id), zap.String("actor", actorName(actor)))
	return nil
}

func (s *EmployeeService) remove(ctx context.Context, id string) (*models.Document, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "employee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete employee")
	}
	return current.Document, nil
}

// BulkDelete deletes each identifier independently and reports every outcome.
func (s *EmployeeService) BulkDelete(ctx context.Context, req dto.BulkDeleteRequest, actor *models.JWTClaims) (*dto.BulkDeleteResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid bulk delete payload")
	}
	seen := make(map[string]struct{}, len(req.IDs))
	resp := &dto.BulkDeleteResponse{Results: make([]models.BulkDeleteResult, 0, len(req.IDs))}
	for _, raw := range req.IDs {
		id := strings.TrimSpace(raw)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		result := models.BulkDeleteResult{ID: id}
		if err := s.Delete(ctx, id, actor); err != nil {
			appErr := appErrors.FromError(err)
			result.Code = appErr.Code
			result.Message = appErr.Message
			resp.Failed++
		} else {
			result.Deleted = true
			resp.Deleted++
		}
		resp.Results = append(resp.Results, result)
	}
	return resp, nil
}

// Export renders every record matching filter in the requested format.
func (s *EmployeeService) Export(ctx context.Context, filter models.EmployeeFilter, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, validationFailure("format must be one of: csv, xlsx, pdf")
	}

	filter = search.Normalize(filter, s.cfg.DefaultLimit, s.cfg.MaxLimit)
	filter.Page = 1
	filter.Limit = s.cfg.ExportMaxRows
	items, total, err := s.store.Search(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employees for export")
	}
	if total > len(items) {
		logger.WithContext(ctx, s.logger).Warn("export truncated", zap.Int("total", total), zap.Int("rows", len(items)))
	}

	data, err := renderer.Render(employeeDataset(items))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &ExportFile{
		FileName:    fmt.Sprintf("employees-%s.%s", s.now().Format("20060102-150405"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        data,
	}, nil
}

// RefreshRecordCount publishes the current store size to metrics.
func (s *EmployeeService) RefreshRecordCount(ctx context.Context) {
	count, err := s.store.Count(ctx)
	if err != nil {
		s.logger.Warn("failed to count employees", zap.Error(err))
		return
	}
	s.metrics.SetRecordCount(count)
}

func (s *EmployeeService) find(ctx context.Context, id string) (*models.Employee, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, validationFailure("id is required")
	}
	employee, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "employee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employee")
	}
	return employee, nil
}

func (s *EmployeeService) merge(current *models.Employee, req dto.UpdateEmployeeRequest) dto.CreateEmployeeRequest {
	merged := req.Apply(dto.CreateEmployeeRequest{
		FirstName:        current.FirstName,
		MiddleName:       current.MiddleName,
		LastName:         current.LastName,
		DateOfBirth:      current.DateOfBirth.Format(models.DateLayout),
		Department:       current.Department,
		Salary:           current.Salary,
		PermanentAddress: current.PermanentAddress,
		CurrentAddress:   current.CurrentAddress,
	})
	merged.Normalize()
	return merged
}

func (s *EmployeeService) validateRequest(req dto.CreateEmployeeRequest) (time.Time, error) {
	if err := s.validator.Struct(req); err != nil {
		return time.Time{}, validationError(err, "invalid employee payload")
	}
	dob, err := models.ParseDate(req.DateOfBirth)
	if err != nil {
		return time.Time{}, validationFailure("date_of_birth must be a date in YYYY-MM-DD format")
	}
	dob = models.TruncateDate(dob)
	if !isAdult(dob, s.now()) {
		return time.Time{}, validationFailure("employee must be at least 18 years old")
	}
	return dob, nil
}

func (s *EmployeeService) afterMutation(ctx context.Context) {
	s.generation.Add(1)
	_ = s.cache.InvalidateSearch(ctx)
	s.RefreshRecordCount(ctx)
}

func (s *EmployeeService) record(ctx context.Context, actor *models.JWTClaims, action, resourceID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		Actor:      actorName(actor),
		Action:     action,
		Resource:   "employee",
		ResourceID: resourceID,
	}
	if values != nil {
		entry.NewValues = mustJSON(values)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

// isAdult reports whether someone born on dob has turned 18 by today's calendar date.
func isAdult(dob, today time.Time) bool {
	return !models.TruncateDate(dob).AddDate(adultAge, 0, 0).After(models.TruncateDate(today))
}

func actorName(actor *models.JWTClaims) string {
	if actor == nil {
		return ""
	}
	return actor.Username
}

func nonNil(items []models.Employee) []models.Employee {
	if items == nil {
		return []models.Employee{}
	}
	return items
}

func employeeDataset(items []models.Employee) export.Dataset {
	rows := make([]map[string]string, 0, len(items))
	for _, e := range items {
		rows = append(rows, map[string]string{
			"id":                e.ID,
			"first_name":        e.FirstName,
			"middle_name":       e.MiddleName,
			"last_name":         e.LastName,
			"login_id":          e.LoginID,
			"date_of_birth":     e.DateOfBirth.Format(models.DateLayout),
			"department":        string(e.Department),
			"salary":            e.Salary.StringFixed(2),
			"permanent_address": e.PermanentAddress,
			"current_address":   e.CurrentAddress,
		})
	}
	return export.Dataset{
		Title: "Employees",
		Columns: []export.Column{
			{Key: "id", Title: "ID", Width: 1},
			{Key: "first_name", Title: "First Name", Width: 1.2},
			{Key: "middle_name", Title: "Middle Name", Width: 1.2},
			{Key: "last_name", Title: "Last Name", Width: 1.2},
			{Key: "login_id", Title: "Login ID", Width: 1},
			{Key: "date_of_birth", Title: "Date of Birth", Width: 1},
			{Key: "department", Title: "Department", Width: 1},
			{Key: "salary", Title: "Salary", Width: 1},
			{Key: "permanent_address", Title: "Permanent Address", Width: 2},
			{Key: "current_address", Title: "Current Address", Width: 2},
		},
		Rows: rows,
	}
}
