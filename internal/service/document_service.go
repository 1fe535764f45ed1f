package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/employee-records-api/internal/models"
	appErrors "github.com/noah-isme/employee-records-api/pkg/errors"
	"github.com/noah-isme/employee-records-api/pkg/jobs"
	"github.com/noah-isme/employee-records-api/pkg/storage"
)

// JobTypeDocumentDelete removes a stored identity document blob.
const JobTypeDocumentDelete = "document.delete"

const documentKeyPrefix = "employees/"

type documentStorage interface {
	SaveStream(key string, r io.Reader) (string, error)
	Open(key string) (*os.File, error)
	Delete(key string) error
}

type documentSigner interface {
	Generate(subject, key string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (subject, key string, expiresAt time.Time, err error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// DocumentUpload carries an uploaded identity document.
type DocumentUpload struct {
	FileName string
	Size     int64
	Content  io.ReadSeeker
}

// DocumentDownload is an opened blob ready for streaming.
type DocumentDownload struct {
	File      *os.File
	FileName  string
	MimeType  string
	SizeBytes int64
}

// DocumentServiceConfig holds upload limits and link settings.
type DocumentServiceConfig struct {
	MinFileSize  int64
	MaxFileSize  int64
	AllowedMIMEs []string
	APIPrefix    string
}

// DocumentService validates, stores, links and removes identity documents.
type DocumentService struct {
	storage documentStorage
	signer  documentSigner
	queue   jobEnqueuer
	metrics *MetricsService
	logger  *zap.Logger
	cfg     DocumentServiceConfig
	mimeSet map[string]struct{}
	now     func() time.Time
}

// NewDocumentService constructs the service. queue and metrics may be nil.
func NewDocumentService(store documentStorage, signer documentSigner, queue jobEnqueuer, metrics *MetricsService, logger *zap.Logger, cfg DocumentServiceConfig) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinFileSize <= 0 {
		cfg.MinFileSize = 10 * 1024
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"application/pdf"}
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(strings.TrimSpace(mt))] = struct{}{}
	}
	return &DocumentService{
		storage: store,
		signer:  signer,
		queue:   queue,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		mimeSet: mimeSet,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// HandleJob executes queued document jobs.
func (s *DocumentService) HandleJob(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case JobTypeDocumentDelete:
		key, ok := job.Payload.(string)
		if !ok || key == "" {
			return fmt.Errorf("document delete job %s: invalid payload", job.ID)
		}
		return s.storage.Delete(key)
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

// Validate checks the sniffed content type and the inclusive size bounds.
// It returns the detected MIME type and the measured size.
func (s *DocumentService) Validate(upload *DocumentUpload) (string, int64, error) {
	if upload == nil || upload.Content == nil {
		return "", 0, validationFailure("document is required")
	}
	size, err := upload.Content.Seek(0, io.SeekEnd)
	if err != nil {
		return "", 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to measure document")
	}
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return "", 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rewind document")
	}
	if size < s.cfg.MinFileSize || size > s.cfg.MaxFileSize {
		s.metrics.RecordDocumentUpload(false)
		return "", size, validationFailure(fmt.Sprintf("document must be between %d and %d bytes", s.cfg.MinFileSize, s.cfg.MaxFileSize))
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(upload.Content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", size, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read document")
	}
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return "", size, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rewind document")
	}
	mimeType := http.DetectContentType(head[:n])
	if parsed, _, perr := mime.ParseMediaType(mimeType); perr == nil {
		mimeType = parsed
	}
	if _, ok := s.mimeSet[strings.ToLower(mimeType)]; !ok {
		s.metrics.RecordDocumentUpload(false)
		return "", size, validationFailure(fmt.Sprintf("document type %s is not allowed", mimeType))
	}
	return mimeType, size, nil
}

// Store validates and persists the upload, returning its document reference.
func (s *DocumentService) Store(ctx context.Context, upload *DocumentUpload) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mimeType, size, err := s.Validate(upload)
	if err != nil {
		return nil, err
	}
	key := documentKeyPrefix + uuid.NewString() + extensionFor(mimeType)
	if _, err := s.storage.SaveStream(key, upload.Content); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}
	s.metrics.RecordDocumentUpload(true)
	return &models.Document{
		Key:        key,
		FileName:   sanitizeFileName(upload.FileName, mimeType),
		MimeType:   mimeType,
		SizeBytes:  size,
		UploadedAt: s.now().Truncate(time.Second),
	}, nil
}

// Link returns a retrievable URL for doc. Static documents are returned unchanged.
func (s *DocumentService) Link(employeeID string, doc *models.Document) (string, *time.Time, error) {
	if doc == nil {
		return "", nil, appErrors.Clone(appErrors.ErrNotFound, "employee has no document")
	}
	if doc.Static() {
		return doc.URL, nil, nil
	}
	token, expiresAt, err := s.signer.Generate(employeeID, doc.Key)
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign document link")
	}
	link := fmt.Sprintf("%s/employees/%s/document/download?token=%s",
		strings.TrimRight(s.cfg.APIPrefix, "/"), url.PathEscape(employeeID), url.QueryEscape(token))
	return link, &expiresAt, nil
}

// Decorate fills the URL of e's document with a fresh link.
func (s *DocumentService) Decorate(e *models.Employee) {
	if e == nil || e.Document == nil || e.Document.Static() {
		return
	}
	link, _, err := s.Link(e.ID, e.Document)
	if err != nil {
		s.logger.Warn("failed to sign document link", zap.String("employee_id", e.ID), zap.Error(err))
		return
	}
	e.Document.URL = link
}

// Open verifies token against the employee's current document and opens the blob.
func (s *DocumentService) Open(ctx context.Context, employeeID, token string, doc *models.Document) (*DocumentDownload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(token) == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "download token is required")
	}
	subject, key, _, err := s.signer.Parse(token, false)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrTokenExpired):
			return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "download link expired")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
		}
	}
	if doc == nil || doc.Static() || subject != employeeID || key != doc.Key {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	file, err := s.storage.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open document")
	}
	size := doc.SizeBytes
	if info, statErr := file.Stat(); statErr == nil {
		size = info.Size()
	}
	return &DocumentDownload{File: file, FileName: doc.FileName, MimeType: doc.MimeType, SizeBytes: size}, nil
}

// Discard schedules removal of a stored blob. Static documents are ignored.
func (s *DocumentService) Discard(doc *models.Document) {
	if doc == nil || doc.Key == "" {
		return
	}
	if s.queue != nil {
		err := s.queue.Enqueue(jobs.Job{Type: JobTypeDocumentDelete, Payload: doc.Key})
		if err == nil {
			return
		}
		s.logger.Warn("document cleanup not queued, deleting inline", zap.String("key", doc.Key), zap.Error(err))
	}
	if err := s.storage.Delete(doc.Key); err != nil {
		s.logger.Error("failed to delete document", zap.String("key", doc.Key), zap.Error(err))
	}
}

func extensionFor(mimeType string) string {
	if mimeType == "application/pdf" {
		return ".pdf"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func sanitizeFileName(name, mimeType string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "document" + extensionFor(mimeType)
	}
	return name
}
