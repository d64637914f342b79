package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aneeshlingala/grade-melon-nsd/internal/gradecalc"
	"github.com/aneeshlingala/grade-melon-nsd/internal/models"
	appErrors "github.com/aneeshlingala/grade-melon-nsd/pkg/errors"
	"github.com/aneeshlingala/grade-melon-nsd/pkg/export"
	"github.com/aneeshlingala/grade-melon-nsd/pkg/jobs"
	"github.com/aneeshlingala/grade-melon-nsd/pkg/storage"
)

type gradebookReader interface {
	Get(ctx context.Context, studentID, id string) (*models.Gradebook, bool, error)
}

type exportQueue interface {
	Enqueue(job jobs.Job[string]) error
}

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportStatusView is an export job plus its download link once finished.
type ExportStatusView struct {
	Job         models.ExportJob `json:"job"`
	DownloadURL string           `json:"download_url,omitempty"`
	ExpiresAt   *time.Time       `json:"expires_at,omitempty"`
}

// ExportDownload is an opened export file ready to stream.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
}

// ExportService renders gradebooks to CSV or PDF in the background.
type ExportService struct {
	gradebooks gradebookReader
	storage    fileStorage
	signer     *storage.SignedURLSigner
	renderers  map[models.ExportFormat]export.Renderer
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        ExportConfig
	now        func() time.Time

	mu    sync.RWMutex
	jobs  map[string]*models.ExportJob
	queue exportQueue
}

// NewExportService constructs an ExportService. AttachQueue must be called before Create.
func NewExportService(gradebooks gradebookReader, files fileStorage, signer *storage.SignedURLSigner, metrics *MetricsService, logger *zap.Logger, cfg ExportConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		gradebooks: gradebooks,
		storage:    files,
		signer:     signer,
		renderers: map[models.ExportFormat]export.Renderer{
			models.ExportFormatCSV: export.NewCSVRenderer(),
			models.ExportFormatPDF: export.NewPDFRenderer(),
		},
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
		jobs:    make(map[string]*models.ExportJob),
	}
}

// AttachQueue sets the queue export jobs are dispatched to.
func (s *ExportService) AttachQueue(queue exportQueue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = queue
}

// Create registers an export job for a gradebook the student owns and enqueues it.
func (s *ExportService) Create(ctx context.Context, studentID, gradebookID string, format models.ExportFormat) (*models.ExportJob, error) {
	if _, ok := s.renderers[format]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if _, _, err := s.gradebooks.Get(ctx, studentID, gradebookID); err != nil {
		return nil, err
	}

	job := &models.ExportJob{
		ID:          uuid.NewString(),
		GradebookID: gradebookID,
		StudentID:   studentID,
		Format:      format,
		Status:      models.ExportStatusQueued,
		CreatedAt:   s.now().UTC(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	queue := s.queue
	s.mu.Unlock()

	if queue == nil {
		s.fail(job.ID, "export queue unavailable")
		return nil, appErrors.Clone(appErrors.ErrInternal, "export queue unavailable")
	}
	if err := queue.Enqueue(jobs.Job[string]{ID: job.ID, Payload: job.ID}); err != nil {
		s.fail(job.ID, err.Error())
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export")
	}
	s.metrics.RecordExport(string(format), string(models.ExportStatusQueued))

	snapshot := *job
	return &snapshot, nil
}

// Process renders and stores one export. It is the queue handler.
func (s *ExportService) Process(ctx context.Context, job jobs.Job[string]) error {
	current, ok := s.transition(job.Payload, models.ExportStatusProcessing)
	if !ok {
		return fmt.Errorf("export job %s not found", job.Payload)
	}

	book, _, err := s.gradebooks.Get(ctx, current.StudentID, current.GradebookID)
	if err != nil {
		return err
	}
	renderer := s.renderers[current.Format]
	payload, err := renderer.Render(GradebookDataset(book))
	if err != nil {
		return fmt.Errorf("render export: %w", err)
	}

	name := fmt.Sprintf("gradebook_%s_%s.%s", current.GradebookID, current.ID, renderer.Extension())
	relPath, err := s.storage.Save(name, payload)
	if err != nil {
		return fmt.Errorf("store export: %w", err)
	}

	finished := s.now().UTC()
	s.mu.Lock()
	if stored, ok := s.jobs[current.ID]; ok {
		stored.Status = models.ExportStatusFinished
		stored.FilePath = relPath
		stored.FinishedAt = &finished
		stored.ErrorMessage = nil
	}
	s.mu.Unlock()

	s.metrics.RecordExport(string(current.Format), string(models.ExportStatusFinished))
	s.logger.Info("export finished",
		zap.String("job_id", current.ID),
		zap.String("gradebook_id", current.GradebookID),
		zap.Int("attempt", job.Attempt))
	return nil
}

// MarkFailed records a job that exhausted its retries. It is the queue failure hook.
func (s *ExportService) MarkFailed(job jobs.Job[string], err error) {
	message := "export failed"
	if err != nil {
		message = err.Error()
	}
	s.fail(job.Payload, message)
}

// Status returns a job owned by the student with a signed download link when it has finished.
func (s *ExportService) Status(studentID, jobID string) (*ExportStatusView, error) {
	s.mu.RLock()
	stored, ok := s.jobs[jobID]
	var job models.ExportJob
	if ok {
		job = *stored
	}
	s.mu.RUnlock()

	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	if job.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export job belongs to another student")
	}

	view := &ExportStatusView{Job: job}
	if job.Status != models.ExportStatusFinished {
		return view, nil
	}
	token, expiresAt, err := s.signer.Generate(job.ID, job.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	view.DownloadURL = fmt.Sprintf("%s/exports/download?token=%s", prefix, token)
	view.ExpiresAt = &expiresAt
	return view, nil
}

// Download resolves a signed token to the stored file.
func (s *ExportService) Download(token string) (*ExportDownload, error) {
	jobID, relPath, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}

	s.mu.RLock()
	stored, ok := s.jobs[jobID]
	var job models.ExportJob
	if ok {
		job = *stored
	}
	s.mu.RUnlock()
	if !ok || job.Status != models.ExportStatusFinished || job.FilePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not available")
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file missing")
	}
	renderer := s.renderers[job.Format]
	return &ExportDownload{
		File:        file,
		Filename:    fmt.Sprintf("gradebook_%s.%s", job.GradebookID, renderer.Extension()),
		ContentType: renderer.ContentType(),
	}, nil
}

// Cleanup removes export files older than ttl and forgets their jobs. ttl <= 0 uses ResultTTL.
func (s *ExportService) Cleanup(ttl time.Duration) (int, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	removed, err := s.storage.CleanupOlderThan(ttl)
	if err != nil {
		return 0, err
	}
	gone := make(map[string]struct{}, len(removed))
	for _, path := range removed {
		gone[path] = struct{}{}
	}

	s.mu.Lock()
	for id, job := range s.jobs {
		if _, ok := gone[job.FilePath]; ok && job.FilePath != "" {
			delete(s.jobs, id)
		}
	}
	s.mu.Unlock()
	return len(removed), nil
}

func (s *ExportService) transition(jobID string, status models.ExportStatus) (models.ExportJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return models.ExportJob{}, false
	}
	job.Status = status
	return *job, true
}

func (s *ExportService) fail(jobID, message string) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if ok {
		finished := s.now().UTC()
		job.Status = models.ExportStatusFailed
		job.ErrorMessage = &message
		job.FinishedAt = &finished
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.metrics.RecordExport(string(job.Format), string(models.ExportStatusFailed))
	s.logger.Warn("export failed", zap.String("job_id", jobID), zap.String("error", message))
}

// GradebookDataset flattens a gradebook into one row per assignment plus per-course summary lines.
func GradebookDataset(book *models.Gradebook) export.Dataset {
	dataset := export.Dataset{
		Title:   "Grade Report",
		Headers: []string{"Course", "Period", "Category", "Assignment", "Earned", "Possible", "Percent", "Letter", "Due"},
	}
	if book.Grades.Period.Name != "" {
		dataset.Title = "Grade Report - " + book.Grades.Period.Name
	}

	for _, course := range book.Grades.Courses {
		for _, assignment := range course.Assignments {
			due := ""
			if !assignment.Date.Due.IsZero() {
				due = assignment.Date.Due.Format("2006-01-02")
			}
			dataset.Rows = append(dataset.Rows, []string{
				course.Name,
				strconv.Itoa(course.Period),
				assignment.Category,
				assignment.Name,
				formatScore(assignment.Points.Earned),
				formatScore(assignment.Points.Possible),
				formatPercent(assignment.Grade.Raw),
				assignment.Grade.Letter,
				due,
			})
		}
		dataset.Summary = append(dataset.Summary,
			fmt.Sprintf("%s: %s (%s)", course.Name, formatPercent(course.Grade.Raw), course.Grade.Letter))
	}
	dataset.Summary = append(dataset.Summary,
		fmt.Sprintf("GPA: %s  Weighted GPA: %s", formatScore(book.Grades.GPA), formatScore(book.Grades.WeightedGPA)))
	return dataset
}

func formatScore(s models.Score) string {
	if !s.Defined() {
		return ""
	}
	return strconv.FormatFloat(gradecalc.Round2(s.Float()), 'f', -1, 64)
}

func formatPercent(s models.Score) string {
	if !s.Defined() {
		return gradecalc.NotAvailable
	}
	return strconv.FormatFloat(gradecalc.Round2(s.Float()), 'f', 2, 64) + "%"
}
