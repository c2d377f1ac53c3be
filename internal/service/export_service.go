package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kenseikai/dojo-api/internal/models"
	appErrors "github.com/kenseikai/dojo-api/pkg/errors"
	"github.com/kenseikai/dojo-api/pkg/export"
	"github.com/kenseikai/dojo-api/pkg/storage"
)

// ExportFormat names the file formats exports can be rendered to.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type exportRosterSource interface {
	Roster(ctx context.Context, classID string) (*models.ClassRoster, error)
}

type exportAttendanceSource interface {
	Get(ctx context.Context, id string) (*models.ClassSession, error)
	Attendance(ctx context.Context, sessionID string) ([]models.SessionAttendanceRecord, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title, subtitle string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string       `json:"relative_path"`
	Token        string       `json:"token"`
	URL          string       `json:"url"`
	Format       ExportFormat `json:"format"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// ExportService renders rosters and attendance sheets to files and issues
// signed download URLs for them.
type ExportService struct {
	classes  exportRosterSource
	sessions exportAttendanceSource
	storage  fileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(classes exportRosterSource, sessions exportAttendanceSource, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		classes:  classes,
		sessions: sessions,
		storage:  store,
		csv:      csv,
		pdf:      pdf,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// ExportRoster renders the class roster and stores the file.
func (s *ExportService) ExportRoster(ctx context.Context, classID string, format ExportFormat) (*ExportResult, error) {
	roster, err := s.classes.Roster(ctx, classID)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]string, 0, len(roster.Enrollments))
	for _, e := range roster.Enrollments {
		rows = append(rows, map[string]string{
			"Student":     e.StudentName,
			"Status":      string(e.Status),
			"Enrolled At": e.EnrolledAt.Format("2006-01-02"),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Student", "Status", "Enrolled At"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Roster: %s", roster.Class.Name)
	subtitle := fmt.Sprintf("%s, %d active, %d waitlisted",
		roster.Class.ProgramName, roster.ActiveCount, roster.WaitlistCount)

	return s.render(dataset, title, subtitle, "roster_"+roster.Class.Name, format)
}

// ExportAttendanceSheet renders the attendance list for one session.
func (s *ExportService) ExportAttendanceSheet(ctx context.Context, sessionID string, format ExportFormat) (*ExportResult, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	records, err := s.sessions.Attendance(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, map[string]string{
			"Student":   r.StudentName,
			"Belt":      r.BeltRank,
			"Status":    string(r.Status),
			"Marked At": r.MarkedAt.Format("2006-01-02 15:04"),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Student", "Belt", "Status", "Marked At"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Attendance %s", session.Date.Format("2006-01-02"))
	subtitle := fmt.Sprintf("Session %s, %d records", session.ID, len(records))

	return s.render(dataset, title, subtitle, "attendance_"+session.Date.Format("20060102"), format)
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (exportID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Cleanup removes files older than ttl (defaults to the configured ResultTTL
// when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) render(dataset export.Dataset, title, subtitle, stem string, format ExportFormat) (*ExportResult, error) {
	var payload []byte
	var err error
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title, subtitle)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format: "+string(format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	exportID := uuid.NewString()
	timestamp := time.Now().UTC().Format("20060102_150405")
	filename := fmt.Sprintf("%s_%s.%s", sanitizeFilename(stem), timestamp, format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download URL")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/download/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "export"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := strings.ToLower(replacer.Replace(raw))
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
