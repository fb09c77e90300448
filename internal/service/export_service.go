package service

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/institute-backoffice-api/pkg/export"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders tabular datasets into downloadable files.
type ExportService struct {
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

// Render encodes data in format. The filename is derived from name plus a UTC timestamp.
func (s *ExportService) Render(format export.Format, name, title string, data export.Dataset) (*ExportFile, error) {
	var (
		payload []byte
		err     error
	)
	switch format {
	case export.FormatCSV:
		payload, err = s.csv.Render(data)
	case export.FormatPDF:
		payload, err = s.pdf.Render(data, title)
	default:
		err = fmt.Errorf("unsupported format %s", format)
	}
	if err != nil {
		return nil, err
	}
	base := fmt.Sprintf("%s_%s", sanitizeFilename(name), s.now().UTC().Format("20060102_150405"))
	s.logger.Debug("export rendered", zap.String("format", string(format)), zap.Int("rows", len(data.Rows)), zap.Int("bytes", len(payload)))
	return &ExportFile{
		Filename:    format.Filename(base),
		ContentType: format.ContentType(),
		Data:        payload,
	}, nil
}

func sanitizeFilename(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "export"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_", "\"", "")
	result := replacer.Replace(strings.TrimSpace(raw))
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
