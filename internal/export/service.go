package export

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"forkcast/api/internal/comparison"
	"forkcast/api/internal/render"
)

// DefaultFooter is printed at the bottom of every exported document.
const DefaultFooter = "Generated by Forkcast. Opinions belong to the comparison author. Forkcast facts sections come from Forkcast reference data."

// Service renders comparisons and converts them to the requested format.
type Service struct {
	renderer *render.Renderer
	pdf      Converter
	docx     Converter
	store    ObjectStore
	footer   string
	log      *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPDFConverter replaces the headless Chrome converter.
func WithPDFConverter(c Converter) Option {
	return func(s *Service) { s.pdf = c }
}

// WithDOCXConverter replaces the pandoc converter.
func WithDOCXConverter(c Converter) Option {
	return func(s *Service) { s.docx = c }
}

// WithObjectStore uploads every artifact and fills Result.URL.
func WithObjectStore(store ObjectStore) Option {
	return func(s *Service) { s.store = store }
}

// WithFooter overrides DefaultFooter.
func WithFooter(footer string) Option {
	return func(s *Service) { s.footer = footer }
}

// WithLogger sets the service logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

// NewService creates a new export service
func NewService(renderer *render.Renderer, opts ...Option) *Service {
	s := &Service{
		renderer: renderer,
		pdf:      ChromePDF{},
		docx:     PandocDOCX{},
		footer:   DefaultFooter,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("export")
	return s
}

// HTML renders c as a standalone document.
func (s *Service) HTML(c *comparison.Comparison) (string, error) {
	html, err := render.Page(s.renderer.Render(c), s.footer)
	if err != nil {
		return "", fmt.Errorf("render page: %w", err)
	}
	return html, nil
}

// Export generates an export in the requested format. An upload failure is
// logged and the artifact is still returned without a URL.
func (s *Service) Export(ctx context.Context, c *comparison.Comparison, format Format) (*Result, error) {
	html, err := s.HTML(c)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch format {
	case FormatHTML:
		data = []byte(html)
	case FormatPDF:
		data, err = s.pdf.Convert(ctx, html)
	case FormatDOCX:
		data, err = s.docx.Convert(ctx, html)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", format, err)
	}

	name := sanitizeFilename(c.Meta.Title)
	res := &Result{
		Data:     data,
		Filename: name + "." + string(format),
		MimeType: format.MimeType(),
	}
	if s.store != nil {
		key := ObjectKey(name, format, data)
		url, err := s.store.Put(ctx, key, data, res.MimeType)
		if err != nil {
			s.log.Warn("upload export", zap.String("key", key), zap.Error(err))
		} else {
			res.URL = url
		}
	}
	return res, nil
}

// ObjectKey is exports/<name>-<hash>.<ext>, where hash is the first 16 hex
// digits of the BLAKE2b-256 of data.
func ObjectKey(name string, format Format, data []byte) string {
	sum := blake2b.Sum256(data)
	return "exports/" + name + "-" + hex.EncodeToString(sum[:8]) + "." + string(format)
}

// sanitizeFilename lowercases title, keeps letters and digits, and joins
// words with single hyphens.
func sanitizeFilename(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '/', r == '.':
			dash = true
		}
		if b.Len() >= 50 {
			break
		}
	}
	result := strings.TrimRight(b.String(), "-")
	if len(result) > 50 {
		result = strings.TrimRight(result[:50], "-")
	}
	if result == "" {
		return "comparison"
	}
	return result
}
