// Package drive implements docstore.Store on Google Drive. Native Google
// Docs are exported as DOCX; other files are downloaded as stored.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/resilience"
)

const (
	googleDocMime = "application/vnd.google-apps.document"
	docxMime      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	// maxDownloadBytes bounds a single file read.
	maxDownloadBytes = 200 << 20
)

// ErrFileTooLarge is returned by Download for files over the size limit.
var ErrFileTooLarge = errors.New("file too large")

// queryEscaper quotes a value for a single-quoted Drive query string.
var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// Store reads documents from one Drive account.
type Store struct {
	svc      *gdrive.Service
	pageSize int64
	timeout  time.Duration
	maxBytes int64
	breaker  *resilience.CircuitBreaker
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

var _ docstore.Store = (*Store)(nil)

// New authenticates with the configured OAuth refresh token.
func New(ctx context.Context, cfg config.DriveConfig, m *metrics.Metrics) (*Store, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, apperrors.Configuration("drive oauth credentials are required")
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gdrive.DriveReadonlyScope},
	}
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	return NewWithOptions(ctx, cfg, m, option.WithTokenSource(ts))
}

// NewWithOptions builds a Store with explicit client options (tests point it
// at a local endpoint).
func NewWithOptions(ctx context.Context, cfg config.DriveConfig, m *metrics.Metrics, opts ...option.ClientOption) (*Store, error) {
	svc, err := gdrive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Store{
		svc:      svc,
		pageSize: pageSize,
		timeout:  cfg.Timeout,
		maxBytes: maxDownloadBytes,
		breaker: resilience.NewCircuitBreaker("drive", resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, to resilience.State) { m.BreakerState(name, to.String()) },
		}),
		metrics: m,
		logger:  slog.Default().With("component", "drive"),
	}, nil
}

// List returns every non-trashed file directly inside folderID, newest
// modification first.
func (s *Store) List(ctx context.Context, folderID string) ([]docstore.Document, error) {
	var docs []docstore.Document
	err := s.call(ctx, "list", func(ctx context.Context) error {
		docs = docs[:0]
		return s.svc.Files.List().
			Q(fmt.Sprintf("'%s' in parents and trashed=false", queryEscaper.Replace(folderID))).
			Fields("nextPageToken, files(id, name, mimeType, modifiedTime)").
			OrderBy("modifiedTime desc").
			PageSize(s.pageSize).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Pages(ctx, func(page *gdrive.FileList) error {
				for _, f := range page.Files {
					docs = append(docs, toDocument(f))
				}
				return nil
			})
	})
	if err != nil {
		return nil, apperrors.External("drive list", err)
	}
	s.logger.Info("listed folder", "folder_id", folderID, "files", len(docs))
	return docs, nil
}

// Download fetches a file's content. Google Docs are exported to DOCX and
// reported with the DOCX mime type.
func (s *Store) Download(ctx context.Context, id string) ([]byte, string, error) {
	var (
		data     []byte
		mimeType string
	)
	err := s.call(ctx, "download", func(ctx context.Context) error {
		meta, err := s.svc.Files.Get(id).Fields("id, name, mimeType").SupportsAllDrives(true).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("reading metadata: %w", err)
		}
		mimeType = meta.MimeType

		var body io.ReadCloser
		if mimeType == googleDocMime {
			resp, err := s.svc.Files.Export(id, docxMime).Context(ctx).Download()
			if err != nil {
				return fmt.Errorf("exporting google doc: %w", err)
			}
			body = resp.Body
			mimeType = docxMime
		} else {
			resp, err := s.svc.Files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
			if err != nil {
				return fmt.Errorf("downloading content: %w", err)
			}
			body = resp.Body
		}
		defer body.Close()
		data, err = io.ReadAll(io.LimitReader(body, s.maxBytes+1))
		if err != nil {
			return err
		}
		if int64(len(data)) > s.maxBytes {
			data = nil
			return resilience.Permanent(fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, id, s.maxBytes))
		}
		return nil
	})
	if err != nil {
		return nil, "", apperrors.External("drive download", err)
	}
	return data, mimeType, nil
}

func (s *Store) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := resilience.Call(ctx, "drive-"+op, s.breaker, resilience.RetryConfig{}, func(ctx context.Context) error {
		return resilience.WithTimeout(ctx, s.timeout, "drive-"+op, func(ctx context.Context) error {
			return classify(fn(ctx))
		})
	})
	if err != nil {
		s.metrics.ExternalFailure("drive", op)
	}
	return err
}

// classify stops retries on client errors other than rate limiting.
func classify(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code >= 400 && gErr.Code < 500 && gErr.Code != http.StatusTooManyRequests {
		return resilience.Permanent(err)
	}
	return err
}

func toDocument(f *gdrive.File) docstore.Document {
	doc := docstore.Document{ID: f.Id, Name: f.Name, MimeType: f.MimeType}
	if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		doc.ModifiedTime = t
	}
	return doc
}
