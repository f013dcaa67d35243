package drive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/errors"
)

func newTestStore(t *testing.T, h http.HandlerFunc) *Store {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	s, err := NewWithOptions(context.Background(), config.DriveConfig{PageSize: 2, Timeout: 5 * time.Second}, nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return s
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestListPagesThroughResults(t *testing.T) {
	var queries []string
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/files"), r.URL.Path)
		queries = append(queries, r.URL.Query().Get("q"))
		assert.Equal(t, "modifiedTime desc", r.URL.Query().Get("orderBy"))

		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, map[string]any{
				"nextPageToken": "p2",
				"files": []map[string]string{
					{"id": "1", "name": "Part 61.pdf", "mimeType": "application/pdf", "modifiedTime": "2024-03-01T10:00:00Z"},
					{"id": "2", "name": "Part 91", "mimeType": googleDocMime, "modifiedTime": "2024-02-01T10:00:00Z"},
				},
			})
			return
		}
		writeJSON(w, map[string]any{
			"files": []map[string]string{
				{"id": "3", "name": "Part 139.docx", "mimeType": docxMime, "modifiedTime": "2024-01-01T10:00:00Z"},
			},
		})
	})

	docs, err := s.List(context.Background(), "folder-abc")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "1", docs[0].ID)
	assert.Equal(t, "Part 139.docx", docs[2].Name)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), docs[0].ModifiedTime)
	require.NotEmpty(t, queries)
	assert.Equal(t, "'folder-abc' in parents and trashed=false", queries[0])
}

func TestDownloadBinaryFile(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") == "media" {
			_, _ = w.Write([]byte("%PDF-1.4 bytes"))
			return
		}
		writeJSON(w, map[string]string{"id": "1", "name": "Part 61.pdf", "mimeType": "application/pdf"})
	})

	data, mime, err := s.Download(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", mime)
	assert.Equal(t, "%PDF-1.4 bytes", string(data))
}

func TestDownloadExportsGoogleDocsAsDOCX(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/export") {
			assert.Equal(t, docxMime, r.URL.Query().Get("mimeType"))
			_, _ = w.Write([]byte("PK docx"))
			return
		}
		writeJSON(w, map[string]string{"id": "2", "name": "Part 91", "mimeType": googleDocMime})
	})

	data, mime, err := s.Download(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, docxMime, mime)
	assert.Equal(t, "PK docx", string(data))
}

func TestDownloadNotFoundIsExternalError(t *testing.T) {
	calls := 0
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"File not found"}}`))
	})

	_, _, err := s.Download(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrExternalService)
	assert.Equal(t, 1, calls)
}

func TestListEscapesFolderID(t *testing.T) {
	var query string
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("q")
		writeJSON(w, map[string]any{"files": []map[string]string{}})
	})

	_, err := s.List(context.Background(), `x' or name contains 'a\`)
	require.NoError(t, err)
	assert.Equal(t, `'x\' or name contains \'a\\' in parents and trashed=false`, query)
}

func TestDownloadRejectsOversizedFile(t *testing.T) {
	calls := 0
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") == "media" {
			calls++
			_, _ = w.Write([]byte("0123456789"))
			return
		}
		writeJSON(w, map[string]string{"id": "1", "name": "Huge.pdf", "mimeType": "application/pdf"})
	})
	s.maxBytes = 8

	data, _, err := s.Download(context.Background(), "1")
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.ErrorIs(t, err, apperrors.ErrExternalService)
	assert.Nil(t, data)
	assert.Equal(t, 1, calls)

	s.maxBytes = 10
	data, _, err = s.Download(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))
}
