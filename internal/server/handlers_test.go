package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/mailscraped/internal/config"
	"github.com/raaihank/mailscraped/internal/etl"
	"github.com/raaihank/mailscraped/internal/extract"
	"github.com/raaihank/mailscraped/internal/logger"
	"github.com/raaihank/mailscraped/internal/storage"
	"github.com/raaihank/mailscraped/internal/validate"
)

// tableResolver resolves only the listed domains
type tableResolver map[string]bool

func (t tableResolver) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	if !t[name] {
		return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
	}
	return []*net.MX{{Host: "mx." + name + ".", Pref: 10}}, nil
}

func newTestServer(t *testing.T) (*Server, *storage.Local) {
	t.Helper()

	cfg := config.GetDefaults()
	cfg.Output.Dir = t.TempDir()
	cfg.Server.StaticDir = t.TempDir()
	cfg.Server.MaxUploadBytes = 64 << 10

	store, err := storage.NewLocal(storage.LocalConfig{BasePath: cfg.Output.Dir})
	if err != nil {
		t.Fatal(err)
	}

	validator := validate.New(
		validate.NewBlacklist(cfg.Validation.Blacklist),
		tableResolver{"foo.com": true},
		validate.Config{Timeout: time.Second, Concurrency: 2},
		zap.NewNop(),
	)
	pipeline := etl.NewPipeline(extract.New(), validator, store,
		&etl.Config{OutputPrefix: cfg.Output.FilePrefix}, zap.NewNop())

	srv, err := New(cfg, logger.NewNop(), Deps{
		Pipeline:  pipeline,
		Store:     store,
		Validator: validator,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, store
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" || field != "" {
		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(content))
	}
	mw.WriteField("note", "hello")
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func artifactCount(t *testing.T, store *storage.Local) int {
	t.Helper()
	entries, err := os.ReadDir(store.BasePath())
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func TestUploadAndDownload(t *testing.T) {
	srv, _ := newTestServer(t)

	input := "Alice,contact alice@foo.com\nBob,bob@foo.com and alice@foo.com again\nOps,ops@sentry.io\n"
	body, contentType := multipartBody(t, "file", "contacts.csv", input)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	want := []etl.Entry{
		{Name: "Alice", Email: "alice@foo.com"},
		{Name: "Bob", Email: "bob@foo.com"},
	}
	if !reflect.DeepEqual(resp.Results, want) || resp.Count != 2 {
		t.Errorf("results = %+v, count = %d", resp.Results, resp.Count)
	}
	if resp.RunID == "" || !strings.Contains(resp.File, resp.RunID) {
		t.Errorf("run_id = %q, file = %q", resp.RunID, resp.File)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, resp.DownloadURL, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	records, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	wantRecords := [][]string{{"Name", "Email"}, {"Alice", "alice@foo.com"}, {"Bob", "bob@foo.com"}}
	if !reflect.DeepEqual(records, wantRecords) {
		t.Errorf("artifact = %v", records)
	}
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name        string
		field       string
		filename    string
		content     string
		rawBody     string
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "no body",
			rawBody:     "",
			wantStatus:  http.StatusBadRequest,
			wantMessage: "no file supplied",
		},
		{
			name:        "wrong field",
			field:       "attachment",
			filename:    "contacts.csv",
			content:     "Alice,alice@foo.com\n",
			wantStatus:  http.StatusBadRequest,
			wantMessage: "no file supplied",
		},
		{
			name:        "unsupported type",
			field:       "file",
			filename:    "photo.png",
			content:     "binary",
			wantStatus:  http.StatusBadRequest,
			wantMessage: "unsupported file type",
		},
		{
			name:        "malformed csv",
			field:       "file",
			filename:    "contacts.csv",
			content:     "Alice,\"unterminated\n",
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: "failed to process file",
		},
		{
			name:        "too large",
			field:       "file",
			filename:    "contacts.csv",
			content:     strings.Repeat("Alice,alice@foo.com\n", 5000),
			wantStatus:  http.StatusRequestEntityTooLarge,
			wantMessage: "file too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, store := newTestServer(t)

			var req *http.Request
			if tt.field == "" {
				req = httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(tt.rawBody))
			} else {
				body, contentType := multipartBody(t, tt.field, tt.filename, tt.content)
				req = httptest.NewRequest(http.MethodPost, "/upload", body)
				req.Header.Set("Content-Type", contentType)
			}

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			if resp.Error != tt.wantMessage {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantMessage)
			}
			if n := artifactCount(t, store); n != 0 {
				t.Errorf("%d artifacts written, want 0", n)
			}
		})
	}
}

func TestParseErrorIncludesRunID(t *testing.T) {
	srv, _ := newTestServer(t)

	body, contentType := multipartBody(t, "file", "contacts.csv", "Alice,\"oops\n")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var resp errorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.RunID == "" {
		t.Error("missing run_id on failed run")
	}
	if strings.Contains(rec.Body.String(), "line") {
		t.Errorf("response leaks parse detail: %s", rec.Body.String())
	}
}

func TestDownloadErrors(t *testing.T) {
	srv, store := newTestServer(t)

	// A real file outside the store must stay unreachable.
	secret := filepath.Join(filepath.Dir(store.BasePath()), "secret.csv")
	os.WriteFile(secret, []byte("x"), 0644)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"missing parameter", "/download", http.StatusBadRequest},
		{"never produced", "/download?file=emails-unknown.csv", http.StatusNotFound},
		{"path traversal", "/download?file=../secret.csv", http.StatusNotFound},
		{"hidden file", "/download?file=.tmp-emails.csv", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHealthAndInfo(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/info", nil))
	var info map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info["name"] != "mailscraped" {
		t.Errorf("info = %v", info)
	}
	if info["blacklisted_domains"] != float64(3) {
		t.Errorf("blacklisted_domains = %v, want 3", info["blacklisted_domains"])
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/upload", nil)
	req.Header.Set("Origin", "http://app.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Errorf("missing Access-Control-Allow-Origin, status %d", rec.Code)
	}
}
