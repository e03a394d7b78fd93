package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/diarization-splitter/internal/media"
	"github.com/codebuildervaibhav/diarization-splitter/internal/queue"
	"github.com/codebuildervaibhav/diarization-splitter/internal/storage"
	"github.com/codebuildervaibhav/diarization-splitter/internal/types"
)

const sessionTable = "start,end,speaker\n0.03,2.28,therapist\n2.28,4.09,patient\n4.09,5.50,therapist\n5.50,7.75,patient\n"

type fakeBackend struct{}

func (fakeBackend) Open(_ context.Context, path string) (*media.Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, types.WrapError(types.KindMedia, 0, err, "source video is not readable")
	}
	return media.NewSource(path, 10), nil
}

func (fakeBackend) Trim(_ context.Context, _ *media.Source, start, end float64, outPath string) error {
	return os.WriteFile(outPath, []byte(fmt.Sprintf("%.2f-%.2f", start, end)), 0o644)
}

type testServer struct {
	app    *fiber.App
	pool   *queue.WorkerPool
	db     *storage.MetadataDB
	temp   string
	remote *RemoteHandler
	gdrive *GDriveHandler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	temp := filepath.Join(dir, "temp")
	if err := os.MkdirAll(temp, 0o755); err != nil {
		t.Fatal(err)
	}

	db, err := storage.NewMetadataDB(filepath.Join(dir, "jobs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	logger := zerolog.Nop()
	pool := queue.NewWorkerPool(logger, queue.Config{Workers: 1, ScratchDir: temp},
		fakeBackend{}, storage.NewLocalStorage(filepath.Join(dir, "outputs")), db)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	s := &testServer{
		app:    fiber.New(),
		pool:   pool,
		db:     db,
		temp:   temp,
		remote: NewRemoteHandler(logger, pool, temp, 10),
		gdrive: NewGDriveHandler(logger, pool, nil, temp, 10),
	}

	jobs := NewJobsHandler(pool, db)
	s.app.Post("/preview", NewPreviewHandler().Handle)
	s.app.Post("/upload", NewUploadHandler(logger, pool, temp, 10).Handle)
	s.app.Post("/gdrive", s.gdrive.Handle)
	s.app.Post("/remote", s.remote.Handle)
	s.app.Get("/jobs", jobs.List)
	s.app.Get("/jobs/:id", jobs.Status)
	s.app.Get("/jobs/:id/archive", jobs.Archive)
	return s
}

func (s *testServer) do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := s.app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	var decoded map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), fiber.MIMEApplicationJSON) {
		if err := json.Unmarshal(body, &decoded); err != nil {
			t.Fatalf("decode %q: %v", body, err)
		}
	}
	return resp, decoded
}

func (s *testServer) wait(t *testing.T, id string) queue.Job {
	t.Helper()
	ch, unsubscribe, ok := s.pool.Subscribe(id)
	if !ok {
		t.Fatalf("job %s unknown", id)
	}
	defer unsubscribe()

	timeout := time.After(10 * time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				job, _ := s.pool.Get(id)
				return job
			}
		case <-timeout:
			t.Fatalf("job %s did not finish", id)
		}
	}
}

func multipartRequest(t *testing.T, url string, files map[string][2]string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for field, file := range files {
		part, err := w.CreateFormFile(field, file[0])
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(file[1]))
	}
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, url string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	return req
}

func TestPreviewReturnsSummary(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(t, multipartRequest(t, "/preview",
		map[string][2]string{"diarization": {"d.csv", sessionTable}}, nil))

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
	rows := body["rows"].([]any)
	if len(rows) != 4 {
		t.Fatalf("rows = %v", rows)
	}
	summary := body["summary"].(map[string]any)
	if summary["total_segments"] != float64(4) {
		t.Fatalf("summary = %v", summary)
	}
}

func TestPreviewReportsTaxonomyErrors(t *testing.T) {
	tests := []struct {
		name  string
		table string
		code  string
		row   float64
	}{
		{"missing column", "start,end\n1,2\n", "ERR_SCHEMA", 0},
		{"bad number", "start,end,speaker\n1,2,a\nabc,3,b\n", "ERR_VALUE", 2},
		{"inverted range", "start,end,speaker\n5,2,a\n", "ERR_RANGE", 1},
	}
	s := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, multipartRequest(t, "/preview",
				map[string][2]string{"diarization": {"d.csv", tt.table}}, nil))
			if resp.StatusCode != 400 || body["code"] != tt.code {
				t.Fatalf("status = %d body = %v", resp.StatusCode, body)
			}
			if tt.row > 0 && body["row"] != tt.row {
				t.Fatalf("row = %v, want %v", body["row"], tt.row)
			}
		})
	}
}

func TestPreviewRequiresTable(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(t, multipartRequest(t, "/preview", nil, map[string]string{"name": "x"}))
	if resp.StatusCode != 400 || body["code"] != "ERR_SCHEMA" {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
}

func TestUploadValidatesTableBeforeVideo(t *testing.T) {
	s := newTestServer(t)
	// no video at all: the table error wins
	resp, body := s.do(t, multipartRequest(t, "/upload",
		map[string][2]string{"diarization": {"d.csv", "start,end,speaker\n"}}, nil))
	if resp.StatusCode != 400 || body["code"] != "ERR_SCHEMA" {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}

	entries, _ := os.ReadDir(s.temp)
	if len(entries) != 0 {
		t.Fatalf("nothing should be saved for a rejected table: %v", entries)
	}
}

func TestUploadRejectsUnsupportedFormat(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(t, multipartRequest(t, "/upload", map[string][2]string{
		"diarization": {"d.csv", sessionTable},
		"video":       {"notes.txt", "hello"},
	}, nil))
	if resp.StatusCode != 400 || body["code"] != "ERR_INVALID_FORMAT" {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
}

func TestUploadRunsJobAndServesArchive(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(t, multipartRequest(t, "/upload", map[string][2]string{
		"diarization": {"d.csv", sessionTable},
		"video":       {"session.mp4", "fake video bytes"},
	}, map[string]string{"name": "session one"}))
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
	jobID := body["job_id"].(string)
	if body["segments"] != float64(4) {
		t.Fatalf("body = %v", body)
	}

	job := s.wait(t, jobID)
	if job.Status != types.StatusCompleted || job.Report.Succeeded != 4 {
		t.Fatalf("job = %s %q", job.Status, job.Error)
	}

	resp, body = s.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+jobID, nil))
	if resp.StatusCode != 200 || body["status"] != types.StatusCompleted {
		t.Fatalf("status endpoint = %d %v", resp.StatusCode, body)
	}

	resp, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+jobID+"/archive", nil))
	if resp.StatusCode != 200 {
		t.Fatalf("archive status = %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") || !strings.Contains(cd, ".zip") {
		t.Fatalf("content disposition = %q", cd)
	}

	resp, body = s.do(t, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	if resp.StatusCode != 200 || len(body["jobs"].([]any)) != 1 {
		t.Fatalf("list = %d %v", resp.StatusCode, body)
	}
}

func TestJobLookupFallsBackToDatabase(t *testing.T) {
	s := newTestServer(t)
	rec := storage.JobRecord{JobID: "old-job", RequestName: "old", SourceType: types.SourceUpload, Status: types.StatusFailed, Error: "media error"}
	if err := s.db.SaveJob(rec); err != nil {
		t.Fatal(err)
	}

	resp, body := s.do(t, httptest.NewRequest(http.MethodGet, "/jobs/old-job", nil))
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["job"].(map[string]any)["status"] != types.StatusFailed {
		t.Fatalf("body = %v", body)
	}

	resp, body = s.do(t, httptest.NewRequest(http.MethodGet, "/jobs/old-job/archive", nil))
	if resp.StatusCode != fiber.StatusConflict || body["code"] != "ERR_NOT_READY" {
		t.Fatalf("archive of failed job = %d %v", resp.StatusCode, body)
	}

	resp, body = s.do(t, httptest.NewRequest(http.MethodGet, "/jobs/missing", nil))
	if resp.StatusCode != 404 || body["code"] != "ERR_NOT_FOUND" {
		t.Fatalf("missing job = %d %v", resp.StatusCode, body)
	}
}

func TestGDriveRejectsBadRequests(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, jsonRequest(t, "/gdrive", SourceRequest{URL: "https://example.com/x", Diarization: sessionTable}))
	if resp.StatusCode != 400 || body["code"] != "ERR_INVALID_URL" {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}

	resp, body = s.do(t, jsonRequest(t, "/gdrive", SourceRequest{URL: "https://drive.google.com/file/d/abc/view"}))
	if resp.StatusCode != 400 || body["code"] != "ERR_SCHEMA" {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
}

func TestGDriveDownloadsPublicFile(t *testing.T) {
	video := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "abc123" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("drive video bytes"))
	}))
	defer video.Close()

	s := newTestServer(t)
	s.gdrive.downloadURL = func(id string) string { return video.URL + "/uc?id=" + id }

	resp, body := s.do(t, jsonRequest(t, "/gdrive", SourceRequest{
		URL:         "https://drive.google.com/file/d/abc123/view",
		Name:        "drive session",
		Diarization: sessionTable,
	}))
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}

	job := s.wait(t, body["job_id"].(string))
	if job.Status != types.StatusCompleted || job.SourceType != types.SourceGDrive {
		t.Fatalf("job = %s %q", job.Status, job.Error)
	}
}

func TestRemoteUsesResolvedSource(t *testing.T) {
	video := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote video bytes"))
	}))
	defer video.Close()

	s := newTestServer(t)
	s.remote.resolve = func(context.Context, string) (string, error) { return video.URL + "/clip.mp4", nil }
	s.remote.ytdlp = func(context.Context, string, string) error {
		t.Error("yt-dlp should not be used when the page exposes a direct source")
		return errors.New("unexpected")
	}

	resp, body := s.do(t, jsonRequest(t, "/remote", SourceRequest{
		URL: "https://videos.example.com/watch/1", Diarization: sessionTable,
	}))
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
	if job := s.wait(t, body["job_id"].(string)); job.Status != types.StatusCompleted {
		t.Fatalf("job = %s %q", job.Status, job.Error)
	}
}

func TestRemoteFallsBackToYtDlp(t *testing.T) {
	s := newTestServer(t)
	s.remote.resolve = func(context.Context, string) (string, error) { return "blob:https://videos.example.com/1", nil }
	var fallbackUsed bool
	s.remote.ytdlp = func(_ context.Context, _ string, out string) error {
		fallbackUsed = true
		return os.WriteFile(out, []byte("downloaded"), 0o644)
	}

	resp, body := s.do(t, jsonRequest(t, "/remote", SourceRequest{
		URL: "https://videos.example.com/watch/1", Diarization: sessionTable,
	}))
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
	job := s.wait(t, body["job_id"].(string))
	if job.Status != types.StatusCompleted || !fallbackUsed {
		t.Fatalf("job = %s %q fallback=%v", job.Status, job.Error, fallbackUsed)
	}
}

func TestRemoteRejectsNonHTTPURL(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(t, jsonRequest(t, "/remote", SourceRequest{URL: "file:///etc/passwd", Diarization: sessionTable}))
	if resp.StatusCode != 400 || body["code"] != "ERR_INVALID_URL" {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
}

func TestExtractGDriveFileID(t *testing.T) {
	tests := map[string]string{
		"https://drive.google.com/file/d/1AbC_d-E/view?usp=sharing": "1AbC_d-E",
		"https://drive.google.com/open?id=XYZ123":                   "XYZ123",
		"1234567890abcdefghijklmnopqrstuv":                          "1234567890abcdefghijklmnopqrstuv",
		"https://example.com/video.mp4":                             "",
	}
	for in, want := range tests {
		if got := extractGDriveFileID(in); got != want {
			t.Errorf("extractGDriveFileID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDownloadToEnforcesLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.download")
	err := downloadTo(path, 4, func(w io.Writer) error {
		_, err := w.Write([]byte("too many bytes"))
		return err
	})
	if !errors.Is(err, errTooLarge) {
		t.Fatalf("expected errTooLarge, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("partial download should be removed")
	}
}
