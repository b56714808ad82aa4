package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kdimtricp/leafcheck/internal/database"
	"github.com/kdimtricp/leafcheck/internal/predict"
	"github.com/kdimtricp/leafcheck/internal/session"
	"github.com/kdimtricp/leafcheck/internal/storage"
)

type TestServer struct {
	Server    *httptest.Server
	Predictor *fakePredictionService
	App       *App
	History   *database.PredictionRepository
	Sessions  *session.Manager
	Client    *http.Client
	UploadDir string
}

// fakePredictionService stands in for the remote model. Every request waits
// for a reply from the test.
type fakePredictionService struct {
	Server   *httptest.Server
	mu       sync.Mutex
	requests int
	files    []string
	replies  chan fakeReply
}

type fakeReply struct {
	status int
	body   string
}

func newFakePredictionService(t *testing.T) *fakePredictionService {
	t.Helper()
	f := &fakePredictionService{replies: make(chan fakeReply, 8)}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		io.Copy(io.Discard, file)
		file.Close()

		f.mu.Lock()
		f.requests++
		f.files = append(f.files, header.Filename)
		f.mu.Unlock()

		select {
		case reply := <-f.replies:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(reply.status)
			io.WriteString(w, reply.body)
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *fakePredictionService) reply(status int, body string) {
	f.replies <- fakeReply{status: status, body: body}
}

func (f *fakePredictionService) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func projectDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..")
}

func setupTestServer(t *testing.T) *TestServer {
	t.Helper()

	uploadDir := filepath.Join(t.TempDir(), "uploads")
	localStorage, err := storage.NewLocalStorage(uploadDir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	db := database.NewTestDB(t)
	history := database.NewPredictionRepository(db)

	predictor := newFakePredictionService(t)
	factory := WidgetFactory{
		Storage:   localStorage,
		Predictor: predict.NewClient(predictor.Server.URL+"/api/predict", 5*time.Second),
		History:   history,
	}
	sessions := session.NewManager(factory.New, time.Minute)
	t.Cleanup(sessions.Close)

	app := &App{
		Sessions:      sessions,
		Storage:       localStorage,
		History:       history,
		MaxUploadSize: 1 << 20,
		ThumbnailSize: 100,
		TemplateDir:   filepath.Join(projectDir(), "web", "templates"),
		StaticDir:     filepath.Join(projectDir(), "web", "static"),
	}

	server := httptest.NewServer(NewRouter(app))
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("Failed to create cookie jar: %v", err)
	}

	return &TestServer{
		Server:    server,
		Predictor: predictor,
		App:       app,
		History:   history,
		Sessions:  sessions,
		Client:    &http.Client{Jar: jar, Timeout: 5 * time.Second},
		UploadDir: uploadDir,
	}
}

type uploadFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

func createMultipartUpload(files ...uploadFile) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, f := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Filename))
		if f.ContentType != "" {
			header.Set("Content-Type", f.ContentType)
		}
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return body, writer.FormDataContentType(), nil
}

func (ts *TestServer) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := ts.Client.Get(ts.Server.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func (ts *TestServer) post(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := ts.Client.Post(ts.Server.URL+path, "application/x-www-form-urlencoded", nil)
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func (ts *TestServer) upload(t *testing.T, files ...uploadFile) (int, string) {
	t.Helper()
	body, contentType, err := createMultipartUpload(files...)
	if err != nil {
		t.Fatalf("Failed to create multipart upload: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, ts.Server.URL+"/widget/select", body)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := ts.Client.Do(req)
	if err != nil {
		t.Fatalf("Failed to upload: %v", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(respBody)
}

// waitForWidget polls the widget partial until it contains want.
func (ts *TestServer) waitForWidget(t *testing.T, want string) string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var body string
	for time.Now().Before(deadline) {
		_, body = ts.get(t, "/widget")
		if strings.Contains(body, want) {
			return body
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("widget never contained %q, last body: %s", want, body)
	return ""
}

func phaseOf(body string) string {
	const marker = `data-phase="`
	i := strings.Index(body, marker)
	if i < 0 {
		return ""
	}
	rest := body[i+len(marker):]
	return rest[:strings.Index(rest, `"`)]
}
