package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/oldphotos/api/internal/config"
	"github.com/oldphotos/api/internal/server"
)

// testApp holds the wired app plus the directories it works in.
type testApp struct {
	app   *fiber.App
	srv   *server.App
	aiDir string
}

// Stub worker scripts. The test config points the interpreter at /bin/sh,
// so every "python script" is really a tiny shell script: copy input to
// output and exit 0, exactly the contract real workers follow.
var stubScripts = map[string]string{
	"crop.py":              "cp \"$1\" \"$2\"\n",
	"inpaint.py":           "cp \"$1\" \"$3\"\n",
	"clean_spots.py":       "cp \"$1\" \"$2\"\n",
	"restore.py":           "cp \"$1\" \"$2\"\n",
	"face_restore.py":      "cp \"$1\" \"$2\"\n",
	"colorize_ddcolor.py":  "cp \"$1\" \"$2\"\n",
	"colorize.py":          "cp \"$1\" \"$2\"\n",
	"colorize_deoldify.py": "cp \"$1\" \"$2\"\n",
	"upscale.py":           "cp \"$1\" \"$2\"\n",
	"restore_openai.py":    "cp \"$1\" \"$2\"\n",
	"auto_crop.py":         "echo '{\"x\":12,\"y\":8,\"w\":320,\"h\":200}'\n",
}

// setupApp builds the full app against temp directories and shell-stub
// workers. Background loops are not started; tests drive everything
// through app.Test.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	base := t.TempDir()
	aiDir := filepath.Join(base, "ai")
	if err := os.MkdirAll(aiDir, 0o755); err != nil {
		t.Fatalf("failed to create ai dir: %v", err)
	}
	for name, body := range stubScripts {
		if err := os.WriteFile(filepath.Join(aiDir, name), []byte(body), 0o755); err != nil {
			t.Fatalf("failed to write stub %s: %v", name, err)
		}
	}

	cfg := &config.Config{
		Server: config.ServerConfig{Port: "0", LogLevel: "error"},
		Storage: config.StorageConfig{
			UploadsDir: filepath.Join(base, "uploads"),
			ResultsDir: filepath.Join(base, "results"),
			MasksDir:   filepath.Join(base, "masks"),
		},
		Scheduler: config.SchedulerConfig{MaxConcurrentLimit: 2},
		Heartbeat: config.HeartbeatConfig{TimeoutSeconds: 3600},
		Cleanup:   config.CleanupConfig{IntervalHours: 2, MaxAgeHours: 2},
		AI:        config.AIConfig{Dir: aiDir, Python: "/bin/sh"},
	}

	srv, err := server.New(cfg)
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}
	return &testApp{app: srv.Fiber, srv: srv, aiDir: aiDir}
}

// setupNotReadyApp builds an app whose interpreter does not exist, so the
// ready gate rejects work.
func setupNotReadyApp(t *testing.T) *testApp {
	t.Helper()

	base := t.TempDir()
	cfg := &config.Config{
		Server: config.ServerConfig{Port: "0", LogLevel: "error"},
		Storage: config.StorageConfig{
			UploadsDir: filepath.Join(base, "uploads"),
			ResultsDir: filepath.Join(base, "results"),
			MasksDir:   filepath.Join(base, "masks"),
		},
		Scheduler: config.SchedulerConfig{MaxConcurrentLimit: 2},
		Heartbeat: config.HeartbeatConfig{TimeoutSeconds: 3600},
		Cleanup:   config.CleanupConfig{IntervalHours: 2, MaxAgeHours: 2},
		AI:        config.AIConfig{Dir: filepath.Join(base, "ai")},
	}

	srv, err := server.New(cfg)
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}
	return &testApp{app: srv.Fiber, srv: srv, aiDir: cfg.AI.Dir}
}

// writeScript replaces one stub worker, e.g. with a failing one.
func (ta *testApp) writeScript(t *testing.T, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(ta.aiDir, name), []byte(body), 0o755); err != nil {
		t.Fatalf("failed to write script %s: %v", name, err)
	}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return app.Test(req, -1)
}

// uploadPhotos posts files named names under the multipart field "photos"
// and returns the created records.
func uploadPhotos(t *testing.T, app *fiber.App, names ...string) []map[string]interface{} {
	t.Helper()
	resp, err := uploadRaw(app, names...)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)
	return parseJSONArray(t, resp)
}

func uploadRaw(app *fiber.App, names ...string) (*http.Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, name := range names {
		fw, err := w.CreateFormFile("photos", name)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write([]byte("fake image bytes for " + name)); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, "/photos", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return app.Test(req, -1)
}

// createJobs posts one job per photo id and returns the created records.
func createJobs(t *testing.T, app *fiber.App, body string) []map[string]interface{} {
	t.Helper()
	resp, err := doRequest(app, http.MethodPost, "/jobs", body)
	if err != nil {
		t.Fatalf("create jobs failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)
	return parseJSONArray(t, resp)
}

// waitForJobStatus polls GET /jobs/:id until the job reaches the wanted
// status or the deadline passes.
func waitForJobStatus(t *testing.T, app *fiber.App, jobID, status string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var last map[string]interface{}
	for time.Now().Before(deadline) {
		resp, err := doRequest(app, http.MethodGet, "/jobs/"+jobID, "")
		if err != nil {
			t.Fatalf("get job failed: %v", err)
		}
		last = parseJSON(t, resp)
		if last["status"] == status {
			return last
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %q, last: %v", jobID, status, last)
	return nil
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// parseJSONArray parses response body into a slice of maps.
func parseJSONArray(t *testing.T, resp *http.Response) []map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result []map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON array: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// assertErrorCode checks the error envelope's code field.
func assertErrorCode(t *testing.T, resp *http.Response, code string) {
	t.Helper()
	result := parseJSON(t, resp)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", result)
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %s, got %v", code, errObj["code"])
	}
}
