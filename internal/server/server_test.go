package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/deepdream/internal/dream"
	"github.com/cwbudde/deepdream/internal/imgio"
)

func setupTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dataDir := t.TempDir()
	srv, err := NewServer("localhost:0", dataDir)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return srv, dataDir
}

// writeTestRef saves a small noise-free reference image and returns its path.
func writeTestRef(t *testing.T, dir string) string {
	t.Helper()
	img := dream.NewTensor(12, 12, dream.Channels)
	for i := range img.Data {
		img.Data[i] = float64(i%7) / 7.0
	}
	path := filepath.Join(dir, "ref.png")
	if err := imgio.Save(path, img); err != nil {
		t.Fatalf("Failed to save reference image: %v", err)
	}
	return path
}

func postJob(t *testing.T, srv *Server, config JobConfig) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(config)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleJobs(w, req)
	return w
}

func waitForState(t *testing.T, srv *Server, jobID string, want JobState) *Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, exists := srv.jobManager.GetJob(jobID)
		if exists && job.State == want {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	job, _ := srv.jobManager.GetJob(jobID)
	t.Fatalf("Job never reached state %s, last state: %+v", want, job)
	return nil
}

func TestCreateJobEndpoint(t *testing.T) {
	srv, dataDir := setupTestServer(t)
	refPath := writeTestRef(t, dataDir)

	w := postJob(t, srv, JobConfig{
		RefPath:             refPath,
		Octaves:             1,
		ScaleRatio:          1.4,
		IterationsPerOctave: 2,
		StepSize:            0.01,
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var job Job
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}
	if job.ID == "" {
		t.Error("Response job has no ID")
	}

	done := waitForState(t, srv, job.ID, StateCompleted)
	if done.Artifact == "" {
		t.Error("Completed job has no final artifact")
	}
	if !strings.HasSuffix(done.Artifact, "final.png") {
		t.Errorf("Final artifact = %s, want final.png", done.Artifact)
	}
}

func TestCreateJobAppliesDefaults(t *testing.T) {
	srv, dataDir := setupTestServer(t)
	refPath := writeTestRef(t, dataDir)

	w := postJob(t, srv, JobConfig{RefPath: refPath})
	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var job Job
	json.Unmarshal(w.Body.Bytes(), &job)
	if job.Config.Octaves != 3 || job.Config.ScaleRatio != 1.4 ||
		job.Config.IterationsPerOctave != 20 || job.Config.StepSize != 0.01 {
		t.Errorf("Defaults not applied: %+v", job.Config)
	}
}

func TestCreateJobRejectsInvalidConfig(t *testing.T) {
	srv, _ := setupTestServer(t)

	tests := []struct {
		name   string
		config JobConfig
	}{
		{"missing ref", JobConfig{Octaves: 3, ScaleRatio: 1.4, IterationsPerOctave: 20, StepSize: 0.01}},
		{"ratio not above one", JobConfig{RefPath: "ref.png", Octaves: 3, ScaleRatio: 1.0, IterationsPerOctave: 20, StepSize: 0.01}},
		{"negative step", JobConfig{RefPath: "ref.png", Octaves: 3, ScaleRatio: 1.4, IterationsPerOctave: 20, StepSize: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJob(t, srv, tt.config)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestCreateJobRejectsInvalidJSON(t *testing.T) {
	srv, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	srv.handleJobs(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestJobFailsOnMissingReference(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := postJob(t, srv, JobConfig{
		RefPath:             "/nonexistent/ref.png",
		Octaves:             1,
		ScaleRatio:          1.4,
		IterationsPerOctave: 2,
		StepSize:            0.01,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusCreated)
	}

	var job Job
	json.Unmarshal(w.Body.Bytes(), &job)

	failed := waitForState(t, srv, job.ID, StateFailed)
	if failed.Error == "" {
		t.Error("Failed job has no error message")
	}
}

func TestListJobsEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)
	srv.jobManager.CreateJob(testJobConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()
	srv.handleJobs(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var jobs []Job
	if err := json.Unmarshal(w.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("Listed %d jobs, want 1", len(jobs))
	}
}

func TestJobStatusEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)
	job := srv.jobManager.CreateJob(testJobConfig())
	srv.jobManager.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.Octave = 2
		j.LastLoss = 1.25
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID+"/status", nil)
	w := httptest.NewRecorder()
	srv.handleJobsWithID(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	if response["state"] != "running" {
		t.Errorf("State = %v, want running", response["state"])
	}
	if response["lastLoss"].(float64) != 1.25 {
		t.Errorf("lastLoss = %v, want 1.25", response["lastLoss"])
	}
}

func TestJobStatusNotFound(t *testing.T) {
	srv, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/no-such-job/status", nil)
	w := httptest.NewRecorder()
	srv.handleJobsWithID(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestPreviewNotReady(t *testing.T) {
	srv, _ := setupTestServer(t)
	job := srv.jobManager.CreateJob(testJobConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID+"/preview.png", nil)
	w := httptest.NewRecorder()
	srv.handleJobsWithID(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d for job without artifact", w.Code, http.StatusNotFound)
	}
}

func TestCancelEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)
	job := srv.jobManager.CreateJob(testJobConfig())
	srv.jobManager.UpdateJob(job.ID, func(j *Job) { j.State = StateCompleted })

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+job.ID+"/cancel", nil)
	w := httptest.NewRecorder()
	srv.handleJobsWithID(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("Cancelling a completed job: status = %d, want %d", w.Code, http.StatusConflict)
	}

	// GET on the cancel endpoint is rejected
	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID+"/cancel", nil)
	w = httptest.NewRecorder()
	srv.handleJobsWithID(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET cancel: status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestMethodNotAllowedOnJobs(t *testing.T) {
	srv, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()
	srv.handleJobs(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestCorsPreflightHandled(t *testing.T) {
	srv, _ := setupTestServer(t)

	handler := srv.corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Preflight request reached the inner handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Missing CORS origin header")
	}
}
