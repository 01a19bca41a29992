package cli

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// fakePipeline is a scripted pipeline server. Routes are keyed by
// "METHOD /api/path"; unknown routes answer 404.
type fakePipeline struct {
	mu     sync.Mutex
	routes map[string]string
	calls  []string
	bodies map[string]string
}

func (f *fakePipeline) set(route, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[route] = body
}

func (f *fakePipeline) called(route string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == route {
			return true
		}
	}
	return false
}

func (f *fakePipeline) count(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == route {
			n++
		}
	}
	return n
}

func (f *fakePipeline) body(route string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[route]
}

// setupCLI starts a fake pipeline server, points a temp config and HOME at
// it, and returns the server and the config path.
func setupCLI(t *testing.T) (*fakePipeline, string) {
	t.Helper()
	fp := &fakePipeline{
		routes: map[string]string{
			"GET /api/status":      `{"running": false, "phase": 0, "phases_done": []}`,
			"POST /api/probe":      `{"duration": 8}`,
			"GET /api/last-result": `{"images": [], "videos": [], "final_video": ""}`,
		},
		bodies: map[string]string{},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		data, _ := io.ReadAll(r.Body)

		fp.mu.Lock()
		fp.calls = append(fp.calls, key)
		fp.bodies[key] = string(data)
		body, ok := fp.routes[key]
		fp.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"detail": "not found"}`)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error": "bad token"}`)
			return
		}
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{"REACTOR_URL", "REACTOR_TOKEN", "REACTOR_DATABASE_URL", "R2_BUCKET", "R2_ACCESS_KEY", "R2_SECRET_KEY"} {
		t.Setenv(k, "")
	}

	cfgPath := filepath.Join(t.TempDir(), "reactor.yaml")
	cfg := "server:\n  url: " + srv.URL + "\n  token: test-token\npoll:\n  interval: 10ms\n  error_interval: 10ms\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return fp, cfgPath
}

const gatedPromptsStatus = `{"running": false, "phase": 3, "phases_done": [0, 1, 2],
	"result": {"status": "gated", "gate": "prompts"}}`

const gatedVideosStatus = `{"running": false, "phase": 5, "phases_done": [0, 1, 2, 3, 4],
	"result": {"status": "gated", "gate": "videos"}}`

func TestStatusCommand(t *testing.T) {
	fp, cfg := setupCLI(t)
	fp.set("GET /api/status", gatedPromptsStatus)

	out, err := executeCommand("status", "--config", cfg, "--format", "text", "--offline=false")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"gated · 3/11 phases", "Scene Engine", "review prompts", "Paused for review"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}

	out, err = executeCommand("status", "--config", cfg, "--format", "json", "--offline=false")
	if err != nil {
		t.Fatalf("status json: %v", err)
	}
	var got statusJSON
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.Model.Gate != "prompts" || got.Model.Done != 3 {
		t.Errorf("model = %+v, want gate prompts with 3 done", got.Model)
	}
}

func TestStatusOfflineUsesSavedMirror(t *testing.T) {
	fp, cfg := setupCLI(t)
	fp.set("GET /api/status", gatedVideosStatus)

	if _, err := executeCommand("status", "--config", cfg, "--format", "text", "--offline=false"); err != nil {
		t.Fatalf("status: %v", err)
	}
	fp.set("GET /api/status", `{"error": "down"}`)

	out, err := executeCommand("status", "--config", cfg, "--format", "text", "--offline")
	if err != nil {
		t.Fatalf("status --offline: %v", err)
	}
	if !strings.Contains(out, "review videos") {
		t.Errorf("offline status missing saved gate:\n%s", out)
	}
}

func TestStatusServerError(t *testing.T) {
	fp, cfg := setupCLI(t)
	fp.set("GET /api/status", `{"error": "pipeline offline"}`)

	_, err := executeCommand("status", "--config", cfg, "--format", "text", "--offline=false")
	if err == nil || !strings.Contains(err.Error(), "pipeline offline") {
		t.Errorf("err = %v, want pipeline offline", err)
	}
}

func TestRunCommand(t *testing.T) {
	fp, cfg := setupCLI(t)
	fp.set("POST /api/run", `{"status": "started"}`)

	out, err := executeCommand("run", "--config", cfg, "--topic", "t-42", "--follow=false")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "Run started.") {
		t.Errorf("output = %q, want Run started.", out)
	}
	if got := fp.body("POST /api/run"); !strings.Contains(got, `"topic_id":"t-42"`) {
		t.Errorf("run body = %s, want topic_id t-42", got)
	}
}

func TestRunConflict(t *testing.T) {
	_, cfg := setupCLI(t)

	_, err := executeCommand("run", "--config", cfg, "--topic", "", "--follow=false")
	if err == nil {
		t.Fatal("expected error when the server rejects the run")
	}
}

func TestRunAgainAfterRemoteGoesIdle(t *testing.T) {
	fp, cfg := setupCLI(t)
	fp.set("POST /api/run", `{"status": "started"}`)

	if _, err := executeCommand("run", "--config", cfg, "--topic", "", "--follow=false"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// The saved mirror still says running; the server reports idle.
	out, err := executeCommand("run", "--config", cfg, "--topic", "", "--follow=false")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !strings.Contains(out, "Run started.") {
		t.Errorf("output = %q, want Run started.", out)
	}
	if n := fp.count("POST /api/run"); n != 2 {
		t.Errorf("run requests = %d, want 2", n)
	}
}

func TestRunRejectedWhileRemoteRunning(t *testing.T) {
	fp, cfg := setupCLI(t)
	fp.set("GET /api/status", `{"running": true, "phase": 2, "phases_done": [0, 1]}`)
	fp.set("POST /api/run", `{"status": "started"}`)

	_, err := executeCommand("run", "--config", cfg, "--topic", "", "--follow=false")
	if err == nil || !strings.Contains(err.Error(), "already in progress") {
		t.Fatalf("err = %v, want already in progress", err)
	}
	if fp.called("POST /api/run") {
		t.Error("run request issued while the remote is running")
	}
}

func TestResumeCommand(t *testing.T) {
	fp, cfg := setupCLI(t)
	fp.set("GET /api/status", gatedVideosStatus)
	fp.set("POST /api/resume", `{"status": "resumed"}`)

	out, err := executeCommand("resume", "--config", cfg, "--follow=false")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !strings.Contains(out, "Run resumed.") {
		t.Errorf("output = %q", out)
	}
	if !fp.called("POST /api/resume") {
		t.Error("resume endpoint not called")
	}
}

func TestPromptsShowAndEdit(t *testing.T) {
	fp, cfg := setupCLI(t)
	fp.set("GET /api/status", gatedPromptsStatus)
	fp.set("GET /api/prompts", `{"script": "A story.", "clips": [
		{"index": 0, "image_prompt": "a forest", "motion_prompt": "pan left"},
		{"index": 1, "image_prompt": "a river", "motion_prompt": "zoom in"}]}`)
	fp.set("POST /api/prompts/save", `{"status": "saved"}`)
	fp.set("POST /api/resume", `{"status": "resumed"}`)

	out, err := executeCommand("prompts", "show", "--config", cfg, "--format", "text")
	if err != nil {
		t.Fatalf("prompts show: %v", err)
	}
	for _, want := range []string{"A story.", "a forest", "zoom in"} {
		if !strings.Contains(out, want) {
			t.Errorf("prompts show missing %q:\n%s", want, out)
		}
	}

	out, err = executeCommand("prompts", "edit", "1", "--config", cfg, "--image", "a waterfall", "--follow=false")
	if err != nil {
		t.Fatalf("prompts edit: %v", err)
	}
	if !strings.Contains(out, "Prompts approved") {
		t.Errorf("output = %q", out)
	}

	var saved struct {
		Clips []struct {
			Index        int    `json:"index"`
			ImagePrompt  string `json:"image_prompt"`
			MotionPrompt string `json:"motion_prompt"`
		} `json:"clips"`
	}
	if err := json.Unmarshal([]byte(fp.body("POST /api/prompts/save")), &saved); err != nil {
		t.Fatalf("decode save body: %v", err)
	}
	if len(saved.Clips) != 2 {
		t.Fatalf("saved %d clips, want 2", len(saved.Clips))
	}
	if saved.Clips[0].ImagePrompt != "a forest" || saved.Clips[1].ImagePrompt != "a waterfall" || saved.Clips[1].MotionPrompt != "zoom in" {
		t.Errorf("saved clips = %+v", saved.Clips)
	}
	if !fp.called("POST /api/resume") {
		t.Error("resume not called after save")
	}
}

func TestPromptsEditNeedsChange(t *testing.T) {
	_, cfg := setupCLI(t)
	// Reset flags that an earlier test may have set.
	promptsEditCmd.Flags().Set("image", "")
	promptsEditCmd.Flags().Lookup("image").Changed = false
	promptsEditCmd.Flags().Lookup("motion").Changed = false

	_, err := executeCommand("prompts", "edit", "0", "--config", cfg)
	if err == nil || !strings.Contains(err.Error(), "nothing to change") {
		t.Errorf("err = %v, want nothing to change", err)
	}
}

func TestPromptsNotGated(t *testing.T) {
	_, cfg := setupCLI(t)

	_, err := executeCommand("prompts", "show", "--config", cfg, "--format", "text")
	if err == nil || !strings.Contains(err.Error(), "not halted") {
		t.Errorf("err = %v, want not-gated error", err)
	}
}

func TestPromptsSaveFromFile(t *testing.T) {
	fp, cfg := setupCLI(t)
	fp.set("GET /api/status", gatedPromptsStatus)
	fp.set("GET /api/prompts", `{"clips": [{"index": 0, "image_prompt": "old", "motion_prompt": "still"}]}`)
	fp.set("POST /api/prompts/save", `{}`)
	fp.set("POST /api/resume", `{}`)

	edits := filepath.Join(t.TempDir(), "edits.yaml")
	os.WriteFile(edits, []byte("- index: 0\n  motion_prompt: orbit\n"), 0o644)

	if _, err := executeCommand("prompts", "save", "--config", cfg, "-f", edits, "--follow=false"); err != nil {
		t.Fatalf("prompts save: %v", err)
	}
	body := fp.body("POST /api/prompts/save")
	if !strings.Contains(body, `"motion_prompt":"orbit"`) || !strings.Contains(body, `"image_prompt":"old"`) {
		t.Errorf("save body = %s", body)
	}
}

func TestVideosReviewRegenApprove(t *testing.T) {
	fp, cfg := setupCLI(t)
	fp.set("GET /api/status", gatedVideosStatus)
	fp.set("GET /api/videos/review", `{"clips": [
		{"index": 0, "video_url": "https://cdn.test/v0.mp4"},
		{"index": 1, "video_url": "https://cdn.test/v1.mp4"}]}`)
	fp.set("POST /api/videos/regen", `{"clip": {"index": 1, "video_url": "https://cdn.test/v1b.mp4"}}`)
	fp.set("POST /api/videos/approve", `{}`)
	fp.set("POST /api/resume", `{}`)

	out, err := executeCommand("videos", "review", "--config", cfg, "--format", "text")
	if err != nil {
		t.Fatalf("videos review: %v", err)
	}
	if !strings.Contains(out, "Clip 1: https://cdn.test/v1.mp4") {
		t.Errorf("review output = %q", out)
	}

	out, err = executeCommand("videos", "regen", "1", "--config", cfg)
	if err != nil {
		t.Fatalf("videos regen: %v", err)
	}
	if !strings.Contains(out, "v1b.mp4") {
		t.Errorf("regen output = %q", out)
	}
	if fp.called("POST /api/resume") {
		t.Error("regen must not resume")
	}

	if _, err := executeCommand("videos", "approve", "--config", cfg, "--follow=false"); err != nil {
		t.Fatalf("videos approve: %v", err)
	}
	if !strings.Contains(fp.body("POST /api/videos/approve"), "v0.mp4") {
		t.Errorf("approve body = %s", fp.body("POST /api/videos/approve"))
	}
	if !fp.called("POST /api/resume") {
		t.Error("approve did not resume")
	}
}

func TestVideosRegenUnknownClip(t *testing.T) {
	fp, cfg := setupCLI(t)
	fp.set("GET /api/status", gatedVideosStatus)
	fp.set("GET /api/videos/review", `{"clips": [{"index": 0, "video_url": "https://cdn.test/v0.mp4"}]}`)

	_, err := executeCommand("videos", "regen", "4", "--config", cfg)
	if err == nil {
		t.Fatal("expected error for a clip outside the payload")
	}
	if fp.called("POST /api/videos/regen") {
		t.Error("regen endpoint called for unknown clip")
	}
}

func TestManualSlotsPersistAcrossCommands(t *testing.T) {
	fp, cfg := setupCLI(t)
	fp.set("POST /api/manual-run", `{"status": "started"}`)

	out, err := executeCommand("manual", "set-clip", "0", "https://cdn.test/a.mp4", "--config", cfg)
	if err != nil {
		t.Fatalf("set-clip: %v", err)
	}
	if !strings.Contains(out, "https://cdn.test/a.mp4 (8.0s)") {
		t.Errorf("set-clip output = %q", out)
	}

	if _, err := executeCommand("manual", "set-voiceover", "not a url", "--config", cfg); err != nil {
		t.Fatalf("set-voiceover: %v", err)
	}

	out, err = executeCommand("manual", "show", "--config", cfg, "--format", "text", "--probe=false")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"clip 0", "a.mp4 (8.0s)", "not a url (invalid URL, ignored)", "clip 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("show missing %q:\n%s", want, out)
		}
	}

	out, err = executeCommand("manual", "run", "--config", cfg, "--follow=false")
	if err != nil {
		t.Fatalf("manual run: %v", err)
	}
	if !strings.Contains(out, "Manual run started with 1 clip(s).") {
		t.Errorf("run output = %q", out)
	}
	body := fp.body("POST /api/manual-run")
	if !strings.Contains(body, "https://cdn.test/a.mp4") || strings.Contains(body, "not a url") {
		t.Errorf("manual-run body = %s", body)
	}

	// The server went idle again; a second manual run is not blocked by the
	// running flag the first one saved.
	if _, err := executeCommand("manual", "run", "--config", cfg, "--follow=false"); err != nil {
		t.Fatalf("second manual run: %v", err)
	}
	if n := fp.count("POST /api/manual-run"); n != 2 {
		t.Errorf("manual-run requests = %d, want 2", n)
	}
}

func TestManualSlotBounds(t *testing.T) {
	_, cfg := setupCLI(t)

	if _, err := executeCommand("manual", "remove-slot", "9", "--config", cfg); err == nil {
		t.Error("expected error removing a slot that does not exist")
	}
	for i := 0; i < 3; i++ {
		if _, err := executeCommand("manual", "add-slot", "--config", cfg); err != nil {
			t.Fatalf("add-slot %d: %v", i, err)
		}
	}
	if _, err := executeCommand("manual", "add-slot", "--config", cfg); err == nil {
		t.Error("expected error adding a seventh slot")
	}
}

func TestManualRunWithoutClips(t *testing.T) {
	fp, cfg := setupCLI(t)

	_, err := executeCommand("manual", "run", "--config", cfg, "--follow=false")
	if err == nil {
		t.Fatal("expected error without clips")
	}
	if fp.called("POST /api/manual-run") {
		t.Error("manual-run called without clips")
	}
}

func TestManualEstimate(t *testing.T) {
	_, cfg := setupCLI(t)

	out, err := executeCommand("manual", "estimate", "--config", cfg)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	for _, want := range []string{"3 clips × 10s", "[ok] well matched", "final 36.0s"} {
		if !strings.Contains(out, want) {
			t.Errorf("estimate missing %q:\n%s", want, out)
		}
	}
}

func TestUploadAssignsVoiceover(t *testing.T) {
	fp, cfg := setupCLI(t)
	fp.set("POST /api/upload", `{"url": "https://cdn.test/voice.mp3"}`)
	fp.set("POST /api/probe", `{"duration": 31.5}`)

	path := filepath.Join(t.TempDir(), "voice.mp3")
	os.WriteFile(path, append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), make([]byte, 64)...), 0o644)

	out, err := executeCommand("upload", path, "--config", cfg, "--as", "voiceover", "--direct=false")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.Contains(out, path+"  https://cdn.test/voice.mp3") {
		t.Errorf("upload output = %q", out)
	}
	if !strings.Contains(out, "voiceover  https://cdn.test/voice.mp3 (31.5s)") {
		t.Errorf("voiceover not assigned:\n%s", out)
	}
	if !strings.Contains(fp.body("POST /api/upload"), `filename="voice.mp3"`) {
		t.Error("multipart filename missing")
	}
}

func TestUploadRejectsBadAs(t *testing.T) {
	_, cfg := setupCLI(t)

	_, err := executeCommand("upload", "x.mp4", "--config", cfg, "--as", "poster")
	if err == nil || !strings.Contains(err.Error(), "--as must be") {
		t.Errorf("err = %v", err)
	}
}

func TestUploadDirectNeedsStorage(t *testing.T) {
	_, cfg := setupCLI(t)

	path := filepath.Join(t.TempDir(), "a.mp4")
	os.WriteFile(path, []byte("data"), 0o644)

	_, err := executeCommand("upload", path, "--config", cfg, "--as", "", "--direct")
	if err == nil {
		t.Error("expected error without storage configured")
	}
}

func TestEventsNeedsDatabase(t *testing.T) {
	_, cfg := setupCLI(t)

	_, err := executeCommand("events", "--config", cfg)
	if err == nil || !strings.Contains(err.Error(), "no database configured") {
		t.Errorf("err = %v", err)
	}
}

func TestDBResetNeedsConfirmation(t *testing.T) {
	_, cfg := setupCLI(t)

	_, err := executeCommand("db", "reset", "--config", cfg, "--yes=false")
	if err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Errorf("err = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	_, cfg := setupCLI(t)

	out, err := executeCommand("config", "validate", "--config", cfg)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "Configuration is valid.") {
		t.Errorf("output = %q", out)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("render:\n  clip_count: 9\n"), 0o644)
	out, err = executeCommand("config", "validate", "--config", bad)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(out, "render.clip_count") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	_, cfg := setupCLI(t)
	t.Setenv("REACTOR_DATABASE_URL", "postgres://app:hunter2@db:5432/reactor")

	out, err := executeCommand("config", "show", "--config", cfg, "--secrets=false")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if strings.Contains(out, "test-token") || strings.Contains(out, "hunter2") {
		t.Errorf("secrets leaked:\n%s", out)
	}
	if !strings.Contains(out, "clip_count: 3") {
		t.Errorf("defaults not shown:\n%s", out)
	}
}

func TestMaskDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://app:pw@db/reactor", "postgres://app:redacted@db/reactor"},
		{"postgres://app@db/reactor", "postgres://app@db/reactor"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := maskDSN(tt.in); got != tt.want {
			t.Errorf("maskDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
