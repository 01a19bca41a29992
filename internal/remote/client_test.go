package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lucasnoah/reactorctl/internal/pipeline"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   string
}

// fakeServer serves canned JSON bodies keyed by "METHOD /path".
func fakeServer(t *testing.T, routes map[string]string, status int) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{r.Method, r.URL.Path, r.Header.Get("Authorization"), string(data)})
		body, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if status != 0 {
			w.WriteHeader(status)
		}
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestStatus(t *testing.T) {
	srv, calls := fakeServer(t, map[string]string{
		"GET /api/status": `{"running":false,"phase":4,"phases_done":[0,1,2,3,4],"result":{"status":"gated","gate":"videos"}}`,
	}, 0)
	c := NewClient(srv.URL+"/", WithToken("tok"))

	s, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if s.Running || s.Phase != 4 || len(s.PhasesDone) != 5 {
		t.Errorf("snapshot = %+v", s)
	}
	if s.Result == nil || s.Result.Gate != pipeline.GateVideos || s.Result.Status != pipeline.StatusGated {
		t.Errorf("result = %+v", s.Result)
	}
	if (*calls)[0].auth != "Bearer tok" {
		t.Errorf("Authorization = %q, want bearer token", (*calls)[0].auth)
	}
}

func TestStatus_UnknownGateRejected(t *testing.T) {
	srv, _ := fakeServer(t, map[string]string{
		"GET /api/status": `{"running":false,"phase":2,"phases_done":[],"result":{"status":"gated","gate":"captions"}}`,
	}, 0)
	if _, err := NewClient(srv.URL).Status(context.Background()); err == nil {
		t.Error("expected decode error for unknown gate")
	}
}

func TestRun_AutoAndManual(t *testing.T) {
	srv, calls := fakeServer(t, map[string]string{
		"POST /api/run":        `{"status":"started"}`,
		"POST /api/manual-run": `{"status":"started"}`,
	}, 0)
	c := NewClient(srv.URL)

	if err := c.Run(context.Background(), pipeline.RunRequest{TopicID: "t-1"}); err != nil {
		t.Fatalf("Run(auto) error: %v", err)
	}
	manual := &pipeline.ManualAssets{Clips: []string{"https://a/1.mp4"}, CtaURL: "https://a/cta.mp4"}
	if err := c.Run(context.Background(), pipeline.RunRequest{Manual: manual}); err != nil {
		t.Fatalf("Run(manual) error: %v", err)
	}

	if len(*calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(*calls))
	}
	if (*calls)[0].path != "/api/run" || !strings.Contains((*calls)[0].body, `"topic_id":"t-1"`) {
		t.Errorf("auto call = %+v", (*calls)[0])
	}
	var got map[string]any
	if err := json.Unmarshal([]byte((*calls)[1].body), &got); err != nil {
		t.Fatal(err)
	}
	if (*calls)[1].path != "/api/manual-run" || got["cta_url"] != "https://a/cta.mp4" {
		t.Errorf("manual call = %+v", (*calls)[1])
	}
	if _, ok := got["voiceover"]; ok {
		t.Error("empty voiceover should be omitted")
	}
}

func TestAPIError_Conflict(t *testing.T) {
	srv, _ := fakeServer(t, map[string]string{
		"POST /api/run": `{"error":"Pipeline already running"}`,
	}, http.StatusConflict)

	err := NewClient(srv.URL).Run(context.Background(), pipeline.RunRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Message != "Pipeline already running" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestAPIError_ErrorFieldOn200(t *testing.T) {
	srv, _ := fakeServer(t, map[string]string{
		"POST /api/resume": `{"error":"nothing to resume"}`,
	}, 0)
	err := NewClient(srv.URL).Resume(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "nothing to resume" {
		t.Errorf("err = %v, want APIError with server message", err)
	}
}

func TestAPIError_Detail(t *testing.T) {
	srv, _ := fakeServer(t, map[string]string{
		"GET /api/prompts": `{"detail":"Not staged"}`,
	}, http.StatusNotFound)
	_, err := NewClient(srv.URL).Prompts(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Not staged" {
		t.Errorf("err = %v", err)
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Status(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Errorf("err = %v, want ErrTransport", err)
	}
}

func TestPromptsRoundTrip(t *testing.T) {
	srv, calls := fakeServer(t, map[string]string{
		"GET /api/prompts":       `{"script":"Once upon","clips":[{"index":0,"image_prompt":"knight","motion_prompt":"pan"}]}`,
		"POST /api/prompts/save": `{"ok":true}`,
	}, 0)
	c := NewClient(srv.URL)

	p, err := c.Prompts(context.Background())
	if err != nil {
		t.Fatalf("Prompts() error: %v", err)
	}
	if p.Script != "Once upon" || len(p.Clips) != 1 || p.Clips[0].ImagePrompt != "knight" {
		t.Errorf("payload = %+v", p)
	}
	p.Clips[0].MotionPrompt = "zoom"
	if err := c.SavePrompts(context.Background(), p.Clips); err != nil {
		t.Fatalf("SavePrompts() error: %v", err)
	}
	if !strings.Contains((*calls)[1].body, `"motion_prompt":"zoom"`) {
		t.Errorf("save body = %s", (*calls)[1].body)
	}
}

func TestRegenClip(t *testing.T) {
	srv, calls := fakeServer(t, map[string]string{
		"POST /api/videos/regen": `{"clip":{"index":1,"video_url":"https://cdn/v1b.mp4"}}`,
	}, 0)
	clip, err := NewClient(srv.URL).RegenClip(context.Background(), 1)
	if err != nil {
		t.Fatalf("RegenClip() error: %v", err)
	}
	if clip.VideoURL != "https://cdn/v1b.mp4" {
		t.Errorf("clip = %+v", clip)
	}
	if (*calls)[0].body != `{"index":1}` {
		t.Errorf("body = %s", (*calls)[0].body)
	}
}

func TestRegenClip_NoClip(t *testing.T) {
	srv, _ := fakeServer(t, map[string]string{"POST /api/videos/regen": `{}`}, 0)
	if _, err := NewClient(srv.URL).RegenClip(context.Background(), 0); err == nil {
		t.Error("expected error for empty regen response")
	}
}

func TestProbe(t *testing.T) {
	srv, _ := fakeServer(t, map[string]string{"POST /api/probe": `{"duration":12.5}`}, 0)
	secs, ok, err := NewClient(srv.URL).Probe(context.Background(), "https://a/1.mp4")
	if err != nil || !ok || secs != 12.5 {
		t.Errorf("Probe() = %v, %v, %v", secs, ok, err)
	}

	srv2, _ := fakeServer(t, map[string]string{"POST /api/probe": `{}`}, 0)
	secs, ok, err = NewClient(srv2.URL).Probe(context.Background(), "https://a/1.mp4")
	if err != nil || ok || secs != 0 {
		t.Errorf("Probe(no duration) = %v, %v, %v", secs, ok, err)
	}
}

func TestUpload(t *testing.T) {
	var gotName, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		gotName = hdr.Filename
		gotType = hdr.Header.Get("Content-Type")
		io.WriteString(w, `{"url":"https://pub/manual/voice.mp3"}`)
	}))
	defer srv.Close()

	url, err := NewClient(srv.URL).Upload(context.Background(), "/tmp/voice.mp3", []byte("ID3\x03\x00\x00\x00\x00\x00\x00"))
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if url != "https://pub/manual/voice.mp3" {
		t.Errorf("url = %q", url)
	}
	if gotName != "voice.mp3" {
		t.Errorf("filename = %q, want voice.mp3", gotName)
	}
	if gotType != "audio/mpeg" {
		t.Errorf("content type = %q, want audio/mpeg", gotType)
	}
}

func TestLastResult(t *testing.T) {
	srv, _ := fakeServer(t, map[string]string{
		"GET /api/last-result": `{"images":["i0"],"videos":["v0"],"final_video":"https://cdn/final.mp4","script":{"hook":"Listen","script_full":"Listen well"}}`,
	}, 0)
	r, err := NewClient(srv.URL).LastResult(context.Background())
	if err != nil {
		t.Fatalf("LastResult() error: %v", err)
	}
	if r.FinalVideo != "https://cdn/final.mp4" || r.Script == nil || r.Script.Hook != "Listen" {
		t.Errorf("result = %+v", r)
	}
}
