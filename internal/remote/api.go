package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/lucasnoah/reactorctl/internal/pipeline"
)

// PromptClip is the editable prompt text of one scene clip.
type PromptClip struct {
	Index        int    `json:"index"`
	ImagePrompt  string `json:"image_prompt"`
	MotionPrompt string `json:"motion_prompt"`
}

// PromptPayload is what the prompts gate stages for review.
type PromptPayload struct {
	Script string       `json:"script"`
	Clips  []PromptClip `json:"clips"`
}

// VideoClip is one generated clip awaiting review.
type VideoClip struct {
	Index    int    `json:"index"`
	VideoURL string `json:"video_url"`
}

// VideoPayload is what the videos gate stages for review.
type VideoPayload struct {
	Clips []VideoClip `json:"clips"`
}

// ScriptPreview is the script of a finished run.
type ScriptPreview struct {
	Hook       string `json:"hook"`
	ScriptFull string `json:"script_full"`
}

// LastResult holds the artifacts of the most recent completed run.
type LastResult struct {
	Images     []string       `json:"images"`
	Videos     []string       `json:"videos"`
	FinalVideo string         `json:"final_video"`
	Script     *ScriptPreview `json:"script,omitempty"`
}

type runBody struct {
	TopicID string `json:"topic_id,omitempty"`
}

// Run starts a run, either automatic or with manual assets.
func (c *Client) Run(ctx context.Context, req pipeline.RunRequest) error {
	if req.IsManual() {
		return c.postJSON(ctx, "manual-run", req.Manual, nil)
	}
	return c.postJSON(ctx, "run", runBody{TopicID: req.TopicID}, nil)
}

// Status fetches the current pipeline snapshot.
func (c *Client) Status(ctx context.Context) (pipeline.Snapshot, error) {
	var s pipeline.Snapshot
	if err := c.getJSON(ctx, "status", &s); err != nil {
		return pipeline.Snapshot{}, err
	}
	return s, nil
}

// Resume asks a gated or failed run to continue.
func (c *Client) Resume(ctx context.Context) error {
	return c.postJSON(ctx, "resume", nil, nil)
}

// Prompts fetches the staged scene prompts.
func (c *Client) Prompts(ctx context.Context) (PromptPayload, error) {
	var p PromptPayload
	err := c.getJSON(ctx, "prompts", &p)
	return p, err
}

// SavePrompts persists the full edited prompt set.
func (c *Client) SavePrompts(ctx context.Context, clips []PromptClip) error {
	return c.postJSON(ctx, "prompts/save", struct {
		Clips []PromptClip `json:"clips"`
	}{clips}, nil)
}

// VideosReview fetches the generated clips staged for review.
func (c *Client) VideosReview(ctx context.Context) (VideoPayload, error) {
	var p VideoPayload
	err := c.getJSON(ctx, "videos/review", &p)
	return p, err
}

// RegenClip regenerates a single clip and returns its replacement.
func (c *Client) RegenClip(ctx context.Context, index int) (VideoClip, error) {
	var resp struct {
		Clip *VideoClip `json:"clip"`
	}
	if err := c.postJSON(ctx, "videos/regen", struct {
		Index int `json:"index"`
	}{index}, &resp); err != nil {
		return VideoClip{}, err
	}
	if resp.Clip == nil {
		return VideoClip{}, fmt.Errorf("regen clip %d: response carried no clip", index)
	}
	return *resp.Clip, nil
}

// ApproveVideos approves the reviewed clip set.
func (c *Client) ApproveVideos(ctx context.Context, clips []VideoClip) error {
	return c.postJSON(ctx, "videos/approve", struct {
		Clips []VideoClip `json:"clips"`
	}{clips}, nil)
}

// Probe asks the server for a media URL's duration. ok is false when the
// server could not determine it.
func (c *Client) Probe(ctx context.Context, url string) (seconds float64, ok bool, err error) {
	var resp struct {
		Duration *float64 `json:"duration"`
	}
	if err := c.postJSON(ctx, "probe", struct {
		URL string `json:"url"`
	}{url}, &resp); err != nil {
		return 0, false, err
	}
	if resp.Duration == nil {
		return 0, false, nil
	}
	return *resp.Duration, true, nil
}

// Upload sends a file to the server's asset store and returns its public URL.
func (c *Client) Upload(ctx context.Context, name string, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(name)))
	h.Set("Content-Type", mimetype.Detect(data).String())
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	var resp struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "upload", &buf, mw.FormDataContentType(), &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", fmt.Errorf("upload %s: response carried no url", name)
	}
	return resp.URL, nil
}

// LastResult fetches the artifacts of the most recent completed run.
func (c *Client) LastResult(ctx context.Context) (LastResult, error) {
	var r LastResult
	err := c.getJSON(ctx, "last-result", &r)
	return r, err
}
