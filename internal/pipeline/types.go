package pipeline

import (
	"encoding/json"
	"fmt"
)

// Gate names a review checkpoint the remote pipeline can halt at.
type Gate int

const (
	GateNone Gate = iota
	GatePrompts
	GateVideos
)

func (g Gate) String() string {
	switch g {
	case GatePrompts:
		return "prompts"
	case GateVideos:
		return "videos"
	default:
		return "none"
	}
}

// ParseGate converts the wire value into a Gate. Empty and "none" are GateNone;
// anything else that is not a known gate is an error.
func ParseGate(s string) (Gate, error) {
	switch s {
	case "", "none":
		return GateNone, nil
	case "prompts":
		return GatePrompts, nil
	case "videos":
		return GateVideos, nil
	}
	return GateNone, fmt.Errorf("unknown gate %q", s)
}

func (g Gate) MarshalJSON() ([]byte, error) {
	if g == GateNone {
		return []byte("null"), nil
	}
	return json.Marshal(g.String())
}

func (g *Gate) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*g = GateNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("gate: %w", err)
	}
	parsed, err := ParseGate(s)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// RunStatus is the lifecycle status of the most recent pipeline result.
type RunStatus string

const (
	StatusNew        RunStatus = "new"
	StatusProcessing RunStatus = "processing"
	StatusGated      RunStatus = "gated"
	StatusExecuted   RunStatus = "executed"
	StatusPublished  RunStatus = "published"
	StatusFailed     RunStatus = "failed"
)

var knownStatuses = map[RunStatus]bool{
	StatusNew:        true,
	StatusProcessing: true,
	StatusGated:      true,
	StatusExecuted:   true,
	StatusPublished:  true,
	StatusFailed:     true,
}

func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("status: %w", err)
	}
	if !knownStatuses[RunStatus(raw)] {
		return fmt.Errorf("unknown run status %q", raw)
	}
	*s = RunStatus(raw)
	return nil
}

// Result is the outcome the remote pipeline reports for the current or last run.
type Result struct {
	Status RunStatus `json:"status"`
	Gate   Gate      `json:"gate,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Snapshot is one decoded status response.
type Snapshot struct {
	Running    bool    `json:"running"`
	Phase      int     `json:"phase"`
	PhasesDone []int   `json:"phases_done"`
	Result     *Result `json:"result,omitempty"`
}

// ManualAssets are the user-supplied URLs that replace generated media.
type ManualAssets struct {
	Clips     []string `json:"clips"`
	Voiceover string   `json:"voiceover,omitempty"`
	CtaURL    string   `json:"cta_url,omitempty"`
}

// RunRequest starts either a fully automatic run or a manual one.
// Manual is nil for automatic runs.
type RunRequest struct {
	TopicID string
	Manual  *ManualAssets
}

// IsManual reports whether the request substitutes user assets.
func (r RunRequest) IsManual() bool {
	return r.Manual != nil
}
