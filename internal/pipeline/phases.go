package pipeline

// Phase describes one ordered stage of the remote generation pipeline.
type Phase struct {
	Index int
	Label string
	// Gate is the review checkpoint that must be approved before this phase
	// starts, or GateNone. A gated run reports the preceding phase as done
	// and this one as current.
	Gate Gate
}

var phases = []Phase{
	{Index: 0, Label: "Fetch Topic"},
	{Index: 1, Label: "Generate Script"},
	{Index: 2, Label: "Scene Engine"},
	{Index: 3, Label: "Generate Images", Gate: GatePrompts},
	{Index: 4, Label: "Generate Videos"},
	{Index: 5, Label: "Voiceover", Gate: GateVideos},
	{Index: 6, Label: "Transcribe"},
	{Index: 7, Label: "Upload Assets"},
	{Index: 8, Label: "Final Render"},
	{Index: 9, Label: "Captions"},
	{Index: 10, Label: "Publish"},
}

// PhaseCount is the number of pipeline phases.
const PhaseCount = 11

// Phases returns a copy of the ordered phase list.
func Phases() []Phase {
	out := make([]Phase, len(phases))
	copy(out, phases)
	return out
}

// GatePhase returns the index of the phase held back by gate g, or -1 for
// GateNone.
func GatePhase(g Gate) int {
	for _, p := range phases {
		if g != GateNone && p.Gate == g {
			return p.Index
		}
	}
	return -1
}
