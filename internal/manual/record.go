package manual

import (
	"github.com/lucasnoah/reactorctl/internal/pipeline"
	"github.com/lucasnoah/reactorctl/internal/probe"
)

// Record returns the persistable form of the registry. Pending slots are
// stored as unknown.
func (r *Registry) Record() pipeline.ManualRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := pipeline.ManualRecord{
		Clips:     make([]pipeline.AssetRecord, 0, len(r.clips)),
		Voiceover: toAsset(r.voiceover),
		Cta:       toAsset(r.cta),
	}
	for _, s := range r.clips {
		rec.Clips = append(rec.Clips, toAsset(s))
	}
	return rec
}

// Restore replaces the registry contents with a persisted record without
// probing. Records with no clips restore to InitialSlots empty slots;
// records with more than MaxSlots clips are truncated.
func (r *Registry) Restore(rec pipeline.ManualRecord) {
	r.mu.Lock()
	r.clips = r.clips[:0]
	for i, a := range rec.Clips {
		if i == MaxSlots {
			break
		}
		s := r.newSlot(KindClip)
		fromAsset(&s, a)
		r.clips = append(r.clips, s)
	}
	for len(r.clips) == 0 || (len(rec.Clips) == 0 && len(r.clips) < InitialSlots) {
		r.clips = append(r.clips, r.newSlot(KindClip))
	}
	fromAsset(&r.voiceover, rec.Voiceover)
	fromAsset(&r.cta, rec.Cta)
	view := r.commit()
	r.mu.Unlock()

	r.notify(view)
}

func toAsset(s Slot) pipeline.AssetRecord {
	a := pipeline.AssetRecord{URL: s.URL}
	if !s.Pending && s.Duration.Known {
		a.Duration = s.Duration.Seconds
		a.Known = true
	}
	return a
}

func fromAsset(s *Slot, a pipeline.AssetRecord) {
	s.URL = a.URL
	s.Pending = false
	s.Duration = probe.Unknown
	if a.Known {
		s.Duration = probe.Result{Seconds: a.Duration, Known: true}
	}
}
