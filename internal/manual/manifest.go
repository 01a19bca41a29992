package manual

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is a YAML description of the manual assets:
//
//	clips:
//	  - https://cdn.example.com/clip1.mp4
//	voiceover: https://cdn.example.com/voice.mp3
//	cta: https://cdn.example.com/cta.mp4
type Manifest struct {
	Clips     []string `yaml:"clips"`
	Voiceover string   `yaml:"voiceover"`
	Cta       string   `yaml:"cta"`
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Clips) > MaxSlots {
		return nil, fmt.Errorf("manifest lists %d clips: %w", len(m.Clips), ErrTooManySlots)
	}
	return &m, nil
}

// Apply makes the registry match the manifest. Slots whose URL is
// unchanged keep their probed duration.
func (r *Registry) Apply(m *Manifest) error {
	want := len(m.Clips)
	if want > MaxSlots {
		return ErrTooManySlots
	}
	if want == 0 {
		want = 1
	}
	for len(r.View().Clips) < want {
		if err := r.AddSlot(); err != nil {
			return err
		}
	}
	for n := len(r.View().Clips); n > want; n-- {
		if err := r.RemoveSlot(n - 1); err != nil {
			return err
		}
	}

	v := r.View()
	for i := range v.Clips {
		var u string
		if i < len(m.Clips) {
			u = m.Clips[i]
		}
		if v.Clips[i].URL != u {
			if err := r.SetClipURL(i, u); err != nil {
				return err
			}
		}
	}
	if v.Voiceover.URL != m.Voiceover {
		r.SetVoiceoverURL(m.Voiceover)
	}
	if v.Cta.URL != m.Cta {
		r.SetCtaURL(m.Cta)
	}
	return nil
}
