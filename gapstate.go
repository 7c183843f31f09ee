package cd11

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// gapState is the on disk form of a SessionGaps.
type gapState struct {
	Frameset string         `yaml:"frameset"`
	Empty    bool           `yaml:"empty"`
	Min      uint64         `yaml:"min"`
	Max      uint64         `yaml:"max"`
	Gaps     []gapStateItem `yaml:"gaps"`
}

type gapStateItem struct {
	Start    uint64    `yaml:"start"`
	End      uint64    `yaml:"end"`
	Modified time.Time `yaml:"modified"`
}

// SaveGapState writes the state of s to path as YAML so a restarted receiver
// keeps asking for the same gaps. The file is replaced atomically.
func SaveGapState(path string, s *SessionGaps) error {
	s.mu.Lock()
	min, max, empty, gaps := s.gaps.snapshot()
	s.mu.Unlock()

	state := gapState{Frameset: s.framesetName, Empty: empty, Min: min, Max: max}
	state.Gaps = make([]gapStateItem, 0, len(gaps))
	for _, g := range gaps {
		state.Gaps = append(state.Gaps, gapStateItem{Start: g.Start, End: g.End, Modified: g.Modified.UTC()})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&state); err != nil {
		return fmt.Errorf("encode gap state: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode gap state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create gap state: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write gap state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write gap state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace gap state: %w", err)
	}
	log.Tracef("Saved %d gaps of %v to %v", len(gaps), s.framesetName, path)
	return nil
}

// LoadGapState reads SessionGaps previously written by SaveGapState.
func LoadGapState(path string) (*SessionGaps, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var state gapState
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&state); err != nil {
		return nil, fmt.Errorf("decode gap state %v: %w", path, err)
	}
	if err := ValidateFramesetName(state.Frameset); err != nil {
		return nil, fmt.Errorf("gap state %v: %w", path, err)
	}
	gaps := make([]Gap, 0, len(state.Gaps))
	for _, g := range state.Gaps {
		gaps = append(gaps, Gap{Start: g.Start, End: g.End, Modified: g.Modified})
	}
	s := NewSessionGaps(state.Frameset)
	if err := s.gaps.restore(state.Min, state.Max, state.Empty, gaps); err != nil {
		return nil, fmt.Errorf("gap state %v: %w", path, err)
	}
	log.Debugf("Loaded %d gaps of %v from %v", len(gaps), state.Frameset, path)
	return s, nil
}
