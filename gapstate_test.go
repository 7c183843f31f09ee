package cd11

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGapStateRoundTrip(t *testing.T) {
	s := NewSessionGaps("TXAR:0")
	for _, seq := range []uint64{1, 5, 10, 11, 40} {
		s.AddSequenceNumber(seq)
	}
	path := filepath.Join(t.TempDir(), "gaps.yaml")
	require.NoError(t, SaveGapState(path, s))

	loaded, err := LoadGapState(path)
	require.NoError(t, err)
	assert.Equal(t, "TXAR:0", loaded.FramesetName())
	assert.Equal(t, s.Min(), loaded.Min())
	assert.Equal(t, s.Max(), loaded.Max())
	assert.Equal(t, s.Gaps(), loaded.Gaps())
	assert.Equal(t, s.gaps.Gaps(false, false), loaded.gaps.Gaps(false, false))

	// tracking continues where it left off
	loaded.AddSequenceNumber(20)
	assert.Equal(t, []Range{{1, 4}, {5, 9}, {11, 19}, {20, 39}}, loaded.Gaps())

	// overwriting leaves no temp files behind
	require.NoError(t, SaveGapState(path, loaded))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestGapStateEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gaps.yaml")
	require.NoError(t, SaveGapState(path, NewSessionGaps("TXAR:0")))
	loaded, err := LoadGapState(path)
	require.NoError(t, err)
	assert.True(t, loaded.IsEmpty())
	loaded.AddSequenceNumber(7)
	assert.Equal(t, uint64(7), loaded.Min())
}

func TestGapStateRejectsBadDocuments(t *testing.T) {
	dir := t.TempDir()
	for name, doc := range map[string]string{
		"overlap": `frameset: TXAR:0
min: 1
max: 100
gaps:
  - {start: 2, end: 10}
  - {start: 5, end: 20}
`,
		"inverted": `frameset: TXAR:0
min: 1
max: 100
gaps:
  - {start: 10, end: 2}
`,
		"frameset": `frameset: TXAR
min: 1
max: 100
`,
		"unknown field": `frameset: TXAR:0
lowest: 1
`,
	} {
		path := filepath.Join(dir, name+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
		_, err := LoadGapState(path)
		assert.Error(t, err, name)
	}

	_, err := LoadGapState(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
