package timeline

import (
	"path/filepath"
	"testing"
	"time"

	"segment-timeline/internal/mkv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroOrigin(t *testing.T) {
	ts, err := ZeroOrigin("/rec/anything.mkv")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), ts)
}

func TestFilenameOrigin(t *testing.T) {
	origin, err := FilenameOrigin("%Y%m%d-%H%M%S")
	require.NoError(t, err)
	want := time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC).Sub(time.Unix(0, 0))

	tests := []struct {
		name string
		path string
	}{
		{name: "bare_stem", path: "/rec/20240301-101500.mkv"},
		{name: "prefixed_stem", path: "/rec/cam_front_20240301-101500.webm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, err := origin(tt.path)
			require.NoError(t, err)
			assert.Equal(t, want, ts)
		})
	}

	_, err = origin("/rec/notes.mkv")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "notes.mkv")
}

func TestFilenameOrigin_invalid_pattern(t *testing.T) {
	_, err := FilenameOrigin("%Y1%m")
	assert.Error(t, err)
}

func TestMatroskaOrigin(t *testing.T) {
	dir := t.TempDir()
	recorded := time.Date(2023, 11, 5, 8, 30, 0, 0, time.UTC)

	dated := filepath.Join(dir, "dated.mkv")
	require.NoError(t, mkv.WriteFile(dated, &mkv.Header{
		DurationTicks: 1000,
		DateUTC:       recorded,
		Tracks:        []mkv.Track{{Type: mkv.TrackVideo, CodecID: "V_MPEG4/ISO/AVC", Width: 64, Height: 48}},
	}))
	ts, err := MatroskaOrigin(dated)
	require.NoError(t, err)
	assert.Equal(t, recorded.Sub(time.Unix(0, 0)), ts)

	_, err = MatroskaOrigin(filepath.Join(dir, "missing.mkv"))
	assert.Error(t, err)
}

func TestOriginByName(t *testing.T) {
	for _, name := range []string{"", "zero", "matroska"} {
		fn, err := OriginByName(name, "")
		require.NoError(t, err, name)
		assert.NotNil(t, fn, name)
	}

	fn, err := OriginByName("filename", "%Y%m%d")
	require.NoError(t, err)
	ts, err := fn("/rec/19700102.mkv")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, ts)

	_, err = OriginByName("sidecar", "")
	assert.ErrorContains(t, err, "unknown origin")
}

func TestRebaser_orders_and_anchors(t *testing.T) {
	origin := originTable(map[string]time.Duration{
		"a": 500 * time.Second,
		"b": 300 * time.Second,
		"c": 700 * time.Second,
	})
	r, ordered := newRebaser(origin, []string{"a", "broken", "b", "c"})
	assert.Equal(t, []string{"b", "a", "c", "broken"}, ordered)

	// b is offered first but not admitted: a becomes the next zero point.
	ts, err := r.origin("b")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), ts)
	ts, err = r.origin("a")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), ts)
	r.admit()

	ts, err = r.origin("c")
	require.NoError(t, err)
	assert.Equal(t, 200*time.Second, ts)
	_, err = r.origin("broken")
	assert.Error(t, err)
	_, err = r.origin("unknown")
	assert.Error(t, err)
}
