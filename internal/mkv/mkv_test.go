package mkv

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/at-wat/ebml-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestFile(t *testing.T, docType string, withTracks bool) []byte {
	t.Helper()
	c := container{
		Header: ebmlHeader{
			EBMLVersion:            1,
			EBMLReadVersion:        1,
			EBMLMaxIDLength:        4,
			EBMLMaxSizeLength:      8,
			EBMLDocType:            docType,
			EBMLDocTypeVersion:     4,
			EBMLDocTypeReadVersion: 2,
		},
		Segment: segment{
			Info: info{
				TimecodeScale: DefaultTimecodeScale,
				Duration:      5000,
				DateUTC:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
				MuxingApp:     "test",
				WritingApp:    "test",
			},
		},
	}
	if withTracks {
		c.Segment.Tracks.TrackEntry = []trackEntry{
			{TrackNumber: 1, TrackUID: 11, TrackType: uint64(TrackVideo), CodecID: "V_MPEG4/ISO/AVC",
				DefaultDuration: 33366666, Video: &video{PixelWidth: 1920, PixelHeight: 1080}},
			{TrackNumber: 2, TrackUID: 12, TrackType: uint64(TrackAudio), CodecID: "A_OPUS"},
		}
	}
	var buf bytes.Buffer
	require.NoError(t, ebml.Marshal(&c, &buf))
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	h, err := Decode(bytes.NewReader(encodeTestFile(t, "matroska", true)))
	require.NoError(t, err)

	assert.Equal(t, "matroska", h.DocType)
	d, ok := h.Duration()
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, d)
	assert.True(t, h.DateUTC.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)), "got %v", h.DateUTC)

	require.Len(t, h.Tracks, 2)
	vt := h.VideoTracks()
	require.Len(t, vt, 1)
	assert.Equal(t, "V_MPEG4/ISO/AVC", vt[0].CodecID)
	assert.Equal(t, uint64(1920), vt[0].Width)
	assert.Equal(t, uint64(1080), vt[0].Height)
	assert.Equal(t, TrackAudio, h.Tracks[1].Type)
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func TestDecode_stopsBeforeClusters(t *testing.T) {
	head := encodeTestFile(t, "matroska", true)
	const payload = 4 << 20
	cluster := []byte{0x1F, 0x43, 0xB6, 0x75, 0x01, 0, 0, 0, 0, 0x40, 0, 0}
	file := append(append(append([]byte{}, head...), cluster...), make([]byte, payload)...)

	r := &countingReader{r: bytes.NewReader(file)}
	h, err := Decode(r)
	require.NoError(t, err)
	require.Len(t, h.Tracks, 2)
	assert.Less(t, r.n, len(head)+len(cluster), "read %d of %d bytes", r.n, len(file))
}

func TestDecode_wrongDocType(t *testing.T) {
	_, err := Decode(bytes.NewReader(encodeTestFile(t, "notmkv", true)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotMatroska))
}

func TestDecode_garbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("definitely not ebml")))
	assert.Error(t, err)
}

func TestReadHeader_file(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mkv")
	require.NoError(t, os.WriteFile(path, encodeTestFile(t, "webm", false), 0o644))

	h, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, "webm", h.DocType)
	assert.Empty(t, h.VideoTracks())

	_, err = ReadHeader(filepath.Join(t.TempDir(), "missing.mkv"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestHeader_DurationUnknown(t *testing.T) {
	h := &Header{}
	_, ok := h.Duration()
	assert.False(t, ok)

	h = &Header{DurationTicks: 1500, TimecodeScale: 0}
	d, ok := h.Duration()
	require.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, d)
}

func TestEncode_roundTrip(t *testing.T) {
	in := &Header{
		DurationTicks: 2500,
		DateUTC:       time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC),
		MuxingApp:     "segment-timeline",
		WritingApp:    "segment-timeline",
		Tracks: []Track{
			{Type: TrackAudio, CodecID: "A_OPUS"},
			{Type: TrackVideo, CodecID: "V_MPEG4/ISO/AVC", Width: 640, Height: 360, DefaultDuration: 40 * time.Millisecond},
		},
	}
	path := filepath.Join(t.TempDir(), "rt.mkv")
	require.NoError(t, WriteFile(path, in))

	out, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, "matroska", out.DocType)
	assert.Equal(t, uint64(DefaultTimecodeScale), out.TimecodeScale)
	d, ok := out.Duration()
	require.True(t, ok)
	assert.Equal(t, 2500*time.Millisecond, d)

	require.Len(t, out.Tracks, 2)
	assert.Equal(t, uint64(1), out.Tracks[0].Number)
	assert.Equal(t, uint64(2), out.Tracks[1].Number)
	vt := out.VideoTracks()
	require.Len(t, vt, 1)
	assert.Equal(t, uint64(640), vt[0].Width)
	assert.Equal(t, 40*time.Millisecond, vt[0].DefaultDuration)
}
