// Package mkv reads the header of Matroska and WebM files: document type,
// segment info and track entries. Reading stops after the track list, so
// cluster data is never read.
package mkv

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/at-wat/ebml-go"
)

// DefaultTimecodeScale is the Matroska default of one millisecond per tick.
const DefaultTimecodeScale = 1000000

// TrackType is the Matroska TrackType value.
type TrackType uint64

const (
	TrackVideo    TrackType = 0x01
	TrackAudio    TrackType = 0x02
	TrackComplex  TrackType = 0x03
	TrackLogo     TrackType = 0x10
	TrackSubtitle TrackType = 0x11
)

func (t TrackType) String() string {
	switch t {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	case TrackSubtitle:
		return "subtitle"
	default:
		return fmt.Sprintf("type%d", uint64(t))
	}
}

// ErrNotMatroska is returned for EBML files of another document type.
var ErrNotMatroska = errors.New("not a matroska file")

// Header is the decoded head of a Matroska file.
type Header struct {
	DocType       string
	TimecodeScale uint64
	DurationTicks float64
	DateUTC       time.Time
	MuxingApp     string
	WritingApp    string
	Tracks        []Track
}

// Track is one track entry.
type Track struct {
	Number          uint64
	Type            TrackType
	CodecID         string
	Name            string
	Width           uint64
	Height          uint64
	DefaultDuration time.Duration
}

// Duration converts the segment duration to wall time.
func (h *Header) Duration() (time.Duration, bool) {
	if h.DurationTicks <= 0 || math.IsNaN(h.DurationTicks) || math.IsInf(h.DurationTicks, 0) {
		return 0, false
	}
	scale := h.TimecodeScale
	if scale == 0 {
		scale = DefaultTimecodeScale
	}
	return time.Duration(h.DurationTicks * float64(scale)), true
}

// VideoTracks returns the video tracks in file order.
func (h *Header) VideoTracks() []Track {
	var out []Track
	for _, t := range h.Tracks {
		if t.Type == TrackVideo {
			out = append(out, t)
		}
	}
	return out
}

type container struct {
	Header  ebmlHeader `ebml:"EBML"`
	Segment segment    `ebml:"Segment,size=unknown"`
}

type ebmlHeader struct {
	EBMLVersion            uint64 `ebml:"EBMLVersion"`
	EBMLReadVersion        uint64 `ebml:"EBMLReadVersion"`
	EBMLMaxIDLength        uint64 `ebml:"EBMLMaxIDLength"`
	EBMLMaxSizeLength      uint64 `ebml:"EBMLMaxSizeLength"`
	EBMLDocType            string `ebml:"EBMLDocType"`
	EBMLDocTypeVersion     uint64 `ebml:"EBMLDocTypeVersion"`
	EBMLDocTypeReadVersion uint64 `ebml:"EBMLDocTypeReadVersion"`
}

type segment struct {
	Info   info   `ebml:"Info"`
	Tracks tracks `ebml:"Tracks,stop"`
}

type info struct {
	TimecodeScale uint64    `ebml:"TimecodeScale"`
	Duration      float64   `ebml:"Duration,omitempty"`
	DateUTC       time.Time `ebml:"DateUTC,omitempty"`
	MuxingApp     string    `ebml:"MuxingApp,omitempty"`
	WritingApp    string    `ebml:"WritingApp,omitempty"`
}

type tracks struct {
	TrackEntry []trackEntry `ebml:"TrackEntry"`
}

type trackEntry struct {
	TrackNumber     uint64 `ebml:"TrackNumber"`
	TrackUID        uint64 `ebml:"TrackUID"`
	TrackType       uint64 `ebml:"TrackType"`
	Name            string `ebml:"Name,omitempty"`
	CodecID         string `ebml:"CodecID"`
	DefaultDuration uint64 `ebml:"DefaultDuration,omitempty"`
	Video           *video `ebml:"Video,omitempty"`
}

type video struct {
	PixelWidth  uint64 `ebml:"PixelWidth"`
	PixelHeight uint64 `ebml:"PixelHeight"`
}

// ReadHeader decodes the header of the file at path.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// Decode reads a Matroska header from r, consuming r up to the end of the
// track list. A truncated file is accepted as long as its track list was read
// completely.
func Decode(r io.Reader) (*Header, error) {
	var (
		c          container
		sawTracks  bool
		sawEBMLHdr bool
	)
	hook := func(e *ebml.Element) {
		switch e.Name {
		case "Tracks":
			sawTracks = true
		case "EBML":
			sawEBMLHdr = true
		}
	}

	err := ebml.Unmarshal(r, &c, ebml.WithIgnoreUnknown(true), ebml.WithElementReadHooks(hook))
	if errors.Is(err, ebml.ErrReadStopped) {
		err = nil
	}
	if err != nil && !(sawTracks && (errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF))) {
		return nil, fmt.Errorf("decode ebml: %w", err)
	}
	if !sawEBMLHdr {
		return nil, fmt.Errorf("decode ebml: missing EBML header")
	}

	switch c.Header.EBMLDocType {
	case "matroska", "webm":
	default:
		return nil, fmt.Errorf("%w: doc type %q", ErrNotMatroska, c.Header.EBMLDocType)
	}

	h := &Header{
		DocType:       c.Header.EBMLDocType,
		TimecodeScale: c.Segment.Info.TimecodeScale,
		DurationTicks: c.Segment.Info.Duration,
		DateUTC:       c.Segment.Info.DateUTC,
		MuxingApp:     c.Segment.Info.MuxingApp,
		WritingApp:    c.Segment.Info.WritingApp,
	}
	if h.TimecodeScale == 0 {
		h.TimecodeScale = DefaultTimecodeScale
	}
	for _, te := range c.Segment.Tracks.TrackEntry {
		t := Track{
			Number:          te.TrackNumber,
			Type:            TrackType(te.TrackType),
			CodecID:         te.CodecID,
			Name:            te.Name,
			DefaultDuration: time.Duration(te.DefaultDuration),
		}
		if te.Video != nil {
			t.Width = te.Video.PixelWidth
			t.Height = te.Video.PixelHeight
		}
		h.Tracks = append(h.Tracks, t)
	}
	return h, nil
}

// Encode writes h as a Matroska header with an empty segment body. Track
// numbers default to their position in h.Tracks.
func Encode(w io.Writer, h *Header) error {
	docType := h.DocType
	if docType == "" {
		docType = "matroska"
	}
	scale := h.TimecodeScale
	if scale == 0 {
		scale = DefaultTimecodeScale
	}
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
				TimecodeScale: scale,
				Duration:      h.DurationTicks,
				DateUTC:       h.DateUTC,
				MuxingApp:     h.MuxingApp,
				WritingApp:    h.WritingApp,
			},
		},
	}
	for i, t := range h.Tracks {
		te := trackEntry{
			TrackNumber:     t.Number,
			TrackUID:        uint64(i + 1),
			TrackType:       uint64(t.Type),
			Name:            t.Name,
			CodecID:         t.CodecID,
			DefaultDuration: uint64(t.DefaultDuration),
		}
		if te.TrackNumber == 0 {
			te.TrackNumber = uint64(i + 1)
		}
		if t.Width > 0 || t.Height > 0 {
			te.Video = &video{PixelWidth: t.Width, PixelHeight: t.Height}
		}
		c.Segment.Tracks.TrackEntry = append(c.Segment.Tracks.TrackEntry, te)
	}
	if err := ebml.Marshal(&c, w); err != nil {
		return fmt.Errorf("encode ebml: %w", err)
	}
	return nil
}

// WriteFile encodes h to a new file at path.
func WriteFile(path string, h *Header) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, h); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
