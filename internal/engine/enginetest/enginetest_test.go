package enginetest

import (
	"testing"
	"time"

	"segment-timeline/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const desc = "filesrc location=/rec/a.mkv ! matroskademux name=demuxer ! h264parse name=parser ! " +
	"avdec_h264 name=decoder ! videoconvert ! video/x-raw,format=I420 ! appsink name=sink"

func linkFirst(t *testing.T, g engine.Graph) {
	t.Helper()
	demux, ok := g.Stage("demuxer")
	require.True(t, ok)
	parser, ok := g.Stage("parser")
	require.True(t, ok)
	sinkPad, ok := parser.StaticPad("sink")
	require.True(t, ok)
	demux.OnPadAdded(func(_ engine.Stage, p engine.Pad) {
		if !sinkPad.IsLinked() {
			_ = p.Link(sinkPad)
		}
	})
	demux.Release()
	parser.Release()
}

func TestEngine_scripted_graph(t *testing.T) {
	e := New()
	e.Add("/rec/a.mkv", Video("NV12", 640, 480, 25, 1, 3*time.Second))

	g, err := e.ParseGraph(desc)
	require.NoError(t, err)
	linkFirst(t, g)

	require.Equal(t, engine.StateChangeSuccess, g.SetState(engine.StatePlaying))
	assert.Equal(t, 1, e.Playing())
	d, ok := g.QueryDuration()
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	sink, _ := g.Stage("sink")
	pad, _ := sink.StaticPad("sink")
	caps, ok := pad.CurrentCaps()
	require.True(t, ok)
	format, _ := caps.String("format")
	assert.Equal(t, "I420", format, "caps filters override the media")
	sink.Release()

	g.SetState(engine.StateNull)
	g.Release()
	assert.Equal(t, 0, e.Outstanding())
	assert.Equal(t, 1, e.MaxPlaying())
	assert.Equal(t, 0, e.ReleasedWhileActive())
	assert.Equal(t, []string{desc}, e.Descriptions())
}

func TestEngine_failures(t *testing.T) {
	e := New()
	m := Video("I420", 64, 48, 25, 1, time.Second)
	m.FailPlay, m.PlayError = true, "broken"
	e.Add("/rec/a.mkv", m)

	g, err := e.ParseGraph(desc)
	require.NoError(t, err)
	assert.Equal(t, engine.StateChangeFailure, g.SetState(engine.StatePlaying))
	ret, st := g.State()
	assert.Equal(t, engine.StateChangeFailure, ret)
	assert.Equal(t, engine.StatePaused, st)
	msg, ok := g.Bus().Poll(engine.MessageError, 0)
	require.True(t, ok)
	assert.Equal(t, "decoder: broken", msg.Error())

	g.Release()
	assert.Equal(t, 1, e.ReleasedWhileActive())

	_, err = e.ParseGraph("filesrc ! nosuchelement")
	var pe *engine.ParseError
	assert.ErrorAs(t, err, &pe)
}
