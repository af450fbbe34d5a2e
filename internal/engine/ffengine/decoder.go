package ffengine

import (
	"bufio"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"segment-timeline/internal/engine"
)

const stderrLines = 40

// lineRing keeps the last lines written by a decoder process.
type lineRing struct {
	mu    sync.Mutex
	lines []string
	limit int
}

func newLineRing(limit int) *lineRing {
	return &lineRing{limit: limit}
}

func (r *lineRing) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	if len(r.lines) > r.limit {
		r.lines = r.lines[len(r.lines)-r.limit:]
	}
}

func (r *lineRing) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.lines, "\n")
}

type decoderConfig struct {
	ffmpeg    string
	args      []string
	frameSize int
	frameDur  time.Duration
	offset    time.Duration
	caps      *engine.Caps
	queue     *sampleQueue
	bus       *engine.QueueBus
	source    string
}

// decoder is one running ffmpeg process writing raw frames to stdout.
type decoder struct {
	cfg    decoderConfig
	cmd    *exec.Cmd
	stderr *lineRing

	prerolled chan struct{}
	done      chan struct{}
	waitErr   error

	frames    atomic.Int64
	stopping  atomic.Bool
	suspended bool
}

// decodeArgs builds the ffmpeg command line producing frames that match caps.
func decodeArgs(location string, videoIndex int, caps *engine.Caps) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-i", location,
		"-map", "0:v:" + strconv.Itoa(videoIndex),
		"-an", "-sn", "-dn",
	}
	var filters []string
	w, okW := caps.Int("width")
	h, okH := caps.Int("height")
	if okW && okH {
		filters = append(filters, "scale="+strconv.Itoa(w)+":"+strconv.Itoa(h))
	}
	if fr, ok := caps.Fraction("framerate"); ok {
		filters = append(filters, "fps="+fr.String())
	}
	if len(filters) > 0 {
		args = append(args, "-vf", strings.Join(filters, ","))
	}
	format, _ := caps.String("format")
	pixFmt, _ := ffmpegFormat(format)
	return append(args, "-pix_fmt", pixFmt, "-f", "rawvideo", "pipe:1")
}

func startDecoder(cfg decoderConfig) (*decoder, error) {
	// #nosec G204 -- binary comes from configuration, arguments are built here
	cmd := exec.Command(cfg.ffmpeg, cfg.args...)
	setGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	d := &decoder{
		cfg:       cfg,
		cmd:       cmd,
		stderr:    newLineRing(stderrLines),
		prerolled: make(chan struct{}),
		done:      make(chan struct{}),
	}
	go d.run(stdout, stderr)
	return d, nil
}

func (d *decoder) run(stdout, stderr io.Reader) {
	defer close(d.done)

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			d.stderr.Add(scanner.Text())
		}
	}()

	for {
		frame := make([]byte, d.cfg.frameSize)
		if _, err := io.ReadFull(stdout, frame); err != nil {
			break
		}
		n := d.frames.Add(1)
		sample := &engine.Sample{
			Caps: d.cfg.caps,
			PTS:  d.cfg.offset + time.Duration(n-1)*d.cfg.frameDur,
			Data: frame,
		}
		if n == 1 {
			close(d.prerolled)
		}
		if !d.cfg.queue.push(sample) {
			break
		}
	}
	// Drain so the process never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, stdout)
	<-stderrDone
	d.waitErr = d.cmd.Wait()

	// Without a first frame the failure is reported by the Playing transition.
	switch {
	case d.stopping.Load(), d.frames.Load() == 0:
	case d.waitErr != nil:
		d.cfg.bus.Post(&engine.Message{
			Kind:   engine.MessageError,
			Source: d.cfg.source,
			Text:   "decoder exited: " + d.waitErr.Error(),
			Debug:  d.stderr.String(),
		})
	default:
		d.cfg.bus.Post(&engine.Message{Kind: engine.MessageEOS, Source: d.cfg.source})
	}
}

func (d *decoder) finished() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// stop terminates the process group, escalating to SIGKILL after grace.
func (d *decoder) stop(grace time.Duration) {
	d.stopping.Store(true)
	d.cfg.queue.close()
	if d.finished() {
		return
	}
	if d.suspended {
		_ = resumeGroup(d.cmd)
		d.suspended = false
	}
	_ = terminateGroup(d.cmd)

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-d.done:
	case <-timer.C:
		_ = killGroup(d.cmd)
		<-d.done
	}
}
