package ffengine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"segment-timeline/internal/engine"
)

const maxStderr = 4096

// streamInfo is what ffprobe reports about one decoded video stream.
type streamInfo struct {
	CodecName string
	PixFmt    string
	Width     int
	Height    int
	FrameRate engine.Fraction
	Duration  time.Duration
}

type probeData struct {
	Streams []struct {
		Index        int    `json:"index"`
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		PixFmt       string `json:"pix_fmt,omitempty"`
		Width        int    `json:"width,omitempty"`
		Height       int    `json:"height,omitempty"`
		RFrameRate   string `json:"r_frame_rate,omitempty"`
		AvgFrameRate string `json:"avg_frame_rate,omitempty"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

// probeVideo runs ffprobe for the n-th video stream of path.
func probeVideo(ffprobe, path string, n int) (*streamInfo, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-select_streams", "v:" + strconv.Itoa(n),
		path,
	}

	// #nosec G204 -- binary comes from configuration, path is passed as one argument
	cmd := exec.Command(ffprobe, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w (stderr: %s)", err, truncate(stderr.String(), maxStderr))
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (*streamInfo, error) {
	var data probeData
	if err := json.Unmarshal(out, &data); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}

	for _, s := range data.Streams {
		if s.CodecType != "video" {
			continue
		}
		info := &streamInfo{
			CodecName: s.CodecName,
			PixFmt:    s.PixFmt,
			Width:     s.Width,
			Height:    s.Height,
		}
		if fr, ok := parseRate(s.RFrameRate); ok {
			info.FrameRate = fr
		} else if fr, ok := parseRate(s.AvgFrameRate); ok {
			info.FrameRate = fr
		}
		if d, err := strconv.ParseFloat(data.Format.Duration, 64); err == nil && d > 0 {
			info.Duration = time.Duration(d * float64(time.Second))
		}
		return info, nil
	}
	return nil, fmt.Errorf("ffprobe returned no video stream")
}

func parseRate(s string) (engine.Fraction, bool) {
	n, d, ok := strings.Cut(s, "/")
	if !ok {
		return engine.Fraction{}, false
	}
	num, err1 := strconv.Atoi(n)
	den, err2 := strconv.Atoi(d)
	if err1 != nil || err2 != nil || num <= 0 || den <= 0 {
		return engine.Fraction{}, false
	}
	return engine.Fraction{Num: num, Den: den}, true
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
