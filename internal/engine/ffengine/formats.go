package ffengine

import (
	"fmt"

	"segment-timeline/internal/engine"
)

type pixelFormat struct {
	name   string // caps name
	ffmpeg string // ffmpeg pix_fmt
	size   func(w, h int) int
}

func half(n int) int { return (n + 1) / 2 }

func planar420(w, h int) int { return w*h + 2*half(w)*half(h) }

var pixelFormats = []pixelFormat{
	{"I420", "yuv420p", planar420},
	{"NV12", "nv12", planar420},
	{"NV21", "nv21", planar420},
	{"Y42B", "yuv422p", func(w, h int) int { return w*h + 2*half(w)*h }},
	{"Y444", "yuv444p", func(w, h int) int { return 3 * w * h }},
	{"YUY2", "yuyv422", func(w, h int) int { return 4 * half(w) * h }},
	{"UYVY", "uyvy422", func(w, h int) int { return 4 * half(w) * h }},
	{"RGB", "rgb24", func(w, h int) int { return 3 * w * h }},
	{"BGR", "bgr24", func(w, h int) int { return 3 * w * h }},
	{"RGBA", "rgba", func(w, h int) int { return 4 * w * h }},
	{"BGRA", "bgra", func(w, h int) int { return 4 * w * h }},
	{"ARGB", "argb", func(w, h int) int { return 4 * w * h }},
	{"ABGR", "abgr", func(w, h int) int { return 4 * w * h }},
	{"RGBx", "rgb0", func(w, h int) int { return 4 * w * h }},
	{"BGRx", "bgr0", func(w, h int) int { return 4 * w * h }},
	{"GRAY8", "gray", func(w, h int) int { return w * h }},
	{"I420_10LE", "yuv420p10le", func(w, h int) int { return 2 * planar420(w, h) }},
}

// capsFormat maps an ffmpeg pix_fmt to its caps name.
func capsFormat(pixFmt string) (string, bool) {
	for _, f := range pixelFormats {
		if f.ffmpeg == pixFmt {
			return f.name, true
		}
	}
	return "", false
}

// ffmpegFormat maps a caps format name to an ffmpeg pix_fmt.
func ffmpegFormat(name string) (string, bool) {
	for _, f := range pixelFormats {
		if f.name == name {
			return f.ffmpeg, true
		}
	}
	return "", false
}

// frameSize returns the byte size of one tightly packed raw frame.
func frameSize(caps *engine.Caps) (int, error) {
	name, ok := caps.String("format")
	if !ok {
		return 0, fmt.Errorf("caps without format")
	}
	w, okW := caps.Int("width")
	h, okH := caps.Int("height")
	if !okW || !okH || w <= 0 || h <= 0 {
		return 0, fmt.Errorf("caps without geometry")
	}
	for _, f := range pixelFormats {
		if f.name == name {
			return f.size(w, h), nil
		}
	}
	return 0, fmt.Errorf("unsupported raw format %q", name)
}
