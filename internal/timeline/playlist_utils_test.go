package timeline

import (
	"strings"
	"testing"
	"time"
)

func TestBuildPlaylist_empty(t *testing.T) {
	out := BuildPlaylist(nil)
	if !strings.HasPrefix(out, "#EXTM3U\n") {
		t.Error("expected #EXTM3U header")
	}
	if !strings.Contains(out, "#EXT-X-VERSION:3") {
		t.Error("expected version 3")
	}
	if !strings.Contains(out, "#EXT-X-PLAYLIST-TYPE:VOD") {
		t.Error("expected VOD playlist type")
	}
	if !strings.Contains(out, "#EXT-X-TARGETDURATION:1") {
		t.Error("expected target duration 1 for empty")
	}
	if !strings.HasSuffix(out, "#EXT-X-ENDLIST\n") {
		t.Error("expected #EXT-X-ENDLIST")
	}
}

func TestBuildPlaylist_contiguous_segments(t *testing.T) {
	segs := []SegmentInfo{
		{Path: "/rec/a.mkv", Begin: 0, End: 2 * time.Second},
		{Path: "/rec/b.mkv", Begin: 2 * time.Second, End: 4500 * time.Millisecond},
	}
	out := BuildPlaylist(segs)

	if !strings.Contains(out, "#EXT-X-TARGETDURATION:3") {
		t.Errorf("expected TARGETDURATION 3 (ceil 2.5): %s", out)
	}
	if !strings.Contains(out, "#EXTINF:2.000,\n/rec/a.mkv\n") {
		t.Errorf("expected EXTINF 2.000 for a: %s", out)
	}
	if !strings.Contains(out, "#EXTINF:2.500,\n/rec/b.mkv\n") {
		t.Errorf("expected EXTINF 2.500 for b: %s", out)
	}
	if strings.Contains(out, "#EXT-X-DISCONTINUITY") {
		t.Errorf("contiguous segments need no discontinuity: %s", out)
	}
}

func TestBuildPlaylist_gap_marks_discontinuity(t *testing.T) {
	segs := []SegmentInfo{
		{Path: "/rec/a.mkv", Begin: 0, End: 2 * time.Second},
		{Path: "/rec/b.mkv", Begin: 10 * time.Second, End: 12 * time.Second},
	}
	out := BuildPlaylist(segs)

	if !strings.Contains(out, "#EXT-X-DISCONTINUITY\n#EXTINF:2.000,\n/rec/b.mkv") {
		t.Errorf("expected discontinuity before b: %s", out)
	}
	if strings.Count(out, "#EXT-X-DISCONTINUITY") != 1 {
		t.Errorf("expected a single discontinuity: %s", out)
	}
}

func TestBuildPlaylist_target_duration_ceiling(t *testing.T) {
	segs := []SegmentInfo{{Path: "/a.mkv", Begin: 0, End: 1100 * time.Millisecond}}
	out := BuildPlaylist(segs)
	if !strings.Contains(out, "#EXT-X-TARGETDURATION:2") {
		t.Errorf("expected TARGETDURATION 2 (ceil 1.1): %s", out)
	}
}
