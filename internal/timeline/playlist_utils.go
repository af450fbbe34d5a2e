package timeline

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// BuildPlaylist converts segments (ordered by begin ascending) into an HLS VOD
// playlist. A segment that does not start where the previous one ended is
// preceded by #EXT-X-DISCONTINUITY. An empty slice produces a minimal valid
// playlist.
func BuildPlaylist(segments []SegmentInfo) string {
	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")

	if len(segments) == 0 {
		b.WriteString("#EXT-X-TARGETDURATION:1\n")
		b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
		b.WriteString("#EXT-X-ENDLIST\n")
		return b.String()
	}

	b.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", targetDurationFromSegments(segments)))
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n\n")

	for i, seg := range segments {
		if i > 0 && seg.Begin != segments[i-1].End {
			b.WriteString("#EXT-X-DISCONTINUITY\n")
		}
		b.WriteString(fmt.Sprintf("#EXTINF:%.3f,\n", seg.Duration().Seconds()))
		b.WriteString(seg.Path)
		b.WriteString("\n")
	}

	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}

// targetDurationFromSegments returns the HLS #EXT-X-TARGETDURATION value:
// the ceiling of the maximum segment duration in seconds (integer).
func targetDurationFromSegments(segments []SegmentInfo) int {
	var longest time.Duration
	for _, seg := range segments {
		longest = max(longest, seg.Duration())
	}
	if longest <= 0 {
		return 1
	}
	return int(math.Ceil(longest.Seconds()))
}
