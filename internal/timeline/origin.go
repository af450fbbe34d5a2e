package timeline

import (
	"cmp"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"segment-timeline/internal/mkv"

	"github.com/ncruces/go-strftime"
)

// OriginFunc derives the begin timestamp of a segment from its path. The
// result is an offset on the shared timeline, usually since the Unix epoch.
type OriginFunc func(path string) (time.Duration, error)

// ZeroOrigin places every segment at the start of the timeline.
func ZeroOrigin(string) (time.Duration, error) { return 0, nil }

// FilenameOrigin reads the recording time from the file name. pattern is a
// strftime pattern such as "%Y%m%d-%H%M%S" matched against the name without
// its extension, or against its tail when the name carries a prefix.
func FilenameOrigin(pattern string) (OriginFunc, error) {
	if _, err := strftime.Layout(pattern); err != nil {
		return nil, fmt.Errorf("filename pattern %q: %w", pattern, err)
	}
	width := len(strftime.Format(pattern, time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)))

	return func(path string) (time.Duration, error) {
		base := filepath.Base(path)
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		t, err := strftime.Parse(pattern, stem)
		if err != nil && len(stem) > width {
			t, err = strftime.Parse(pattern, stem[len(stem)-width:])
		}
		if err != nil {
			return 0, fmt.Errorf("%s does not match %q: %w", base, pattern, err)
		}
		return sinceEpoch(t), nil
	}, nil
}

// MatroskaOrigin reads the recording time from the container's DateUTC.
func MatroskaOrigin(path string) (time.Duration, error) {
	h, err := mkv.ReadHeader(path)
	if err != nil {
		return 0, err
	}
	if h.DateUTC.IsZero() {
		return 0, errors.New("no recording date in " + filepath.Base(path))
	}
	return sinceEpoch(h.DateUTC), nil
}

func sinceEpoch(t time.Time) time.Duration {
	return t.Sub(time.Unix(0, 0))
}

// OriginByName returns the origin called name in configuration.
func OriginByName(name, pattern string) (OriginFunc, error) {
	switch name {
	case "", "zero":
		return ZeroOrigin, nil
	case "filename":
		return FilenameOrigin(pattern)
	case "matroska":
		return MatroskaOrigin, nil
	}
	return nil, fmt.Errorf("unknown origin %q", name)
}

// rebaser places the earliest admitted segment of a build at zero. Segments
// are offered in begin order; until one is admitted each candidate is its own
// zero point, so rejected early recordings do not shift the timeline.
type rebaser struct {
	stamps   map[string]stamp
	base     time.Duration
	anchored bool
}

type stamp struct {
	ts  time.Duration
	err error
}

// newRebaser reads the origin of every path once and returns the paths in
// begin order. Paths whose origin fails come last, in input order, and are
// left for the factory to reject.
func newRebaser(origin OriginFunc, paths []string) (*rebaser, []string) {
	r := &rebaser{stamps: make(map[string]stamp, len(paths))}
	ordered := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, seen := r.stamps[p]; !seen {
			ts, err := origin(p)
			r.stamps[p] = stamp{ts: ts, err: err}
		}
		ordered = append(ordered, p)
	}
	slices.SortStableFunc(ordered, func(a, b string) int {
		sa, sb := r.stamps[a], r.stamps[b]
		switch {
		case sa.err != nil && sb.err != nil:
			return 0
		case sa.err != nil:
			return 1
		case sb.err != nil:
			return -1
		}
		return cmp.Compare(sa.ts, sb.ts)
	})
	return r, ordered
}

// origin returns the begin of path relative to the zero point.
func (r *rebaser) origin(path string) (time.Duration, error) {
	st, ok := r.stamps[path]
	if !ok {
		return 0, fmt.Errorf("no origin recorded for %s", filepath.Base(path))
	}
	if st.err != nil {
		return 0, st.err
	}
	if !r.anchored {
		r.base = st.ts
	}
	return st.ts - r.base, nil
}

// admit fixes the zero point once a segment made it onto the timeline.
func (r *rebaser) admit() { r.anchored = true }
