package timeline

import (
	"strings"
	"testing"
	"time"

	"segment-timeline/internal/engine/enginetest"
)

func TestService_Publish_and_Close(t *testing.T) {
	e := enginetest.New()
	e.Add("/rec/a.mkv", hd(2*time.Second))
	e.Add("/rec/b.mkv", hd(2*time.Second))
	b := newTestBuilder(e, BuilderConfig{
		Origin: originTable(map[string]time.Duration{"/rec/a.mkv": 0, "/rec/b.mkv": 5 * time.Second}),
	})
	tl, err := b.Build("/rec/a.mkv", "main", []string{"/rec/a.mkv", "/rec/b.mkv"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	svc := NewService(NewInMemoryRepository())
	if err := svc.Publish(tl); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	snap, ok := svc.GetSnapshot("main")
	if !ok {
		t.Fatal("GetSnapshot: ok false")
	}
	if snap.State != StateRunning || len(snap.Segments) != 2 || !snap.Segments[0].Current {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	m3u8, ok := svc.GetPlaylist("main")
	if !ok {
		t.Fatal("GetPlaylist: ok false")
	}
	if !strings.Contains(m3u8, "/rec/a.mkv") || !strings.Contains(m3u8, "#EXT-X-DISCONTINUITY") {
		t.Errorf("unexpected playlist: %s", m3u8)
	}

	if err := svc.Close(tl); err != nil {
		t.Fatalf("Close: %v", err)
	}
	snap, _ = svc.GetSnapshot("main")
	if snap.State != StateClosed || len(snap.Segments) != 0 {
		t.Errorf("expected closed empty snapshot, got %+v", snap)
	}
	if err := svc.Publish(tl); err != nil {
		t.Errorf("republishing a closed timeline: %v", err)
	}
	if e.Outstanding() != 0 {
		t.Errorf("expected every reference released, %d left", e.Outstanding())
	}
	if outputs := svc.Outputs(); len(outputs) != 1 || outputs[0] != "main" {
		t.Errorf("Outputs: got %v", outputs)
	}
}

func TestService_GetPlaylist_not_found(t *testing.T) {
	svc := NewService(NewInMemoryRepository())
	if _, ok := svc.GetPlaylist("missing"); ok {
		t.Error("expected ok false for missing output")
	}
}
