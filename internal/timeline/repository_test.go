package timeline

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func testSnapshot(output, buildID string, state PlaybackState) Snapshot {
	return Snapshot{
		BuildID: buildID,
		Output:  hdDescriptor(output),
		State:   state,
		Segments: []SegmentInfo{
			{Path: "/rec/a.mkv", Begin: 0, End: 2 * time.Second, Current: state == StateRunning},
		},
	}
}

func TestInMemoryRepository_Publish(t *testing.T) {
	repo := NewInMemoryRepository()

	t.Run("success_stores_snapshot", func(t *testing.T) {
		if err := repo.Publish(testSnapshot("main", "b1", StateRunning)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		got, ok := repo.Get("main")
		if !ok {
			t.Fatal("Get: ok false")
		}
		if got.BuildID != "b1" || len(got.Segments) != 1 {
			t.Errorf("Get: got %+v", got)
		}
		if got.PublishedAt.IsZero() {
			t.Error("PublishedAt should be stamped")
		}
	})

	t.Run("unnamed_output", func(t *testing.T) {
		snap := testSnapshot("", "b1", StateRunning)
		if err := repo.Publish(snap); !errors.Is(err, ErrUnnamedOutput) {
			t.Errorf("expected ErrUnnamedOutput, got %v", err)
		}
	})

	t.Run("new_build_replaces", func(t *testing.T) {
		if err := repo.Publish(testSnapshot("main", "b2", StateIdle)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		got, _ := repo.Get("main")
		if got.BuildID != "b2" || got.State != StateIdle {
			t.Errorf("expected b2 idle, got %s %s", got.BuildID, got.State)
		}
	})
}

func TestInMemoryRepository_Publish_after_close(t *testing.T) {
	repo := NewInMemoryRepository()
	_ = repo.Publish(testSnapshot("main", "b1", StateRunning))
	if err := repo.Publish(testSnapshot("main", "b1", StateClosed)); err != nil {
		t.Fatal(err)
	}

	err := repo.Publish(testSnapshot("main", "b1", StateRunning))
	if !errors.Is(err, ErrOutputClosed) {
		t.Errorf("expected ErrOutputClosed, got %v", err)
	}

	if err := repo.Publish(testSnapshot("main", "b2", StateRunning)); err != nil {
		t.Errorf("a new build may reuse the output: %v", err)
	}
}

func TestInMemoryRepository_Get_returns_copy(t *testing.T) {
	repo := NewInMemoryRepository()
	snap := testSnapshot("main", "b1", StateRunning)
	_ = repo.Publish(snap)

	snap.Segments[0].Path = "/changed.mkv"
	got, _ := repo.Get("main")
	if got.Segments[0].Path != "/rec/a.mkv" {
		t.Errorf("publish should copy segments, got %s", got.Segments[0].Path)
	}

	got.Segments[0].Path = "/changed.mkv"
	again, _ := repo.Get("main")
	if again.Segments[0].Path != "/rec/a.mkv" {
		t.Errorf("get should copy segments, got %s", again.Segments[0].Path)
	}

	if _, ok := repo.Get("missing"); ok {
		t.Error("expected ok false for missing output")
	}
}

func TestInMemoryRepository_Outputs_and_ActiveOutputCount(t *testing.T) {
	repo := NewInMemoryRepository()
	_ = repo.Publish(testSnapshot("zeta", "b1", StateRunning))
	_ = repo.Publish(testSnapshot("alpha", "b2", StateIdle))
	_ = repo.Publish(testSnapshot("mid", "b3", StateRunning))

	outputs := repo.Outputs()
	want := []string{"alpha", "mid", "zeta"}
	if len(outputs) != len(want) {
		t.Fatalf("expected %v, got %v", want, outputs)
	}
	for i := range want {
		if outputs[i] != want[i] {
			t.Errorf("expected %v, got %v", want, outputs)
		}
	}
	if n := repo.ActiveOutputCount(); n != 2 {
		t.Errorf("expected 2 active outputs, got %d", n)
	}
}

func TestInMemoryRepository_concurrent(t *testing.T) {
	repo := NewInMemoryRepository()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = repo.Publish(testSnapshot("main", "b1", StateRunning))
		}()
		go func() {
			defer wg.Done()
			repo.Get("main")
			repo.ActiveOutputCount()
		}()
	}
	wg.Wait()
	if _, ok := repo.Get("main"); !ok {
		t.Error("expected snapshot after concurrent publishes")
	}
}

func TestInMemoryStore(t *testing.T) {
	s := NewInMemoryStore()
	if _, ok := s.GetSnapshot("main"); ok {
		t.Error("empty store should miss")
	}
	snap := testSnapshot("main", "b1", StateIdle)
	s.SetSnapshot("main", &snap)
	got, ok := s.GetSnapshot("main")
	if !ok || got.BuildID != "b1" {
		t.Errorf("GetSnapshot: got %v ok=%v", got, ok)
	}
	if names := s.ListOutputs(); len(names) != 1 || names[0] != "main" {
		t.Errorf("ListOutputs: got %v", names)
	}
}
