package state

import (
	"sync"
	"testing"
	"time"

	"github.com/VictorWong123/FlexFlow/internal/types"
)

func snap(seq uint64) types.BodyMetricsSnapshot {
	return types.BodyMetricsSnapshot{
		NeckAngle:      types.Angle{Degrees: 5, Valid: true},
		SourceFrameSeq: seq,
		GeneratedAt:    time.Now(),
	}
}

func TestEmptyStoreHasNoData(t *testing.T) {
	s := New()

	_, version, ok := s.Current()
	if ok {
		t.Error("empty store: want ok=false")
	}
	if version != 0 {
		t.Errorf("empty store: want version 0, got %d", version)
	}
}

func TestPublishAndCurrent(t *testing.T) {
	s := New()

	v1 := s.Publish(snap(10))
	if v1 != 1 {
		t.Errorf("first publish: want version 1, got %d", v1)
	}

	got, version, ok := s.Current()
	if !ok {
		t.Fatal("want ok=true after publish")
	}
	if version != 1 || got.SourceFrameSeq != 10 {
		t.Errorf("got version=%d seq=%d", version, got.SourceFrameSeq)
	}

	v2 := s.Publish(snap(11))
	if v2 != 2 {
		t.Errorf("second publish: want version 2, got %d", v2)
	}
}

func TestCloseKeepsLastSnapshot(t *testing.T) {
	s := New()
	s.Publish(snap(42))

	s.Close()
	s.Close() // idempotent

	if !s.Closed() {
		t.Error("want closed")
	}

	got, _, ok := s.Current()
	if !ok || got.SourceFrameSeq != 42 {
		t.Errorf("last snapshot must survive close: ok=%v seq=%d", ok, got.SourceFrameSeq)
	}
}

// Readers racing with the writer must always see a complete snapshot
// with a version consistent with its contents.
func TestConcurrentReaders(t *testing.T) {
	s := New()

	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for seq := uint64(1); seq <= 1000; seq++ {
			s.Publish(snap(seq))
		}
		close(stop)
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var lastVersion uint64
			var lastSeq uint64
			for {
				select {
				case <-stop:
					return
				default:
				}
				got, version, ok := s.Current()
				if !ok {
					continue
				}
				if version < lastVersion {
					t.Errorf("version regressed: %d -> %d", lastVersion, version)
					return
				}
				if version >= lastVersion && got.SourceFrameSeq < lastSeq {
					t.Errorf("seq regressed: %d -> %d", lastSeq, got.SourceFrameSeq)
					return
				}
				lastVersion, lastSeq = version, got.SourceFrameSeq
			}
		}()
	}

	wg.Wait()
}
