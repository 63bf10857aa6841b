package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/VictorWong123/FlexFlow/internal/types"
)

func frame(seq uint64) *types.Frame {
	return &types.Frame{Seq: seq, Timestamp: time.Now(), Width: 640, Height: 480}
}

// Offer must return immediately even when nobody consumes.
func TestOfferNonBlocking(t *testing.T) {
	d := New()
	defer d.Close()

	start := time.Now()
	for i := 0; i < 100; i++ {
		d.Offer(frame(uint64(i)))
	}
	elapsed := time.Since(start)

	if elapsed > 100*time.Millisecond {
		t.Errorf("Offer blocked: elapsed=%v (expected <100ms)", elapsed)
	}
}

// With no consumer, N offers leave exactly one frame pending and N-1 drops:
// the mailbox depth never exceeds its capacity.
func TestOverwriteKeepsLatest(t *testing.T) {
	d := New()
	defer d.Close()

	for seq := uint64(1); seq <= 10; seq++ {
		d.Offer(frame(seq))
	}

	read := d.Subscribe("worker-0")
	defer d.Unsubscribe("worker-0")

	got := read()
	if got == nil {
		t.Fatal("read returned nil before Close")
	}
	if got.Seq != 10 {
		t.Errorf("expected latest frame seq=10, got %d", got.Seq)
	}

	st := d.Stats()
	if st.Drops != 9 {
		t.Errorf("expected 9 drops, got %d", st.Drops)
	}
	if st.Delivered != 1 {
		t.Errorf("expected 1 delivered, got %d", st.Delivered)
	}
}

// Under a producer faster than the pool, consumed frames are biased
// toward the most recently produced ones and each frame is consumed at
// most once.
func TestFreshnessBiasUnderLoad(t *testing.T) {
	d := New()
	defer d.Close()

	const workers = 3
	const frames = 200

	var mu sync.Mutex
	seen := make(map[uint64]int)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		id := string(rune('a' + i))
		read := d.Subscribe(id)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				f := read()
				if f == nil {
					return
				}
				mu.Lock()
				seen[f.Seq]++
				mu.Unlock()
				// Simulate a slow blocking detector call
				time.Sleep(5 * time.Millisecond)
			}
		}()
	}

	for seq := uint64(1); seq <= frames; seq++ {
		d.Offer(frame(seq))
		time.Sleep(500 * time.Microsecond)
	}

	// Let in-flight work finish, then shut down
	time.Sleep(20 * time.Millisecond)
	d.Close()
	wg.Wait()

	st := d.Stats()
	if st.Delivered+st.Drops > st.Offered {
		t.Errorf("accounting broken: delivered=%d drops=%d offered=%d",
			st.Delivered, st.Drops, st.Offered)
	}

	for seq, n := range seen {
		if n > 1 {
			t.Errorf("frame %d consumed %d times, want at most once", seq, n)
		}
	}

	// The last offered frame region should be represented: with a
	// latest-wins mailbox, old frames are shed and recent ones survive.
	var newest uint64
	for seq := range seen {
		if seq > newest {
			newest = seq
		}
	}
	if newest < frames/2 {
		t.Errorf("newest consumed frame %d suspiciously old (produced up to %d)", newest, frames)
	}
}

func TestCloseWakesBlockedWorkers(t *testing.T) {
	d := New()
	read := d.Subscribe("worker-0")

	done := make(chan struct{})
	go func() {
		if f := read(); f != nil {
			t.Errorf("expected nil after Close, got frame seq=%d", f.Seq)
		}
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	d.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker still blocked after Close")
	}

	// Idempotent
	d.Close()

	// Offer after Close is a no-op
	d.Offer(frame(99))
	if st := d.Stats(); st.Offered != 0 {
		t.Errorf("Offer after Close recorded: offered=%d", st.Offered)
	}
}

func TestUnsubscribeWakesOnlyThatWorker(t *testing.T) {
	d := New()
	defer d.Close()

	readA := d.Subscribe("a")
	readB := d.Subscribe("b")

	doneA := make(chan struct{})
	go func() {
		if f := readA(); f != nil {
			t.Errorf("unsubscribed worker got frame seq=%d", f.Seq)
		}
		close(doneA)
	}()

	gotB := make(chan *types.Frame, 1)
	go func() { gotB <- readB() }()

	time.Sleep(10 * time.Millisecond)
	d.Unsubscribe("a")

	select {
	case <-doneA:
	case <-time.After(time.Second):
		t.Fatal("unsubscribed worker still blocked")
	}

	d.Offer(frame(7))
	select {
	case f := <-gotB:
		if f == nil || f.Seq != 7 {
			t.Errorf("worker b expected frame 7, got %v", f)
		}
	case <-time.After(time.Second):
		t.Fatal("worker b never received frame")
	}

	if _, ok := d.Stats().Workers["a"]; ok {
		t.Error("unsubscribed worker still present in stats")
	}
}
