package stream

import (
	"context"
	"testing"
	"time"
)

func TestMockStreamEmitsFrames(t *testing.T) {
	m := NewMockStream(64, 48, 50)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	select {
	case f := <-m.Frames():
		if f.Width != 64 || f.Height != 48 {
			t.Errorf("frame dimensions = %dx%d, want 64x48", f.Width, f.Height)
		}
		if len(f.Data) != 64*48*3 {
			t.Errorf("frame data size = %d, want %d", len(f.Data), 64*48*3)
		}
		if f.Seq != 0 || f.TraceID != "" {
			t.Error("provider must leave Seq and TraceID for the intake loop")
		}
	case <-time.After(time.Second):
		t.Fatal("no frame within 1s")
	}
}

func TestMockStreamStopClosesChannel(t *testing.T) {
	m := NewMockStream(32, 32, 100)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Second stop is a no-op
	if err := m.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-m.Frames():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("frames channel not closed after Stop")
		}
	}
}
