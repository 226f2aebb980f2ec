package shutdown

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"cablewinder/core"
)

type fixedPosition int64

func (p fixedPosition) AxisPositionSteps() int64 { return int64(p) }

type recordStore struct {
	mu   sync.Mutex
	pos  []uint32
	enc  []int64
	fail bool
}

func (s *recordStore) SaveSnapshot(pos uint32, enc int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("flash busy")
	}
	s.pos = append(s.pos, pos)
	s.enc = append(s.enc, enc)
	return nil
}

func (s *recordStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pos)
}

func newTestDetector(t *testing.T, pos int64) (*Detector, *core.SimADC, *core.SimEncoder, *recordStore) {
	t.Helper()
	adc := core.NewSimADC()
	enc := core.NewSimEncoder()
	store := &recordStore{}
	log := logrus.New()
	log.SetOutput(io.Discard)

	d, err := New(Config{Channel: 3, Threshold: 3200, PollInterval: time.Millisecond},
		adc, fixedPosition(pos), enc, store, log)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	adc.Set(3, 3900)
	return d, adc, enc, store
}

func TestDetectorWritesOncePerDrop(t *testing.T) {
	d, adc, enc, store := newTestDetector(t, 4321)
	enc.Add(9000)

	if d.Poll() {
		t.Error("No snapshot expected at normal voltage")
	}

	adc.Set(3, 3100)
	if !d.Poll() {
		t.Error("Expected snapshot on falling edge")
	}
	if d.Poll() || d.Poll() {
		t.Error("Snapshot must be written only once while below")
	}
	if store.count() != 1 || store.pos[0] != 4321 || store.enc[0] != 9000 {
		t.Errorf("Unexpected snapshot pos=%v enc=%v", store.pos, store.enc)
	}

	// Voltage recovers and drops again
	adc.Set(3, 3300)
	d.Poll()
	if d.Below() {
		t.Error("Expected detector to rearm above threshold")
	}
	adc.Set(3, 3000)
	d.Poll()
	if d.Saves() != 2 {
		t.Errorf("Expected 2 snapshots after two drops, got %d", d.Saves())
	}
}

func TestDetectorThresholdIsExclusive(t *testing.T) {
	d, adc, _, store := newTestDetector(t, 10)

	adc.Set(3, 3200)
	d.Poll()
	if store.count() != 0 {
		t.Error("Reading equal to threshold should not trip")
	}
}

func TestDetectorClampsNegativePosition(t *testing.T) {
	d, adc, _, store := newTestDetector(t, -7)

	adc.Set(3, 100)
	d.Poll()
	if store.count() != 1 || store.pos[0] != 0 {
		t.Errorf("Expected clamped position 0, got %v", store.pos)
	}
}

func TestDetectorStoreFailure(t *testing.T) {
	d, adc, _, store := newTestDetector(t, 10)
	store.fail = true

	adc.Set(3, 100)
	if d.Poll() {
		t.Error("Failed write must not report a snapshot")
	}
	if d.Saves() != 0 {
		t.Errorf("Expected no saves, got %d", d.Saves())
	}
}

func TestDetectorRun(t *testing.T) {
	d, adc, _, store := newTestDetector(t, 55)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	adc.Set(3, 1000)
	deadline := time.Now().Add(2 * time.Second)
	for store.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	if err := <-done; err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if store.count() != 1 {
		t.Errorf("Expected one snapshot from the poll loop, got %d", store.count())
	}
}
