package persist

import (
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tarmac-project/hord"
	"github.com/tarmac-project/hord/drivers/hashmap"
)

func newTestStore(t *testing.T) (*Store, *hashmap.Database) {
	t.Helper()
	db, err := hashmap.Dial(hashmap.Config{})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	s, err := New(db, log)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s, db
}

func TestStoreEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()

	if _, ok := s.LastAxisPositionSteps(); ok {
		t.Error("Expected no axis position in an empty store")
	}
	if _, ok := s.LastEncoderSteps(); ok {
		t.Error("Expected no encoder count in an empty store")
	}
}

func TestStoreSnapshot(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()

	if err := s.SaveSnapshot(4000, -2118); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	pos, ok := s.LastAxisPositionSteps()
	if !ok || pos != 4000 {
		t.Errorf("Expected axis position 4000, got %d (ok=%v)", pos, ok)
	}
	enc, ok := s.LastEncoderSteps()
	if !ok || enc != -2118 {
		t.Errorf("Expected encoder count -2118, got %d (ok=%v)", enc, ok)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := s.LastAxisPositionSteps(); ok {
		t.Error("Expected axis position gone after Clear")
	}
}

func TestStoreCorruptValue(t *testing.T) {
	s, db := newTestStore(t)
	defer s.Close()

	if err := s.SaveSnapshot(9000, 12); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	data, err := db.Get(KeySnapshot)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	corrupt := append([]byte(nil), data...)
	corrupt[2] ^= 0x10
	if err := db.Set(KeySnapshot, corrupt); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, ok := s.LastAxisPositionSteps(); ok {
		t.Error("Corrupt record must read back as absent")
	}
	if _, ok := s.LastEncoderSteps(); ok {
		t.Error("Corrupt record must not yield an encoder count")
	}
	if _, err := decodeSnapshot(corrupt); errors.Cause(err) != ErrCorrupt {
		t.Errorf("Expected ErrCorrupt, got %v", err)
	}
	if _, err := decodeSnapshot([]byte("9000")); errors.Cause(err) != ErrCorrupt {
		t.Errorf("Expected ErrCorrupt for raw text, got %v", err)
	}
}

func TestStoreRangeChecks(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()

	if err := s.SaveSnapshot(1<<31, 0); err == nil {
		t.Error("Expected error for axis position beyond int32")
	}
	if err := s.SaveSnapshot(0, -1<<40); err == nil {
		t.Error("Expected error for encoder count beyond int32")
	}
	if err := s.write(-5, 7); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, ok := s.LastAxisPositionSteps(); ok {
		t.Error("Negative axis position must read back as absent")
	}
	if enc, ok := s.LastEncoderSteps(); !ok || enc != 7 {
		t.Errorf("Expected encoder count 7, got %d (ok=%v)", enc, ok)
	}
}

// countingDB counts writes reaching the backing database
type countingDB struct {
	hord.Database
	sets int
}

func (c *countingDB) Set(key string, data []byte) error {
	c.sets++
	return c.Database.Set(key, data)
}

func TestStoreSnapshotIsOneWrite(t *testing.T) {
	inner, err := hashmap.Dial(hashmap.Config{})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	db := &countingDB{Database: inner}
	s, err := New(db, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	if err := s.SaveSnapshot(3100, 4236); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if db.sets != 1 {
		t.Errorf("Expected one database write per snapshot, got %d", db.sets)
	}
	keys, err := db.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != KeySnapshot {
		t.Errorf("Expected only %q stored, got %v", KeySnapshot, keys)
	}
}
