package persist

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tarmac-project/hord"

	"cablewinder/protocol"
)

// KeySnapshot holds the axis position and encoder count as one record, so a
// single database write covers both
const KeySnapshot = "snapshot"

const recordVersion = 1

// ErrCorrupt is returned when a stored record fails validation
var ErrCorrupt = errors.New("stored record is corrupt")

// Store keeps the values needed to recover the guide position after power
// loss. Absent and corrupt values read back as not set.
type Store struct {
	mu  sync.Mutex
	db  hord.Database
	log logrus.FieldLogger
}

// New prepares db and wraps it
func New(db hord.Database, log logrus.FieldLogger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := db.Setup(); err != nil {
		return nil, errors.Wrap(err, "setup persistence database")
	}
	return &Store{db: db, log: log.WithField("component", "persist")}, nil
}

// LastAxisPositionSteps returns the guide position saved at the last shutdown
func (s *Store) LastAxisPositionSteps() (uint32, bool) {
	snap, ok := s.read()
	if !ok {
		return 0, false
	}
	if snap[0] < 0 {
		s.log.WithField("value", snap[0]).Warn("negative stored axis position ignored")
		return 0, false
	}
	return uint32(snap[0]), true
}

// LastEncoderSteps returns the encoder count saved at the last shutdown
func (s *Store) LastEncoderSteps() (int64, bool) {
	snap, ok := s.read()
	return int64(snap[1]), ok
}

// SaveSnapshot stores the guide position and encoder count in one write
func (s *Store) SaveSnapshot(posSteps uint32, encoderSteps int64) error {
	if posSteps > 1<<31-1 {
		return errors.Errorf("axis position %d out of range", posSteps)
	}
	if encoderSteps > 1<<31-1 || encoderSteps < -1<<31 {
		return errors.Errorf("encoder count %d out of range", encoderSteps)
	}
	return s.write(int32(posSteps), int32(encoderSteps))
}

// Clear removes the snapshot
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Delete(KeySnapshot); err != nil {
		return errors.Wrapf(err, "delete %s", KeySnapshot)
	}
	return nil
}

// Close releases the backing database
func (s *Store) Close() {
	s.db.Close()
}

func (s *Store) read() ([2]int32, bool) {
	s.mu.Lock()
	data, err := s.db.Get(KeySnapshot)
	s.mu.Unlock()

	log := s.log.WithField("key", KeySnapshot)
	if err != nil {
		if err == hord.ErrNil {
			log.Info("value not initialized yet")
		} else {
			log.WithError(err).Warn("read failed")
		}
		return [2]int32{}, false
	}

	snap, err := decodeSnapshot(data)
	if err != nil {
		log.WithError(err).Warn("ignoring stored value")
		return [2]int32{}, false
	}
	return snap, true
}

func (s *Store) write(pos, enc int32) error {
	data, err := protocol.EncodeRecord(protocol.Record{
		Version: recordVersion,
		Values:  []int32{pos, enc},
	})
	if err != nil {
		return errors.Wrapf(err, "encode %s", KeySnapshot)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Set(KeySnapshot, data); err != nil {
		return errors.Wrapf(err, "write %s", KeySnapshot)
	}
	return nil
}

func decodeSnapshot(data []byte) ([2]int32, error) {
	r, err := protocol.DecodeRecord(data)
	if err != nil {
		return [2]int32{}, errors.Wrap(ErrCorrupt, err.Error())
	}
	if r.Version != recordVersion || len(r.Values) != 2 {
		return [2]int32{}, errors.Wrapf(ErrCorrupt, "version %d with %d values", r.Version, len(r.Values))
	}
	return [2]int32{r.Values[0], r.Values[1]}, nil
}
