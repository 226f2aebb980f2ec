package persist

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/tarmac-project/hord"

	"cablewinder/protocol"
)

// BlockDevice is flash storage erased in blocks. machine.Flash implements it.
type BlockDevice interface {
	ReadAt(p []byte, off int64) (n int, err error)
	WriteAt(p []byte, off int64) (n int, err error)
	Size() int64
	WriteBlockSize() int64
	EraseBlockSize() int64
	EraseBlocks(start, length int64) error
}

// flashMagic marks an initialized key-value block
var flashMagic = [2]byte{'W', 'D'}

var errFlashFull = errors.New("flash key-value block full")

// FlashDB is a hord.Database kept in the first two erase blocks of the flash
// data area. The whole set of keys is rewritten on every Set, into the block
// not holding the newest image, so a write cut short by power loss leaves
// the previous image readable.
type FlashDB struct {
	mu     sync.Mutex
	dev    BlockDevice
	data   map[string][]byte
	seq    uint32
	active int64 // block holding the newest image, -1 when none
}

// NewFlashDB creates a database on the start of dev
func NewFlashDB(dev BlockDevice) *FlashDB {
	return &FlashDB{dev: dev, data: make(map[string][]byte), active: -1}
}

// Setup loads the newest valid image. Blank or corrupt blocks are skipped.
func (f *FlashDB) Setup() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	size := f.dev.EraseBlockSize()
	block := make([]byte, size)
	f.data = make(map[string][]byte)
	f.seq = 0
	f.active = -1
	for i := int64(0); i < 2; i++ {
		if _, err := f.dev.ReadAt(block, i*size); err != nil {
			return err
		}
		data, seq, ok := decodeFlashBlock(block)
		if ok && (f.active < 0 || seq > f.seq) {
			f.data, f.seq, f.active = data, seq, i
		}
	}
	return nil
}

// HealthCheck reports whether the flash device is usable
func (f *FlashDB) HealthCheck() error {
	if f.dev.Size() < 2*f.dev.EraseBlockSize() {
		return errors.New("no flash data area")
	}
	return nil
}

// Get returns the value of key or hord.ErrNil
func (f *FlashDB) Get(key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, hord.ErrNil
	}
	return append([]byte(nil), v...), nil
}

// Set stores data under key and rewrites the block
func (f *FlashDB) Set(key string, data []byte) error {
	if key == "" || len(key) > 255 || len(data) > 255 {
		return errors.New("flash key or value too long")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	old, had := f.data[key]
	f.data[key] = append([]byte(nil), data...)
	if err := f.flush(); err != nil {
		if had {
			f.data[key] = old
		} else {
			delete(f.data, key)
		}
		return errors.Wrapf(err, "flash write %s", key)
	}
	return nil
}

// Delete removes key and rewrites the block
func (f *FlashDB) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; !ok {
		return nil
	}
	old := f.data[key]
	delete(f.data, key)
	if err := f.flush(); err != nil {
		f.data[key] = old
		return errors.Wrapf(err, "flash delete %s", key)
	}
	return nil
}

// Keys returns the stored keys
func (f *FlashDB) Keys() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close does nothing; every Set is already on flash
func (f *FlashDB) Close() {}

// flush must be called with the lock held
func (f *FlashDB) flush() error {
	size := f.dev.EraseBlockSize()
	image := encodeFlashBlock(f.data, f.seq+1)
	if int64(len(image)) > size {
		return errFlashFull
	}

	// Writes must cover whole write blocks
	wb := int(f.dev.WriteBlockSize())
	if pad := len(image) % wb; pad != 0 {
		image = append(image, make([]byte, wb-pad)...)
	}

	next := int64(0)
	if f.active == 0 {
		next = 1
	}
	if err := f.dev.EraseBlocks(next, 1); err != nil {
		return err
	}
	if _, err := f.dev.WriteAt(image, next*size); err != nil {
		return err
	}
	f.seq++
	f.active = next
	return nil
}

// encodeFlashBlock lays out magic, sequence, count, then length-prefixed key
// and value pairs, followed by a CRC16 of everything before it
func encodeFlashBlock(data map[string][]byte, seq uint32) []byte {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []byte{flashMagic[0], flashMagic[1],
		byte(seq >> 24), byte(seq >> 16), byte(seq >> 8), byte(seq),
		byte(len(keys))}
	for _, k := range keys {
		out = append(out, byte(len(k)))
		out = append(out, k...)
		out = append(out, byte(len(data[k])))
		out = append(out, data[k]...)
	}
	crc := protocol.CRC16(out)
	return append(out, byte(crc>>8), byte(crc))
}

func decodeFlashBlock(block []byte) (map[string][]byte, uint32, bool) {
	if len(block) < 9 || block[0] != flashMagic[0] || block[1] != flashMagic[1] {
		return nil, 0, false
	}
	seq := uint32(block[2])<<24 | uint32(block[3])<<16 | uint32(block[4])<<8 | uint32(block[5])

	count := int(block[6])
	pos := 7
	next := func() ([]byte, bool) {
		if pos >= len(block) {
			return nil, false
		}
		n := int(block[pos])
		if pos+1+n > len(block) {
			return nil, false
		}
		v := block[pos+1 : pos+1+n]
		pos += 1 + n
		return v, true
	}

	parsed := make(map[string][]byte, count)
	for i := 0; i < count; i++ {
		k, ok := next()
		if !ok {
			return nil, 0, false
		}
		v, ok := next()
		if !ok {
			return nil, 0, false
		}
		parsed[string(k)] = append([]byte(nil), v...)
	}
	if pos+2 > len(block) {
		return nil, 0, false
	}
	crc := uint16(block[pos])<<8 | uint16(block[pos+1])
	if protocol.CRC16(block[:pos]) != crc {
		return nil, 0, false
	}
	return parsed, seq, true
}
