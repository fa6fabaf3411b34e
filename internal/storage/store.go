package storage

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"sync/atomic"
)

const (
	// DefaultFileSize is the number of bytes every replica holds.
	DefaultFileSize = 1000000
)

var (
	// ErrInvalidIndex is returned for indices outside [0, size).
	ErrInvalidIndex = errors.New("invalid index")
	// ErrInvalidSize is returned when loaded data does not match the store size.
	ErrInvalidSize = errors.New("invalid data size")
	// ErrUnfilled is returned when corrupting an element that was never written.
	ErrUnfilled = errors.New("element not filled yet")
)

// unfilledBit marks an element that has never been written. unpack ignores it,
// so such an element reads as value 0 with a parity bit that does not match
// and fails the parity check. Any write clears it.
const unfilledBit = 1 << 9

var unfilled = pack(ParityByte{Value: 0, Parity: true}) | unfilledBit

// Store is the in-memory replica of the file.
// Elements are held in atomic words, so readers (scanners, block server) may
// run concurrently with the writer without locking. Higher level rules keep
// writes serialised: bootstrap finishes before scanning starts and at most one
// repair commits at a time.
type Store struct {
	data []atomic.Uint32
}

// NewStore creates an unfilled store of size elements.
func NewStore(size int) *Store {
	s := &Store{data: make([]atomic.Uint32, size)}
	for i := range s.data {
		s.data[i].Store(unfilled)
	}
	return s
}

// Size returns the number of elements.
func (s *Store) Size() int {
	return len(s.data)
}

// Get returns the element at i.
func (s *Store) Get(i int) (ParityByte, error) {
	if err := s.check(i); err != nil {
		return ParityByte{}, err
	}
	return unpack(s.data[i].Load()), nil
}

// Set writes value at i with a consistent parity bit.
func (s *Store) Set(i int, value byte) error {
	return s.Put(i, NewParityByte(value))
}

// Put writes b at i exactly as given.
func (s *Store) Put(i int, b ParityByte) error {
	if err := s.check(i); err != nil {
		return err
	}
	s.data[i].Store(pack(b))
	return nil
}

// WriteRange writes consecutive elements starting at start.
func (s *Store) WriteRange(start int, values []ParityByte) error {
	if start < 0 || start+len(values) > len(s.data) {
		return fmt.Errorf("%w: range [%d, %d) outside [0, %d)", ErrInvalidIndex, start, start+len(values), len(s.data))
	}
	for k, b := range values {
		s.data[start+k].Store(pack(b))
	}
	return nil
}

// IsParityOk reports whether the element at i passes its parity check.
func (s *Store) IsParityOk(i int) (bool, error) {
	b, err := s.Get(i)
	if err != nil {
		return false, err
	}
	return b.IsParityOk(), nil
}

// InjectCorruption flips the value at i without updating its parity bit.
// It returns the element as it is after corruption. Unfilled elements are
// refused: flipping them would make them pass the parity check.
func (s *Store) InjectCorruption(i int) (ParityByte, error) {
	if err := s.check(i); err != nil {
		return ParityByte{}, err
	}
	for {
		old := s.data[i].Load()
		if old&unfilledBit != 0 {
			return ParityByte{}, fmt.Errorf("%w: %d", ErrUnfilled, i)
		}
		corrupted := unpack(old).Corrupt()
		if s.data[i].CompareAndSwap(old, pack(corrupted)) {
			return corrupted, nil
		}
	}
}

// ScanRange yields, in ascending order, every index in [lo, hi) whose element
// fails its parity check. Bounds are clamped to the store.
func (s *Store) ScanRange(lo, hi int) iter.Seq[int] {
	lo = max(lo, 0)
	hi = min(hi, len(s.data))
	return func(yield func(int) bool) {
		for i := lo; i < hi; i++ {
			if !unpack(s.data[i].Load()).IsParityOk() {
				if !yield(i) {
					return
				}
			}
		}
	}
}

// Snapshot copies length elements starting at start.
func (s *Store) Snapshot(start, length int) ([]ParityByte, error) {
	if start < 0 || length < 1 || start+length > len(s.data) {
		return nil, fmt.Errorf("%w: range start=%d length=%d size=%d", ErrInvalidIndex, start, length, len(s.data))
	}
	out := make([]ParityByte, length)
	for k := range out {
		out[k] = unpack(s.data[start+k].Load())
	}
	return out, nil
}

// Bytes returns a copy of all stored values, ignoring parity.
func (s *Store) Bytes() []byte {
	out := make([]byte, len(s.data))
	for i := range s.data {
		out[i] = unpack(s.data[i].Load()).Value
	}
	return out
}

// Load fills the store from r, which must provide exactly Size() bytes.
func (s *Store) Load(r io.Reader) error {
	buf := make([]byte, len(s.data)+1)
	n, err := io.ReadFull(r, buf)
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		if n != len(s.data) {
			return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSize, n, len(s.data))
		}
	case err != nil:
		return fmt.Errorf("failed to read data: %w", err)
	default:
		return fmt.Errorf("%w: more than %d bytes", ErrInvalidSize, len(s.data))
	}
	for i := 0; i < n; i++ {
		s.data[i].Store(pack(NewParityByte(buf[i])))
	}
	return nil
}

// LoadFile fills the store from the file at path.
func (s *Store) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := s.Load(f); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func (s *Store) check(i int) error {
	if i < 0 || i >= len(s.data) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidIndex, i, len(s.data))
	}
	return nil
}
