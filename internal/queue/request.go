package queue

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest is returned for requests outside the store bounds.
var ErrInvalidRequest = errors.New("invalid block request")

// Request describes the contiguous byte range [Start, Start+Length).
// A request of length 1 is a single-byte repair fetch; longer requests are
// bootstrap chunk fetches.
type Request struct {
	Start  int
	Length int
}

// IsRepair reports whether r is a single-byte repair fetch.
func (r Request) IsRepair() bool {
	return r.Length == 1
}

// End returns the exclusive end of the range.
func (r Request) End() int {
	return r.Start + r.Length
}

// Validate checks r against a store of the given size.
func (r Request) Validate(size int) error {
	if r.Start < 0 || r.Start >= size || r.Length < 1 || r.End() > size {
		return fmt.Errorf("%w: start=%d length=%d size=%d", ErrInvalidRequest, r.Start, r.Length, size)
	}
	return nil
}

func (r Request) String() string {
	return fmt.Sprintf("{start=%d length=%d}", r.Start, r.Length)
}

// Partition splits [0, size) into consecutive requests of chunkSize bytes in
// ascending order. The last request may be shorter.
func Partition(size, chunkSize int) []Request {
	if size <= 0 || chunkSize <= 0 {
		return nil
	}
	reqs := make([]Request, 0, (size+chunkSize-1)/chunkSize)
	for start := 0; start < size; start += chunkSize {
		reqs = append(reqs, Request{Start: start, Length: min(chunkSize, size-start)})
	}
	return reqs
}
