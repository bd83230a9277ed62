// Search sessions over a text page.
//
// A session is a cursor the engine moves with Next and Prev. Sessions over
// the same text page are independent. ResultIndex and ResultCount describe
// the last successful move; after a failed move they return whatever the
// engine left behind.
package pdfbridge

import (
	"iter"

	"github.com/jpl-au/pdfbridge/engine"
)

// SearchSession is an open search cursor.
type SearchSession struct {
	tp     *TextPage
	handle Handle
	eh     engine.Handle
	closed bool
}

// Match is one search hit: Count characters starting at Index.
type Match struct {
	Index int
	Count int
}

// Handle returns the session's registry handle, or 0 once closed.
func (s *SearchSession) Handle() Handle {
	if s == nil {
		return 0
	}
	lib := s.lib()
	lib.mu.Lock()
	defer lib.mu.Unlock()
	if s.closed {
		return 0
	}
	return s.handle
}

func (s *SearchSession) lib() *Library { return s.tp.page.doc.lib }

// use takes the lock for an open session. Accessors answer with their no-op
// value when it fails.
func (s *SearchSession) use() (*Library, bool) {
	if s == nil {
		return nil, false
	}
	lib := s.lib()
	if lib.enter() != nil {
		return nil, false
	}
	if s.closed {
		lib.mu.Unlock()
		return nil, false
	}
	return lib, true
}

// Next moves to the next match and reports whether there was one.
func (s *SearchSession) Next() bool {
	lib, ok := s.use()
	if !ok {
		return false
	}
	defer lib.mu.Unlock()
	return lib.eng.FindNext(s.eh)
}

// Prev moves to the previous match and reports whether there was one.
func (s *SearchSession) Prev() bool {
	lib, ok := s.use()
	if !ok {
		return false
	}
	defer lib.mu.Unlock()
	return lib.eng.FindPrev(s.eh)
}

// ResultIndex returns the character index of the current match, or -1 for a
// nil or closed session.
func (s *SearchSession) ResultIndex() int {
	lib, ok := s.use()
	if !ok {
		return -1
	}
	defer lib.mu.Unlock()
	return lib.eng.ResultIndex(s.eh)
}

// ResultCount returns the length in characters of the current match, or 0
// for a nil or closed session.
func (s *SearchSession) ResultCount() int {
	lib, ok := s.use()
	if !ok {
		return 0
	}
	defer lib.mu.Unlock()
	return lib.eng.ResultCount(s.eh)
}

// Close releases the session. Closing twice is a no-op and releases the
// engine handle once.
func (s *SearchSession) Close() error {
	if s == nil {
		return nil
	}
	lib := s.lib()
	if err := lib.enter(); err != nil {
		return err
	}
	defer lib.mu.Unlock()
	s.close()
	return nil
}

func (s *SearchSession) close() {
	if s.closed {
		return
	}
	lib := s.lib()
	lib.eng.FindClose(s.eh)
	lib.reg.remove(s.handle)
	delete(s.tp.searches, s)
	s.closed = true
}

// Matches yields the remaining matches moving forward. Callers can break
// early; the cursor stays on the last match yielded.
func (s *SearchSession) Matches() iter.Seq[Match] {
	return func(yield func(Match) bool) {
		for s.Next() {
			m := Match{Index: s.ResultIndex(), Count: s.ResultCount()}
			if !yield(m) {
				return
			}
		}
	}
}
