// Package dedup tracks content hashes seen within a single run.
package dedup

// Set rejects repeated content hashes. Scope is one run only; a
// persistent dedup store would sit behind the sink instead. Not safe
// for concurrent use: the coordinator is its only writer.
type Set struct {
	seen       map[string]struct{}
	duplicates int
}

// New returns an empty Set.
func New() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// Accept records hash and reports whether it is new in this run. A
// repeat returns false and increments the duplicate counter.
func (s *Set) Accept(hash string) bool {
	if _, ok := s.seen[hash]; ok {
		s.duplicates++
		return false
	}
	s.seen[hash] = struct{}{}
	return true
}

// Duplicates returns the number of rejected repeats so far.
func (s *Set) Duplicates() int { return s.duplicates }

// Size returns the number of distinct hashes seen.
func (s *Set) Size() int { return len(s.seen) }
