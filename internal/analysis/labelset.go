package analysis

// LabelSet is a deduplicating set that remembers insertion order, so reason
// text built from it is identical across runs.
type LabelSet struct {
	seen   map[string]struct{}
	labels []string
}

// Add inserts label if it is not already present
func (s *LabelSet) Add(label string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[label]; ok {
		return
	}
	s.seen[label] = struct{}{}
	s.labels = append(s.labels, label)
}

// Has reports whether label was added
func (s *LabelSet) Has(label string) bool {
	_, ok := s.seen[label]
	return ok
}

// Len returns the number of distinct labels
func (s *LabelSet) Len() int {
	return len(s.labels)
}

// Slice returns the labels in first-insertion order
func (s *LabelSet) Slice() []string {
	out := make([]string, len(s.labels))
	copy(out, s.labels)
	return out
}
