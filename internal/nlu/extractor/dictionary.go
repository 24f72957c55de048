package extractor

import (
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// NameEntry is one dictionary name with its catalog identity.
type NameEntry struct {
	Name  string
	ID    string
	Level string // partner level, empty for products
}

// Snapshot is an immutable view of the name dictionary. Refreshes swap whole
// snapshots instead of mutating in place, so concurrent readers never race
// with a refresh.
type Snapshot struct {
	Version   string
	LoadedAt  time.Time
	products  []NameEntry
	partners  []NameEntry
	productIx map[string]NameEntry
	partnerIx map[string]NameEntry
}

// NewSnapshot builds a Snapshot. Names are indexed lowercase and ordered
// longest-first so containment matching prefers the most specific name.
func NewSnapshot(version string, products, partners []NameEntry) *Snapshot {
	s := &Snapshot{
		Version:   version,
		LoadedAt:  time.Now(),
		products:  append([]NameEntry(nil), products...),
		partners:  append([]NameEntry(nil), partners...),
		productIx: make(map[string]NameEntry, len(products)),
		partnerIx: make(map[string]NameEntry, len(partners)),
	}

	sort.SliceStable(s.products, func(i, j int) bool {
		return len([]rune(s.products[i].Name)) > len([]rune(s.products[j].Name))
	})
	sort.SliceStable(s.partners, func(i, j int) bool {
		return len([]rune(s.partners[i].Name)) > len([]rune(s.partners[j].Name))
	})

	for _, e := range s.products {
		s.productIx[strings.ToLower(e.Name)] = e
	}
	for _, e := range s.partners {
		s.partnerIx[strings.ToLower(e.Name)] = e
	}
	return s
}

// Products returns the product names, longest first.
func (s *Snapshot) Products() []NameEntry { return s.products }

// Partners returns the partner names, longest first.
func (s *Snapshot) Partners() []NameEntry { return s.partners }

// HasProduct reports whether name is a known product name.
func (s *Snapshot) HasProduct(name string) bool {
	_, ok := s.productIx[strings.ToLower(name)]
	return ok
}

// dictionary holds the current snapshot behind an atomic pointer.
type dictionary struct {
	current atomic.Pointer[Snapshot]
}

func newDictionary(initial *Snapshot) *dictionary {
	d := &dictionary{}
	if initial == nil {
		initial = NewSnapshot("empty", nil, nil)
	}
	d.current.Store(initial)
	return d
}

func (d *dictionary) snapshot() *Snapshot {
	return d.current.Load()
}

func (d *dictionary) swap(s *Snapshot) {
	if s != nil {
		d.current.Store(s)
	}
}
