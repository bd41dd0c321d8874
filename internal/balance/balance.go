package balance

import "sort"

// Pair identifies one directional (driver, passenger) relationship.
type Pair struct {
	Driver    string
	Passenger string
}

// Entry is one (driver, passenger) tally row.
type Entry struct {
	Driver    string `json:"driver"`
	Passenger string `json:"passenger"`
	Count     int    `json:"count"`
}

// Balance accumulates trip counts per (driver, passenger) pair. The
// fold is commutative and associative over addition, so processing
// order never affects the result and partial balances can be merged.
type Balance struct {
	counts map[Pair]int
}

// New returns an empty Balance.
func New() *Balance {
	return &Balance{counts: make(map[Pair]int)}
}

// Add folds one trip into the balance: every passenger occurrence
// increments its (driver, passenger) count by one.
func (b *Balance) Add(driver string, passengers []string) {
	for _, p := range passengers {
		b.counts[Pair{Driver: driver, Passenger: p}]++
	}
}

// Merge adds all counts from other into b pairwise.
func (b *Balance) Merge(other *Balance) {
	if other == nil {
		return
	}
	for pair, n := range other.counts {
		b.counts[pair] += n
	}
}

// Count returns the tally for one (driver, passenger) pair.
func (b *Balance) Count(driver, passenger string) int {
	return b.counts[Pair{Driver: driver, Passenger: passenger}]
}

// Len returns the number of distinct (driver, passenger) pairs.
func (b *Balance) Len() int {
	return len(b.counts)
}

// Entries returns all tally rows sorted by driver, then passenger.
func (b *Balance) Entries() []Entry {
	out := make([]Entry, 0, len(b.counts))
	for pair, n := range b.counts {
		out = append(out, Entry{Driver: pair.Driver, Passenger: pair.Passenger, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Driver != out[j].Driver {
			return out[i].Driver < out[j].Driver
		}
		return out[i].Passenger < out[j].Passenger
	})
	return out
}
