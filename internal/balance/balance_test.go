package balance_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carpooltally/internal/balance"
)

type trip struct {
	driver     string
	passengers []string
}

func fold(trips []trip) *balance.Balance {
	b := balance.New()
	for _, t := range trips {
		b.Add(t.driver, t.passengers)
	}
	return b
}

func TestBalance_Empty(t *testing.T) {
	b := balance.New()

	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Entries())
}

func TestBalance_CountsPerPair(t *testing.T) {
	b := fold([]trip{
		{"Peter", []string{"Martin", "Wolfgang"}},
		{"Peter", []string{"Martin"}},
		{"Martin", []string{"Peter"}},
	})

	assert.Equal(t, 2, b.Count("Peter", "Martin"))
	assert.Equal(t, 1, b.Count("Peter", "Wolfgang"))
	assert.Equal(t, 1, b.Count("Martin", "Peter"))
	assert.Equal(t, 0, b.Count("Wolfgang", "Peter"))
	assert.Equal(t, 3, b.Len())
}

func TestBalance_DuplicatePassengerCountsTwice(t *testing.T) {
	b := fold([]trip{
		{"Peter", []string{"Martin", "Martin"}},
	})

	assert.Equal(t, 2, b.Count("Peter", "Martin"))
}

func TestBalance_OrderIndependence(t *testing.T) {
	trips := []trip{
		{"Peter", []string{"Martin", "Wolfgang"}},
		{"Martin", []string{"Peter"}},
		{"Peter", []string{"Martin"}},
		{"Wolfgang", []string{"Peter", "Martin"}},
	}

	want := fold(trips).Entries()

	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := make([]trip, len(trips))
		copy(shuffled, trips)
		rnd.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		assert.Equal(t, want, fold(shuffled).Entries())
	}
}

func TestBalance_MergeAdditivity(t *testing.T) {
	seqA := []trip{
		{"Peter", []string{"Martin"}},
		{"Peter", []string{"Wolfgang"}},
	}
	seqB := []trip{
		{"Peter", []string{"Martin"}},
		{"Martin", []string{"Peter", "Wolfgang"}},
	}

	combined := fold(append(append([]trip{}, seqA...), seqB...))

	merged := fold(seqA)
	merged.Merge(fold(seqB))

	assert.Equal(t, combined.Entries(), merged.Entries())
}

func TestBalance_MergeNil(t *testing.T) {
	b := fold([]trip{{"Peter", []string{"Martin"}}})

	assert.NotPanics(t, func() { b.Merge(nil) })
	assert.Equal(t, 1, b.Count("Peter", "Martin"))
}

func TestBalance_EntriesSorted(t *testing.T) {
	b := fold([]trip{
		{"Wolfgang", []string{"Peter"}},
		{"Martin", []string{"Wolfgang"}},
		{"Martin", []string{"Anna"}},
	})

	entries := b.Entries()

	require.Len(t, entries, 3)
	assert.Equal(t, balance.Entry{Driver: "Martin", Passenger: "Anna", Count: 1}, entries[0])
	assert.Equal(t, balance.Entry{Driver: "Martin", Passenger: "Wolfgang", Count: 1}, entries[1])
	assert.Equal(t, balance.Entry{Driver: "Wolfgang", Passenger: "Peter", Count: 1}, entries[2])
}
