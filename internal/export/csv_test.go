package export_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carpooltally/internal/balance"
	"carpooltally/internal/export"
	"carpooltally/internal/model"
)

func TestWriteCSV(t *testing.T) {
	b := balance.New()
	b.Add("Peter", []string{"Martin", "Wolfgang", "Martin"})
	b.Add("Peter", []string{"Martin", "Wolfgang"})
	b.Add("Martin", []string{"Peter"})

	var buf bytes.Buffer
	require.NoError(t, export.WriteCSV(&buf, b))

	want := "driver,passenger,count\n" +
		"Martin,Peter,1\n" +
		"Peter,Martin,3\n" +
		"Peter,Wolfgang,2\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSV_EmptyBalance(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.WriteCSV(&buf, balance.New()))

	assert.Equal(t, "driver,passenger,count\n", buf.String())
}

func TestWriteNetCSV_OffsetsReciprocalPairs(t *testing.T) {
	b := balance.New()
	// Peter drove Martin 3x, Martin drove Peter 1x -> net 2.
	b.Add("Peter", []string{"Martin"})
	b.Add("Peter", []string{"Martin"})
	b.Add("Peter", []string{"Martin"})
	b.Add("Martin", []string{"Peter"})

	var buf bytes.Buffer
	require.NoError(t, export.WriteNetCSV(&buf, b))

	want := "driver,passenger,net\n" +
		"Peter,Martin,2\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteNetCSV_EvenPairsOmitted(t *testing.T) {
	b := balance.New()
	b.Add("Peter", []string{"Martin"})
	b.Add("Martin", []string{"Peter"})

	var buf bytes.Buffer
	require.NoError(t, export.WriteNetCSV(&buf, b))

	assert.Equal(t, "driver,passenger,net\n", buf.String())
}

func TestWriteNetCSV_DriverColumnHoldsWhoDroveMore(t *testing.T) {
	b := balance.New()
	// Wolfgang drove Anna more than the reverse; Wolfgang sorts after
	// Anna but must still land in the driver column.
	b.Add("Wolfgang", []string{"Anna"})
	b.Add("Wolfgang", []string{"Anna"})
	b.Add("Anna", []string{"Wolfgang"})

	var buf bytes.Buffer
	require.NoError(t, export.WriteNetCSV(&buf, b))

	want := "driver,passenger,net\n" +
		"Wolfgang,Anna,1\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteTripsCSV(t *testing.T) {
	start := time.Date(2026, 3, 2, 7, 15, 0, 0, time.UTC)
	trips := []model.Trip{
		{
			Driver:      "Peter",
			Passengers:  []string{"Martin", "Wolfgang"},
			Location:    "everdingen",
			Destination: "b7",
			Start:       start,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, export.WriteTripsCSV(&buf, trips))

	want := "date,driver,passengers,location,destination\n" +
		"2026-03-02T07:15:00Z,Peter,\"Martin,Wolfgang\",everdingen,b7\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteFile_Atomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "balance.csv")

	b := balance.New()
	b.Add("Peter", []string{"Martin"})

	require.NoError(t, export.WriteFile(path, func(w io.Writer) error {
		return export.WriteCSV(w, b)
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "driver,passenger,count\nPeter,Martin,1\n", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
