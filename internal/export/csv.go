package export

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"carpooltally/internal/balance"
	"carpooltally/internal/model"
)

// WriteCSV renders the raw directional tally, one row per
// (driver, passenger) pair, sorted by driver then passenger.
func WriteCSV(w io.Writer, b *balance.Balance) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"driver", "passenger", "count"}); err != nil {
		return err
	}
	for _, e := range b.Entries() {
		if err := cw.Write([]string{e.Driver, e.Passenger, strconv.Itoa(e.Count)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteNetCSV renders the netted balance: reciprocal pairs are offset
// against each other, and only pairs with a positive net remain, with
// the driver column holding whoever drove more. Netting is purely a
// rendering decision; the underlying tally stays directional.
func WriteNetCSV(w io.Writer, b *balance.Balance) error {
	type key struct{ a, b string }

	// Canonical unordered pair -> net count of (a drove b) - (b drove a).
	nets := make(map[key]int)
	for _, e := range b.Entries() {
		a, p := e.Driver, e.Passenger
		if a <= p {
			nets[key{a, p}] += e.Count
		} else {
			nets[key{p, a}] -= e.Count
		}
	}

	rows := make([]balance.Entry, 0, len(nets))
	for k, n := range nets {
		switch {
		case n > 0:
			rows = append(rows, balance.Entry{Driver: k.a, Passenger: k.b, Count: n})
		case n < 0:
			rows = append(rows, balance.Entry{Driver: k.b, Passenger: k.a, Count: -n})
		}
		// Even pairs cancel out entirely and are omitted.
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Driver != rows[j].Driver {
			return rows[i].Driver < rows[j].Driver
		}
		return rows[i].Passenger < rows[j].Passenger
	})

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"driver", "passenger", "net"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Driver, r.Passenger, strconv.Itoa(r.Count)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTripsCSV renders the normalized trip log, one row per extracted
// trip in input order.
func WriteTripsCSV(w io.Writer, trips []model.Trip) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "driver", "passengers", "location", "destination"}); err != nil {
		return err
	}
	for _, t := range trips {
		row := []string{
			t.Start.Format(time.RFC3339),
			t.Driver,
			strings.Join(t.Passengers, ","),
			t.Location,
			t.Destination,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes one rendering to path atomically: temp file in the
// same directory, then rename.
func WriteFile(path string, render func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".carpooltally-out-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := render(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
