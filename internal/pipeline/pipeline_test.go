package pipeline_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carpooltally/internal/config"
	"carpooltally/internal/pipeline"
)

// writeFixtureICS writes a small calendar with two carpool trips on the
// same day (morning and afternoon), one unrelated event, and one
// cancelled carpool. Dates are relative to now so the default lookback
// window always covers them.
func writeFixtureICS(t *testing.T, dir string) string {
	t.Helper()

	day := time.Now().UTC().AddDate(0, 0, -7)
	morning := time.Date(day.Year(), day.Month(), day.Day(), 7, 15, 0, 0, time.UTC)
	afternoon := time.Date(day.Year(), day.Month(), day.Day(), 17, 0, 0, 0, time.UTC)

	const stamp = "20060102T150405Z"
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//carpooltally//test//EN",
		"BEGIN:VEVENT",
		"UID:morning@test",
		fmt.Sprintf("DTSTART:%s", morning.Format(stamp)),
		fmt.Sprintf("DTEND:%s", morning.Add(45*time.Minute).Format(stamp)),
		"SUMMARY:Carpool - Peter + Martin + Wolfgang",
		"LOCATION:P+R Everdingen",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:afternoon@test",
		fmt.Sprintf("DTSTART:%s", afternoon.Format(stamp)),
		fmt.Sprintf("DTEND:%s", afternoon.Add(45*time.Minute).Format(stamp)),
		"SUMMARY:carpool Peter, Martin",
		"LOCATION:Parking B7",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:unrelated@test",
		fmt.Sprintf("DTSTART:%s", morning.Add(2*time.Hour).Format(stamp)),
		fmt.Sprintf("DTEND:%s", morning.Add(3*time.Hour).Format(stamp)),
		"SUMMARY:Dentist appointment",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:cancelled@test",
		fmt.Sprintf("DTSTART:%s", afternoon.Add(time.Hour).Format(stamp)),
		fmt.Sprintf("DTEND:%s", afternoon.Add(2*time.Hour).Format(stamp)),
		"STATUS:CANCELLED",
		"SUMMARY:carpool Wolfgang Peter",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}

	path := filepath.Join(dir, "calendar.ics")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\r\n")), 0o600))
	return path
}

func fixtureConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.CalendarFiles = []string{writeFixtureICS(t, dir)}
	cfg.Timezone = "UTC"
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.Output = filepath.Join(dir, "balance.csv")
	cfg.ValidAMLocations = []string{"everdingen"}
	cfg.ValidPMLocations = []string{"b7"}
	return cfg
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := fixtureConfig(t)

	res, err := pipeline.Run(context.Background(), cfg)

	require.NoError(t, err)
	require.Len(t, res.Trips, 2)
	assert.Equal(t, 1, res.SkippedEvents)

	// Trips come out in chronological order.
	morning := res.Trips[0]
	assert.Equal(t, "Peter", morning.Driver)
	assert.Equal(t, []string{"Martin", "Wolfgang"}, morning.Passengers)
	assert.Equal(t, "everdingen", morning.Location)
	// Destination matched from the same driver's next departure.
	assert.Equal(t, "b7", morning.Destination)

	afternoon := res.Trips[1]
	assert.Equal(t, "Peter", afternoon.Driver)
	assert.Equal(t, []string{"Martin"}, afternoon.Passengers)
	assert.Equal(t, "b7", afternoon.Location)
	assert.Equal(t, "", afternoon.Destination)

	assert.Equal(t, 2, res.Balance.Count("Peter", "Martin"))
	assert.Equal(t, 1, res.Balance.Count("Peter", "Wolfgang"))
	assert.Equal(t, 2, res.Balance.Len())
}

func TestRun_DuplicateSourcesCountedOnce(t *testing.T) {
	cfg := fixtureConfig(t)
	// Same calendar configured twice; every event would double without
	// per-instance dedup.
	cfg.CalendarFiles = append(cfg.CalendarFiles, cfg.CalendarFiles[0])

	res, err := pipeline.Run(context.Background(), cfg)

	require.NoError(t, err)
	assert.Len(t, res.Trips, 2)
	assert.Equal(t, 1, res.SkippedEvents)
	assert.Equal(t, 2, res.Balance.Count("Peter", "Martin"))
	assert.Equal(t, 1, res.Balance.Count("Peter", "Wolfgang"))
}

func TestRun_NoSources(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"

	_, err := pipeline.Run(context.Background(), cfg)

	assert.Error(t, err)
}

func TestRun_BadTimezone(t *testing.T) {
	cfg := fixtureConfig(t)
	cfg.Timezone = "Nowhere/Invalid"

	_, err := pipeline.Run(context.Background(), cfg)

	assert.Error(t, err)
}

func TestRunner_RunOnceWritesOutputs(t *testing.T) {
	cfg := fixtureConfig(t)
	cfg.TripsOutput = filepath.Join(filepath.Dir(cfg.Output), "trips.csv")

	runner := pipeline.NewRunner(cfg)
	require.Nil(t, runner.Last())

	res, err := runner.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Same(t, res, runner.Last())

	data, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)
	want := "driver,passenger,count\n" +
		"Peter,Martin,2\n" +
		"Peter,Wolfgang,1\n"
	assert.Equal(t, want, string(data))

	tripsData, err := os.ReadFile(cfg.TripsOutput)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(tripsData), "date,driver,passengers,location,destination\n"))
	assert.Equal(t, 3, strings.Count(string(tripsData), "\n"))
}

func TestRunner_RunOnceNetOutput(t *testing.T) {
	cfg := fixtureConfig(t)
	cfg.Net = true

	runner := pipeline.NewRunner(cfg)
	_, err := runner.RunOnce(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "driver,passenger,net\n"))
}
