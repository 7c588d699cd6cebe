package model

import (
	"testing"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/stretchr/testify/require"
)

func TestIsValidCategory(t *testing.T) {
	for _, c := range Categories {
		require.True(t, IsValidCategory(c))
	}
	require.False(t, IsValidCategory(""))
	require.False(t, IsValidCategory("Visitors"))
	require.False(t, IsValidCategory("drones"))
}

func TestNormalizeFileID(t *testing.T) {
	require.Equal(t, "m100", NormalizeFileID("M100"))
	require.Equal(t, "m100", NormalizeFileID("  m100 "))
	require.Equal(t, "", NormalizeFileID("   "))
}

func TestOnSite(t *testing.T) {
	entry := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

	rec := EntryRecord{EntryTime: dbh.MakeIntTime(entry)}
	require.Equal(t, 3*time.Hour, rec.OnSite(entry.Add(3*time.Hour)))

	// Once exited, the exit time wins over 'now'
	rec.ExitTime = dbh.MakeIntTime(entry.Add(2 * time.Hour))
	require.Equal(t, 2*time.Hour, rec.OnSite(entry.Add(30*time.Hour)))

	// A clock that runs backwards never yields a negative duration
	rec = EntryRecord{EntryTime: dbh.MakeIntTime(entry)}
	require.Equal(t, time.Duration(0), rec.OnSite(entry.Add(-time.Minute)))
}
