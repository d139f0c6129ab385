package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDateTime(t *testing.T) {
	t.Parallel()

	// Valid RFC 2822.
	got, err := ParseDateTime("Sun, 24 Dec 2017 21:37:32 +0000")
	require.NoError(t, err)
	require.Equal(t, time.Date(2017, 12, 24, 21, 37, 32, 0, time.UTC), got)

	// Named time zones resolve to fixed offsets.
	got, err = ParseDateTime("Sun, 24 Dec 2017 21:37:32 EST")
	require.NoError(t, err)
	require.Equal(t, time.Date(2017, 12, 25, 2, 37, 32, 0, time.UTC), got)

	// "-0000" is technically an invalid offset, but it plainly means UTC.
	got, err = ParseDateTime("Sun, 24 Dec 2017 21:37:32 -0000")
	require.NoError(t, err)
	require.Equal(t, time.Date(2017, 12, 24, 21, 37, 32, 0, time.UTC), got)

	// Truncated "0:" hour, as seen in the wild.
	got, err = ParseDateTime("Sun, 24 Dec 2017 0:37:32 EST")
	require.NoError(t, err)
	require.Equal(t, time.Date(2017, 12, 24, 5, 37, 32, 0, time.UTC), got)
}

func TestParseDateTimeWithoutWeekday(t *testing.T) {
	t.Parallel()

	got, err := ParseDateTime("24 Dec 2017 21:37:32 +0100")
	require.NoError(t, err)
	require.Equal(t, time.Date(2017, 12, 24, 20, 37, 32, 0, time.UTC), got)
}

func TestParseDateTimeFailure(t *testing.T) {
	t.Parallel()

	for _, s := range []string{
		"",
		"not a date",
		"Sun, 24 Dec 2017",
		"2017-12-24T21:37:32Z",
	} {
		_, err := ParseDateTime(s)
		require.Error(t, err, "expected failure for %q", s)

		var de *DateError
		require.ErrorAs(t, err, &de)
	}
}
