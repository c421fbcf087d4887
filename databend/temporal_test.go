// Copyright (c) 2025 Databend Connector Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//         http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package databend

import (
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFraction(t *testing.T) {
	tests := []struct {
		in    string
		base  string
		picos int64
	}{
		{"2020-01-01 00:00:00", "2020-01-01 00:00:00", 0},
		{"2020-01-01 00:00:00.5", "2020-01-01 00:00:00", 500_000_000_000},
		{"2020-01-01 00:00:00.123456", "2020-01-01 00:00:00", 123_456_000_000},
		{"00:00:00.999999999999", "00:00:00", 999_999_999_999},
		// Digits past the twelfth cannot affect rounding and are dropped.
		{"00:00:00.9999999999999", "00:00:00", 999_999_999_999},
		{"2020-01-01 00:00:00.25+02:00", "2020-01-01 00:00:00+02:00", 250_000_000_000},
	}
	for _, tc := range tests {
		base, picos, err := splitFraction(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.base, base, tc.in)
		assert.Equal(t, tc.picos, picos, tc.in)
	}

	t.Run("trailing dot is malformed", func(t *testing.T) {
		_, _, err := splitFraction("00:00:00.")
		assert.Error(t, err)
	})
}

func TestRoundToPrecision(t *testing.T) {
	base := time.Date(2020, 6, 15, 23, 59, 59, 0, time.UTC)

	t.Run("half rounds up", func(t *testing.T) {
		w := wallInstant{sec: base, picos: 500_000_000_000}
		r := w.roundToPrecision(0)
		assert.Equal(t, base.Add(time.Second), r.sec)
		assert.Zero(t, r.picos)
	})

	t.Run("below half rounds down", func(t *testing.T) {
		w := wallInstant{sec: base, picos: 499_999_999_999}
		r := w.roundToPrecision(0)
		assert.Equal(t, base, r.sec)
		assert.Zero(t, r.picos)
	})

	t.Run("carry crosses the day boundary", func(t *testing.T) {
		w := wallInstant{sec: base, picos: 999_999_500_000}
		r := w.roundToPrecision(6)
		assert.Equal(t, time.Date(2020, 6, 16, 0, 0, 0, 0, time.UTC), r.sec)
		assert.Zero(t, r.picos)
	})

	t.Run("keeps digits within precision", func(t *testing.T) {
		w := wallInstant{sec: base, picos: 123_456_789_000}
		r := w.roundToPrecision(6)
		assert.Equal(t, int64(123_457_000_000), r.picos)
		assert.Equal(t, base, r.sec)
	})
}

func TestInstantFormatting(t *testing.T) {
	w := wallInstant{
		sec:   time.Date(2020, 6, 15, 12, 30, 45, 0, time.UTC),
		picos: 123_456_000_000,
	}
	assert.Equal(t, "2020-06-15 12:30:45", w.format(0))
	assert.Equal(t, "2020-06-15 12:30:45.123", w.format(3))
	assert.Equal(t, "2020-06-15 12:30:45.123456", w.format(6))
	assert.Equal(t, "12:30:45.1234", w.formatTime(4))
}

func TestTimeUnitForPrecision(t *testing.T) {
	expect := map[int]arrow.TimeUnit{
		0: arrow.Second,
		1: arrow.Millisecond,
		2: arrow.Millisecond,
		3: arrow.Millisecond,
		4: arrow.Microsecond,
		6: arrow.Microsecond,
		7: arrow.Nanosecond,
		9: arrow.Nanosecond,
	}
	for p, want := range expect {
		assert.Equal(t, want, timeUnitForPrecision(p), "precision %d", p)
	}
	// Out-of-range inputs clamp.
	assert.Equal(t, arrow.Nanosecond, timeUnitForPrecision(12))
	assert.Equal(t, arrow.Second, timeUnitForPrecision(-1))
}

func TestParseInstantZones(t *testing.T) {
	w, err := parseInstant("2020-01-01 00:00:00+02:00", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 12, 31, 22, 0, 0, 0, time.UTC), w.sec)

	w, err = parseInstant("2020-01-01T12:00:00Z", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC), w.sec)

	w, err = parseInstant("2020-01-01", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), w.sec)

	// Zone-less literals pick up the given location; explicit offsets win.
	east := time.FixedZone("UTC+2", 2*3600)
	w, err = parseInstant("2020-01-01 12:00:00", east)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC), w.sec)

	w, err = parseInstant("2020-01-01 12:00:00-05:00", east)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 1, 17, 0, 0, 0, time.UTC), w.sec)

	_, err = parseInstant("not a timestamp", time.UTC)
	assert.Error(t, err)
}
