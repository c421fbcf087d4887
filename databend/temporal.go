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
	"fmt"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
)

// Fractional seconds are carried as picoseconds so that inputs more precise
// than any storable unit still round correctly. Twelve digits cover every
// digit that can influence half-up rounding at precision <= 9.
const picosPerSecond = int64(1_000_000_000_000)

var pow10 = [...]int64{
	1, 10, 100, 1_000, 10_000, 100_000, 1_000_000,
	10_000_000, 100_000_000, 1_000_000_000,
	10_000_000_000, 100_000_000_000, 1_000_000_000_000,
}

// wallInstant is a parsed temporal value split into whole seconds and a
// sub-second fraction. For zoned inputs the seconds part is already
// normalized to UTC.
type wallInstant struct {
	sec   time.Time // whole-second instant, UTC
	picos int64     // [0, picosPerSecond)
}

// roundToPrecision rounds the fraction half-up at digit p and folds any
// carry into the seconds part. Rounding 23:59:59.9999995 at p=6 lands on
// the first instant of the next day.
func (w wallInstant) roundToPrecision(p int) wallInstant {
	if p < 0 {
		p = 0
	}
	if p > 9 {
		p = 9
	}
	unit := pow10[12-p]
	rounded := w.picos + unit/2
	rounded -= rounded % unit
	w.sec = w.sec.Add(time.Duration(rounded/picosPerSecond) * time.Second)
	w.picos = rounded % picosPerSecond
	return w
}

// toTimestamp renders the instant in the given Arrow unit. The fraction must
// already be rounded to a precision the unit can hold.
func (w wallInstant) toTimestamp(unit arrow.TimeUnit) arrow.Timestamp {
	perSec := pow10[3*int(unit)]
	return arrow.Timestamp(w.sec.Unix()*perSec + w.picos/(picosPerSecond/perSec))
}

// toTime renders the time-of-day part in the given unit. Carry past
// midnight wraps around, matching wall-clock arithmetic.
func (w wallInstant) toTime(unit arrow.TimeUnit) int64 {
	perSec := pow10[3*int(unit)]
	secOfDay := int64(w.sec.Hour())*3600 + int64(w.sec.Minute())*60 + int64(w.sec.Second())
	return secOfDay*perSec + w.picos/(picosPerSecond/perSec)
}

func (w wallInstant) toTime32(unit arrow.TimeUnit) arrow.Time32 {
	return arrow.Time32(w.toTime(unit))
}

func (w wallInstant) toTime64(unit arrow.TimeUnit) arrow.Time64 {
	return arrow.Time64(w.toTime(unit))
}

// format renders the instant as an unquoted temporal literal with exactly p
// fractional digits.
func (w wallInstant) format(p int) string {
	base := w.sec.Format("2006-01-02 15:04:05")
	if p <= 0 {
		return base
	}
	frac := fmt.Sprintf("%012d", w.picos)
	return base + "." + frac[:p]
}

// formatTime renders only the time-of-day part with p fractional digits.
func (w wallInstant) formatTime(p int) string {
	base := w.sec.Format("15:04:05")
	if p <= 0 {
		return base
	}
	frac := fmt.Sprintf("%012d", w.picos)
	return base + "." + frac[:p]
}

// instantFromTime splits a time.Time into a wallInstant, keeping nanosecond
// fractions and normalizing to UTC.
func instantFromTime(t time.Time) wallInstant {
	u := t.UTC()
	ns := int64(u.Nanosecond())
	return wallInstant{
		sec:   u.Add(-time.Duration(ns) * time.Nanosecond),
		picos: ns * 1_000,
	}
}

// datetime literal shapes accepted on the write path. Offsets are parsed
// when present and folded into UTC.
var instantLayouts = []string{
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

var timeOnlyLayouts = []string{
	"15:04:05",
	"15:04",
}

// parseInstant parses a temporal literal into a wallInstant. Zone-less
// literals are interpreted in loc; explicit offsets win over it. The
// fractional part is split off and parsed by hand so precision beyond
// nanoseconds survives to the rounding step.
func parseInstant(s string, loc *time.Location) (wallInstant, error) {
	base, picos, err := splitFraction(strings.TrimSpace(s))
	if err != nil {
		return wallInstant{}, err
	}
	for _, layout := range instantLayouts {
		if t, perr := time.ParseInLocation(layout, base, loc); perr == nil {
			return wallInstant{sec: t.UTC(), picos: picos}, nil
		}
	}
	return wallInstant{}, fmt.Errorf("could not parse timestamp string: %q", s)
}

// parseTimeOfDay parses a time-only literal.
func parseTimeOfDay(s string) (wallInstant, error) {
	base, picos, err := splitFraction(strings.TrimSpace(s))
	if err != nil {
		return wallInstant{}, err
	}
	for _, layout := range timeOnlyLayouts {
		if t, perr := time.Parse(layout, base); perr == nil {
			return wallInstant{sec: t.UTC(), picos: picos}, nil
		}
	}
	return wallInstant{}, fmt.Errorf("could not parse time-only string: %q", s)
}

// splitFraction removes the fractional-seconds run from a literal and
// returns it as picoseconds. Digits past the twelfth are dropped; they
// cannot change the outcome of half-up rounding at any storable precision.
func splitFraction(s string) (string, int64, error) {
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return s, 0, nil
	}
	end := dot + 1
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	digits := s[dot+1 : end]
	if digits == "" {
		return "", 0, fmt.Errorf("malformed fractional seconds in %q", s)
	}
	if len(digits) > 12 {
		digits = digits[:12]
	}
	var picos int64
	for _, c := range digits {
		picos = picos*10 + int64(c-'0')
	}
	picos *= pow10[12-len(digits)]
	return s[:dot] + s[end:], picos, nil
}
