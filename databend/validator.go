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
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Write window for zoned timestamp columns. Values are checked after
// rounding to the column's precision, so an input just under the ceiling
// can still be rejected when rounding pushes it over.
var (
	timestampWindowMin = time.Date(1970, 1, 1, 0, 0, 1, 0, time.UTC)
	timestampWindowMax = time.Date(2038, 1, 19, 3, 14, 7, 0, time.UTC)
)

// timestampWindowMaxPicos is the fractional part of the window ceiling,
// 2038-01-19 03:14:07.499999.
const timestampWindowMaxPicos = int64(499_999_000_000)

func (d TypeDescriptor) typeName() string {
	name, _ := d.Field.Metadata.GetValue(MetaKeyDatabaseTypeName)
	return name
}

// checkIntegerBounds rejects signed values outside the column's domain.
func checkIntegerBounds(desc TypeDescriptor, v int64) *CoercionError {
	if desc.Bounds.contains(v) {
		return nil
	}
	return &CoercionError{
		Kind:     KindValueOutOfRange,
		Column:   desc.Name(),
		TypeName: desc.typeName(),
		Value:    strconv.FormatInt(v, 10),
	}
}

// checkUintBounds rejects unsigned values outside the column's domain.
func checkUintBounds(desc TypeDescriptor, v uint64) *CoercionError {
	if desc.Bounds.containsUint(v) {
		return nil
	}
	return &CoercionError{
		Kind:     KindValueOutOfRange,
		Column:   desc.Name(),
		TypeName: desc.typeName(),
		Value:    strconv.FormatUint(v, 10),
	}
}

// checkTimestampWindow rejects rounded instants outside the storable window
// of zoned timestamp columns. Zone-less datetime columns are not windowed.
func checkTimestampWindow(desc TypeDescriptor, w wallInstant) *CoercionError {
	if desc.Class != ClassTimestamp {
		return nil
	}
	if !w.sec.Before(timestampWindowMin) &&
		(w.sec.Before(timestampWindowMax) ||
			(w.sec.Equal(timestampWindowMax) && w.picos <= timestampWindowMaxPicos)) {
		return nil
	}
	return &CoercionError{
		Kind:     KindDatetimeOutOfRange,
		Column:   desc.Name(),
		TypeName: desc.typeName(),
		Value:    w.format(desc.FracDigits),
	}
}

// isDecimalLiteral reports whether s is a plain decimal literal: an
// optional sign, then digits with at most one dot. Exponents, spaces, and
// anything else are rejected so the literal is safe to embed in SQL text
// unquoted.
func isDecimalLiteral(s string) bool {
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		s = s[1:]
	}
	digits, dots := 0, 0
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] >= '0' && s[i] <= '9':
			digits++
		case s[i] == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

// checkDecimalDigits rejects numeric literals whose integer part cannot fit
// in precision-scale digits. Fractional overflow is not an error here; the
// builder rounds it to the column scale.
func checkDecimalDigits(desc TypeDescriptor, literal string) *CoercionError {
	s := strings.TrimPrefix(literal, "-")
	s = strings.TrimPrefix(s, "+")
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		s = s[:dot]
	}
	s = strings.TrimLeft(s, "0")
	if int32(len(s)) <= desc.Precision-desc.Scale {
		return nil
	}
	return &CoercionError{
		Kind:     KindPrecisionOverflow,
		Column:   desc.Name(),
		TypeName: desc.typeName(),
		Value:    literal,
	}
}

// checkStringLength rejects strings longer than the column's declared
// character tier. Unbounded columns accept any length.
func checkStringLength(desc TypeDescriptor, s string) *CoercionError {
	if desc.Length <= 0 || int64(utf8.RuneCountInString(s)) <= desc.Length {
		return nil
	}
	return &CoercionError{
		Kind:     KindValueOutOfRange,
		Column:   desc.Name(),
		TypeName: desc.typeName(),
		Value:    strconv.Quote(truncateForDiagnostic(s)),
	}
}

// truncateForDiagnostic keeps diagnostics readable for very long payloads.
func truncateForDiagnostic(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
