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
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"golang.org/x/exp/constraints"
)

// int64 domain edges as float64. -2^63 is exactly representable; 2^63 is
// the first value whose conversion to int64 overflows, so the upper check
// is exclusive.
const (
	minInt64Float = -9223372036854775808.0
	maxInt64Float = 9223372036854775808.0
)

// Codec coerces host values into the canonical representation a resolved
// column stores, and extracts host values back out of Arrow arrays. All
// range, window, and precision checks happen here, before a value reaches a
// builder or a statement literal.
type Codec struct {
	helper *ErrorHelper
	zone   *time.Location
}

// NewCodec builds a codec. zone is the session zone used to interpret
// zone-less literals bound to zoned timestamp columns; nil means UTC.
func NewCodec(helper *ErrorHelper, zone *time.Location) *Codec {
	if zone == nil {
		zone = time.UTC
	}
	return &Codec{helper: helper, zone: zone}
}

// Coerce converts a host value into the canonical Go value for the column's
// class: bool, int64, float32/float64, string (decimal, string, json),
// []byte, arrow.Date32, arrow.Time32/Time64, or arrow.Timestamp. nil passes
// through as nil. Violations surface as wrapped CoercionErrors.
func (c *Codec) Coerce(desc TypeDescriptor, value any) (any, error) {
	unwrapped, err := unwrapValuer(value)
	if err != nil {
		return nil, c.helper.Internal("failed to unwrap value: %s", err.Error())
	}
	if unwrapped == nil {
		return nil, nil
	}

	switch desc.Class {
	case ClassBoolean:
		return convertToBool(unwrapped)
	case ClassInteger:
		return c.coerceInteger(desc, unwrapped)
	case ClassFloat:
		if desc.Field.Type.ID() == arrow.FLOAT32 {
			return convertToNumericType[float32](unwrapped)
		}
		return convertToNumericType[float64](unwrapped)
	case ClassDecimal:
		return c.coerceDecimal(desc, unwrapped)
	case ClassString:
		s, err := convertToString(unwrapped)
		if err != nil {
			return nil, err
		}
		if cerr := checkStringLength(desc, s); cerr != nil {
			return nil, c.helper.Coercion(cerr)
		}
		return s, nil
	case ClassBinary:
		return convertToBinary(unwrapped)
	case ClassDate:
		return c.coerceDate(desc, unwrapped)
	case ClassTime:
		return c.coerceTime(desc, unwrapped)
	case ClassDatetime, ClassTimestamp:
		return c.coerceInstant(desc, unwrapped)
	case ClassJSON:
		s, err := convertToString(unwrapped)
		if err != nil {
			return nil, err
		}
		if !json.Valid([]byte(s)) {
			return nil, c.helper.InvalidData("invalid JSON value for column '%s'", desc.Name())
		}
		return s, nil
	}
	return nil, c.helper.Coercion(&CoercionError{
		Kind:     KindUnsupportedConversion,
		Column:   desc.Name(),
		TypeName: desc.typeName(),
		Value:    fmt.Sprintf("%v", unwrapped),
	})
}

func (c *Codec) coerceInteger(desc TypeDescriptor, val any) (int64, error) {
	outOfRange := func(rendered string) error {
		return c.helper.Coercion(&CoercionError{
			Kind:     KindValueOutOfRange,
			Column:   desc.Name(),
			TypeName: desc.typeName(),
			Value:    rendered,
		})
	}

	switch v := val.(type) {
	case uint64:
		if cerr := checkUintBounds(desc, v); cerr != nil {
			return 0, c.helper.Coercion(cerr)
		}
		return int64(v), nil
	case uint:
		return c.coerceInteger(desc, uint64(v))
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return 0, outOfRange(v)
			}
			return 0, c.helper.InvalidData("cannot parse %q as integer for column '%s'", v, desc.Name())
		}
		return c.coerceInteger(desc, parsed)
	case []byte:
		return c.coerceInteger(desc, string(v))
	case float64:
		// The float domain is checked before conversion: out-of-range
		// float-to-int conversion in Go yields an unspecified value.
		if math.IsNaN(v) || v < minInt64Float || v >= maxInt64Float {
			return 0, outOfRange(strconv.FormatFloat(v, 'g', -1, 64))
		}
		truncated := int64(v)
		if !desc.Bounds.contains(truncated) {
			return 0, outOfRange(strconv.FormatFloat(v, 'g', -1, 64))
		}
		return truncated, nil
	case float32:
		return c.coerceInteger(desc, float64(v))
	default:
		parsed, err := convertToNumericType[int64](val)
		if err != nil {
			return 0, c.helper.InvalidData("%s", err.Error())
		}
		if cerr := checkIntegerBounds(desc, parsed); cerr != nil {
			return 0, c.helper.Coercion(cerr)
		}
		return parsed, nil
	}
}

func (c *Codec) coerceDecimal(desc TypeDescriptor, val any) (string, error) {
	var literal string
	switch v := val.(type) {
	case string:
		literal = strings.TrimSpace(v)
		if !isDecimalLiteral(literal) {
			return "", c.helper.InvalidData("cannot parse %q as decimal for column '%s'", v, desc.Name())
		}
	case []byte:
		return c.coerceDecimal(desc, string(v))
	case uint64:
		literal = strconv.FormatUint(v, 10)
	case uint:
		literal = strconv.FormatUint(uint64(v), 10)
	case float64:
		literal = strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		literal = strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		parsed, err := convertToNumericType[int64](val)
		if err != nil {
			return "", c.helper.InvalidData("%s", err.Error())
		}
		literal = strconv.FormatInt(parsed, 10)
	}
	if cerr := checkDecimalDigits(desc, literal); cerr != nil {
		return "", c.helper.Coercion(cerr)
	}
	return literal, nil
}

func (c *Codec) coerceDate(desc TypeDescriptor, val any) (arrow.Date32, error) {
	switch v := val.(type) {
	case time.Time:
		return arrow.Date32FromTime(v), nil
	case []byte:
		return c.coerceDate(desc, string(v))
	case string:
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return 0, c.helper.Coercion(&CoercionError{
				Kind:     KindDatetimeOutOfRange,
				Column:   desc.Name(),
				TypeName: desc.typeName(),
				Value:    v,
			})
		}
		return arrow.Date32FromTime(t), nil
	default:
		return 0, c.helper.InvalidData("cannot convert %T to date for column '%s'", val, desc.Name())
	}
}

func (c *Codec) coerceTime(desc TypeDescriptor, val any) (any, error) {
	var w wallInstant
	switch v := val.(type) {
	case time.Time:
		w = instantFromTime(v)
	case []byte:
		return c.coerceTime(desc, string(v))
	case string:
		parsed, err := parseTimeOfDay(v)
		if err != nil {
			return nil, c.helper.Coercion(&CoercionError{
				Kind:     KindDatetimeOutOfRange,
				Column:   desc.Name(),
				TypeName: desc.typeName(),
				Value:    v,
			})
		}
		w = parsed
	default:
		return nil, c.helper.InvalidData("cannot convert %T to time for column '%s'", val, desc.Name())
	}

	w = w.roundToPrecision(desc.FracDigits)
	switch t := desc.Field.Type.(type) {
	case *arrow.Time32Type:
		return w.toTime32(t.Unit), nil
	case *arrow.Time64Type:
		return w.toTime64(t.Unit), nil
	}
	return nil, c.helper.Internal("time column '%s' resolved to %s", desc.Name(), desc.Field.Type)
}

func (c *Codec) coerceInstant(desc TypeDescriptor, val any) (arrow.Timestamp, error) {
	var w wallInstant
	switch v := val.(type) {
	case time.Time:
		w = instantFromTime(v)
	case []byte:
		return c.coerceInstant(desc, string(v))
	case string:
		// Zone-less datetime columns keep the literal's wall clock; only
		// zoned columns interpret zone-less input in the session zone.
		loc := time.UTC
		if desc.Class == ClassTimestamp {
			loc = c.zone
		}
		parsed, err := parseInstant(v, loc)
		if err != nil {
			return 0, c.helper.Coercion(&CoercionError{
				Kind:     KindDatetimeOutOfRange,
				Column:   desc.Name(),
				TypeName: desc.typeName(),
				Value:    v,
			})
		}
		w = parsed
	default:
		return 0, c.helper.InvalidData("cannot convert %T to timestamp for column '%s'", val, desc.Name())
	}

	w = w.roundToPrecision(desc.FracDigits)
	if cerr := checkTimestampWindow(desc, w); cerr != nil {
		return 0, c.helper.Coercion(cerr)
	}
	ts, ok := desc.Field.Type.(*arrow.TimestampType)
	if !ok {
		return 0, c.helper.Internal("timestamp column '%s' resolved to %s", desc.Name(), desc.Field.Type)
	}
	return w.toTimestamp(ts.Unit), nil
}

// Append coerces one host value and appends it to the builder for the
// column. The builder must match the descriptor's Arrow type.
func (c *Codec) Append(bldr array.Builder, desc TypeDescriptor, value any) error {
	coerced, err := c.Coerce(desc, value)
	if err != nil {
		return err
	}
	if coerced == nil {
		bldr.AppendNull()
		return nil
	}

	switch b := bldr.(type) {
	case *array.BooleanBuilder:
		b.Append(coerced.(bool))
	case *array.Int8Builder:
		b.Append(int8(coerced.(int64)))
	case *array.Int16Builder:
		b.Append(int16(coerced.(int64)))
	case *array.Int32Builder:
		b.Append(int32(coerced.(int64)))
	case *array.Int64Builder:
		b.Append(coerced.(int64))
	case *array.Float32Builder:
		b.Append(coerced.(float32))
	case *array.Float64Builder:
		b.Append(coerced.(float64))
	case *array.StringBuilder:
		b.Append(coerced.(string))
	case *array.BinaryBuilder:
		b.Append(coerced.([]byte))
	case *array.Date32Builder:
		b.Append(coerced.(arrow.Date32))
	case *array.Time32Builder:
		b.Append(coerced.(arrow.Time32))
	case *array.Time64Builder:
		b.Append(coerced.(arrow.Time64))
	case *array.TimestampBuilder:
		b.Append(coerced.(arrow.Timestamp))
	default:
		// Decimal and extension builders take the canonical string form.
		if s, ok := coerced.(string); ok {
			if err := bldr.AppendValueFromString(s); err != nil {
				return c.helper.InvalidData("cannot append %q to column '%s': %s", s, desc.Name(), err.Error())
			}
			return nil
		}
		return c.helper.Internal("no builder mapping for column '%s' (%s)", desc.Name(), desc.Field.Type)
	}
	return nil
}

// Extract pulls the host value at index out of an Arrow array, for
// parameter binding and row materialization. Temporal values come back as
// time.Time, decimals as canonical strings.
func (c *Codec) Extract(arrowArray arrow.Array, index int, field *arrow.Field) (any, error) {
	if arrowArray.IsNull(index) {
		return nil, nil
	}

	switch a := arrowArray.(type) {
	case *array.Int8:
		return a.Value(index), nil
	case *array.Int16:
		return a.Value(index), nil
	case *array.Int32:
		return a.Value(index), nil
	case *array.Int64:
		return a.Value(index), nil
	case *array.Uint8:
		return a.Value(index), nil
	case *array.Uint16:
		return a.Value(index), nil
	case *array.Uint32:
		return a.Value(index), nil
	case *array.Uint64:
		return a.Value(index), nil
	case *array.Float32:
		return a.Value(index), nil
	case *array.Float64:
		return a.Value(index), nil
	case *array.Boolean:
		return a.Value(index), nil
	case *array.String:
		return a.Value(index), nil
	case *array.LargeString:
		return a.Value(index), nil
	case *array.StringView:
		return a.Value(index), nil
	case *array.Binary:
		return a.Value(index), nil
	case *array.LargeBinary:
		return a.Value(index), nil
	case *array.BinaryView:
		return a.Value(index), nil
	case *array.FixedSizeBinary:
		return a.Value(index), nil
	case *array.Date32:
		return a.Value(index).ToTime(), nil
	case *array.Time32:
		timeType := a.DataType().(*arrow.Time32Type)
		return a.Value(index).ToTime(timeType.Unit), nil
	case *array.Time64:
		timeType := a.DataType().(*arrow.Time64Type)
		return a.Value(index).ToTime(timeType.Unit), nil
	case *array.Timestamp:
		timestampType := a.DataType().(*arrow.TimestampType)
		tz, err := timestampType.GetZone()
		if err != nil {
			return nil, err
		}
		return a.Value(index).ToTime(timestampType.Unit).In(tz), nil
	default:
		return a.ValueStr(index), nil
	}
}

// unwrapValuer unwraps database/sql nullable wrappers via driver.Valuer.
func unwrapValuer(val any) (any, error) {
	if v, ok := val.(driver.Valuer); ok {
		return v.Value()
	}
	return val, nil
}

// convertToNumericType converts a host value to the target numeric type T.
func convertToNumericType[T constraints.Integer | constraints.Float](val any) (T, error) {
	switch v := val.(type) {
	case int:
		return T(v), nil
	case uint:
		return T(v), nil
	case int8:
		return T(v), nil
	case uint8:
		return T(v), nil
	case int16:
		return T(v), nil
	case uint16:
		return T(v), nil
	case int32:
		return T(v), nil
	case uint32:
		return T(v), nil
	case int64:
		return T(v), nil
	case uint64:
		return T(v), nil
	case float32:
		return T(v), nil
	case float64:
		return T(v), nil
	default:
		strVal := fmt.Sprintf("%v", val)
		var zero T
		switch any(zero).(type) {
		case int8, int16, int32, int64:
			parsed, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return zero, fmt.Errorf("cannot convert %q to %T: %w", strVal, zero, err)
			}
			return T(parsed), nil
		case uint8, uint16, uint32, uint64:
			parsed, err := strconv.ParseUint(strVal, 10, 64)
			if err != nil {
				return zero, fmt.Errorf("cannot convert %q to %T: %w", strVal, zero, err)
			}
			return T(parsed), nil
		case float32, float64:
			parsed, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return zero, fmt.Errorf("cannot convert %q to %T: %w", strVal, zero, err)
			}
			return T(parsed), nil
		default:
			return zero, fmt.Errorf("unsupported numeric type conversion to %T", zero)
		}
	}
}

func convertToBool(val any) (bool, error) {
	switch v := val.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int8:
		return v != 0, nil
	case int16:
		return v != 0, nil
	case int32:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case uint:
		return v != 0, nil
	case uint8:
		return v != 0, nil
	case uint16:
		return v != 0, nil
	case uint32:
		return v != 0, nil
	case uint64:
		return v != 0, nil
	default:
		strVal := fmt.Sprintf("%v", val)
		boolVal, err := strconv.ParseBool(strVal)
		if err != nil {
			return false, fmt.Errorf("cannot convert %q to bool: %w", strVal, err)
		}
		return boolVal, nil
	}
}

func convertToString(val any) (string, error) {
	switch v := val.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return fmt.Sprintf("%v", val), nil
	}
}

func convertToBinary(val any) ([]byte, error) {
	switch v := val.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return fmt.Appendf(nil, "%v", val), nil
	}
}
