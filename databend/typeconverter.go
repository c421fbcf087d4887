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
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/extensions"
)

// Metadata keys attached to resolved Arrow fields. They preserve the remote
// declaration so the write path can reconstruct the column's domain.
const (
	MetaKeyDatabaseTypeName           = "sql.database_type_name"
	MetaKeyColumnName                 = "sql.column_name"
	MetaKeyPrecision                  = "sql.precision"
	MetaKeyScale                      = "sql.scale"
	MetaKeyFractionalSecondsPrecision = "sql.fractional_seconds_precision"
	MetaKeyLength                     = "sql.length"
)

// ErrUnsupportedType marks a column whose declared type has no host-side
// representation. Such columns are hidden from resolved schemas rather than
// failing the whole table.
var ErrUnsupportedType = errors.New("unsupported column type")

// TypeClass partitions resolved types by coercion behavior. The codec and
// validator dispatch on the class, not on the raw type name.
type TypeClass int

const (
	ClassBoolean TypeClass = iota
	ClassInteger
	ClassFloat
	ClassDecimal
	ClassString
	ClassBinary
	ClassDate
	ClassTime
	ClassDatetime  // zone-less wall-clock instant
	ClassTimestamp // zoned instant, normalized to UTC
	ClassJSON
)

func (c TypeClass) String() string {
	switch c {
	case ClassBoolean:
		return "boolean"
	case ClassInteger:
		return "integer"
	case ClassFloat:
		return "float"
	case ClassDecimal:
		return "decimal"
	case ClassString:
		return "string"
	case ClassBinary:
		return "binary"
	case ClassDate:
		return "date"
	case ClassTime:
		return "time"
	case ClassDatetime:
		return "datetime"
	case ClassTimestamp:
		return "timestamp"
	case ClassJSON:
		return "json"
	}
	return "unknown"
}

// intBounds is the inclusive value domain of a fixed-width integer column.
// The Arrow storage type may be wider than the domain (unsigned remote types
// widen into the next signed host type), so bounds travel separately.
type intBounds struct {
	Min int64
	Max uint64
}

func (b intBounds) contains(v int64) bool {
	if v < b.Min {
		return false
	}
	if v < 0 {
		return true
	}
	return uint64(v) <= b.Max
}

func (b intBounds) containsUint(v uint64) bool {
	return b.Min <= 0 && v <= b.Max
}

// TypeDescriptor is the resolved form of one remote column: the Arrow field
// the host engine sees plus everything the coercion engine needs to validate
// and encode values for that column.
type TypeDescriptor struct {
	Class TypeClass
	Field arrow.Field

	// Bounds is the value domain for ClassInteger columns.
	Bounds intBounds
	// Precision and Scale describe ClassDecimal columns.
	Precision int32
	Scale     int32
	// FracDigits is the declared fractional-seconds precision for the
	// temporal classes.
	FracDigits int
	// Length is the declared character length tier for bounded strings;
	// zero means unbounded.
	Length int64
}

// Name returns the column name the descriptor was resolved for.
func (d TypeDescriptor) Name() string { return d.Field.Name }

// typeInfo is the column-independent part of a resolution. It is what the
// mapping cache stores: one entry per distinct declared type, shared across
// columns.
type typeInfo struct {
	class      TypeClass
	dtype      arrow.DataType
	nullable   bool
	bounds     intBounds
	precision  int32
	scale      int32
	fracDigits int
	length     int64
	meta       map[string]string
}

func (info typeInfo) descriptor(columnName string) TypeDescriptor {
	md := make(map[string]string, len(info.meta)+1)
	for k, v := range info.meta {
		md[k] = v
	}
	md[MetaKeyColumnName] = columnName
	return TypeDescriptor{
		Class: info.class,
		Field: arrow.Field{
			Name:     columnName,
			Type:     info.dtype,
			Nullable: info.nullable,
			Metadata: arrow.MetadataFrom(md),
		},
		Bounds:     info.bounds,
		Precision:  info.precision,
		Scale:      info.scale,
		FracDigits: info.fracDigits,
		Length:     info.length,
	}
}

// timeUnitForPrecision picks the narrowest Arrow unit able to hold p
// fractional digits. p is clamped to nanoseconds.
func timeUnitForPrecision(p int) arrow.TimeUnit {
	if p > 9 {
		p = 9
	}
	if p < 0 {
		p = 0
	}
	return arrow.TimeUnit((p + 2) / 3)
}

const (
	// DecimalMaxPrecision is the largest declarable decimal precision.
	// Columns declared wider have no host representation.
	DecimalMaxPrecision = 38
	// TimestampMaxPrecision caps fractional seconds for the temporal types.
	TimestampMaxPrecision = 9

	// Bounded character length tiers. A declared length is rounded up to
	// the smallest tier that holds it; lengths beyond the last tier resolve
	// to the unbounded string type.
	varcharTierSmall  = 255
	varcharTierMedium = 65535
	varcharTierLarge  = 16777215
)

// varcharTier rounds a declared length up to its storage tier. Zero or
// negative lengths, and lengths beyond the largest tier, mean unbounded.
func varcharTier(declared int) int64 {
	switch {
	case declared <= 0:
		return 0
	case declared <= varcharTierSmall:
		return varcharTierSmall
	case declared <= varcharTierMedium:
		return varcharTierMedium
	case declared <= varcharTierLarge:
		return varcharTierLarge
	default:
		return 0
	}
}

// resolvePolicy produces the column-independent resolution of one parsed
// signature, or ErrUnsupportedType.
type resolvePolicy func(sig TypeSignature) (typeInfo, error)

func integerPolicy(signedType, unsignedType arrow.DataType, signedBounds, unsignedBounds intBounds) resolvePolicy {
	return func(sig TypeSignature) (typeInfo, error) {
		info := typeInfo{class: ClassInteger, dtype: signedType, bounds: signedBounds}
		if sig.Unsigned {
			info.dtype = unsignedType
			info.bounds = unsignedBounds
		}
		return info, nil
	}
}

func fixedPolicy(class TypeClass, dtype arrow.DataType) resolvePolicy {
	return func(TypeSignature) (typeInfo, error) {
		return typeInfo{class: class, dtype: dtype}, nil
	}
}

func stringPolicy(sig TypeSignature) (typeInfo, error) {
	info := typeInfo{class: ClassString, dtype: arrow.BinaryTypes.String}
	info.length = varcharTier(sig.Param(0, 0))
	if info.length > 0 {
		info.meta = map[string]string{MetaKeyLength: strconv.FormatInt(info.length, 10)}
	}
	return info, nil
}

func decimalPolicy(sig TypeSignature) (typeInfo, error) {
	precision := sig.Param(0, 38)
	scale := sig.Param(1, 0)
	if precision > DecimalMaxPrecision {
		return typeInfo{}, fmt.Errorf("%w: decimal precision %d exceeds %d", ErrUnsupportedType, precision, DecimalMaxPrecision)
	}
	if precision < 1 || scale < 0 || scale > precision {
		return typeInfo{}, fmt.Errorf("invalid decimal precision/scale (%d, %d)", precision, scale)
	}
	dtype, err := arrow.NarrowestDecimalType(int32(precision), int32(scale))
	if err != nil {
		return typeInfo{}, fmt.Errorf("invalid decimal precision/scale (%d, %d): %w", precision, scale, err)
	}
	return typeInfo{
		class:     ClassDecimal,
		dtype:     dtype,
		precision: int32(precision),
		scale:     int32(scale),
		meta: map[string]string{
			MetaKeyPrecision: strconv.Itoa(precision),
			MetaKeyScale:     strconv.Itoa(scale),
		},
	}, nil
}

func timePolicy(sig TypeSignature) (typeInfo, error) {
	p := sig.Param(0, 0)
	if p > TimestampMaxPrecision {
		return typeInfo{}, fmt.Errorf("%w: time precision %d exceeds %d", ErrUnsupportedType, p, TimestampMaxPrecision)
	}
	unit := timeUnitForPrecision(p)
	var dtype arrow.DataType
	if unit == arrow.Second || unit == arrow.Millisecond {
		dtype = &arrow.Time32Type{Unit: unit}
	} else {
		dtype = &arrow.Time64Type{Unit: unit}
	}
	return typeInfo{
		class:      ClassTime,
		dtype:      dtype,
		fracDigits: p,
		meta:       map[string]string{MetaKeyFractionalSecondsPrecision: strconv.Itoa(p)},
	}, nil
}

func timestampPolicy(class TypeClass, defaultPrecision int) resolvePolicy {
	return func(sig TypeSignature) (typeInfo, error) {
		p := sig.Param(0, defaultPrecision)
		if p > TimestampMaxPrecision {
			return typeInfo{}, fmt.Errorf("%w: timestamp precision %d exceeds %d", ErrUnsupportedType, p, TimestampMaxPrecision)
		}
		ts := &arrow.TimestampType{Unit: timeUnitForPrecision(p)}
		if class == ClassTimestamp {
			// Remote zoned instants are always rendered in UTC.
			ts.TimeZone = "UTC"
		}
		return typeInfo{
			class:      class,
			dtype:      ts,
			fracDigits: p,
			meta:       map[string]string{MetaKeyFractionalSecondsPrecision: strconv.Itoa(p)},
		}, nil
	}
}

func jsonPolicy(TypeSignature) (typeInfo, error) {
	jsonType, err := extensions.NewJSONType(arrow.BinaryTypes.String)
	if err != nil {
		return typeInfo{}, err
	}
	return typeInfo{class: ClassJSON, dtype: jsonType}, nil
}

// typePolicies is the coercion policy table: every declared base type name
// the connector understands, mapped to its resolution rule. Names absent
// from the table are unsupported and hidden from resolved schemas.
var typePolicies = map[string]resolvePolicy{
	"boolean": fixedPolicy(ClassBoolean, arrow.FixedWidthTypes.Boolean),
	"bool":    fixedPolicy(ClassBoolean, arrow.FixedWidthTypes.Boolean),

	"tinyint": integerPolicy(
		arrow.PrimitiveTypes.Int8, arrow.PrimitiveTypes.Int16,
		intBounds{Min: -128, Max: 127}, intBounds{Min: 0, Max: 255}),
	"int8": integerPolicy(
		arrow.PrimitiveTypes.Int8, arrow.PrimitiveTypes.Int16,
		intBounds{Min: -128, Max: 127}, intBounds{Min: 0, Max: 255}),
	"smallint": integerPolicy(
		arrow.PrimitiveTypes.Int16, arrow.PrimitiveTypes.Int32,
		intBounds{Min: -32768, Max: 32767}, intBounds{Min: 0, Max: 65535}),
	"int16": integerPolicy(
		arrow.PrimitiveTypes.Int16, arrow.PrimitiveTypes.Int32,
		intBounds{Min: -32768, Max: 32767}, intBounds{Min: 0, Max: 65535}),
	"int": integerPolicy(
		arrow.PrimitiveTypes.Int32, arrow.PrimitiveTypes.Int64,
		intBounds{Min: -2147483648, Max: 2147483647}, intBounds{Min: 0, Max: 4294967295}),
	"integer": integerPolicy(
		arrow.PrimitiveTypes.Int32, arrow.PrimitiveTypes.Int64,
		intBounds{Min: -2147483648, Max: 2147483647}, intBounds{Min: 0, Max: 4294967295}),
	"int32": integerPolicy(
		arrow.PrimitiveTypes.Int32, arrow.PrimitiveTypes.Int64,
		intBounds{Min: -2147483648, Max: 2147483647}, intBounds{Min: 0, Max: 4294967295}),
	"bigint":  bigintPolicy,
	"int64":   bigintPolicy,
	"float":   fixedPolicy(ClassFloat, arrow.PrimitiveTypes.Float32),
	"float32": fixedPolicy(ClassFloat, arrow.PrimitiveTypes.Float32),
	"real":    fixedPolicy(ClassFloat, arrow.PrimitiveTypes.Float32),
	"double":  fixedPolicy(ClassFloat, arrow.PrimitiveTypes.Float64),
	"float64": fixedPolicy(ClassFloat, arrow.PrimitiveTypes.Float64),

	"decimal": decimalPolicy,
	"numeric": decimalPolicy,

	"char":    stringPolicy,
	"varchar": stringPolicy,
	"string":  stringPolicy,
	"text":    stringPolicy,

	"binary":    fixedPolicy(ClassBinary, arrow.BinaryTypes.Binary),
	"varbinary": fixedPolicy(ClassBinary, arrow.BinaryTypes.Binary),
	"blob":      fixedPolicy(ClassBinary, arrow.BinaryTypes.Binary),

	"date":      fixedPolicy(ClassDate, arrow.FixedWidthTypes.Date32),
	"time":      timePolicy,
	"datetime":  timestampPolicy(ClassDatetime, 0),
	"timestamp": timestampPolicy(ClassTimestamp, 0),

	"json":    jsonPolicy,
	"variant": jsonPolicy,
}

// bigintPolicy widens the unsigned form into a 20-digit decimal since no
// signed 64-bit host type can hold the full [0, 2^64-1] domain.
func bigintPolicy(sig TypeSignature) (typeInfo, error) {
	if !sig.Unsigned {
		return typeInfo{
			class:  ClassInteger,
			dtype:  arrow.PrimitiveTypes.Int64,
			bounds: intBounds{Min: -9223372036854775808, Max: 9223372036854775807},
		}, nil
	}
	return typeInfo{
		class:     ClassDecimal,
		dtype:     &arrow.Decimal128Type{Precision: 20, Scale: 0},
		precision: 20,
		scale:     0,
		meta: map[string]string{
			MetaKeyPrecision: "20",
			MetaKeyScale:     "0",
		},
	}, nil
}

// Resolver turns remote column declarations into type descriptors. The zero
// value is not usable; construct one with NewResolver.
type Resolver struct {
	helper *ErrorHelper
}

func NewResolver(helper *ErrorHelper) *Resolver {
	return &Resolver{helper: helper}
}

// Resolve maps one column declaration to its descriptor. Unsupported
// declarations return an error wrapping ErrUnsupportedType; callers building
// schemas hide those columns instead of failing.
func (r *Resolver) Resolve(columnName, declared string) (TypeDescriptor, error) {
	info, err := r.resolveInfo(declared)
	if err != nil {
		return TypeDescriptor{}, err
	}
	return info.descriptor(columnName), nil
}

func (r *Resolver) resolveInfo(declared string) (typeInfo, error) {
	sig, err := ParseTypeSignature(declared)
	if err != nil {
		return typeInfo{}, r.helper.InvalidArgument("%s", err.Error())
	}
	policy, ok := typePolicies[sig.Name]
	if !ok {
		return typeInfo{}, fmt.Errorf("%w: %s", ErrUnsupportedType, sig.Name)
	}
	info, err := policy(sig)
	if err != nil {
		if errors.Is(err, ErrUnsupportedType) {
			return typeInfo{}, err
		}
		return typeInfo{}, r.helper.InvalidArgument("%s", err.Error())
	}
	info.nullable = sig.Nullable
	if info.meta == nil {
		info.meta = map[string]string{}
	}
	info.meta[MetaKeyDatabaseTypeName] = sig.String()
	return info, nil
}

// MappingCache memoizes declaration resolution per connection. Resolution is
// deterministic, so concurrent first lookups of the same declaration may
// both compute; the cache keeps whichever lands and the results are
// identical.
type MappingCache struct {
	resolver *Resolver
	entries  sync.Map // declared string -> typeInfo
}

func NewMappingCache(resolver *Resolver) *MappingCache {
	return &MappingCache{resolver: resolver}
}

// Resolve behaves like Resolver.Resolve but reuses prior resolutions of the
// same declared type text. Errors are not cached.
func (c *MappingCache) Resolve(columnName, declared string) (TypeDescriptor, error) {
	if cached, ok := c.entries.Load(declared); ok {
		return cached.(typeInfo).descriptor(columnName), nil
	}
	info, err := c.resolver.resolveInfo(declared)
	if err != nil {
		return TypeDescriptor{}, err
	}
	c.entries.Store(declared, info)
	return info.descriptor(columnName), nil
}

// Invalidate drops every cached resolution, forcing recomputation on next
// use. Safe to call concurrently with Resolve.
func (c *MappingCache) Invalidate() {
	c.entries.Range(func(key, _ any) bool {
		c.entries.Delete(key)
		return true
	})
}
