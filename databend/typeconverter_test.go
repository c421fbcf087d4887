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
	"sync"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/extensions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return NewEngine(NewConfig())
}

func TestParseTypeSignature(t *testing.T) {
	t.Run("bare name", func(t *testing.T) {
		sig, err := ParseTypeSignature("BIGINT")
		require.NoError(t, err)
		assert.Equal(t, "bigint", sig.Name)
		assert.Empty(t, sig.Params)
		assert.False(t, sig.Unsigned)
	})

	t.Run("parameters", func(t *testing.T) {
		sig, err := ParseTypeSignature("decimal(20, 5)")
		require.NoError(t, err)
		assert.Equal(t, "decimal", sig.Name)
		assert.Equal(t, []int{20, 5}, sig.Params)
	})

	t.Run("unsigned modifier", func(t *testing.T) {
		sig, err := ParseTypeSignature("TINYINT UNSIGNED")
		require.NoError(t, err)
		assert.Equal(t, "tinyint", sig.Name)
		assert.True(t, sig.Unsigned)
	})

	t.Run("unsigned with params", func(t *testing.T) {
		sig, err := ParseTypeSignature("bigint(20) unsigned")
		require.NoError(t, err)
		assert.Equal(t, "bigint", sig.Name)
		assert.True(t, sig.Unsigned)
		assert.Equal(t, []int{20}, sig.Params)
	})

	t.Run("nullable wrapper", func(t *testing.T) {
		sig, err := ParseTypeSignature("Nullable(Timestamp(3))")
		require.NoError(t, err)
		assert.Equal(t, "timestamp", sig.Name)
		assert.True(t, sig.Nullable)
		assert.Equal(t, []int{3}, sig.Params)
	})

	t.Run("null modifier", func(t *testing.T) {
		sig, err := ParseTypeSignature("varchar(255) NULL")
		require.NoError(t, err)
		assert.True(t, sig.Nullable)

		sig, err = ParseTypeSignature("varchar(255) NOT NULL")
		require.NoError(t, err)
		assert.False(t, sig.Nullable)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := ParseTypeSignature("decimal(20")
		assert.Error(t, err)
		_, err = ParseTypeSignature("")
		assert.Error(t, err)
		_, err = ParseTypeSignature("int banana")
		assert.Error(t, err)
	})
}

func TestResolveIntegerTypes(t *testing.T) {
	engine := newTestEngine()

	tests := []struct {
		declared string
		want     arrow.DataType
		min      int64
		max      uint64
	}{
		{"tinyint", arrow.PrimitiveTypes.Int8, -128, 127},
		{"smallint", arrow.PrimitiveTypes.Int16, -32768, 32767},
		{"int", arrow.PrimitiveTypes.Int32, -2147483648, 2147483647},
		{"integer", arrow.PrimitiveTypes.Int32, -2147483648, 2147483647},
		{"bigint", arrow.PrimitiveTypes.Int64, -9223372036854775808, 9223372036854775807},
		{"tinyint unsigned", arrow.PrimitiveTypes.Int16, 0, 255},
		{"smallint unsigned", arrow.PrimitiveTypes.Int32, 0, 65535},
		{"int unsigned", arrow.PrimitiveTypes.Int64, 0, 4294967295},
	}

	for _, tc := range tests {
		t.Run(tc.declared, func(t *testing.T) {
			desc, err := engine.Resolver.Resolve("c", tc.declared)
			require.NoError(t, err)
			assert.Equal(t, ClassInteger, desc.Class)
			assert.True(t, arrow.TypeEqual(tc.want, desc.Field.Type))
			assert.Equal(t, tc.min, desc.Bounds.Min)
			assert.Equal(t, tc.max, desc.Bounds.Max)
		})
	}

	t.Run("bigint unsigned widens to decimal", func(t *testing.T) {
		desc, err := engine.Resolver.Resolve("c", "bigint unsigned")
		require.NoError(t, err)
		assert.Equal(t, ClassDecimal, desc.Class)
		assert.True(t, arrow.TypeEqual(&arrow.Decimal128Type{Precision: 20, Scale: 0}, desc.Field.Type))
	})
}

func TestResolveVarcharTiers(t *testing.T) {
	engine := newTestEngine()

	tests := []struct {
		declared string
		tier     int64
	}{
		{"varchar(1)", 255},
		{"varchar(255)", 255},
		{"varchar(256)", 65535},
		{"varchar(65535)", 65535},
		{"varchar(65536)", 16777215},
		{"varchar(16777215)", 16777215},
		{"varchar(16777216)", 0},
		{"varchar", 0},
		{"string", 0},
	}

	for _, tc := range tests {
		t.Run(tc.declared, func(t *testing.T) {
			desc, err := engine.Resolver.Resolve("c", tc.declared)
			require.NoError(t, err)
			assert.Equal(t, ClassString, desc.Class)
			assert.True(t, arrow.TypeEqual(arrow.BinaryTypes.String, desc.Field.Type))
			assert.Equal(t, tc.tier, desc.Length)
			if tc.tier > 0 {
				length, ok := desc.Field.Metadata.GetValue(MetaKeyLength)
				assert.True(t, ok)
				assert.NotEmpty(t, length)
			}
		})
	}
}

func TestResolveDecimal(t *testing.T) {
	engine := newTestEngine()

	t.Run("within max precision", func(t *testing.T) {
		desc, err := engine.Resolver.Resolve("c", "decimal(38, 10)")
		require.NoError(t, err)
		assert.Equal(t, ClassDecimal, desc.Class)
		assert.Equal(t, int32(38), desc.Precision)
		assert.Equal(t, int32(10), desc.Scale)
	})

	t.Run("narrow precision gets narrow storage", func(t *testing.T) {
		desc, err := engine.Resolver.Resolve("c", "decimal(5, 2)")
		require.NoError(t, err)
		assert.Equal(t, ClassDecimal, desc.Class)
		dt, ok := desc.Field.Type.(arrow.DecimalType)
		require.True(t, ok)
		assert.Equal(t, int32(5), dt.GetPrecision())
		assert.Equal(t, int32(2), dt.GetScale())
	})

	t.Run("beyond max precision unsupported", func(t *testing.T) {
		_, err := engine.Resolver.Resolve("c", "decimal(50, 0)")
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("invalid scale", func(t *testing.T) {
		_, err := engine.Resolver.Resolve("c", "decimal(5, 9)")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnsupportedType)
	})
}

func TestResolveTemporalTypes(t *testing.T) {
	engine := newTestEngine()

	t.Run("date", func(t *testing.T) {
		desc, err := engine.Resolver.Resolve("c", "date")
		require.NoError(t, err)
		assert.Equal(t, ClassDate, desc.Class)
		assert.True(t, arrow.TypeEqual(arrow.FixedWidthTypes.Date32, desc.Field.Type))
	})

	t.Run("time defaults to seconds", func(t *testing.T) {
		desc, err := engine.Resolver.Resolve("c", "time")
		require.NoError(t, err)
		assert.Equal(t, ClassTime, desc.Class)
		assert.True(t, arrow.TypeEqual(&arrow.Time32Type{Unit: arrow.Second}, desc.Field.Type))
		assert.Equal(t, 0, desc.FracDigits)
	})

	t.Run("time precision picks narrowest unit", func(t *testing.T) {
		for p, want := range map[int]arrow.DataType{
			1: &arrow.Time32Type{Unit: arrow.Millisecond},
			3: &arrow.Time32Type{Unit: arrow.Millisecond},
			4: &arrow.Time64Type{Unit: arrow.Microsecond},
			6: &arrow.Time64Type{Unit: arrow.Microsecond},
			7: &arrow.Time64Type{Unit: arrow.Nanosecond},
			9: &arrow.Time64Type{Unit: arrow.Nanosecond},
		} {
			desc, err := engine.Resolver.Resolve("c", (TypeSignature{Name: "time", Params: []int{p}}).String())
			require.NoError(t, err)
			assert.True(t, arrow.TypeEqual(want, desc.Field.Type), "precision %d", p)
			assert.Equal(t, p, desc.FracDigits)
		}
	})

	t.Run("datetime is zone-less", func(t *testing.T) {
		desc, err := engine.Resolver.Resolve("c", "datetime(6)")
		require.NoError(t, err)
		assert.Equal(t, ClassDatetime, desc.Class)
		ts, ok := desc.Field.Type.(*arrow.TimestampType)
		require.True(t, ok)
		assert.Equal(t, arrow.Microsecond, ts.Unit)
		assert.Empty(t, ts.TimeZone)
	})

	t.Run("timestamp is utc zoned", func(t *testing.T) {
		desc, err := engine.Resolver.Resolve("c", "timestamp(3)")
		require.NoError(t, err)
		assert.Equal(t, ClassTimestamp, desc.Class)
		ts, ok := desc.Field.Type.(*arrow.TimestampType)
		require.True(t, ok)
		assert.Equal(t, arrow.Millisecond, ts.Unit)
		assert.Equal(t, "UTC", ts.TimeZone)
	})

	t.Run("precision beyond nanoseconds unsupported", func(t *testing.T) {
		_, err := engine.Resolver.Resolve("c", "timestamp(12)")
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})
}

func TestResolveOtherTypes(t *testing.T) {
	engine := newTestEngine()

	t.Run("boolean", func(t *testing.T) {
		desc, err := engine.Resolver.Resolve("c", "boolean")
		require.NoError(t, err)
		assert.Equal(t, ClassBoolean, desc.Class)
	})

	t.Run("float is 32-bit", func(t *testing.T) {
		desc, err := engine.Resolver.Resolve("c", "float")
		require.NoError(t, err)
		assert.True(t, arrow.TypeEqual(arrow.PrimitiveTypes.Float32, desc.Field.Type))
	})

	t.Run("double is 64-bit", func(t *testing.T) {
		desc, err := engine.Resolver.Resolve("c", "double")
		require.NoError(t, err)
		assert.True(t, arrow.TypeEqual(arrow.PrimitiveTypes.Float64, desc.Field.Type))
	})

	t.Run("json extension type", func(t *testing.T) {
		for _, declared := range []string{"json", "variant"} {
			desc, err := engine.Resolver.Resolve("c", declared)
			require.NoError(t, err)
			assert.Equal(t, ClassJSON, desc.Class)
			_, ok := desc.Field.Type.(*extensions.JSONType)
			assert.True(t, ok)
		}
	})

	t.Run("unknown type unsupported", func(t *testing.T) {
		_, err := engine.Resolver.Resolve("c", "bitmap")
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("metadata carries declaration and column", func(t *testing.T) {
		desc, err := engine.Resolver.Resolve("total", "decimal(10, 2)")
		require.NoError(t, err)
		name, ok := desc.Field.Metadata.GetValue(MetaKeyColumnName)
		require.True(t, ok)
		assert.Equal(t, "total", name)
		declared, ok := desc.Field.Metadata.GetValue(MetaKeyDatabaseTypeName)
		require.True(t, ok)
		assert.Equal(t, "decimal(10, 2)", declared)
	})

	t.Run("nullability from declaration", func(t *testing.T) {
		desc, err := engine.Resolver.Resolve("c", "int NULL")
		require.NoError(t, err)
		assert.True(t, desc.Field.Nullable)

		desc, err = engine.Resolver.Resolve("c", "int")
		require.NoError(t, err)
		assert.False(t, desc.Field.Nullable)
	})
}

func TestMappingCache(t *testing.T) {
	engine := newTestEngine()

	t.Run("same declaration shared across columns", func(t *testing.T) {
		a, err := engine.Cache.Resolve("a", "decimal(12, 4)")
		require.NoError(t, err)
		b, err := engine.Cache.Resolve("b", "decimal(12, 4)")
		require.NoError(t, err)
		assert.Equal(t, "a", a.Name())
		assert.Equal(t, "b", b.Name())
		assert.True(t, arrow.TypeEqual(a.Field.Type, b.Field.Type))
	})

	t.Run("concurrent resolution is idempotent", func(t *testing.T) {
		cache := NewMappingCache(engine.Resolver)
		var wg sync.WaitGroup
		results := make([]TypeDescriptor, 32)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				desc, err := cache.Resolve("c", "timestamp(6)")
				assert.NoError(t, err)
				results[i] = desc
			}(i)
		}
		wg.Wait()
		for _, desc := range results[1:] {
			assert.True(t, arrow.TypeEqual(results[0].Field.Type, desc.Field.Type))
			assert.Equal(t, results[0].FracDigits, desc.FracDigits)
		}
	})

	t.Run("errors are not cached", func(t *testing.T) {
		cache := NewMappingCache(engine.Resolver)
		_, err := cache.Resolve("c", "bitmap")
		assert.ErrorIs(t, err, ErrUnsupportedType)
		_, err = cache.Resolve("c", "bitmap")
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("invalidate recomputes", func(t *testing.T) {
		cache := NewMappingCache(engine.Resolver)
		before, err := cache.Resolve("c", "int")
		require.NoError(t, err)
		cache.Invalidate()
		after, err := cache.Resolve("c", "int")
		require.NoError(t, err)
		assert.True(t, arrow.TypeEqual(before.Field.Type, after.Field.Type))
	})
}
