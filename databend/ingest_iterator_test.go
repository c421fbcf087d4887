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

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildIntStringBatch(t *testing.T, mem memory.Allocator, schema *arrow.Schema, start, n int) arrow.RecordBatch {
	t.Helper()
	builder := array.NewRecordBuilder(mem, schema)
	defer builder.Release()

	int32Builder := builder.Field(0).(*array.Int32Builder)
	stringBuilder := builder.Field(1).(*array.StringBuilder)
	for i := range n {
		int32Builder.Append(int32(start + i))
		stringBuilder.Append("value" + string(rune('0'+start+i)))
	}
	return builder.NewRecordBatch()
}

func TestRowBufferIteratorInit(t *testing.T) {
	engine := newTestEngine()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "int32", Type: arrow.PrimitiveTypes.Int32},
	}, nil)

	t.Run("nil reader", func(t *testing.T) {
		_, err := NewRowBufferIterator(nil, 10, engine.Codec)
		assert.ErrorContains(t, err, "reader cannot be nil")
	})

	t.Run("invalid batch size", func(t *testing.T) {
		reader, err := array.NewRecordReader(schema, []arrow.RecordBatch{})
		require.NoError(t, err)
		defer reader.Release()

		_, err = NewRowBufferIterator(reader, 0, engine.Codec)
		assert.ErrorContains(t, err, "batchSize must be positive")

		_, err = NewRowBufferIterator(reader, -1, engine.Codec)
		assert.ErrorContains(t, err, "batchSize must be positive")
	})

	t.Run("empty reader", func(t *testing.T) {
		reader, err := array.NewRecordReader(schema, []arrow.RecordBatch{})
		require.NoError(t, err)
		defer reader.Release()

		iter, err := NewRowBufferIterator(reader, 10, engine.Codec)
		require.NoError(t, err)
		assert.False(t, iter.Next())
		assert.NoError(t, iter.Err())
	})
}

func TestRowBufferIteratorSingleBatch(t *testing.T) {
	engine := newTestEngine()
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "int32", Type: arrow.PrimitiveTypes.Int32},
		{Name: "string", Type: arrow.BinaryTypes.String},
	}, nil)

	rec := buildIntStringBatch(t, mem, schema, 0, 5)
	defer rec.Release()

	reader, err := array.NewRecordReader(schema, []arrow.RecordBatch{rec})
	require.NoError(t, err)
	defer reader.Release()

	iter, err := NewRowBufferIterator(reader, 10, engine.Codec)
	require.NoError(t, err)

	assert.True(t, iter.Next())
	buffer, rowCount := iter.CurrentBatch()
	assert.Equal(t, 5, rowCount)
	assert.Len(t, buffer, 10)

	assert.Equal(t, int32(0), buffer[0])
	assert.Equal(t, "value0", buffer[1])
	assert.Equal(t, int32(4), buffer[8])
	assert.Equal(t, "value4", buffer[9])

	rows := iter.Rows()
	require.Len(t, rows, 5)
	assert.Equal(t, []any{int32(2), "value2"}, rows[2])

	assert.False(t, iter.Next())
	assert.NoError(t, iter.Err())
}

func TestRowBufferIteratorCrossesBatchBoundaries(t *testing.T) {
	engine := newTestEngine()
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "int32", Type: arrow.PrimitiveTypes.Int32},
		{Name: "string", Type: arrow.BinaryTypes.String},
	}, nil)

	rec1 := buildIntStringBatch(t, mem, schema, 0, 3)
	defer rec1.Release()
	rec2 := buildIntStringBatch(t, mem, schema, 3, 3)
	defer rec2.Release()

	reader, err := array.NewRecordReader(schema, []arrow.RecordBatch{rec1, rec2})
	require.NoError(t, err)
	defer reader.Release()

	// SQL batch of 4 spans the first Arrow batch and part of the second.
	iter, err := NewRowBufferIterator(reader, 4, engine.Codec)
	require.NoError(t, err)
	defer iter.Close()

	assert.True(t, iter.Next())
	_, rowCount := iter.CurrentBatch()
	assert.Equal(t, 4, rowCount)

	assert.True(t, iter.Next())
	buffer, rowCount := iter.CurrentBatch()
	assert.Equal(t, 2, rowCount)
	assert.Equal(t, int32(4), buffer[0])
	assert.Equal(t, int32(5), buffer[2])

	assert.False(t, iter.Next())
	assert.NoError(t, iter.Err())
}

func TestRowBufferIteratorTemporalExtraction(t *testing.T) {
	engine := newTestEngine()
	mem := memory.NewGoAllocator()

	desc := mustResolve(t, engine, "timestamp(6)")
	schema := SchemaFromDescriptors([]TypeDescriptor{desc})

	builder := array.NewRecordBuilder(mem, schema)
	defer builder.Release()
	require.NoError(t, engine.Codec.Append(builder.Field(0), desc, "2020-06-15 12:30:45.123456"))
	rec := builder.NewRecordBatch()
	defer rec.Release()

	reader, err := array.NewRecordReader(schema, []arrow.RecordBatch{rec})
	require.NoError(t, err)
	defer reader.Release()

	iter, err := NewRowBufferIterator(reader, 8, engine.Codec)
	require.NoError(t, err)

	require.True(t, iter.Next())
	rows := iter.Rows()
	require.Len(t, rows, 1)
	// Extraction yields time.Time; the literal path renders it back.
	lit, err := engine.Codec.Literal(desc, rows[0][0])
	require.NoError(t, err)
	assert.Equal(t, "'2020-06-15 12:30:45.123456'", lit)
}
