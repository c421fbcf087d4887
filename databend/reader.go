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
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// RowSource is a row-wise result set: column declarations up front, then one
// row of host values per Next call, io.EOF at the end.
type RowSource interface {
	io.Closer
	Columns(ctx context.Context) ([]ColumnDef, error)
	Next(ctx context.Context) ([]any, error)
}

// RecordReader pivots a RowSource into an array.RecordReader, resolving the
// source's columns through the mapping cache and coercing every value on the
// way into the builders. Columns with unsupported types are dropped from the
// stream.
type RecordReader struct {
	refCount int64
	ctx      context.Context
	cache    *MappingCache
	codec    *Codec
	logger   *slog.Logger

	batchSize int64
	source    RowSource

	descs   []TypeDescriptor
	visible []int // indices into source rows, parallel to descs
	builder *array.RecordBuilder

	record arrow.Record
	err    error
	done   bool
}

// NewRecordReader resolves the source's columns and prepares batch
// assembly. batchSize <= 0 selects the default of 65536 rows.
func NewRecordReader(ctx context.Context, alloc memory.Allocator, cache *MappingCache, codec *Codec, logger *slog.Logger, source RowSource, batchSize int64) (*RecordReader, error) {
	if batchSize <= 0 {
		batchSize = 65536
	}
	if logger == nil {
		logger = slog.Default()
	}

	columns, err := source.Columns(ctx)
	if err != nil {
		return nil, errors.Join(err, source.Close())
	}

	rr := &RecordReader{
		refCount:  1,
		ctx:       ctx,
		cache:     cache,
		codec:     codec,
		logger:    logger,
		batchSize: batchSize,
		source:    source,
	}
	for i, col := range columns {
		desc, err := cache.Resolve(col.Name, col.Type)
		if err != nil {
			if errors.Is(err, ErrUnsupportedType) {
				logger.Debug("hiding unsupported column", "column", col.Name, "type", col.Type)
				continue
			}
			return nil, errors.Join(err, source.Close())
		}
		rr.descs = append(rr.descs, desc)
		rr.visible = append(rr.visible, i)
	}

	rr.builder = array.NewRecordBuilder(alloc, SchemaFromDescriptors(rr.descs))
	return rr, nil
}

func (rr *RecordReader) close() {
	if rr.record != nil {
		rr.record.Release()
		rr.record = nil
	}
	if rr.builder != nil {
		rr.builder.Release()
		rr.builder = nil
	}
	if rr.source != nil {
		if err := rr.source.Close(); err != nil {
			rr.err = errors.Join(rr.err, err)
		}
		rr.source = nil
	}
}

func (rr *RecordReader) Next() bool {
	if rr.source == nil || rr.err != nil {
		return false
	}
	if rr.record != nil {
		rr.record.Release()
		rr.record = nil
	}
	if rr.done {
		rr.close()
		return false
	}

	rows := int64(0)
	for rows < rr.batchSize {
		row, err := rr.source.Next(rr.ctx)
		if err == io.EOF {
			rr.done = true
			break
		} else if err != nil {
			rr.err = err
			return false
		}

		for i, desc := range rr.descs {
			idx := rr.visible[i]
			if idx >= len(row) {
				rr.err = rr.codec.helper.InvalidData("row has %d values, column '%s' expects index %d", len(row), desc.Name(), idx)
				return false
			}
			if err := rr.codec.Append(rr.builder.Field(i), desc, row[idx]); err != nil {
				rr.err = err
				return false
			}
		}
		rows++
	}

	rr.record = rr.builder.NewRecord()
	if rows == 0 && rr.done {
		rr.close()
	}
	return rows > 0
}

func (rr *RecordReader) Release() {
	if atomic.AddInt64(&rr.refCount, -1) == 0 {
		rr.close()
	}
}

func (rr *RecordReader) Retain() {
	atomic.AddInt64(&rr.refCount, 1)
}

func (rr *RecordReader) Schema() *arrow.Schema {
	return SchemaFromDescriptors(rr.descs)
}

func (rr *RecordReader) Record() arrow.Record {
	return rr.record
}

func (rr *RecordReader) RecordBatch() arrow.RecordBatch {
	return rr.record
}

func (rr *RecordReader) Err() error {
	return rr.err
}
