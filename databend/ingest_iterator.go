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

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// RowBufferIterator accumulates rows from an Arrow RecordReader into
// fixed-size row-major batches of Go values, crossing Arrow batch
// boundaries transparently. INSERT batching consumes these batches.
type RowBufferIterator struct {
	reader          array.RecordReader
	codec           *Codec
	batchSize       int
	numCols         int
	buffer          []any // row-major, batchSize * numCols
	currentSize     int
	currentBatch    arrow.RecordBatch
	currentRow      int
	retainedBatches []arrow.RecordBatch
	done            bool
	err             error
}

// NewRowBufferIterator wraps a reader for batched row extraction. batchSize
// is the target number of rows per emitted batch.
func NewRowBufferIterator(reader array.RecordReader, batchSize int, codec *Codec) (*RowBufferIterator, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader cannot be nil")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batchSize must be positive, got %d", batchSize)
	}

	numCols := len(reader.Schema().Fields())
	return &RowBufferIterator{
		reader:          reader,
		codec:           codec,
		batchSize:       batchSize,
		numCols:         numCols,
		buffer:          make([]any, batchSize*numCols),
		retainedBatches: make([]arrow.RecordBatch, 0, 4),
	}, nil
}

// Next fills the buffer with up to batchSize rows. Returns true while a
// (possibly partial) batch is available.
func (it *RowBufferIterator) Next() bool {
	if it.err != nil || it.done {
		return false
	}

	it.currentSize = 0
	schema := it.reader.Schema()

	newRetainedBatches := make([]arrow.RecordBatch, 0, cap(it.retainedBatches))
	newRetainedSet := make(map[arrow.RecordBatch]bool)
	alreadyRetained := make(map[arrow.RecordBatch]bool)
	for _, batch := range it.retainedBatches {
		alreadyRetained[batch] = true
	}

	for it.currentSize < it.batchSize {
		if it.currentBatch == nil || it.currentRow >= int(it.currentBatch.NumRows()) {
			if !it.advanceArrowBatch() {
				break
			}
		}

		rowsAvailable := int(it.currentBatch.NumRows()) - it.currentRow
		rowsNeeded := it.batchSize - it.currentSize
		rowsToCopy := min(rowsAvailable, rowsNeeded)

		if !newRetainedSet[it.currentBatch] {
			if !alreadyRetained[it.currentBatch] {
				it.currentBatch.Retain()
			}
			newRetainedBatches = append(newRetainedBatches, it.currentBatch)
			newRetainedSet[it.currentBatch] = true
		}

		for colIdx := range it.numCols {
			arr := it.currentBatch.Column(colIdx)
			field := schema.Field(colIdx)

			for i := range rowsToCopy {
				arrowRowIdx := it.currentRow + i
				bufferRowIdx := it.currentSize + i

				value, err := it.codec.Extract(arr, arrowRowIdx, &field)
				if err != nil {
					it.err = fmt.Errorf("failed to extract row %d, col %d (%s): %w",
						arrowRowIdx, colIdx, field.Name, err)
					return false
				}
				it.buffer[bufferRowIdx*it.numCols+colIdx] = value
			}
		}

		it.currentSize += rowsToCopy
		it.currentRow += rowsToCopy
	}

	for _, batch := range it.retainedBatches {
		if !newRetainedSet[batch] {
			batch.Release()
		}
	}
	it.retainedBatches = newRetainedBatches

	return it.currentSize > 0
}

func (it *RowBufferIterator) advanceArrowBatch() bool {
	if !it.reader.Next() {
		if err := it.reader.Err(); err != nil {
			it.err = err
		}
		it.done = true
		return false
	}
	it.currentBatch = it.reader.RecordBatch()
	it.currentRow = 0
	return true
}

// CurrentBatch returns the current row-major batch and its row count. The
// slice is a view into the internal buffer and is overwritten by Next.
func (it *RowBufferIterator) CurrentBatch() (buffer []any, rowCount int) {
	return it.buffer[:it.currentSize*it.numCols], it.currentSize
}

// Rows reshapes the current batch into per-row slices for statement
// building. The inner slices share the internal buffer.
func (it *RowBufferIterator) Rows() [][]any {
	flat, n := it.CurrentBatch()
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = flat[i*it.numCols : (i+1)*it.numCols]
	}
	return rows
}

// Err returns the first error encountered during iteration.
func (it *RowBufferIterator) Err() error {
	return it.err
}

// Close releases retained Arrow batches. Next releases batches as it
// advances, so Close matters mainly on abandoned iterations.
func (it *RowBufferIterator) Close() {
	for _, batch := range it.retainedBatches {
		batch.Release()
	}
	it.retainedBatches = nil
}
