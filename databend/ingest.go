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
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// StageWriterProps holds properties for the Parquet files staged before
// COPY INTO.
type StageWriterProps struct {
	// A target file size in bytes.
	MaxBytes           int64
	ParquetWriterProps *parquet.WriterProperties
	ArrowWriterProps   pqarrow.ArrowWriterProperties
}

type IngestOptions struct {
	// The table to ingest data into.
	TableName  string
	SchemaName string
	// The ingest mode, one of the adbc.OptionValueIngestMode values.
	Mode string
	// How far to read ahead on the data source.
	ReadDepth int
	// How many parallel Parquet writers to use.
	WriterParallelism int
	// How many parallel stage uploaders to use.
	UploaderParallelism int
	// How many staged buffers to queue at once.
	MaxPendingBuffers int
	WriterProps       StageWriterProps
}

func NewIngestOptions() IngestOptions {
	return IngestOptions{
		Mode:                adbc.OptionValueIngestModeCreate,
		ReadDepth:           5,
		WriterParallelism:   2,
		MaxPendingBuffers:   2,
		UploaderParallelism: 2,
		WriterProps: StageWriterProps{
			MaxBytes:           10 * 1024 * 1024, // 10MiB
			ParquetWriterProps: parquet.NewWriterProperties(),
			ArrowWriterProps:   pqarrow.NewArrowWriterProperties(),
		},
	}
}

// StageSink is an open staging destination accepting serialized bytes.
type StageSink interface {
	io.Closer
	Sink() io.Writer
}

// PendingUpload is a chunk of rows serialized to Parquet under a stage file
// name the manager chose, ready to be put on the stage.
type PendingUpload struct {
	Name string
	Data StageSink
	Rows int64
}

// StagedFile is a file on the stage, ready to be COPY-d into the table.
type StagedFile interface {
	fmt.Stringer
	Rows() int64
}

// Stager is the remote side of the ingest pipeline. The SQL the load needs
// (table DDL, COPY INTO) arrives through Exec already rendered; the stager
// only moves bytes and runs statements.
type Stager interface {
	Exec(ctx context.Context, query string) error
	CreateSink(ctx context.Context, name string) (StageSink, error)
	Upload(ctx context.Context, upload PendingUpload) (StagedFile, error)
	Delete(ctx context.Context, file StagedFile) error
}

// IngestManager drives a staged bulk load: drain the bound data, serialize
// to Parquet chunks, upload them to the user stage under a per-load prefix,
// COPY INTO the table, clean up. The stages run concurrently and the first
// error cancels everything.
type IngestManager struct {
	Stager     Stager
	Statements *StatementBuilder
	Cache      *MappingCache
	DriverName string
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Ctx        context.Context
	Options    IngestOptions
	Data       array.RecordReader

	records    chan arrow.RecordBatch
	loadPrefix string
	fileSeq    atomic.Int64
}

func (im *IngestManager) Close() {
	if im.Data != nil {
		im.Data.Release()
		im.Data = nil
	}
	if im.records != nil {
		for record := range im.records {
			record.Release()
		}
		im.records = nil
	}
}

func (im *IngestManager) Init() error {
	if im.Options.TableName == "" {
		return adbc.Error{
			Msg:  fmt.Sprintf("[%s] Must set %s to ingest data", im.DriverName, adbc.OptionKeyIngestTargetTable),
			Code: adbc.StatusInvalidState,
		}
	} else if im.Data == nil {
		return adbc.Error{
			Msg:  fmt.Sprintf("[%s] Must bind data to ingest", im.DriverName),
			Code: adbc.StatusInvalidState,
		}
	}
	if im.Options.Mode == "" {
		im.Options.Mode = adbc.OptionValueIngestModeCreate
	}
	im.loadPrefix = "_databend_load/" + uuid.NewString()
	return nil
}

// nextStageFile names the next chunk under the load prefix.
func (im *IngestManager) nextStageFile() string {
	return fmt.Sprintf("%s/part-%d.parquet", im.loadPrefix, im.fileSeq.Add(1))
}

func (im *IngestManager) ExecuteIngest() (nrows int64, err error) {
	ctx := im.Ctx
	if im.Tracer != nil {
		var span trace.Span
		ctx, span = im.Tracer.Start(ctx, "ExecuteIngest", trace.WithAttributes(
			attribute.String("db.collection.name", im.Options.TableName),
			attribute.String("db.operation.name", im.Options.Mode),
		))
		defer func() {
			if err != nil {
				span.RecordError(err)
			}
			span.SetAttributes(attribute.Int64("db.response.returned_rows", nrows))
			span.End()
		}()
	}

	schema := im.Data.Schema()
	ddl, err := im.Statements.IngestCreateSQL(im.Options.TableName, schema, im.Cache, im.Options.Mode)
	if err != nil {
		return -1, err
	}
	if ddl != "" {
		if err := im.Stager.Exec(ctx, ddl); err != nil {
			return -1, err
		}
		im.Logger.Debug("prepared target table", "table", im.Options.TableName, "mode", im.Options.Mode)
	}

	g, cancelCtx := errgroup.WithContext(ctx)

	im.records = make(chan arrow.RecordBatch, im.Options.ReadDepth)
	pending := make(chan PendingUpload, im.Options.MaxPendingBuffers)
	staged := make(chan StagedFile, im.Options.MaxPendingBuffers)
	recycleBin := make(chan StagedFile, im.Options.MaxPendingBuffers*2)

	g.Go(func() error { return im.drainSource(cancelCtx) })
	g.Go(func() error { return im.encodeChunks(cancelCtx, schema, pending) })
	g.Go(func() error { return im.uploadChunks(ctx, cancelCtx, pending, staged) })

	var rowsWritten atomic.Int64
	g.Go(func() error { return im.copyStagedFiles(ctx, cancelCtx, staged, recycleBin, &rowsWritten) })
	g.Go(func() error { return im.removeStagedFiles(ctx, recycleBin) })

	err = g.Wait()
	im.Logger.Debug("completed ingest", "err", err)
	return rowsWritten.Load(), err
}

// drainSource reads the bound data into the records channel. Chunking into
// staged files happens downstream, where the compressed size is known.
func (im *IngestManager) drainSource(cancelCtx context.Context) error {
	defer close(im.records)
	for im.Data.Next() {
		select {
		case <-cancelCtx.Done():
			return im.Data.Err()
		default:
		}

		rec := im.Data.Record()
		rec.Retain()
		im.records <- rec
	}

	err := im.Data.Err()
	im.Logger.Debug("drained source", "err", err)
	return err
}

// encodeChunks serializes records into Parquet chunks until the source is
// drained. Each worker names its own stage files.
func (im *IngestManager) encodeChunks(cancelCtx context.Context, schema *arrow.Schema, pending chan<- PendingUpload) error {
	defer close(pending)
	writers, innerCtx := errgroup.WithContext(cancelCtx)
	for range im.Options.WriterParallelism {
		writers.Go(func() error {
			for {
				select {
				case <-innerCtx.Done():
					return nil
				default:
				}

				name := im.nextStageFile()
				sink, err := im.Stager.CreateSink(innerCtx, name)
				if err != nil {
					return err
				}

				rows, bytes, err := im.encodeChunk(schema, sink.Sink())
				if err != nil {
					return errors.Join(err, sink.Close())
				} else if rows == 0 {
					return sink.Close()
				}

				im.Logger.Debug("encoded chunk", "table", im.Options.TableName, "file", name, "rows", rows, "bytes", bytes)
				pending <- PendingUpload{Name: name, Data: sink, Rows: rows}
			}
		})
	}
	err := writers.Wait()
	im.Logger.Debug("encoded all chunks", "err", err)
	return err
}

// encodeChunk writes records into one Parquet chunk until the size target
// is reached or the source is drained.
func (im *IngestManager) encodeChunk(schema *arrow.Schema, sink io.Writer) (int64, int64, error) {
	props := &im.Options.WriterProps
	w, err := pqarrow.NewFileWriter(schema, sink, props.ParquetWriterProps, props.ArrowWriterProps)
	if err != nil {
		return 0, 0, err
	}

	rows := int64(0)
	for record := range im.records {
		n := record.NumRows()
		if n > 0 {
			err = w.Write(record)
		}
		record.Release()
		if err != nil {
			return 0, 0, err
		}
		rows += n
		if w.RowGroupTotalBytesWritten() >= props.MaxBytes {
			break
		}
	}

	if rows == 0 {
		return 0, 0, nil
	}
	if err := w.Close(); err != nil {
		return 0, 0, err
	}
	return rows, w.RowGroupTotalCompressedBytes(), nil
}

// uploadChunks puts encoded chunks onto the stage.
func (im *IngestManager) uploadChunks(ctx, cancelCtx context.Context, pending <-chan PendingUpload, staged chan<- StagedFile) error {
	defer close(staged)
	uploaders, innerCtx := errgroup.WithContext(cancelCtx)
	for range im.Options.UploaderParallelism {
		uploaders.Go(func() (err error) {
			for chunk := range pending {
				defer func() {
					err = errors.Join(err, chunk.Data.Close())
				}()

				select {
				case <-innerCtx.Done():
					im.Logger.Debug("operation canceled", "table", im.Options.TableName)
					return nil
				default:
				}

				file, err := im.Stager.Upload(ctx, chunk)
				if err != nil {
					return err
				}

				staged <- file
				im.Logger.Debug("uploaded file", "table", im.Options.TableName, "dest", file.String(), "rows", chunk.Rows)
			}
			return nil
		})
	}
	err := uploaders.Wait()
	im.Logger.Debug("uploaded all files", "err", err)
	return err
}

// copyStagedFiles loads each staged file into the table with a COPY INTO
// statement, then hands it to cleanup. Files that fail to copy still reach
// the recycle bin so the stage is left clean.
func (im *IngestManager) copyStagedFiles(ctx, cancelCtx context.Context, staged <-chan StagedFile, recycleBin chan<- StagedFile, rowsWritten *atomic.Int64) error {
	defer close(recycleBin)
	defer func() {
		for file := range staged {
			recycleBin <- file
		}
	}()
	for file := range staged {
		select {
		case <-cancelCtx.Done():
			recycleBin <- file
			return nil
		default:
		}

		if err := im.Stager.Exec(ctx, im.Statements.CopyIntoSQL(im.Options.TableName, file.String())); err != nil {
			recycleBin <- file
			im.Logger.Debug("failed to load file", "file", file, "err", err)
			return err
		}

		rowsWritten.Add(file.Rows())
		im.Logger.Debug("loaded file", "table", im.Options.TableName, "file", file, "rows", file.Rows())
		recycleBin <- file
	}
	im.Logger.Debug("loaded all files")
	return nil
}

// removeStagedFiles deletes stage files once copied (or on failure).
func (im *IngestManager) removeStagedFiles(ctx context.Context, recycleBin <-chan StagedFile) error {
	var res error
	for file := range recycleBin {
		im.Logger.Debug("cleaning up file", "table", im.Options.TableName, "file", file)

		if err := im.Stager.Delete(ctx, file); err != nil {
			if res == nil {
				res = err
			}
			im.Logger.Warn("failed to clean up file", "table", im.Options.TableName, "file", file, "err", err)
		}
	}
	im.Logger.Debug("deleted files", "err", res)
	return res
}
