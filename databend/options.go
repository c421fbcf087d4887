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
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const defaultBatchSize = 65536

// Config holds the connector's tunables. Build one with NewConfig and
// Option values; the zero value is not usable.
type Config struct {
	driverName string
	uri        string
	username   string
	password   string
	batchSize   int64
	sessionZone *time.Location
	alloc       memory.Allocator
	logger      *slog.Logger
	tracer      trace.Tracer
	ingest      IngestOptions
}

// Option configures the connector (URI, credentials, batch size…).
type Option func(*Config)

// WithURI sets the connection URI.
func WithURI(uri string) Option {
	return func(c *Config) { c.uri = uri }
}

// WithCredentials sets the username and password injected into the DSN.
func WithCredentials(username, password string) Option {
	return func(c *Config) {
		c.username = username
		c.password = password
	}
}

// WithBatchSize sets the target rows per Arrow batch on result streams.
func WithBatchSize(n int64) Option {
	return func(c *Config) { c.batchSize = n }
}

// WithSessionZone sets the session time zone. Zone-less literals bound to
// zoned timestamp columns are interpreted in this zone; the default is UTC.
func WithSessionZone(zone *time.Location) Option {
	return func(c *Config) { c.sessionZone = zone }
}

// WithAllocator sets the Arrow allocator.
func WithAllocator(alloc memory.Allocator) Option {
	return func(c *Config) { c.alloc = alloc }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.logger = logger }
}

// WithTracer sets the tracer used for ingest spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Config) { c.tracer = tracer }
}

// WithIngestOptions replaces the staged-ingest tunables.
func WithIngestOptions(opts IngestOptions) Option {
	return func(c *Config) { c.ingest = opts }
}

// NewConfig builds a Config with defaults applied before the options.
func NewConfig(opts ...Option) *Config {
	c := &Config{
		driverName:  "databend",
		batchSize:   defaultBatchSize,
		sessionZone: time.UTC,
		alloc:       memory.DefaultAllocator,
		logger:      slog.Default(),
		tracer:      noop.NewTracerProvider().Tracer("databend"),
		ingest:      NewIngestOptions(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Engine bundles the coercion machinery a connector needs: one resolver and
// mapping cache, one codec, one statement builder, all sharing the error
// helper.
type Engine struct {
	Helper     *ErrorHelper
	Resolver   *Resolver
	Cache      *MappingCache
	Codec      *Codec
	Statements *StatementBuilder

	config *Config
}

// NewEngine wires the coercion engine from a Config.
func NewEngine(config *Config) *Engine {
	helper := &ErrorHelper{DriverName: config.driverName}
	resolver := NewResolver(helper)
	codec := NewCodec(helper, config.sessionZone)
	return &Engine{
		Helper:     helper,
		Resolver:   resolver,
		Cache:      NewMappingCache(resolver),
		Codec:      codec,
		Statements: NewStatementBuilder(helper, codec),
		config:     config,
	}
}

// Reader pivots a row source into an Arrow stream using the engine's cache
// and codec.
func (e *Engine) Reader(ctx context.Context, source RowSource) (*RecordReader, error) {
	return NewRecordReader(ctx, e.config.alloc, e.Cache, e.Codec, e.config.logger, source, e.config.batchSize)
}

// NewIngestManager assembles an ingest run from the engine's config. The
// caller owns calling ExecuteIngest and Close.
func (e *Engine) NewIngestManager(ctx context.Context, stager Stager, data array.RecordReader, tableName string) (*IngestManager, error) {
	opts := e.config.ingest
	opts.TableName = tableName
	im := &IngestManager{
		Stager:     stager,
		Statements: e.Statements,
		Cache:      e.Cache,
		DriverName: e.config.driverName,
		Logger:     e.config.logger,
		Tracer:     e.config.tracer,
		Ctx:        ctx,
		Options:    opts,
		Data:       data,
	}
	if err := im.Init(); err != nil {
		return nil, err
	}
	return im, nil
}
