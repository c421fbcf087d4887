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

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/extensions"
)

// declarationForField maps an Arrow field with no remote declaration back to
// a declared type, for creating tables from host-provided schemas. Unsigned
// host types declare the remote unsigned form of the same width; the
// resolver then widens them again on read.
func declarationForField(field arrow.Field) (string, error) {
	switch t := field.Type.(type) {
	case *arrow.BooleanType:
		return "boolean", nil
	case *arrow.Int8Type:
		return "tinyint", nil
	case *arrow.Int16Type:
		return "smallint", nil
	case *arrow.Int32Type:
		return "int", nil
	case *arrow.Int64Type:
		return "bigint", nil
	case *arrow.Uint8Type:
		return "tinyint unsigned", nil
	case *arrow.Uint16Type:
		return "smallint unsigned", nil
	case *arrow.Uint32Type:
		return "int unsigned", nil
	case *arrow.Uint64Type:
		return "bigint unsigned", nil
	case *arrow.Float32Type:
		return "float", nil
	case *arrow.Float64Type:
		return "double", nil
	case *arrow.StringType, *arrow.LargeStringType, *arrow.StringViewType:
		return "varchar", nil
	case *arrow.BinaryType, *arrow.LargeBinaryType, *arrow.BinaryViewType, *arrow.FixedSizeBinaryType:
		return "binary", nil
	case *arrow.Date32Type, *arrow.Date64Type:
		return "date", nil
	case *arrow.Time32Type:
		return fmt.Sprintf("time(%d)", 3*int(t.Unit)), nil
	case *arrow.Time64Type:
		return fmt.Sprintf("time(%d)", 3*int(t.Unit)), nil
	case *arrow.TimestampType:
		p := 3 * int(t.Unit)
		if t.TimeZone == "" {
			return fmt.Sprintf("datetime(%d)", p), nil
		}
		return fmt.Sprintf("timestamp(%d)", p), nil
	case *arrow.Decimal32Type:
		return fmt.Sprintf("decimal(%d, %d)", t.Precision, t.Scale), nil
	case *arrow.Decimal64Type:
		return fmt.Sprintf("decimal(%d, %d)", t.Precision, t.Scale), nil
	case *arrow.Decimal128Type:
		return fmt.Sprintf("decimal(%d, %d)", t.Precision, t.Scale), nil
	case *arrow.Decimal256Type:
		if t.Precision > DecimalMaxPrecision {
			return "", fmt.Errorf("decimal precision %d exceeds %d", t.Precision, DecimalMaxPrecision)
		}
		return fmt.Sprintf("decimal(%d, %d)", t.Precision, t.Scale), nil
	case *extensions.JSONType:
		return "json", nil
	}
	return "", fmt.Errorf("no declared type for Arrow type %s", field.Type)
}

// StatementBuilder generates DDL and DML text from resolved descriptors.
type StatementBuilder struct {
	helper *ErrorHelper
	codec  *Codec
}

func NewStatementBuilder(helper *ErrorHelper, codec *Codec) *StatementBuilder {
	return &StatementBuilder{helper: helper, codec: codec}
}

// quoteIdentifier backtick-quotes an identifier, doubling embedded
// backticks.
func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// columnDDL renders one column definition from its descriptor. The declared
// type recorded at resolution time round-trips verbatim.
func columnDDL(desc TypeDescriptor) string {
	var sb strings.Builder
	sb.WriteString(quoteIdentifier(desc.Name()))
	sb.WriteByte(' ')
	sb.WriteString(desc.typeName())
	if desc.Field.Nullable {
		sb.WriteString(" NULL")
	} else {
		sb.WriteString(" NOT NULL")
	}
	return sb.String()
}

func (s *StatementBuilder) createTableSQL(verb, table string, descs []TypeDescriptor) (string, error) {
	if len(descs) == 0 {
		return "", s.helper.InvalidArgument("cannot create table %s with no columns", table)
	}
	cols := make([]string, len(descs))
	for i, desc := range descs {
		cols[i] = columnDDL(desc)
	}
	return fmt.Sprintf("%s %s (%s)", verb, quoteIdentifier(table), strings.Join(cols, ", ")), nil
}

// CreateTableSQL renders a CREATE TABLE statement for the resolved columns.
func (s *StatementBuilder) CreateTableSQL(table string, descs []TypeDescriptor) (string, error) {
	return s.createTableSQL("CREATE TABLE", table, descs)
}

// CreateTableFromSchema renders CREATE TABLE DDL for a host-provided Arrow
// schema, resolving each field back through the mapping cache so the
// created columns round-trip to the same descriptors.
func (s *StatementBuilder) CreateTableFromSchema(table string, schema *arrow.Schema, cache *MappingCache) (string, error) {
	descs, err := DescriptorsFromSchema(schema, cache, s.helper)
	if err != nil {
		return "", err
	}
	return s.CreateTableSQL(table, descs)
}

// IngestCreateSQL renders the DDL an ingest mode needs before loading into
// table: a plain create, an idempotent create, or a full replace. Append
// mode needs none and returns the empty string.
func (s *StatementBuilder) IngestCreateSQL(table string, schema *arrow.Schema, cache *MappingCache, mode string) (string, error) {
	var verb string
	switch mode {
	case adbc.OptionValueIngestModeCreate:
		verb = "CREATE TABLE"
	case adbc.OptionValueIngestModeCreateAppend:
		verb = "CREATE TABLE IF NOT EXISTS"
	case adbc.OptionValueIngestModeReplace:
		verb = "CREATE OR REPLACE TABLE"
	case adbc.OptionValueIngestModeAppend:
		return "", nil
	default:
		return "", s.helper.InvalidArgument("unknown ingest mode %q", mode)
	}
	descs, err := DescriptorsFromSchema(schema, cache, s.helper)
	if err != nil {
		return "", err
	}
	return s.createTableSQL(verb, table, descs)
}

// CopyIntoSQL renders the COPY INTO statement loading one staged Parquet
// file from the user stage into table.
func (s *StatementBuilder) CopyIntoSQL(table, stageFile string) string {
	return fmt.Sprintf("COPY INTO %s FROM @~ FILES = ('%s') FILE_FORMAT = (TYPE = PARQUET)",
		quoteIdentifier(table), strings.ReplaceAll(stageFile, "'", "''"))
}

// DropTableSQL renders a DROP TABLE IF EXISTS statement.
func (s *StatementBuilder) DropTableSQL(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdentifier(table))
}

// InsertSQL renders a multi-row INSERT statement. Every value goes through
// the literal pipeline, so rejects carry per-column diagnostics.
func (s *StatementBuilder) InsertSQL(table string, descs []TypeDescriptor, rows [][]any) (string, error) {
	if len(rows) == 0 {
		return "", s.helper.InvalidArgument("no rows to insert into %s", table)
	}
	names := make([]string, len(descs))
	for i, desc := range descs {
		names[i] = quoteIdentifier(desc.Name())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", quoteIdentifier(table), strings.Join(names, ", "))
	for ri, row := range rows {
		if len(row) != len(descs) {
			return "", s.helper.InvalidArgument("row %d has %d values, want %d", ri, len(row), len(descs))
		}
		if ri > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for ci, val := range row {
			if ci > 0 {
				sb.WriteString(", ")
			}
			lit, err := s.codec.Literal(descs[ci], val)
			if err != nil {
				return "", err
			}
			sb.WriteString(lit)
		}
		sb.WriteByte(')')
	}
	return sb.String(), nil
}

// CreateTableAsSQL renders a CTAS statement whose SELECT carries the same
// literals InsertSQL would emit, so both paths store identical values.
func (s *StatementBuilder) CreateTableAsSQL(table string, descs []TypeDescriptor, rows [][]any) (string, error) {
	if len(rows) == 0 {
		return "", s.helper.InvalidArgument("no rows for CTAS into %s", table)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s AS ", quoteIdentifier(table))
	for ri, row := range rows {
		if len(row) != len(descs) {
			return "", s.helper.InvalidArgument("row %d has %d values, want %d", ri, len(row), len(descs))
		}
		if ri > 0 {
			sb.WriteString(" UNION ALL ")
		}
		sb.WriteString("SELECT ")
		for ci, val := range row {
			if ci > 0 {
				sb.WriteString(", ")
			}
			lit, err := s.codec.Literal(descs[ci], val)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&sb, "CAST(%s AS %s) AS %s", lit, descs[ci].typeName(), quoteIdentifier(descs[ci].Name()))
		}
	}
	return sb.String(), nil
}
