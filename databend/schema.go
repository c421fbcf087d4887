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

	"github.com/apache/arrow-go/v18/arrow"
)

// ColumnDef is one column of a remote table as reported by the catalog:
// its name and the declared type text.
type ColumnDef struct {
	Name string
	Type string
}

// ResolveDescriptors resolves a table's columns in declaration order.
// Columns with unsupported types are hidden: they come back in the second
// return value instead of failing the table, so their visible siblings stay
// queryable. Any other resolution failure aborts.
func (c *MappingCache) ResolveDescriptors(columns []ColumnDef) ([]TypeDescriptor, []ColumnDef, error) {
	descs := make([]TypeDescriptor, 0, len(columns))
	var hidden []ColumnDef
	for _, col := range columns {
		desc, err := c.Resolve(col.Name, col.Type)
		if err != nil {
			if errors.Is(err, ErrUnsupportedType) {
				hidden = append(hidden, col)
				continue
			}
			return nil, nil, err
		}
		descs = append(descs, desc)
	}
	return descs, hidden, nil
}

// ResolveSchema builds the Arrow schema a host engine sees for a table.
// Hidden columns are absent from the schema.
func (c *MappingCache) ResolveSchema(columns []ColumnDef) (*arrow.Schema, []ColumnDef, error) {
	descs, hidden, err := c.ResolveDescriptors(columns)
	if err != nil {
		return nil, nil, err
	}
	return SchemaFromDescriptors(descs), hidden, nil
}

// SchemaFromDescriptors assembles resolved columns into an Arrow schema.
func SchemaFromDescriptors(descs []TypeDescriptor) *arrow.Schema {
	fields := make([]arrow.Field, len(descs))
	for i, desc := range descs {
		fields[i] = desc.Field
	}
	return arrow.NewSchema(fields, nil)
}

// DescriptorsFromSchema reconstructs descriptors from a schema previously
// produced by ResolveSchema, using the field metadata the resolver attached.
// Fields without the declaration metadata fail: the coercion engine cannot
// coerce into a column whose remote domain is unknown.
func DescriptorsFromSchema(schema *arrow.Schema, cache *MappingCache, helper *ErrorHelper) ([]TypeDescriptor, error) {
	descs := make([]TypeDescriptor, schema.NumFields())
	for i := 0; i < schema.NumFields(); i++ {
		field := schema.Field(i)
		declared, ok := field.Metadata.GetValue(MetaKeyDatabaseTypeName)
		if !ok {
			var err error
			declared, err = declarationForField(field)
			if err != nil {
				return nil, helper.InvalidArgument("field '%s': %s", field.Name, err.Error())
			}
		}
		desc, err := cache.Resolve(field.Name, declared)
		if err != nil {
			return nil, err
		}
		if field.Nullable {
			desc.Field.Nullable = true
		}
		descs[i] = desc
	}
	return descs, nil
}
