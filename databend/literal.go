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
	"math"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// Literal renders a host value as a SQL literal for the column, applying
// the same coercion pipeline as the builder path. INSERT VALUES and CTAS
// therefore produce identical stored values for identical inputs.
func (c *Codec) Literal(desc TypeDescriptor, value any) (string, error) {
	coerced, err := c.Coerce(desc, value)
	if err != nil {
		return "", err
	}
	if coerced == nil {
		return "NULL", nil
	}

	switch v := coerced.(type) {
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float32:
		return formatFloatLiteral(float64(v), 32), nil
	case float64:
		return formatFloatLiteral(v, 64), nil
	case string:
		if desc.Class == ClassDecimal {
			return v, nil
		}
		return quoteStringLiteral(v), nil
	case []byte:
		return fmt.Sprintf("unhex('%X')", v), nil
	case arrow.Date32:
		return "'" + v.ToTime().Format("2006-01-02") + "'", nil
	case arrow.Time32:
		unit := desc.Field.Type.(*arrow.Time32Type).Unit
		return "'" + instantFromTime(v.ToTime(unit)).formatTime(desc.FracDigits) + "'", nil
	case arrow.Time64:
		unit := desc.Field.Type.(*arrow.Time64Type).Unit
		return "'" + instantFromTime(v.ToTime(unit)).formatTime(desc.FracDigits) + "'", nil
	case arrow.Timestamp:
		unit := desc.Field.Type.(*arrow.TimestampType).Unit
		return "'" + instantFromTime(v.ToTime(unit)).format(desc.FracDigits) + "'", nil
	}
	return "", c.helper.Internal("no literal form for column '%s' (%T)", desc.Name(), coerced)
}

// formatFloatLiteral renders floats with round-trip precision. The
// non-finite values have no bare literal form and go through CAST.
func formatFloatLiteral(v float64, bits int) string {
	switch {
	case math.IsNaN(v):
		return "CAST('NaN' AS DOUBLE)"
	case math.IsInf(v, 1):
		return "CAST('Infinity' AS DOUBLE)"
	case math.IsInf(v, -1):
		return "CAST('-Infinity' AS DOUBLE)"
	}
	return strconv.FormatFloat(v, 'g', -1, bits)
}

// quoteStringLiteral single-quotes a string, escaping quotes and
// backslashes.
func quoteStringLiteral(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			sb.WriteString("''")
		case '\\':
			sb.WriteString(`\\`)
		default:
			sb.WriteByte(s[i])
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}
