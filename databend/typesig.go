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
	"strconv"
	"strings"
)

// TypeSignature is the parsed form of a remote column type declaration,
// e.g. "DECIMAL(20, 0)", "varchar(255)", "INT UNSIGNED NULL", or
// "Nullable(Timestamp(3))".
type TypeSignature struct {
	// Name is the lower-cased base type name with modifiers stripped.
	Name string
	// Params holds the parenthesized integer arguments in declaration order.
	Params []int
	// Unsigned is set for the integer types carrying an UNSIGNED modifier.
	Unsigned bool
	// Nullable is set when the declaration carries NULL or a Nullable(...)
	// wrapper. Absence of a modifier leaves the column non-nullable.
	Nullable bool
}

// Param returns the i-th declared parameter, or def when the declaration
// omitted it.
func (sig TypeSignature) Param(i, def int) int {
	if i < len(sig.Params) {
		return sig.Params[i]
	}
	return def
}

// String renders the canonical form of the signature.
func (sig TypeSignature) String() string {
	var sb strings.Builder
	sb.WriteString(sig.Name)
	if len(sig.Params) > 0 {
		sb.WriteByte('(')
		for i, p := range sig.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.Itoa(p))
		}
		sb.WriteByte(')')
	}
	if sig.Unsigned {
		sb.WriteString(" unsigned")
	}
	return sb.String()
}

// ParseTypeSignature parses a remote type declaration. Parsing is
// case-insensitive and tolerant of interior whitespace, but rejects
// malformed parameter lists.
func ParseTypeSignature(declared string) (TypeSignature, error) {
	var sig TypeSignature
	s := strings.TrimSpace(declared)
	if s == "" {
		return sig, fmt.Errorf("empty type declaration")
	}

	// Nullable(inner) wrapper form.
	if lower := strings.ToLower(s); strings.HasPrefix(lower, "nullable(") && strings.HasSuffix(s, ")") {
		inner, err := ParseTypeSignature(s[len("nullable(") : len(s)-1])
		if err != nil {
			return sig, err
		}
		inner.Nullable = true
		return inner, nil
	}

	base := s
	var paramText string
	if open := strings.IndexByte(s, '('); open >= 0 {
		close := strings.IndexByte(s, ')')
		if close < open {
			return sig, fmt.Errorf("malformed type declaration %q", declared)
		}
		base = s[:open]
		paramText = s[open+1 : close]
		base += s[close+1:]
	}

	fields := strings.Fields(strings.ToLower(base))
	if len(fields) == 0 {
		return sig, fmt.Errorf("malformed type declaration %q", declared)
	}
	sig.Name = fields[0]
	negated := false
	for _, mod := range fields[1:] {
		switch mod {
		case "unsigned":
			sig.Unsigned = true
		case "signed":
			// explicit default
		case "null":
			sig.Nullable = !negated
			negated = false
		case "not":
			negated = true
		default:
			return sig, fmt.Errorf("unrecognized type modifier %q in %q", mod, declared)
		}
	}

	if paramText != "" {
		for _, part := range strings.Split(paramText, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return sig, fmt.Errorf("malformed type parameter %q in %q", part, declared)
			}
			sig.Params = append(sig.Params, n)
		}
	}
	return sig, nil
}
