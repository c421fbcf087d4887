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
	"fmt"

	"github.com/apache/arrow-adbc/go/adbc"
)

// CoercionErrorKind classifies failures of the value coercion engine.
type CoercionErrorKind int

const (
	// KindValueOutOfRange signals a fixed-width integer value outside the
	// declared column's [min, max] domain.
	KindValueOutOfRange CoercionErrorKind = iota
	// KindDatetimeOutOfRange signals a temporal value outside the instant
	// window the remote column type can store.
	KindDatetimeOutOfRange
	// KindPrecisionOverflow signals a decimal whose integer digits exceed
	// precision-scale, or a declared precision beyond the supported maximum.
	KindPrecisionOverflow
	// KindUnsupportedConversion signals a resolver/codec mismatch. It is a
	// programming-contract violation, not a data problem.
	KindUnsupportedConversion
)

// CoercionError is a structured rejection diagnostic produced on the write
// path. It always names the column and the violating value so callers can
// surface an actionable statement failure.
type CoercionError struct {
	Kind     CoercionErrorKind
	Column   string
	TypeName string
	Value    string
}

func (e *CoercionError) Error() string {
	switch e.Kind {
	case KindValueOutOfRange:
		return fmt.Sprintf("out of range value %s for column '%s' (%s)", e.Value, e.Column, e.TypeName)
	case KindDatetimeOutOfRange:
		return fmt.Sprintf("incorrect datetime value '%s' for column '%s' (%s)", e.Value, e.Column, e.TypeName)
	case KindPrecisionOverflow:
		return fmt.Sprintf("value %s exceeds precision of column '%s' (%s)", e.Value, e.Column, e.TypeName)
	case KindUnsupportedConversion:
		return fmt.Sprintf("no conversion for value %s of column '%s' (%s)", e.Value, e.Column, e.TypeName)
	}
	return fmt.Sprintf("coercion failure for column '%s'", e.Column)
}

// status maps the taxonomy onto ADBC status codes. Contract violations are
// internal errors; everything else is bad data.
func (e *CoercionError) status() adbc.Status {
	if e.Kind == KindUnsupportedConversion {
		return adbc.StatusInternal
	}
	return adbc.StatusInvalidData
}

// ErrorHelper formats errors for the connector, in the shape host engines
// expect from ADBC drivers.
type ErrorHelper struct {
	DriverName string
}

func (helper *ErrorHelper) Errorf(code adbc.Status, message string, format ...any) error {
	msg := fmt.Sprintf(message, format...)
	return adbc.Error{
		Code: code,
		Msg:  fmt.Sprintf("[%s] %s", helper.DriverName, msg),
	}
}

func (helper *ErrorHelper) InvalidArgument(message string, format ...any) error {
	return helper.Errorf(adbc.StatusInvalidArgument, message, format...)
}

func (helper *ErrorHelper) InvalidState(message string, format ...any) error {
	return helper.Errorf(adbc.StatusInvalidState, message, format...)
}

func (helper *ErrorHelper) NotImplemented(message string, format ...any) error {
	return helper.Errorf(adbc.StatusNotImplemented, message, format...)
}

func (helper *ErrorHelper) IO(message string, format ...any) error {
	return helper.Errorf(adbc.StatusIO, message, format...)
}

func (helper *ErrorHelper) InvalidData(message string, format ...any) error {
	return helper.Errorf(adbc.StatusInvalidData, message, format...)
}

func (helper *ErrorHelper) Internal(message string, format ...any) error {
	return helper.Errorf(adbc.StatusInternal, message, format...)
}

// Coercion wraps a CoercionError into an adbc.Error while keeping the typed
// diagnostic reachable through errors.As.
func (helper *ErrorHelper) Coercion(cerr *CoercionError) error {
	if cerr == nil {
		return nil
	}
	return errors.Join(adbc.Error{
		Code: cerr.status(),
		Msg:  fmt.Sprintf("[%s] %s", helper.DriverName, cerr.Error()),
	}, cerr)
}

// AsCoercionError unwraps the typed diagnostic from a (possibly wrapped)
// error, or returns nil.
func AsCoercionError(err error) *CoercionError {
	var cerr *CoercionError
	if errors.As(err, &cerr) {
		return cerr
	}
	return nil
}
