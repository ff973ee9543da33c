// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package types

import (
	"fmt"
	"slices"

	"golang.org/x/exp/maps"
)

// Operation is the kind of change carried by a log record.
type Operation int

// Operations of log records.
const (
	OperationAdd Operation = iota
	OperationUpdate
	OperationUpsert
	OperationDelete
)

func (o Operation) String() string {
	switch o {
	case OperationAdd:
		return "add"
	case OperationUpdate:
		return "update"
	case OperationUpsert:
		return "upsert"
	case OperationDelete:
		return "delete"
	}
	return fmt.Sprintf("unknown(%d)", int(o))
}

// MetadataValueKind is the type of a metadata value.
type MetadataValueKind int

// Kinds of metadata values.
const (
	MetadataBool MetadataValueKind = iota
	MetadataInt
	MetadataFloat
	MetadataStr
)

// MetadataValue is a typed metadata value.
type MetadataValue struct {
	Kind MetadataValueKind
	Bool bool
	Int  int64
	Flt  float64
	Str  string
}

// BoolValue returns a bool metadata value.
func BoolValue(v bool) MetadataValue { return MetadataValue{Kind: MetadataBool, Bool: v} }

// IntValue returns an int metadata value.
func IntValue(v int64) MetadataValue { return MetadataValue{Kind: MetadataInt, Int: v} }

// FloatValue returns a float metadata value.
func FloatValue(v float64) MetadataValue { return MetadataValue{Kind: MetadataFloat, Flt: v} }

// StrValue returns a string metadata value.
func StrValue(v string) MetadataValue { return MetadataValue{Kind: MetadataStr, Str: v} }

// SizeBytes returns the logical size of the value.
func (v MetadataValue) SizeBytes() int64 {
	switch v.Kind {
	case MetadataBool:
		return 1
	case MetadataInt, MetadataFloat:
		return 8
	case MetadataStr:
		return int64(len(v.Str))
	}
	return 0
}

func (v MetadataValue) String() string {
	switch v.Kind {
	case MetadataBool:
		return fmt.Sprintf("%t", v.Bool)
	case MetadataInt:
		return fmt.Sprintf("%d", v.Int)
	case MetadataFloat:
		return fmt.Sprintf("%g", v.Flt)
	case MetadataStr:
		return fmt.Sprintf("%q", v.Str)
	}
	return "<invalid>"
}

// Metadata is the metadata of a stored record.
type Metadata map[string]MetadataValue

// Clone returns a copy of m. It returns nil for an empty m.
func (m Metadata) Clone() Metadata {
	if len(m) == 0 {
		return nil
	}
	return maps.Clone(m)
}

// SizeBytes returns the logical size of the keys and values.
func (m Metadata) SizeBytes() int64 {
	var size int64
	for k, v := range m {
		size += int64(len(k)) + v.SizeBytes()
	}
	return size
}

// Keys returns the sorted keys of m.
func (m Metadata) Keys() []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}

// UpdateMetadata is the metadata carried by a log record. A nil value
// deletes the key.
type UpdateMetadata map[string]*MetadataValue

// OperationRecord is a change to one record, identified by its user id.
type OperationRecord struct {
	ID        string
	Embedding []float32
	Document  *string
	Metadata  UpdateMetadata
	Operation Operation
}

// LogRecord is an operation record at a position of the collection log.
type LogRecord struct {
	LogOffset int64
	Record    OperationRecord
}

// DataRecord is a record stored in a record segment.
type DataRecord struct {
	ID        string
	Embedding []float32
	Document  *string
	Metadata  Metadata
}

// Clone returns a deep copy of r.
func (r *DataRecord) Clone() *DataRecord {
	if r == nil {
		return nil
	}
	clone := &DataRecord{
		ID:        r.ID,
		Embedding: append([]float32(nil), r.Embedding...),
		Metadata:  r.Metadata.Clone(),
	}
	if r.Document != nil {
		doc := *r.Document
		clone.Document = &doc
	}
	return clone
}

// LogicalSizeBytes returns the size of the user visible content of r.
func (r *DataRecord) LogicalSizeBytes() int64 {
	if r == nil {
		return 0
	}
	size := int64(len(r.ID)) + int64(4*len(r.Embedding)) + r.Metadata.SizeBytes()
	if r.Document != nil {
		size += int64(len(*r.Document))
	}
	return size
}
