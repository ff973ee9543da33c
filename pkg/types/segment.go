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
	"github.com/google/uuid"
)

// SegmentType is the storage type of a segment.
type SegmentType string

// Segment types.
const (
	SegmentTypeBlockfileRecord   SegmentType = "urn:vecflow:segment/record/blockfile"
	SegmentTypeBlockfileMetadata SegmentType = "urn:vecflow:segment/metadata/blockfile"
)

// SegmentScope is the part of a collection stored by a segment.
type SegmentScope string

// Segment scopes.
const (
	SegmentScopeRecord   SegmentScope = "RECORD"
	SegmentScopeMetadata SegmentScope = "METADATA"
	SegmentScopeVector   SegmentScope = "VECTOR"
)

// Segment describes a persisted part of a collection. FilePath maps a
// blockfile role to the ids of its blockfiles, it is empty until the
// segment is first written.
type Segment struct {
	ID         uuid.UUID
	Type       SegmentType
	Scope      SegmentScope
	Collection uuid.UUID
	FilePath   map[string][]uuid.UUID
}

// NewRecordSegment returns an uninitialized record segment of collection.
func NewRecordSegment(collection uuid.UUID) *Segment {
	return &Segment{
		ID:         uuid.New(),
		Type:       SegmentTypeBlockfileRecord,
		Scope:      SegmentScopeRecord,
		Collection: collection,
		FilePath:   map[string][]uuid.UUID{},
	}
}

// IsInitialized returns true if the segment has been written.
func (s *Segment) IsInitialized() bool {
	return len(s.FilePath) > 0
}
