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

package segment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vecflow/pkg/errors"
	"github.com/pingcap/vecflow/pkg/types"
	"go.uber.org/zap"
)

// Blockfile roles of a record segment.
const (
	UserIDToOffsetID = "user_id_to_offset_id"
	OffsetIDToUserID = "offset_id_to_user_id"
	OffsetIDToData   = "offset_id_to_data"
	MaxOffsetID      = "max_offset_id"
)

var recordSegmentRoles = []string{UserIDToOffsetID, OffsetIDToUserID, OffsetIDToData, MaxOffsetID}

const (
	defaultPrefix  = ""
	maxOffsetIDKey = "max_offset_id"
)

// RecordSegmentReader reads the records of a record segment. It is safe for
// concurrent use.
type RecordSegmentReader struct {
	segmentID   uuid.UUID
	userIDToID  *BlockfileReader[string, uint32]
	idToUserID  *BlockfileReader[uint32, string]
	idToData    *BlockfileReader[uint32, *types.DataRecord]
	maxOffsetID uint32
}

// NewRecordSegmentReader opens the blockfiles of segment. It returns
// ErrRecordSegmentUninitialized if the segment has never been written, and
// ErrRecordSegmentReaderCreation for any other failure.
func NewRecordSegmentReader(
	ctx context.Context, segment *types.Segment, provider *BlockfileProvider,
) (*RecordSegmentReader, error) {
	if segment.Type != types.SegmentTypeBlockfileRecord {
		return nil, cerrors.ErrRecordSegmentReaderCreation.GenWithStackByArgs(
			fmt.Sprintf("segment %s has type %s", segment.ID, segment.Type))
	}
	if !segment.IsInitialized() {
		return nil, cerrors.ErrRecordSegmentUninitialized.GenWithStackByArgs(segment.ID)
	}
	ids := make(map[string]uuid.UUID, len(recordSegmentRoles))
	for _, role := range recordSegmentRoles {
		paths := segment.FilePath[role]
		if len(paths) != 1 {
			return nil, cerrors.ErrRecordSegmentReaderCreation.GenWithStackByArgs(
				fmt.Sprintf("segment %s has %d blockfiles for %s", segment.ID, len(paths), role))
		}
		ids[role] = paths[0]
	}

	wrap := func(err error) error {
		if errors.Cause(err) == context.Canceled || errors.Cause(err) == context.DeadlineExceeded {
			return err
		}
		return cerrors.ErrRecordSegmentReaderCreation.GenWithStackByArgs(err.Error())
	}
	r := &RecordSegmentReader{segmentID: segment.ID}
	var err error
	if r.userIDToID, err = OpenBlockfileReader[string, uint32](ctx, provider, ids[UserIDToOffsetID]); err != nil {
		return nil, wrap(err)
	}
	if r.idToUserID, err = OpenBlockfileReader[uint32, string](ctx, provider, ids[OffsetIDToUserID]); err != nil {
		return nil, wrap(err)
	}
	if r.idToData, err = OpenBlockfileReader[uint32, *types.DataRecord](ctx, provider, ids[OffsetIDToData]); err != nil {
		return nil, wrap(err)
	}
	maxReader, err := OpenBlockfileReader[string, uint32](ctx, provider, ids[MaxOffsetID])
	if err != nil {
		return nil, wrap(err)
	}
	r.maxOffsetID, _ = maxReader.Get(defaultPrefix, maxOffsetIDKey)
	return r, nil
}

// SegmentID returns the id of the segment.
func (r *RecordSegmentReader) SegmentID() uuid.UUID {
	return r.segmentID
}

// GetOffsetIDForUserID returns the offset id of userID.
func (r *RecordSegmentReader) GetOffsetIDForUserID(userID string) (uint32, bool) {
	return r.userIDToID.Get(defaultPrefix, userID)
}

// GetUserIDForOffsetID returns the user id of offsetID.
func (r *RecordSegmentReader) GetUserIDForOffsetID(offsetID uint32) (string, bool) {
	return r.idToUserID.Get(defaultPrefix, offsetID)
}

// GetDataRecord returns a copy of the record stored at offsetID.
func (r *RecordSegmentReader) GetDataRecord(ctx context.Context, offsetID uint32) (*types.DataRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	record, ok := r.idToData.Get(defaultPrefix, offsetID)
	if !ok {
		return nil, cerrors.ErrOffsetIDNotFound.GenWithStackByArgs(offsetID)
	}
	return record.Clone(), nil
}

// MaxOffsetID returns the largest offset id ever allocated in the segment.
func (r *RecordSegmentReader) MaxOffsetID() uint32 {
	return r.maxOffsetID
}

// Count returns the number of records.
func (r *RecordSegmentReader) Count() int {
	return r.idToData.Count()
}

// RecordSegmentWriter applies materialized logs to a record segment. Changes
// become visible to new readers on Commit.
type RecordSegmentWriter struct {
	segment     *types.Segment
	userIDToID  *BlockfileWriter[string, uint32]
	idToUserID  *BlockfileWriter[uint32, string]
	idToData    *BlockfileWriter[uint32, *types.DataRecord]
	maxOffsetID *BlockfileWriter[string, uint32]
	max         uint32
}

// NewRecordSegmentWriter creates a writer of segment. An initialized segment
// is forked, an uninitialized one starts empty.
func NewRecordSegmentWriter(
	ctx context.Context, segment *types.Segment, provider *BlockfileProvider,
) (*RecordSegmentWriter, error) {
	w := &RecordSegmentWriter{segment: segment}
	if !segment.IsInitialized() {
		w.userIDToID = CreateBlockfileWriter[string, uint32](provider)
		w.idToUserID = CreateBlockfileWriter[uint32, string](provider)
		w.idToData = CreateBlockfileWriter[uint32, *types.DataRecord](provider)
		w.maxOffsetID = CreateBlockfileWriter[string, uint32](provider)
		return w, nil
	}

	reader, err := NewRecordSegmentReader(ctx, segment, provider)
	if err != nil {
		return nil, errors.Trace(err)
	}
	w.max = reader.MaxOffsetID()
	if w.userIDToID, err = ForkBlockfileWriter[string, uint32](
		ctx, provider, reader.userIDToID.ID()); err != nil {
		return nil, errors.Trace(err)
	}
	if w.idToUserID, err = ForkBlockfileWriter[uint32, string](
		ctx, provider, reader.idToUserID.ID()); err != nil {
		return nil, errors.Trace(err)
	}
	if w.idToData, err = ForkBlockfileWriter[uint32, *types.DataRecord](
		ctx, provider, reader.idToData.ID()); err != nil {
		return nil, errors.Trace(err)
	}
	if w.maxOffsetID, err = ForkBlockfileWriter[string, uint32](
		ctx, provider, segment.FilePath[MaxOffsetID][0]); err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}

// Apply writes hydrated records to the segment.
func (w *RecordSegmentWriter) Apply(ctx context.Context, records []*HydratedMaterializedLogRecord) error {
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
		offsetID := record.OffsetID()
		switch record.Operation() {
		case MaterializedAddNew, MaterializedUpdateExisting, MaterializedOverwriteExisting:
			merged := record.Merged()
			if err := w.userIDToID.Set(defaultPrefix, merged.ID, offsetID); err != nil {
				return errors.Trace(err)
			}
			if err := w.idToUserID.Set(defaultPrefix, offsetID, merged.ID); err != nil {
				return errors.Trace(err)
			}
			if err := w.idToData.Set(defaultPrefix, offsetID, merged); err != nil {
				return errors.Trace(err)
			}
		case MaterializedDeleteExisting:
			if err := w.userIDToID.Delete(defaultPrefix, record.UserID()); err != nil {
				return errors.Trace(err)
			}
			if err := w.idToUserID.Delete(defaultPrefix, offsetID); err != nil {
				return errors.Trace(err)
			}
			if err := w.idToData.Delete(defaultPrefix, offsetID); err != nil {
				return errors.Trace(err)
			}
		default:
			return cerrors.ErrInvalidOperation.GenWithStackByArgs(record.Operation(), record.UserID())
		}
		if offsetID > w.max {
			w.max = offsetID
		}
	}
	return nil
}

// Commit commits all blockfiles and returns the new file paths of the
// segment. The segment itself is not modified.
func (w *RecordSegmentWriter) Commit() (map[string][]uuid.UUID, error) {
	if err := w.maxOffsetID.Set(defaultPrefix, maxOffsetIDKey, w.max); err != nil {
		return nil, errors.Trace(err)
	}
	commits := []func() error{
		w.userIDToID.Commit, w.idToUserID.Commit, w.idToData.Commit, w.maxOffsetID.Commit,
	}
	for _, commit := range commits {
		if err := commit(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	log.Info("record segment committed",
		zap.Stringer("segment", w.segment.ID), zap.Uint32("maxOffsetID", w.max))
	return map[string][]uuid.UUID{
		UserIDToOffsetID: {w.userIDToID.ID()},
		OffsetIDToUserID: {w.idToUserID.ID()},
		OffsetIDToData:   {w.idToData.ID()},
		MaxOffsetID:      {w.maxOffsetID.ID()},
	}, nil
}
