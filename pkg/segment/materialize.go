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

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vecflow/pkg/errors"
	"github.com/pingcap/vecflow/pkg/types"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// MaterializedLogOperation is the net effect of a batch of log records on
// one record of a segment.
type MaterializedLogOperation int

// Net effects of materialized log records.
const (
	MaterializedInitial MaterializedLogOperation = iota
	// MaterializedAddNew creates a record absent from the segment.
	MaterializedAddNew
	// MaterializedUpdateExisting merges changes into a stored record.
	MaterializedUpdateExisting
	// MaterializedOverwriteExisting replaces a stored record, it is the
	// result of a delete followed by an add or upsert.
	MaterializedOverwriteExisting
	// MaterializedDeleteExisting deletes a stored record.
	MaterializedDeleteExisting
)

func (o MaterializedLogOperation) String() string {
	switch o {
	case MaterializedInitial:
		return "initial"
	case MaterializedAddNew:
		return "add-new"
	case MaterializedUpdateExisting:
		return "update-existing"
	case MaterializedOverwriteExisting:
		return "overwrite-existing"
	case MaterializedDeleteExisting:
		return "delete-existing"
	}
	return fmt.Sprintf("unknown(%d)", int(o))
}

// MaterializedLogRecord is the reconciled change of one user id.
type MaterializedLogRecord struct {
	offsetID  uint32
	userID    string
	operation MaterializedLogOperation

	// nil means unchanged.
	embedding []float32
	document  *string

	metadataToMerge  types.Metadata
	metadataToDelete map[string]struct{}
}

// OffsetID returns the offset id of the record.
func (r *MaterializedLogRecord) OffsetID() uint32 { return r.offsetID }

// UserID returns the user id of the record.
func (r *MaterializedLogRecord) UserID() string { return r.userID }

// Operation returns the net effect of the logs on the record.
func (r *MaterializedLogRecord) Operation() MaterializedLogOperation { return r.operation }

// replace drops previous changes and takes every field from op.
func (r *MaterializedLogRecord) replace(op *types.OperationRecord) {
	r.embedding = op.Embedding
	r.document = op.Document
	r.metadataToMerge = nil
	r.metadataToDelete = nil
	for k, v := range op.Metadata {
		if v == nil {
			continue
		}
		if r.metadataToMerge == nil {
			r.metadataToMerge = make(types.Metadata)
		}
		r.metadataToMerge[k] = *v
	}
}

// merge applies the fields set in op over previous changes.
func (r *MaterializedLogRecord) merge(op *types.OperationRecord) {
	if op.Embedding != nil {
		r.embedding = op.Embedding
	}
	if op.Document != nil {
		r.document = op.Document
	}
	for k, v := range op.Metadata {
		if v == nil {
			delete(r.metadataToMerge, k)
			if r.metadataToDelete == nil {
				r.metadataToDelete = make(map[string]struct{})
			}
			r.metadataToDelete[k] = struct{}{}
			continue
		}
		delete(r.metadataToDelete, k)
		if r.metadataToMerge == nil {
			r.metadataToMerge = make(types.Metadata)
		}
		r.metadataToMerge[k] = *v
	}
}

func (r *MaterializedLogRecord) clearChanges() {
	r.embedding = nil
	r.document = nil
	r.metadataToMerge = nil
	r.metadataToDelete = nil
}

// HydratedMaterializedLogRecord is a materialized record together with the
// stored record it changes.
type HydratedMaterializedLogRecord struct {
	*MaterializedLogRecord
	existing *types.DataRecord
	merged   *types.DataRecord
}

// Existing returns the stored record, nil for a new record.
func (h *HydratedMaterializedLogRecord) Existing() *types.DataRecord { return h.existing }

// Merged returns the record after the change, nil for a deleted record.
func (h *HydratedMaterializedLogRecord) Merged() *types.DataRecord { return h.merged }

// ComputeLogicalSizeDeltaBytes returns the change of the logical size of
// the collection caused by the record.
func (h *HydratedMaterializedLogRecord) ComputeLogicalSizeDeltaBytes() int64 {
	return h.merged.LogicalSizeBytes() - h.existing.LogicalSizeBytes()
}

// Hydrate reads the stored record from reader and merges the changes into
// it. reader may be nil only if the record is new.
func (r *MaterializedLogRecord) Hydrate(
	ctx context.Context, reader *RecordSegmentReader,
) (*HydratedMaterializedLogRecord, error) {
	h := &HydratedMaterializedLogRecord{MaterializedLogRecord: r}
	switch r.operation {
	case MaterializedUpdateExisting, MaterializedOverwriteExisting, MaterializedDeleteExisting:
		if reader == nil {
			return nil, cerrors.ErrLogMaterialization.GenWithStackByArgs(
				fmt.Sprintf("record %s changes a stored record without record segment", r.userID))
		}
		existing, err := reader.GetDataRecord(ctx, r.offsetID)
		if err != nil {
			return nil, errors.Trace(err)
		}
		h.existing = existing
	}

	switch r.operation {
	case MaterializedAddNew, MaterializedOverwriteExisting:
		h.merged = &types.DataRecord{
			ID:        r.userID,
			Embedding: append([]float32(nil), r.embedding...),
			Document:  r.document,
			Metadata:  r.metadataToMerge.Clone(),
		}
	case MaterializedUpdateExisting:
		merged := h.existing.Clone()
		if r.embedding != nil {
			merged.Embedding = append([]float32(nil), r.embedding...)
		}
		if r.document != nil {
			merged.Document = r.document
		}
		for k := range r.metadataToDelete {
			delete(merged.Metadata, k)
		}
		for k, v := range r.metadataToMerge {
			if merged.Metadata == nil {
				merged.Metadata = make(types.Metadata)
			}
			merged.Metadata[k] = v
		}
		if len(merged.Metadata) == 0 {
			merged.Metadata = nil
		}
		h.merged = merged
	case MaterializedDeleteExisting:
	default:
		return nil, cerrors.ErrInvalidOperation.GenWithStackByArgs(r.operation, r.userID)
	}
	return h, nil
}

type materializer struct {
	reader   *RecordSegmentReader
	offsetID *atomic.Uint32

	records map[string]*MaterializedLogRecord
	order   []string
}

func (m *materializer) existingOffsetID(userID string) (uint32, bool) {
	if m.reader == nil {
		return 0, false
	}
	return m.reader.GetOffsetIDForUserID(userID)
}

func (m *materializer) addNew(op *types.OperationRecord) error {
	if op.Embedding == nil {
		return cerrors.ErrLogMaterialization.GenWithStackByArgs(
			fmt.Sprintf("embedding is missing for new record %s", op.ID))
	}
	r := &MaterializedLogRecord{
		offsetID:  m.offsetID.Inc(),
		userID:    op.ID,
		operation: MaterializedAddNew,
	}
	r.replace(op)
	m.records[op.ID] = r
	m.order = append(m.order, op.ID)
	return nil
}

func (m *materializer) overwrite(r *MaterializedLogRecord, op *types.OperationRecord) error {
	if op.Embedding == nil {
		return cerrors.ErrLogMaterialization.GenWithStackByArgs(
			fmt.Sprintf("embedding is missing for overwritten record %s", op.ID))
	}
	r.operation = MaterializedOverwriteExisting
	r.replace(op)
	return nil
}

func (m *materializer) existing(op *types.OperationRecord, operation MaterializedLogOperation) *MaterializedLogRecord {
	offsetID, _ := m.existingOffsetID(op.ID)
	r := &MaterializedLogRecord{
		offsetID:  offsetID,
		userID:    op.ID,
		operation: operation,
	}
	m.records[op.ID] = r
	m.order = append(m.order, op.ID)
	return r
}

func (m *materializer) apply(op *types.OperationRecord) error {
	r, tracked := m.records[op.ID]
	if !tracked {
		_, stored := m.existingOffsetID(op.ID)
		switch op.Operation {
		case types.OperationAdd:
			if stored {
				return nil
			}
			return m.addNew(op)
		case types.OperationUpdate:
			if stored {
				m.existing(op, MaterializedUpdateExisting).merge(op)
			}
			return nil
		case types.OperationUpsert:
			if stored {
				m.existing(op, MaterializedUpdateExisting).merge(op)
				return nil
			}
			return m.addNew(op)
		case types.OperationDelete:
			if stored {
				m.existing(op, MaterializedDeleteExisting)
			}
			return nil
		}
		return cerrors.ErrInvalidOperation.GenWithStackByArgs(op.Operation, op.ID)
	}

	deleted := r.operation == MaterializedDeleteExisting
	switch op.Operation {
	case types.OperationAdd:
		if deleted {
			return m.overwrite(r, op)
		}
	case types.OperationUpdate:
		if !deleted {
			r.merge(op)
		}
	case types.OperationUpsert:
		if deleted {
			return m.overwrite(r, op)
		}
		r.merge(op)
	case types.OperationDelete:
		switch r.operation {
		case MaterializedAddNew:
			// The record never reaches the segment.
			delete(m.records, op.ID)
		case MaterializedUpdateExisting, MaterializedOverwriteExisting:
			r.operation = MaterializedDeleteExisting
			r.clearChanges()
		}
	default:
		return cerrors.ErrInvalidOperation.GenWithStackByArgs(op.Operation, op.ID)
	}
	return nil
}

func (m *materializer) result() []*MaterializedLogRecord {
	result := make([]*MaterializedLogRecord, 0, len(m.records))
	emitted := make(map[string]struct{}, len(m.records))
	for _, userID := range m.order {
		if _, ok := emitted[userID]; ok {
			continue
		}
		if r, ok := m.records[userID]; ok {
			result = append(result, r)
			emitted[userID] = struct{}{}
		}
	}
	return result
}

// MaterializeLogs reconciles the visible log records of logs against the
// record segment, in log order, and returns one record per affected user id.
//
// reader is nil if the segment is not initialized. New records take their
// offset ids from offsetID, which may be shared by concurrent calls. A nil
// offsetID starts after the max offset id of the segment.
func MaterializeLogs(
	ctx context.Context,
	reader *RecordSegmentReader,
	logs *types.Chunk[types.LogRecord],
	offsetID *atomic.Uint32,
) ([]*MaterializedLogRecord, error) {
	if offsetID == nil {
		var start uint32
		if reader != nil {
			start = reader.MaxOffsetID()
		}
		offsetID = atomic.NewUint32(start)
	}
	m := &materializer{
		reader:   reader,
		offsetID: offsetID,
		records:  make(map[string]*MaterializedLogRecord),
	}

	var err error
	logs.Each(func(_ int, record types.LogRecord) bool {
		if err = ctx.Err(); err != nil {
			err = errors.Trace(err)
			return false
		}
		err = m.apply(&record.Record)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	result := m.result()
	log.Debug("log materialized",
		zap.Int("logs", logs.Len()), zap.Int("records", len(result)))
	return result, nil
}
