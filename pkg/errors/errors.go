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

package errors

import (
	"github.com/pingcap/errors"
)

// errors
var (
	// component runtime errors
	ErrMailboxFull = errors.Normalize(
		"mailbox is full, please try again",
		errors.RFCCodeText("VEC:ErrMailboxFull"),
	)
	ErrMailboxClosed = errors.Normalize(
		"mailbox is closed",
		errors.RFCCodeText("VEC:ErrMailboxClosed"),
	)
	ErrComponentStopped = errors.Normalize(
		"component %s is stopped",
		errors.RFCCodeText("VEC:ErrComponentStopped"),
	)
	ErrHandlerPanic = errors.Normalize(
		"handler of component %s panicked: %s",
		errors.RFCCodeText("VEC:ErrHandlerPanic"),
	)
	ErrRequestTimeout = errors.Normalize(
		"request to component %s timed out after %s",
		errors.RFCCodeText("VEC:ErrRequestTimeout"),
	)
	ErrInvalidQueueSize = errors.Normalize(
		"invalid queue size %d of component %s, it must be positive",
		errors.RFCCodeText("VEC:ErrInvalidQueueSize"),
	)
	ErrUnknownPlacement = errors.Normalize(
		"unknown runtime placement %d of component %s",
		errors.RFCCodeText("VEC:ErrUnknownPlacement"),
	)

	// worker pool and dispatcher errors
	ErrAsyncPoolExited = errors.Normalize(
		"asyncPool has exited. Report a bug if seen externally.",
		errors.RFCCodeText("VEC:ErrAsyncPoolExited"),
	)
	ErrDispatcherStopped = errors.Normalize(
		"dispatcher is stopped, task %s is dropped",
		errors.RFCCodeText("VEC:ErrDispatcherStopped"),
	)

	// segment and materialization errors
	ErrRecordSegmentUninitialized = errors.Normalize(
		"record segment %s is not initialized",
		errors.RFCCodeText("VEC:ErrRecordSegmentUninitialized"),
	)
	ErrRecordSegmentReaderCreation = errors.Normalize(
		"could not create record segment reader: %s",
		errors.RFCCodeText("VEC:ErrRecordSegmentReaderCreation"),
	)
	ErrBlockfileNotFound = errors.Normalize(
		"blockfile %s not found",
		errors.RFCCodeText("VEC:ErrBlockfileNotFound"),
	)
	ErrBlockfileTypeMismatch = errors.Normalize(
		"blockfile %s holds another key or value type",
		errors.RFCCodeText("VEC:ErrBlockfileTypeMismatch"),
	)
	ErrBlockfileCommitted = errors.Normalize(
		"blockfile %s is already committed",
		errors.RFCCodeText("VEC:ErrBlockfileCommitted"),
	)
	ErrOffsetIDNotFound = errors.Normalize(
		"offset id %d not found in record segment",
		errors.RFCCodeText("VEC:ErrOffsetIDNotFound"),
	)
	ErrLogMaterialization = errors.Normalize(
		"log materialization failed: %s",
		errors.RFCCodeText("VEC:ErrLogMaterialization"),
	)
	ErrInvalidOperation = errors.Normalize(
		"invalid operation %s for record %s",
		errors.RFCCodeText("VEC:ErrInvalidOperation"),
	)

	// config errors
	ErrInvalidConfig = errors.Normalize(
		"invalid config, %s",
		errors.RFCCodeText("VEC:ErrInvalidConfig"),
	)
	ErrInvalidWorkerOption = errors.Normalize(
		"invalid worker option: %s",
		errors.RFCCodeText("VEC:ErrInvalidWorkerOption"),
	)
)
