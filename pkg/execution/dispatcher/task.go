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

package dispatcher

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vecflow/pkg/errors"
	"github.com/pingcap/vecflow/pkg/system"
	"go.uber.org/zap"
)

// Task is a unit of operator work handled by the dispatcher.
type Task interface {
	ID() uuid.UUID
	OperatorName() string
	// Run runs the operator and delivers its result.
	Run(ctx context.Context)
	// Fail delivers err as the result without running the operator.
	Fail(ctx context.Context, err error)
}

// TaskResult is the result of a task delivered to its receiver.
type TaskResult[O any] struct {
	TaskID   uuid.UUID
	Operator string
	Output   O
	Err      error
}

type task[I, O any] struct {
	id       uuid.UUID
	operator system.Operator[I, O]
	input    I
	deliver  func(ctx context.Context, result TaskResult[O])
}

// NewTask creates a task running operator on input. deliver is called
// exactly once with the result, on a worker of the pool.
func NewTask[I, O any](
	operator system.Operator[I, O], input I,
	deliver func(ctx context.Context, result TaskResult[O]),
) Task {
	return &task[I, O]{
		id:       uuid.New(),
		operator: operator,
		input:    input,
		deliver:  deliver,
	}
}

func (t *task[I, O]) ID() uuid.UUID {
	return t.id
}

func (t *task[I, O]) OperatorName() string {
	return t.operator.Name()
}

func (t *task[I, O]) Run(ctx context.Context) {
	result := TaskResult[O]{TaskID: t.id, Operator: t.operator.Name()}
	if err := ctx.Err(); err != nil {
		result.Err = errors.Trace(err)
		t.deliver(ctx, result)
		return
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("operator panicked",
					zap.String("operator", result.Operator),
					zap.Stringer("task", t.id),
					zap.Any("panic", r), zap.Stack("stack"))
				result.Err = cerrors.ErrHandlerPanic.GenWithStackByArgs(
					result.Operator, system.PanicMessage(r))
			}
		}()
		result.Output, result.Err = t.operator.Run(ctx, t.input)
	}()
	t.deliver(ctx, result)
}

func (t *task[I, O]) Fail(ctx context.Context, err error) {
	t.deliver(ctx, TaskResult[O]{TaskID: t.id, Operator: t.operator.Name(), Err: err})
}

func (t *task[I, O]) String() string {
	return fmt.Sprintf("%s(%s)", t.operator.Name(), t.id)
}

// ReplyTo returns a deliver func sending task results to the component h
// with handler.
func ReplyTo[C, O, R any](
	h *system.ComponentHandle[C],
	handler func(C, context.Context, TaskResult[O], *system.ComponentContext[C]) (R, error),
) func(ctx context.Context, result TaskResult[O]) {
	return func(_ context.Context, result TaskResult[O]) {
		// The worker context may be canceled already, results are only
		// dropped once the receiver is gone.
		if err := system.Send(context.Background(), h, handler, result); err != nil {
			log.Warn("task result dropped",
				zap.String("receiver", h.Name()),
				zap.Stringer("task", result.TaskID),
				zap.Error(err))
		}
	}
}
