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

package system

import "context"

// Operator is a named, reusable computation step transforming an input into
// an output. Operators hold no state between runs and may be run
// concurrently.
type Operator[I, O any] interface {
	Name() string
	Run(ctx context.Context, input I) (O, error)
}
