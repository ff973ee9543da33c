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

// Package actor provides the mailbox and the runtime metrics shared by
// vecflow components. A mailbox is the only entry point to the state of a
// component, see package system for the executor that drains it.
//
// The following diagram shows how a message travels through a mailbox.
//
//	,------.          ,-------.          ,--------.          ,---------.
//	|Sender|          |Mailbox|          |Executor|          |Component|
//	`--+---'          `---+---'          `---+----'          `----+----'
//	   |  Send / SendB    |                  |                    |
//	   | ---------------->|                  |                    |
//	   |                  |      C()         |                    |
//	   |                  |----------------->|                    |
//	   |                  |                  |   Handle(msg)      |
//	   |                  |                  | ------------------>|
//	   |                  |                  |                    |
//	   |                  |                  |   result / panic   |
//	   |                  |                  |<------------------ |
//	   |            reply |                  |                    |
//	   |<------------------------------------|                    |
//	   |                  |                  |                    |
//	   |    Close()       |                  |                    |
//	   | ---------------->|    Closed()      |                    |
//	   |                  |----------------->| drain, then stop   |
//	,--+---.          ,---+---.          ,---+----.          ,----+----.
//	|Sender|          |Mailbox|          |Executor|          |Component|
//	`------'          `-------'          `--------'          `---------'
package actor
