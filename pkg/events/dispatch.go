/*
Copyright 2018 Heptio Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package events implements the scope-ordered event bus shared by the job
// runner and the session plugin, grounded on the teacher's Aggregator/Handler
// split in pkg/plugin/aggregation (a central dispatcher that notifies
// registered listeners in a fixed order and collects their errors).
package events

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Scope is one of the five ordered listener scopes named in spec.md §4.3
// and §5.
type Scope int

const (
	ClassInternal Scope = iota
	GlobalInternal
	InternalPlugin
	APIPlugin
	JarPlugin
	numScopes
)

func (s Scope) String() string {
	switch s {
	case ClassInternal:
		return "CLASS_INTERNAL"
	case GlobalInternal:
		return "GLOBAL_INTERNAL"
	case InternalPlugin:
		return "INTERNAL_PLUGIN"
	case APIPlugin:
		return "API_PLUGIN"
	case JarPlugin:
		return "JAR_PLUGIN"
	default:
		return "UNKNOWN_SCOPE"
	}
}

// startOrder is the fixed forward order events post in
// (CLASS_INTERNAL → GLOBAL_INTERNAL → INTERNAL_PLUGIN → API_PLUGIN →
// JAR_PLUGIN); endOrder is its exact reverse, used for *EndEvent posts.
var startOrder = [numScopes]Scope{ClassInternal, GlobalInternal, InternalPlugin, APIPlugin, JarPlugin}

// Listener handles one event. Returning an error marks that scope as having
// failed for this dispatch; a SkipJob error is classified separately so
// callers can distinguish "plugin broke" from "plugin asked to skip".
type Listener func(event interface{}) error

// SkipJob is returned by a listener that wants the job runner to treat the
// whole job as skipped (spec.md §4.3 pre-run step).
type SkipJob struct {
	Reason string
}

func (s *SkipJob) Error() string { return "skip job: " + s.Reason }

// Bus dispatches events to listeners registered per scope, in a fixed
// cross-scope order.
type Bus struct {
	listeners [numScopes][]Listener
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers l to run whenever an event is posted in scope.
func (b *Bus) Subscribe(scope Scope, l Listener) {
	b.listeners[scope] = append(b.listeners[scope], l)
}

// PostForward dispatches event to every listener in start-event order
// (CLASS_INTERNAL first, JAR_PLUGIN last), per spec.md §4.3's JobStartEvent
// and §5's SessionStarting/TestStarting ordering. It stops and returns the
// first SkipJob encountered; other listener errors are collected and
// returned wrapped, but do not stop dispatch to later scopes.
func (b *Bus) PostForward(event interface{}) error {
	return b.post(event, startOrder[:])
}

// PostReverse dispatches event in the exact reverse order
// (JAR_PLUGIN first, CLASS_INTERNAL last), per spec.md §4.3's JobEndEvent
// and §5's JobEndEvent ordering guarantee.
func (b *Bus) PostReverse(event interface{}) error {
	reversed := make([]Scope, numScopes)
	for i, s := range startOrder {
		reversed[numScopes-1-i] = s
	}
	return b.post(event, reversed)
}

func (b *Bus) post(event interface{}, order []Scope) error {
	var collected []error
	for _, scope := range order {
		for _, l := range b.listeners[scope] {
			if err := l(event); err != nil {
				var skip *SkipJob
				if errors.As(err, &skip) {
					return err
				}
				logrus.WithField("scope", scope.String()).WithError(err).
					Error("event listener returned an error")
				collected = append(collected, err)
			}
		}
	}
	if len(collected) > 0 {
		return fmt.Errorf("%d listener(s) failed: %v", len(collected), collected)
	}
	return nil
}
