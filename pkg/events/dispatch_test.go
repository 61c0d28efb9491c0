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

package events

import (
	"errors"
	"testing"
)

func TestPostForwardOrdering(t *testing.T) {
	var order []Scope
	b := NewBus()
	for _, s := range []Scope{JarPlugin, ClassInternal, APIPlugin, InternalPlugin, GlobalInternal} {
		scope := s
		b.Subscribe(scope, func(interface{}) error {
			order = append(order, scope)
			return nil
		})
	}

	if err := b.PostForward("job-start"); err != nil {
		t.Fatalf("PostForward returned error: %v", err)
	}

	want := []Scope{ClassInternal, GlobalInternal, InternalPlugin, APIPlugin, JarPlugin}
	if len(order) != len(want) {
		t.Fatalf("got %d calls, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("call %d: got %v, want %v", i, order[i], want[i])
		}
	}
}

func TestPostReverseIsExactReverse(t *testing.T) {
	var order []Scope
	b := NewBus()
	for _, s := range []Scope{ClassInternal, GlobalInternal, InternalPlugin, APIPlugin, JarPlugin} {
		scope := s
		b.Subscribe(scope, func(interface{}) error {
			order = append(order, scope)
			return nil
		})
	}

	if err := b.PostReverse("job-end"); err != nil {
		t.Fatalf("PostReverse returned error: %v", err)
	}

	want := []Scope{JarPlugin, APIPlugin, InternalPlugin, GlobalInternal, ClassInternal}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("call %d: got %v, want %v", i, order[i], want[i])
		}
	}
}

func TestPostForwardStopsOnSkipJob(t *testing.T) {
	b := NewBus()
	calledJar := false
	b.Subscribe(ClassInternal, func(interface{}) error {
		return &SkipJob{Reason: "not applicable"}
	})
	b.Subscribe(JarPlugin, func(interface{}) error {
		calledJar = true
		return nil
	})

	err := b.PostForward("job-start")
	var skip *SkipJob
	if err == nil {
		t.Fatal("expected a SkipJob error")
	}
	if !errors.As(err, &skip) {
		t.Fatalf("expected *SkipJob, got %T", err)
	}
	if calledJar {
		t.Fatal("JAR_PLUGIN listener should not run after a SkipJob")
	}
}
