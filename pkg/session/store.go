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

package session

import (
	"regexp"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Store holds every live Session server-side, guarded by a single lock per
// spec.md §5's "RunCommandState mutations run under a single lock" — here
// generalized to guard the whole Session, since a Session's Output field is
// the same RunCommandState.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Submit creates and stores a new Session for cfg, returning its id.
func (s *Store) Submit(clientID string, cfg Config) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	s.sessions[id] = &Session{
		ID:         id,
		ClientID:   clientID,
		Status:     StatusSubmitted,
		Config:     cfg,
		Properties: make(map[string]string),
	}
	return id
}

// Get returns the session with id, or nil if unknown.
func (s *Store) Get(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

// All returns every session matching nameRegex and statusRegex (empty
// patterns match everything), per spec.md §6's GetAllSessions.
func (s *Store) All(nameRegex, statusRegex string) ([]*Session, error) {
	nameRe, err := compileOrAny(nameRegex)
	if err != nil {
		return nil, errors.Wrap(err, "compiling name_regex")
	}
	statusRe, err := compileOrAny(statusRegex)
	if err != nil {
		return nil, errors.Wrap(err, "compiling status_regex")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Session
	for _, sess := range s.sessions {
		if nameRe.MatchString(sess.Name) && statusRe.MatchString(string(sess.Status)) {
			out = append(out, sess)
		}
	}
	return out, nil
}

// Abort marks each session in ids as FINISHED with a cancellation Failure
// output, if it exists and is not already finished. Returns the subset of
// ids that were actually aborted, per spec.md §6's AbortSessions contract.
func (s *Store) Abort(ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var aborted []string
	for _, id := range ids {
		sess, ok := s.sessions[id]
		if !ok || sess.Status == StatusFinished {
			continue
		}
		msg := "aborted by client request"
		sess.Output = Output{Failure: &msg}
		sess.Status = StatusFinished
		aborted = append(aborted, id)
	}
	return aborted
}

// MutateOutput runs fn against the session's Output under the store lock
// and writes it back, implementing the "every mutation writes the full
// state through" rule of spec.md §5.
func (s *Store) MutateOutput(id string, fn func(*Output)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	fn(&sess.Output)
}

func compileOrAny(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return regexp.MustCompile(".*"), nil
	}
	return regexp.Compile(pattern)
}
