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
	"encoding/json"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"
)

// NotificationKind classifies the reason a SessionNotification fired.
type NotificationKind string

const (
	// NotificationCancellation corresponds to spec.md §4.4's
	// SessionCancellation.
	NotificationCancellation NotificationKind = "SessionCancellation"
	// NotificationOutputUpdated marks a change to a session's output.
	// Nothing in this module publishes it: Store.MutateOutput sends no
	// notification.
	NotificationOutputUpdated NotificationKind = "OutputUpdated"
)

// Notification is one event on the session-service notification stream,
// spec.md §6.
type Notification struct {
	SessionID string           `json:"session_id"`
	Kind      NotificationKind `json:"kind"`
}

// Notifier fans a Notification out to every currently connected streaming
// client. There is no library in the retrieved pack specialized for
// server push (no repo imports a websocket or SSE helper for direct,
// non-vendor use), so this is a small stdlib http.Flusher-based broadcast,
// mirroring the same request/response plumbing pkg/controlplane and this
// package already use via gorilla/mux.
type Notifier struct {
	mu    sync.Mutex
	subs  map[chan Notification]struct{}
}

// NewNotifier constructs an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[chan Notification]struct{})}
}

// Publish delivers note to every currently subscribed stream. A subscriber
// whose buffer is full misses this notification (it stays subscribed)
// rather than blocking the publisher.
func (n *Notifier) Publish(note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- note:
		default:
			logrus.Warn("dropping notification for a slow subscriber")
		}
	}
}

func (n *Notifier) subscribe() chan Notification {
	ch := make(chan Notification, 16)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

func (n *Notifier) unsubscribe(ch chan Notification) {
	n.mu.Lock()
	delete(n.subs, ch)
	n.mu.Unlock()
	close(ch)
}

// StreamHandler serves the notification stream as newline-delimited JSON
// over a long-lived HTTP response, flushing after each event.
func (n *Notifier) StreamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("content-type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)

		ch := n.subscribe()
		defer n.unsubscribe(ch)

		for {
			select {
			case <-r.Context().Done():
				return
			case note, ok := <-ch:
				if !ok {
					return
				}
				if err := json.NewEncoder(w).Encode(note); err != nil {
					logrus.WithError(err).Debug("notification subscriber disconnected")
					return
				}
				flusher.Flush()
			}
		}
	}
}
