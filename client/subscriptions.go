// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"cmp"
	"slices"
)

type subscriptionRecord struct {
	topic    string
	qos      byte
	id       uint32
	refCount int
	staged   bool
}

// subscriptionRegistry reference-counts subscriptions so that every filter
// has at most one wire subscription. It is guarded by Client.mu.
type subscriptionRegistry struct {
	subs   map[string]*subscriptionRecord
	nextID uint32

	// unsubs holds filters released while disconnected that a resumed
	// session may still carry.
	unsubs map[string]struct{}
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{
		subs:   make(map[string]*subscriptionRecord),
		unsubs: make(map[string]struct{}),
	}
}

// acquire adds a reference to topic. A new record gets the next identifier;
// identifiers start at 1 and are never reused.
func (r *subscriptionRegistry) acquire(topic string, qos byte) (*subscriptionRecord, bool) {
	if rec, ok := r.subs[topic]; ok {
		rec.refCount++
		return rec, false
	}

	// The new SUBSCRIBE replaces whatever the broker kept.
	delete(r.unsubs, topic)
	r.nextID++
	rec := &subscriptionRecord{topic: topic, qos: qos, id: r.nextID, refCount: 1}
	r.subs[topic] = rec
	return rec, true
}

// release drops a reference to topic. It returns the record, whether the
// last reference was dropped and whether the topic was known at all.
func (r *subscriptionRegistry) release(topic string) (rec *subscriptionRecord, removed, known bool) {
	rec, ok := r.subs[topic]
	if !ok {
		return nil, false, false
	}

	rec.refCount--
	if rec.refCount > 0 {
		return rec, false, true
	}
	delete(r.subs, topic)
	return rec, true, true
}

// discard removes a record whose wire subscribe failed.
func (r *subscriptionRegistry) discard(topic string) {
	delete(r.subs, topic)
}

// stageAll marks every record staged, used when the broker lost the session.
func (r *subscriptionRegistry) stageAll() {
	for _, rec := range r.subs {
		rec.staged = true
	}
}

// staged returns the staged records in creation order.
func (r *subscriptionRegistry) staged() []*subscriptionRecord {
	var recs []*subscriptionRecord
	for _, rec := range r.subs {
		if rec.staged {
			recs = append(recs, rec)
		}
	}
	slices.SortFunc(recs, func(a, b *subscriptionRecord) int {
		return cmp.Compare(a.id, b.id)
	})
	return recs
}

// deferUnsubscribe records topic for removal on the next resumed session.
func (r *subscriptionRegistry) deferUnsubscribe(topic string) {
	r.unsubs[topic] = struct{}{}
}

// deferred returns the filters awaiting a wire unsubscribe, sorted.
func (r *subscriptionRegistry) deferred() []string {
	topics := make([]string, 0, len(r.unsubs))
	for topic := range r.unsubs {
		topics = append(topics, topic)
	}
	slices.Sort(topics)
	return topics
}

func (r *subscriptionRegistry) unsubscribed(topic string) {
	delete(r.unsubs, topic)
}

// dropDeferred forgets pending unsubscribes when the broker has no session.
func (r *subscriptionRegistry) dropDeferred() {
	clear(r.unsubs)
}

func (r *subscriptionRegistry) get(topic string) (*subscriptionRecord, bool) {
	rec, ok := r.subs[topic]
	return rec, ok
}

func (r *subscriptionRegistry) count(topic string) int {
	if rec, ok := r.subs[topic]; ok {
		return rec.refCount
	}
	return 0
}
