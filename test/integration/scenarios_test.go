// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration_test

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/arkforge/eventstore/internal/eventstore"
	"github.com/arkforge/eventstore/internal/subscription"
)

// uniqueStream returns a fresh stream name per spec so specs run against an
// isolated slice of the shared container's database.
func uniqueStream(prefix string) eventstore.StreamID {
	return eventstore.StreamID(prefix + "-" + ulid.Make().String())
}

var _ = Describe("append and read", func() {
	It("scenario 1: appends create sequential stream versions", func() {
		ctx := context.Background()
		s := uniqueStream("s")

		result, err := env.store.Append(ctx, eventstore.AppendRequest{
			Stream:          s,
			ExpectedVersion: eventstore.ExpectedNoStream,
			Events: []eventstore.NewEvent{
				{Type: "e1", Payload: []byte(`{"n":1}`)},
				{Type: "e2", Payload: []byte(`{"n":2}`)},
			},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.FirstVersion).To(Equal(eventstore.StreamVersion(1)))
		Expect(result.LastVersion).To(Equal(eventstore.StreamVersion(2)))

		events, err := env.store.Read(ctx, s, eventstore.ReadOptions{Direction: eventstore.Forward, FromVersion: 1, Limit: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(2))
		Expect(events[0].StreamVersion).To(Equal(eventstore.StreamVersion(1)))
		Expect(events[1].StreamVersion).To(Equal(eventstore.StreamVersion(2)))
	})

	It("scenario 2: a stale expected version is rejected", func() {
		ctx := context.Background()
		s := uniqueStream("s")

		_, err := env.store.Append(ctx, eventstore.AppendRequest{
			Stream:          s,
			ExpectedVersion: eventstore.ExpectedNoStream,
			Events:          []eventstore.NewEvent{{Type: "e1", Payload: []byte(`{}`)}},
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = env.store.Append(ctx, eventstore.AppendRequest{
			Stream:          s,
			ExpectedVersion: 1,
			Events:          []eventstore.NewEvent{{Type: "e3", Payload: []byte(`{}`)}},
		})
		Expect(eventstore.Is(err, eventstore.KindWrongExpectedVersion)).To(BeTrue())
	})

	It("scenario 3: the $all stream reflects global commit order across streams", func() {
		ctx := context.Background()
		s1 := uniqueStream("s")
		s2 := uniqueStream("s2")

		_, err := env.store.Append(ctx, eventstore.AppendRequest{
			Stream:          s1,
			ExpectedVersion: eventstore.ExpectedNoStream,
			Events: []eventstore.NewEvent{
				{Type: "e1", Payload: []byte(`{}`)},
				{Type: "e2", Payload: []byte(`{}`)},
			},
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = env.store.Append(ctx, eventstore.AppendRequest{
			Stream:          s2,
			ExpectedVersion: eventstore.ExpectedNoStream,
			Events:          []eventstore.NewEvent{{Type: "e4", Payload: []byte(`{}`)}},
		})
		Expect(err).NotTo(HaveOccurred())

		all, err := env.store.Read(ctx, eventstore.AllStream, eventstore.ReadOptions{Direction: eventstore.Forward, Limit: 1000})
		Expect(err).NotTo(HaveOccurred())

		var fromOurStreams []eventstore.Event
		for _, e := range all {
			if e.Stream == s1 || e.Stream == s2 {
				fromOurStreams = append(fromOurStreams, e)
			}
		}
		Expect(fromOurStreams).To(HaveLen(3))
		Expect(fromOurStreams[0].Type).To(Equal("e1"))
		Expect(fromOurStreams[1].Type).To(Equal("e2"))
		Expect(fromOurStreams[2].Type).To(Equal("e4"))
		Expect(fromOurStreams[0].GlobalSequence).To(BeNumerically("<", fromOurStreams[1].GlobalSequence))
		Expect(fromOurStreams[1].GlobalSequence).To(BeNumerically("<", fromOurStreams[2].GlobalSequence))
	})

	It("scenario 4: linking attaches an event to another stream without copying its origin", func() {
		ctx := context.Background()
		s1 := uniqueStream("s")
		s2 := uniqueStream("s2")

		_, err := env.store.Append(ctx, eventstore.AppendRequest{
			Stream:          s1,
			ExpectedVersion: eventstore.ExpectedNoStream,
			Events:          []eventstore.NewEvent{{Type: "e1", Payload: []byte(`{}`)}},
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = env.store.Append(ctx, eventstore.AppendRequest{
			Stream:          s2,
			ExpectedVersion: eventstore.ExpectedNoStream,
			Events:          []eventstore.NewEvent{{Type: "e4", Payload: []byte(`{}`)}},
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = env.store.LinkToStream(ctx, s2, 1, eventstore.EventRef{Stream: s1, Version: 1})
		Expect(err).NotTo(HaveOccurred())

		events, err := env.store.Read(ctx, s2, eventstore.ReadOptions{Direction: eventstore.Forward, FromVersion: 1, Limit: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(2))
		Expect(events[0].Type).To(Equal("e4"))
		Expect(events[1].Type).To(Equal("e1"))
		Expect(events[1].Stream).To(Equal(s1), "a linked event still reports its origin stream")
	})
})

var _ = Describe("subscriptions and deletion", func() {
	It("scenario 5 & 6: a subscription from the beginning of $all receives every appended event, and hard delete removes a stream from $all", func() {
		ctx := context.Background()
		s1 := uniqueStream("s")
		s2 := uniqueStream("s2")

		checkpoints := subscription.NewMemoryCheckpointStore()
		manager := subscription.NewManager(env.store, checkpoints, "")

		var mu sync.Mutex
		var received []string
		handle, err := manager.Subscribe(ctx, subscription.Options{
			Name:      "X-" + string(s1),
			Stream:    eventstore.AllStream,
			StartFrom: subscription.StartFrom{Beginning: true},
		}, subscription.ConsumerFunc(func(d subscription.Delivery) (bool, subscription.NackAction) {
			mu.Lock()
			received = append(received, d.Event.Type)
			mu.Unlock()
			return true, subscription.NackRetry
		}))
		Expect(err).NotTo(HaveOccurred())

		_, err = env.store.Append(ctx, eventstore.AppendRequest{
			Stream:          s1,
			ExpectedVersion: eventstore.ExpectedNoStream,
			Events: []eventstore.NewEvent{
				{Type: "e1", Payload: []byte(`{}`)},
				{Type: "e2", Payload: []byte(`{}`)},
			},
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = env.store.Append(ctx, eventstore.AppendRequest{
			Stream:          s2,
			ExpectedVersion: eventstore.ExpectedNoStream,
			Events:          []eventstore.NewEvent{{Type: "e4", Payload: []byte(`{}`)}},
		})
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string(nil), received...)
		}, "10s", "50ms").Should(ContainElements("e1", "e2", "e4"))

		handle.Unsubscribe()

		err = env.store.DeleteStream(ctx, s1, eventstore.DeleteOptions{Hard: true, ExpectedVersion: eventstore.ExpectedAny})
		Expect(err).NotTo(HaveOccurred())

		_, err = env.store.Read(ctx, s1, eventstore.ReadOptions{Direction: eventstore.Forward, FromVersion: 1, Limit: 10})
		Expect(eventstore.Is(err, eventstore.KindStreamDeleted)).To(BeTrue(), "a tombstone keeps a stale reader from seeing a different stream reuse the name")

		all, err := env.store.Read(ctx, eventstore.AllStream, eventstore.ReadOptions{Direction: eventstore.Forward, Limit: 1000})
		Expect(err).NotTo(HaveOccurred())
		for _, e := range all {
			Expect(e.Stream).NotTo(Equal(s1), "a hard-deleted stream's events must not remain in $all")
		}
	})
})
