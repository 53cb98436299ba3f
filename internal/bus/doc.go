/*
Package bus provides the type-safe pub/sub event system for the Lodestar engine.

The bus enables decoupled communication between engine components: the store,
engine and permission gate publish events, and consumers such as the SSE
endpoint react to them without direct dependencies. Buses are instance-scoped;
every component receives the bus it should publish to at construction, so
independent engines can coexist in one process.

# Architecture

The package is built on top of watermill's gochannel for infrastructure while
maintaining direct-call semantics to preserve type information. It provides
both synchronous and asynchronous publishing patterns, and a raw watermill
channel for consumers that want a message stream instead of callbacks.

# Event Types

The system supports the following event categories:

Session Events:
  - session.created: New session created
  - session.updated: Session modified (title, revision, model)
  - session.deleted: Session removed
  - session.idle: Turn finished, session accepts input again
  - session.error: Turn failed with a terminal error
  - session.undone: Session restored to an earlier message

Message Events:
  - message.created: New message added
  - message.updated: Message metadata changed
  - message.completed: Final part finished, message is immutable
  - message.removed: Message deleted
  - message.part.updated: Message part created or mutated (streaming)
  - message.part.removed: Message part removed

Permission Events:
  - permission.updated: Permission request awaiting a decision
  - permission.replied: Permission request decided

Workspace Events:
  - file.edited: A tool modified a file
  - vcs.branch.updated: The checked-out git branch changed
  - snapshot.created: A pre-mutation snapshot was captured

# Usage

Creating a bus and subscribing:

	b := bus.New()
	defer b.Close()

	unsubscribe := b.Subscribe(bus.SessionCreated, func(e bus.Event) {
		data := e.Data.(bus.SessionCreatedData)
		log.Info().Str("session", data.Info.ID).Msg("session created")
	})
	defer unsubscribe()

Publishing:

	b.Publish(bus.Event{
		Type: bus.SessionCreated,
		Data: bus.SessionCreatedData{Info: session},
	})

Publish enqueues onto a per-subscriber queue drained by a single goroutine:
each subscriber observes events in publish order, a slow handler backs up
only its own queue, and a panicking subscriber cannot take down the
publisher. PublishSync additionally waits until every handler has run, for
callers that need the event observed before they proceed.

Wildcard subscription receives every event:

	unsubscribe := b.SubscribeAll(func(e bus.Event) { ... })

Raw exposes the watermill subscription directly, for stream-shaped consumers
like the SSE handler:

	ch, err := b.Raw(ctx, bus.PartUpdated)
	for msg := range ch {
		// msg.Payload is the JSON-encoded Event
		msg.Ack()
	}

# Delivery Semantics

Events are delivered at-most-once to each subscriber registered at publish
time. There is no replay: a subscriber that attaches after an event was
published never sees it. Consumers that need a consistent view combine a
snapshot read with a subscription, in that order, and deduplicate by
revision.
*/
package bus
