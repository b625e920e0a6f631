// Package querysync keeps a query cache in sync across a server render, the
// client that hydrates it, and the writes that make it stale.
//
// # Overview
//
// A Client wraps one cache.Store and a Transport. Views read through
// UseResult or Observe, servers render through Prefetch and Dehydrate, clients
// boot through Hydrate, and writes go through Mutate, Execute or a Mutation
// handle.
//
// # Key Features
//
//   - **Cache-first reads**: a settled entry is served with no fetch; staleness
//     is only ever corrected by invalidation, never by time
//   - **Dedup**: at most one fetch per signature is in flight; concurrent
//     readers share it
//   - **Non-destructive hydration**: a snapshot never overwrites an entry the
//     client already has
//   - **Coarse invalidation**: a command invalidates every params variant of
//     the query names its rule lists
//   - **Generation fencing**: a fetch that started before its entry was
//     invalidated does not write its result
//
// # Basic Usage
//
// On the server, one client per render:
//
//	client := querysync.New(store, querysync.WithTransport(router))
//	sig, fetch := client.Query("getUserByUsername", map[string]any{"username": "ada"})
//	client.Prefetch(ctx, sig, fetch)
//	state := client.Dehydrate()
//
// On the client, once per process or tab:
//
//	client := querysync.New(store, querysync.WithTransport(remote))
//	if err := client.Hydrate(state); err != nil {
//		return err
//	}
//	res, stop := client.Observe(ctx, sig, nil, func(r querysync.Result) { render(r) })
//	defer stop()
//
// # Procedures
//
// A Router registers typed procedures. Params are decoded from JSON and,
// when they implement validation.Validatable, validated before the handler
// runs. Commands declare their InvalidationRule next to their handler:
//
//	router := querysync.NewRouter()
//	querysync.Query(router, "getAllPosts", feed.AllPosts)
//	querysync.Command(router, "createPost", querysync.Invalidates("getAllPosts"), feed.CreatePost)
//
// # Mutation Ordering
//
// Invalidation runs strictly after the write is acknowledged. Signatures with
// no subscribers stay absent and are fetched lazily on the next read;
// subscribed ones are moved to loading before Mutate returns and refetched in
// the background. Observers do not see the removal, only loading followed by
// the new outcome.
//
// # Error Handling
//
// Reads never return Go errors: failures are stored as error entries holding
// a cache.ErrorInfo. A hydrated error entry is refetched on first mount; other
// error entries are served until Refetch or invalidation. Mutations return
// the classified ErrorInfo and invalidate nothing on failure.
//
// # Tracing
//
// Fetches and mutations open querysync.fetch and querysync.mutate spans on the
// tracer given by WithTracer, or on the global OpenTelemetry provider.
package querysync
