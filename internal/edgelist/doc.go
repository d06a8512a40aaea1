// Package edgelist implements the per-device edge list: a chunked,
// concurrently appendable edge buffer that is finalized, consolidated and
// shuffled to its owning devices once filling completes.
//
// # Chunks
//
// Every enabled attribute (source, destination and the optional weight,
// edge id and edge type) is stored as an ordered sequence of fixed-capacity
// chunks of device memory. All attributes share one write cursor and always
// have the same chunk count and chunk lengths. Only the last chunk may be
// partially filled.
//
// # Lifecycle
//
// 1. Create: the first chunk of every attribute is allocated
//
//	l, err := edgelist.New(handle, edgelist.Config{
//	    ChunkCapacity: 1 << 20,
//	    Attributes:    edge.Attributes{Weight: true},
//	}, logger, metrics)
//
// 2. Fill: any number of goroutines call Append
//
//	err := l.Append(ctx, batch)
//
// 3. Finalize: after every appender returned, trim the last chunk
//
//	err := l.Finalize()
//
// 4. Consolidate and shuffle: every device of the fleet calls together
//
//	err := l.ConsolidateAndShuffle(ctx, transposed)
//
// 5. Read: one chunk per attribute holds the locally owned edges
//
//	part := l.Partition()
//
// # Thread Safety
//
// Append reserves its slots under a mutex and copies outside of it, so
// transfers from different goroutines overlap. When the last chunk is full
// and rows remain, Append allocates a new chunk for every attribute while it
// holds the lock. Each call blocks until its copies ran and the device
// stream drained.
//
// Finalize, ConsolidateAndShuffle, the column accessors and Release are not
// safe against Append or each other. Stats may be called at any time.
//
// # Errors
//
// Allocation failures and shuffle failures are fatal: the edge list must not
// be used afterwards. Column length mismatches are not detected.
package edgelist
