package metrics

// Pre-defined metrics for the StarkNet node core. All metrics live in
// DefaultRegistry so they are globally accessible without passing a
// registry around.

var (
	// ---- Header chain metrics ----

	// ChainHeight tracks the latest canonical block number.
	ChainHeight = DefaultRegistry.Gauge("chain.height")
	// HeadersInserted counts headers successfully appended.
	HeadersInserted = DefaultRegistry.Counter("chain.headers_inserted")
	// BlocksPurged counts blocks removed by purge_block.
	BlocksPurged = DefaultRegistry.Counter("chain.blocks_purged")
	// GapSearches counts invocations of next_gap.
	GapSearches = DefaultRegistry.Counter("chain.gap_searches")

	// ---- Trie metrics ----

	// TrieCommits counts Trie.commit invocations.
	TrieCommits = DefaultRegistry.Counter("trie.commits")
	// TrieCommitTime records commit duration in milliseconds.
	TrieCommitTime = DefaultRegistry.Histogram("trie.commit_ms")
	// TrieNodesStored counts trie nodes flushed to the node store.
	TrieNodesStored = DefaultRegistry.Counter("trie.nodes_stored")

	// ---- Sync ingester metrics ----

	// SyncBatchSize records the number of headers persisted per batch.
	SyncBatchSize = DefaultRegistry.Histogram("sync.batch_size")
	// SyncContinuityBreaks counts check_continuity poisoning events.
	SyncContinuityBreaks = DefaultRegistry.Counter("sync.continuity_breaks")
	// SyncVerifyFailures counts headers the header chain rejected while
	// the ingester persisted a batch; Verify itself does not update it.
	SyncVerifyFailures = DefaultRegistry.Counter("sync.verify_failures")

	// ---- P2P metrics ----

	// PeersConnected tracks the current number of connected peers.
	PeersConnected = DefaultRegistry.Gauge("p2p.peers")
	// StreamRequestsSent counts outbound streaming RPCs issued.
	StreamRequestsSent = DefaultRegistry.Counter("p2p.stream_requests_sent")
)
