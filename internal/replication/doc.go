// Package replication seeds an empty store from peers. The file is split
// into fixed-size chunks that one worker per peer fetches until every chunk
// has been filled or no worker can make progress.
package replication
