package checkpoint

import "strings"

// DefaultPrefix namespaces every key written by a store.
const DefaultPrefix = "portfolio_agent"

// Keys builds the storage keys for one prefix:
//
//	{prefix}:checkpoint:{thread}:{id}   checkpoint value
//	{prefix}:checkpoints:{thread}       insertion index
//	{prefix}:writes:{thread}:{id}       write value
//	{prefix}:writeids:{thread}          write ids of a thread
type Keys struct {
	prefix string
}

// NewKeys returns a key builder. Trailing colons are trimmed from prefix;
// an empty prefix falls back to DefaultPrefix.
func NewKeys(prefix string) Keys {
	prefix = strings.TrimRight(prefix, ":")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Keys{prefix: prefix}
}

// Prefix returns the normalized prefix.
func (k Keys) Prefix() string {
	return k.prefix
}

// Checkpoint returns the value key of a checkpoint.
func (k Keys) Checkpoint(threadID, checkpointID string) string {
	return k.prefix + ":checkpoint:" + threadID + ":" + checkpointID
}

// Index returns the insertion index key of a thread.
func (k Keys) Index(threadID string) string {
	return k.prefix + ":checkpoints:" + threadID
}

// Write returns the value key of a write.
func (k Keys) Write(threadID, writeID string) string {
	return k.prefix + ":writes:" + threadID + ":" + writeID
}

// WriteIDs returns the key of the set naming every write of a thread.
// Deletion reads it instead of matching key prefixes, since thread ids may
// themselves contain ':'.
func (k Keys) WriteIDs(threadID string) string {
	return k.prefix + ":writeids:" + threadID
}
