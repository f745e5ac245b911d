package redis

import "fmt"

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string // Environment prefix (staging/prod)
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "prod"
	switch environment {
	case "development", "staging":
		prefix = "staging"
	case "test":
		prefix = "test"
	}

	return &KeyBuilder{
		prefix: prefix,
	}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

// KeyViewDedup is the dedup window counter for one actor on one post
func (kb *KeyBuilder) KeyViewDedup(kind, postID, actorID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyViewDedup, kind, postID, actorID))
}

// KeyActiveDaily is the set of actors seen on the given date (YYYY-MM-DD)
func (kb *KeyBuilder) KeyActiveDaily(date string) string {
	return kb.BuildKey(fmt.Sprintf(KeyActiveDaily, date))
}

// KeyQueue addresses one structure (wait, active, delayed, ...) of a named queue
func (kb *KeyBuilder) KeyQueue(name, part string) string {
	return kb.BuildKey(fmt.Sprintf(KeyQueuePart, name, part))
}

// KeyQueueLease is the visibility lease of a job being processed
func (kb *KeyBuilder) KeyQueueLease(name, jobID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyQueueLease, name, jobID))
}

// KeyAnalytics caches one aggregate query result
func (kb *KeyBuilder) KeyAnalytics(query, args string) string {
	return kb.BuildKey(fmt.Sprintf(KeyAnalytics, query, args))
}
