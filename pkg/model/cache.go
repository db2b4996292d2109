package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// CacheEntry is an opaque value stored per (key, agent) pair. Writing an
// existing pair replaces its value.
type CacheEntry struct {
	Key       string
	AgentID   AccountID
	Value     string
	CreatedAt time.Time
}

// Validate checks the composite key is complete
func (c *CacheEntry) Validate() error {
	if c.Key == "" {
		return goerr.New("cache key is required", goerr.T(ErrTagValidation))
	}
	if c.AgentID == "" {
		return goerr.New("cache agent ID is required", goerr.T(ErrTagValidation))
	}
	return nil
}
