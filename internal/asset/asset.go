package asset

import (
	"encoding/json"
	"time"
)

// Bundle is the merged payload served for one creator.
type Bundle struct {
	TShirts    []json.RawMessage `json:"tshirts"`
	GamePasses []GamePass        `json:"gamepasses"`
	Updated    time.Time         `json:"updated"`
}

type GamePass struct {
	ID    int64 `json:"id"`
	Price int64 `json:"price"`
}

type Query struct {
	Username string
	UserID   string
}

// Entry is a stored bundle as the store last saw it.
type Entry struct {
	Data    []byte
	ModTime time.Time
}

type Config struct {
	// FreshFor is how long a stored bundle is served without refetching.
	FreshFor      time.Duration
	MaxPages      int
	PassesPerPage int
	// FilterPassCreator drops passes whose creator is not the requested user.
	FilterPassCreator bool
}

const (
	DefaultFreshFor      = 600 * time.Second
	DefaultMaxPages      = 50
	DefaultPassesPerPage = 100
)

func (c Config) withDefaults() Config {
	if c.FreshFor <= 0 {
		c.FreshFor = DefaultFreshFor
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.PassesPerPage <= 0 {
		c.PassesPerPage = DefaultPassesPerPage
	}
	return c
}
