package types

import (
	"fmt"
	"strings"
)

// OverflowPolicy decides what a bounded buffer does with a write when it is full.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest buffered item to make room.
	DropOldest OverflowPolicy = iota
	// DropNewest rejects the incoming item.
	DropNewest
	// Block waits for room, up to a timeout, then rejects the incoming item.
	Block
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop-oldest"
	case DropNewest:
		return "drop-newest"
	case Block:
		return "block"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", int(p))
	}
}

// Decode implements envconfig.Decoder.
func (p *OverflowPolicy) Decode(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "drop-oldest", "drop_oldest", "oldest":
		*p = DropOldest
	case "drop-newest", "drop_newest", "newest":
		*p = DropNewest
	case "block":
		*p = Block
	default:
		return fmt.Errorf("unknown overflow policy %q", value)
	}
	return nil
}
