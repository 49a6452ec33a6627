package nostr

import (
	"slices"
)

// Filter is a query descriptor, a conjunction of optional constraints.
// The same filter is evaluated against the local store and sent to relays.
type Filter struct {
	Ids     []string `json:"ids,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Kinds   []int    `json:"kinds,omitempty"`
	DTags   []string `json:"#d,omitempty"`
	Since   int64    `json:"since,omitempty"`
	Until   int64    `json:"until,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

func (self *Filter) Matches(event *Event) bool {
	if 0 < len(self.Ids) && !slices.Contains(self.Ids, event.Id) {
		return false
	}
	if 0 < len(self.Authors) && !slices.Contains(self.Authors, event.Pubkey) {
		return false
	}
	if 0 < len(self.Kinds) && !slices.Contains(self.Kinds, event.Kind) {
		return false
	}
	if 0 < len(self.DTags) && !slices.Contains(self.DTags, event.DTag()) {
		return false
	}
	if 0 < self.Since && event.CreatedAt < self.Since {
		return false
	}
	if 0 < self.Until && self.Until < event.CreatedAt {
		return false
	}
	return true
}
