package domain

import (
	"fmt"
	"strings"
)

// ExtractionStrategy is a named fetch profile the source fetcher can be
// parameterized with. Strategies carry no state; only their order matters.
type ExtractionStrategy struct {
	Name   string `json:"name"`
	Client string `json:"client"`
}

func (s ExtractionStrategy) String() string {
	return s.Name
}

// DefaultStrategies returns the built-in order, most permissive client first.
func DefaultStrategies() []ExtractionStrategy {
	return []ExtractionStrategy{
		{Name: "android", Client: "android"},
		{Name: "ios", Client: "ios"},
		{Name: "web", Client: "web"},
		{Name: "tv_embedded", Client: "tv_embedded"},
	}
}

// ParseStrategies builds strategies from config entries. An entry is either
// a bare client name or "name=client".
func ParseStrategies(entries []string) ([]ExtractionStrategy, error) {
	out := make([]ExtractionStrategy, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		name, client := entry, entry
		if idx := strings.Index(entry, "="); idx >= 0 {
			name = strings.TrimSpace(entry[:idx])
			client = strings.TrimSpace(entry[idx+1:])
		}
		if name == "" || client == "" {
			return nil, fmt.Errorf("invalid strategy %q", raw)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate strategy %q", name)
		}
		seen[name] = struct{}{}
		out = append(out, ExtractionStrategy{Name: name, Client: client})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one extraction strategy is required")
	}
	return out, nil
}
