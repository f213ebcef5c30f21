// Package featureflags evaluates FEATURE_FLAGS, a comma-separated list of
// name=value pairs such as "thing_images=on,live_feed=25%".
package featureflags

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Flags the application checks.
const (
	// ThingImages stores the optional image attached to a new thing.
	ThingImages = "thing_images"
	// LiveFeed serves the invalidation WebSocket feed.
	LiveFeed = "live_feed"
)

// Manager holds the parsed flag values.
type Manager struct {
	flags map[string]string
}

// NewManager parses raw. Malformed pairs are skipped.
func NewManager(raw string) *Manager {
	out := make(map[string]string)

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = normalize(key), normalize(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}

	return &Manager{flags: out}
}

// Enabled reports whether name is on for subject, a caller provider id or
// a client address. Values are on/true/1, off/false/0, or N% for a rollout
// that is stable per subject. Unknown flags are off.
func (m *Manager) Enabled(name, subject string) bool {
	if m == nil {
		return false
	}

	value, ok := m.flags[normalize(name)]
	if !ok {
		return false
	}

	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	pctRaw, isPct := strings.CutSuffix(value, "%")
	if !isPct {
		return false
	}
	pct, err := strconv.Atoi(pctRaw)
	switch {
	case err != nil || pct <= 0:
		return false
	case pct >= 100:
		return true
	case subject == "":
		return false
	}
	return rolloutBucket(name, subject) < pct
}

// On reports whether name is enabled for everyone. Percentage rollouts
// below 100% are off here.
func (m *Manager) On(name string) bool {
	return m.Enabled(name, "")
}

// Snapshot returns the evaluated flags for subject.
func (m *Manager) Snapshot(subject string) map[string]bool {
	if m == nil {
		return map[string]bool{}
	}
	out := make(map[string]bool, len(m.flags))
	for name := range m.flags {
		out[name] = m.Enabled(name, subject)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name, subject string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + subject))
	return int(h.Sum32() % 100)
}
