package fixturetypes

import (
	"fmt"
	"sort"
	"strings"
)

// ArtifactSet maps a slash-separated path to the text content of a collected
// output file. Keys are relative to the output directory or absolute,
// depending on Options.Absolute.
type ArtifactSet map[string]string

// Keys returns the artifact paths in sorted order.
func (s ArtifactSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the first artifact, in key order, whose path ends with suffix.
func (s ArtifactSet) Lookup(suffix string) (string, string, bool) {
	for _, k := range s.Keys() {
		if strings.HasSuffix(k, suffix) {
			return k, s[k], true
		}
	}
	return "", "", false
}

// CollisionPolicy decides which entry survives when the output scan and the
// cache scan produce the same key.
type CollisionPolicy int

const (
	// CacheWins keeps the cache entry. Cache is scanned second, so this is
	// plain last-write-wins.
	CacheWins CollisionPolicy = iota
	// OutputWins keeps the output directory entry.
	OutputWins
	// Namespaced prefixes every cache key with CacheKeyPrefix so the two
	// sources never collide.
	Namespaced
)

// CacheKeyPrefix marks cache entries under the Namespaced policy.
const CacheKeyPrefix = "cache:"

// String returns the policy name.
func (p CollisionPolicy) String() string {
	switch p {
	case CacheWins:
		return "cache-wins"
	case OutputWins:
		return "output-wins"
	case Namespaced:
		return "namespaced"
	default:
		return "unknown"
	}
}

// ParseCollisionPolicy maps a policy name, as returned by String, to its
// value. The empty string selects CacheWins.
func ParseCollisionPolicy(name string) (CollisionPolicy, error) {
	switch name {
	case "", "cache-wins":
		return CacheWins, nil
	case "output-wins":
		return OutputWins, nil
	case "namespaced":
		return Namespaced, nil
	default:
		return CacheWins, fmt.Errorf("unknown collision policy %q", name)
	}
}

// Options are the per-call options of every harness entry point.
type Options struct {
	Absolute  bool            // Key artifacts by absolute path instead of output-relative
	Overrides map[string]any  // Merged over the project's pipeline configuration
	Collision CollisionPolicy // Output/cache merge policy
}
