package model

import (
	"fmt"
	"sort"
	"strings"
)

// ConfigID identifies a BuildRequestConfiguration within a session.
//
// Negative values are assigned by a worker node (generated, not yet
// reconciled with the session); positive values are authoritative,
// session-assigned identities; zero means "unassigned". An id is assigned
// exactly once — see configcache.Cache.assignIDLocked.
type ConfigID int32

// IsUnassigned reports whether the id has not yet been granted identity.
func (id ConfigID) IsUnassigned() bool { return id == 0 }

// IsGenerated reports whether the id was minted by a worker, not the session.
func (id ConfigID) IsGenerated() bool { return id < 0 }

// Configuration identifies a (project path, global properties, tools
// version) triple. Two configurations are equal iff they would produce
// identical evaluations: project path compared case-insensitively, tools
// version compared case-insensitively, global properties compared as an
// order-independent, case-insensitive-key, ordinal-value map.
type Configuration struct {
	GlobalProperties map[string]string
	ProjectFullPath  string
	ToolsVersion     string
	ID               ConfigID
	RequestedAffinity Affinity
	// IsCacheable is false for configurations materialized directly from an
	// in-memory ProjectInstance (spec.md §3): there is nothing on disk to
	// reload them from.
	IsCacheable bool
	// TranslateEntireState mirrors the node-protocol rule: when true, the
	// complete evaluated project state travels with the configuration
	// registration packet instead of just path + global properties.
	TranslateEntireState bool
}

// NewConfiguration builds a Configuration from request data, unassigned.
func NewConfiguration(projectFullPath, toolsVersion string, globalProperties map[string]string, affinity Affinity) *Configuration {
	normalized := make(map[string]string, len(globalProperties))
	for k, v := range globalProperties {
		normalized[strings.ToLower(k)] = v
	}
	return &Configuration{
		ProjectFullPath:   projectFullPath,
		ToolsVersion:      toolsVersion,
		GlobalProperties:  normalized,
		RequestedAffinity: affinity,
		IsCacheable:       true,
	}
}

// Key returns the semantic equality key used by the config cache's
// secondary (by-identity) lookup index. It is case-insensitive over
// project path and tools version, and order-independent over global
// properties since the backing map is iterated in sorted key order.
func (c *Configuration) Key() string {
	names := make([]string, 0, len(c.GlobalProperties))
	for k := range c.GlobalProperties {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(strings.ToLower(c.ProjectFullPath))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(c.ToolsVersion))
	for _, k := range names {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(c.GlobalProperties[k])
	}
	return b.String()
}

// ShallowCloneWithNewID produces a copy of c carrying a freshly-assigned
// id, as required when a generated (negative) id must be reconciled with
// a session-authoritative one. The original is left untouched.
func (c *Configuration) ShallowCloneWithNewID(id ConfigID) *Configuration {
	clone := *c
	clone.ID = id
	props := make(map[string]string, len(c.GlobalProperties))
	for k, v := range c.GlobalProperties {
		props[k] = v
	}
	clone.GlobalProperties = props
	return &clone
}

// String implements a compact debug form used in logs.
func (c *Configuration) String() string {
	return fmt.Sprintf("%s@%s#%d", c.ProjectFullPath, c.ToolsVersion, c.ID)
}
