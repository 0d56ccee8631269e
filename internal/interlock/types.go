package interlock

import (
	"sort"

	"github.com/tankwanghow/pou-con-sub006/internal/equipment"
	"github.com/tankwanghow/pou-con-sub006/internal/rules"
)

// Decision is the permission verdict for starting one piece of
// equipment.
type Decision struct {
	Allowed bool `json:"allowed"`

	// BlockedBy names the stopped upstreams, empty when allowed.
	BlockedBy []string `json:"blocked_by,omitempty"`
}

// clone returns an independent copy so cache entries stay immutable
// once published.
func (d Decision) clone() Decision {
	if d.BlockedBy == nil {
		return d
	}
	cpy := d
	cpy.BlockedBy = make([]string, len(d.BlockedBy))
	copy(cpy.BlockedBy, d.BlockedBy)
	return cpy
}

// runningFields are the status fields probed for an upstream's running
// state, in fixed order. The first present, non-nil field decides.
var runningFields = [...]string{"is_running", "is_on"}

// equipmentRunning extracts a running verdict from a status map. The
// second return reports whether any running field was present and
// boolean.
func equipmentRunning(status equipment.StatusMap) (bool, bool) {
	for _, key := range runningFields {
		v, present := status[key]
		if !present || v == nil {
			continue
		}
		b, ok := v.(bool)
		return b, ok
	}
	return false, false
}

// ruleGraph is the dependency graph derived from one rule set. Graphs
// are immutable once built; reloads replace the whole value.
type ruleGraph struct {
	rules []rules.InterlockRule

	// downstreams maps an upstream name to the dependents stopped when
	// it stops. Deduplicated and sorted for stable command order.
	downstreams map[string][]string

	// upstreams maps a downstream name to its prerequisites.
	upstreams map[string][]string

	// names is every equipment name appearing in any rule, sorted.
	names []string

	// tracked is every upstream name, sorted. These are the names the
	// engine reads on each refresh.
	tracked []string
}

// buildGraph derives the dependency graph from a rule list. Duplicate
// edges collapse to one so a cascade issues exactly one stop per
// dependent.
func buildGraph(list []rules.InterlockRule) *ruleGraph {
	g := &ruleGraph{
		rules:       list,
		downstreams: make(map[string][]string),
		upstreams:   make(map[string][]string),
	}

	seen := make(map[string]struct{})
	edges := make(map[string]struct{})
	for _, r := range list {
		key := r.UpstreamName + "\x00" + r.DownstreamName
		if _, dup := edges[key]; dup {
			continue
		}
		edges[key] = struct{}{}
		g.downstreams[r.UpstreamName] = append(g.downstreams[r.UpstreamName], r.DownstreamName)
		g.upstreams[r.DownstreamName] = append(g.upstreams[r.DownstreamName], r.UpstreamName)
		seen[r.UpstreamName] = struct{}{}
		seen[r.DownstreamName] = struct{}{}
	}

	g.names = make([]string, 0, len(seen))
	for name := range seen {
		g.names = append(g.names, name)
	}
	sort.Strings(g.names)

	g.tracked = make([]string, 0, len(g.downstreams))
	for name := range g.downstreams {
		g.tracked = append(g.tracked, name)
	}
	sort.Strings(g.tracked)

	for _, deps := range g.downstreams {
		sort.Strings(deps)
	}
	for _, ups := range g.upstreams {
		sort.Strings(ups)
	}
	return g
}
