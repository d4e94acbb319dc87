package pluginmanager

// dependencyEdges returns the names of plugins p non-optionally depends
// on, restricted to dependencies that resolve to another plugin in
// byName (dependencies satisfied by a language module or left
// unresolved are not graph edges here — those are the resolver's
// concern, not the load-order graph's).
func dependencyEdges(p *Plugin, byName map[string]*Plugin) []string {
	var edges []string
	for _, dep := range p.Package.Descriptor.Dependencies {
		if dep.Optional {
			continue
		}
		if _, ok := byName[dep.Name]; ok {
			edges = append(edges, dep.Name)
		}
	}
	return edges
}

type visitState int

const (
	unvisited visitState = iota
	visiting
	visited
)

// detectCycles runs DFS over the plugin dependency graph and returns
// every plugin that sits on a cycle.
func detectCycles(plugins []*Plugin, byName map[string]*Plugin) []*Plugin {
	state := make(map[string]visitState, len(plugins))
	var cyclic []*Plugin
	cyclicSet := make(map[string]bool)

	var stack []string
	var visit func(name string)
	visit = func(name string) {
		p, ok := byName[name]
		if !ok || p.State == PluginError {
			return
		}
		switch state[name] {
		case visiting:
			// Found a back-edge: every plugin currently on the stack from
			// name onward is part of a cycle.
			for i := len(stack) - 1; i >= 0; i-- {
				if !cyclicSet[stack[i]] {
					cyclicSet[stack[i]] = true
					cyclic = append(cyclic, byName[stack[i]])
				}
				if stack[i] == name {
					break
				}
			}
			return
		case visited:
			return
		}

		state[name] = visiting
		stack = append(stack, name)

		for _, dep := range dependencyEdges(p, byName) {
			visit(dep)
		}

		stack = stack[:len(stack)-1]
		state[name] = visited
	}

	for _, p := range plugins {
		if state[p.Package.Name] == unvisited {
			visit(p.Package.Name)
		}
	}
	return cyclic
}

// topologicalOrder returns plugins in an order consistent with every
// non-optional dependency edge (dependents after dependencies). Plugins
// already marked PluginError are still included (so the caller can skip
// them uniformly) but contribute no edges.
func topologicalOrder(plugins []*Plugin, byName map[string]*Plugin) []*Plugin {
	visited := make(map[string]bool, len(plugins))
	var order []*Plugin

	var visit func(p *Plugin)
	visit = func(p *Plugin) {
		if visited[p.Package.Name] {
			return
		}
		visited[p.Package.Name] = true
		if p.State != PluginError {
			for _, dep := range dependencyEdges(p, byName) {
				if depPlugin, ok := byName[dep]; ok {
					visit(depPlugin)
				}
			}
		}
		order = append(order, p)
	}

	for _, p := range plugins {
		visit(p)
	}
	return order
}
