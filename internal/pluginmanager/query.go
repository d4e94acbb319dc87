package pluginmanager

import (
	"fmt"
	"strings"

	"github.com/plugify-go/plugify/internal/descriptor"
)

// FindByName looks up a plugin by exact name match, or, when
// caseInsensitiveContains is true, returns every plugin whose name
// contains query case-insensitively.
func (m *Manager) FindByName(query string, caseInsensitiveContains bool) []*Plugin {
	if !caseInsensitiveContains {
		if p, ok := m.byName[query]; ok {
			return []*Plugin{p}
		}
		return nil
	}

	needle := strings.ToLower(query)
	var out []*Plugin
	for _, p := range m.plugins {
		if strings.Contains(strings.ToLower(p.Package.Name), needle) {
			out = append(out, p)
		}
	}
	return out
}

// FindByID returns the plugin with the given numeric ID.
func (m *Manager) FindByID(id int) (*Plugin, bool) {
	for _, p := range m.plugins {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// FindByPath returns the plugin whose descriptor file lives at path.
func (m *Manager) FindByPath(path string) (*Plugin, bool) {
	for _, p := range m.plugins {
		if p.Package.Path == path {
			return p, true
		}
	}
	return nil, false
}

// FindByReference resolves a PluginReference to the plugin it names, if
// any is loaded under that name.
func (m *Manager) FindByReference(ref descriptor.PluginReference) (*Plugin, bool) {
	p, ok := m.byName[ref.Name]
	return p, ok
}

// Dependencies returns the descriptors of name's declared dependencies.
// When transitive is true, the set is expanded to the full transitive
// closure (each dependency visited at most once); otherwise only the
// direct dependencies are returned.
func (m *Manager) Dependencies(name string, transitive bool) ([]descriptor.Descriptor, error) {
	root, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("plugin %q not found", name)
	}

	if !transitive {
		var out []descriptor.Descriptor
		for _, dep := range root.Package.Descriptor.Dependencies {
			if p, ok := m.byName[dep.Name]; ok {
				out = append(out, p.Package.Descriptor)
			}
		}
		return out, nil
	}

	seen := map[string]bool{name: true}
	var out []descriptor.Descriptor
	var walk func(p *Plugin)
	walk = func(p *Plugin) {
		for _, dep := range p.Package.Descriptor.Dependencies {
			if seen[dep.Name] {
				continue
			}
			depPlugin, ok := m.byName[dep.Name]
			if !ok {
				continue
			}
			seen[dep.Name] = true
			out = append(out, depPlugin.Package.Descriptor)
			walk(depPlugin)
		}
	}
	walk(root)
	return out, nil
}
