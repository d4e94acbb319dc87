package pluginmanager_test

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/plugify-go/plugify/internal/localindex"
	"github.com/plugify-go/plugify/internal/pluginmanager"
)

type fixturePlugin struct {
	name         string
	language     string
	dependencies []string
}

type fixtureModule struct {
	name     string
	language string
}

// writeFixtureIndex lays out plugin and module descriptors under baseDir in
// the "<base>/<plugins|modules>/<name>/<name>.ext" shape localindex.Load
// expects, then loads them into an Index.
func writeFixtureIndex(t *testing.T, plugins []fixturePlugin, modules []fixtureModule) *localindex.Index {
	t.Helper()
	base := t.TempDir()

	for _, p := range plugins {
		deps := make([]map[string]interface{}, 0, len(p.dependencies))
		for _, d := range p.dependencies {
			deps = append(deps, map[string]interface{}{"name": d})
		}
		writeDescriptor(t, filepath.Join(base, "plugins", p.name, p.name+".plugin"), map[string]interface{}{
			"fileVersion":    1,
			"version":        1,
			"friendlyName":   p.name,
			"entryPoint":     "entry",
			"languageModule": map[string]string{"name": p.language},
			"dependencies":   deps,
		})
	}

	for _, m := range modules {
		writeDescriptor(t, filepath.Join(base, "modules", m.name, m.name+".module"), map[string]interface{}{
			"fileVersion":  1,
			"version":      1,
			"friendlyName": m.name,
			"language":     m.language,
		})
	}

	idx, err := localindex.Load(base, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("localindex.Load: %v", err)
	}
	return idx
}

func writeDescriptor(t *testing.T, path string, body map[string]interface{}) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal descriptor: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
}

func TestLoadAllIsolatesPluginWithMissingLanguageModule(t *testing.T) {
	t.Parallel()
	idx := writeFixtureIndex(t, []fixturePlugin{
		{name: "pluginA", language: "py"},
	}, nil)

	mgr := pluginmanager.New(log.New(io.Discard, "", 0))
	if err := mgr.LoadAll(idx); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	matches := mgr.FindByName("pluginA", false)
	if len(matches) != 1 {
		t.Fatalf("expected exactly one plugin named pluginA, got %d", len(matches))
	}
	if matches[0].State != pluginmanager.PluginError {
		t.Fatalf("state = %v, want error (no such language module)", matches[0].State)
	}
}

func TestLoadAllDetectsCycleAndIsolatesBothPlugins(t *testing.T) {
	t.Parallel()
	idx := writeFixtureIndex(t,
		[]fixturePlugin{
			{name: "A", language: "lua", dependencies: []string{"B"}},
			{name: "B", language: "lua", dependencies: []string{"A"}},
		},
		[]fixtureModule{{name: "lua", language: "lua"}},
	)

	mgr := pluginmanager.New(log.New(io.Discard, "", 0))
	if err := mgr.LoadAll(idx); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	for _, name := range []string{"A", "B"} {
		matches := mgr.FindByName(name, false)
		if len(matches) != 1 {
			t.Fatalf("expected exactly one plugin named %q, got %d", name, len(matches))
		}
		if matches[0].State != pluginmanager.PluginError {
			t.Fatalf("%s state = %v, want error (cycle)", name, matches[0].State)
		}
	}
}

func TestFindByNameContainsIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	idx := writeFixtureIndex(t, []fixturePlugin{
		{name: "HelloWorld", language: "py"},
	}, nil)

	mgr := pluginmanager.New(log.New(io.Discard, "", 0))
	if err := mgr.LoadAll(idx); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	matches := mgr.FindByName("hello", true)
	if len(matches) != 1 {
		t.Fatalf("expected 1 case-insensitive match, got %d", len(matches))
	}
}

func TestFindByIDAndFindByPath(t *testing.T) {
	t.Parallel()
	idx := writeFixtureIndex(t, []fixturePlugin{
		{name: "solo", language: "py"},
	}, nil)

	mgr := pluginmanager.New(log.New(io.Discard, "", 0))
	if err := mgr.LoadAll(idx); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	byName := mgr.FindByName("solo", false)
	if len(byName) != 1 {
		t.Fatalf("expected plugin solo to be loaded")
	}
	want := byName[0]

	gotByID, ok := mgr.FindByID(want.ID)
	if !ok || gotByID != want {
		t.Fatalf("FindByID(%d) = %v, %v; want %v, true", want.ID, gotByID, ok, want)
	}

	gotByPath, ok := mgr.FindByPath(want.Package.Path)
	if !ok || gotByPath != want {
		t.Fatalf("FindByPath(%q) = %v, %v; want %v, true", want.Package.Path, gotByPath, ok, want)
	}
}

func TestDependenciesTransitiveClosure(t *testing.T) {
	t.Parallel()
	idx := writeFixtureIndex(t,
		[]fixturePlugin{
			{name: "A", language: "lua", dependencies: []string{"B"}},
			{name: "B", language: "lua", dependencies: []string{"C"}},
			{name: "C", language: "lua"},
		},
		[]fixtureModule{{name: "lua", language: "lua"}},
	)

	mgr := pluginmanager.New(log.New(io.Discard, "", 0))
	if err := mgr.LoadAll(idx); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	direct, err := mgr.Dependencies("A", false)
	if err != nil {
		t.Fatalf("Dependencies: %v", err)
	}
	if len(direct) != 1 || direct[0].FriendlyName != "B" {
		t.Fatalf("direct dependencies = %+v, want just B", direct)
	}

	transitive, err := mgr.Dependencies("A", true)
	if err != nil {
		t.Fatalf("Dependencies transitive: %v", err)
	}
	if len(transitive) != 2 {
		t.Fatalf("transitive dependencies = %+v, want B and C", transitive)
	}
}

func TestDependenciesUnknownPluginErrors(t *testing.T) {
	t.Parallel()
	idx := writeFixtureIndex(t, nil, nil)

	mgr := pluginmanager.New(log.New(io.Discard, "", 0))
	if err := mgr.LoadAll(idx); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	if _, err := mgr.Dependencies("ghost", false); err == nil {
		t.Fatal("expected error looking up dependencies of an unknown plugin")
	}
}
