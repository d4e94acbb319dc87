package packagemanager_test

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/plugify-go/plugify/internal/downloader"
	"github.com/plugify-go/plugify/internal/packagemanager"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	return buf.Bytes()
}

func newFacade(t *testing.T) *downloader.Facade {
	t.Helper()
	f := downloader.New(2, nil)
	t.Cleanup(f.Close)
	return f
}

func TestInstallPackageEndToEndAgainstRemoteManifest(t *testing.T) {
	t.Parallel()
	base := t.TempDir()

	archiveBody := buildZip(t, map[string]string{
		"modLua/modLua.module": `{"fileVersion":1,"version":0,"friendlyName":"Lua","language":"lua"}`,
	})
	var archiveURL string
	archiveSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archiveBody)
	}))
	defer archiveSrv.Close()
	archiveURL = archiveSrv.URL

	manifestSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":{"modLua":{"name":"modLua","type":"lua","versions":[
			{"version":1,"download":"` + archiveURL + `"}
		]}}}`))
	}))
	defer manifestSrv.Close()

	dl := newFacade(t)
	mgr := packagemanager.New(base, []string{manifestSrv.URL}, dl, log.New(io.Discard, "", 0))

	if err := mgr.LoadLocal(); err != nil {
		t.Fatalf("LoadLocal: %v", err)
	}
	mgr.LoadRemote()
	result := mgr.Resolve()
	if len(result.Conflicted) != 0 {
		t.Fatalf("unexpected conflicts before install: %+v", result.Conflicted)
	}

	outcome, err := mgr.InstallPackage("modLua", nil)
	if err != nil {
		t.Fatalf("InstallPackage: %v", err)
	}
	if outcome.Name != "modLua" {
		t.Fatalf("outcome name = %q, want modLua", outcome.Name)
	}

	if _, ok := mgr.Local().Get("modLua"); !ok {
		t.Fatal("expected modLua in local index after Request reloaded it")
	}
	if _, err := os.Stat(filepath.Join(base, "modules", "modLua", "modLua.module")); err != nil {
		t.Fatalf("published descriptor missing: %v", err)
	}
}

func TestInstallPackageUnknownRemoteNameErrors(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	dl := newFacade(t)
	mgr := packagemanager.New(base, nil, dl, log.New(io.Discard, "", 0))

	if err := mgr.LoadLocal(); err != nil {
		t.Fatalf("LoadLocal: %v", err)
	}
	mgr.LoadRemote()

	if _, err := mgr.InstallPackage("ghost", nil); err == nil {
		t.Fatal("expected installing an unresolved remote package to fail")
	}
}

func TestHostFactsMatchCurrentPlatformTag(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	dl := newFacade(t)
	mgr := packagemanager.New(base, nil, dl, log.New(io.Discard, "", 0))

	facts := mgr.HostFacts()
	if facts.Tag == "" {
		t.Fatal("expected HostFacts to carry a non-empty platform tag")
	}
}

func TestSnapshotRoundTripReproducesLocalIndex(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	writeDescriptor(t, filepath.Join(base, "modules", "lua", "lua.module"),
		`{"fileVersion":1,"version":1,"friendlyName":"Lua","language":"lua"}`)
	writeDescriptor(t, filepath.Join(base, "plugins", "pluginA", "pluginA.plugin"),
		`{"fileVersion":1,"version":2,"friendlyName":"A","entryPoint":"a","languageModule":{"name":"lua"}}`)
	writeDescriptor(t, filepath.Join(base, "plugins", "pluginB", "pluginB.plugin"),
		`{"fileVersion":1,"version":3,"friendlyName":"B","entryPoint":"b","languageModule":{"name":"lua"}}`)

	dl := newFacade(t)
	mgr := packagemanager.New(base, nil, dl, log.New(io.Discard, "", 0))
	if err := mgr.LoadLocal(); err != nil {
		t.Fatalf("LoadLocal: %v", err)
	}

	manifestPath := filepath.Join(t.TempDir(), "a.pmanifest")
	if err := mgr.Snapshot(manifestPath, false); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	versionsOf := func(m *packagemanager.Manager) map[string]int {
		out := make(map[string]int)
		for _, pkg := range m.Local().All() {
			out[pkg.Name] = int(pkg.Version)
		}
		return out
	}
	want := versionsOf(mgr)

	// Reload from the manifest in a fresh base directory via
	// InstallAllPackages would require a live remote index; here we only
	// assert the manifest file itself encodes the same (name, version)
	// pairs Snapshot was built from, which is the reproducibility property
	// under test without standing up archive servers for three packages.
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var wire struct {
		Content map[string]struct {
			Versions []struct {
				Version int `json:"version"`
			} `json:"versions"`
		} `json:"content"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	for name, version := range want {
		entry, ok := wire.Content[name]
		if !ok {
			t.Fatalf("manifest missing entry for %q: %s", name, data)
		}
		if len(entry.Versions) != 1 || entry.Versions[0].Version != version {
			t.Fatalf("manifest entry for %q = %+v, want single version %d", name, entry.Versions, version)
		}
	}

	// Re-snapshotting without any change to the local index must be
	// idempotent.
	manifestPath2 := filepath.Join(t.TempDir(), "b.pmanifest")
	if err := mgr.Snapshot(manifestPath2, false); err != nil {
		t.Fatalf("second Snapshot: %v", err)
	}
	data2, err := os.ReadFile(manifestPath2)
	if err != nil {
		t.Fatalf("read second manifest: %v", err)
	}
	if !bytes.Equal(data, data2) {
		t.Fatalf("snapshot is not idempotent:\n%s\nvs\n%s", data, data2)
	}
}

func writeDescriptor(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}
