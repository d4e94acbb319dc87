package installer_test

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/plugify-go/plugify/internal/descriptor"
	"github.com/plugify-go/plugify/internal/downloader"
	"github.com/plugify-go/plugify/internal/installer"
	"github.com/plugify-go/plugify/internal/localindex"
	"github.com/plugify-go/plugify/internal/remoteindex"
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

func TestInstallPackageSucceedsAndPublishesAtomically(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	archive := buildZip(t, map[string]string{
		"modA/modA.module": `{"fileVersion":1,"version":0,"friendlyName":"A","language":"lua"}`,
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	dl := newFacade(t)
	local, err := localindex.Load(base, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("load local: %v", err)
	}

	remote := remoteindex.Package{
		Name: "modA",
		Type: "lua",
		Versions: []remoteindex.Version{
			{Version: descriptor.Version(1), DownloadURL: srv.URL},
		},
	}

	in := installer.New(base, dl, log.New(io.Discard, "", 0))
	outcome, err := in.InstallPackage(local, remote, nil)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if outcome.ChosenVersion != descriptor.Version(1) {
		t.Fatalf("chosen version = %s, want 1", outcome.ChosenVersion)
	}
	if _, err := os.Stat(filepath.Join(base, "modules", "modA", "modA.module")); err != nil {
		t.Fatalf("published descriptor missing: %v", err)
	}
	if _, err := os.Stat(outcome.StageDir); !os.IsNotExist(err) {
		t.Fatalf("staging directory should have been renamed away: %v", err)
	}
}

func TestInstallPackageRejectsWhenAlreadyLocal(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	mustWriteDescriptor(t, filepath.Join(base, "modules", "modA", "modA.module"),
		`{"fileVersion":1,"version":0,"friendlyName":"A","language":"lua"}`)

	local, err := localindex.Load(base, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("load local: %v", err)
	}

	dl := newFacade(t)
	in := installer.New(base, dl, log.New(io.Discard, "", 0))
	remote := remoteindex.Package{Name: "modA", Type: "lua", Versions: []remoteindex.Version{{Version: descriptor.Version(1), DownloadURL: "https://example.test/x"}}}

	if _, err := in.InstallPackage(local, remote, nil); err == nil {
		t.Fatal("expected install to be rejected for an already-local package")
	}
}

func TestInstallPackageAbortsOnChecksumMismatch(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	archive := buildZip(t, map[string]string{"modA/modA.module": `{"fileVersion":1,"version":0,"friendlyName":"A","language":"lua"}`})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	dl := newFacade(t)
	local, err := localindex.Load(base, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("load local: %v", err)
	}
	remote := remoteindex.Package{
		Name: "modA",
		Type: "lua",
		Versions: []remoteindex.Version{
			{Version: descriptor.Version(1), DownloadURL: srv.URL, Checksum: "deadbeef"},
		},
	}

	in := installer.New(base, dl, log.New(io.Discard, "", 0))
	_, err = in.InstallPackage(local, remote, nil)
	if err == nil {
		t.Fatal("expected checksum mismatch to abort install")
	}
	if installer.StatusOf(err) != installer.StatusChecksumMismatch {
		t.Fatalf("status = %v, want checksum-mismatch", installer.StatusOf(err))
	}

	entries, _ := os.ReadDir(filepath.Join(base, "modules"))
	for _, e := range entries {
		if e.Name() == "modA" {
			t.Fatal("publish directory should not exist after checksum mismatch")
		}
	}
}

func TestInstallPackageRejectsArchiveWithoutDescriptor(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	archive := buildZip(t, map[string]string{"README.txt": "hello"})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	dl := newFacade(t)
	local, err := localindex.Load(base, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("load local: %v", err)
	}
	remote := remoteindex.Package{
		Name:     "modA",
		Type:     "lua",
		Versions: []remoteindex.Version{{Version: descriptor.Version(1), DownloadURL: srv.URL}},
	}

	in := installer.New(base, dl, log.New(io.Discard, "", 0))
	if _, err := in.InstallPackage(local, remote, nil); err == nil {
		t.Fatal("expected archive without a module descriptor to be rejected")
	} else if installer.StatusOf(err) != installer.StatusArchiveInvalid {
		t.Fatalf("status = %v, want archive-invalid", installer.StatusOf(err))
	}
}

func TestInstallPackageAbortsOnNon200(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dl := newFacade(t)
	local, err := localindex.Load(base, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("load local: %v", err)
	}
	remote := remoteindex.Package{
		Name:     "modA",
		Type:     "lua",
		Versions: []remoteindex.Version{{Version: descriptor.Version(1), DownloadURL: srv.URL}},
	}

	in := installer.New(base, dl, log.New(io.Discard, "", 0))
	if _, err := in.InstallPackage(local, remote, nil); err == nil {
		t.Fatal("expected non-200 response to abort install")
	} else if installer.StatusOf(err) != installer.StatusTransport {
		t.Fatalf("status = %v, want transport", installer.StatusOf(err))
	}
}

func TestUninstallPackageRemovesDirectory(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	descPath := filepath.Join(base, "plugins", "pluginA", "pluginA.plugin")
	mustWriteDescriptor(t, descPath, `{"fileVersion":1,"version":0,"friendlyName":"A","entryPoint":"a.dll","languageModule":{"name":"lua"}}`)

	local, err := localindex.Load(base, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("load local: %v", err)
	}
	pkg, ok := local.Get("pluginA")
	if !ok {
		t.Fatal("expected pluginA in local index")
	}

	if err := installer.UninstallPackage(pkg, true, log.New(io.Discard, "", 0)); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(descPath)); !os.IsNotExist(err) {
		t.Fatalf("plugin directory should have been removed: %v", err)
	}
}

func mustWriteDescriptor(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestSHA256HexDigestIsFullLengthAndDeterministic(t *testing.T) {
	// sanity check of the digest form the installer compares checksums
	// against: a SHA-256 hex digest is 64 characters long and identical for
	// identical input. The installer itself is not called here.
	data := []byte("hello world")
	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if len(got) != sha256.Size*2 {
		t.Fatalf("sha256 hex digest length = %d, want %d", len(got), sha256.Size*2)
	}
	sum2 := sha256.Sum256(data)
	if got != hex.EncodeToString(sum2[:]) {
		t.Fatal("sha256 digest is not deterministic for identical input")
	}
}
