// Package packagemanager orchestrates the local index, remote index,
// resolver and installer into the public install/update/uninstall/snapshot
// surface. Every mutating operation runs inside Request, which times the
// closure, waits for outstanding downloads, and reloads the local index so
// post-conditions reflect actual disk state.
package packagemanager

import (
	"log"
	"time"

	"github.com/plugify-go/plugify/internal/descriptor"
	"github.com/plugify-go/plugify/internal/downloader"
	"github.com/plugify-go/plugify/internal/installer"
	"github.com/plugify-go/plugify/internal/localindex"
	"github.com/plugify-go/plugify/internal/platform"
	"github.com/plugify-go/plugify/internal/remoteindex"
	"github.com/plugify-go/plugify/internal/resolver"
)

// Manager owns the local/remote indexes and drives resolution and
// installation against a single on-disk base directory.
type Manager struct {
	baseDir     string
	configRepos []string

	dl  *downloader.Facade
	in  *installer.Installer
	log *log.Logger

	local  *localindex.Index
	remote *remoteindex.Index
	result resolver.Result
	facts  platform.Facts
}

// New constructs a Manager rooted at baseDir, using dl for all network
// fetches (remote manifests and package archives alike).
func New(baseDir string, configRepos []string, dl *downloader.Facade, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		baseDir:     baseDir,
		configRepos: append([]string(nil), configRepos...),
		dl:          dl,
		in:          installer.New(baseDir, dl, logger),
		log:         logger,
		facts:       platform.Gather(),
	}
}

// HostFacts returns the environment facts gathered for this Manager at
// construction time (OS/arch plus best-effort host and kernel version).
// Resolve logs these alongside any conflict it finds, so an operator
// diagnosing a platform-specific failure can see the exact host it
// occurred on without re-running the tool under a debugger.
func (m *Manager) HostFacts() platform.Facts { return m.facts }

func (m *Manager) warn(format string, args ...interface{}) { m.log.Printf(format, args...) }

// Local returns the most recently loaded local index, or nil if LoadLocal
// (directly, or via Request) has never run.
func (m *Manager) Local() *localindex.Index { return m.local }

// Remote returns the most recently loaded remote index, or nil if
// LoadRemote has never run.
func (m *Manager) Remote() *remoteindex.Index { return m.remote }

// Result returns the outcome of the last Resolve call.
func (m *Manager) Result() resolver.Result { return m.result }

// LoadLocal rescans the base directory and replaces the in-memory local
// index. When a previous local index already exists, unchanged descriptor
// files (by content fingerprint) are carried over instead of re-parsed.
func (m *Manager) LoadLocal() error {
	if m.local != nil {
		idx, err := localindex.Rescan(m.baseDir, m.local, m.log)
		if err != nil {
			return err
		}
		m.local = idx
		return nil
	}
	idx, err := localindex.Load(m.baseDir, m.log)
	if err != nil {
		return err
	}
	m.local = idx
	return nil
}

// LoadRemote aggregates manifests from the configured repositories plus
// every local package's own update URL, replacing the in-memory remote
// index. LoadLocal must have already run at least once.
func (m *Manager) LoadRemote() {
	var locals []localindex.Package
	if m.local != nil {
		locals = m.local.All()
	}
	m.remote = remoteindex.Load(m.dl, m.configRepos, locals, m.log)
}

// Resolve computes missing/conflicted packages from the current local and
// remote indexes.
func (m *Manager) Resolve() resolver.Result {
	var local *localindex.Index
	if m.local != nil {
		local = m.local
	} else {
		local, _ = localindex.Load(m.baseDir, m.log)
		m.local = local
	}
	remote := m.remote
	if remote == nil {
		remote = remoteindex.Load(m.dl, nil, nil, m.log)
		m.remote = remote
	}
	m.result = resolver.Resolve(local, remote, m.log)
	if len(m.result.Conflicted) > 0 {
		m.warn("packagemanager: %d plugin(s) conflicted on host %s (platform=%s kernel=%s)",
			len(m.result.Conflicted), m.facts.Tag, m.facts.HostPlatform, m.facts.KernelVersion)
	}
	return m.result
}

// Request wraps a mutating closure with standard bookkeeping: record a
// start time, run the closure, drain all outstanding downloads, reload the
// local index, and log the total elapsed time. The closure's error, if
// any, is returned unchanged after that bookkeeping still runs.
func (m *Manager) Request(closure func() error) error {
	start := time.Now()
	err := closure()
	m.dl.WaitForAllRequests()
	if reloadErr := m.LoadLocal(); reloadErr != nil {
		m.warn("packagemanager: reload local index after request: %v", reloadErr)
		if err == nil {
			err = reloadErr
		}
	}
	m.warn("packagemanager: request completed in %dms", time.Since(start).Milliseconds())
	return err
}

// InstallPackage installs a resolved remote package by name, honoring an
// optional explicit version pin.
func (m *Manager) InstallPackage(name string, requestedVersion *descriptor.Version) (installer.Outcome, error) {
	var outcome installer.Outcome
	err := m.Request(func() error {
		remotePkg, ok := m.remote.Get(name)
		if !ok {
			return errUnknownRemote(name)
		}
		var err error
		outcome, err = m.in.InstallPackage(m.local, remotePkg, requestedVersion)
		return err
	})
	return outcome, err
}

// UpdatePackage brings an already-installed package up (or down) to
// requestedVersion, or latest when nil.
func (m *Manager) UpdatePackage(name string, requestedVersion *descriptor.Version) (installer.Outcome, error) {
	var outcome installer.Outcome
	err := m.Request(func() error {
		localPkg, ok := m.local.Get(name)
		if !ok {
			return errUnknownLocal(name)
		}
		remotePkg, ok := m.remote.Get(name)
		if !ok {
			return errUnknownRemote(name)
		}
		var err error
		outcome, err = m.in.UpdatePackage(localPkg, remotePkg, requestedVersion)
		return err
	})
	return outcome, err
}

// UninstallPackage removes an installed package from disk and, when
// removeFromIndex is true, the in-memory local index observes its absence
// once Request reloads it.
func (m *Manager) UninstallPackage(name string, removeFromIndex bool) error {
	return m.Request(func() error {
		localPkg, ok := m.local.Get(name)
		if !ok {
			return errUnknownLocal(name)
		}
		return installer.UninstallPackage(localPkg, removeFromIndex, m.log)
	})
}

// InstallAllPackages reads a snapshot manifest and installs every entry not
// already present locally (or, when reinstall is true, uninstalls and
// reinstalls every entry regardless of current state). Each entry is
// installed at the snapshot's recorded version; download metadata (URL,
// checksum) comes from the live remote index, since Snapshot records only
// identity and version, not a second source of download metadata.
func (m *Manager) InstallAllPackages(manifestPath string, reinstall bool) error {
	return m.Request(func() error {
		snap, err := loadSnapshot(manifestPath)
		if err != nil {
			return err
		}
		for _, entry := range snap.Content {
			if _, exists := m.local.Get(entry.Name); exists {
				if !reinstall {
					continue
				}
				if localPkg, ok := m.local.Get(entry.Name); ok {
					if err := installer.UninstallPackage(localPkg, true, m.log); err != nil {
						m.warn("packagemanager: reinstall %q: uninstall failed: %v", entry.Name, err)
						continue
					}
					if err := m.LoadLocal(); err != nil {
						m.warn("packagemanager: reinstall %q: reload local index: %v", entry.Name, err)
						continue
					}
				}
			}

			remotePkg, ok := m.remote.Get(entry.Name)
			if !ok {
				m.warn("packagemanager: %q from snapshot has no remote entry, skipping", entry.Name)
				continue
			}
			v := entry.Version
			if _, err := m.in.InstallPackage(m.local, remotePkg, &v); err != nil {
				m.warn("packagemanager: installing %q from snapshot: %v", entry.Name, err)
			}
		}
		return nil
	})
}

// Snapshot writes the current local index to path as an aggregate manifest
// (name, type and version only; every package is recorded as a single-version
// entry with no download metadata, since a snapshot exists to reproduce
// identities and versions, not to serve as a second remote source).
func (m *Manager) Snapshot(path string, prettify bool) error {
	idx := m.local
	if idx == nil {
		var err error
		idx, err = localindex.Load(m.baseDir, m.log)
		if err != nil {
			return err
		}
	}
	return writeSnapshot(path, idx.All(), prettify)
}

func errUnknownRemote(name string) error { return &notFoundError{kind: "remote", name: name} }
func errUnknownLocal(name string) error  { return &notFoundError{kind: "local", name: name} }

type notFoundError struct {
	kind string
	name string
}

func (e *notFoundError) Error() string {
	return "packagemanager: no " + e.kind + " package named " + e.name
}
