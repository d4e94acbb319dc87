// Package installer verifies, extracts and atomically publishes package
// archives fetched by the downloader facade, and removes installed
// packages from disk. It never panics: every failure is surfaced as a
// logged, status-carrying error and the offending package is abandoned
// while the overall batch continues, matching §7's propagation rule.
package installer

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/plugify-go/plugify/internal/descriptor"
	"github.com/plugify-go/plugify/internal/downloader"
	"github.com/plugify-go/plugify/internal/localindex"
	"github.com/plugify-go/plugify/internal/platform"
	"github.com/plugify-go/plugify/internal/remoteindex"
)

// Status labels the outcome of an install/update attempt.
type Status int

const (
	StatusError Status = iota
	StatusChecksumMismatch
	StatusArchiveInvalid
	StatusTransport
	StatusFilesystem
)

func (s Status) String() string {
	switch s {
	case StatusChecksumMismatch:
		return "checksum-mismatch"
	case StatusArchiveInvalid:
		return "archive-invalid"
	case StatusTransport:
		return "transport"
	case StatusFilesystem:
		return "filesystem"
	default:
		return "error"
	}
}

// InstallError wraps an inner error with a Status, unwrappable via
// errors.Is/errors.As.
type InstallError struct {
	status Status
	err    error
}

func newInstallError(status Status, err error) error {
	if err == nil {
		return nil
	}
	return &InstallError{status: status, err: err}
}

func (e *InstallError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.status, e.err)
}

func (e *InstallError) Unwrap() error { return e.err }

// StatusOf returns the status code carried by an InstallError, or
// StatusError if err is not one / is nil.
func StatusOf(err error) Status {
	var ie *InstallError
	if errors.As(err, &ie) {
		return ie.status
	}
	return StatusError
}

const (
	pluginsSubdir = "plugins"
	modulesSubdir = "modules"
)

func kindSubdir(typeTag string) string {
	if typeTag == descriptor.PluginTypeTag {
		return pluginsSubdir
	}
	return modulesSubdir
}

func descriptorExtension(typeTag string) string {
	if typeTag == descriptor.PluginTypeTag {
		return localindex.PluginExtension
	}
	return localindex.ModuleExtension
}

// Outcome reports the chosen version and staging/publish details of a
// successful install or update, so the caller can log "upgrade",
// "reinstall" or "downgrade" for UpdatePackage.
type Outcome struct {
	Name          string
	ChosenVersion descriptor.Version
	StageDir      string
	PublishDir    string
}

// Installer performs the verify/extract/publish pipeline against a base
// directory, using dl to fetch archive bytes.
type Installer struct {
	baseDir string
	dl      *downloader.Facade
	logger  *log.Logger
}

func New(baseDir string, dl *downloader.Facade, logger *log.Logger) *Installer {
	return &Installer{baseDir: baseDir, dl: dl, logger: logger}
}

func (in *Installer) warn(format string, args ...interface{}) {
	if in.logger != nil {
		in.logger.Printf(format, args...)
	}
}

// chooseVersion selects the target PackageVersion: requested if supplied
// (else latest) from pkg's already platform-filtered version set.
func chooseVersion(pkg remoteindex.Package, requested *descriptor.Version) (remoteindex.Version, error) {
	if requested != nil {
		v, ok := pkg.Find(*requested)
		if !ok {
			return remoteindex.Version{}, fmt.Errorf("version %s not available for %q on this platform", *requested, pkg.Name)
		}
		return v, nil
	}
	v, ok := pkg.Latest()
	if !ok {
		return remoteindex.Version{}, fmt.Errorf("no version available for %q on this platform", pkg.Name)
	}
	return v, nil
}

// InstallPackage installs remote at requestedVersion (or latest) into
// in.baseDir, rejecting if local already contains a package with the same
// name. On success, Outcome.PublishDir is the final on-disk location.
func (in *Installer) InstallPackage(local *localindex.Index, remote remoteindex.Package, requestedVersion *descriptor.Version) (Outcome, error) {
	if _, exists := local.Get(remote.Name); exists {
		err := fmt.Errorf("package %q is already installed", remote.Name)
		in.warn("installer: %v", err)
		return Outcome{}, newInstallError(StatusError, err)
	}

	version, err := chooseVersion(remote, requestedVersion)
	if err != nil {
		in.warn("installer: %v", err)
		return Outcome{}, newInstallError(StatusError, err)
	}

	return in.fetchAndPublish(remote.Name, remote.Type, version)
}

// UpdatePackage brings local up (or down) to requestedVersion (or latest).
// When requestedVersion is nil, it aborts if no strictly newer version
// than local's current one exists.
func (in *Installer) UpdatePackage(local localindex.Package, remote remoteindex.Package, requestedVersion *descriptor.Version) (Outcome, error) {
	version, err := chooseVersion(remote, requestedVersion)
	if err != nil {
		in.warn("installer: %v", err)
		return Outcome{}, newInstallError(StatusError, err)
	}

	switch cmp := version.Version.Compare(local.Version); {
	case requestedVersion == nil && cmp <= 0:
		err := fmt.Errorf("no newer version of %q available (local %s, latest %s)", remote.Name, local.Version, version.Version)
		in.warn("installer: %v", err)
		return Outcome{}, newInstallError(StatusError, err)
	case cmp > 0:
		in.warn("installer: updating %q: upgrade %s -> %s", remote.Name, local.Version, version.Version)
	case cmp < 0:
		in.warn("installer: updating %q: downgrade %s -> %s", remote.Name, local.Version, version.Version)
	default:
		in.warn("installer: updating %q: reinstall at %s", remote.Name, version.Version)
	}

	return in.fetchAndPublish(remote.Name, remote.Type, version)
}

func (in *Installer) fetchAndPublish(name, typeTag string, version remoteindex.Version) (Outcome, error) {
	if u, err := url.Parse(version.DownloadURL); err != nil || u.Scheme == "" || u.Host == "" {
		err := fmt.Errorf("download URL %q is not well-formed", version.DownloadURL)
		in.warn("installer: %v", err)
		return Outcome{}, newInstallError(StatusError, err)
	}

	body, err := in.download(version.DownloadURL)
	if err != nil {
		in.warn("installer: %q: %v", name, err)
		return Outcome{}, newInstallError(StatusTransport, err)
	}

	if checksum := strings.TrimSpace(version.Checksum); checksum != "" {
		if err := verifyChecksum(body, checksum); err != nil {
			in.warn("installer: %q: %v", name, err)
			return Outcome{}, newInstallError(StatusChecksumMismatch, err)
		}
	}

	subdir := kindSubdir(typeTag)
	stageDir := filepath.Join(in.baseDir, subdir, StagingName(name))
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		err = fmt.Errorf("create staging directory: %w", err)
		in.warn("installer: %q: %v", name, err)
		return Outcome{}, newInstallError(StatusFilesystem, err)
	}

	if err := extractZip(body, stageDir, descriptorExtension(typeTag)); err != nil {
		os.RemoveAll(stageDir)
		in.warn("installer: %q: extraction abandoned: %v", name, err)
		return Outcome{}, newInstallError(StatusArchiveInvalid, err)
	}

	publishDir := filepath.Join(in.baseDir, subdir, name)
	if err := publish(stageDir, publishDir); err != nil {
		in.warn("installer: %q: publish failed, staging directory left at %s for diagnosis: %v", name, stageDir, err)
		return Outcome{}, newInstallError(StatusFilesystem, err)
	}

	return Outcome{Name: name, ChosenVersion: version.Version, StageDir: stageDir, PublishDir: publishDir}, nil
}

func (in *Installer) download(downloadURL string) ([]byte, error) {
	type outcome struct {
		res downloader.Result
	}
	done := make(chan outcome, 1)
	in.dl.Submit(downloadURL, func(res downloader.Result) { done <- outcome{res} })
	o := <-done

	if o.res.Err != nil {
		return nil, fmt.Errorf("fetch %s: %w", downloadURL, o.res.Err)
	}
	if o.res.StatusCode != 200 {
		return nil, fmt.Errorf("fetch %s: status %d", downloadURL, o.res.StatusCode)
	}
	return o.res.Body, nil
}

func verifyChecksum(body []byte, expectedHex string) error {
	sum := sha256.Sum256(body)
	got := hex.EncodeToString(sum[:])
	if !strings.EqualFold(got, strings.TrimSpace(expectedHex)) {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expectedHex, got)
	}
	return nil
}

// extractZip unpacks an in-memory ZIP archive into dest, requiring at
// least one extracted file to carry requiredExt. Entries are written via
// a temp-file-then-rename sequence so a crash mid-extraction never leaves
// a partially-written file at its final name.
func extractZip(body []byte, dest, requiredExt string) error {
	reader, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	foundDescriptor := false
	for _, entry := range reader.File {
		wroteDescriptor, err := extractEntry(entry, dest, requiredExt)
		if err != nil {
			return err
		}
		foundDescriptor = foundDescriptor || wroteDescriptor
	}
	if !foundDescriptor {
		return fmt.Errorf("archive contains no %s descriptor file", requiredExt)
	}
	return nil
}

func extractEntry(entry *zip.File, dest, requiredExt string) (bool, error) {
	cleaned := filepath.Clean(entry.Name)
	if cleaned == "." || cleaned == "" {
		return false, nil
	}
	target := filepath.Join(dest, cleaned)
	if !strings.HasPrefix(target, dest+string(os.PathSeparator)) && target != dest {
		return false, fmt.Errorf("archive entry escapes destination: %s", entry.Name)
	}

	if entry.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return false, fmt.Errorf("create directory for %s: %w", entry.Name, err)
		}
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return false, fmt.Errorf("prepare path for %s: %w", entry.Name, err)
	}

	rc, err := entry.Open()
	if err != nil {
		return false, fmt.Errorf("open archive entry %s: %w", entry.Name, err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(filepath.Dir(target), "entry-*.tmp")
	if err != nil {
		return false, fmt.Errorf("create temp file for %s: %w", entry.Name, err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return false, fmt.Errorf("write archive entry %s: %w", entry.Name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return false, fmt.Errorf("close archive entry %s: %w", entry.Name, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return false, fmt.Errorf("finalize archive entry %s: %w", entry.Name, err)
	}

	return filepath.Ext(target) == requiredExt, nil
}

// publish atomically renames stageDir to publishDir. Failures are
// returned (and logged by the caller) without removing stageDir, per the
// spec: the operator must diagnose a failed rename manually.
func publish(stageDir, publishDir string) error {
	if err := os.RemoveAll(publishDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove previous %s: %w", publishDir, err)
	}
	if err := os.Rename(stageDir, publishDir); err != nil {
		return fmt.Errorf("activate %s: %w", publishDir, err)
	}
	return nil
}

// UninstallPackage recursively deletes the package's own directory
// (local.Dir, or the parent directory of local.Path when Dir is empty). It
// does not touch any in-memory index: removeFromIndex is accepted but not
// used here, and the package leaves the local index when the caller
// reloads it.
func UninstallPackage(local localindex.Package, removeFromIndex bool, logger *log.Logger) error {
	dir := local.Dir
	if dir == "" {
		dir = filepath.Dir(local.Path)
	}
	if err := os.RemoveAll(dir); err != nil {
		if logger != nil {
			logger.Printf("installer: uninstall %q: %v", local.Name, err)
		}
		return newInstallError(StatusFilesystem, fmt.Errorf("remove %s: %w", dir, err))
	}
	_ = removeFromIndex // index eviction is performed by the caller after reload
	return nil
}

// StagingName formats the base name of a uniquely-named staging
// directory, exposed for tests and logging ("<name>-<uuid>").
func StagingName(name string) string {
	return fmt.Sprintf("%s-%s", name, uuid.NewString())
}
