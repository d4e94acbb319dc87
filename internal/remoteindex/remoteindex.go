// Package remoteindex aggregates package manifests fetched from one or
// more remote repositories into a single in-memory map keyed by unique
// package name.
package remoteindex

import (
	"encoding/json"
	"log"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/plugify-go/plugify/internal/descriptor"
	"github.com/plugify-go/plugify/internal/downloader"
	"github.com/plugify-go/plugify/internal/localindex"
	"github.com/plugify-go/plugify/internal/platform"
)

// Version describes one published build of a remote package.
type Version struct {
	Version     descriptor.Version
	DownloadURL string
	Checksum    string
	Platforms   []platform.Tag
}

// Package is a remote package's identity plus its set of published
// versions, ordered latest-first.
type Package struct {
	Name     string
	Type     string
	Versions []Version
}

func (p Package) IsPlugin() bool { return p.Type == descriptor.PluginTypeTag }

// Latest returns the newest Version, or false if Versions is empty.
func (p Package) Latest() (Version, bool) {
	if len(p.Versions) == 0 {
		return Version{}, false
	}
	return p.Versions[0], true
}

// Find returns the Version with the given numeric version, if present.
func (p Package) Find(v descriptor.Version) (Version, bool) {
	for _, candidate := range p.Versions {
		if candidate.Version == v {
			return candidate, true
		}
	}
	return Version{}, false
}

func sortVersionsDescending(versions []Version) {
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Version.Compare(versions[j].Version) > 0
	})
}

// Index maps a remote package's unique name to its Package.
type Index struct {
	mu     sync.Mutex
	byName map[string]Package
}

func newIndex() *Index { return &Index{byName: make(map[string]Package)} }

func (idx *Index) Get(name string) (Package, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	p, ok := idx.byName[name]
	return p, ok
}

func (idx *Index) All() []Package {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	out := make([]Package, 0, len(idx.byName))
	for _, p := range idx.byName {
		out = append(out, p)
	}
	return out
}

type wireVersion struct {
	Version   int      `json:"version"`
	Download  string   `json:"download"`
	Checksum  string   `json:"checksum,omitempty"`
	Platforms []string `json:"platforms,omitempty"`
}

type wirePackage struct {
	Name     string        `json:"name"`
	Type     string        `json:"type"`
	Versions []wireVersion `json:"versions"`
}

type wireManifest struct {
	Content map[string]wirePackage `json:"content"`
}

// Load builds the remote index from configRepos (static repository URLs)
// plus, for each local package, its descriptor's update URL (if present and
// syntactically valid). All sources are fetched concurrently via dl;
// successful responses are parsed, platform-filtered, and merged under a
// mutex. Load blocks until every outstanding request completes.
func Load(dl *downloader.Facade, configRepos []string, locals []localindex.Package, logger *log.Logger) *Index {
	idx := newIndex()
	warn := func(format string, args ...interface{}) {
		if logger != nil {
			logger.Printf(format, args...)
		}
	}

	sources := make([]string, 0, len(configRepos)+len(locals))
	sources = append(sources, configRepos...)
	for _, pkg := range locals {
		update := strings.TrimSpace(pkg.Descriptor.UpdateURL)
		if update == "" {
			continue
		}
		if u, err := url.Parse(update); err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		sources = append(sources, update)
	}

	current := platform.Current()
	for _, src := range sources {
		src := src
		dl.Submit(src, func(res downloader.Result) {
			if res.Err != nil {
				warn("remote index: fetch %s: %v", src, res.Err)
				return
			}
			if res.StatusCode != 200 {
				warn("remote index: fetch %s: status %d", src, res.StatusCode)
				return
			}
			merge(idx, res.Body, current, warn)
		})
	}
	dl.WaitForAllRequests()
	return idx
}

func merge(idx *Index, body []byte, current platform.Tag, warn func(string, ...interface{})) {
	var manifest wireManifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		warn("remote index: decode manifest: %v", err)
		return
	}

	for key, wp := range manifest.Content {
		if wp.Name != key {
			warn("remote index: manifest entry %q has mismatched name %q, rejecting", key, wp.Name)
			continue
		}

		versions := make([]Version, 0, len(wp.Versions))
		for _, wv := range wp.Versions {
			tags := make([]platform.Tag, len(wv.Platforms))
			for i, t := range wv.Platforms {
				tags[i] = platform.Tag(t)
			}
			if len(tags) > 0 && !containsTag(tags, current) {
				continue
			}
			versions = append(versions, Version{
				Version:     descriptor.Version(uint32(wv.Version)),
				DownloadURL: wv.Download,
				Checksum:    wv.Checksum,
				Platforms:   tags,
			})
		}
		if len(versions) == 0 {
			warn("remote index: %q has no versions for current platform, rejecting", key)
			continue
		}
		sortVersionsDescending(versions)

		pkg := Package{Name: wp.Name, Type: wp.Type, Versions: versions}
		insert(idx, pkg, warn)
	}
}

func containsTag(tags []platform.Tag, tag platform.Tag) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func insert(idx *Index, pkg Package, warn func(string, ...interface{})) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	existing, ok := idx.byName[pkg.Name]
	if !ok {
		idx.byName[pkg.Name] = pkg
		return
	}
	if existing.Type != pkg.Type {
		warn("remote index: %q structurally differs between sources, ignoring subsequent entry", pkg.Name)
		return
	}
	if reflect.DeepEqual(existing, pkg) {
		return
	}
	existing.Versions = unionVersions(existing.Versions, pkg.Versions)
	idx.byName[pkg.Name] = existing
}

func unionVersions(a, b []Version) []Version {
	byVersion := make(map[descriptor.Version]Version, len(a)+len(b))
	order := make([]descriptor.Version, 0, len(a)+len(b))
	for _, v := range a {
		if _, ok := byVersion[v.Version]; !ok {
			order = append(order, v.Version)
		}
		byVersion[v.Version] = v
	}
	for _, v := range b {
		if _, ok := byVersion[v.Version]; !ok {
			order = append(order, v.Version)
			byVersion[v.Version] = v
		}
	}
	out := make([]Version, 0, len(order))
	for _, v := range order {
		out = append(out, byVersion[v])
	}
	sortVersionsDescending(out)
	return out
}
