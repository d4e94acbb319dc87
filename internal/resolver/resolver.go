// Package resolver computes, from a local and a remote index, the set of
// packages that must be installed (missing) and the set of local plugins
// that cannot be loaded as declared (conflicted).
package resolver

import (
	"log"

	"github.com/plugify-go/plugify/internal/descriptor"
	"github.com/plugify-go/plugify/internal/localindex"
	"github.com/plugify-go/plugify/internal/platform"
	"github.com/plugify-go/plugify/internal/remoteindex"
)

// Requirement is a pending install request: a remote package plus the
// version it was requested at (nil means "latest").
type Requirement struct {
	Remote           remoteindex.Package
	RequestedVersion *descriptor.Version
}

// Result holds the outcome of a resolution pass.
type Result struct {
	Missing     map[string]Requirement
	Conflicted  []localindex.Package
}

// Resolve computes Result from the current contents of local and remote.
// It never mutates either index.
func Resolve(local *localindex.Index, remote *remoteindex.Index, logger *log.Logger) Result {
	warn := func(format string, args ...interface{}) {
		if logger != nil {
			logger.Printf(format, args...)
		}
	}

	res := Result{Missing: make(map[string]Requirement)}
	current := platform.Current()

	for _, pkg := range local.All() {
		if !pkg.IsPlugin() {
			continue
		}

		conflictedHere := false

		lang := pkg.Descriptor.LanguageModule.Name
		if _, ok := findLocalModule(local, lang); !ok {
			if remotePkg, ok := remote.Get(lang); ok {
				addMissing(res.Missing, remotePkg, nil, warn)
			} else {
				res.Conflicted = append(res.Conflicted, pkg)
				continue
			}
		}

		for _, dep := range pkg.Descriptor.Dependencies {
			if dep.Optional {
				continue
			}
			if len(dep.SupportedPlatforms) > 0 && !containsTag(dep.SupportedPlatforms, current) {
				continue
			}

			if localDep, ok := local.Get(dep.Name); ok {
				if dep.RequestedVersion != nil {
					if int(localDep.Version) != *dep.RequestedVersion {
						warn("resolver: %q requests %q@%d but local version is %s (unresolved, not marked conflicted)",
							pkg.Name, dep.Name, *dep.RequestedVersion, localDep.Version)
					}
				}
				continue
			}

			remoteDep, ok := remote.Get(dep.Name)
			if !ok {
				conflictedHere = true
				break
			}

			if dep.RequestedVersion != nil {
				if _, ok := remoteDep.Find(descriptor.Version(uint32(*dep.RequestedVersion))); !ok {
					conflictedHere = true
					break
				}
				v := descriptor.Version(uint32(*dep.RequestedVersion))
				addMissing(res.Missing, remoteDep, &v, warn)
				continue
			}
			addMissing(res.Missing, remoteDep, nil, warn)
		}

		if conflictedHere {
			res.Conflicted = append(res.Conflicted, pkg)
		}
	}

	return res
}

func findLocalModule(local *localindex.Index, typeName string) (localindex.Package, bool) {
	for _, pkg := range local.All() {
		if !pkg.IsPlugin() && pkg.Type == typeName {
			return pkg, true
		}
	}
	return localindex.Package{}, false
}

func containsTag(tags []platform.Tag, tag platform.Tag) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// addMissing records or merges a requirement in missing. When the same
// name is already requested, the rule is: keep the higher version when
// both are pinned; keep the pinned one when one is "latest"; log both
// merge outcomes as warnings.
func addMissing(missing map[string]Requirement, remote remoteindex.Package, requested *descriptor.Version, warn func(string, ...interface{})) {
	existing, ok := missing[remote.Name]
	if !ok {
		missing[remote.Name] = Requirement{Remote: remote, RequestedVersion: requested}
		return
	}

	switch {
	case existing.RequestedVersion == nil && requested == nil:
		// both latest, nothing to merge
	case existing.RequestedVersion != nil && requested != nil:
		if requested.Compare(*existing.RequestedVersion) > 0 {
			warn("resolver: merging requirement for %q, keeping higher pinned version %s over %s", remote.Name, *requested, *existing.RequestedVersion)
			existing.RequestedVersion = requested
		} else {
			warn("resolver: merging requirement for %q, keeping existing pinned version %s over %s", remote.Name, *existing.RequestedVersion, *requested)
		}
	case existing.RequestedVersion == nil && requested != nil:
		warn("resolver: merging requirement for %q, keeping specific version %s over latest", remote.Name, *requested)
		existing.RequestedVersion = requested
	default: // existing pinned, requested nil ("latest")
		warn("resolver: merging requirement for %q, keeping specific version %s over latest", remote.Name, *existing.RequestedVersion)
	}
	missing[remote.Name] = existing
}
