package packagemanager

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/plugify-go/plugify/internal/descriptor"
	"github.com/plugify-go/plugify/internal/localindex"
)

// snapshotEntry is one package's recorded identity in an aggregate
// snapshot manifest: just enough to reproduce InstallAllPackages against a
// fresh base directory, reusing the aggregate manifest's own wire shape
// (§6) rather than inventing a second JSON format.
type snapshotEntry struct {
	Name    string
	Type    string
	Version descriptor.Version
}

type snapshot struct {
	Content []snapshotEntry
}

type wireSnapshotVersion struct {
	Version int `json:"version"`
}

type wireSnapshotPackage struct {
	Name     string                `json:"name"`
	Type     string                `json:"type"`
	Versions []wireSnapshotVersion `json:"versions"`
}

type wireSnapshot struct {
	Content map[string]wireSnapshotPackage `json:"content"`
}

func writeSnapshot(path string, pkgs []localindex.Package, prettify bool) error {
	wire := wireSnapshot{Content: make(map[string]wireSnapshotPackage, len(pkgs))}
	for _, pkg := range pkgs {
		wire.Content[pkg.Name] = wireSnapshotPackage{
			Name:     pkg.Name,
			Type:     pkg.Type,
			Versions: []wireSnapshotVersion{{Version: int(pkg.Version)}},
		}
	}

	var data []byte
	var err error
	if prettify {
		data, err = json.MarshalIndent(wire, "", "  ")
	} else {
		data, err = json.Marshal(wire)
	}
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}

func loadSnapshot(path string) (snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot{}, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	var wire wireSnapshot
	if err := json.Unmarshal(data, &wire); err != nil {
		return snapshot{}, fmt.Errorf("decode snapshot %s: %w", path, err)
	}

	snap := snapshot{Content: make([]snapshotEntry, 0, len(wire.Content))}
	for key, wp := range wire.Content {
		if wp.Name != key {
			continue
		}
		if len(wp.Versions) == 0 {
			continue
		}
		snap.Content = append(snap.Content, snapshotEntry{
			Name:    wp.Name,
			Type:    wp.Type,
			Version: descriptor.Version(uint32(wp.Versions[0].Version)),
		})
	}
	return snap, nil
}
