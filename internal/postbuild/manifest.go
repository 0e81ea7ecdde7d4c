// SPDX-License-Identifier: MPL-2.0

package postbuild

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/soarhub/mp/pkg/fspath"
)

// DefaultManifestName is the manifest file name at a marketplace root.
const DefaultManifestName = "marketplace.json"

// ErrDuplicateIntegration is returned when an identifier is listed more than
// once within or across marketplace manifests.
var ErrDuplicateIntegration = errors.New("duplicate integration identifier")

type (
	// ManifestEntry is one integration listed in a marketplace manifest.
	ManifestEntry struct {
		Identifier  string `json:"Identifier"`
		DisplayName string `json:"DisplayName"`
	}

	// DuplicateIntegrationError names an identifier that is not unique.
	// Marketplaces holds one root when the duplicate is within a single
	// manifest and every root it was found in otherwise.
	DuplicateIntegrationError struct {
		Identifier   string
		Marketplaces []string
		SameRoot     bool
	}
)

func (e *DuplicateIntegrationError) Error() string {
	if e.SameRoot {
		return fmt.Sprintf("marketplace %s contains multiple integrations with the same identifier %q",
			strings.Join(e.Marketplaces, ", "), e.Identifier)
	}
	return fmt.Sprintf("integration %q found in more than one marketplace: %s",
		e.Identifier, strings.Join(e.Marketplaces, ", "))
}

func (e *DuplicateIntegrationError) Unwrap() error { return ErrDuplicateIntegration }

// ReadManifest reads a manifest file. A missing file yields an empty manifest.
func ReadManifest(path string) ([]ManifestEntry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var entries []ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return entries, nil
}

// WriteManifest writes entries sorted by identifier. The file is replaced
// atomically so readers never see a partial manifest.
func WriteManifest(path string, entries []ManifestEntry) error {
	sorted := slices.Clone(entries)
	if sorted == nil {
		sorted = []ManifestEntry{}
	}
	slices.SortStableFunc(sorted, func(a, b ManifestEntry) int {
		if c := strings.Compare(a.Identifier, b.Identifier); c != 0 {
			return c
		}
		return strings.Compare(a.DisplayName, b.DisplayName)
	})

	data, err := json.MarshalIndent(sorted, "", "    ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), fspath.DirPerm); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	return fspath.WriteFileAtomic(path, append(data, '\n'), fspath.FilePerm)
}

// RaiseErrorsForDuplicateIntegrations reads the manifest of both marketplace
// roots and reports every identifier listed twice in one root and every
// identifier listed in both roots. An empty manifestName selects
// DefaultManifestName.
func RaiseErrorsForDuplicateIntegrations(commercialRoot, communityRoot, manifestName string) error {
	if manifestName == "" {
		manifestName = DefaultManifestName
	}

	roots := []string{commercialRoot, communityRoot}
	seen := make([]map[string]int, len(roots))
	var errs []error

	for i, root := range roots {
		entries, err := ReadManifest(filepath.Join(root, manifestName))
		if err != nil {
			return err
		}
		seen[i] = make(map[string]int, len(entries))
		for _, e := range entries {
			seen[i][e.Identifier]++
		}
		for _, id := range sortedIdentifiers(seen[i]) {
			if seen[i][id] > 1 {
				errs = append(errs, &DuplicateIntegrationError{
					Identifier:   id,
					Marketplaces: []string{root},
					SameRoot:     true,
				})
			}
		}
	}

	for _, id := range sortedIdentifiers(seen[0]) {
		if seen[1][id] > 0 {
			errs = append(errs, &DuplicateIntegrationError{Identifier: id, Marketplaces: roots})
		}
	}

	return errors.Join(errs...)
}

func sortedIdentifiers(m map[string]int) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
