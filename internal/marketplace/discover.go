// SPDX-License-Identifier: MPL-2.0

package marketplace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/soarhub/mp/pkg/layout"
)

type (
	// Targets is the content of one marketplace root.
	Targets struct {
		// Integrations are the integration directories directly below the root.
		Integrations []string
		// Groups are the directories whose children are integrations.
		Groups []Group
		// Skipped are directories that are neither.
		Skipped []string
	}

	// Group is a directory bundling related integrations.
	Group struct {
		Path         string
		Integrations []string
	}
)

// Discover lists the integrations and groups directly below root. Hidden
// directories are ignored. Every returned list is sorted.
func Discover(root string) (*Targets, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read marketplace root: %w", err)
	}

	t := &Targets{}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if layout.IsIntegration(dir) {
			t.Integrations = append(t.Integrations, dir)
			continue
		}

		members, err := groupMembers(dir)
		if err != nil {
			return nil, err
		}
		if len(members) == 0 {
			t.Skipped = append(t.Skipped, dir)
			continue
		}
		t.Groups = append(t.Groups, Group{Path: dir, Integrations: members})
	}
	return t, nil
}

// All returns every integration of the root, grouped or not, sorted.
func (t *Targets) All() []string {
	all := append([]string(nil), t.Integrations...)
	for _, g := range t.Groups {
		all = append(all, g.Integrations...)
	}
	sort.Strings(all)
	return all
}

func groupMembers(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var members []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		child := filepath.Join(dir, e.Name())
		if layout.IsIntegration(child) {
			members = append(members, child)
		}
	}
	return members, nil
}
