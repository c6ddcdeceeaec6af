package sender

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/toolza/gobyte/plan"
)

// Enumerate walks each input path, building the ordered PlanEntry list per
// spec §4.5 step 1: directories recurse deterministically, sorted
// lexicographically per directory. When flat is true, every entry's
// relative path collapses to its basename. Grounded on the teacher's
// FileSelector.SelectDir recursive walk, generalized to run
// non-interactively.
func Enumerate(paths []string, flat bool) (plan.Plan, error) {
	var entries []plan.Entry

	for _, root := range paths {
		abs, err := filepath.Abs(root)
		if err != nil {
			return plan.Plan{}, err
		}

		info, err := os.Stat(abs)
		if err != nil {
			return plan.Plan{}, err
		}

		if info.IsDir() {
			base := filepath.Dir(abs)
			walked, err := walkDir(abs, base)
			if err != nil {
				return plan.Plan{}, err
			}
			entries = append(entries, walked...)
			continue
		}

		entries = append(entries, plan.Entry{
			RelativePath: filepath.Base(abs),
			AbsolutePath: abs,
			Size:         uint64(info.Size()),
			ModTime:      info.ModTime(),
		})
	}

	if flat {
		for i := range entries {
			entries[i].RelativePath = filepath.Base(entries[i].RelativePath)
		}
	}

	return plan.Plan{Entries: entries}, nil
}

// walkDir recursively walks dir, returning entries with RelativePath
// relative to relativeTo, sorted lexicographically at each directory
// level.
func walkDir(dir, relativeTo string) ([]plan.Entry, error) {
	children, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	sort.Slice(children, func(i, j int) bool {
		return children[i].Name() < children[j].Name()
	})

	var entries []plan.Entry
	for _, child := range children {
		full := filepath.Join(dir, child.Name())

		if child.IsDir() {
			nested, err := walkDir(full, relativeTo)
			if err != nil {
				return nil, err
			}
			entries = append(entries, nested...)
			continue
		}

		info, err := child.Info()
		if err != nil {
			return nil, err
		}

		rel, err := filepath.Rel(relativeTo, full)
		if err != nil {
			return nil, err
		}

		entries = append(entries, plan.Entry{
			RelativePath: rel,
			AbsolutePath: full,
			Size:         uint64(info.Size()),
			ModTime:      info.ModTime(),
		})
	}

	return entries, nil
}
