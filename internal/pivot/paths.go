package pivot

import (
	"encoding/json"
	"slices"

	v1 "github.com/crosstab-lab/crosstab/internal/api/v1"
)

// pathSet answers membership questions for expanded paths.
type pathSet map[string]struct{}

func newPathSet(paths [][]string) pathSet {
	s := make(pathSet, len(paths))
	for _, p := range paths {
		s[pathKey(p)] = struct{}{}
	}
	return s
}

func (s pathSet) contains(path []string) bool {
	_, ok := s[pathKey(path)]
	return ok
}

// pathKey encodes the segment structure, not just the concatenated
// text, so labels containing any delimiter cannot alias another path.
func pathKey(path []string) string {
	b, err := json.Marshal(path)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// mutatePaths applies one drill action with set semantics: expanding an
// already-expanded path and collapsing a never-expanded path are both
// no-ops. Returns a fresh slice; the input is never mutated.
func mutatePaths(paths [][]string, path []string, action v1.DrillAction) [][]string {
	out := make([][]string, 0, len(paths)+1)
	found := false
	for _, p := range paths {
		if slices.Equal(p, path) {
			found = true
			if action == v1.DrillCollapse {
				continue
			}
		}
		out = append(out, slices.Clone(p))
	}
	if action == v1.DrillExpand && !found {
		out = append(out, slices.Clone(path))
	}
	return out
}
