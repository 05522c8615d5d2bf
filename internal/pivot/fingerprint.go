package pivot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"

	v1 "github.com/crosstab-lab/crosstab/internal/api/v1"
)

// Fingerprint computes the stable content hash identifying one request.
//
// The canonical form serializes struct fields in a fixed order, so
// logically identical requests always collide to the same hash. List
// order inside the configuration (rowFields, columnFields, values,
// filters) is semantically significant and preserved; expandedPaths is
// a set and is sorted and deduplicated before hashing.
func Fingerprint(req v1.PivotRequest) (string, error) {
	canonical := struct {
		Dataset       string                `json:"dataset"`
		Configuration v1.PivotConfiguration `json:"configuration"`
		ExpandedPaths [][]string            `json:"expandedPaths"`
	}{
		Dataset:       req.Dataset,
		Configuration: req.Configuration,
		ExpandedPaths: sortedUniquePaths(req.ExpandedPaths),
	}

	b, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("%w: canonical serialization: %v", ErrQueryCompilation, err)
	}

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// sortedUniquePaths returns a sorted, deduplicated copy; the input is
// left untouched.
func sortedUniquePaths(paths [][]string) [][]string {
	out := make([][]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, slices.Clone(p))
	}
	slices.SortFunc(out, slices.Compare)
	return slices.CompactFunc(out, slices.Equal)
}
