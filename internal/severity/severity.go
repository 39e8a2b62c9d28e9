// Package severity buckets a file's diagnostic entries by severity tier and
// scores how much regression signal the file carries.
package severity

import (
	"errors"
	"fmt"

	"github.com/kamilpajak/deoptviewer/pkg/models"
)

// ErrMalformedSeverity means an entry's severity is outside 1..3. The
// upstream parser contract is broken and rankings cannot be trusted.
var ErrMalformedSeverity = errors.New("malformed severity")

// Aggregate counts the entries of every category of rec per severity tier.
func Aggregate(rec models.FileRecord) (models.FileSeverities, error) {
	var out models.FileSeverities

	for _, c := range models.Categories {
		summary, err := summarize(c, rec.Entries(c))
		if err != nil {
			return models.FileSeverities{}, err
		}
		switch c {
		case models.CategoryCodes:
			out.Codes = summary
		case models.CategoryDeopts:
			out.Deopts = summary
		case models.CategoryICs:
			out.ICs = summary
		}
	}

	return out, nil
}

func summarize(c models.Category, entries []models.Entry) (models.SeveritySummary, error) {
	var s models.SeveritySummary
	for i, e := range entries {
		if e.Severity < 1 || e.Severity > len(s) {
			return models.SeveritySummary{}, fmt.Errorf("%w: %s[%d] has severity %d", ErrMalformedSeverity, c, i, e.Severity)
		}
		s[e.Severity-1]++
	}
	return s, nil
}

// Score sums the tier 2 and tier 3 deopts and inline caches. Tier 1 and all
// optimization entries are not regressions and do not count.
func Score(s models.FileSeverities) int {
	return s.Deopts[1] + s.Deopts[2] + s.ICs[1] + s.ICs[2]
}
