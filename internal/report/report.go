// Package report assembles the ranked, source-correlated report from the
// grouped per-file diagnostics.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kamilpajak/deoptviewer/internal/commonroot"
	"github.com/kamilpajak/deoptviewer/internal/progress"
	"github.com/kamilpajak/deoptviewer/internal/severity"
	"github.com/kamilpajak/deoptviewer/pkg/models"
)

// Resolver locates a file's source text. Failures are reported inside the
// returned Resolution.
type Resolver interface {
	Resolve(ctx context.Context, id, root string) models.Resolution
}

// ZeroScoreMode decides what happens to files whose source is not fetched.
type ZeroScoreMode int

const (
	// ZeroScoreOmit leaves unfetched files out of the report.
	ZeroScoreOmit ZeroScoreMode = iota
	// ZeroScoreInclude keeps them with their category lists only.
	ZeroScoreInclude
)

func (m ZeroScoreMode) String() string {
	if m == ZeroScoreInclude {
		return "include"
	}
	return "omit"
}

// ParseZeroScoreMode parses "omit" or "include". Empty means omit.
func ParseZeroScoreMode(s string) (ZeroScoreMode, error) {
	switch s {
	case "", "omit":
		return ZeroScoreOmit, nil
	case "include":
		return ZeroScoreInclude, nil
	}
	return ZeroScoreOmit, fmt.Errorf("invalid zero-score mode %q, use omit or include", s)
}

// Options configures one report run.
type Options struct {
	Resolver Resolver
	// FullInclusion fetches sources for zero-score files too.
	FullInclusion bool
	ZeroScore     ZeroScoreMode
	// Concurrency bounds parallel source resolution. Values below 2 resolve
	// one file at a time in input order.
	Concurrency int
	Emitter     progress.Emitter
}

// ErrNoResolver is returned when Options.Resolver is nil.
var ErrNoResolver = errors.New("report: no source resolver configured")

// Build ranks the files of g by score, highest first, and attaches source
// text to every file that scored or, with FullInclusion, to all files.
// Files with equal scores keep their input order. A malformed severity
// aborts the run; source failures are recorded per file.
func Build(ctx context.Context, g *models.Grouped, opts Options) (*models.Report, error) {
	if opts.Resolver == nil {
		return nil, ErrNoResolver
	}

	root := commonroot.Resolve(g.IDs())

	files := make([]*models.EnrichedFile, len(g.Files))
	var pending []int

	for i, f := range g.Files {
		sev, err := severity.Aggregate(f.Record)
		if err != nil {
			return nil, fmt.Errorf("file %s: %w", f.ID, err)
		}
		score := severity.Score(sev)

		files[i] = &models.EnrichedFile{
			FileRecord: f.Record,
			Severities: sev,
			Score:      score,
		}
		if score > 0 || opts.FullInclusion {
			pending = append(pending, i)
		}
	}

	resolveSources(ctx, g, root, files, pending, opts)

	order := make([]int, len(files))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return files[order[a]].Score > files[order[b]].Score
	})

	rep := &models.Report{Root: root, Metadata: g.Metadata}
	for _, i := range order {
		if files[i].Source == nil && opts.ZeroScore == ZeroScoreOmit {
			continue
		}
		rep.Files = append(rep.Files, models.RankedFile{ID: g.Files[i].ID, File: files[i]})
	}

	return rep, nil
}

// resolveSources fills in Source for the files at the pending indexes.
// Each worker writes only its own element, and no worker returns an error,
// so one failure never stops the others.
func resolveSources(ctx context.Context, g *models.Grouped, root string, files []*models.EnrichedFile, pending []int, opts Options) {
	total := len(pending)
	var done atomic.Int64

	var eg errgroup.Group
	eg.SetLimit(max(1, opts.Concurrency))

	for _, i := range pending {
		eg.Go(func() error {
			id := g.Files[i].ID
			res := opts.Resolver.Resolve(ctx, id, root)
			files[i].Source = &res

			progress.Emit(opts.Emitter, progress.Event{
				Type:    progress.EventFile,
				Index:   int(done.Add(1)),
				Total:   total,
				File:    id,
				Kind:    strategyOf(opts.Resolver, id),
				Failed:  !res.OK(),
				Message: res.SrcError,
			})
			return nil
		})
	}

	_ = eg.Wait()
}

// strategyOf names how r resolves id, when r can tell.
func strategyOf(r Resolver, id string) string {
	if s, ok := r.(interface{ Strategy(id string) string }); ok {
		return s.Strategy(id)
	}
	return ""
}
