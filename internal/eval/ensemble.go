package eval

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"doodleclass/internal/classifier"
	"doodleclass/internal/classifier/ensemble"
	"doodleclass/internal/classifier/native"
	"doodleclass/internal/dataset"
	"doodleclass/internal/logger"
)

// LoadCheckpoints loads every per-cycle checkpoint (model-*.gob) from
// dir. All checkpoints must agree on the category list.
func LoadCheckpoints(dir string) ([]*native.Network, []string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "model-*.gob"))
	if err != nil {
		return nil, nil, err
	}
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("no checkpoints found in %s", dir)
	}
	sort.Strings(paths)

	var members []*native.Network
	var categories []string
	for _, p := range paths {
		net, cats, err := native.Load(p)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load checkpoint %s: %w", p, err)
		}
		if categories == nil {
			categories = cats
		} else if len(cats) != len(categories) {
			return nil, nil, fmt.Errorf("checkpoint %s has %d categories, want %d", p, len(cats), len(categories))
		}
		members = append(members, net)
	}
	return members, categories, nil
}

// SelectEnsemble ranks checkpoint networks by MAP@k on the ranking
// samples and averages the best size members. With no ranking samples,
// size 0, or size covering all members, every member joins. A single
// selected member is returned directly instead of a one-member average.
func SelectEnsemble(ctx context.Context, members []*native.Network, renderer dataset.Renderer, ranking []dataset.Sample, opts Options, size int) (classifier.Classifier, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("no ensemble members")
	}
	if size <= 0 || size > len(members) {
		size = len(members)
	}

	selected := members
	if size < len(members) && len(ranking) == 0 {
		// Without ranking data, later cycles win: the schedule decays
		// the learning rate across cycles.
		selected = members[len(members)-size:]
	}
	if size < len(members) && len(ranking) > 0 {
		type scored struct {
			member *native.Network
			map3   float64
		}
		ranked := make([]scored, 0, len(members))
		for i, m := range members {
			report, err := New(m, renderer, opts).Evaluate(ctx, ranking)
			if err != nil {
				return nil, err
			}
			logger.Info("checkpoint %d/%d map@%d: %.4f", i+1, len(members), opts.TopK, report.MAP3)
			ranked = append(ranked, scored{member: m, map3: report.MAP3})
		}
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].map3 > ranked[j].map3 })
		selected = make([]*native.Network, size)
		for i := range selected {
			selected[i] = ranked[i].member
		}
	}

	if len(selected) == 1 {
		return selected[0], nil
	}
	casted := make([]classifier.Classifier, len(selected))
	for i, m := range selected {
		casted[i] = m
	}
	return ensemble.New(casted...)
}
