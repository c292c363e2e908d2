package signets

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/hazyhaar/signets/signets/internal/index"
	"github.com/hazyhaar/signets/signets/internal/store"
)

// Search returns the parsed bookmarks matching query, best first. Equal
// scores keep index order: fetch completion order on the live index, store
// order with Config.RebuildOnSearch. An empty or blank query returns every
// parsed bookmark with a zero score, in store order.
func (s *Service) Search(ctx context.Context, query string) ([]*SearchResult, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}

	if strings.TrimSpace(query) == "" {
		recs, err := s.store.ListParsed(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]*SearchResult, 0, len(recs))
		for _, rec := range recs {
			out = append(out, &SearchResult{Record: rec})
		}
		return out, nil
	}

	var ix *index.Index
	var err error
	if s.config.RebuildOnSearch {
		ix, err = s.buildIndex(ctx)
	} else {
		ix, err = s.liveIndex(ctx)
	}
	if err != nil {
		return nil, err
	}

	hits := ix.Search(query)
	out := make([]*SearchResult, 0, len(hits))
	for _, h := range hits {
		rec, err := s.store.Get(ctx, h.Ref)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !rec.IsParsed {
			continue
		}
		out = append(out, &SearchResult{Record: rec, Score: h.Score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}
