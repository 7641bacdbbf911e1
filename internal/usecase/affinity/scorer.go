package affinity

import (
	"sort"

	"novalyn/internal/domain"
)

// Scorer ranks candidate users by shared-genre overlap with a target.
// Duplicate genre occurrences across a library collapse to a single
// membership, so the score is pure set-intersection cardinality.
type Scorer struct{}

// NewScorer creates the scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

var _ domain.PeerRanker = (*Scorer)(nil)

// RankPeers returns candidates ordered by shared-genre count descending,
// ties broken by library size descending, then user ID ascending so the
// ordering is stable across calls. Candidates with zero overlap are
// excluded entirely. An empty target genre set yields an empty result.
func (s *Scorer) RankPeers(target domain.UserSignature, candidates []domain.UserSignature, exclude map[int64]struct{}, limit int) []domain.AffinityResult {
	if len(target.Genres) == 0 {
		return nil
	}
	results := make([]domain.AffinityResult, 0, len(candidates))
	for _, candidate := range candidates {
		if _, skip := exclude[candidate.UserID]; skip {
			continue
		}
		shared := sharedGenres(target, candidate)
		if shared == 0 {
			continue
		}
		results = append(results, domain.AffinityResult{
			UserID:       candidate.UserID,
			SharedGenres: shared,
			BooksRead:    candidate.LibrarySize,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].SharedGenres != results[j].SharedGenres {
			return results[i].SharedGenres > results[j].SharedGenres
		}
		if results[i].BooksRead != results[j].BooksRead {
			return results[i].BooksRead > results[j].BooksRead
		}
		return results[i].UserID < results[j].UserID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func sharedGenres(target, candidate domain.UserSignature) int {
	shared := 0
	for genre := range candidate.Genres {
		if _, ok := target.Genres[genre]; ok {
			shared++
		}
	}
	return shared
}
