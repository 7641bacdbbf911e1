package affinity

import (
	"testing"

	"novalyn/internal/domain"
)

func sig(userID int64, librarySize int, genres ...string) domain.UserSignature {
	set := make(map[string]struct{}, len(genres))
	for _, g := range genres {
		set[g] = struct{}{}
	}
	return domain.UserSignature{UserID: userID, Genres: set, LibrarySize: librarySize}
}

func TestRankPeersExcludesZeroOverlap(t *testing.T) {
	scorer := NewScorer()
	target := sig(1, 1, "Fantasy")
	candidates := []domain.UserSignature{
		sig(2, 2, "Fantasy"),
		sig(3, 5, "History"),
	}
	ranked := scorer.RankPeers(target, candidates, nil, 10)
	if len(ranked) != 1 {
		t.Fatalf("expected 1 peer, got %d", len(ranked))
	}
	if ranked[0].UserID != 2 {
		t.Fatalf("expected user 2, got %d", ranked[0].UserID)
	}
	if ranked[0].SharedGenres != 1 {
		t.Fatalf("expected 1 shared genre, got %d", ranked[0].SharedGenres)
	}
}

func TestRankPeersOrdersByOverlapThenLibrarySize(t *testing.T) {
	scorer := NewScorer()
	target := sig(1, 3, "Fantasy", "History", "Science")
	candidates := []domain.UserSignature{
		sig(2, 4, "Fantasy"),
		sig(3, 2, "Fantasy", "History"),
		sig(4, 9, "Fantasy"),
	}
	ranked := scorer.RankPeers(target, candidates, nil, 10)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 peers, got %d", len(ranked))
	}
	if ranked[0].UserID != 3 {
		t.Fatalf("expected user 3 first (most shared genres), got %d", ranked[0].UserID)
	}
	if ranked[1].UserID != 4 || ranked[2].UserID != 2 {
		t.Fatalf("expected tie broken by library size: got %d, %d", ranked[1].UserID, ranked[2].UserID)
	}
}

func TestRankPeersEmptyTargetGenres(t *testing.T) {
	scorer := NewScorer()
	target := sig(1, 0)
	candidates := []domain.UserSignature{sig(2, 3, "Fantasy")}
	if ranked := scorer.RankPeers(target, candidates, nil, 10); len(ranked) != 0 {
		t.Fatalf("expected empty result for empty target genres, got %d", len(ranked))
	}
}

func TestRankPeersHonorsExcludeAndLimit(t *testing.T) {
	scorer := NewScorer()
	target := sig(1, 1, "Fantasy")
	candidates := []domain.UserSignature{
		sig(2, 1, "Fantasy"),
		sig(3, 2, "Fantasy"),
		sig(4, 3, "Fantasy"),
	}
	exclude := map[int64]struct{}{3: {}}
	ranked := scorer.RankPeers(target, candidates, exclude, 1)
	if len(ranked) != 1 {
		t.Fatalf("expected limit of 1, got %d", len(ranked))
	}
	if ranked[0].UserID != 4 {
		t.Fatalf("expected user 4 (largest library), got %d", ranked[0].UserID)
	}
}

func TestRankPeersDeterministicTieBreak(t *testing.T) {
	scorer := NewScorer()
	target := sig(1, 1, "Fantasy")
	candidates := []domain.UserSignature{
		sig(7, 2, "Fantasy"),
		sig(5, 2, "Fantasy"),
	}
	for i := 0; i < 5; i++ {
		ranked := scorer.RankPeers(target, candidates, nil, 10)
		if ranked[0].UserID != 5 || ranked[1].UserID != 7 {
			t.Fatalf("expected stable order 5,7 on run %d, got %d,%d", i, ranked[0].UserID, ranked[1].UserID)
		}
	}
}
