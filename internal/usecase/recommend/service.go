package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"novalyn/internal/domain"
	"novalyn/internal/infra/metrics"
)

const (
	defaultListCap     = 10
	defaultTrendingCap = 20
	defaultPeerLimit   = 10
	defaultWindow      = 30 * 24 * time.Hour
	defaultCacheTTL    = 5 * time.Minute

	peerMinRating = 4

	// fillLockTTL bounds how long a crashed filler can hold the lock.
	fillLockTTL = 10 * time.Second
)

// Config tunes list caps and the new-release window.
type Config struct {
	ListCap          int
	TrendingCap      int
	PeerLimit        int
	NewReleaseWindow time.Duration
	CacheTTL         time.Duration
}

func (c Config) withDefaults() Config {
	if c.ListCap <= 0 {
		c.ListCap = defaultListCap
	}
	if c.TrendingCap <= 0 {
		c.TrendingCap = defaultTrendingCap
	}
	if c.PeerLimit <= 0 {
		c.PeerLimit = defaultPeerLimit
	}
	if c.NewReleaseWindow <= 0 {
		c.NewReleaseWindow = defaultWindow
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = defaultCacheTTL
	}
	return c
}

// Service assembles recommendation lists from signatures, peer affinity
// and catalog queries. All lists are computed fresh per request; only
// the global, non-personalized listings go through the cache.
type Service struct {
	books      domain.BookRepo
	library    domain.LibraryRepo
	signatures domain.SignatureLoader
	ranker     domain.PeerRanker
	cache      domain.Cache
	cfg        Config
	now        func() time.Time
}

var _ domain.Recommender = (*Service)(nil)

// NewService creates the recommendation service. The cache may be nil.
func NewService(books domain.BookRepo, library domain.LibraryRepo, signatures domain.SignatureLoader, ranker domain.PeerRanker, cache domain.Cache, cfg Config) *Service {
	return &Service{
		books:      books,
		library:    library,
		signatures: signatures,
		ranker:     ranker,
		cache:      cache,
		cfg:        cfg.withDefaults(),
		now:        time.Now,
	}
}

// Compose builds the four personalized lists. Each list is independently
// computed and capped; a book the user owns never appears in any of them.
// Any failed store query fails the whole call; a legitimately empty
// list does not.
func (s *Service) Compose(ctx context.Context, userID int64) (domain.RecommendationSet, error) {
	start := time.Now()
	defer func() {
		metrics.RecommendBuildSeconds.Observe(time.Since(start).Seconds())
	}()
	metrics.IncRecommendRequest("personalized")

	sig, err := s.signatures.LoadSignature(ctx, userID)
	if err != nil {
		return domain.RecommendationSet{}, err
	}
	owned := sig.OwnedIDs()

	set := domain.RecommendationSet{
		PeerPicks:       []domain.Book{},
		GenreMatches:    []domain.Book{},
		AuthorMatches:   []domain.Book{},
		TrendingInGenre: []domain.Book{},
	}

	if len(sig.Genres) > 0 {
		peerPicks, err := s.peerPicks(ctx, sig, owned)
		if err != nil {
			return domain.RecommendationSet{}, err
		}
		set.PeerPicks = peerPicks

		genres := sig.GenreList()
		genreMatches, err := s.books.ListByGenres(ctx, genres, owned, domain.SortByRating, s.cfg.ListCap)
		if err != nil {
			return domain.RecommendationSet{}, fmt.Errorf("load genre matches: %w", err)
		}
		set.GenreMatches = genreMatches

		trendingInGenre, err := s.books.ListByGenres(ctx, genres, owned, domain.SortByPopularity, s.cfg.TrendingCap)
		if err != nil {
			return domain.RecommendationSet{}, fmt.Errorf("load trending in genre: %w", err)
		}
		set.TrendingInGenre = trendingInGenre
	}

	if len(sig.Authors) > 0 {
		authorMatches, err := s.books.ListByAuthors(ctx, sig.AuthorList(), owned, domain.SortByRating, s.cfg.ListCap)
		if err != nil {
			return domain.RecommendationSet{}, fmt.Errorf("load author matches: %w", err)
		}
		set.AuthorMatches = authorMatches
	}

	return set, nil
}

// peerPicks ranks all other users by genre overlap and collects books
// those peers rated at least 4, minus books the target already owns.
func (s *Service) peerPicks(ctx context.Context, sig domain.UserSignature, owned []int64) ([]domain.Book, error) {
	candidates, err := s.library.ListSignatures(ctx, []int64{sig.UserID})
	if err != nil {
		return nil, fmt.Errorf("load candidate signatures: %w", err)
	}
	metrics.AffinityCandidatesScanned.Observe(float64(len(candidates)))
	peers := s.ranker.RankPeers(sig, candidates, map[int64]struct{}{sig.UserID: {}}, s.cfg.PeerLimit)
	if len(peers) == 0 {
		return []domain.Book{}, nil
	}
	peerIDs := make([]int64, 0, len(peers))
	for _, peer := range peers {
		peerIDs = append(peerIDs, peer.UserID)
	}
	books, err := s.library.ListPeerFavorites(ctx, peerIDs, peerMinRating, owned, s.cfg.ListCap)
	if err != nil {
		return nil, fmt.Errorf("load peer favorites: %w", err)
	}
	return books, nil
}

// Trending returns the globally most-rated books.
func (s *Service) Trending(ctx context.Context) ([]domain.Book, error) {
	metrics.IncRecommendRequest("trending")
	return s.listCached("recs:trending", func() ([]domain.Book, error) {
		books, err := s.books.ListTop(ctx, domain.SortByPopularity, s.cfg.TrendingCap)
		if err != nil {
			return nil, fmt.Errorf("load trending: %w", err)
		}
		return books, nil
	})
}

// NewReleases returns books published within the trailing window.
func (s *Service) NewReleases(ctx context.Context) ([]domain.Book, error) {
	metrics.IncRecommendRequest("new_releases")
	return s.listCached("recs:new_releases", func() ([]domain.Book, error) {
		since := s.now().UTC().Add(-s.cfg.NewReleaseWindow)
		books, err := s.books.ListPublishedSince(ctx, since, s.cfg.TrendingCap)
		if err != nil {
			return nil, fmt.Errorf("load new releases: %w", err)
		}
		return books, nil
	})
}

// ByGenre returns the public, non-personalized listing for a genre.
func (s *Service) ByGenre(ctx context.Context, genre string) ([]domain.Book, error) {
	metrics.IncRecommendRequest("by_genre")
	genre = strings.TrimSpace(genre)
	if genre == "" {
		return nil, fmt.Errorf("%w: genre is empty", domain.ErrInvalidArgument)
	}
	return s.listCached("recs:genre:"+genre, func() ([]domain.Book, error) {
		books, err := s.books.ListByGenre(ctx, genre, s.cfg.TrendingCap)
		if err != nil {
			return nil, fmt.Errorf("load genre listing: %w", err)
		}
		return books, nil
	})
}

// listCached serves a listing from the cache, filling it through the
// loader on a miss. Concurrent misses elect a single filler via the
// cache lock; a caller that loses the election re-reads the cache and,
// when the filler has not landed yet, loads directly without storing.
func (s *Service) listCached(key string, load func() ([]domain.Book, error)) ([]domain.Book, error) {
	if books, ok := s.cached(key); ok {
		return books, nil
	}
	if s.cache == nil {
		return load()
	}
	var books []domain.Book
	var filled bool
	onceErr := s.cache.Once(key+":fill", fillLockTTL, func() error {
		filled = true
		var err error
		if books, err = load(); err != nil {
			return err
		}
		s.store(key, books)
		return nil
	})
	if filled {
		if onceErr != nil {
			return nil, onceErr
		}
		return books, nil
	}
	// lock lost or lock upstream failure; the winner may still be filling
	if books, ok := s.cached(key); ok {
		return books, nil
	}
	return load()
}

func (s *Service) cached(key string) ([]domain.Book, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(key)
	if err != nil {
		metrics.ObserveCacheLookup(key, false)
		return nil, false
	}
	var books []domain.Book
	if err := json.Unmarshal(raw, &books); err != nil {
		metrics.ObserveCacheLookup(key, false)
		return nil, false
	}
	metrics.ObserveCacheLookup(key, true)
	return books, true
}

func (s *Service) store(key string, books []domain.Book) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(books)
	if err != nil {
		return
	}
	_ = s.cache.Set(key, raw, s.cfg.CacheTTL)
}
