package social

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"novalyn/internal/domain"
	"novalyn/internal/infra/metrics"
)

var (
	// ErrAlreadyFollowing is returned on a duplicate follow.
	ErrAlreadyFollowing = errors.New("already following this user")
	// ErrNotFollowing is returned when unfollowing a user never followed.
	ErrNotFollowing = errors.New("not following this user")
	// ErrSelfFollow is returned when a user tries to follow themselves.
	ErrSelfFollow = errors.New("cannot follow yourself")
)

const defaultFeedLimit = 50

// Service manages the follower graph, peer suggestions and the feed.
type Service struct {
	users        domain.UserRepo
	follows      domain.FollowRepo
	library      domain.LibraryRepo
	signatures   domain.SignatureLoader
	ranker       domain.PeerRanker
	activities   domain.ActivityRepo
	queue        domain.ActivityQueue
	log          zerolog.Logger
	suggestLimit int
	feedLimit    int
	now          func() time.Time
}

// NewService creates the social service. The queue may be nil.
func NewService(users domain.UserRepo, follows domain.FollowRepo, library domain.LibraryRepo, signatures domain.SignatureLoader, ranker domain.PeerRanker, activities domain.ActivityRepo, queue domain.ActivityQueue, logger zerolog.Logger, suggestLimit, feedLimit int) *Service {
	if suggestLimit <= 0 {
		suggestLimit = 10
	}
	if feedLimit <= 0 {
		feedLimit = defaultFeedLimit
	}
	return &Service{
		users:        users,
		follows:      follows,
		library:      library,
		signatures:   signatures,
		ranker:       ranker,
		activities:   activities,
		queue:        queue,
		log:          logger,
		suggestLimit: suggestLimit,
		feedLimit:    feedLimit,
		now:          time.Now,
	}
}

// Follow subscribes the user to the target's activity.
func (s *Service) Follow(ctx context.Context, userID, targetID int64) error {
	if userID == targetID {
		return ErrSelfFollow
	}
	if _, err := s.users.GetUser(ctx, targetID); err != nil {
		return fmt.Errorf("load target user: %w", err)
	}
	following, err := s.follows.IsFollowing(ctx, userID, targetID)
	if err != nil {
		return fmt.Errorf("check follow state: %w", err)
	}
	if following {
		return ErrAlreadyFollowing
	}
	if err := s.follows.Follow(ctx, userID, targetID); err != nil {
		return fmt.Errorf("save follow: %w", err)
	}
	s.publish(ctx, domain.ActivityEvent{UserID: userID, Type: domain.ActivityFollowed, TargetUserID: &targetID})
	return nil
}

// Unfollow removes the subscription.
func (s *Service) Unfollow(ctx context.Context, userID, targetID int64) error {
	if _, err := s.users.GetUser(ctx, targetID); err != nil {
		return fmt.Errorf("load target user: %w", err)
	}
	following, err := s.follows.IsFollowing(ctx, userID, targetID)
	if err != nil {
		return fmt.Errorf("check follow state: %w", err)
	}
	if !following {
		return ErrNotFollowing
	}
	return s.follows.Unfollow(ctx, userID, targetID)
}

// Followers lists users following the given user.
func (s *Service) Followers(ctx context.Context, userID int64) ([]domain.User, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return s.follows.ListFollowers(ctx, userID)
}

// Following lists users the given user follows.
func (s *Service) Following(ctx context.Context, userID int64) ([]domain.User, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return s.follows.ListFollowing(ctx, userID)
}

// SuggestedUsers ranks non-followed users by shared reading genres.
// A user with no genre signature gets no suggestions.
func (s *Service) SuggestedUsers(ctx context.Context, userID int64) ([]domain.SuggestedUser, error) {
	sig, err := s.signatures.LoadSignature(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(sig.Genres) == 0 {
		return []domain.SuggestedUser{}, nil
	}
	followingIDs, err := s.follows.ListFollowingIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load following: %w", err)
	}
	excludeIDs := append([]int64{userID}, followingIDs...)
	candidates, err := s.library.ListSignatures(ctx, excludeIDs)
	if err != nil {
		return nil, fmt.Errorf("load candidate signatures: %w", err)
	}
	metrics.AffinityCandidatesScanned.Observe(float64(len(candidates)))
	exclude := make(map[int64]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		exclude[id] = struct{}{}
	}
	ranked := s.ranker.RankPeers(sig, candidates, exclude, s.suggestLimit)
	if len(ranked) == 0 {
		return []domain.SuggestedUser{}, nil
	}
	peerIDs := make([]int64, 0, len(ranked))
	for _, peer := range ranked {
		peerIDs = append(peerIDs, peer.UserID)
	}
	users, err := s.users.GetUsers(ctx, peerIDs)
	if err != nil {
		return nil, fmt.Errorf("load suggested users: %w", err)
	}
	byID := make(map[int64]domain.User, len(users))
	for _, user := range users {
		byID[user.ID] = user
	}
	suggested := make([]domain.SuggestedUser, 0, len(ranked))
	for _, peer := range ranked {
		user, ok := byID[peer.UserID]
		if !ok {
			continue
		}
		suggested = append(suggested, domain.SuggestedUser{
			User:         user,
			SharedGenres: peer.SharedGenres,
			BooksRead:    peer.BooksRead,
		})
	}
	return suggested, nil
}

// ActivityFeed returns recent activities of followed users plus the
// user's own, newest first.
func (s *Service) ActivityFeed(ctx context.Context, userID int64) ([]domain.Activity, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	followingIDs, err := s.follows.ListFollowingIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load following: %w", err)
	}
	feedIDs := append(followingIDs, userID)
	return s.activities.ListFeed(ctx, feedIDs, s.feedLimit)
}

func (s *Service) publish(ctx context.Context, event domain.ActivityEvent) {
	if s.queue == nil {
		return
	}
	event.ID = uuid.NewString()
	event.OccurredAt = s.now().UTC()
	if err := s.queue.Enqueue(ctx, event); err != nil {
		s.log.Error().Err(err).Str("type", string(event.Type)).Msg("social: enqueue activity event")
		return
	}
	metrics.IncActivityEvent(string(event.Type))
}
