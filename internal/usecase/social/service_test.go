package social

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"novalyn/internal/domain"
	"novalyn/internal/usecase/affinity"
)

type stubUsers struct {
	users map[int64]domain.User
}

func (s *stubUsers) GetUser(_ context.Context, id int64) (domain.User, error) {
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

func (s *stubUsers) GetUsers(_ context.Context, ids []int64) ([]domain.User, error) {
	out := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		if user, ok := s.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

type followKey struct {
	follower int64
	followee int64
}

type stubFollows struct {
	edges map[followKey]struct{}
}

func (s *stubFollows) Follow(_ context.Context, followerID, followeeID int64) error {
	s.edges[followKey{followerID, followeeID}] = struct{}{}
	return nil
}

func (s *stubFollows) Unfollow(_ context.Context, followerID, followeeID int64) error {
	delete(s.edges, followKey{followerID, followeeID})
	return nil
}

func (s *stubFollows) IsFollowing(_ context.Context, followerID, followeeID int64) (bool, error) {
	_, ok := s.edges[followKey{followerID, followeeID}]
	return ok, nil
}

func (s *stubFollows) ListFollowers(context.Context, int64) ([]domain.User, error) {
	return nil, nil
}

func (s *stubFollows) ListFollowing(context.Context, int64) ([]domain.User, error) {
	return nil, nil
}

func (s *stubFollows) ListFollowingIDs(_ context.Context, userID int64) ([]int64, error) {
	var out []int64
	for key := range s.edges {
		if key.follower == userID {
			out = append(out, key.followee)
		}
	}
	return out, nil
}

type stubSignatures struct {
	sigs map[int64]domain.UserSignature
}

func (s *stubSignatures) LoadSignature(_ context.Context, userID int64) (domain.UserSignature, error) {
	sig, ok := s.sigs[userID]
	if !ok {
		return domain.UserSignature{}, domain.ErrNotFound
	}
	return sig, nil
}

type stubLibrary struct {
	signatures []domain.UserSignature
	excludeArg []int64
}

func (s *stubLibrary) GetEntry(context.Context, int64, int64) (domain.LibraryEntry, error) {
	return domain.LibraryEntry{}, domain.ErrNotFound
}

func (s *stubLibrary) CreateEntry(_ context.Context, entry domain.LibraryEntry) (domain.LibraryEntry, error) {
	return entry, nil
}

func (s *stubLibrary) UpdateStatus(context.Context, int64, int64, domain.ReadingStatus, *time.Time, *time.Time) error {
	return nil
}

func (s *stubLibrary) UpdateRating(context.Context, int64, int64, int) error { return nil }

func (s *stubLibrary) DeleteEntry(context.Context, int64, int64) error { return nil }

func (s *stubLibrary) ListEntries(context.Context, int64, domain.ReadingStatus, int, int) ([]domain.LibraryEntry, error) {
	return nil, nil
}

func (s *stubLibrary) ListForSignature(context.Context, int64) ([]domain.LibraryEntry, error) {
	return nil, nil
}

func (s *stubLibrary) ListSignatures(_ context.Context, excludeUserIDs []int64) ([]domain.UserSignature, error) {
	s.excludeArg = excludeUserIDs
	exclude := make(map[int64]struct{}, len(excludeUserIDs))
	for _, id := range excludeUserIDs {
		exclude[id] = struct{}{}
	}
	var out []domain.UserSignature
	for _, sig := range s.signatures {
		if _, ok := exclude[sig.UserID]; ok {
			continue
		}
		out = append(out, sig)
	}
	return out, nil
}

func (s *stubLibrary) ListPeerFavorites(context.Context, []int64, int, []int64, int) ([]domain.Book, error) {
	return nil, nil
}

type stubActivities struct {
	feedIDs []int64
}

func (s *stubActivities) InsertActivity(context.Context, domain.ActivityEvent) error { return nil }

func (s *stubActivities) ListFeed(_ context.Context, userIDs []int64, _ int) ([]domain.Activity, error) {
	s.feedIDs = userIDs
	return nil, nil
}

type stubQueue struct {
	events []domain.ActivityEvent
}

func (s *stubQueue) Enqueue(_ context.Context, event domain.ActivityEvent) error {
	s.events = append(s.events, event)
	return nil
}

func (s *stubQueue) Pop(context.Context) (domain.ActivityEvent, domain.AckFunc, error) {
	return domain.ActivityEvent{}, nil, errors.New("empty")
}

func sig(userID int64, librarySize int, genres ...string) domain.UserSignature {
	out := domain.UserSignature{
		UserID:      userID,
		Genres:      make(map[string]struct{}),
		Authors:     make(map[string]struct{}),
		Owned:       make(map[int64]struct{}),
		LibrarySize: librarySize,
	}
	for _, g := range genres {
		out.Genres[g] = struct{}{}
	}
	return out
}

type fixture struct {
	svc        *Service
	follows    *stubFollows
	library    *stubLibrary
	activities *stubActivities
	queue      *stubQueue
	signatures *stubSignatures
}

func newFixture() *fixture {
	users := &stubUsers{users: map[int64]domain.User{
		1: {ID: 1, Name: "alice"},
		2: {ID: 2, Name: "bob"},
		3: {ID: 3, Name: "carol"},
		4: {ID: 4, Name: "dave"},
	}}
	follows := &stubFollows{edges: map[followKey]struct{}{}}
	library := &stubLibrary{}
	signatures := &stubSignatures{sigs: map[int64]domain.UserSignature{}}
	activities := &stubActivities{}
	queue := &stubQueue{}
	svc := NewService(users, follows, library, signatures, affinity.NewScorer(), activities, queue, zerolog.Nop(), 10, 50)
	return &fixture{svc: svc, follows: follows, library: library, activities: activities, queue: queue, signatures: signatures}
}

func TestFollowSelf(t *testing.T) {
	f := newFixture()
	if err := f.svc.Follow(context.Background(), 1, 1); !errors.Is(err, ErrSelfFollow) {
		t.Fatalf("err = %v, want ErrSelfFollow", err)
	}
}

func TestFollowUnknownTarget(t *testing.T) {
	f := newFixture()
	if err := f.svc.Follow(context.Background(), 1, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFollowDuplicate(t *testing.T) {
	f := newFixture()
	if err := f.svc.Follow(context.Background(), 1, 2); err != nil {
		t.Fatalf("first Follow: %v", err)
	}
	if err := f.svc.Follow(context.Background(), 1, 2); !errors.Is(err, ErrAlreadyFollowing) {
		t.Fatalf("err = %v, want ErrAlreadyFollowing", err)
	}
}

func TestFollowPublishesEvent(t *testing.T) {
	f := newFixture()
	if err := f.svc.Follow(context.Background(), 1, 2); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if len(f.queue.events) != 1 {
		t.Fatalf("events = %d, want 1", len(f.queue.events))
	}
	event := f.queue.events[0]
	if event.Type != domain.ActivityFollowed || event.TargetUserID == nil || *event.TargetUserID != 2 {
		t.Fatalf("event = %+v, want followed with target 2", event)
	}
	if event.ID == "" || event.OccurredAt.IsZero() {
		t.Fatalf("event identity not stamped: %+v", event)
	}
}

func TestUnfollowNotFollowing(t *testing.T) {
	f := newFixture()
	if err := f.svc.Unfollow(context.Background(), 1, 2); !errors.Is(err, ErrNotFollowing) {
		t.Fatalf("err = %v, want ErrNotFollowing", err)
	}
}

func TestSuggestedUsersEmptySignature(t *testing.T) {
	f := newFixture()
	f.signatures.sigs[1] = sig(1, 0)

	suggested, err := f.svc.SuggestedUsers(context.Background(), 1)
	if err != nil {
		t.Fatalf("SuggestedUsers: %v", err)
	}
	if suggested == nil || len(suggested) != 0 {
		t.Fatalf("suggested = %+v, want empty slice", suggested)
	}
}

func TestSuggestedUsersRankedAndFiltered(t *testing.T) {
	f := newFixture()
	f.signatures.sigs[1] = sig(1, 5, "sci-fi", "fantasy")
	f.library.signatures = []domain.UserSignature{
		sig(2, 3, "sci-fi"),
		sig(3, 8, "sci-fi", "fantasy"),
		sig(4, 2, "romance"),
	}
	if err := f.svc.Follow(context.Background(), 1, 2); err != nil {
		t.Fatalf("Follow: %v", err)
	}

	suggested, err := f.svc.SuggestedUsers(context.Background(), 1)
	if err != nil {
		t.Fatalf("SuggestedUsers: %v", err)
	}
	if len(suggested) != 1 {
		t.Fatalf("suggested = %+v, want only carol", suggested)
	}
	if suggested[0].User.ID != 3 || suggested[0].User.Name != "carol" {
		t.Fatalf("suggested user = %+v, want carol", suggested[0].User)
	}
	if suggested[0].SharedGenres != 2 || suggested[0].BooksRead != 8 {
		t.Fatalf("overlap = %d/%d, want 2 shared genres and 8 books", suggested[0].SharedGenres, suggested[0].BooksRead)
	}
	for _, id := range f.library.excludeArg {
		if id == 3 {
			t.Fatalf("candidate 3 must not be excluded, got %v", f.library.excludeArg)
		}
	}
}

func TestSuggestedUsersOrderByOverlap(t *testing.T) {
	f := newFixture()
	f.signatures.sigs[1] = sig(1, 5, "sci-fi", "fantasy")
	f.library.signatures = []domain.UserSignature{
		sig(2, 3, "sci-fi"),
		sig(3, 8, "sci-fi", "fantasy"),
		sig(4, 9, "sci-fi"),
	}

	suggested, err := f.svc.SuggestedUsers(context.Background(), 1)
	if err != nil {
		t.Fatalf("SuggestedUsers: %v", err)
	}
	if len(suggested) != 3 {
		t.Fatalf("suggested = %+v, want 3", suggested)
	}
	gotOrder := []int64{suggested[0].User.ID, suggested[1].User.ID, suggested[2].User.ID}
	wantOrder := []int64{3, 4, 2}
	for i := range wantOrder {
		if gotOrder[i] != wantOrder[i] {
			t.Fatalf("order = %v, want %v", gotOrder, wantOrder)
		}
	}
}

func TestActivityFeedIncludesSelf(t *testing.T) {
	f := newFixture()
	if err := f.svc.Follow(context.Background(), 1, 2); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if err := f.svc.Follow(context.Background(), 1, 3); err != nil {
		t.Fatalf("Follow: %v", err)
	}

	if _, err := f.svc.ActivityFeed(context.Background(), 1); err != nil {
		t.Fatalf("ActivityFeed: %v", err)
	}
	seen := make(map[int64]bool, len(f.activities.feedIDs))
	for _, id := range f.activities.feedIDs {
		seen[id] = true
	}
	for _, id := range []int64{1, 2, 3} {
		if !seen[id] {
			t.Fatalf("feed ids = %v, missing %d", f.activities.feedIDs, id)
		}
	}
}
