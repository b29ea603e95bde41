package feed

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"roomchat-service/internal/models"
	"roomchat-service/internal/observability"
	"roomchat-service/internal/repositories"
)

// ErrEmptyMessage rejects an append with neither text nor an attachment.
// No store call is made in that case.
var ErrEmptyMessage = errors.New("message needs text or an attachment")

// Sessions is the slice of the identity session the feed depends on. The
// principal is resolved at append time, never cached.
type Sessions interface {
	Current(ctx context.Context) (models.Principal, error)
}

// Feed keeps every open room subscription consistent with the stored message
// feed. Appends go through the same component so that the writer's own
// subscription echo is the sole confirmation path: nothing is rendered
// optimistically anywhere.
type Feed struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	sessions Sessions
	logger   *zap.SugaredLogger

	mu   sync.RWMutex
	subs map[int]map[*Subscription]struct{}
}

// New constructs a Feed.
func New(rooms repositories.RoomRepository, messages repositories.MessageRepository, sessions Sessions, logger *zap.SugaredLogger) *Feed {
	return &Feed{
		rooms:    rooms,
		messages: messages,
		sessions: sessions,
		logger:   logger,
		subs:     map[int]map[*Subscription]struct{}{},
	}
}

// Open begins a live ordered view over the room's messages. The room's
// existence is checked first: on a missing room no subscription is
// established and callers navigate away. The initial snapshot (possibly
// empty) is delivered before Open returns.
func (f *Feed) Open(ctx context.Context, roomID int) (*Subscription, error) {
	if _, err := f.rooms.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}

	sub := &Subscription{
		feed:   f,
		roomID: roomID,
		ch:     make(chan []models.Message, 1),
	}
	if p, err := f.sessions.Current(ctx); err == nil {
		sub.userID = p.ID
	}

	// The snapshot read, registration and first delivery hold the same lock
	// as broadcast: an append racing Open lands either in the initial
	// snapshot or in a later broadcast, never in neither.
	f.mu.Lock()
	snapshot, err := f.messages.ListMessages(ctx, roomID)
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}
	if _, ok := f.subs[roomID]; !ok {
		f.subs[roomID] = make(map[*Subscription]struct{})
	}
	f.subs[roomID][sub] = struct{}{}
	sub.push(snapshot)
	f.mu.Unlock()

	observability.IncFeedSubscriptions()
	return sub, nil
}

// Snapshot returns the room's current full ordered feed without subscribing.
func (f *Feed) Snapshot(ctx context.Context, roomID int) ([]models.Message, error) {
	if _, err := f.rooms.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return f.messages.ListMessages(ctx, roomID)
}

// Append writes one message to the room and rebroadcasts the room's full
// ordered feed to every subscriber, the sender included. There is no direct
// success payload consumed by callers: the pushed snapshot is the
// confirmation.
func (f *Feed) Append(ctx context.Context, roomID int, text, attachmentURL string) error {
	principal, err := f.sessions.Current(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" && attachmentURL == "" {
		return ErrEmptyMessage
	}
	if _, err := f.rooms.GetRoom(ctx, roomID); err != nil {
		return err
	}

	if _, err := f.messages.CreateMessage(ctx, roomID, principal.ID, principal.DisplayName, text, attachmentURL); err != nil {
		return err
	}

	f.broadcast(ctx, roomID)
	return nil
}

// CloseForUser tears down every subscription opened by the user. Wired to
// session sign-out so dead screens stop receiving snapshots.
func (f *Feed) CloseForUser(userID int) {
	f.mu.RLock()
	var stale []*Subscription
	for _, room := range f.subs {
		for sub := range room {
			if sub.userID == userID && userID != 0 {
				stale = append(stale, sub)
			}
		}
	}
	f.mu.RUnlock()

	for _, sub := range stale {
		sub.Close()
	}
}

func (f *Feed) broadcast(ctx context.Context, roomID int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.subs[roomID]) == 0 {
		return
	}

	snapshot, err := f.messages.ListMessages(ctx, roomID)
	if err != nil {
		f.logger.Errorw("feed snapshot read failed", "room_id", roomID, "error", err)
		return
	}

	for sub := range f.subs[roomID] {
		sub.push(snapshot)
	}
	observability.AddFeedSnapshots(len(f.subs[roomID]))
}

func (f *Feed) unregister(sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok := f.subs[sub.roomID]; ok {
		if _, present := room[sub]; present {
			delete(room, sub)
			observability.DecFeedSubscriptions()
		}
		if len(room) == 0 {
			delete(f.subs, sub.roomID)
		}
	}
}
