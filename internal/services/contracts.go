package services

import (
	"context"

	"careconnect/internal/events"
	"careconnect/internal/models"
)

// Directory resolves user ids to public profiles. It is an external
// collaborator of the messaging core: the marketplace identity/profile system
// owns the data, this service only reads it for display enrichment and
// candidate search.
type Directory interface {
	Lookup(ctx context.Context, userID uint) (*models.UserProfile, error)
	LookupMany(ctx context.Context, userIDs []uint) (map[uint]*models.UserProfile, error)
	Search(ctx context.Context, query string, excludeUserID uint, limit int) ([]models.UserProfile, error)
}

// Notifier delivers best-effort realtime events. Implementations must be
// fire-and-forget from the caller's perspective: a delivery failure is logged
// by the caller and never rolls back the durable operation it announces.
//
// ConversationID routes the event to the conversation room; TargetUsers are
// additionally addressed directly so devices that have not opened the thread
// view still receive it.
type Notifier interface {
	Notify(ctx context.Context, conversationID uint, targetUsers []uint, ev events.Event) error
}

// NopNotifier discards every event. Useful for tests and tools.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, conversationID uint, targetUsers []uint, ev events.Event) error {
	return nil
}
