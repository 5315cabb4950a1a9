package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"earn-platform/internal/model"
	"earn-platform/internal/repository"
)

// Notifier delivers a message to one account, or to everyone when
// accountID is nil. Delivery is best effort; callers never fail an
// operation over a notification.
type Notifier interface {
	Notify(ctx context.Context, accountID *string, kind model.NotificationKind, title, message string)
}

// StoreNotifier persists notifications for later retrieval.
type StoreNotifier struct {
	store repository.Store
}

// NewStoreNotifier creates a store-backed notifier.
func NewStoreNotifier(store repository.Store) *StoreNotifier {
	return &StoreNotifier{store: store}
}

func (n *StoreNotifier) Notify(ctx context.Context, accountID *string, kind model.NotificationKind, title, message string) {
	err := n.store.Notifications().Create(ctx, &model.Notification{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Title:     title,
		Message:   message,
		Kind:      kind,
	})
	if err != nil {
		log.Warn().Err(err).Str("title", title).Msg("Failed to store notification")
	}
}
