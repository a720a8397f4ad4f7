// Package notifier informiert Gatekeeper über wartende Freigabe-Anträge.
package notifier

import (
	"context"

	"go.uber.org/zap"

	"labshare/models"
)

// PublishRequest enthält alles, was ein Gatekeeper zur Entscheidung braucht.
type PublishRequest struct {
	LogID         uint            `json:"log_id"`
	ResourceType  string          `json:"resource_type"`
	ResourceID    uint            `json:"resource_id"`
	ResourceTitle string          `json:"resource_title"`
	Requester     models.Person   `json:"requester"`
	Gatekeepers   []models.Person `json:"gatekeepers"`
}

// Notifier verschickt genau eine Benachrichtigung pro neuem Antrag.
type Notifier interface {
	Notify(ctx context.Context, req PublishRequest) error
}

// LogNotifier schreibt den Antrag nur ins Log.
type LogNotifier struct {
	Logger *zap.Logger
}

// NewLogNotifier erstellt einen neuen LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{Logger: logger}
}

// Notify implementiert Notifier.
func (n *LogNotifier) Notify(_ context.Context, req PublishRequest) error {
	emails := make([]string, 0, len(req.Gatekeepers))
	for _, g := range req.Gatekeepers {
		emails = append(emails, g.Email)
	}
	n.Logger.Info("Publish request waiting for approval",
		zap.Uint("log_id", req.LogID),
		zap.String("resource_type", req.ResourceType),
		zap.Uint("resource_id", req.ResourceID),
		zap.String("resource_title", req.ResourceTitle),
		zap.Uint("requester_id", req.Requester.ID),
		zap.Strings("gatekeepers", emails),
	)
	return nil
}
