package models

import (
	"time"

	"gorm.io/datatypes"
)

// PublishState ist der integer-codierte Zustand eines Freigabe-Antrags.
// PublishStateNone wird nie gespeichert (kein Antrag vorhanden).
type PublishState int

const (
	PublishStateNone               PublishState = 0
	PublishStateApproved           PublishState = 1
	PublishStateWaitingForApproval PublishState = 2
	PublishStateRejected           PublishState = 3
)

func (s PublishState) String() string {
	switch s {
	case PublishStateNone:
		return "none"
	case PublishStateApproved:
		return "approved"
	case PublishStateWaitingForApproval:
		return "waiting_for_approval"
	case PublishStateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ResourcePublishLog protokolliert einen Antrag, eine Ressource über ihr Projekt hinaus sichtbar zu machen.
type ResourcePublishLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ResourceType string `json:"resource_type" gorm:"size:64;not null;index:idx_publish_log_resource,priority:1"`
	ResourceID   uint   `json:"resource_id" gorm:"not null;index:idx_publish_log_resource,priority:2"`
	UserID       uint   `json:"user_id" gorm:"not null;index"`

	PublishState PublishState `json:"publish_state" gorm:"not null;index"`

	// Angefragte Freigabe (Scope, Zugriff) als Snapshot
	RequestedSharing datatypes.JSON `json:"requested_sharing,omitempty"`

	// Begründung des Gatekeepers bei Ablehnung
	Comment string `json:"comment,omitempty" gorm:"type:text"`
}

// TableName gibt explizit den Tabellennamen an.
func (ResourcePublishLog) TableName() string {
	return "resource_publish_logs"
}
