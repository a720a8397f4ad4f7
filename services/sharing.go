package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"labshare/authorization"
	"labshare/models"
	"labshare/notifier"
)

// PermissionParam ist eine angefragte explizite Berechtigung.
type PermissionParam struct {
	ContributorType string            `json:"contributor_type"`
	ContributorID   uint              `json:"contributor_id"`
	AccessType      models.AccessType `json:"access_type"`
}

// SharingParams beschreibt die gewünschte Freigabe. Permissions ersetzt die bestehenden Einträge.
type SharingParams struct {
	SharingScope models.SharingScope `json:"sharing_scope"`
	AccessType   models.AccessType   `json:"access_type"`
	Permissions  []PermissionParam   `json:"permissions"`
}

// Validate prüft Scope, Zugriff und Subjekt-Typen.
func (p *SharingParams) Validate(verr *ValidationError) {
	if !p.SharingScope.Valid() {
		verr.Add("sharing.sharing_scope", fmt.Sprintf("unknown sharing scope %d", p.SharingScope))
	}
	if !p.AccessType.Valid() {
		verr.Add("sharing.access_type", fmt.Sprintf("unknown access type %d", p.AccessType))
	}
	for _, perm := range p.Permissions {
		switch perm.ContributorType {
		case models.ContributorPerson, models.ContributorProject:
		default:
			verr.Add("sharing.permissions", fmt.Sprintf("unknown contributor type %q", perm.ContributorType))
		}
		if perm.ContributorID == 0 {
			verr.Add("sharing.permissions", "contributor_id is required")
		}
		if !perm.AccessType.Valid() {
			verr.Add("sharing.permissions", fmt.Sprintf("unknown access type %d", perm.AccessType))
		}
	}
}

// SharingOutcome ist das Ergebnis einer Freigabe-Änderung innerhalb einer Transaktion.
type SharingOutcome struct {
	// Denied ist true, wenn der Akteur die Freigabe nicht verwalten darf. Die Policy bleibt dann unverändert.
	Denied bool
	// Log ist der neu angelegte (oder bei strict aktualisierte) Freigabe-Antrag.
	Log *models.ResourcePublishLog

	request *notifier.PublishRequest
}

// SharingService wendet Freigabe-Parameter auf die Policy eines Assets an.
type SharingService struct {
	Publish *PublishService
	Logger  *zap.Logger
}

// NewSharingService erstellt einen neuen SharingService.
func NewSharingService(publish *PublishService, logger *zap.Logger) *SharingService {
	return &SharingService{Publish: publish, Logger: logger}
}

// Apply muss innerhalb der Transaktion der Mutation laufen. Die Benachrichtigung
// der Gatekeeper erfolgt erst nach dem Commit über PublishService.Dispatch.
func (s *SharingService) Apply(ctx context.Context, tx *gorm.DB, actor *authorization.Actor, asset Asset, params *SharingParams) (*SharingOutcome, error) {
	out := &SharingOutcome{}
	if params == nil {
		return out, nil
	}
	if !authorization.CanPerform(authorization.ActionManage, actor, asset) {
		authorizationDenialsTotal.WithLabelValues(string(authorization.ActionManage)).Inc()
		s.Logger.Info("Freigabe-Änderung ohne Verwaltungsrecht ignoriert",
			zap.String("asset_type", asset.AssetType()), zap.Uint("asset_id", asset.AssetID()))
		out.Denied = true
		return out, nil
	}
	policy := asset.SharingPolicy()
	if policy == nil {
		return nil, fmt.Errorf("%s %d has no policy loaded", asset.AssetType(), asset.AssetID())
	}

	// Berechtigungen deduplizieren (letzter Eintrag gewinnt) und auf die eigene Stufe begrenzen
	ceiling := authorization.AccessLevel(actor, asset)
	type subject struct {
		typ string
		id  uint
	}
	index := make(map[subject]int)
	perms := make([]models.Permission, 0, len(params.Permissions))
	for _, pp := range params.Permissions {
		access := pp.AccessType
		if access > ceiling {
			access = ceiling
		}
		key := subject{pp.ContributorType, pp.ContributorID}
		if i, ok := index[key]; ok {
			perms[i].AccessType = access
			continue
		}
		index[key] = len(perms)
		perms = append(perms, models.Permission{
			PolicyID:        policy.ID,
			ContributorType: pp.ContributorType,
			ContributorID:   pp.ContributorID,
			AccessType:      access,
		})
	}
	if err := tx.Where("policy_id = ?", policy.ID).Delete(&models.Permission{}).Error; err != nil {
		return nil, err
	}
	if len(perms) > 0 {
		if err := tx.Create(&perms).Error; err != nil {
			return nil, err
		}
	}
	policy.Permissions = perms

	requested := RequestedSharing{SharingScope: params.SharingScope, AccessType: params.AccessType}
	gate, err := s.Publish.gate(tx, actor, asset, policy.Visibility(), requested)
	if err != nil {
		return nil, err
	}
	out.Log, out.request = gate.log, gate.request
	if gate.hold {
		s.Logger.Info("Sichtbarkeit bis zur Freigabe zurückgehalten",
			zap.String("asset_type", asset.AssetType()), zap.Uint("asset_id", asset.AssetID()))
		return out, nil
	}

	policy.SharingScope, policy.AccessType = params.SharingScope, params.AccessType
	if err := tx.Model(policy).Updates(map[string]any{
		"sharing_scope": policy.SharingScope,
		"access_type":   policy.AccessType,
	}).Error; err != nil {
		return nil, err
	}
	return out, nil
}
