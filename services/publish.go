package services

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"labshare/authorization"
	"labshare/models"
	"labshare/notifier"
)

// RequestedSharing ist der Snapshot der angefragten Standardfreigabe.
type RequestedSharing struct {
	SharingScope models.SharingScope `json:"sharing_scope"`
	AccessType   models.AccessType   `json:"access_type"`
}

// NextState prüft einen Zustandsübergang. changed ist false für wiederholtes
// Freigeben bzw. Ablehnen eines bereits abgeschlossenen Antrags.
func NextState(from, to models.PublishState) (changed bool, err error) {
	if from == to && (to == models.PublishStateApproved || to == models.PublishStateRejected) {
		return false, nil
	}
	switch {
	case from == models.PublishStateNone && to == models.PublishStateWaitingForApproval:
		return true, nil
	case from == models.PublishStateWaitingForApproval &&
		(to == models.PublishStateApproved || to == models.PublishStateRejected):
		return true, nil
	}
	return false, ErrInvalidStateTransition
}

// PublishService verwaltet Freigabe-Anträge für gatekeeper-geschützte Projekte.
type PublishService struct {
	DB       *gorm.DB
	Notifier notifier.Notifier
	Logger   *zap.Logger
	// Strict hält die angefragte Sichtbarkeit bis zur Freigabe zurück.
	Strict bool
}

// NewPublishService erstellt einen neuen PublishService.
func NewPublishService(db *gorm.DB, n notifier.Notifier, logger *zap.Logger, strict bool) *PublishService {
	return &PublishService{DB: db, Notifier: n, Logger: logger, Strict: strict}
}

type gateResult struct {
	log     *models.ResourcePublishLog
	request *notifier.PublishRequest
	hold    bool
}

// gatekeepersOf sammelt die Gatekeeper aller Projekte des Assets ohne Duplikate.
func gatekeepersOf(asset Asset) []models.Person {
	seen := make(map[uint]bool)
	var out []models.Person
	for _, pr := range asset.ProjectList() {
		for _, g := range pr.Gatekeepers {
			if !seen[g.ID] {
				seen[g.ID] = true
				out = append(out, g)
			}
		}
	}
	return out
}

// isGatekeeperFor prüft, ob der Akteur Gatekeeper eines Projekts des Assets ist.
func isGatekeeperFor(actor *authorization.Actor, asset Asset) bool {
	if actor == nil {
		return false
	}
	for _, pr := range asset.ProjectList() {
		if pr.HasGatekeeper(actor.PersonID) {
			return true
		}
	}
	return false
}

// WithdrawnComment steht an Anträgen, die durch eine spätere Freigabe-Änderung
// des Eigentümers im strict-Modus hinfällig wurden.
const WithdrawnComment = "withdrawn: requested sharing no longer widens visibility"

// gate legt bei einer Erweiterung der Sichtbarkeit einen wartenden Antrag an.
// Im strict-Modus folgt ein bereits wartender Antrag jeder weiteren Freigabe-Änderung:
// erweitert sie weiterhin, wird der Snapshot ersetzt, sonst wird der Antrag zurückgezogen.
func (s *PublishService) gate(tx *gorm.DB, actor *authorization.Actor, asset Asset, current models.SharingScope, requested RequestedSharing) (gateResult, error) {
	var res gateResult
	next := models.VisibilityOf(requested.SharingScope, requested.AccessType)
	widens := next > current && next >= models.ScopeAllRegisteredUsers
	if !widens && !s.Strict {
		return res, nil
	}
	gatekeepers := gatekeepersOf(asset)
	if len(gatekeepers) == 0 {
		return res, nil
	}

	var snapshot datatypes.JSON
	if s.Strict {
		raw, err := json.Marshal(requested)
		if err != nil {
			return res, err
		}
		snapshot = datatypes.JSON(raw)
	}

	var waiting models.ResourcePublishLog
	err := tx.Where("resource_type = ? AND resource_id = ? AND publish_state = ?",
		asset.AssetType(), asset.AssetID(), models.PublishStateWaitingForApproval).
		First(&waiting).Error
	switch {
	case err == nil:
		if !s.Strict {
			return res, nil
		}
		if !widens {
			return s.withdraw(tx, &waiting)
		}
		if err := tx.Model(&waiting).Update("requested_sharing", snapshot).Error; err != nil {
			return res, err
		}
		waiting.RequestedSharing = snapshot
		res.log, res.hold = &waiting, true
		return res, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return res, err
	}
	if !widens {
		return res, nil
	}

	if _, err := NextState(models.PublishStateNone, models.PublishStateWaitingForApproval); err != nil {
		return res, err
	}
	var requester models.Person
	if actor != nil {
		if err := tx.First(&requester, actor.PersonID).Error; err != nil {
			return res, notFound(err)
		}
	}
	log := &models.ResourcePublishLog{
		ResourceType:     asset.AssetType(),
		ResourceID:       asset.AssetID(),
		UserID:           requester.ID,
		PublishState:     models.PublishStateWaitingForApproval,
		RequestedSharing: snapshot,
	}
	if err := tx.Create(log).Error; err != nil {
		return res, err
	}
	publishRequestsTotal.Inc()

	res.log, res.hold = log, s.Strict
	res.request = &notifier.PublishRequest{
		LogID:         log.ID,
		ResourceType:  log.ResourceType,
		ResourceID:    log.ResourceID,
		ResourceTitle: asset.AssetTitle(),
		Requester:     requester,
		Gatekeepers:   gatekeepers,
	}
	return res, nil
}

// withdraw lehnt einen wartenden Antrag ab, dessen Snapshot nicht mehr dem Wunsch
// des Eigentümers entspricht. Die neue Freigabe wird sofort angewendet.
func (s *PublishService) withdraw(tx *gorm.DB, waiting *models.ResourcePublishLog) (gateResult, error) {
	if _, err := NextState(waiting.PublishState, models.PublishStateRejected); err != nil {
		return gateResult{}, err
	}
	if err := tx.Model(waiting).Updates(map[string]any{
		"publish_state":     models.PublishStateRejected,
		"comment":           WithdrawnComment,
		"requested_sharing": nil,
	}).Error; err != nil {
		return gateResult{}, err
	}
	waiting.PublishState, waiting.Comment, waiting.RequestedSharing = models.PublishStateRejected, WithdrawnComment, nil
	s.Logger.Info("Freigabe-Antrag zurückgezogen", zap.Uint("log_id", waiting.ID),
		zap.String("resource_type", waiting.ResourceType), zap.Uint("resource_id", waiting.ResourceID))
	return gateResult{log: waiting}, nil
}

// Dispatch benachrichtigt die Gatekeeper nach dem Commit. Fehler werden nur geloggt.
func (s *PublishService) Dispatch(ctx context.Context, outcome *SharingOutcome) {
	if outcome == nil || outcome.request == nil {
		return
	}
	req := *outcome.request
	if err := s.Notifier.Notify(ctx, req); err != nil {
		publishNotificationsFailedTotal.Inc()
		s.Logger.Error("Benachrichtigung der Gatekeeper fehlgeschlagen",
			zap.Uint("log_id", req.LogID), zap.Int("gatekeepers", len(req.Gatekeepers)), zap.Error(err))
		return
	}
	s.Logger.Info("Gatekeeper benachrichtigt", zap.Uint("log_id", req.LogID), zap.Int("gatekeepers", len(req.Gatekeepers)))
}

// Approve gibt einen wartenden Antrag frei.
func (s *PublishService) Approve(ctx context.Context, actor *authorization.Actor, logID uint) (*models.ResourcePublishLog, error) {
	return s.decide(ctx, actor, logID, models.PublishStateApproved, "")
}

// Reject lehnt einen wartenden Antrag mit optionaler Begründung ab.
func (s *PublishService) Reject(ctx context.Context, actor *authorization.Actor, logID uint, comment string) (*models.ResourcePublishLog, error) {
	return s.decide(ctx, actor, logID, models.PublishStateRejected, comment)
}

func (s *PublishService) decide(ctx context.Context, actor *authorization.Actor, logID uint, to models.PublishState, comment string) (*models.ResourcePublishLog, error) {
	var log models.ResourcePublishLog
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&log, logID).Error; err != nil {
			return notFound(err)
		}
		asset, err := loadAsset(tx, log.ResourceType, log.ResourceID)
		if err != nil {
			return err
		}
		if !isGatekeeperFor(actor, asset) {
			authorizationDenialsTotal.WithLabelValues("publish_" + to.String()).Inc()
			return ErrAuthorizationDenied
		}
		changed, err := NextState(log.PublishState, to)
		if err != nil || !changed {
			return err
		}
		updates := map[string]any{"publish_state": to}
		log.PublishState = to
		if comment != "" {
			updates["comment"] = comment
			log.Comment = comment
		}
		if err := tx.Model(&log).Updates(updates).Error; err != nil {
			return err
		}
		if to == models.PublishStateApproved && len(log.RequestedSharing) > 0 {
			if err := applySnapshot(tx, asset, log.RequestedSharing); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("Freigabe-Antrag entschieden",
		zap.Uint("log_id", log.ID), zap.String("state", log.PublishState.String()), zap.Uint("gatekeeper_id", actor.PersonID))
	return &log, nil
}

// applySnapshot setzt die bei strict zurückgehaltene Freigabe.
func applySnapshot(tx *gorm.DB, asset Asset, raw datatypes.JSON) error {
	var requested RequestedSharing
	if err := json.Unmarshal(raw, &requested); err != nil {
		return err
	}
	policy := asset.SharingPolicy()
	if policy == nil {
		return nil
	}
	policy.SharingScope, policy.AccessType = requested.SharingScope, requested.AccessType
	return tx.Model(policy).Updates(map[string]any{
		"sharing_scope": requested.SharingScope,
		"access_type":   requested.AccessType,
	}).Error
}

// List liefert die Anträge zu Assets, für die der Akteur Gatekeeper ist.
// state == nil liefert alle Zustände.
func (s *PublishService) List(ctx context.Context, actor *authorization.Actor, state *models.PublishState) ([]models.ResourcePublishLog, error) {
	if actor == nil {
		return nil, ErrAuthorizationDenied
	}
	q := s.DB.WithContext(ctx).Order("created_at DESC, id DESC")
	if state != nil {
		q = q.Where("publish_state = ?", *state)
	}
	var logs []models.ResourcePublishLog
	if err := q.Find(&logs).Error; err != nil {
		return nil, err
	}
	out := make([]models.ResourcePublishLog, 0, len(logs))
	for _, l := range logs {
		asset, err := loadAsset(s.DB.WithContext(ctx), l.ResourceType, l.ResourceID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if isGatekeeperFor(actor, asset) {
			out = append(out, l)
		}
	}
	return out, nil
}

// PendingCount zählt alle wartenden Anträge.
func (s *PublishService) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.ResourcePublishLog{}).
		Where("publish_state = ?", models.PublishStateWaitingForApproval).Count(&n).Error
	return n, err
}

// RefreshWaitingGauge aktualisiert die Metrik publish_logs_waiting.
func (s *PublishService) RefreshWaitingGauge(ctx context.Context) error {
	n, err := s.PendingCount(ctx)
	if err != nil {
		return err
	}
	PublishLogsWaiting.Set(float64(n))
	return nil
}
