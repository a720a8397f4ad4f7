package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"labshare/authorization"
	"labshare/models"
	"labshare/storage"
)

// ProtectedFields können über UpdateMetadata nicht geändert werden.
var ProtectedFields = []string{
	"contributor_id", "original_filename", "content_type", "content_blob", "content_blob_id",
	"version", "policy_id", "created_at", "updated_at", "last_used_at",
}

// IgnoredFields liefert die geschützten Schlüssel eines Request-Bodys, sortiert.
func IgnoredFields(body map[string]json.RawMessage) []string {
	var out []string
	for _, f := range ProtectedFields {
		if _, ok := body[f]; ok {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// ContentInput ist der Inhalt einer neuen Version: entweder Bytes oder ein externer Link.
type ContentInput struct {
	Data        []byte
	Filename    string
	ContentType string
	URL         string
}

func (c ContentInput) empty() bool {
	return len(c.Data) == 0 && strings.TrimSpace(c.URL) == ""
}

// PresentationCreate enthält die Metadaten einer neuen Präsentation.
type PresentationCreate struct {
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	ProjectIDs     []uint         `json:"project_ids"`
	CreatorIDs     []uint         `json:"creator_ids"`
	Attributions   []AssetRef     `json:"attributions"`
	PublicationIDs []uint         `json:"publication_ids"`
	AssayIDs       []uint         `json:"assay_ids"`
	Sharing        *SharingParams `json:"sharing"`
}

// PresentationUpdate ist die Allow-List der änderbaren Metadaten. nil bedeutet unverändert.
type PresentationUpdate struct {
	Title          *string        `json:"title"`
	Description    *string        `json:"description"`
	ProjectIDs     *[]uint        `json:"project_ids"`
	CreatorIDs     *[]uint        `json:"creator_ids"`
	Attributions   *[]AssetRef    `json:"attributions"`
	PublicationIDs *[]uint        `json:"publication_ids"`
	AssayIDs       *[]uint        `json:"assay_ids"`
	Sharing        *SharingParams `json:"sharing"`
}

// UpdateResult ist das Ergebnis von Create und UpdateMetadata.
type UpdateResult struct {
	Presentation  *models.Presentation       `json:"presentation"`
	SharingDenied bool                       `json:"sharing_denied,omitempty"`
	PublishLog    *models.ResourcePublishLog `json:"publish_log,omitempty"`
}

// Download ist ein geöffneter Inhalt einer Version. Bei externen Inhalten ist nur URL gesetzt.
type Download struct {
	Version     int
	Filename    string
	ContentType string
	Size        int64
	URL         string
	Body        io.ReadCloser
}

// AssetService verwaltet Präsentationen: Metadaten, Versionen und Löschen.
type AssetService struct {
	DB      *gorm.DB
	Blobs   storage.BlobStore
	Sharing *SharingService
	Publish *PublishService
	Logger  *zap.Logger
	Now     func() time.Time
}

// NewAssetService erstellt einen neuen AssetService.
func NewAssetService(db *gorm.DB, blobs storage.BlobStore, sharing *SharingService, publish *PublishService, logger *zap.Logger) *AssetService {
	return &AssetService{DB: db, Blobs: blobs, Sharing: sharing, Publish: publish, Logger: logger, Now: time.Now}
}

func (s *AssetService) loadPresentation(db *gorm.DB, id uint) (*models.Presentation, error) {
	var p models.Presentation
	if err := preloadAsset(db).Preload("ContentBlob").First(&p, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// touchLastUsed setzt last_used_at ohne Hooks und ohne updated_at. Fehler werden nur geloggt.
func (s *AssetService) touchLastUsed(ctx context.Context, id uint) {
	err := s.DB.WithContext(ctx).Model(&models.Presentation{}).Where("id = ?", id).
		UpdateColumn("last_used_at", s.Now()).Error
	if err != nil {
		s.Logger.Warn("Konnte last_used_at nicht setzen", zap.Uint("presentation_id", id), zap.Error(err))
	}
}

// Get lädt eine Präsentation, wenn der Akteur sie sehen darf.
func (s *AssetService) Get(ctx context.Context, actor *authorization.Actor, id uint) (*models.Presentation, error) {
	p, err := s.loadPresentation(s.DB.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := authorize(authorization.ActionView, actor, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Show wie Get, markiert die Präsentation aber als benutzt. Der zurückgegebene
// Datensatz trägt noch den vorherigen last_used_at-Wert.
func (s *AssetService) Show(ctx context.Context, actor *authorization.Actor, id uint) (*models.Presentation, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	s.touchLastUsed(ctx, p.ID)
	return p, nil
}

// List liefert alle Präsentationen, die der Akteur sehen darf, neueste zuerst.
func (s *AssetService) List(ctx context.Context, actor *authorization.Actor) ([]*models.Presentation, error) {
	var all []*models.Presentation
	if err := preloadAsset(s.DB.WithContext(ctx)).Order("updated_at DESC, id DESC").Find(&all).Error; err != nil {
		return nil, err
	}
	return authorization.Filter(authorization.ActionView, actor, all), nil
}

// Versions liefert die Versionshistorie einer sichtbaren Präsentation.
func (s *AssetService) Versions(ctx context.Context, actor *authorization.Actor, id uint) ([]models.PresentationVersion, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	var versions []models.PresentationVersion
	err := s.DB.WithContext(ctx).Where("presentation_id = ?", id).Order("version").Find(&versions).Error
	return versions, err
}

// Preview ist die Kurzansicht einer Präsentation ohne Inhalt.
type Preview struct {
	Type          string     `json:"type"`
	ID            uint       `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Version       int        `json:"version"`
	ContributorID uint       `json:"contributor_id"`
	Projects      []string   `json:"projects"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
}

// Preview braucht nur das Leserecht und markiert die Präsentation nicht als benutzt.
func (s *AssetService) Preview(ctx context.Context, actor *authorization.Actor, id uint) (*Preview, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	pv := &Preview{
		Type:          p.AssetType(),
		ID:            p.ID,
		Title:         p.Title,
		Description:   p.Description,
		Version:       p.Version,
		ContributorID: p.ContributorID,
		Projects:      make([]string, 0, len(p.Projects)),
		UpdatedAt:     p.UpdatedAt,
		LastUsedAt:    p.LastUsedAt,
	}
	for _, pr := range p.Projects {
		pv.Projects = append(pv.Projects, pr.Title)
	}
	return pv, nil
}

// Download öffnet den Inhalt einer Version (0 = aktuelle Version).
func (s *AssetService) Download(ctx context.Context, actor *authorization.Actor, id uint, version int) (*Download, error) {
	p, err := s.loadPresentation(s.DB.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := authorize(authorization.ActionDownload, actor, p); err != nil {
		return nil, err
	}
	if version <= 0 {
		version = p.Version
	}
	var v models.PresentationVersion
	if err := s.DB.WithContext(ctx).Preload("ContentBlob").
		Where("presentation_id = ? AND version = ?", id, version).First(&v).Error; err != nil {
		return nil, notFound(err)
	}
	if v.ContentBlob == nil {
		return nil, ErrNotFound
	}
	d := &Download{
		Version:     v.Version,
		Filename:    v.OriginalFilename,
		ContentType: v.ContentType,
		Size:        v.ContentBlob.Size,
	}
	if v.ContentBlob.IsRemote() {
		d.URL = v.ContentBlob.URL
	} else {
		body, err := s.Blobs.Get(ctx, v.ContentBlob.StorageKey)
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		d.Body = body
	}
	s.touchLastUsed(ctx, p.ID)
	return d, nil
}

// storeBlob lädt den Inhalt vor der Transaktion in den Blob-Store.
func (s *AssetService) storeBlob(ctx context.Context, in ContentInput) (*models.ContentBlob, error) {
	blob := &models.ContentBlob{UUID: uuid.NewString(), ContentType: in.ContentType}
	if len(in.Data) == 0 {
		blob.URL = strings.TrimSpace(in.URL)
		return blob, nil
	}
	sum := md5.Sum(in.Data)
	blob.MD5 = hex.EncodeToString(sum[:])
	blob.Size = int64(len(in.Data))
	blob.StorageKey = "content_blobs/" + blob.UUID
	link, err := s.Blobs.Put(ctx, blob.StorageKey, in.Data, in.ContentType)
	if err != nil {
		return nil, fmt.Errorf("store content: %w", err)
	}
	blob.URL = link
	return blob, nil
}

// discardBlob entfernt einen hochgeladenen Inhalt, dessen Transaktion fehlgeschlagen ist.
func (s *AssetService) discardBlob(ctx context.Context, blob *models.ContentBlob) {
	if blob == nil || blob.StorageKey == "" {
		return
	}
	if err := s.Blobs.Delete(ctx, blob.StorageKey); err != nil {
		s.Logger.Warn("Konnte verwaisten Blob nicht löschen", zap.String("key", blob.StorageKey), zap.Error(err))
	}
}

func filenameOf(in ContentInput) string {
	if in.Filename != "" {
		return in.Filename
	}
	if in.URL != "" {
		parts := strings.Split(strings.TrimRight(in.URL, "/"), "/")
		return parts[len(parts)-1]
	}
	return ""
}

// Create legt eine Präsentation mit Version 1 an. Nur Projektmitglieder dürfen anlegen.
func (s *AssetService) Create(ctx context.Context, actor *authorization.Actor, in PresentationCreate, content ContentInput) (*UpdateResult, error) {
	if actor == nil {
		return nil, ErrAuthorizationDenied
	}
	var person models.Person
	if err := s.DB.WithContext(ctx).Preload("Projects").First(&person, actor.PersonID).Error; err != nil {
		return nil, notFound(err)
	}
	if !person.IsMember() {
		return nil, ErrNotMember
	}

	verr := &ValidationError{}
	if strings.TrimSpace(in.Title) == "" {
		verr.Add("title", "can't be blank")
	}
	if in.Sharing != nil {
		in.Sharing.Validate(verr)
	}
	projects, err := loadProjects(s.DB.WithContext(ctx), in.ProjectIDs, verr)
	if err != nil {
		return nil, err
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	if content.empty() {
		return nil, ErrInvalidContent
	}

	blob, err := s.storeBlob(ctx, content)
	if err != nil {
		return nil, err
	}

	result := &UpdateResult{}
	var outcome *SharingOutcome
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		policy := &models.Policy{SharingScope: models.ScopePrivate, AccessType: models.AccessNone}
		if err := tx.Create(policy).Error; err != nil {
			return err
		}
		if err := tx.Create(blob).Error; err != nil {
			return err
		}
		p := &models.Presentation{
			Title:            strings.TrimSpace(in.Title),
			Description:      in.Description,
			ContributorID:    actor.PersonID,
			PolicyID:         policy.ID,
			Version:          1,
			ContentBlobID:    blob.ID,
			ContentType:      content.ContentType,
			OriginalFilename: filenameOf(content),
		}
		if err := tx.Omit(clause.Associations).Create(p).Error; err != nil {
			return err
		}
		p.Policy, p.ContentBlob = policy, blob
		if p.Projects, err = replaceProjects(tx, p, projects); err != nil {
			return err
		}
		if err := tx.Create(&models.PresentationVersion{
			PresentationID:   p.ID,
			Version:          1,
			Title:            p.Title,
			Description:      p.Description,
			ContributorID:    p.ContributorID,
			ContentBlobID:    blob.ID,
			ContentType:      p.ContentType,
			OriginalFilename: p.OriginalFilename,
		}).Error; err != nil {
			return err
		}
		if err := s.reconcile(tx, actor, p, &in.CreatorIDs, &in.Attributions, &in.PublicationIDs, &in.AssayIDs); err != nil {
			return err
		}
		if outcome, err = s.Sharing.Apply(ctx, tx, actor, p, in.Sharing); err != nil {
			return err
		}
		result.Presentation = p
		return nil
	})
	if err != nil {
		s.discardBlob(ctx, blob)
		return nil, err
	}
	contentVersionsCreatedTotal.Inc()
	result.SharingDenied, result.PublishLog = outcome.Denied, outcome.Log
	s.Publish.Dispatch(ctx, outcome)
	s.Logger.Info("Präsentation angelegt", zap.Uint("presentation_id", result.Presentation.ID), zap.Uint("contributor_id", actor.PersonID))
	return result, nil
}

// reconcile gleicht Ersteller, Beziehungen und Assays ab. nil-Listen bleiben unverändert.
func (s *AssetService) reconcile(tx *gorm.DB, actor *authorization.Actor, p *models.Presentation,
	creators *[]uint, attributions *[]AssetRef, publications *[]uint, assays *[]uint) error {
	ref := refOf(p)
	if creators != nil {
		if err := ReconcileCreators(tx, ref, *creators); err != nil {
			return err
		}
	}
	if attributions != nil {
		if err := ReconcileRelationships(tx, ref, models.PredicateAttribution, *attributions); err != nil {
			return err
		}
	}
	if publications != nil {
		if err := ReconcileRelationships(tx, ref, models.PredicateRelatedToPublication, publicationRefs(*publications)); err != nil {
			return err
		}
	}
	if assays != nil {
		if err := reconcileAssays(tx, actor, assetAssayLinks(ref), *assays); err != nil {
			return err
		}
	}
	return nil
}

// UpdateMetadata ändert nur Felder der Allow-List; Inhalt und Version bleiben unverändert.
// Eine Freigabe-Änderung ohne Verwaltungsrecht wird als SharingDenied gemeldet.
func (s *AssetService) UpdateMetadata(ctx context.Context, actor *authorization.Actor, id uint, in PresentationUpdate) (*UpdateResult, error) {
	result := &UpdateResult{}
	var outcome *SharingOutcome
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.loadPresentation(tx, id)
		if err != nil {
			return err
		}
		if err := authorize(authorization.ActionEdit, actor, p); err != nil {
			return err
		}

		verr := &ValidationError{}
		if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
			verr.Add("title", "can't be blank")
		}
		if in.Sharing != nil {
			in.Sharing.Validate(verr)
		}
		var projects []models.Project
		if in.ProjectIDs != nil {
			if projects, err = loadProjects(tx, *in.ProjectIDs, verr); err != nil {
				return err
			}
		}
		if err := verr.orNil(); err != nil {
			return err
		}

		updates := map[string]any{}
		if in.Title != nil {
			p.Title = strings.TrimSpace(*in.Title)
			updates["title"] = p.Title
		}
		if in.Description != nil {
			p.Description = *in.Description
			updates["description"] = p.Description
		}
		now := s.Now()
		p.LastUsedAt = &now
		updates["last_used_at"] = now
		if err := tx.Model(p).Omit(clause.Associations).Updates(updates).Error; err != nil {
			return err
		}
		if in.ProjectIDs != nil {
			if p.Projects, err = replaceProjects(tx, p, projects); err != nil {
				return err
			}
		}
		if err := s.reconcile(tx, actor, p, in.CreatorIDs, in.Attributions, in.PublicationIDs, in.AssayIDs); err != nil {
			return err
		}
		if outcome, err = s.Sharing.Apply(ctx, tx, actor, p, in.Sharing); err != nil {
			return err
		}
		result.Presentation = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.SharingDenied, result.PublishLog = outcome.Denied, outcome.Log
	s.Publish.Dispatch(ctx, outcome)
	return result, nil
}

// SaveAsNewVersion speichert neuen Inhalt als Version max+1. Frühere Versionen bleiben unverändert.
func (s *AssetService) SaveAsNewVersion(ctx context.Context, actor *authorization.Actor, id uint, content ContentInput, comments string) (*models.Presentation, error) {
	p, err := s.loadPresentation(s.DB.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := authorize(authorization.ActionEdit, actor, p); err != nil {
		return nil, err
	}
	if content.empty() {
		return nil, ErrInvalidContent
	}
	blob, err := s.storeBlob(ctx, content)
	if err != nil {
		return nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(blob).Error; err != nil {
			return err
		}
		var latest int
		if err := tx.Model(&models.PresentationVersion{}).Where("presentation_id = ?", p.ID).
			Select("COALESCE(MAX(version), 0)").Scan(&latest).Error; err != nil {
			return err
		}
		v := &models.PresentationVersion{
			PresentationID:   p.ID,
			Version:          latest + 1,
			Title:            p.Title,
			Description:      p.Description,
			ContributorID:    actor.PersonID,
			ContentBlobID:    blob.ID,
			ContentType:      content.ContentType,
			OriginalFilename: filenameOf(content),
			RevisionComments: comments,
		}
		if err := tx.Create(v).Error; err != nil {
			return err
		}
		p.Version, p.ContentBlobID, p.ContentBlob = v.Version, blob.ID, blob
		p.ContentType, p.OriginalFilename = v.ContentType, v.OriginalFilename
		return tx.Model(p).Omit(clause.Associations).Updates(map[string]any{
			"version":           p.Version,
			"content_blob_id":   p.ContentBlobID,
			"content_type":      p.ContentType,
			"original_filename": p.OriginalFilename,
		}).Error
	})
	if err != nil {
		s.discardBlob(ctx, blob)
		return nil, err
	}
	contentVersionsCreatedTotal.Inc()
	s.Logger.Info("Neue Version gespeichert", zap.Uint("presentation_id", p.ID), zap.Int("version", p.Version))
	return p, nil
}

// Destroy löscht die Präsentation mit allen Versionen, Verknüpfungen und Inhalten.
func (s *AssetService) Destroy(ctx context.Context, actor *authorization.Actor, id uint) error {
	var keys []string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.loadPresentation(tx, id)
		if err != nil {
			return err
		}
		if err := authorizeDelete(actor, p); err != nil {
			return err
		}
		var blobIDs []uint
		if err := tx.Model(&models.PresentationVersion{}).Where("presentation_id = ?", p.ID).
			Pluck("content_blob_id", &blobIDs).Error; err != nil {
			return err
		}
		blobIDs = uniqueIDs(append(blobIDs, p.ContentBlobID))
		var blobs []models.ContentBlob
		if err := tx.Where("id IN ?", blobIDs).Find(&blobs).Error; err != nil {
			return err
		}
		for _, b := range blobs {
			if b.StorageKey != "" {
				keys = append(keys, b.StorageKey)
			}
		}

		if err := deleteAssetAssociations(tx, refOf(p)); err != nil {
			return err
		}
		if err := tx.Model(p).Association("Projects").Clear(); err != nil {
			return err
		}
		if err := tx.Where("presentation_id = ?", p.ID).Delete(&models.PresentationVersion{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Presentation{}, p.ID).Error; err != nil {
			return err
		}
		if len(blobIDs) > 0 {
			if err := tx.Where("id IN ?", blobIDs).Delete(&models.ContentBlob{}).Error; err != nil {
				return err
			}
		}
		return deletePolicy(tx, p.PolicyID)
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.Blobs.Delete(ctx, key); err != nil {
			s.Logger.Warn("Konnte Blob nach dem Löschen nicht entfernen", zap.String("key", key), zap.Error(err))
		}
	}
	s.Logger.Info("Präsentation gelöscht", zap.Uint("presentation_id", id))
	return nil
}
