package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"labshare/authorization"
	"labshare/models"
)

// GenotypeAttrs sind verschachtelte Attribute: ID+Destroy löscht, ID ändert, ohne ID wird angelegt.
type GenotypeAttrs struct {
	ID           uint   `json:"id"`
	Gene         string `json:"gene"`
	Modification string `json:"modification"`
	Destroy      bool   `json:"_destroy"`
}

// PhenotypeAttrs folgt derselben Semantik wie GenotypeAttrs.
type PhenotypeAttrs struct {
	ID          uint   `json:"id"`
	Description string `json:"description"`
	Destroy     bool   `json:"_destroy"`
}

// StrainCreate enthält die Daten eines neuen Stamms.
type StrainCreate struct {
	Title      string           `json:"title"`
	OrganismID *uint            `json:"organism_id"`
	ProjectIDs []uint           `json:"project_ids"`
	AssayIDs   []uint           `json:"assay_ids"`
	Genotypes  []GenotypeAttrs  `json:"genotypes"`
	Phenotypes []PhenotypeAttrs `json:"phenotypes"`
	Sharing    *SharingParams   `json:"sharing"`
}

// StrainUpdate: nil bzw. leere verschachtelte Listen lassen den Bestand unverändert.
type StrainUpdate struct {
	Title      *string          `json:"title"`
	OrganismID *uint            `json:"organism_id"`
	ProjectIDs *[]uint          `json:"project_ids"`
	AssayIDs   *[]uint          `json:"assay_ids"`
	Genotypes  []GenotypeAttrs  `json:"genotypes"`
	Phenotypes []PhenotypeAttrs `json:"phenotypes"`
	Sharing    *SharingParams   `json:"sharing"`
}

// StrainFilter schränkt List auf ein Projekt oder ein Assay ein.
type StrainFilter struct {
	ProjectID *uint
	AssayID   *uint
}

// StrainResult ist das Ergebnis von Create und Update.
type StrainResult struct {
	Strain        *models.Strain             `json:"strain"`
	SharingDenied bool                       `json:"sharing_denied,omitempty"`
	PublishLog    *models.ResourcePublishLog `json:"publish_log,omitempty"`
}

// StrainService verwaltet Laborstämme.
type StrainService struct {
	DB      *gorm.DB
	Sharing *SharingService
	Publish *PublishService
	Logger  *zap.Logger
}

// NewStrainService erstellt einen neuen StrainService.
func NewStrainService(db *gorm.DB, sharing *SharingService, publish *PublishService, logger *zap.Logger) *StrainService {
	return &StrainService{DB: db, Sharing: sharing, Publish: publish, Logger: logger}
}

func (s *StrainService) loadStrain(db *gorm.DB, id uint) (*models.Strain, error) {
	var st models.Strain
	err := preloadAsset(db).Preload("Organism").Preload("Specimens").
		Preload("Genotypes", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Phenotypes", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&st, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &st, nil
}

// Get lädt einen Stamm, wenn der Akteur ihn sehen darf.
func (s *StrainService) Get(ctx context.Context, actor *authorization.Actor, id uint) (*models.Strain, error) {
	st, err := s.loadStrain(s.DB.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := authorize(authorization.ActionView, actor, st); err != nil {
		return nil, err
	}
	return st, nil
}

// List liefert die sichtbaren Stämme, optional gefiltert nach Projekt oder Assay.
func (s *StrainService) List(ctx context.Context, actor *authorization.Actor, f StrainFilter) ([]*models.Strain, error) {
	q := preloadAsset(s.DB.WithContext(ctx)).Preload("Organism").Model(&models.Strain{})
	if f.ProjectID != nil {
		q = q.Where("strains.id IN (?)",
			s.DB.WithContext(ctx).Table("strain_projects").Select("strain_id").Where("project_id = ?", *f.ProjectID))
	}
	if f.AssayID != nil {
		q = q.Where("strains.id IN (?)",
			s.DB.WithContext(ctx).Model(&models.AssayOrganism{}).Select("strain_id").Where("assay_id = ?", *f.AssayID))
	}
	var all []*models.Strain
	if err := q.Order("strains.title, strains.id").Find(&all).Error; err != nil {
		return nil, err
	}
	return authorization.Filter(authorization.ActionView, actor, all), nil
}

func validateOrganism(tx *gorm.DB, id *uint, verr *ValidationError) error {
	if id == nil {
		return nil
	}
	var n int64
	if err := tx.Model(&models.Organism{}).Where("id = ?", *id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		verr.Add("organism_id", fmt.Sprintf("unknown organism %d", *id))
	}
	return nil
}

// validateNested prüft die verschachtelten Attribute gegen den Bestand, bevor geschrieben wird.
func validateNested(st *models.Strain, genotypes []GenotypeAttrs, phenotypes []PhenotypeAttrs, verr *ValidationError) {
	known := make(map[uint]bool, len(st.Genotypes))
	for _, g := range st.Genotypes {
		known[g.ID] = true
	}
	for _, g := range genotypes {
		switch {
		case g.ID != 0 && !known[g.ID]:
			verr.Add("genotypes", fmt.Sprintf("unknown genotype %d", g.ID))
		case !g.Destroy && strings.TrimSpace(g.Gene) == "":
			verr.Add("genotypes", "gene can't be blank")
		}
	}
	known = make(map[uint]bool, len(st.Phenotypes))
	for _, p := range st.Phenotypes {
		known[p.ID] = true
	}
	for _, p := range phenotypes {
		switch {
		case p.ID != 0 && !known[p.ID]:
			verr.Add("phenotypes", fmt.Sprintf("unknown phenotype %d", p.ID))
		case !p.Destroy && strings.TrimSpace(p.Description) == "":
			verr.Add("phenotypes", "description can't be blank")
		}
	}
}

// applyNested schreibt die verschachtelten Attribute. Nicht genannte Einträge bleiben erhalten.
func applyNested(tx *gorm.DB, strainID uint, genotypes []GenotypeAttrs, phenotypes []PhenotypeAttrs) error {
	for _, g := range genotypes {
		var err error
		switch {
		case g.ID != 0 && g.Destroy:
			err = tx.Where("id = ? AND strain_id = ?", g.ID, strainID).Delete(&models.Genotype{}).Error
		case g.ID != 0:
			err = tx.Model(&models.Genotype{}).Where("id = ? AND strain_id = ?", g.ID, strainID).
				Updates(map[string]any{"gene": g.Gene, "modification": g.Modification}).Error
		case !g.Destroy:
			err = tx.Create(&models.Genotype{StrainID: strainID, Gene: g.Gene, Modification: g.Modification}).Error
		}
		if err != nil {
			return err
		}
	}
	for _, p := range phenotypes {
		var err error
		switch {
		case p.ID != 0 && p.Destroy:
			err = tx.Where("id = ? AND strain_id = ?", p.ID, strainID).Delete(&models.Phenotype{}).Error
		case p.ID != 0:
			err = tx.Model(&models.Phenotype{}).Where("id = ? AND strain_id = ?", p.ID, strainID).
				Update("description", p.Description).Error
		case !p.Destroy:
			err = tx.Create(&models.Phenotype{StrainID: strainID, Description: p.Description}).Error
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Create legt einen Stamm an. Nur Projektmitglieder dürfen anlegen.
func (s *StrainService) Create(ctx context.Context, actor *authorization.Actor, in StrainCreate) (*StrainResult, error) {
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

	result := &StrainResult{}
	var outcome *SharingOutcome
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		verr := &ValidationError{}
		if strings.TrimSpace(in.Title) == "" {
			verr.Add("title", "can't be blank")
		}
		if in.Sharing != nil {
			in.Sharing.Validate(verr)
		}
		if err := validateOrganism(tx, in.OrganismID, verr); err != nil {
			return err
		}
		projects, err := loadProjects(tx, in.ProjectIDs, verr)
		if err != nil {
			return err
		}
		validateNested(&models.Strain{}, in.Genotypes, in.Phenotypes, verr)
		if err := verr.orNil(); err != nil {
			return err
		}

		policy := &models.Policy{SharingScope: models.ScopePrivate, AccessType: models.AccessNone}
		if err := tx.Create(policy).Error; err != nil {
			return err
		}
		st := &models.Strain{
			Title:         strings.TrimSpace(in.Title),
			OrganismID:    in.OrganismID,
			ContributorID: actor.PersonID,
			PolicyID:      policy.ID,
		}
		if err := tx.Omit(clause.Associations).Create(st).Error; err != nil {
			return err
		}
		st.Policy = policy
		if st.Projects, err = replaceProjects(tx, st, projects); err != nil {
			return err
		}
		if err := applyNested(tx, st.ID, in.Genotypes, in.Phenotypes); err != nil {
			return err
		}
		if err := reconcileAssays(tx, actor, strainAssayLinks(st.ID), in.AssayIDs); err != nil {
			return err
		}
		if outcome, err = s.Sharing.Apply(ctx, tx, actor, st, in.Sharing); err != nil {
			return err
		}
		result.Strain = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.SharingDenied, result.PublishLog = outcome.Denied, outcome.Log
	s.Publish.Dispatch(ctx, outcome)
	return s.reloadResult(ctx, result)
}

// Update ändert einen bearbeitbaren Stamm.
func (s *StrainService) Update(ctx context.Context, actor *authorization.Actor, id uint, in StrainUpdate) (*StrainResult, error) {
	result := &StrainResult{}
	var outcome *SharingOutcome
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := s.loadStrain(tx, id)
		if err != nil {
			return err
		}
		if err := authorize(authorization.ActionEdit, actor, st); err != nil {
			return err
		}

		verr := &ValidationError{}
		if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
			verr.Add("title", "can't be blank")
		}
		if in.Sharing != nil {
			in.Sharing.Validate(verr)
		}
		if err := validateOrganism(tx, in.OrganismID, verr); err != nil {
			return err
		}
		var projects []models.Project
		if in.ProjectIDs != nil {
			if projects, err = loadProjects(tx, *in.ProjectIDs, verr); err != nil {
				return err
			}
		}
		validateNested(st, in.Genotypes, in.Phenotypes, verr)
		if err := verr.orNil(); err != nil {
			return err
		}

		updates := map[string]any{}
		if in.Title != nil {
			st.Title = strings.TrimSpace(*in.Title)
			updates["title"] = st.Title
		}
		if in.OrganismID != nil {
			st.OrganismID = in.OrganismID
			updates["organism_id"] = *in.OrganismID
		}
		if len(updates) > 0 {
			if err := tx.Model(st).Omit(clause.Associations).Updates(updates).Error; err != nil {
				return err
			}
		}
		if in.ProjectIDs != nil {
			if st.Projects, err = replaceProjects(tx, st, projects); err != nil {
				return err
			}
		}
		if err := applyNested(tx, st.ID, in.Genotypes, in.Phenotypes); err != nil {
			return err
		}
		if in.AssayIDs != nil {
			if err := reconcileAssays(tx, actor, strainAssayLinks(st.ID), *in.AssayIDs); err != nil {
				return err
			}
		}
		if outcome, err = s.Sharing.Apply(ctx, tx, actor, st, in.Sharing); err != nil {
			return err
		}
		result.Strain = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.SharingDenied, result.PublishLog = outcome.Denied, outcome.Log
	s.Publish.Dispatch(ctx, outcome)
	return s.reloadResult(ctx, result)
}

// reloadResult lädt den Stamm nach dem Commit mit allen verschachtelten Einträgen.
func (s *StrainService) reloadResult(ctx context.Context, result *StrainResult) (*StrainResult, error) {
	st, err := s.loadStrain(s.DB.WithContext(ctx), result.Strain.ID)
	if err != nil {
		return nil, err
	}
	result.Strain = st
	return result, nil
}

// Destroy löscht einen Stamm ohne abhängige Proben samt Genotypen, Phänotypen und Verknüpfungen.
func (s *StrainService) Destroy(ctx context.Context, actor *authorization.Actor, id uint) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := s.loadStrain(tx, id)
		if err != nil {
			return err
		}
		if err := authorizeDelete(actor, st); err != nil {
			return err
		}
		if err := tx.Where("strain_id = ?", st.ID).Delete(&models.AssayOrganism{}).Error; err != nil {
			return err
		}
		if err := deleteAssetAssociations(tx, refOf(st)); err != nil {
			return err
		}
		if err := tx.Model(st).Association("Projects").Clear(); err != nil {
			return err
		}
		if err := tx.Where("strain_id = ?", st.ID).Delete(&models.Genotype{}).Error; err != nil {
			return err
		}
		if err := tx.Where("strain_id = ?", st.ID).Delete(&models.Phenotype{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Strain{}, st.ID).Error; err != nil {
			return err
		}
		return deletePolicy(tx, st.PolicyID)
	})
	if err != nil {
		return err
	}
	s.Logger.Info("Stamm gelöscht", zap.Uint("strain_id", id))
	return nil
}
