package models

import "time"

// AssetTypeStrain ist der polymorphe Typname für Stämme.
const AssetTypeStrain = "Strain"

// Organism ist der Organismus, zu dem ein Stamm gehört.
type Organism struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	Title string `json:"title" gorm:"uniqueIndex;not null"`
}

// TableName gibt explizit den Tabellennamen an.
func (Organism) TableName() string {
	return "organisms"
}

// Strain ist ein Laborstamm mit Genotypen, Phänotypen und abhängigen Proben.
type Strain struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title string `json:"title" gorm:"not null"`

	OrganismID *uint     `json:"organism_id,omitempty"`
	Organism   *Organism `json:"organism,omitempty"`

	ContributorID uint    `json:"contributor_id" gorm:"not null;index"`
	PolicyID      uint    `json:"policy_id" gorm:"not null"`
	Policy        *Policy `json:"policy,omitempty"`

	Projects   []Project   `json:"projects,omitempty" gorm:"many2many:strain_projects;"`
	Specimens  []Specimen  `json:"specimens,omitempty"`
	Genotypes  []Genotype  `json:"genotypes,omitempty"`
	Phenotypes []Phenotype `json:"phenotypes,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (Strain) TableName() string {
	return "strains"
}

func (s *Strain) Owner() uint            { return s.ContributorID }
func (s *Strain) SharingPolicy() *Policy { return s.Policy }
func (s *Strain) AssetType() string      { return AssetTypeStrain }
func (s *Strain) AssetID() uint          { return s.ID }
func (s *Strain) AssetTitle() string     { return s.Title }
func (s *Strain) ProjectList() []Project { return s.Projects }

// HasDependents ist true, solange Proben auf den Stamm verweisen.
// Setzt voraus, dass Specimens vorgeladen wurden.
func (s *Strain) HasDependents() bool {
	return len(s.Specimens) > 0
}

// Specimen ist eine Probe, die aus einem Stamm gewonnen wurde.
type Specimen struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Title         string `json:"title" gorm:"not null"`
	StrainID      uint   `json:"strain_id" gorm:"not null;index"`
	ContributorID uint   `json:"contributor_id"`
}

// TableName gibt explizit den Tabellennamen an.
func (Specimen) TableName() string {
	return "specimens"
}

// Genotype beschreibt eine genetische Modifikation eines Stamms.
type Genotype struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	StrainID     uint   `json:"strain_id" gorm:"not null;index"`
	Gene         string `json:"gene" gorm:"not null"`
	Modification string `json:"modification,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (Genotype) TableName() string {
	return "genotypes"
}

// Phenotype beschreibt ein beobachtbares Merkmal eines Stamms.
type Phenotype struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	StrainID    uint   `json:"strain_id" gorm:"not null;index"`
	Description string `json:"description" gorm:"type:text;not null"`
}

// TableName gibt explizit den Tabellennamen an.
func (Phenotype) TableName() string {
	return "phenotypes"
}
