package models

import "time"

// Assay ist ein Experiment, dem Assets und Stämme zugeordnet werden.
type Assay struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title         string  `json:"title" gorm:"not null"`
	ContributorID uint    `json:"contributor_id" gorm:"not null;index"`
	PolicyID      uint    `json:"policy_id" gorm:"not null"`
	Policy        *Policy `json:"policy,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (Assay) TableName() string {
	return "assays"
}

func (a *Assay) Owner() uint            { return a.ContributorID }
func (a *Assay) SharingPolicy() *Policy { return a.Policy }

// AssayAsset verknüpft ein Assay mit einem Asset (z.B. Presentation).
type AssayAsset struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	AssayID   uint   `json:"assay_id" gorm:"not null;uniqueIndex:idx_assay_asset,priority:1"`
	AssetType string `json:"asset_type" gorm:"size:64;not null;uniqueIndex:idx_assay_asset,priority:2"`
	AssetID   uint   `json:"asset_id" gorm:"not null;uniqueIndex:idx_assay_asset,priority:3"`
}

// TableName gibt explizit den Tabellennamen an.
func (AssayAsset) TableName() string {
	return "assay_assets"
}

// AssayOrganism verknüpft ein Assay mit einem Stamm.
type AssayOrganism struct {
	ID       uint `json:"id" gorm:"primaryKey"`
	AssayID  uint `json:"assay_id" gorm:"not null;uniqueIndex:idx_assay_organism,priority:1"`
	StrainID uint `json:"strain_id" gorm:"not null;uniqueIndex:idx_assay_organism,priority:2"`
}

// TableName gibt explizit den Tabellennamen an.
func (AssayOrganism) TableName() string {
	return "assay_organisms"
}
