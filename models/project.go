package models

import "time"

// Project gruppiert Mitglieder und optional Gatekeeper, die Veröffentlichungen freigeben.
type Project struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title string `json:"title" gorm:"not null"`

	Members     []Person `json:"members,omitempty" gorm:"many2many:project_members;"`
	Gatekeepers []Person `json:"gatekeepers,omitempty" gorm:"many2many:project_gatekeepers;"`
}

// TableName gibt explizit den Tabellennamen an.
func (Project) TableName() string {
	return "projects"
}

// IsGatekept ist true, wenn Sichtbarkeitsänderungen eine Freigabe benötigen.
func (p *Project) IsGatekept() bool {
	return len(p.Gatekeepers) > 0
}

// HasGatekeeper prüft, ob die Person Gatekeeper dieses Projekts ist.
func (p *Project) HasGatekeeper(personID uint) bool {
	for _, g := range p.Gatekeepers {
		if g.ID == personID {
			return true
		}
	}
	return false
}
