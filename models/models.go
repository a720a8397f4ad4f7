package models

// All listet alle Modelle in Migrationsreihenfolge.
func All() []any {
	return []any{
		&Person{}, &Project{}, &Policy{}, &Permission{},
		&ContentBlob{}, &Presentation{}, &PresentationVersion{},
		&Organism{}, &Strain{}, &Specimen{}, &Genotype{}, &Phenotype{},
		&Assay{}, &AssayAsset{}, &AssayOrganism{},
		&AssetsCreator{}, &Relationship{}, &ResourcePublishLog{},
	}
}
