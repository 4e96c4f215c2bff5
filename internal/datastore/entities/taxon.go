package entities

import "time"

// Taxon caches iNaturalist taxonomy for one species
type Taxon struct {
	TaxonID          int     `gorm:"primaryKey;autoIncrement:false"`
	ScientificName   string  `gorm:"type:varchar(255);uniqueIndex;not null"`
	CommonNameEN     *string `gorm:"column:common_name_en;type:varchar(255)"`
	CommonNameDE     *string `gorm:"column:common_name_de;type:varchar(255)"`
	WikipediaURL     *string `gorm:"type:varchar(1024)"`
	PhotoURL         *string `gorm:"type:varchar(1024)"`
	PhotoAttribution *string `gorm:"type:varchar(1024)"`
	FetchedAt        time.Time
}

// TableName returns the table name for GORM.
func (Taxon) TableName() string {
	return "inaturalist_taxa"
}
