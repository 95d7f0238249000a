package domain

import "time"

// MaxDR is the highest Domain Rating a site can have.
const MaxDR = 100

// DRBand names one of the three fixed Domain Rating ranges.
type DRBand string

const (
	DRBandLow  DRBand = "low"
	DRBandMid  DRBand = "mid"
	DRBandHigh DRBand = "high"
)

// DRBands lists the bands in ascending order.
var DRBands = []DRBand{DRBandLow, DRBandMid, DRBandHigh}

// Bounds returns the band's [low, high) range. The high band also includes MaxDR.
func (b DRBand) Bounds() (low, high int) {
	switch b {
	case DRBandLow:
		return 0, 30
	case DRBandMid:
		return 30, 60
	default:
		return 60, MaxDR
	}
}

// Contains reports whether dr falls inside the band.
func (b DRBand) Contains(dr int) bool {
	low, high := b.Bounds()
	if high == MaxDR {
		return dr >= low && dr <= high
	}
	return dr >= low && dr < high
}

// BandOf returns the band a DR score belongs to.
func BandOf(dr int) DRBand {
	for _, b := range DRBands {
		if b.Contains(dr) {
			return b
		}
	}
	if dr < 0 {
		return DRBandLow
	}
	return DRBandHigh
}

// BacklinkRequirement is one row of an uploaded project: a target URL with
// keywords and the number of placements needed in each DR band.
type BacklinkRequirement struct {
	ID                string      `gorm:"type:text;primaryKey" json:"id"`
	ProjectID         string      `gorm:"type:text;not null;index:idx_requirements_project" json:"project_id"`
	TargetURL         string      `gorm:"type:text;not null" json:"target_url"`
	PrimaryKeyword    string      `gorm:"type:text;not null" json:"primary_keyword"`
	SecondaryKeywords StringArray `gorm:"type:text" json:"secondary_keywords"`
	Industry          string      `gorm:"type:text" json:"industry"`
	LowDR             int         `gorm:"not null;default:0" json:"low_dr"`
	MidDR             int         `gorm:"not null;default:0" json:"mid_dr"`
	HighDR            int         `gorm:"not null;default:0" json:"high_dr"`
	CreatedAt         time.Time   `json:"created_at"`
}

// TableName returns the database table name for BacklinkRequirement.
func (BacklinkRequirement) TableName() string {
	return "backlink_requirements"
}

// Count returns how many placements the requirement needs in band b.
func (r BacklinkRequirement) Count(b DRBand) int {
	switch b {
	case DRBandLow:
		return r.LowDR
	case DRBandMid:
		return r.MidDR
	case DRBandHigh:
		return r.HighDR
	}
	return 0
}

// TotalSlots is the number of placement assignments one fan-out produces.
func (r BacklinkRequirement) TotalSlots() int {
	return r.LowDR + r.MidDR + r.HighDR
}
