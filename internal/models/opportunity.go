package models

import "time"

// Opportunity statuses.
const (
	OpportunityOpen = "open"
	OpportunityWon  = "won"
	OpportunityLost = "lost"
)

// OpportunityStage is one column of an organization's pipeline.
type OpportunityStage struct {
	TenantModel

	Name          string  `gorm:"not null" json:"name"`
	Order         int     `gorm:"column:position;not null;default:0" json:"order"`
	Probability   float64 `gorm:"not null;default:0" json:"probability"`
	IsClosedStage bool    `gorm:"default:false" json:"is_closed_stage"`
	IsWonStage    bool    `gorm:"default:false" json:"is_won_stage"`
	Color         string  `gorm:"size:7;default:'#3b82f6'" json:"color"`
}

// Opportunity is a potential deal moving through the pipeline.
type Opportunity struct {
	TenantModel

	Name            string     `gorm:"not null" json:"name"`
	Amount          float64    `gorm:"not null;default:0" json:"amount"`
	Currency        string     `gorm:"size:3;default:'USD'" json:"currency"`
	Probability     float64    `gorm:"not null;default:0" json:"probability"`
	ExpectedCloseAt *time.Time `json:"expected_close_date"`
	ActualCloseAt   *time.Time `json:"actual_close_date"`
	Status          string     `gorm:"type:varchar(8);not null;default:'open';index" json:"status"`
	Source          string     `json:"source"`
	Description     string     `gorm:"type:text" json:"description"`

	CompanyID *string           `gorm:"type:uuid;index" json:"company"`
	Company   *Company          `gorm:"foreignKey:CompanyID;constraint:OnDelete:SET NULL" json:"-"`
	ContactID *string           `gorm:"type:uuid;index" json:"contact"`
	Contact   *Contact          `gorm:"foreignKey:ContactID;constraint:OnDelete:SET NULL" json:"-"`
	StageID   *string           `gorm:"type:uuid;index" json:"stage"`
	Stage     *OpportunityStage `gorm:"foreignKey:StageID;constraint:OnDelete:SET NULL" json:"-"`
	OwnerID   *string           `gorm:"type:uuid;index" json:"owner"`
	Owner     *User             `gorm:"foreignKey:OwnerID;constraint:OnDelete:SET NULL" json:"-"`

	LineItems []OpportunityLineItem `gorm:"foreignKey:OpportunityID;constraint:OnDelete:CASCADE" json:"line_items,omitempty"`
}

// OpportunityLineItem is a priced product line on an opportunity.
type OpportunityLineItem struct {
	BaseModel

	OpportunityID   string  `gorm:"type:uuid;not null;index" json:"opportunity"`
	ProductName     string  `gorm:"not null" json:"product_name"`
	Description     string  `json:"description"`
	Quantity        float64 `gorm:"not null;default:1" json:"quantity"`
	UnitPrice       float64 `gorm:"not null;default:0" json:"unit_price"`
	DiscountPercent float64 `gorm:"not null;default:0" json:"discount_percent"`
	Total           float64 `gorm:"not null;default:0" json:"total"`
}

// ComputeTotal applies quantity, unit price and discount.
func (li *OpportunityLineItem) ComputeTotal() float64 {
	li.Total = li.Quantity * li.UnitPrice * (1 - li.DiscountPercent/100)
	return li.Total
}
