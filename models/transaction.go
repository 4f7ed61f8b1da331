package models

import (
	"context"
	"time"
)

type Transaction struct {
	ID        string `gorm:"primaryKey;size:256" json:"id"`
	MLSNumber string `gorm:"size:128" json:"mls_number"`
	Source    string `gorm:"size:32;default:constellation" json:"source"`

	ListingAgentID    *string `gorm:"size:256;index" json:"listing_agent_id"`
	ListingAgent      *Agent  `gorm:"foreignKey:ListingAgentID;constraint:OnDelete:SET NULL" json:"listing_agent,omitempty"`
	ColistingAgentID  *string `gorm:"size:256;index" json:"colisting_agent_id"`
	ColistingAgent    *Agent  `gorm:"foreignKey:ColistingAgentID;constraint:OnDelete:SET NULL" json:"colisting_agent,omitempty"`
	SellingAgentID    *string `gorm:"size:256;index" json:"selling_agent_id"`
	SellingAgent      *Agent  `gorm:"foreignKey:SellingAgentID;constraint:OnDelete:SET NULL" json:"selling_agent,omitempty"`
	CosellingAgentID  *string `gorm:"size:256;index" json:"coselling_agent_id"`
	CosellingAgent    *Agent  `gorm:"foreignKey:CosellingAgentID;constraint:OnDelete:SET NULL" json:"coselling_agent,omitempty"`
	ListingOfficeID   *string `gorm:"size:256;index" json:"listing_office_id"`
	ListingOffice     *Office `gorm:"foreignKey:ListingOfficeID;constraint:OnDelete:SET NULL" json:"listing_office,omitempty"`
	ColistingOfficeID *string `gorm:"size:256" json:"colisting_office_id"`
	ColistingOffice   *Office `gorm:"foreignKey:ColistingOfficeID;constraint:OnDelete:SET NULL" json:"colisting_office,omitempty"`
	SellingOfficeID   *string `gorm:"size:256;index" json:"selling_office_id"`
	SellingOffice     *Office `gorm:"foreignKey:SellingOfficeID;constraint:OnDelete:SET NULL" json:"selling_office,omitempty"`
	CosellingOfficeID *string `gorm:"size:256" json:"coselling_office_id"`
	CosellingOffice   *Office `gorm:"foreignKey:CosellingOfficeID;constraint:OnDelete:SET NULL" json:"coselling_office,omitempty"`

	ListPrice  *int64 `json:"list_price"`
	ClosePrice *int64 `json:"close_price"`

	Address *string `gorm:"size:256" json:"address"`
	City    *string `gorm:"size:128" json:"city"`
	State   *string `gorm:"size:64" json:"state"`
	Zipcode *string `gorm:"size:16" json:"zipcode"`

	Status              *string    `gorm:"size:32" json:"status"`
	ClosedDate          *time.Time `gorm:"type:date;index" json:"closed_date"`
	ListingContractDate *time.Time `gorm:"type:date" json:"listing_contract_date"`

	MLSID   *string `gorm:"size:32;index" json:"mls_id"`
	MLS     *MLS    `gorm:"foreignKey:MLSID" json:"mls,omitempty"`
	RawData JSONMap `json:"raw_data"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// TransactionIDFromRealityRow derives the canonical transaction id
// {MLSNumber}__{MLSID}.
func TransactionIDFromRealityRow(row RealityRow) string {
	return canonicalID(row, "MLSNumber")
}

// TransactionFromRealityRow maps a feed transaction row. Participant ids are
// resolved against the store; a participant that is not yet present leaves
// the weak reference nil rather than failing the row.
func TransactionFromRealityRow(ctx context.Context, row RealityRow) (*Transaction, error) {
	common := commonRealityPropsFromRow(ctx, row, "", "Zipcode")

	txn := &Transaction{
		ID:                  TransactionIDFromRealityRow(row),
		MLSNumber:           row.String("MLSNumber"),
		Source:              SourceReality,
		ListPrice:           row.Int64("ListPrice"),
		ClosePrice:          row.Int64("ClosePrice"),
		Address:             common.Address,
		City:                common.City,
		State:               common.State,
		Zipcode:             common.Zipcode,
		Status:              common.Status,
		ClosedDate:          row.Date("ClosedDate"),
		ListingContractDate: row.Date("ListingContractDate"),
		RawData:             JSONMap(row),
	}
	if common.MLS != nil {
		txn.MLSID = &common.MLS.ID
	}

	txn.ListingAgentID = resolveParticipant[Agent](ctx, row, "LAID")
	txn.ColistingAgentID = resolveParticipant[Agent](ctx, row, "CoLAID")
	txn.SellingAgentID = resolveParticipant[Agent](ctx, row, "SAID")
	txn.CosellingAgentID = resolveParticipant[Agent](ctx, row, "CoSAID")
	txn.ListingOfficeID = resolveParticipant[Office](ctx, row, "LOID")
	txn.ColistingOfficeID = resolveParticipant[Office](ctx, row, "CoLOID")
	txn.SellingOfficeID = resolveParticipant[Office](ctx, row, "SOID")
	txn.CosellingOfficeID = resolveParticipant[Office](ctx, row, "CoSOID")
	return txn, nil
}

func resolveParticipant[T any](ctx context.Context, row RealityRow, idField string) *string {
	id := canonicalID(row, idField)
	if id == "" {
		return nil
	}
	if entity := GetByIDOrNone[T](ctx, id); entity == nil {
		return nil
	}
	return &id
}

// EffectiveDate is the date used for tenure bounds: the contract date when
// present, otherwise the closed date.
func (t *Transaction) EffectiveDate() *time.Time {
	if t.ListingContractDate != nil {
		return t.ListingContractDate
	}
	return t.ClosedDate
}

// EffectivePrice is the close price, the only price that counts toward
// production. Closed rows missing one contribute nothing.
func (t *Transaction) EffectivePrice() int64 {
	if t.ClosePrice != nil {
		return *t.ClosePrice
	}
	return 0
}

func (t *Transaction) IsSold() bool {
	return t.ClosedDate != nil
}
