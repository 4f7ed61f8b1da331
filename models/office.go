package models

import (
	"context"
	"time"

	"github.com/smartsetter/ssot_backend/utils"
)

type Office struct {
	ID         string  `gorm:"primaryKey;size:256" json:"id"`
	Name       string  `gorm:"size:256;index" json:"name"`
	OfficeID   string  `gorm:"size:128" json:"office_id"`
	Source     string  `gorm:"size:32;default:constellation" json:"source"`
	Address    *string `gorm:"size:256" json:"address"`
	City       *string `gorm:"size:128" json:"city"`
	State      *string `gorm:"size:64" json:"state"`
	Zipcode    *string `gorm:"size:16" json:"zipcode"`
	Phone      *string `gorm:"size:32" json:"phone"`
	Location   *Point  `json:"location"`
	Status     *string `gorm:"size:32" json:"status"`
	MLSID      *string `gorm:"size:32;index" json:"mls_id"`
	MLS        *MLS    `gorm:"foreignKey:MLSID" json:"mls,omitempty"`
	HubspotID  *string `gorm:"size:64" json:"hubspot_id"`
	ChurnScore *float64 `json:"churn_score"`
	RawData    JSONMap `json:"raw_data"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Office) TableName() string {
	return "offices"
}

// OfficeIDFromRealityRow derives the canonical office id {sourceID}__{MLSID}.
// An empty source id yields "" so the caller can skip the weak reference.
func OfficeIDFromRealityRow(row RealityRow, officeIDField string) string {
	return canonicalID(row, officeIDField)
}

// OfficeFromRealityRow maps a feed office row to a canonical Office. The row
// is rejected as malformed when the brand-fixed name equals the street
// address, which the feed emits for placeholder records.
func OfficeFromRealityRow(ctx context.Context, row RealityRow, brands []Brand) (*Office, error) {
	name := BrandFixedOfficeName(row.String("Office"), brands)
	common := commonRealityPropsFromRow(ctx, row, "Phone", "Zipcode")
	if name != "" && common.Address != nil && name == *common.Address {
		return nil, utils.ErrorMalformedRecord
	}

	office := &Office{
		ID:       OfficeIDFromRealityRow(row, "OfficeID"),
		Name:     name,
		OfficeID: row.String("OfficeID"),
		Source:   SourceReality,
		Address:  common.Address,
		City:     common.City,
		State:    common.State,
		Zipcode:  common.Zipcode,
		Phone:    common.Phone,
		Status:   common.Status,
		RawData:  JSONMap(row),
	}
	if common.MLS != nil {
		office.MLSID = &common.MLS.ID
	}
	return office, nil
}

func (o *Office) IsActive() bool {
	return o.Status != nil && *o.Status == StatusActive
}

// HubspotProperties builds the company property payload. The RESO pass-through
// fields ride along from RawData when the source populated them.
func (o *Office) HubspotProperties() map[string]any {
	props := map[string]any{
		"name":    o.Name,
		"address": derefOrEmpty(o.Address),
		"city":    derefOrEmpty(o.City),
		"state":   derefOrEmpty(o.State),
		"zip":     derefOrEmpty(o.Zipcode),
		"phone":   derefOrEmpty(o.Phone),
	}
	if o.MLS != nil {
		props["mls"] = o.MLS.CompanyHubspotValue()
	}
	for rawKey, propKey := range map[string]string{
		"MainOfficeKey":               "main_office_key",
		"MainOfficeName":              "main_office_name",
		"OfficeMlsId":                 "office_mls_id",
		"OriginatingSystemName":       "originating_system_name",
		"RawMlsModificationTimestamp": "raw_mls_modification_timestamp",
		"SourceSystemID":              "source_system_id",
		"SourceSystemName":            "source_system_name",
	} {
		if v, ok := o.RawData[rawKey]; ok && v != nil {
			if s, ok := v.(string); ok && s != "" {
				props[propKey] = s
			}
		}
	}
	return props
}

// ActiveAgentCount is the office size used by the office-size score.
func (o *Office) ActiveAgentCount(ctx context.Context) (int64, error) {
	db := dbOrNil()
	if db == nil || o.ID == "" {
		return 0, nil
	}
	var count int64
	err := db.WithContext(ctx).Model(&Agent{}).
		Where("office_id = ? AND status = ?", o.ID, StatusActive).
		Count(&count).Error
	return count, err
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
