package models

import (
	"context"
	"strings"
	"time"

	"github.com/smartsetter/ssot_backend/config"
	"github.com/smartsetter/ssot_backend/utils"
)

// Zipcode is a reference row used to backfill city and state on entities
// that only carry a postal code.
type Zipcode struct {
	Zip       string    `gorm:"primaryKey;size:16" json:"zip"`
	City      string    `gorm:"size:128" json:"city"`
	State     string    `gorm:"size:64" json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Zipcode) TableName() string {
	return "zipcodes"
}

func GetZipcode(ctx context.Context, zip string) *Zipcode {
	zip = strings.TrimSpace(zip)
	db := dbOrNil()
	if db == nil || zip == "" {
		return nil
	}
	var zipcode Zipcode
	if err := db.WithContext(ctx).Where("zip = ?", zip).Take(&zipcode).Error; err != nil {
		return nil
	}
	return &zipcode
}

// ImportZipcodesFromStorage loads the Zipcodes.csv reference sheet.
func ImportZipcodesFromStorage(ctx context.Context) (int, error) {
	logger := config.GetLogger()
	records, err := utils.DownloadCSVRecords(ctx, "Zipcodes.csv")
	if err != nil {
		return 0, err
	}

	zipcodes := make([]*Zipcode, 0, len(records))
	for _, record := range records {
		zip := strings.TrimSpace(record["zip"])
		if zip == "" {
			continue
		}
		zipcodes = append(zipcodes, &Zipcode{
			Zip:   zip,
			City:  utils.TitleCase(record["city"]),
			State: strings.TrimSpace(record["state_id"]),
		})
	}

	created, err := BulkCreateWithFallback(ctx, zipcodes)
	if err != nil {
		config.LogError(logger, "models", "ImportZipcodesFromStorage", "bulk create", nil, err)
		return created, err
	}
	return created, nil
}
