package models

import (
	"context"
	"time"

	"github.com/smartsetter/ssot_backend/config"
	"github.com/smartsetter/ssot_backend/utils"
)

// ChangeWebhook is a registered upstream change feed. LastTransactionNumber
// deduplicates notifications: the upstream replays sequence numbers after
// reconnects and only strictly increasing numbers are processed.
type ChangeWebhook struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	ExternalID            string    `gorm:"size:128;uniqueIndex" json:"external_id"`
	BaseID                string    `gorm:"size:128" json:"base_id"`
	MacSecretRef          string    `gorm:"size:256" json:"mac_secret_ref"`
	LastTransactionNumber *int      `json:"last_transaction_number"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func (ChangeWebhook) TableName() string {
	return "change_webhooks"
}

type ChangeNotification struct {
	WebhookExternalID string `json:"webhook_external_id" binding:"required"`
	BaseID            string `json:"base_id"`
	TransactionNumber int    `json:"transaction_number" binding:"required"`
}

func GetChangeWebhookByExternalID(ctx context.Context, externalID string) (*ChangeWebhook, error) {
	db := dbOrNil()
	if db == nil {
		return nil, utils.ErrorRecordNotFound
	}
	var webhook ChangeWebhook
	err := db.WithContext(ctx).Where("external_id = ?", externalID).First(&webhook).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &webhook, nil
}

func CreateChangeWebhook(ctx context.Context, webhook *ChangeWebhook) error {
	return dbOrNil().WithContext(ctx).Create(webhook).Error
}

func DeleteChangeWebhook(ctx context.Context, externalID string) error {
	return dbOrNil().WithContext(ctx).
		Where("external_id = ?", externalID).Delete(&ChangeWebhook{}).Error
}

func ListChangeWebhooks(ctx context.Context) ([]ChangeWebhook, error) {
	var webhooks []ChangeWebhook
	err := dbOrNil().WithContext(ctx).Order("id").Find(&webhooks).Error
	return webhooks, err
}

// ProcessChangeNotification advances the webhook cursor and reports whether
// the notification is new. Replayed or out-of-order numbers are dropped.
func ProcessChangeNotification(ctx context.Context, notification ChangeNotification) (bool, error) {
	logger := config.GetLogger()
	webhook, err := GetChangeWebhookByExternalID(ctx, notification.WebhookExternalID)
	if err != nil {
		return false, err
	}
	if webhook.LastTransactionNumber != nil &&
		notification.TransactionNumber <= *webhook.LastTransactionNumber {
		logger.WithField("webhook", webhook.ExternalID).
			WithField("transaction_number", notification.TransactionNumber).
			Info("skipping replayed change notification")
		return false, nil
	}

	webhook.LastTransactionNumber = &notification.TransactionNumber
	if err := dbOrNil().WithContext(ctx).Model(webhook).
		Update("last_transaction_number", notification.TransactionNumber).Error; err != nil {
		config.LogError(logger, "models", "ProcessChangeNotification", "advance cursor",
			map[string]any{"webhook": webhook.ExternalID}, err)
		return false, err
	}
	return true, nil
}
