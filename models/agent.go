package models

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smartsetter/ssot_backend/utils"
)

const (
	RoleAgent  = "agent"
	RoleBroker = "broker"
	RoleOther  = "other"
)

// Verified phone provenance values, least to most trusted is not implied;
// the last verifier to run wins.
const (
	PhoneSourceSheet     = "sheet"
	PhoneSourceValidator = "phone_validator"
	PhoneSourceClay      = "clay"
)

type Agent struct {
	ID       string  `gorm:"primaryKey;size:256" json:"id"`
	Name     string  `gorm:"size:256;index" json:"name"`
	AgentID  string  `gorm:"size:128" json:"agent_id"`
	Source   string  `gorm:"size:32;default:constellation" json:"source"`
	Email    *string `gorm:"size:256" json:"email"`
	Address  *string `gorm:"size:256" json:"address"`
	City     *string `gorm:"size:128" json:"city"`
	State    *string `gorm:"size:64" json:"state"`
	Zipcode  *string `gorm:"size:16" json:"zipcode"`
	Phone    *string `gorm:"size:32" json:"phone"`
	Location *Point  `json:"location"`
	Status   *string `gorm:"size:32;index" json:"status"`
	MLSID    *string `gorm:"size:32;index" json:"mls_id"`
	MLS      *MLS    `gorm:"foreignKey:MLSID" json:"mls,omitempty"`

	OfficeID   *string `gorm:"size:256;index" json:"office_id"`
	Office     *Office `gorm:"foreignKey:OfficeID;constraint:OnDelete:SET NULL" json:"office,omitempty"`
	OfficeName *string `gorm:"size:256" json:"office_name"`

	BrandID *uint  `json:"brand_id"`
	Brand   *Brand `gorm:"foreignKey:BrandID" json:"brand,omitempty"`

	HubspotID           *string `gorm:"size:64" json:"hubspot_id"`
	VerifiedPhone       *string `gorm:"size:32" json:"verified_phone"`
	VerifiedPhoneSource *string `gorm:"size:32" json:"verified_phone_source"`
	YearsInBusiness     *int    `json:"years_in_business"`
	RawData             JSONMap `json:"raw_data"`

	// Cached statistics, recomputed by UpdateAgentCachedStats. The rolling
	// 12-month figures carry fractional co-attribution weights.
	ListingTransactionsCount decimal.Decimal `gorm:"type:numeric(12,2)" json:"listing_transactions_count"`
	SellingTransactionsCount decimal.Decimal `gorm:"type:numeric(12,2)" json:"selling_transactions_count"`
	TotalTransactionsCount   decimal.Decimal `gorm:"type:numeric(12,2)" json:"total_transactions_count"`
	ListingProduction        decimal.Decimal `gorm:"type:numeric(16,2)" json:"listing_production"`
	SellingProduction        decimal.Decimal `gorm:"type:numeric(16,2)" json:"selling_production"`
	TotalProduction          decimal.Decimal `gorm:"type:numeric(16,2)" json:"total_production"`

	AllTimeListingTransactionsCount int64 `json:"all_time_listing_transactions_count"`
	AllTimeSellingTransactionsCount int64 `json:"all_time_selling_transactions_count"`
	AllTimeListingProduction        int64 `json:"all_time_listing_production"`
	AllTimeSellingProduction        int64 `json:"all_time_selling_production"`

	TenureStartDate    *time.Time `gorm:"type:date" json:"tenure_start_date"`
	TenureEndDate      *time.Time `gorm:"type:date" json:"tenure_end_date"`
	TenureDays         *int       `json:"tenure_days"`
	MostTransactedCity *string    `gorm:"size:128" json:"most_transacted_city"`
	LastActivityDate   *time.Time `gorm:"type:date" json:"last_activity_date"`
	LikelihoodToMove   *float64   `json:"likelihood_to_move"`
	Role               *string    `gorm:"size:16" json:"role"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Agent) TableName() string {
	return "agents"
}

// AgentIDFromRealityRow derives the canonical agent id {sourceID}__{MLSID}.
func AgentIDFromRealityRow(row RealityRow, idField string) string {
	return canonicalID(row, idField)
}

// AgentFromRealityRow maps a feed agent row to a canonical Agent. Names are
// title-cased and emails lowercased at the boundary so the store never holds
// source casing.
func AgentFromRealityRow(ctx context.Context, row RealityRow, brands []Brand) (*Agent, error) {
	common := commonRealityPropsFromRow(ctx, row, "AgentPhone", "Zipcode")

	agent := &Agent{
		ID:      AgentIDFromRealityRow(row, "AgentID"),
		Name:    utils.TitleCase(row.String("AgentName")),
		AgentID: row.String("AgentID"),
		Source:  SourceReality,
		Address: common.Address,
		City:    common.City,
		State:   common.State,
		Zipcode: common.Zipcode,
		Phone:   common.Phone,
		Status:  common.Status,
		RawData: JSONMap(row),
	}
	if email := strings.ToLower(strings.TrimSpace(row.String("Email"))); email != "" && utils.IsValidEmail(email) {
		agent.Email = &email
	}
	if common.MLS != nil {
		agent.MLSID = &common.MLS.ID
	}
	if officeName := BrandFixedOfficeName(row.String("OfficeName"), brands); officeName != "" {
		agent.OfficeName = &officeName
	}
	if officeID := OfficeIDFromRealityRow(row, "OfficeID"); officeID != "" {
		if office := GetByIDOrNone[Office](ctx, officeID); office != nil {
			agent.OfficeID = &office.ID
		}
	}
	if yib := row.Int("YIB"); yib != nil && *yib > 0 {
		agent.YearsInBusiness = yib
	}
	return agent, nil
}

func (a *Agent) IsActive() bool {
	return a.Status != nil && *a.Status == StatusActive
}

// BestPhone prefers the verified number over the feed number.
func (a *Agent) BestPhone() *string {
	if a.VerifiedPhone != nil && *a.VerifiedPhone != "" {
		return a.VerifiedPhone
	}
	return a.Phone
}

// AssignRole classifies the agent. Broker keys on the linked office override
// everything; any recorded transaction forces "agent"; otherwise the source
// member type and security class are matched against the staff pattern lists.
func (a *Agent) AssignRole(office *Office) {
	if office != nil {
		for _, key := range []string{"OfficeBrokerKey", "OfficeManagerKey", "OfficeBrokerMlsId"} {
			if v, ok := office.RawData[key]; ok {
				if s, ok := v.(string); ok && s != "" && s == a.ID {
					a.Role = stringPtr(RoleBroker)
					return
				}
			}
		}
	}
	if a.TotalTransactionsCount.IsPositive() ||
		a.AllTimeListingTransactionsCount > 0 || a.AllTimeSellingTransactionsCount > 0 {
		a.Role = stringPtr(RoleAgent)
		return
	}
	if matchesRolePatterns(a.RawData, "MemberType", memberTypePatterns) ||
		matchesRolePatterns(a.RawData, "MemberMlsSecurityClass", securityClassPatterns) {
		a.Role = stringPtr(RoleOther)
		return
	}
	a.Role = stringPtr(RoleAgent)
}

func matchesRolePatterns(raw JSONMap, key string, patterns []string) bool {
	v, ok := raw[key]
	if !ok || v == nil {
		return false
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	normalized := strings.ToLower(strings.TrimSpace(s))
	if normalized == "" {
		return false
	}
	for _, pattern := range patterns {
		if strings.Contains(pattern, normalized) || pattern == normalized {
			return true
		}
	}
	return false
}

// SalesVolumeScore maps 12-month total production to [0, 10]; low producers
// score high.
func (a *Agent) SalesVolumeScore() float64 {
	production, _ := a.TotalProduction.Float64()
	if production <= 0 {
		return 10
	}
	if production > 2_000_000 {
		return 0
	}
	return (2_000_000 - production) / 200_000
}

// TransactionCountScore maps the 12-month transaction count to [0, 10]. Both
// extremes score 10; only the mid range discriminates.
func (a *Agent) TransactionCountScore() float64 {
	count, _ := a.TotalTransactionsCount.Float64()
	if count <= 0 || count > 10 {
		return 10
	}
	return 10 - count
}

// TenureScore rewards shorter tenures: 35 points with no tenure on record,
// minus 5 per year, zero past seven years.
func (a *Agent) TenureScore() float64 {
	if a.TenureDays == nil {
		return 35
	}
	years := float64(*a.TenureDays) / 365
	if years > 7 {
		return 0
	}
	return (7 - years) * 5
}

// OfficeSizeScore scales the active head count of the agent's office, capped
// at 15.
func OfficeSizeScore(activeAgents int64) float64 {
	score := float64(activeAgents) / 5
	if score > 15 {
		return 15
	}
	return score
}

// ListingRatio is the listing share of 12-month production, or nil when the
// agent has no transactions in the window. The denominator never drops below
// 1, so zero-production agents with activity still get a ratio.
func (a *Agent) ListingRatio() *float64 {
	count, _ := a.TotalTransactionsCount.Float64()
	if count <= 0 {
		return nil
	}
	total, _ := a.TotalProduction.Float64()
	if total < 1 {
		total = 1
	}
	listing, _ := a.ListingProduction.Float64()
	ratio := listing / total
	return &ratio
}

// AverageTransactionPrice is 12-month production over count, or nil without
// transactions.
func (a *Agent) AverageTransactionPrice() *float64 {
	total, _ := a.TotalTransactionsCount.Float64()
	if total <= 0 {
		return nil
	}
	production, _ := a.TotalProduction.Float64()
	avg := production / total
	return &avg
}

// HubspotProperties builds the contact property payload including cached
// statistics.
func (a *Agent) HubspotProperties() map[string]any {
	props := map[string]any{
		"full_name": a.Name,
		"email":     derefOrEmpty(a.Email),
		"phone":     derefOrEmpty(a.BestPhone()),
		"address":   derefOrEmpty(a.Address),
		"city":      derefOrEmpty(a.City),
		"state":     derefOrEmpty(a.State),
		"zip":       derefOrEmpty(a.Zipcode),
	}
	if a.MLS != nil {
		props["mls"] = a.MLS.ContactHubspotValue()
	}
	if a.OfficeName != nil {
		props["office_name"] = *a.OfficeName
	}
	if a.Role != nil {
		props["role"] = *a.Role
	}
	for k, v := range a.StatsProperties() {
		props[k] = v
	}
	return props
}

// StatsProperties exposes the cached statistics as CRM property values.
func (a *Agent) StatsProperties() map[string]any {
	props := map[string]any{
		"listing_transactions_count":          a.ListingTransactionsCount.String(),
		"selling_transactions_count":          a.SellingTransactionsCount.String(),
		"total_transactions_count":            a.TotalTransactionsCount.String(),
		"listing_production":                  a.ListingProduction.String(),
		"selling_production":                  a.SellingProduction.String(),
		"total_production":                    a.TotalProduction.String(),
		"all_time_listing_transactions_count": a.AllTimeListingTransactionsCount,
		"all_time_selling_transactions_count": a.AllTimeSellingTransactionsCount,
		"all_time_listing_production":         a.AllTimeListingProduction,
		"all_time_selling_production":         a.AllTimeSellingProduction,
	}
	if a.TenureStartDate != nil {
		props["tenure_start_date"] = a.TenureStartDate.Format("2006-01-02")
	}
	if a.TenureEndDate != nil {
		props["tenure_end_date"] = a.TenureEndDate.Format("2006-01-02")
	}
	if a.TenureDays != nil {
		props["tenure_days"] = *a.TenureDays
	}
	if a.MostTransactedCity != nil {
		props["most_transacted_city"] = *a.MostTransactedCity
	}
	if a.LastActivityDate != nil {
		props["last_activity_date"] = a.LastActivityDate.Format("2006-01-02")
	}
	if a.LikelihoodToMove != nil {
		props["likelihood_to_move"] = *a.LikelihoodToMove
	}
	if ratio := a.ListingRatio(); ratio != nil {
		props["listing_ratio"] = *ratio
	}
	if avg := a.AverageTransactionPrice(); avg != nil {
		props["average_transaction_price"] = *avg
	}
	return props
}
