package models

type TenantMode string

const (
	TenantModeSolo     TenantMode = "solo"
	TenantModeBusiness TenantMode = "business"
)

// TenantContext is resolved once per request outside the core and passed through untouched.
type TenantContext struct {
	RegionCode     string     `json:"region_code"`
	OrganizationID string     `json:"organization_id"`
	Mode           TenantMode `json:"mode"`
	UserID         string     `json:"user_id"`
}

type JurisdictionProfile struct {
	CountryCode               string  `json:"country_code" yaml:"country_code"`
	Currency                  string  `json:"currency" yaml:"currency"`
	RuleVersion               string  `json:"rule_version" yaml:"rule_version"`
	PromptHint                string  `json:"prompt_hint" yaml:"prompt_hint"`
	ReviewConfidenceThreshold float64 `json:"review_confidence_threshold" yaml:"review_confidence_threshold"`
	MaxAllocationRate         float64 `json:"max_allocation_rate" yaml:"max_allocation_rate"`
}

// Scope is the key stored data is partitioned by: the organisation when there
// is one, otherwise the user. Empty when the tenant is anonymous.
func (t TenantContext) Scope() string {
	if t.OrganizationID != "" {
		return t.OrganizationID
	}
	if t.UserID != "" {
		return "user:" + t.UserID
	}
	return ""
}
