// Package jurisdiction holds the per-country classification profiles.
package jurisdiction

import (
	"fmt"
	"os"
	"strings"

	"autobook/internal/models"

	"gopkg.in/yaml.v2"
)

const GlobalCode = "GLOBAL"

var builtin = []models.JurisdictionProfile{
	{
		CountryCode:               "JP",
		Currency:                  "JPY",
		RuleVersion:               "jp-rules-2024.1",
		PromptHint:                "日本の個人事業主・法人の経費判定。勘定科目は日本の一般的な科目名（旅費交通費、消耗品費、通信費、接待交際費、雑費など）で回答すること。家事按分がある場合は allocation_rate に事業使用割合を入れること。",
		ReviewConfidenceThreshold: 0.75,
		MaxAllocationRate:         1.0,
	},
	{
		CountryCode:               "US",
		Currency:                  "USD",
		RuleVersion:               "us-rules-2024.1",
		PromptHint:                "US sole proprietor / small business (Schedule C). Use IRS-style expense categories such as Travel, Meals, Supplies, Utilities. Meals are typically 50% deductible.",
		ReviewConfidenceThreshold: 0.8,
		MaxAllocationRate:         1.0,
	},
	{
		CountryCode:               "GB",
		Currency:                  "GBP",
		RuleVersion:               "gb-rules-2024.1",
		PromptHint:                "UK self-employed allowable expenses (HMRC). Entertainment of clients is not allowable. Use categories such as Travel, Office costs, Phone and internet.",
		ReviewConfidenceThreshold: 0.8,
		MaxAllocationRate:         1.0,
	},
	{
		CountryCode:               "AU",
		Currency:                  "AUD",
		RuleVersion:               "au-rules-2024.1",
		PromptHint:                "Australian sole trader deductions (ATO). Apportion private use. Use categories such as Motor vehicle, Travel, Office supplies.",
		ReviewConfidenceThreshold: 0.8,
		MaxAllocationRate:         1.0,
	},
	{
		CountryCode:               "NZ",
		Currency:                  "NZD",
		RuleVersion:               "nz-rules-2024.1",
		PromptHint:                "New Zealand self-employed deductible expenses (IRD). Entertainment is generally 50% deductible.",
		ReviewConfidenceThreshold: 0.8,
		MaxAllocationRate:         1.0,
	},
	{
		CountryCode:               "CA",
		Currency:                  "CAD",
		RuleVersion:               "ca-rules-2024.1",
		PromptHint:                "Canadian business expenses (CRA T2125). Meals and entertainment are 50% deductible.",
		ReviewConfidenceThreshold: 0.8,
		MaxAllocationRate:         1.0,
	},
	{
		CountryCode:               GlobalCode,
		Currency:                  "USD",
		RuleVersion:               "global-rules-2024.1",
		PromptHint:                "Generic small business bookkeeping. Only ordinary and necessary business expenses are deductible; personal spending is not.",
		ReviewConfidenceThreshold: 0.85,
		MaxAllocationRate:         1.0,
	},
}

// Store is a read-only lookup of profiles keyed by uppercase country code.
type Store struct {
	profiles map[string]models.JurisdictionProfile
}

func NewStore() *Store {
	s := &Store{profiles: make(map[string]models.JurisdictionProfile, len(builtin))}
	for _, p := range builtin {
		s.profiles[p.CountryCode] = p
	}
	return s
}

// Resolve returns the profile for the country code, falling back to GLOBAL.
func (s *Store) Resolve(countryCode string) models.JurisdictionProfile {
	code := strings.ToUpper(strings.TrimSpace(countryCode))
	if p, ok := s.profiles[code]; ok {
		return p
	}
	return s.profiles[GlobalCode]
}

func (s *Store) Profiles() []models.JurisdictionProfile {
	out := make([]models.JurisdictionProfile, 0, len(s.profiles))
	for _, p := range builtin {
		if cur, ok := s.profiles[p.CountryCode]; ok {
			out = append(out, cur)
		}
	}
	for code, p := range s.profiles {
		if !isBuiltin(code) {
			out = append(out, p)
		}
	}
	return out
}

type overrideFile struct {
	Profiles []models.JurisdictionProfile `yaml:"profiles"`
}

// LoadFile returns a store with the YAML profiles layered over the built-in ones.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read jurisdiction file: %w", err)
	}

	var f overrideFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse jurisdiction file: %w", err)
	}

	s := NewStore()
	for _, p := range f.Profiles {
		p.CountryCode = strings.ToUpper(strings.TrimSpace(p.CountryCode))
		if p.CountryCode == "" {
			return nil, fmt.Errorf("jurisdiction profile without country_code")
		}
		if p.ReviewConfidenceThreshold < 0 || p.ReviewConfidenceThreshold > 1 {
			return nil, fmt.Errorf("profile %s: review_confidence_threshold %v out of [0,1]", p.CountryCode, p.ReviewConfidenceThreshold)
		}
		if p.MaxAllocationRate <= 0 || p.MaxAllocationRate > 1 {
			return nil, fmt.Errorf("profile %s: max_allocation_rate %v out of (0,1]", p.CountryCode, p.MaxAllocationRate)
		}
		if base, ok := s.profiles[p.CountryCode]; ok {
			if p.Currency == "" {
				p.Currency = base.Currency
			}
			if p.RuleVersion == "" {
				p.RuleVersion = base.RuleVersion
			}
			if p.PromptHint == "" {
				p.PromptHint = base.PromptHint
			}
		}
		s.profiles[p.CountryCode] = p
	}
	return s, nil
}

func isBuiltin(code string) bool {
	for _, p := range builtin {
		if p.CountryCode == code {
			return true
		}
	}
	return false
}
