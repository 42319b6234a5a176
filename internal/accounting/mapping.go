package accounting

import (
	"fmt"
	"os"
	"strings"

	"autobook/internal/models"

	"gopkg.in/yaml.v2"
)

// MappingRule maps decision categories to account names in each provider.
type MappingRule struct {
	Keywords []string            `yaml:"keywords"`
	Accounts map[string][]string `yaml:"accounts"`
}

type MappingFile struct {
	Rules []MappingRule       `yaml:"rules"`
	Misc  map[string][]string `yaml:"misc"`
	Taxes map[string][]string `yaml:"taxes"`
}

var DefaultMappingRules = []MappingRule{
	{
		Keywords: []string{"旅費交通費", "交通", "travel", "transport", "taxi", "mileage"},
		Accounts: map[string][]string{"freee": {"旅費交通費"}, "quickbooks": {"Travel", "Travel Expense"}, "xero": {"Travel - National", "Travel"}},
	},
	{
		Keywords: []string{"通信費", "通信", "phone", "internet", "telephone"},
		Accounts: map[string][]string{"freee": {"通信費"}, "quickbooks": {"Telephone Expense", "Utilities"}, "xero": {"Telephone & Internet"}},
	},
	{
		Keywords: []string{"消耗品", "supplies", "office"},
		Accounts: map[string][]string{"freee": {"消耗品費"}, "quickbooks": {"Supplies", "Office Supplies", "Office/General Administrative Expenses"}, "xero": {"Office Expenses"}},
	},
	{
		Keywords: []string{"新聞図書費", "図書", "book", "subscription"},
		Accounts: map[string][]string{"freee": {"新聞図書費"}, "quickbooks": {"Dues & subscriptions", "Dues & Subscriptions"}, "xero": {"Subscriptions"}},
	},
	{
		Keywords: []string{"支払手数料", "手数料", "software", "fee"},
		Accounts: map[string][]string{"freee": {"支払手数料"}, "quickbooks": {"Bank Charges", "Commissions & fees"}, "xero": {"Bank Fees", "Subscriptions"}},
	},
	{
		Keywords: []string{"会議費", "会議", "meeting", "meal"},
		Accounts: map[string][]string{"freee": {"会議費"}, "quickbooks": {"Meals and Entertainment"}, "xero": {"Entertainment"}},
	},
	{
		Keywords: []string{"接待交際費", "交際", "entertainment"},
		Accounts: map[string][]string{"freee": {"接待交際費"}, "quickbooks": {"Meals and Entertainment"}, "xero": {"Entertainment"}},
	},
	{
		Keywords: []string{"研修費", "研修", "training", "education"},
		Accounts: map[string][]string{"freee": {"研修費"}, "quickbooks": {"Training", "Education"}, "xero": {"Training"}},
	},
	{
		Keywords: []string{"水道光熱費", "光熱", "utilities", "electricity"},
		Accounts: map[string][]string{"freee": {"水道光熱費"}, "quickbooks": {"Utilities"}, "xero": {"Light, Power, Heating"}},
	},
	{
		Keywords: []string{"地代家賃", "家賃", "rent"},
		Accounts: map[string][]string{"freee": {"地代家賃"}, "quickbooks": {"Rent or Lease", "Rent Expense"}, "xero": {"Rent"}},
	},
}

var defaultMisc = map[string][]string{
	"freee":      {"雑費"},
	"quickbooks": {"Other Miscellaneous Service Cost", "Miscellaneous"},
	"xero":       {"General Expenses", "Sundry Expenses"},
}

var defaultTaxes = map[string][]string{
	"freee": {"課対仕入10%", "課対仕入(10%)", "課税仕入10%", "purchase_with_tax_10"},
	"xero":  {"INPUT2", "INPUT", "TAX ON PURCHASES", "GST on Expenses"},
}

// Mapper resolves decision categories to provider account names.
type Mapper struct {
	rules []MappingRule
	misc  map[string][]string
	taxes map[string][]string
}

func NewMapper() *Mapper {
	return &Mapper{rules: DefaultMappingRules, misc: defaultMisc, taxes: defaultTaxes}
}

// LoadMappingFile layers a YAML mapping over the defaults. Rules in the file take precedence.
func LoadMappingFile(path string) (*Mapper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}

	var f MappingFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse mapping file: %w", err)
	}

	m := NewMapper()
	m.rules = append(append([]MappingRule{}, f.Rules...), m.rules...)
	if len(f.Misc) > 0 {
		m.misc = mergeLists(m.misc, f.Misc)
	}
	if len(f.Taxes) > 0 {
		m.taxes = mergeLists(m.taxes, f.Taxes)
	}
	return m, nil
}

// Candidates lists account names to try for a category, most specific first,
// ending with the provider's miscellaneous bucket.
func (m *Mapper) Candidates(p models.Provider, category string) []string {
	cat := strings.ToLower(strings.TrimSpace(category))
	var out []string
	if cat != "" {
		out = append(out, category)
		for _, r := range m.rules {
			for _, kw := range r.Keywords {
				if strings.Contains(cat, strings.ToLower(kw)) {
					out = append(out, r.Accounts[string(p)]...)
					break
				}
			}
		}
	}
	return append(out, m.misc[string(p)]...)
}

func (m *Mapper) TaxPreferences(p models.Provider) []string {
	return m.taxes[string(p)]
}

type namedAccount struct {
	ID      string
	Code    string
	Name    string
	TaxCode string
}

// matchAccount returns the first candidate with an exact (case-insensitive)
// name match, then the first with a substring match.
func matchAccount(candidates []string, accounts []namedAccount) (namedAccount, bool) {
	for _, c := range candidates {
		for _, a := range accounts {
			if strings.EqualFold(a.Name, c) {
				return a, true
			}
		}
	}
	for _, c := range candidates {
		lc := strings.ToLower(c)
		if lc == "" {
			continue
		}
		for _, a := range accounts {
			if strings.Contains(strings.ToLower(a.Name), lc) {
				return a, true
			}
		}
	}
	return namedAccount{}, false
}

func mergeLists(base, override map[string][]string) map[string][]string {
	out := make(map[string][]string, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = append(append([]string{}, v...), base[k]...)
	}
	return out
}
