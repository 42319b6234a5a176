package accounting

import (
	"strings"

	"autobook/internal/models"
)

// Definition is the static metadata of one accounting provider.
type Definition struct {
	Provider       models.Provider `json:"provider"`
	Label          string          `json:"label"`
	Regions        []string        `json:"regions"`
	SupportContact string          `json:"support_contact"`
	DocsURL        string          `json:"docs_url"`
}

const DefaultProvider = models.ProviderFreee

var definitions = []Definition{
	{
		Provider:       models.ProviderFreee,
		Label:          "freee会計",
		Regions:        []string{"JP"},
		SupportContact: "https://support.freee.co.jp/hc/ja/requests/new",
		DocsURL:        "https://developer.freee.co.jp/reference/accounting/reference",
	},
	{
		Provider:       models.ProviderQuickBooks,
		Label:          "QuickBooks Online",
		Regions:        []string{"US", "CA", "MX", "IN"},
		SupportContact: "https://quickbooks.intuit.com/learn-support/en-us/help-article/contact-us",
		DocsURL:        "https://developer.intuit.com/app/developer/qbo/docs/api/accounting/all-entities/purchase",
	},
	{
		Provider:       models.ProviderXero,
		Label:          "Xero",
		Regions:        []string{"GB", "UK", "AU", "NZ", "IE", "SG", "ZA", "HK"},
		SupportContact: "https://central.xero.com/s/contact-support",
		DocsURL:        "https://developer.xero.com/documentation/api/accounting/invoices",
	},
}

func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// DefinitionFor returns the definition of a known provider, or the default provider's.
func DefinitionFor(p models.Provider) Definition {
	for _, d := range definitions {
		if d.Provider == p {
			return d
		}
	}
	return DefinitionFor(DefaultProvider)
}

// ParseProvider matches a provider key case-insensitively.
func ParseProvider(s string) (models.Provider, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(key)
	switch key {
	case "qbo", "quickbooksonline":
		key = string(models.ProviderQuickBooks)
	}
	for _, d := range definitions {
		if string(d.Provider) == key {
			return d.Provider, true
		}
	}
	return "", false
}

// ResolveProvider picks a provider for a tenant. A known requested provider
// always wins, then the first definition serving the region, then the default.
// It never fails and never returns an unknown provider.
func ResolveProvider(regionCode, requestedProvider string) (models.Provider, Definition) {
	if p, ok := ParseProvider(requestedProvider); ok {
		return p, DefinitionFor(p)
	}

	region := strings.ToUpper(strings.TrimSpace(regionCode))
	for _, d := range definitions {
		for _, r := range d.Regions {
			if r == region {
				return d.Provider, d
			}
		}
	}
	return DefaultProvider, DefinitionFor(DefaultProvider)
}
