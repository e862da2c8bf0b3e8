package core

import (
	"sort"
	"strings"
)

// ComplianceCategory groups entity types for reporting
type ComplianceCategory string

const (
	CompliancePII        ComplianceCategory = "pii"
	ComplianceFinancial  ComplianceCategory = "financial"
	ComplianceHealth     ComplianceCategory = "health"
	ComplianceIdentifier ComplianceCategory = "identifier"
	ComplianceCustom     ComplianceCategory = "custom"
)

// EntityTypeInfo describes one canonical sensitive information type
type EntityTypeInfo struct {
	Name     string
	Category ComplianceCategory
	Aliases  []string
}

// Built-in sensitive information types and the labels different discovery
// methods are known to export for them
var builtinEntityTypes = []EntityTypeInfo{
	{
		Name:     "U.S. Social Security Number (SSN)",
		Category: CompliancePII,
		Aliases:  []string{"SSN", "US SSN", "ssn_us", "Social Security Number", "U.S. Social Security Number"},
	},
	{
		Name:     "Credit Card Number",
		Category: ComplianceFinancial,
		Aliases:  []string{"credit_card", "Credit Card", "CCN", "Payment Card Number"},
	},
	{
		Name:     "U.S. Bank Account Number",
		Category: ComplianceFinancial,
		Aliases:  []string{"bank_account_us", "Bank Account Number", "US Bank Account"},
	},
	{
		Name:     "ABA Routing Number",
		Category: ComplianceFinancial,
		Aliases:  []string{"Routing Number", "ABA"},
	},
	{
		Name:     "U.S. / U.K. Passport Number",
		Category: CompliancePII,
		Aliases:  []string{"Passport Number", "US Passport", "passport"},
	},
	{
		Name:     "U.S. Driver's License Number",
		Category: CompliancePII,
		Aliases:  []string{"Driver's License", "Drivers License Number", "DL Number"},
	},
	{
		Name:     "Email Address",
		Category: CompliancePII,
		Aliases:  []string{"email", "E-mail"},
	},
	{
		Name:     "Medical Record Number",
		Category: ComplianceHealth,
		Aliases:  []string{"medical_record", "MRN"},
	},
	{
		Name:     "Employee ID",
		Category: ComplianceIdentifier,
		Aliases:  []string{"EmployeeID", "Employee Number", "Contoso Employee ID"},
	},
	{
		Name:     "Customer ID",
		Category: ComplianceIdentifier,
		Aliases:  []string{"CustomerID", "Customer Number", "Contoso Customer ID"},
	},
}

// EntityTypeTable maps source-specific type labels to canonical names
type EntityTypeTable struct {
	canonical map[string]EntityTypeInfo
	aliases   map[string]string
}

// NewEntityTypeTable builds a lookup table from the built-in types plus the
// configured ones. Configured entries extend built-in aliases of the same name.
func NewEntityTypeTable(configured []EntityTypeConfig) *EntityTypeTable {
	t := &EntityTypeTable{
		canonical: make(map[string]EntityTypeInfo),
		aliases:   make(map[string]string),
	}
	for _, info := range builtinEntityTypes {
		t.add(info)
	}
	for _, c := range configured {
		category := ComplianceCategory(c.Category)
		if category == "" {
			category = ComplianceCustom
			if existing, ok := t.canonical[foldKey(c.Name)]; ok {
				category = existing.Category
			}
		}
		t.add(EntityTypeInfo{Name: c.Name, Category: category, Aliases: c.Aliases})
	}
	return t
}

func (t *EntityTypeTable) add(info EntityTypeInfo) {
	name := strings.TrimSpace(info.Name)
	if name == "" {
		return
	}
	key := foldKey(name)
	if existing, ok := t.canonical[key]; ok {
		info.Aliases = append(append([]string{}, existing.Aliases...), info.Aliases...)
		name = existing.Name
	}
	info.Name = name
	t.canonical[key] = info
	t.aliases[key] = name
	for _, alias := range info.Aliases {
		if a := foldKey(alias); a != "" {
			t.aliases[a] = name
		}
	}
}

// Canonical resolves a source label. Unknown labels pass through trimmed.
func (t *EntityTypeTable) Canonical(label string) string {
	label = strings.TrimSpace(label)
	if name, ok := t.aliases[foldKey(label)]; ok {
		return name
	}
	return label
}

// Category returns the compliance category of a canonical type name
func (t *EntityTypeTable) Category(name string) ComplianceCategory {
	if info, ok := t.canonical[foldKey(name)]; ok {
		return info.Category
	}
	return ComplianceCustom
}

// Names returns the canonical names in sorted order
func (t *EntityTypeTable) Names() []string {
	names := make([]string, 0, len(t.canonical))
	for _, info := range t.canonical {
		names = append(names, info.Name)
	}
	sort.Strings(names)
	return names
}
