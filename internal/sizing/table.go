package sizing

import "tree-checkout/internal/model"

// Tree types carried by the table.
const (
	FraserFir = "Fraser Fir"
	BalsamFir = "Balsam Fir"
)

// SizeLarger is the open-ended size label.
const SizeLarger = "Larger"

const storeProducts = "https://brooklynchristmastree.com/products/"

var (
	stand6ft   = storeProducts + "tree-stand-for-up-to-6ft"
	stand8ft   = storeProducts + "tree-stand-for-up-to-8ft"
	stand9ft   = storeProducts + "tree-stand-for-up-to-6ft-copy"
	stand10ft  = storeProducts + "tree-stand-up-to-10ft"
	stand12ft  = storeProducts + "tree-stand-for-up-to-12ft"
	standNone  = storeProducts + "i-do-not-need-a-stand"
	install45  = storeProducts + "4-5-tree-installation-1"
	install56  = storeProducts + "5-6-tree-installation"
	install78  = storeProducts + "7-8-tree-installation"
	install910 = storeProducts + "9-10-tree-installation"
	install112 = storeProducts + "11-12-tree-installation"
	installNo  = storeProducts + "4-5-tree-installation-copy?_pos=2&_sid=8cf8973c6&_ss=r"
)

// link builds a priced link; cents < 0 means call for pricing.
func link(url string, cents int64) model.ProductLink {
	if cents < 0 {
		return model.ProductLink{URL: url}
	}
	return model.ProductLink{URL: url, Price: model.Cents(cents)}
}

// stands lists a priced stand followed by the opt-out.
func stands(url string, cents int64) []model.ProductLink {
	return []model.ProductLink{link(url, cents), link(standNone, -1)}
}

// installs lists a priced installation followed by the opt-out.
func installs(url string, cents int64) []model.ProductLink {
	return []model.ProductLink{link(url, cents), link(installNo, -1)}
}

type sizeRow struct {
	label string
	entry model.SizeMappingEntry
}

type treeRow struct {
	treeType string
	sizes    []sizeRow
}

// table is the static size/price/add-on mapping, sizes in display order.
// Prices are cents.
var table = []treeRow{
	{
		treeType: FraserFir,
		sizes: []sizeRow{
			{"3'", model.SizeMappingEntry{Price: model.Cents(8999)}},
			{"4'", model.SizeMappingEntry{Price: model.Cents(10999), StandLinks: stands(stand6ft, 3499), InstallationLinks: installs(install45, 2500)}},
			{"5'", model.SizeMappingEntry{Price: model.Cents(12499), StandLinks: stands(stand6ft, 3499), InstallationLinks: installs(install45, 2500)}},
			{"6'", model.SizeMappingEntry{Price: model.Cents(18499), StandLinks: stands(stand6ft, 3499), InstallationLinks: installs(install56, 2500)}},
			{"7'", model.SizeMappingEntry{Price: model.Cents(22999), StandLinks: stands(stand8ft, 4499), InstallationLinks: installs(install56, 2500)}},
			{"8'", model.SizeMappingEntry{Price: model.Cents(28999), StandLinks: stands(stand8ft, 4499), InstallationLinks: installs(install78, 3500)}},
			{"9'", model.SizeMappingEntry{Price: model.Cents(42999), StandLinks: stands(stand9ft, 6499), InstallationLinks: installs(install910, 5000)}},
			{"10'", model.SizeMappingEntry{Price: model.Cents(53999), StandLinks: stands(stand10ft, 9999), InstallationLinks: installs(install910, 5000)}},
			{"11'", model.SizeMappingEntry{Price: model.Cents(69999), StandLinks: stands(stand12ft, 9999), InstallationLinks: installs(install112, 25000)}},
			{"12'", model.SizeMappingEntry{StandLinks: stands(stand12ft, -1), InstallationLinks: installs(install112, 25000)}},
		},
	},
	{
		treeType: BalsamFir,
		sizes: []sizeRow{
			{"5'", model.SizeMappingEntry{Price: model.Cents(13999), StandLinks: stands(stand6ft, 3499), InstallationLinks: installs(install45, 1500)}},
			{"6'", model.SizeMappingEntry{Price: model.Cents(16499), StandLinks: stands(stand6ft, 3499), InstallationLinks: installs(install56, 2500)}},
			{"7'", model.SizeMappingEntry{Price: model.Cents(20999), StandLinks: stands(stand8ft, 4499), InstallationLinks: installs(install56, 2500)}},
			{"8'", model.SizeMappingEntry{Price: model.Cents(26999), StandLinks: stands(stand8ft, 4499), InstallationLinks: installs(install78, 3500)}},
			{SizeLarger, model.SizeMappingEntry{}},
		},
	},
}
