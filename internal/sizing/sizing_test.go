package sizing

import (
	"errors"
	"testing"

	"tree-checkout/internal/model"
)

func TestResolve_Properties(t *testing.T) {
	tests := []struct {
		name      string
		treeType  string
		size      string
		kind      model.StepKind
		want      Status
		wantLinks int
	}{
		{"fraser 4 stand", FraserFir, "4'", model.StepStand, Eligible, 2},
		{"fraser 3 stand", FraserFir, "3'", model.StepStand, NotApplicable, 0},
		{"balsam larger installation", BalsamFir, "Larger", model.StepInstallation, NotApplicable, 0},
		{"fraser 99ft stand", FraserFir, "99ft", model.StepStand, UnknownSize, 0},
		{"unknown tree type", "Noble Fir", "6'", model.StepStand, UnknownSize, 0},
		{"insurance is not table driven", FraserFir, "6'", model.StepInsurance, NotApplicable, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.treeType, tt.size, tt.kind)
			if got.Status != tt.want {
				t.Errorf("Status = %v, want %v", got.Status, tt.want)
			}
			if len(got.Links) != tt.wantLinks {
				t.Errorf("len(Links) = %d, want %d", len(got.Links), tt.wantLinks)
			}
		})
	}
}

// TestResolve_EveryPair walks the whole table for both step kinds.
func TestResolve_EveryPair(t *testing.T) {
	type want struct {
		stand        Status
		standURL     string
		standPrice   int64 // -1 for call for pricing
		install      Status
		installURL   string
		installPrice int64
	}

	cases := map[string]map[string]want{
		FraserFir: {
			"3'":  {NotApplicable, "", 0, NotApplicable, "", 0},
			"4'":  {Eligible, stand6ft, 3499, Eligible, install45, 2500},
			"5'":  {Eligible, stand6ft, 3499, Eligible, install45, 2500},
			"6'":  {Eligible, stand6ft, 3499, Eligible, install56, 2500},
			"7'":  {Eligible, stand8ft, 4499, Eligible, install56, 2500},
			"8'":  {Eligible, stand8ft, 4499, Eligible, install78, 3500},
			"9'":  {Eligible, stand9ft, 6499, Eligible, install910, 5000},
			"10'": {Eligible, stand10ft, 9999, Eligible, install910, 5000},
			"11'": {Eligible, stand12ft, 9999, Eligible, install112, 25000},
			"12'": {Eligible, stand12ft, -1, Eligible, install112, 25000},
		},
		BalsamFir: {
			"5'":       {Eligible, stand6ft, 3499, Eligible, install45, 1500},
			"6'":       {Eligible, stand6ft, 3499, Eligible, install56, 2500},
			"7'":       {Eligible, stand8ft, 4499, Eligible, install56, 2500},
			"8'":       {Eligible, stand8ft, 4499, Eligible, install78, 3500},
			SizeLarger: {NotApplicable, "", 0, NotApplicable, "", 0},
		},
	}

	check := func(t *testing.T, r Resolution, status Status, url string, price int64, optOut string) {
		t.Helper()
		if r.Status != status {
			t.Fatalf("Status = %v, want %v", r.Status, status)
		}
		if status != Eligible {
			return
		}
		if len(r.Links) != 2 {
			t.Fatalf("len(Links) = %d, want 2", len(r.Links))
		}
		if r.Links[0].URL != url {
			t.Errorf("Links[0].URL = %q, want %q", r.Links[0].URL, url)
		}
		if price < 0 {
			if r.Links[0].Price != nil {
				t.Errorf("Links[0].Price = %d, want nil", *r.Links[0].Price)
			}
		} else if r.Links[0].Price == nil || *r.Links[0].Price != price {
			t.Errorf("Links[0].Price = %v, want %d", r.Links[0].Price, price)
		}
		if r.Links[1].URL != optOut || r.Links[1].Price != nil {
			t.Errorf("Links[1] = %+v, want unpriced opt-out %q", r.Links[1], optOut)
		}
		if r.Required != (price >= 0) || r.CallForPricing != (price < 0) {
			t.Errorf("Required = %v, CallForPricing = %v for price %d", r.Required, r.CallForPricing, price)
		}
	}

	for treeType, sizes := range cases {
		if got := len(Sizes(treeType)); got != len(sizes) {
			t.Errorf("Sizes(%s) has %d entries, test covers %d", treeType, got, len(sizes))
		}
		for size, w := range sizes {
			t.Run(treeType+" "+size, func(t *testing.T) {
				check(t, Resolve(treeType, size, model.StepStand), w.stand, w.standURL, w.standPrice, standNone)
				check(t, Resolve(treeType, size, model.StepInstallation), w.install, w.installURL, w.installPrice, installNo)
			})
		}
	}
}

func TestResolve_ReturnsCopy(t *testing.T) {
	r := Resolve(FraserFir, "6'", model.StepStand)
	r.Links[0].URL = "mutated"
	if Resolve(FraserFir, "6'", model.StepStand).Links[0].URL != stand6ft {
		t.Error("Resolve should not expose the table's backing slice")
	}
}

func TestTreePrice(t *testing.T) {
	price, err := TreePrice(FraserFir, "6'")
	if err != nil || price != 18499 {
		t.Errorf("TreePrice(Fraser 6') = %d, %v", price, err)
	}

	_, err = TreePrice(FraserFir, "12'")
	if !errors.Is(err, model.ErrCallForPricing) {
		t.Errorf("12' Fraser should be call for pricing, got %v", err)
	}
	if got := model.UserMessage(err); got != "Please contact us for pricing on Fraser Fir 12'." {
		t.Errorf("UserMessage() = %q", got)
	}

	if err := ValidateTree(BalsamFir, "larger"); !errors.Is(err, model.ErrCallForPricing) {
		t.Errorf("Balsam Larger should be call for pricing, got %v", err)
	}
	if err := ValidateTree(BalsamFir, "3'"); !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("Balsam 3' should be invalid, got %v", err)
	}
}

func TestNormalizeSize(t *testing.T) {
	tests := map[string]string{
		"6'":     "6'",
		"6 ft":   "6'",
		"6ft":    "6'",
		"10 Ft.": "10'",
		" 7 ":    "7'",
		"8 feet": "8'",
		"larger": SizeLarger,
		"6-7 ft": "6-7 ft",
	}
	for in, want := range tests {
		if got := NormalizeSize(in); got != want {
			t.Errorf("NormalizeSize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		product string
		variant string
		want    model.TreeSelection
		ok      bool
	}{
		{"Fraser Fir", "6'", model.TreeSelection{TreeType: FraserFir, Size: "6'"}, true},
		{"Fresh Cut Balsam Fir Tree", "5 ft", model.TreeSelection{TreeType: BalsamFir, Size: "5'"}, true},
		{"Fraser Fir", "99ft", model.TreeSelection{}, false},
		{"Tree Stand", "Default", model.TreeSelection{}, false},
	}

	for _, tt := range tests {
		got, ok := ParseSelection(tt.product, tt.variant)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseSelection(%q, %q) = %+v, %v; want %+v, %v", tt.product, tt.variant, got, ok, tt.want, tt.ok)
		}
	}

	if !IsTreeLine(model.CartLine{ProductTitle: "Fraser Fir", VariantTitle: "8'"}) {
		t.Error("IsTreeLine should match a Fraser Fir line")
	}
}

func TestTreeTypes(t *testing.T) {
	types := TreeTypes()
	if len(types) != 2 || types[0] != FraserFir || types[1] != BalsamFir {
		t.Errorf("TreeTypes() = %v", types)
	}
	if Sizes("Noble Fir") != nil {
		t.Error("Sizes(unknown) should be nil")
	}
}
