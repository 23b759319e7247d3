package order

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/uuid"

	"github.com/comandaclub/comanda/internal/fault"
)

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name         string
		lines        []Line
		taxRate      float64
		wantSubtotal float64
		wantTax      float64
		wantTotal    float64
	}{
		{
			name: "singleLine",
			lines: []Line{
				{Kind: LineProduct, Quantity: 2, UnitPrice: 9.90},
			},
			taxRate:      0.10,
			wantSubtotal: 19.80,
			wantTax:      1.98,
			wantTotal:    21.78,
		},
		{
			name: "modifiersAddPerUnit",
			lines: []Line{
				{
					Kind: LineProduct, Quantity: 2, UnitPrice: 5.00,
					Modifiers: []Modifier{{Quantity: 3, Price: 0.50}},
				},
			},
			taxRate:      0,
			wantSubtotal: 13.00,
			wantTax:      0,
			wantTotal:    13.00,
		},
		{
			name: "zeroTaxRate",
			lines: []Line{
				{Kind: LineProduct, Quantity: 1, UnitPrice: 7.25},
			},
			taxRate:      0,
			wantSubtotal: 7.25,
			wantTax:      0,
			wantTotal:    7.25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subtotal, tax, total, err := ComputeTotals(tt.lines, tt.taxRate)
			if err != nil {
				t.Fatalf("ComputeTotals() error = %v", err)
			}
			if subtotal != tt.wantSubtotal {
				t.Errorf("subtotal = %v, want %v", subtotal, tt.wantSubtotal)
			}
			if tax != tt.wantTax {
				t.Errorf("tax = %v, want %v", tax, tt.wantTax)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %v, want %v", total, tt.wantTotal)
			}
		})
	}
}

func TestComputeTotalsRejections(t *testing.T) {
	tests := []struct {
		name  string
		lines []Line
	}{
		{name: "noLines", lines: nil},
		{name: "zeroQuantity", lines: []Line{{Kind: LineProduct, Quantity: 0, UnitPrice: 1}}},
		{name: "negativeQuantity", lines: []Line{{Kind: LineProduct, Quantity: -1, UnitPrice: 1}}},
		{name: "unknownKind", lines: []Line{{Kind: LineKind("combo"), Quantity: 1, UnitPrice: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, _, err := ComputeTotals(tt.lines, 0.1); !fault.IsPolicy(err) {
				t.Errorf("ComputeTotals() error = %v, want policy violation", err)
			}
		})
	}
}

// Totals must always reconcile: subtotal equals the line sum to the cent,
// and total equals subtotal plus tax, for arbitrary carts.
func TestComputeTotalsInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		n := 1 + rng.Intn(8)
		lines := make([]Line, 0, n)
		var want float64
		for j := 0; j < n; j++ {
			qty := 1 + rng.Intn(5)
			unit := math.Round(rng.Float64()*2000) / 100
			l := Line{Kind: LineProduct, ProductID: uuid.New(), Quantity: qty, UnitPrice: unit}
			lineUnit := unit
			if rng.Intn(2) == 0 {
				modQty := 1 + rng.Intn(3)
				modPrice := math.Round(rng.Float64()*300) / 100
				l.Modifiers = []Modifier{{Quantity: modQty, Price: modPrice}}
				lineUnit += float64(modQty) * modPrice
			}
			want += float64(qty) * lineUnit
			lines = append(lines, l)
		}
		taxRate := float64(rng.Intn(25)) / 100

		subtotal, tax, total, err := ComputeTotals(lines, taxRate)
		if err != nil {
			t.Fatalf("ComputeTotals() error = %v", err)
		}
		if math.Abs(subtotal-math.Round(want*100)/100) > 1e-9 {
			t.Fatalf("subtotal = %v, want %v", subtotal, math.Round(want*100)/100)
		}
		if math.Abs(tax-math.Round(subtotal*taxRate*100)/100) > 1e-9 {
			t.Fatalf("tax = %v does not match rate %v on %v", tax, taxRate, subtotal)
		}
		if math.Abs(total-math.Round((subtotal+tax)*100)/100) > 1e-9 {
			t.Fatalf("total = %v, want subtotal %v + tax %v", total, subtotal, tax)
		}
	}
}

func TestOrderBeforeCreate(t *testing.T) {
	o := &Order{}
	o.BeforeCreate()
	if o.ID == uuid.Nil {
		t.Error("BeforeCreate() should assign an id")
	}
	if o.CreatedAt.IsZero() || o.UpdatedAt.IsZero() {
		t.Error("BeforeCreate() should stamp timestamps")
	}
}
