package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{"12.344", 1234, true},
		{" 2.50 ", 250, true},
		{".5", 50, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"0", 0, false},
		{"0.001", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"1e3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		0:      "0.00",
		5:      "0.05",
		1234:   "12.34",
		-1205:  "-12.05",
		100000: "1000.00",
	}
	for cents, want := range cases {
		if got := Cents(cents).String(); got != want {
			t.Errorf("Cents(%d).String() = %q, want %q", cents, got, want)
		}
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a, b := Cents(1500), Cents(400)
	if got := a.Add(b); got.Cents != 1900 {
		t.Errorf("Add = %d", got.Cents)
	}
	if got := b.Sub(a); got.Cents != -1100 {
		t.Errorf("Sub = %d", got.Cents)
	}
	if got := a.Neg(); got.Cents != -1500 {
		t.Errorf("Neg = %d", got.Cents)
	}
}

func TestPercent(t *testing.T) {
	cases := []struct {
		name         string
		spend, limit int64
		want         float64
	}{
		{"below", 5000, 10000, 50},
		{"at limit", 10000, 10000, 100},
		{"over", 12000, 10000, 120},
		{"no limit", 12000, 0, 0},
		{"negative spend", -100, 10000, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Percent(Cents(tc.spend), Cents(tc.limit)); got != tc.want {
				t.Fatalf("Percent = %v, want %v", got, tc.want)
			}
		})
	}
}
