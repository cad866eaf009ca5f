package transform

import "testing"

func TestNormalizeUnit(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"ea", UnitEach},
		{"EACH", UnitEach},
		{"lbs", UnitLb},
		{"Pound", UnitLb},
		{"#", UnitLb},
		{"oz.", UnitOz},
		{"Kilograms", UnitKg},
		{"g", UnitG},
		{"litre", UnitL},
		{"ml", UnitMl},
		{"Gallon", UnitGal},
		{"qt", UnitQt},
		{"CS", UnitCase},
		{"boxes", UnitBox},
		{"sack", UnitBag},
		{"btl", UnitBottle},
		{"tins", UnitCan},
		{"doz", UnitDozen},
		// unknown and empty degrade to each
		{"pallets", UnitEach},
		{"", UnitEach},
		{"   ", UnitEach},
	}
	for _, tt := range tests {
		if got := NormalizeUnit(tt.raw); got != tt.want {
			t.Errorf("NormalizeUnit(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
