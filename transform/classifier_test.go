package transform

import "testing"

func TestClassifyExact(t *testing.T) {
	table := DefaultCategoryTable()
	tests := []struct {
		label string
		want  string
	}{
		{"produce", CategoryProduce},
		{"Dry Goods", CategoryDryGoods},
		{"  DAIRY  ", CategoryDairy},
		{"draft beer", CategoryAlcohol},
		{"paper goods", CategoryPackaging},
	}
	for _, tt := range tests {
		cls, ok := table.Classify(tt.label)
		if !ok {
			t.Fatalf("Classify(%q): no match", tt.label)
		}
		if cls.Category != tt.want || cls.MatchType != MatchExact || cls.Confidence != 1.0 {
			t.Errorf("Classify(%q) = %+v, want exact %s at 1.0", tt.label, cls, tt.want)
		}
	}
}

func TestClassifyFuzzy(t *testing.T) {
	table := DefaultCategoryTable()
	tests := []struct {
		label string
		want  string
	}{
		{"vegetbles", CategoryProduce},  // vegetables, distance 1
		{"seafod", CategoryProtein},     // seafood, distance 1
		{"beverge", CategoryBeverage},   // beverage, distance 1
		{"dry good", CategoryDryGoods},  // dry goods, distance 1
		{"janitoral", CategoryCleaning}, // janitorial, distance 1
	}
	for _, tt := range tests {
		cls, ok := table.Classify(tt.label)
		if !ok {
			t.Fatalf("Classify(%q): no match", tt.label)
		}
		if cls.Category != tt.want || cls.MatchType != MatchFuzzy {
			t.Errorf("Classify(%q) = %+v, want fuzzy %s", tt.label, cls, tt.want)
		}
		if cls.Confidence >= 1.0 || cls.Confidence < minFuzzyConfidence {
			t.Errorf("Classify(%q) confidence = %v, want [%v,1)", tt.label, cls.Confidence, minFuzzyConfidence)
		}
	}
}

func TestClassifyConfidenceDropsWithDistance(t *testing.T) {
	table := DefaultCategoryTable()
	one, ok := table.Classify("vegetable") // exact alias
	if !ok {
		t.Fatal("vegetable should match")
	}
	two, ok := table.Classify("vegetble") // distance 1 from vegetable
	if !ok {
		t.Fatal("vegetble should match")
	}
	if two.Confidence >= one.Confidence {
		t.Fatalf("confidence did not drop: %v then %v", one.Confidence, two.Confidence)
	}
}

func TestClassifyNoMatch(t *testing.T) {
	table := DefaultCategoryTable()
	for _, label := range []string{"xqzvw", "completely unknown label", ""} {
		if cls, ok := table.Classify(label); ok {
			t.Errorf("Classify(%q) = %+v, want no match", label, cls)
		}
	}
}

func TestClassifyShortLabelConfidenceGate(t *testing.T) {
	// A short label within edit distance 3 of a short key would still have
	// low confidence; it must be rejected rather than mapped.
	table := NewCategoryTable(map[string]string{"veg": CategoryProduce})
	if cls, ok := table.Classify("wet"); ok {
		t.Fatalf("Classify(wet) = %+v, want rejection below confidence gate", cls)
	}
}

func TestFallbackClassification(t *testing.T) {
	cls := FallbackClassification()
	if cls.Category != CategoryOther || cls.MatchType != MatchFallback {
		t.Fatalf("fallback = %+v", cls)
	}
	if cls.Confidence >= 0.5 {
		t.Fatalf("fallback confidence = %v, want < 0.5", cls.Confidence)
	}
}

func TestExtendIsCopyOnWrite(t *testing.T) {
	base := NewCategoryTable(map[string]string{"meat": CategoryProtein})
	extended := base.Extend(map[string]string{"Kombucha": CategoryBeverage})

	if _, ok := base.Classify("kombucha"); ok {
		t.Fatal("base table mutated by Extend")
	}
	cls, ok := extended.Classify("kombucha")
	if !ok || cls.Category != CategoryBeverage {
		t.Fatalf("extended Classify(kombucha) = %+v, %v", cls, ok)
	}
	if cls, ok := extended.Classify("meat"); !ok || cls.Category != CategoryProtein {
		t.Fatalf("extended table lost base entries: %+v, %v", cls, ok)
	}
	if base.Len()+1 != extended.Len() {
		t.Fatalf("Len: base %d, extended %d", base.Len(), extended.Len())
	}
}
