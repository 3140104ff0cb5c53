package policy

import "testing"

func TestParsePredicate_GreaterThan(t *testing.T) {
	p := ParsePredicate(">100")
	if p.Ord != OrdGT || p.Value != 100 {
		t.Fatalf("got %+v", p)
	}
	if err := p.AssertValue(101); err != nil {
		t.Fatalf("101 should satisfy >100: %v", err)
	}
	if err := p.AssertValue(100); err == nil {
		t.Fatal("100 should not satisfy >100")
	}
}

func TestParsePredicate_LessThan(t *testing.T) {
	p := ParsePredicate("<100")
	if p.Ord != OrdLT || p.Value != 100 {
		t.Fatalf("got %+v", p)
	}
}

func TestParsePredicate_Equal(t *testing.T) {
	p := ParsePredicate("=100")
	if p.Ord != OrdEQ || p.Value != 100 {
		t.Fatalf("got %+v", p)
	}
}

func TestParsePredicate_LessOrEqual(t *testing.T) {
	p := ParsePredicate("=<100")
	if p.Ord != OrdLE || p.Value != 100 {
		t.Fatalf("got %+v", p)
	}
	if err := p.AssertValue(99); err != nil {
		t.Fatalf("99 should satisfy =<100: %v", err)
	}
	if err := p.AssertValue(100); err != nil {
		t.Fatalf("100 should satisfy =<100: %v", err)
	}
	if err := p.AssertValue(101); err == nil {
		t.Fatal("101 should not satisfy =<100")
	}
}

func TestParsePredicate_GreaterOrEqual(t *testing.T) {
	p := ParsePredicate("=>100")
	if p.Ord != OrdGE || p.Value != 100 {
		t.Fatalf("got %+v", p)
	}
	if err := p.AssertValue(101); err != nil {
		t.Fatalf("101 should satisfy =>100: %v", err)
	}
	if err := p.AssertValue(100); err != nil {
		t.Fatalf("100 should satisfy =>100: %v", err)
	}
	if err := p.AssertValue(99); err == nil {
		t.Fatal("99 should not satisfy =>100")
	}
}

func TestParsePredicate_Unknown(t *testing.T) {
	p := ParsePredicate("bogus")
	if p.Ord != OrdUnknown {
		t.Fatalf("got %+v", p)
	}
	if err := p.AssertValue(0); err == nil {
		t.Fatal("unknown ordering should never be satisfiable")
	}
}
