package code

import "testing"

func TestTruthiness(t *testing.T) {
	tests := []struct {
		v    Value
		want bool
	}{
		{I32(0), false},
		{I32(1), true},
		{I32(-1), true},
		{F64(0), false},
		{F64(0.1), true},
		{Bool(false), false},
		{Bool(true), true},
		{Char(0), false},
		{Char('a'), true},
		{String(""), false},
		{String("x"), true},
		{Container(nil), false},
		{Container([]Value{I32(0)}), true},
		{HashValue(Hash{}), false},
	}
	for _, tt := range tests {
		if got := tt.v.IsTruthy(); got != tt.want {
			t.Errorf("%s.IsTruthy() = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestAndOr(t *testing.T) {
	f, tr := Bool(false), Bool(true)
	if got := f.And(tr); !got.Equal(f) {
		t.Errorf("false.And(true) = %v, want false", got)
	}
	if got := tr.And(tr); !got.Equal(tr) {
		t.Errorf("true.And(true) = %v, want true", got)
	}
	if got := tr.Or(f); !got.Equal(tr) {
		t.Errorf("true.Or(false) = %v, want true", got)
	}
	if got := f.Or(tr); !got.Equal(tr) {
		t.Errorf("false.Or(true) = %v, want true", got)
	}
}

func TestArithSameVariant(t *testing.T) {
	sum, err := I32(6).Add(I32(7))
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Equal(I32(13)) {
		t.Errorf("6+7 = %s, want 13", sum)
	}
}

func TestArithCrossVariantFails(t *testing.T) {
	if _, err := I32(1).Add(U32(1)); err == nil {
		t.Error("expected error adding i32 to u32, got nil")
	}
}

func TestStringConcatAndRepeat(t *testing.T) {
	cat, err := String("foo").Add(String("bar"))
	if err != nil {
		t.Fatal(err)
	}
	if cat.AsString() != "foobar" {
		t.Errorf("concat = %q, want foobar", cat.AsString())
	}
	rep, err := String("ab").Mul(I32(3))
	if err != nil {
		t.Fatal(err)
	}
	if rep.AsString() != "ababab" {
		t.Errorf("repeat = %q, want ababab", rep.AsString())
	}
}

func TestCompareCrossVariantFails(t *testing.T) {
	if _, err := I32(1).Compare(Char('a')); err == nil {
		t.Error("expected error comparing i32 to char, got nil")
	}
}

func TestNegNot(t *testing.T) {
	n, err := I32(5).Neg()
	if err != nil || !n.Equal(I32(-5)) {
		t.Errorf("neg(5) = %v, %v; want -5, nil", n, err)
	}
	nb, err := Bool(true).Not()
	if err != nil || !nb.Equal(Bool(false)) {
		t.Errorf("not(true) = %v, %v; want false, nil", nb, err)
	}
	if _, err := String("x").Neg(); err == nil {
		t.Error("expected error negating a string, got nil")
	}
}
