package mathx

import "testing"

func TestSplit(t *testing.T) {
	cases := []struct{ v, cell, local int }{
		{0, 0, 0}, {15, 0, 15}, {16, 1, 0}, {-1, -1, 15}, {-16, -1, 0}, {-17, -2, 15},
	}
	for _, c := range cases {
		cell, local := Split(c.v, 16)
		if cell != c.cell || local != c.local {
			t.Fatalf("Split(%d, 16) = %d, %d; want %d, %d", c.v, cell, local, c.cell, c.local)
		}
	}
}

func TestChebyshev(t *testing.T) {
	cases := []struct{ ax, az, bx, bz, want int }{
		{3, -2, 3, -2, 0},
		{0, 0, -5, 3, 5},
		{1, 1, 2, -3, 4},
	}
	for _, c := range cases {
		if got := Chebyshev(c.ax, c.az, c.bx, c.bz); got != c.want {
			t.Fatalf("Chebyshev(%d,%d,%d,%d) = %d; want %d", c.ax, c.az, c.bx, c.bz, got, c.want)
		}
	}
}

func TestHashesAreStable(t *testing.T) {
	if Hash2(7, -3, 9) != Hash2(7, -3, 9) {
		t.Fatalf("Hash2 not deterministic")
	}
	if Hash2(7, -3, 9) == Hash2(8, -3, 9) {
		t.Fatalf("Hash2 ignores x")
	}
	if Hash3(1, 0, 1, 0) == Hash3(1, 0, 0, 1) {
		t.Fatalf("Hash3 ignores argument order")
	}
}
