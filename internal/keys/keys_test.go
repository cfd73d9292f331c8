package keys

import "testing"

func TestSortByWeight_Descending(t *testing.T) {
	k := []Key{{Val: 1}, {Val: 5}, {Val: 3}}
	SortByWeight(k)
	for i := 1; i < len(k); i++ {
		if k[i].Val > k[i-1].Val {
			t.Fatalf("not descending at %d: %v then %v", i, k[i-1].Val, k[i].Val)
		}
	}
}

func TestSortByWeight_StableOnTies(t *testing.T) {
	k := []Key{
		{Band: 0, Val: 5},
		{Band: 1, Val: 5},
		{Band: 2, Val: 5},
	}
	SortByWeight(k)
	for i, want := range []int{0, 1, 2} {
		if k[i].Band != want {
			t.Fatalf("equal-weight keys reordered: position %d has Band %d, want %d", i, k[i].Band, want)
		}
	}
}

func TestSortByPosition_ChannelMajor(t *testing.T) {
	const log2BlockSize = 4 // blockSize = 16
	k := []Key{
		{Chan: 1, Band: 2},
		{Chan: 0, Band: 10},
		{Chan: 0, Band: 1},
		{Chan: 1, Band: 0},
	}
	SortByPosition(k, log2BlockSize)

	want := []Key{
		{Chan: 0, Band: 1},
		{Chan: 0, Band: 10},
		{Chan: 1, Band: 0},
		{Chan: 1, Band: 2},
	}
	for i, w := range want {
		if k[i].Chan != w.Chan || k[i].Band != w.Band {
			t.Fatalf("position %d: got {Chan:%d Band:%d}, want {Chan:%d Band:%d}", i, k[i].Chan, k[i].Band, w.Chan, w.Band)
		}
	}
}
