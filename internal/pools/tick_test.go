package pools

import (
	"math/big"
	"reflect"
	"testing"
)

func bitmapWithBits(bits ...int) *big.Int {
	bitmap := new(big.Int)
	for _, bit := range bits {
		bitmap.SetBit(bitmap, bit, 1)
	}
	return bitmap
}

func TestTicksFromBitmaps(t *testing.T) {
	bitmaps := []WordBitmap{{Word: 4, Bitmap: bitmapWithBits(10)}}

	got := TicksFromBitmaps(bitmaps, 60)
	if want := []int32{61560}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ticks = %v, want %v", got, want)
	}
}

func TestTicksFromBitmapsNegativeWord(t *testing.T) {
	bitmaps := []WordBitmap{{Word: -4, Bitmap: bitmapWithBits(10)}}

	// (-4*256 + 10) * 60 = -60840: the bit offset still adds, it does not
	// mirror, for negative words.
	got := TicksFromBitmaps(bitmaps, 60)
	if want := []int32{-60840}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ticks = %v, want %v", got, want)
	}
}

func TestTicksFromBitmapsOrderedAcrossWords(t *testing.T) {
	bitmaps := []WordBitmap{
		{Word: -1, Bitmap: bitmapWithBits(255)},
		{Word: 0, Bitmap: bitmapWithBits(0, 3)},
	}

	got := TicksFromBitmaps(bitmaps, 10)
	if want := []int32{-10, 0, 30}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ticks = %v, want %v", got, want)
	}
}

func TestTicksFromBitmapsEmpty(t *testing.T) {
	bitmaps := []WordBitmap{
		{Word: 2, Bitmap: new(big.Int)},
		{Word: 3, Bitmap: nil},
	}

	if got := TicksFromBitmaps(bitmaps, 60); len(got) != 0 {
		t.Fatalf("ticks = %v, want none", got)
	}
}
