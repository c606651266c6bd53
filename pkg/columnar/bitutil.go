package columnar

// BytesForBits returns the number of bytes needed to hold n bits
func BytesForBits(n int64) int64 {
	return (n + 7) / 8
}

// BitIsSet reports whether bit i of an LSB-ordered bitmap is set
func BitIsSet(bitmap []byte, i int64) bool {
	return bitmap[i/8]&(1<<uint(i%8)) != 0
}

// SetBit sets bit i of an LSB-ordered bitmap
func SetBit(bitmap []byte, i int64) {
	bitmap[i/8] |= 1 << uint(i%8)
}

// AllValidBitmap returns a bitmap of BytesForBits(n) bytes with every bit set
func AllValidBitmap(n int64) []byte {
	buf := make([]byte, BytesForBits(n))
	for i := range buf {
		buf[i] = 0xFF
	}
	return buf
}

// CountUnset returns how many of the first n bits of bitmap are zero
func CountUnset(bitmap []byte, n int64) int64 {
	var nulls int64
	for i := int64(0); i < n; i++ {
		if !BitIsSet(bitmap, i) {
			nulls++
		}
	}
	return nulls
}

func bitmapFromBools(valid []bool) ([]byte, int64) {
	if valid == nil {
		return nil, 0
	}
	n := int64(len(valid))
	bitmap := make([]byte, BytesForBits(n))
	var nulls int64
	for i, ok := range valid {
		if ok {
			SetBit(bitmap, int64(i))
		} else {
			nulls++
		}
	}
	if nulls == 0 {
		return nil, 0
	}
	return bitmap, nulls
}
