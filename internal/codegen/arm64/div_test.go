// div_test.go - 常量除数魔数推导测试
//
// 逐步模拟发射序列（高半积、修正、移位、符号补偿），
// 对边界被除数核对与截断除法的一致性。

package arm64

import (
	"math"
	"math/bits"
	"testing"
)

// emulateMagicDiv32 按发射序列模拟 32 位魔数除法
func emulateMagicDiv32(dividend, divisor int32) int32 {
	magic, shift := magic32(divisor)

	// smull + lsr #32：取 64 位积的高 32 位
	t := int32(int64(dividend) * int64(magic) >> 32)

	if divisor > 0 && magic < 0 {
		t += dividend
	} else if divisor < 0 && magic > 0 {
		t -= dividend
	}
	if shift != 0 {
		t >>= uint(shift)
	}
	return t - (t >> 31)
}

// smulh64 128 位有符号积的高 64 位
func smulh64(a, b int64) int64 {
	hi, _ := bits.Mul64(uint64(a), uint64(b))
	if a < 0 {
		hi -= uint64(b)
	}
	if b < 0 {
		hi -= uint64(a)
	}
	return int64(hi)
}

// emulateMagicDiv64 按发射序列模拟 64 位魔数除法
func emulateMagicDiv64(dividend, divisor int64) int64 {
	magic, shift := magic64(divisor)

	t := smulh64(dividend, magic)

	if divisor > 0 && magic < 0 {
		t += dividend
	} else if divisor < 0 && magic > 0 {
		t -= dividend
	}
	if shift != 0 {
		t >>= uint(shift)
	}
	return t - (t >> 63)
}

// TestMagicDiv32 32 位魔数除法与截断除法一致
func TestMagicDiv32(t *testing.T) {
	divisors := []int32{3, -3, 5, 7, -7, 9, 10, 100, 1000, 641, -641, math.MaxInt32, math.MinInt32 + 1}
	dividends := []int32{
		0, 1, -1, 2, -2, 6, 7, 8, -6, -7, -8,
		999, -999, 12345678, -12345678,
		math.MaxInt32, math.MinInt32, math.MinInt32 + 1,
	}
	for _, d := range divisors {
		for _, n := range dividends {
			want := n / d
			if got := emulateMagicDiv32(n, d); got != want {
				t.Errorf("magic32: %d / %d = %d, want %d", n, d, got, want)
			}
		}
	}
}

// TestMagicDiv64 64 位魔数除法与截断除法一致
func TestMagicDiv64(t *testing.T) {
	divisors := []int64{3, -3, 7, -7, 10, 1000, 1<<40 + 1, -(1<<40 + 1), math.MaxInt64}
	dividends := []int64{
		0, 1, -1, 6, 7, 8, -8,
		1 << 33, -(1 << 33), 123456789012345, -123456789012345,
		math.MaxInt64, math.MinInt64, math.MinInt64 + 1,
	}
	for _, d := range divisors {
		for _, n := range dividends {
			want := n / d
			if got := emulateMagicDiv64(n, d); got != want {
				t.Errorf("magic64: %d / %d = %d, want %d", n, d, got, want)
			}
		}
	}
}

// TestMagicDiv32Exhaustive 小除数对连续区间穷举
func TestMagicDiv32Exhaustive(t *testing.T) {
	for _, d := range []int32{3, 7, -7, 10} {
		for n := int32(-4096); n <= 4096; n++ {
			if got, want := emulateMagicDiv32(n, d), n/d; got != want {
				t.Fatalf("magic32: %d / %d = %d, want %d", n, d, got, want)
			}
		}
	}
}

// TestIsPowerOfTwoAbs 绝对值 2 的幂判定
func TestIsPowerOfTwoAbs(t *testing.T) {
	tests := []struct {
		imm  int64
		want bool
	}{
		{1, true}, {2, true}, {8, true}, {-8, true}, {1 << 40, true},
		{0, false}, {3, false}, {6, false}, {-6, false},
	}
	for _, tt := range tests {
		if got := isPowerOfTwoAbs(tt.imm); got != tt.want {
			t.Errorf("isPowerOfTwoAbs(%d) = %v, want %v", tt.imm, got, tt.want)
		}
	}
}
