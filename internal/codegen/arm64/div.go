// div.go - 常量除数的除法/取余合成
//
// 除数为编译期常量时不用 SDIV：
//   0        不发射（前置的显式除零检查必然命中）
//   ±1       移动或取负
//   ±2^k     移位 + 负被除数修正（被除数可证非负时省略修正）
//   其它     定点魔数倒数乘法（Hacker's Delight）
//
// 取余一律由商导出 rem = dividend - quot*divisor，
// 保证与截断除法语义完全一致。

package arm64

import (
	"math/bits"

	"go.uber.org/zap"

	"github.com/quasarlang/quasar/internal/codegen"
	"github.com/quasarlang/quasar/internal/hir"
)

// ============================================================================
// 魔数推导
// ============================================================================

// magic32 32 位有符号魔数。
// 返回的 magic 溢出符号域与否决定发射端是否补 add/sub 修正。
func magic32(divisor int32) (magic int32, shift int) {
	const exp = uint32(1) << 31

	absD := uint32(divisor)
	if divisor < 0 {
		absD = uint32(-divisor)
	}
	t := exp + uint32(divisor)>>31
	nc := t - 1 - t%absD

	p := 31
	q1 := exp / nc
	r1 := exp - q1*nc
	q2 := (exp - 1) / absD
	r2 := (exp - 1) - q2*absD
	var delta uint32
	for {
		p++
		q1 *= 2
		r1 *= 2
		if r1 >= nc {
			q1++
			r1 -= nc
		}
		q2 *= 2
		r2 *= 2
		if r2 >= absD {
			q2++
			r2 -= absD
		}
		delta = absD - r2
		if !(q1 < delta || (q1 == delta && r1 == 0)) {
			break
		}
	}
	magic = int32(q2 + 1)
	if divisor < 0 {
		magic = -magic
	}
	return magic, p - 32
}

// magic64 64 位有符号魔数
func magic64(divisor int64) (magic int64, shift int) {
	const exp = uint64(1) << 63

	absD := uint64(divisor)
	if divisor < 0 {
		absD = uint64(-divisor)
	}
	t := exp + uint64(divisor)>>63
	nc := t - 1 - t%absD

	p := 63
	q1 := exp / nc
	r1 := exp - q1*nc
	q2 := (exp - 1) / absD
	r2 := (exp - 1) - q2*absD
	var delta uint64
	for {
		p++
		q1 *= 2
		r1 *= 2
		if r1 >= nc {
			q1++
			r1 -= nc
		}
		q2 *= 2
		r2 *= 2
		if r2 >= absD {
			q2++
			r2 -= absD
		}
		delta = absD - r2
		if !(q1 < delta || (q1 == delta && r1 == 0)) {
			break
		}
	}
	magic = int64(q2 + 1)
	if divisor < 0 {
		magic = -magic
	}
	return magic, p - 64
}

// ============================================================================
// 发射
// ============================================================================

// GenerateDivRemConstantIntegral 常量除数的整型除法/取余
func (cg *CodeGeneratorARM64) GenerateDivRemConstantIntegral(in *hir.Instruction, isDiv bool) {
	locs := in.Locations
	out := Reg(locs.Output().RegisterID())
	dividend := Reg(locs.Input(0).RegisterID())
	is64 := in.Type.Is64Bit()

	var imm int64
	if is64 {
		imm = in.Inputs[1].LongValue()
	} else {
		imm = int64(in.Inputs[1].IntValue())
	}

	switch {
	case imm == 0:
		// 前置除零检查必然抛出，这里不发射任何代码

	case imm == 1 || imm == -1:
		cg.generateDivRemOneOrMinusOne(in, isDiv, out, dividend, imm, is64)

	case isPowerOfTwoAbs(imm):
		cg.generateDivRemPowerOfTwo(in, isDiv, out, dividend, imm, is64)

	default:
		cg.generateDivRemWithAnyConstant(in, isDiv, out, dividend, imm, is64)
		codegen.GlobalStats.DivByConstMagic.Inc()
	}
}

func isPowerOfTwoAbs(imm int64) bool {
	abs := imm
	if abs < 0 {
		abs = -abs
	}
	return abs > 0 && abs&(abs-1) == 0
}

func (cg *CodeGeneratorARM64) generateDivRemOneOrMinusOne(in *hir.Instruction, isDiv bool, out, dividend Reg, imm int64, is64 bool) {
	if !isDiv {
		// n % ±1 == 0
		cg.asm.MovRegReg(is64, out, ZR)
		return
	}
	if imm == 1 {
		if out != dividend {
			cg.asm.MovRegReg(is64, out, dividend)
		}
	} else {
		cg.asm.Neg(is64, out, dividend)
	}
}

// generateDivRemPowerOfTwo 2^k 除数走移位。
// 负被除数需要先加 2^k - 1 修正才能截断向零；被除数可证非负
// 时修正整个省掉（最小可表示整数的移位公式本身就是精确的）。
func (cg *CodeGeneratorARM64) generateDivRemPowerOfTwo(in *hir.Instruction, isDiv bool, out, dividend Reg, imm int64, is64 bool) {
	abs := imm
	if abs < 0 {
		abs = -abs
	}
	ctz := uint32(bits.TrailingZeros64(uint64(abs)))

	quot := out
	if !isDiv {
		quot = IP0
	}

	if in.Inputs[0].NonNegative {
		cg.asm.AsrImm(is64, quot, dividend, ctz)
	} else {
		// add ip1, dividend, #abs-1; cmp dividend, #0;
		// csel quot, ip1, dividend, lt; asr quot, quot, #ctz
		cg.asm.AddRegImm(is64, IP1, dividend, uint32(abs-1))
		cg.asm.CmpRegImm(is64, dividend, 0)
		cg.asm.Csel(is64, quot, IP1, dividend, LT)
		cg.asm.AsrImm(is64, quot, quot, ctz)
	}
	if imm < 0 {
		cg.asm.Neg(is64, quot, quot)
	}

	if !isDiv {
		// rem = dividend - quot * imm
		cg.emitRemainderFromQuotient(out, quot, dividend, imm, is64)
	}
}

// generateDivRemWithAnyConstant 魔数倒数乘法。
// 高半积取商；magic 推导期溢出符号域时补一次被除数加/减修正；
// 随后可选算术右移；最后按符号补 1（商为负时）。
// 被除数可证非负且除数为正时走无符号快路径，符号修正整段省略。
func (cg *CodeGeneratorARM64) generateDivRemWithAnyConstant(in *hir.Instruction, isDiv bool, out, dividend Reg, imm int64, is64 bool) {
	var magic int64
	var shift int
	if is64 {
		magic, shift = magic64(imm)
	} else {
		m32, s := magic32(int32(imm))
		magic, shift = int64(m32), s
	}

	unsignedFast := imm > 0 && in.Inputs[0].NonNegative

	temp := IP0
	if is64 {
		cg.asm.MovImm64(temp, uint64(magic))
		cg.asm.Smulh(temp, dividend, temp)
	} else {
		cg.asm.MovImm32(temp, uint32(int32(magic)))
		// 32x32 → 64，高 32 位即 smulh 的 32 位等价
		cg.asm.Smull(temp, dividend, temp)
		cg.asm.LsrImm(true, temp, temp, 32)
	}

	if imm > 0 && magic < 0 {
		cg.asm.AddRegReg(is64, temp, temp, dividend)
	} else if imm < 0 && magic > 0 {
		cg.asm.SubRegReg(is64, temp, temp, dividend)
	}

	if shift != 0 {
		cg.asm.AsrImm(is64, temp, temp, uint32(shift))
	}

	quot := out
	if !isDiv {
		quot = IP0
	}
	if unsignedFast {
		// 非负被除数：符号位恒 0，增量修正省略
		if quot != temp {
			cg.asm.MovRegReg(is64, quot, temp)
		}
	} else {
		// quot = temp - (temp >> width-1)，即商为负时 +1
		signBit := uint32(31)
		if is64 {
			signBit = 63
		}
		cg.asm.SubShiftedAsr(is64, quot, temp, temp, signBit)
	}

	if !isDiv {
		cg.emitRemainderFromQuotient(out, quot, dividend, imm, is64)
	}
}

// emitRemainderFromQuotient rem = dividend - quot*divisor
func (cg *CodeGeneratorARM64) emitRemainderFromQuotient(out, quot, dividend Reg, imm int64, is64 bool) {
	if quot == IP1 || dividend == IP1 {
		cg.base.Logger.Fatal("取余合成与暂存器冲突",
			zap.String("quot", quot.String()),
			zap.String("dividend", dividend.String()))
	}
	cg.asm.MovImm64(IP1, uint64(imm))
	cg.asm.Msub(is64, out, quot, IP1, dividend)
}
