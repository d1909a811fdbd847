// intrinsics.go - 内建方法的内联发射
//
// 识别出的内建方法直接长出机器码，越过整个调用约定。
// 发射不了的组合退回普通调用并计数：退回是正确性无损的，
// 计数器只用来发现优化机会流失。

package arm64

import (
	"github.com/quasarlang/quasar/internal/bytecode"
	"github.com/quasarlang/quasar/internal/codegen"
	"github.com/quasarlang/quasar/internal/hir"
)

// TryEmitIntrinsic 尝试内联发射，返回 false 走普通调用
func (cg *CodeGeneratorARM64) TryEmitIntrinsic(in *hir.Instruction) bool {
	if in.Invoke.Intrinsic == hir.IntrinsicNone {
		return false
	}
	locs := in.Locations
	if !locs.Intrinsified {
		codegen.GlobalStats.IntrinsicFallback.Inc()
		return false
	}

	switch in.Invoke.Intrinsic {
	case hir.IntrinsicStringLength:
		cg.asm.LdrW(Reg(locs.Output().RegisterID()),
			Reg(locs.Input(0).RegisterID()), bytecode.StringLengthOffset)
		return true

	case hir.IntrinsicStringCharAt:
		// 越界检查由上游显式 BoundsCheck 指令负责
		out := Reg(locs.Output().RegisterID())
		str := Reg(locs.Input(0).RegisterID())
		index := Reg(locs.Input(1).RegisterID())
		cg.asm.Uxtw(IP0, index)
		cg.asm.AddShifted(true, IP0, str, IP0, 1)
		cg.asm.LdrH(out, IP0, bytecode.StringValueOffset)
		return true

	case hir.IntrinsicMathAbsInt:
		out := Reg(locs.Output().RegisterID())
		src := Reg(locs.Input(0).RegisterID())
		cg.asm.CmpRegImm(false, src, 0)
		cg.asm.Cneg(false, out, src, LT)
		return true

	case hir.IntrinsicMathMinInt:
		out := Reg(locs.Output().RegisterID())
		a := Reg(locs.Input(0).RegisterID())
		b := Reg(locs.Input(1).RegisterID())
		cg.asm.CmpRegReg(false, a, b)
		cg.asm.Csel(false, out, a, b, LT)
		return true

	case hir.IntrinsicMathMaxInt:
		out := Reg(locs.Output().RegisterID())
		a := Reg(locs.Input(0).RegisterID())
		b := Reg(locs.Input(1).RegisterID())
		cg.asm.CmpRegReg(false, a, b)
		cg.asm.Csel(false, out, a, b, GT)
		return true
	}

	codegen.GlobalStats.IntrinsicFallback.Inc()
	return false
}
