// typecheck.go - InstanceOf / CheckCast 状态机
//
// 两个操作共用同一套按 TypeCheckKind 分派的遍历代码，
// 空值约定不同：instanceof 的空接收者恒为 false（可静态排除时
// 连加载都不发射），check-cast 的空接收者恒通过（null 可赋给任意
// 引用类型），二者都绕开慢路径。
//
// 父类链与接口表的每一跳都是堆引用加载，一律走读屏障原语而不是
// 裸 ldr。位串检查例外：它只消费类对象里的不可变类型检查位，
// from-space 副本上的这些位与 to-space 一致，裸加载即可。

package arm64

import (
	"math/bits"

	"go.uber.org/zap"

	"github.com/quasarlang/quasar/internal/bytecode"
	"github.com/quasarlang/quasar/internal/hir"
)

// VisitInstanceOf instanceof 判定，结果写 0/1
func (cg *CodeGeneratorARM64) VisitInstanceOf(in *hir.Instruction) {
	locs := in.Locations
	obj := Reg(locs.Input(0).RegisterID())
	cls := Reg(locs.Input(1).RegisterID())
	out := Reg(locs.Output().RegisterID())
	temp := Reg(locs.Temp(0).RegisterID())

	done := NewLabel()
	isFalse := NewLabel()

	if in.InputAt(0).CanBeNull {
		cg.asm.Cbz(false, obj, isFalse)
	}

	switch in.CheckKind {
	case hir.CheckExact:
		cg.loadObjectClass(temp, obj)
		cg.asm.CmpRegReg(false, temp, cls)
		cg.asm.Cset(false, out, EQ)
		cg.asm.B(done)

	case hir.CheckAbstractClass:
		// 抽象类没有实例，对象的确切类不可能命中，直接从父类走起
		cg.loadObjectClass(temp, obj)
		loop := NewLabel()
		cg.asm.Bind(loop)
		cg.loadSuperClass(temp, temp)
		cg.asm.Cbz(false, temp, isFalse)
		cg.asm.CmpRegReg(false, temp, cls)
		cg.asm.Bcond(NE, loop)
		cg.asm.MovImm32(out, 1)
		cg.asm.B(done)

	case hir.CheckClassHierarchy:
		cg.loadObjectClass(temp, obj)
		loop := NewLabel()
		cg.asm.Bind(loop)
		cg.asm.CmpRegReg(false, temp, cls)
		cg.asm.Cset(false, out, EQ)
		cg.asm.Bcond(EQ, done)
		cg.loadSuperClass(temp, temp)
		cg.asm.Cbnz(false, temp, loop)
		cg.asm.B(done)

	case hir.CheckArrayObject:
		// 对象数组：元素类型存在且非基元即通过
		cg.loadObjectClass(temp, obj)
		cg.loadComponentType(temp, temp)
		cg.asm.Cbz(false, temp, isFalse)
		cg.asm.LdrH(out, temp, bytecode.ClassPrimitiveTypeOffset)
		cg.asm.CmpRegImm(false, out, 0)
		cg.asm.Cset(false, out, EQ)
		cg.asm.B(done)

	case hir.CheckArray:
		// 确切比较失败不直接判负，交给慢路径做完整判定
		slow := NewTypeCheckSlowPath(cg, in, false)
		cg.loadObjectClass(temp, obj)
		cg.asm.CmpRegReg(false, temp, cls)
		cg.asm.Bcond(NE, slow.Entry())
		cg.asm.MovImm32(out, 1)
		cg.asm.Bind(slow.Exit())
		cg.asm.B(done)

	case hir.CheckInterface:
		iftab := Reg(locs.Temp(1).RegisterID())
		cg.loadObjectClass(temp, obj)
		cg.loadIfTable(iftab, temp)
		cg.asm.LdrW(temp, iftab, bytecode.IfTableLengthOffset)
		loop := NewLabel()
		cg.asm.Bind(loop)
		cg.asm.Cbz(false, temp, isFalse)
		cg.asm.LdrW(out, iftab, bytecode.IfTableDataOffset+bytecode.IfTableInterfaceOffset)
		cg.asm.CmpRegReg(false, out, cls)
		cg.asm.AddRegImm(true, iftab, iftab, bytecode.IfTableEntrySize)
		cg.asm.SubRegImm(false, temp, temp, 2)
		cg.asm.Bcond(NE, loop)
		cg.asm.MovImm32(out, 1)
		cg.asm.B(done)

	case hir.CheckUnresolved:
		slow := NewTypeCheckSlowPath(cg, in, false)
		cg.asm.B(slow.Entry())
		cg.asm.Bind(slow.Exit())
		cg.asm.B(done)

	case hir.CheckBitstring:
		cg.emitBitstringCompare(temp, obj, in)
		cg.asm.Cset(false, out, EQ)
		cg.asm.B(done)

	default:
		cg.base.Logger.Fatal("未知类型检查策略",
			zap.Int("kind", int(in.CheckKind)),
			zap.Int("instruction", in.ID))
	}

	cg.asm.Bind(isFalse)
	cg.asm.MovImm32(out, 0)
	cg.asm.Bind(done)
}

// VisitCheckCast check-cast 断言，失败抛出
func (cg *CodeGeneratorARM64) VisitCheckCast(in *hir.Instruction) {
	locs := in.Locations
	obj := Reg(locs.Input(0).RegisterID())
	cls := Reg(locs.Input(1).RegisterID())
	temp := Reg(locs.Temp(0).RegisterID())
	slow := NewTypeCheckSlowPath(cg, in, true)

	done := NewLabel()
	if in.InputAt(0).CanBeNull {
		cg.asm.Cbz(false, obj, done)
	}

	switch in.CheckKind {
	case hir.CheckExact, hir.CheckArray:
		cg.loadObjectClass(temp, obj)
		cg.asm.CmpRegReg(false, temp, cls)
		cg.asm.Bcond(NE, slow.Entry())

	case hir.CheckAbstractClass:
		cg.loadObjectClass(temp, obj)
		loop := NewLabel()
		cg.asm.Bind(loop)
		cg.loadSuperClass(temp, temp)
		cg.asm.Cbz(false, temp, slow.Entry())
		cg.asm.CmpRegReg(false, temp, cls)
		cg.asm.Bcond(NE, loop)

	case hir.CheckClassHierarchy:
		cg.loadObjectClass(temp, obj)
		loop := NewLabel()
		cg.asm.Bind(loop)
		cg.asm.CmpRegReg(false, temp, cls)
		cg.asm.Bcond(EQ, done)
		cg.loadSuperClass(temp, temp)
		cg.asm.Cbnz(false, temp, loop)
		cg.asm.B(slow.Entry())

	case hir.CheckArrayObject:
		cg.loadObjectClass(temp, obj)
		cg.loadComponentType(temp, temp)
		cg.asm.Cbz(false, temp, slow.Entry())
		cg.asm.LdrH(temp, temp, bytecode.ClassPrimitiveTypeOffset)
		cg.asm.Cbnz(false, temp, slow.Entry())

	case hir.CheckInterface:
		iftab := Reg(locs.Temp(1).RegisterID())
		scratch := Reg(locs.Temp(2).RegisterID())
		cg.loadObjectClass(temp, obj)
		cg.loadIfTable(iftab, temp)
		cg.asm.LdrW(temp, iftab, bytecode.IfTableLengthOffset)
		loop := NewLabel()
		cg.asm.Bind(loop)
		cg.asm.Cbz(false, temp, slow.Entry())
		cg.asm.LdrW(scratch, iftab, bytecode.IfTableDataOffset+bytecode.IfTableInterfaceOffset)
		cg.asm.CmpRegReg(false, scratch, cls)
		cg.asm.AddRegImm(true, iftab, iftab, bytecode.IfTableEntrySize)
		cg.asm.SubRegImm(false, temp, temp, 2)
		cg.asm.Bcond(NE, loop)

	case hir.CheckUnresolved:
		cg.asm.B(slow.Entry())

	case hir.CheckBitstring:
		cg.emitBitstringCompare(temp, obj, in)
		cg.asm.Bcond(NE, slow.Entry())

	default:
		cg.base.Logger.Fatal("未知类型检查策略",
			zap.Int("kind", int(in.CheckKind)),
			zap.Int("instruction", in.ID))
	}

	cg.asm.Bind(slow.Exit())
	cg.asm.Bind(done)
}

// ============================================================================
// 引用加载原语
// ============================================================================

func (cg *CodeGeneratorARM64) loadObjectClass(dest, obj Reg) {
	cg.GenerateFieldLoadWithBakerReadBarrier(dest, obj, bytecode.ObjectClassOffset)
}

func (cg *CodeGeneratorARM64) loadSuperClass(dest, cls Reg) {
	cg.GenerateFieldLoadWithBakerReadBarrier(dest, cls, bytecode.ClassSuperClassOffset)
}

func (cg *CodeGeneratorARM64) loadComponentType(dest, cls Reg) {
	cg.GenerateFieldLoadWithBakerReadBarrier(dest, cls, bytecode.ClassComponentTypeOffset)
}

func (cg *CodeGeneratorARM64) loadIfTable(dest, cls Reg) {
	cg.GenerateFieldLoadWithBakerReadBarrier(dest, cls, bytecode.ClassIfTableOffset)
}

// emitBitstringCompare 抽出类状态字里的路径位串并与目标路径比较，
// 比较结果留在条件码里由调用处消费
func (cg *CodeGeneratorARM64) emitBitstringCompare(temp, obj Reg, in *hir.Instruction) {
	width := uint32(bits.Len32(in.PathMask))
	if width == 0 || in.PathToRoot&^in.PathMask != 0 {
		cg.base.Logger.Fatal("位串检查的路径编码不合法",
			zap.Uint32("path", in.PathToRoot),
			zap.Uint32("mask", in.PathMask),
			zap.Int("instruction", in.ID))
	}
	cg.asm.LdrW(temp, obj, bytecode.ObjectClassOffset)
	cg.asm.LdrW(temp, temp, bytecode.ClassBitstringOffset)
	cg.asm.Ubfx(false, temp, temp, 0, width)
	cg.asm.CmpRegImm(false, temp, in.PathToRoot)
}
