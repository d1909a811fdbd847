// visitors.go - 指令分发
//
// 按 Kind 做 tagged dispatch。每条指令只信任自己的 Summary：
// 寄存器分配器已把输入/输出钉进位置，这里不做任何分配决策。
// IP0/IP1 是发射期临时寄存器，跨运行时调用不保值。

package arm64

import (
	"go.uber.org/zap"

	"github.com/quasarlang/quasar/internal/bytecode"
	"github.com/quasarlang/quasar/internal/codegen"
	"github.com/quasarlang/quasar/internal/hir"
	"github.com/quasarlang/quasar/internal/locations"
	"github.com/quasarlang/quasar/internal/runtime"
)

// EmitInstruction 发射单条指令
func (cg *CodeGeneratorARM64) EmitInstruction(in *hir.Instruction) {
	switch in.Kind {
	case hir.KindNop, hir.KindPhi,
		hir.KindIntConstant, hir.KindLongConstant,
		hir.KindFloatConstant, hir.KindDoubleConstant, hir.KindNullConstant:
		// 常量与 phi 不占指令，由使用处的移动物化

	case hir.KindAdd, hir.KindSub, hir.KindMul:
		cg.visitBinaryArith(in)
	case hir.KindNeg:
		cg.visitNeg(in)
	case hir.KindDiv:
		cg.visitDiv(in)
	case hir.KindRem:
		cg.visitRem(in)

	case hir.KindAnd, hir.KindOr, hir.KindXor:
		cg.visitBinaryLogic(in)
	case hir.KindNot:
		locs := in.Locations
		cg.asm.Mvn(in.Type.Is64Bit(),
			Reg(locs.Output().RegisterID()), cg.gpInput(in, 0))
	case hir.KindShl, hir.KindShr, hir.KindUShr:
		cg.visitShift(in)

	case hir.KindCondition:
		cg.visitCondition(in)
	case hir.KindGoto:
		cg.visitGoto(in)
	case hir.KindIf:
		cg.visitIf(in)
	case hir.KindReturn, hir.KindReturnVoid:
		cg.GenerateFrameExit()

	case hir.KindInvokeStatic:
		cg.visitInvokeStatic(in)
	case hir.KindInvokeVirtual:
		cg.visitInvokeVirtual(in)
	case hir.KindInvokeInterface:
		cg.visitInvokeInterface(in)

	case hir.KindNewInstance:
		cg.visitNewInstance(in)
	case hir.KindNewArray:
		cg.visitNewArray(in)
	case hir.KindArrayLength:
		locs := in.Locations
		cg.asm.LdrW(Reg(locs.Output().RegisterID()),
			Reg(locs.Input(0).RegisterID()), bytecode.ArrayLengthOffset)
	case hir.KindArrayGet:
		cg.visitArrayGet(in)
	case hir.KindArraySet:
		cg.visitArraySet(in)
	case hir.KindFieldGet:
		cg.visitFieldGet(in)
	case hir.KindFieldSet:
		cg.visitFieldSet(in)

	case hir.KindNullCheck:
		cg.visitNullCheck(in)
	case hir.KindBoundsCheck:
		cg.visitBoundsCheck(in)
	case hir.KindDivZeroCheck:
		cg.visitDivZeroCheck(in)
	case hir.KindClinitCheck:
		cg.visitClinitCheck(in)
	case hir.KindSuspendCheck:
		// 循环头的检查由回边的 goto 代发
		if !in.Block.IsLoopHeader {
			cg.visitSuspendCheck(in, nil)
		}
	case hir.KindDeoptimize:
		cg.visitDeoptimize(in)

	case hir.KindInstanceOf:
		cg.VisitInstanceOf(in)
	case hir.KindCheckCast:
		cg.VisitCheckCast(in)
	case hir.KindLoadClass:
		cg.visitLoadClass(in)
	case hir.KindLoadString:
		cg.visitLoadString(in)

	case hir.KindMonitorOp:
		cg.visitMonitorOp(in)

	case hir.KindParallelMove:
		moves := make([]*codegen.MoveOperands, 0, len(in.Moves))
		for _, m := range in.Moves {
			moves = append(moves, &codegen.MoveOperands{
				Source: m.Source, Destination: m.Destination, Type: m.Type,
			})
		}
		cg.resolver.Resolve(moves)

	default:
		cg.base.Logger.Fatal("无法发射的指令种类",
			zap.String("kind", in.Kind.String()),
			zap.Int("instruction", in.ID))
	}
}

// ============================================================================
// 算术与逻辑
// ============================================================================

// gpInput 第 i 个输入的通用寄存器，常量输入经 IP1 物化
func (cg *CodeGeneratorARM64) gpInput(in *hir.Instruction, i int) Reg {
	loc := in.Locations.Input(i)
	if loc.IsConstant() {
		cg.asm.MovImm64(IP1, loc.ConstValue().Bits())
		return IP1
	}
	return Reg(loc.RegisterID())
}

func (cg *CodeGeneratorARM64) visitBinaryArith(in *hir.Instruction) {
	locs := in.Locations
	if in.Type.IsFloatingPoint() {
		isD := in.Type.Is64Bit()
		out := VReg(locs.Output().RegisterID())
		a := VReg(locs.Input(0).RegisterID())
		b := VReg(locs.Input(1).RegisterID())
		switch in.Kind {
		case hir.KindAdd:
			cg.asm.Fadd(isD, out, a, b)
		case hir.KindSub:
			cg.asm.Fsub(isD, out, a, b)
		case hir.KindMul:
			cg.asm.Fmul(isD, out, a, b)
		}
		return
	}

	is64 := in.Type.Is64Bit()
	out := Reg(locs.Output().RegisterID())
	a := Reg(locs.Input(0).RegisterID())

	// 小常量右操作数走立即数形式
	if rhs := locs.Input(1); rhs.IsConstant() && in.Kind != hir.KindMul {
		v := rhs.ConstValue().Bits()
		if v <= 4095 {
			if in.Kind == hir.KindAdd {
				cg.asm.AddRegImm(is64, out, a, uint32(v))
			} else {
				cg.asm.SubRegImm(is64, out, a, uint32(v))
			}
			return
		}
	}

	b := cg.gpInput(in, 1)
	switch in.Kind {
	case hir.KindAdd:
		cg.asm.AddRegReg(is64, out, a, b)
	case hir.KindSub:
		cg.asm.SubRegReg(is64, out, a, b)
	case hir.KindMul:
		cg.asm.Mul(is64, out, a, b)
	}
}

func (cg *CodeGeneratorARM64) visitNeg(in *hir.Instruction) {
	locs := in.Locations
	if in.Type.IsFloatingPoint() {
		cg.asm.Fneg(in.Type.Is64Bit(),
			VReg(locs.Output().RegisterID()), VReg(locs.Input(0).RegisterID()))
		return
	}
	cg.asm.Neg(in.Type.Is64Bit(),
		Reg(locs.Output().RegisterID()), Reg(locs.Input(0).RegisterID()))
}

func (cg *CodeGeneratorARM64) visitDiv(in *hir.Instruction) {
	locs := in.Locations
	if in.Type.IsFloatingPoint() {
		cg.asm.Fdiv(in.Type.Is64Bit(),
			VReg(locs.Output().RegisterID()),
			VReg(locs.Input(0).RegisterID()),
			VReg(locs.Input(1).RegisterID()))
		return
	}
	if in.InputAt(1).IsConstant() {
		cg.GenerateDivRemConstantIntegral(in, true)
		return
	}
	cg.asm.Sdiv(in.Type.Is64Bit(),
		Reg(locs.Output().RegisterID()),
		Reg(locs.Input(0).RegisterID()),
		Reg(locs.Input(1).RegisterID()))
}

func (cg *CodeGeneratorARM64) visitRem(in *hir.Instruction) {
	locs := in.Locations
	if in.Type.IsFloatingPoint() {
		// 浮点取余由上游降级为库调用，不应到达后端
		cg.base.Logger.Fatal("浮点取余到达指令发射", zap.Int("instruction", in.ID))
	}
	if in.InputAt(1).IsConstant() {
		cg.GenerateDivRemConstantIntegral(in, false)
		return
	}
	is64 := in.Type.Is64Bit()
	out := Reg(locs.Output().RegisterID())
	dividend := Reg(locs.Input(0).RegisterID())
	divisor := Reg(locs.Input(1).RegisterID())
	cg.asm.Sdiv(is64, IP0, dividend, divisor)
	cg.asm.Msub(is64, out, IP0, divisor, dividend)
}

func (cg *CodeGeneratorARM64) visitBinaryLogic(in *hir.Instruction) {
	locs := in.Locations
	is64 := in.Type.Is64Bit()
	out := Reg(locs.Output().RegisterID())
	a := Reg(locs.Input(0).RegisterID())
	b := cg.gpInput(in, 1)
	switch in.Kind {
	case hir.KindAnd:
		cg.asm.AndRegReg(is64, out, a, b)
	case hir.KindOr:
		cg.asm.OrrRegReg(is64, out, a, b)
	case hir.KindXor:
		cg.asm.EorRegReg(is64, out, a, b)
	}
}

func (cg *CodeGeneratorARM64) visitShift(in *hir.Instruction) {
	locs := in.Locations
	is64 := in.Type.Is64Bit()
	out := Reg(locs.Output().RegisterID())
	src := Reg(locs.Input(0).RegisterID())
	maxShift := uint32(31)
	if is64 {
		maxShift = 63
	}

	if rhs := locs.Input(1); rhs.IsConstant() {
		shift := uint32(rhs.ConstValue().Bits()) & maxShift
		switch in.Kind {
		case hir.KindShl:
			cg.asm.LslImm(is64, out, src, shift)
		case hir.KindShr:
			cg.asm.AsrImm(is64, out, src, shift)
		case hir.KindUShr:
			cg.asm.LsrImm(is64, out, src, shift)
		}
		return
	}

	amount := Reg(locs.Input(1).RegisterID())
	switch in.Kind {
	case hir.KindShl:
		cg.asm.LslReg(is64, out, src, amount)
	case hir.KindShr:
		cg.asm.AsrReg(is64, out, src, amount)
	case hir.KindUShr:
		cg.asm.LsrReg(is64, out, src, amount)
	}
}

// ============================================================================
// 比较与控制流
// ============================================================================

func condFor(c hir.CondKind) Cond {
	switch c {
	case hir.CondEQ:
		return EQ
	case hir.CondNE:
		return NE
	case hir.CondLT:
		return LT
	case hir.CondLE:
		return LE
	case hir.CondGT:
		return GT
	case hir.CondGE:
		return GE
	case hir.CondB:
		return LO
	case hir.CondBE:
		return LS
	case hir.CondA:
		return HI
	default:
		return HS
	}
}

// emitConditionFlags 发射比较并返回要消费的条件码
func (cg *CodeGeneratorARM64) emitConditionFlags(in *hir.Instruction) Cond {
	locs := in.Locations
	t := in.InputAt(0).Type
	if t.IsFloatingPoint() {
		cg.asm.Fcmp(t.Is64Bit(),
			VReg(locs.Input(0).RegisterID()), VReg(locs.Input(1).RegisterID()))
		return condFor(in.Cond)
	}

	is64 := t.Is64Bit() || t == locations.TypeReference
	lhs := Reg(locs.Input(0).RegisterID())
	if rhs := locs.Input(1); rhs.IsConstant() {
		v := rhs.ConstValue().Bits()
		if v <= 4095 {
			cg.asm.CmpRegImm(is64, lhs, uint32(v))
			return condFor(in.Cond)
		}
	}
	cg.asm.CmpRegReg(is64, lhs, cg.gpInput(in, 1))
	return condFor(in.Cond)
}

// visitCondition 物化比较结果为 0/1。
// 结果只被分支消费的比较不单独物化，由 visitIf 融合发射。
func (cg *CodeGeneratorARM64) visitCondition(in *hir.Instruction) {
	if !in.Locations.Output().IsValid() {
		return
	}
	cond := cg.emitConditionFlags(in)
	cg.asm.Cset(false, Reg(in.Locations.Output().RegisterID()), cond)
}

// visitGoto 无条件跳转。回边进循环头时把循环头的挂起检查
// 融合到这里发射：挂起路径直接返回循环头，直落路径零开销。
func (cg *CodeGeneratorARM64) visitGoto(in *hir.Instruction) {
	target := in.Block.Successors[0]
	// 回边（块序在循环头之后）代发循环头的挂起检查，
	// 进入循环的前向边不发，否则循环头会被轮询两次
	if target.IsLoopHeader && in.Block.ID > target.ID {
		if sc := target.FirstInstruction(); sc != nil && sc.Kind == hir.KindSuspendCheck {
			cg.visitSuspendCheck(sc, target)
			return
		}
	}
	if !cg.base.GoesToNextBlock(in.Block, target) {
		cg.asm.B(cg.blockLabels[target.ID])
	}
}

func (cg *CodeGeneratorARM64) visitIf(in *hir.Instruction) {
	trueTarget := in.Block.Successors[0]
	falseTarget := in.Block.Successors[1]
	fallsToTrue := cg.base.GoesToNextBlock(in.Block, trueTarget)
	fallsToFalse := cg.base.GoesToNextBlock(in.Block, falseTarget)

	input := in.InputAt(0)
	if input.Kind == hir.KindCondition && !input.Locations.Output().IsValid() {
		// 融合比较：条件码直接驱动分支
		cond := cg.emitConditionFlags(input)
		switch {
		case fallsToTrue:
			cg.asm.Bcond(cond.Invert(), cg.blockLabels[falseTarget.ID])
		case fallsToFalse:
			cg.asm.Bcond(cond, cg.blockLabels[trueTarget.ID])
		default:
			cg.asm.Bcond(cond, cg.blockLabels[trueTarget.ID])
			cg.asm.B(cg.blockLabels[falseTarget.ID])
		}
		return
	}

	reg := Reg(in.Locations.Input(0).RegisterID())
	switch {
	case fallsToTrue:
		cg.asm.Cbz(false, reg, cg.blockLabels[falseTarget.ID])
	case fallsToFalse:
		cg.asm.Cbnz(false, reg, cg.blockLabels[trueTarget.ID])
	default:
		cg.asm.Cbnz(false, reg, cg.blockLabels[trueTarget.ID])
		cg.asm.B(cg.blockLabels[falseTarget.ID])
	}
}

// ============================================================================
// 调用
// ============================================================================

// visitInvokeStatic 静态调用：被调方法进 X0，经其入口点跳转。
// AOT 从启动镜像页加载方法指针（链接期改写 adrp/add 对），
// JIT 经运行时解析入口取回。
func (cg *CodeGeneratorARM64) visitInvokeStatic(in *hir.Instruction) {
	if cg.TryEmitIntrinsic(in) {
		return
	}
	if cg.base.Options.IsJitCompiler {
		cg.asm.MovImm32(X0, in.Invoke.MethodIndex)
		cg.InvokeRuntime(runtime.EPResolveMethod, in, nil)
	} else {
		adrpOff := uint32(cg.asm.Len())
		cg.asm.Adrp(MethodReg)
		addOff := uint32(cg.asm.Len())
		cg.asm.AddRegImm(true, MethodReg, MethodReg, 0)
		cg.base.Data.AddPatch(codegen.LinkerPatch{
			Kind:        codegen.PatchMethod,
			CodeOffset:  addOff,
			BaseOffset:  adrpOff,
			TargetIndex: in.Invoke.MethodIndex,
		})
	}
	cg.emitMethodCall(in)
}

// visitInvokeVirtual 虚调用：接收者类对象里内联的 vtable 分发。
// 类加载不走读屏障：from-space 副本的 vtable 项与 to-space 等价。
func (cg *CodeGeneratorARM64) visitInvokeVirtual(in *hir.Instruction) {
	if cg.TryEmitIntrinsic(in) {
		return
	}
	receiver := Reg(in.Locations.Input(0).RegisterID())
	cg.asm.LdrW(IP0, receiver, bytecode.ObjectClassOffset)
	cg.asm.LdrX(MethodReg, IP0,
		bytecode.ClassVTableOffset+int32(in.Invoke.VTableIndex)*bytecode.VTableEntrySize)
	cg.emitMethodCall(in)
}

// visitInvokeInterface 接口调用经运行时解析。
// 接口表无固定上限，内联探测的收益被代码膨胀吃掉，
// 解析入口内部带缓存。
func (cg *CodeGeneratorARM64) visitInvokeInterface(in *hir.Instruction) {
	if cg.TryEmitIntrinsic(in) {
		return
	}
	cg.asm.MovImm32(X0, in.Invoke.MethodIndex)
	cg.InvokeRuntime(runtime.EPResolveMethod, in, nil)
	cg.emitMethodCall(in)
}

// emitMethodCall 公共尾段：X0 已持被调方法，经入口点进入
func (cg *CodeGeneratorARM64) emitMethodCall(in *hir.Instruction) {
	cg.asm.LdrX(IP0, MethodReg, runtime.MethodEntryPointOffset)
	cg.asm.Blr(IP0)
}

// ============================================================================
// 对象与数组
// ============================================================================

func (cg *CodeGeneratorARM64) visitNewInstance(in *hir.Instruction) {
	cg.EmitMove(locations.Register(int(X0)), in.Locations.Input(0), locations.TypeReference)
	cg.InvokeRuntime(runtime.EPAllocObject, in, nil)
}

func (cg *CodeGeneratorARM64) visitNewArray(in *hir.Instruction) {
	locs := in.Locations
	cg.resolver.Resolve([]*codegen.MoveOperands{
		{Source: locs.Input(0), Destination: locations.Register(int(X0)), Type: locations.TypeReference},
		{Source: locs.Input(1), Destination: locations.Register(int(X1)), Type: locations.TypeInt32},
	})
	cg.InvokeRuntime(runtime.EPAllocArray, in, nil)
}

// elemSizeShift 元素宽度的对数，寄存器下标寻址的缩放因子
func elemSizeShift(t locations.PrimitiveType) uint32 {
	switch t.SizeInBytes() {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	default:
		return 3
	}
}

// elemAddress 把 array[index] 的地址合成进 IP0
func (cg *CodeGeneratorARM64) elemAddress(array, index Reg, t locations.PrimitiveType) {
	cg.asm.Uxtw(IP0, index)
	cg.asm.AddShifted(true, IP0, array, IP0, elemSizeShift(t))
}

func (cg *CodeGeneratorARM64) visitArrayGet(in *hir.Instruction) {
	locs := in.Locations
	t := in.ComponentType
	array := Reg(locs.Input(0).RegisterID())

	if idx := locs.Input(1); idx.IsConstant() {
		offset := int32(bytecode.ArrayDataOffset) + int32(idx.ConstValue().Bits())*int32(t.SizeInBytes())
		if t == locations.TypeReference {
			cg.GenerateFieldLoadWithBakerReadBarrier(Reg(locs.Output().RegisterID()), array, offset)
			return
		}
		cg.emitLoadForType(locs.Output(), array, offset, t)
		return
	}

	index := Reg(locs.Input(1).RegisterID())
	if t == locations.TypeReference {
		cg.GenerateArrayLoadWithBakerReadBarrier(Reg(locs.Output().RegisterID()), array, index)
		return
	}
	cg.elemAddress(array, index, t)
	cg.emitLoadForType(locs.Output(), IP0, bytecode.ArrayDataOffset, t)
}

func (cg *CodeGeneratorARM64) visitArraySet(in *hir.Instruction) {
	locs := in.Locations
	t := in.ComponentType
	array := Reg(locs.Input(0).RegisterID())
	value := locs.Input(2)

	if idx := locs.Input(1); idx.IsConstant() {
		offset := int32(bytecode.ArrayDataOffset) + int32(idx.ConstValue().Bits())*int32(t.SizeInBytes())
		cg.emitStoreForType(value, array, offset, t)
	} else {
		cg.elemAddress(array, Reg(locs.Input(1).RegisterID()), t)
		cg.emitStoreForType(value, IP0, bytecode.ArrayDataOffset, t)
	}

	cg.emitStoreBarrier(in, array, value)
}

// ============================================================================
// 字段访问
// ============================================================================

func (cg *CodeGeneratorARM64) visitFieldGet(in *hir.Instruction) {
	locs := in.Locations
	t := in.Field.Type
	obj := Reg(locs.Input(0).RegisterID())
	offset := int32(in.Field.Offset)

	if t == locations.TypeReference {
		cg.GenerateFieldLoadWithBakerReadBarrier(Reg(locs.Output().RegisterID()), obj, offset)
		if in.Field.IsVolatile {
			cg.asm.Dmb()
		}
		return
	}

	if in.Field.IsVolatile {
		// 获取语义：够宽的类型走 load-acquire，
		// 窄类型与浮点退化为普通加载加显式屏障
		switch {
		case !t.IsFloatingPoint() && t.Is64Bit():
			cg.asm.AddRegImm(true, IP1, obj, uint32(offset))
			cg.asm.LdarX(Reg(locs.Output().RegisterID()), IP1)
		case !t.IsFloatingPoint() && t.SizeInBytes() == 4:
			cg.asm.AddRegImm(true, IP1, obj, uint32(offset))
			cg.asm.LdarW(Reg(locs.Output().RegisterID()), IP1)
		default:
			cg.emitLoadForType(locs.Output(), obj, offset, t)
			cg.asm.Dmb()
		}
		return
	}

	cg.emitLoadForType(locs.Output(), obj, offset, t)
}

func (cg *CodeGeneratorARM64) visitFieldSet(in *hir.Instruction) {
	locs := in.Locations
	t := in.Field.Type
	obj := Reg(locs.Input(0).RegisterID())
	value := locs.Input(1)
	offset := int32(in.Field.Offset)

	if in.Field.IsVolatile {
		switch {
		case t.IsFloatingPoint():
			cg.asm.Dmb()
			cg.emitStoreForType(value, obj, offset, t)
			cg.asm.Dmb()
		case t.Is64Bit():
			cg.asm.AddRegImm(true, IP1, obj, uint32(offset))
			cg.asm.StlrX(cg.storeValueReg(value, t), IP1)
			cg.asm.Dmb()
		case t.SizeInBytes() == 4 || t == locations.TypeReference:
			cg.asm.AddRegImm(true, IP1, obj, uint32(offset))
			cg.asm.StlrW(cg.storeValueReg(value, t), IP1)
			cg.asm.Dmb()
		default:
			cg.asm.Dmb()
			cg.emitStoreForType(value, obj, offset, t)
			cg.asm.Dmb()
		}
	} else {
		cg.emitStoreForType(value, obj, offset, t)
	}

	cg.emitStoreBarrier(in, obj, value)
}

// emitLoadForType 按类型宽度与符号从 [base+offset] 加载
func (cg *CodeGeneratorARM64) emitLoadForType(dst locations.Location, base Reg, offset int32, t locations.PrimitiveType) {
	switch t {
	case locations.TypeBool:
		cg.asm.LdrB(Reg(dst.RegisterID()), base, offset)
	case locations.TypeInt8:
		cg.asm.LdrSB(Reg(dst.RegisterID()), base, offset)
	case locations.TypeUint16:
		cg.asm.LdrH(Reg(dst.RegisterID()), base, offset)
	case locations.TypeInt16:
		cg.asm.LdrSH(Reg(dst.RegisterID()), base, offset)
	case locations.TypeInt32, locations.TypeReference:
		cg.asm.LdrW(Reg(dst.RegisterID()), base, offset)
	case locations.TypeInt64:
		cg.asm.LdrX(Reg(dst.RegisterID()), base, offset)
	case locations.TypeFloat32:
		cg.asm.FLdr(false, VReg(dst.RegisterID()), base, offset)
	case locations.TypeFloat64:
		cg.asm.FLdr(true, VReg(dst.RegisterID()), base, offset)
	default:
		cg.base.Logger.Fatal("无法加载的类型", zap.String("type", t.String()))
	}
}

// storeValueReg 待存值的通用寄存器，常量经 IP0 物化
func (cg *CodeGeneratorARM64) storeValueReg(value locations.Location, t locations.PrimitiveType) Reg {
	if value.IsConstant() {
		bits := value.ConstValue().Bits()
		if bits == 0 {
			return ZR
		}
		cg.asm.MovImm64(IP0, bits)
		return IP0
	}
	return Reg(value.RegisterID())
}

// emitStoreForType 按类型宽度存入 [base+offset]
func (cg *CodeGeneratorARM64) emitStoreForType(value locations.Location, base Reg, offset int32, t locations.PrimitiveType) {
	if t.IsFloatingPoint() {
		cg.asm.FStr(t.Is64Bit(), VReg(value.RegisterID()), base, offset)
		return
	}
	src := cg.storeValueReg(value, t)
	switch t.SizeInBytes() {
	case 1:
		cg.asm.StrB(src, base, offset)
	case 2:
		cg.asm.StrH(src, base, offset)
	case 4:
		cg.asm.StrW(src, base, offset)
	default:
		cg.asm.StrX(src, base, offset)
	}
}

// emitStoreBarrier 引用存储后的写屏障决策：发射、省略或调试核对
func (cg *CodeGeneratorARM64) emitStoreBarrier(in *hir.Instruction, holder Reg, value locations.Location) {
	t := in.ComponentType
	if in.Kind == hir.KindFieldSet {
		t = in.Field.Type
	}
	valueInstr := in.InputAt(in.InputCount() - 1)
	if !codegen.StoreNeedsWriteBarrier(t, valueInstr) {
		return
	}

	switch in.WriteBarrier {
	case hir.BarrierDontEmit:
		codegen.GlobalStats.WriteBarriersElided.Inc()
		if cg.base.ShouldCheckGCCard(t, valueInstr, in.WriteBarrier) {
			cg.emitCheckGCCard(holder)
		}
	case hir.BarrierEmitWithNullCheck:
		cg.emitMarkGCCard(holder, value, true)
	default:
		cg.emitMarkGCCard(holder, value, false)
	}
}

// emitMarkGCCard 弄脏持有者对应的卡。卡表基址按卡页对齐偏置，
// 基址寄存器低字节恰为脏值，借它当存储源省一个寄存器。
func (cg *CodeGeneratorARM64) emitMarkGCCard(holder Reg, value locations.Location, valueCanBeNull bool) {
	done := NewLabel()
	if valueCanBeNull && !value.IsConstant() {
		cg.asm.Cbz(false, Reg(value.RegisterID()), done)
	}
	cg.asm.LdrX(IP1, TR, runtime.ThreadCardTableOffset)
	cg.asm.LsrImm(true, IP0, holder, runtime.CardShift)
	cg.asm.StrRegOffset(0, IP1, IP1, IP0, false)
	cg.asm.Bind(done)
}

// emitCheckGCCard 写屏障被省略的存储在调试档核对卡已脏，
// 省略分析出错在存储点立即暴露而不是等 GC 崩溃
func (cg *CodeGeneratorARM64) emitCheckGCCard(holder Reg) {
	ok := NewLabel()
	cg.asm.LdrX(IP1, TR, runtime.ThreadCardTableOffset)
	cg.asm.LsrImm(true, IP0, holder, runtime.CardShift)
	cg.asm.LdrRegOffset(0, IP0, IP1, IP0, false)
	cg.asm.CmpRegImm(false, IP0, runtime.CardDirty)
	cg.asm.Bcond(EQ, ok)
	cg.asm.Brk(brkUnreachable)
	cg.asm.Bind(ok)
}

// ============================================================================
// 检查
// ============================================================================

// visitNullCheck 隐式检查发一次故障加载，SIGSEGV 经信号处理
// 变成空指针异常；显式检查分支进慢路径。
// 隐式检查的安全点已由发射主循环记在加载地址上，
// 故障加载必须是本指令的第一条机器指令。
func (cg *CodeGeneratorARM64) visitNullCheck(in *hir.Instruction) {
	obj := Reg(in.Locations.Input(0).RegisterID())
	if cg.base.Options.ImplicitNullChecks {
		cg.asm.LdrW(ZR, obj, 0)
		return
	}
	slow := NewNullCheckSlowPath(cg, in)
	cg.asm.Cbz(false, obj, slow.Entry())
}

// visitBoundsCheck 下标越界检查。常量对常量静态定胜负，
// 静态失败仍要发射分支：后续代码可能已被当死代码删除，
// 这条路径必须可达而不是不可达。
func (cg *CodeGeneratorARM64) visitBoundsCheck(in *hir.Instruction) {
	locs := in.Locations
	index := locs.Input(0)
	length := locs.Input(1)

	if index.IsConstant() && length.IsConstant() {
		i := int32(index.ConstValue().Bits())
		l := int32(length.ConstValue().Bits())
		if i < 0 || i >= l {
			slow := NewBoundsCheckSlowPath(cg, in)
			cg.asm.B(slow.Entry())
		}
		return
	}

	slow := NewBoundsCheckSlowPath(cg, in)
	if index.IsConstant() {
		// 常量换到立即数操作数位，比较极性相应翻转
		cg.asm.CmpRegImm(false, Reg(length.RegisterID()), uint32(index.ConstValue().Bits()))
		cg.asm.Bcond(LS, slow.Entry())
		return
	}
	if length.IsConstant() {
		cg.asm.CmpRegImm(false, Reg(index.RegisterID()), uint32(length.ConstValue().Bits()))
		cg.asm.Bcond(HS, slow.Entry())
		return
	}
	cg.asm.CmpRegReg(false, Reg(index.RegisterID()), Reg(length.RegisterID()))
	cg.asm.Bcond(HS, slow.Entry())
}

func (cg *CodeGeneratorARM64) visitDivZeroCheck(in *hir.Instruction) {
	divisor := in.Locations.Input(0)
	if divisor.IsConstant() {
		if divisor.ConstValue().Bits() == 0 {
			slow := NewDivZeroSlowPath(cg, in)
			cg.asm.B(slow.Entry())
		}
		return
	}
	slow := NewDivZeroSlowPath(cg, in)
	cg.asm.Cbz(in.InputAt(0).Type.Is64Bit(), Reg(divisor.RegisterID()), slow.Entry())
}

// visitClinitCheck 类初始化状态检查，未就绪进慢路径。
// 只取状态字的最高字节（低 24 位是类型检查位串），
// 加载带获取语义：初始化线程发布的静态字段写必须可见。
func (cg *CodeGeneratorARM64) visitClinitCheck(in *hir.Instruction) {
	cls := Reg(in.Locations.Input(0).RegisterID())
	slow := NewLoadClassSlowPath(cg, in)
	cg.asm.AddRegImm(true, IP0, cls, bytecode.ClassStatusByteOffset)
	cg.asm.LdarB(IP0, IP0)
	cg.asm.CmpRegImm(false, IP0, bytecode.ClassStatusVisiblyInitialized)
	cg.asm.Bcond(LO, slow.Entry())
	cg.asm.Bind(slow.Exit())
}

// visitSuspendCheck 协作式安全点：轮询线程标志字
func (cg *CodeGeneratorARM64) visitSuspendCheck(in *hir.Instruction, successor *hir.BasicBlock) {
	slow := NewSuspendCheckSlowPath(cg, in, successor)
	cg.asm.LdrW(IP0, TR, runtime.ThreadFlagsOffset)
	if successor == nil {
		cg.asm.Cbnz(false, IP0, slow.Entry())
		cg.asm.Bind(slow.Exit())
	} else {
		// 回边形态：未挂起直落后继，挂起路径返回时自行跳后继
		cg.asm.Cbz(false, IP0, cg.blockLabels[successor.ID])
		cg.asm.B(slow.Entry())
	}
}

func (cg *CodeGeneratorARM64) visitDeoptimize(in *hir.Instruction) {
	slow := NewDeoptimizeSlowPath(cg, in)
	cond := in.Locations.Input(0)
	if cond.IsConstant() {
		if cond.ConstValue().Bits() != 0 {
			cg.asm.B(slow.Entry())
		}
		return
	}
	cg.asm.Cbnz(false, Reg(cond.RegisterID()), slow.Entry())
}

// ============================================================================
// 类与字符串
// ============================================================================

// visitLoadClass 按 LoadKind 取类引用
func (cg *CodeGeneratorARM64) visitLoadClass(in *hir.Instruction) {
	locs := in.Locations
	out := Reg(locs.Output().RegisterID())

	switch in.LoadKind {
	case hir.LoadBootImageRelRo:
		cg.emitBootImageRelRoLoad(out, codegen.PatchBootImageRelRo, in.TypeIndex)

	case hir.LoadBssEntry:
		slow := NewLoadClassSlowPath(cg, in)
		cg.emitBssEntryLoad(out, codegen.PatchBssEntry, in.TypeIndex)
		cg.asm.Cbz(false, out, slow.Entry())
		cg.asm.Bind(slow.Exit())

	case hir.LoadJitTable:
		cg.emitJitRootLoad(out, codegen.RootClass, in.TypeIndex)
		if in.MustDoClinit {
			cg.visitClinitCheckOnOut(in, out)
		}

	case hir.LoadRuntimeCall:
		cg.asm.MovImm32(X0, in.TypeIndex)
		cg.InvokeRuntime(runtime.EPResolveType, in, nil)
		if out != X0 {
			cg.asm.MovRegReg(false, out, X0)
		}
	}
}

// visitClinitCheckOnOut JIT 表命中的类仍可能未初始化
func (cg *CodeGeneratorARM64) visitClinitCheckOnOut(in *hir.Instruction, cls Reg) {
	slow := NewLoadClassSlowPath(cg, in)
	cg.asm.AddRegImm(true, IP0, cls, bytecode.ClassStatusByteOffset)
	cg.asm.LdarB(IP0, IP0)
	cg.asm.CmpRegImm(false, IP0, bytecode.ClassStatusVisiblyInitialized)
	cg.asm.Bcond(LO, slow.Entry())
	cg.asm.Bind(slow.Exit())
}

func (cg *CodeGeneratorARM64) visitLoadString(in *hir.Instruction) {
	locs := in.Locations
	out := Reg(locs.Output().RegisterID())

	switch in.LoadKind {
	case hir.LoadBootImageRelRo:
		cg.emitBootImageRelRoLoad(out, codegen.PatchBootImageRelRo, in.StringIndex)

	case hir.LoadBssEntry:
		slow := NewLoadStringSlowPath(cg, in)
		cg.emitBssEntryLoad(out, codegen.PatchBssEntry, in.StringIndex)
		cg.asm.Cbz(false, out, slow.Entry())
		cg.asm.Bind(slow.Exit())

	case hir.LoadJitTable:
		cg.emitJitRootLoad(out, codegen.RootString, in.StringIndex)

	case hir.LoadRuntimeCall:
		cg.asm.MovImm32(X0, in.StringIndex)
		cg.InvokeRuntime(runtime.EPResolveString, in, nil)
		if out != X0 {
			cg.asm.MovRegReg(false, out, X0)
		}
	}
}

// emitBootImageRelRoLoad adrp + ldr 对，两条都在链接期改写
func (cg *CodeGeneratorARM64) emitBootImageRelRoLoad(out Reg, kind codegen.PatchKind, target uint32) {
	adrpOff := uint32(cg.asm.Len())
	cg.asm.Adrp(out)
	ldrOff := uint32(cg.asm.Len())
	cg.asm.LdrW(out, out, 0)
	cg.base.Data.AddPatch(codegen.LinkerPatch{
		Kind:        kind,
		CodeOffset:  ldrOff,
		BaseOffset:  adrpOff,
		TargetIndex: target,
	})
}

func (cg *CodeGeneratorARM64) emitBssEntryLoad(out Reg, kind codegen.PatchKind, target uint32) {
	cg.emitBootImageRelRoLoad(out, kind, target)
}

// emitJitRootLoad 从方法尾随的根表取引用，
// 表地址在代码安装进代码缓存时回填
func (cg *CodeGeneratorARM64) emitJitRootLoad(out Reg, kind codegen.RootKind, index uint32) {
	roots := cg.base.Data.Roots
	slot := roots.Intern(kind, index)
	adrpOff := cg.asm.Len()
	cg.asm.Adrp(out)
	cg.asm.LdrW(out, out, 0)
	roots.AddPatchOffset(slot, adrpOff)
}

// ============================================================================
// 同步
// ============================================================================

func (cg *CodeGeneratorARM64) visitMonitorOp(in *hir.Instruction) {
	cg.EmitMove(locations.Register(int(X0)), in.Locations.Input(0), locations.TypeReference)
	ep := runtime.EPMonitorExit
	if in.IsMonitorEnter {
		ep = runtime.EPMonitorEnter
	}
	cg.InvokeRuntime(ep, in, nil)
}
