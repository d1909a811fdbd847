// codegen.go - ARM64 代码生成器
//
// 实现 codegen.Backend 协议：帧建立/拆除、位置间移动、
// 运行时入口调用、慢路径寄存器保存。指令分发见 visitors.go。

package arm64

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/quasarlang/quasar/internal/bytecode"
	"github.com/quasarlang/quasar/internal/codegen"
	"github.com/quasarlang/quasar/internal/hir"
	"github.com/quasarlang/quasar/internal/locations"
	"github.com/quasarlang/quasar/internal/runtime"
)

func init() {
	codegen.RegisterBackend("arm64", New)
}

// maxSafepointSpillSize 慢路径最多保存的寄存器字节数：
// 16 个调用者保存通用寄存器 + 24 个调用者保存浮点寄存器
const maxSafepointSpillSize = (16 + 24) * 8

// CodeGeneratorARM64 ARM64 后端，一个实例即一次方法编译
type CodeGeneratorARM64 struct {
	base *codegen.Base
	asm  *Assembler

	blockLabels map[int]*Label
	resolver    *codegen.ParallelMoveResolver

	// 本次编译引用过的读屏障 thunk（按标识去重，保序发射）
	bakerThunkLabels map[uint32]*Label
	bakerThunkOrder  []uint32
}

// New 创建后端
func New(g *hir.Graph, opts *codegen.CompilerOptions) (codegen.Backend, error) {
	if g == nil {
		return nil, fmt.Errorf("arm64: 指令图为空")
	}
	base := codegen.NewBase(g, opts)
	base.CoreCalleeSaveMask = CoreCalleeSaves
	base.FpuCalleeSaveMask = FpuCalleeSaves
	base.StackAlignment = 16
	base.PreferredAlignment = 8

	cg := &CodeGeneratorARM64{
		base:             base,
		asm:              NewAssembler(),
		blockLabels:      make(map[int]*Label),
		bakerThunkLabels: make(map[uint32]*Label),
	}
	cg.resolver = codegen.NewParallelMoveResolver(cg)
	return cg, nil
}

// Base 协议状态
func (cg *CodeGeneratorARM64) Base() *codegen.Base {
	return cg.base
}

// ISA 指令集名
func (cg *CodeGeneratorARM64) ISA() string {
	return "arm64"
}

// Initialize 帧布局与块标签
func (cg *CodeGeneratorARM64) Initialize(g *hir.Graph) {
	// 平凡叶方法不需要任何溢出
	empty := g.NumSpillSlots == 0 &&
		g.UsedCoreCalleeSaves == 0 && g.UsedFpuCalleeSaves == 0 &&
		g.IsLeafMethod() && !g.RequiresCurrentMethod
	if !empty {
		cg.base.CoreSpillMask = g.UsedCoreCalleeSaves | (1 << uint(LR))
		cg.base.FpSpillMask = g.UsedFpuCalleeSaves
	}

	cg.base.InitializeCodeGeneration(
		g.NumSpillSlots, maxSafepointSpillSize, g.NumOutVRegs, g.Blocks)

	for _, b := range g.Blocks {
		cg.blockLabels[b.ID] = NewLabel()
	}
}

// CodeSize 已发射字节数
func (cg *CodeGeneratorARM64) CodeSize() int {
	return cg.asm.Len()
}

// BindBlockEntry 绑定块入口
func (cg *CodeGeneratorARM64) BindBlockEntry(blockID int) {
	cg.asm.Bind(cg.blockLabels[blockID])
}

// BlockEntryOffset 块入口偏移
func (cg *CodeGeneratorARM64) BlockEntryOffset(blockID int) int {
	return cg.blockLabels[blockID].Offset()
}

// EmitNop 空操作
func (cg *CodeGeneratorARM64) EmitNop() {
	cg.asm.Nop()
}

// Finalize 发射方法内读屏障 thunk 后回填重定位
func (cg *CodeGeneratorARM64) Finalize() ([]byte, error) {
	cg.emitBakerThunks()
	if err := cg.asm.Resolve(); err != nil {
		return nil, fmt.Errorf("arm64: %w", err)
	}
	return cg.asm.Code(), nil
}

// ============================================================================
// 帧建立与拆除
// ============================================================================

// GenerateFrameEntry 方法序言
func (cg *CodeGeneratorARM64) GenerateFrameEntry() {
	g := cg.base.Graph

	// 要求类已初始化的方法把检查放在建帧之前：
	// 异常栈回溯才不含本方法的帧
	if cg.base.Options.CompileWithClinitCheck && g.Method.IsStatic {
		cg.emitEntryClinitCheck()
	}

	if cg.base.HasEmptyFrame() {
		return
	}

	// 栈溢出探测：向保留页发一次加载，SIGSEGV 可归因。
	// 探测紧跟安全点记录，故障处 PC 能查到栈图。
	cg.asm.SubRegImm(true, IP0, SP, uint32(runtime.StackOverflowReservedBytes))
	probeOffset := uint32(cg.asm.Len())
	cg.asm.LdrW(ZR, IP0, 0)
	sm := cg.base.Data.StackMaps
	sm.BeginStackMapEntry(0, probeOffset, 0, nil, codegen.StackMapDefault)
	sm.EndStackMapEntry()

	frameSize := cg.base.FrameSize
	cg.asm.SubRegImm(true, SP, SP, uint32(frameSize))

	// 序言溢出区在帧顶
	offset := int32(frameSize - cg.base.FrameEntrySpillSize())
	for reg := 0; reg < NumCoreRegisters; reg++ {
		if cg.base.CoreSpillMask&(1<<uint(reg)) != 0 {
			cg.asm.StrX(Reg(reg), SP, offset)
			offset += 8
		}
	}
	for reg := 0; reg < NumFpuRegisters; reg++ {
		if cg.base.FpSpillMask&(1<<uint(reg)) != 0 {
			cg.asm.FStr(true, VReg(reg), SP, offset)
			offset += 8
		}
	}

	if g.HasShouldDeoptimizeFlag {
		cg.asm.StrW(ZR, SP, int32(cg.base.ShouldDeoptimizeFlagOffset()))
	}

	// 基线档位：热度计数递减，归零交给入口桩处理
	if g.IsCompilingBaseline {
		cg.asm.LdrH(IP0, MethodReg, runtime.MethodHotnessCountOffset)
		cg.asm.SubRegImm(false, IP0, IP0, 1)
		cg.asm.StrH(IP0, MethodReg, runtime.MethodHotnessCountOffset)
	}
}

// emitEntryClinitCheck 建帧前的类初始化状态检查。
// 状态字节在状态字最高位，带获取语义读取
func (cg *CodeGeneratorARM64) emitEntryClinitCheck() {
	done := NewLabel()
	cg.asm.LdrW(IP0, MethodReg, runtime.MethodDeclaringClassOffset)
	cg.asm.AddRegImm(true, IP1, IP0, bytecode.ClassStatusByteOffset)
	cg.asm.LdarB(IP1, IP1)
	cg.asm.CmpRegImm(false, IP1, bytecode.ClassStatusVisiblyInitialized)
	cg.asm.Bcond(HS, done)
	cg.asm.LdrX(IP1, TR, int32(runtime.EntrypointOffset(runtime.EPInitializeStaticStorage)))
	cg.asm.Blr(IP1)
	cg.asm.Bind(done)
}

// GenerateFrameExit 方法尾声
func (cg *CodeGeneratorARM64) GenerateFrameExit() {
	if cg.base.HasEmptyFrame() {
		cg.asm.Ret()
		return
	}
	frameSize := cg.base.FrameSize
	offset := int32(frameSize - cg.base.FrameEntrySpillSize())
	for reg := 0; reg < NumCoreRegisters; reg++ {
		if cg.base.CoreSpillMask&(1<<uint(reg)) != 0 {
			cg.asm.LdrX(Reg(reg), SP, offset)
			offset += 8
		}
	}
	for reg := 0; reg < NumFpuRegisters; reg++ {
		if cg.base.FpSpillMask&(1<<uint(reg)) != 0 {
			cg.asm.FLdr(true, VReg(reg), SP, offset)
			offset += 8
		}
	}
	cg.asm.AddRegImm(true, SP, SP, uint32(frameSize))
	cg.asm.Ret()
}

// ============================================================================
// 运行时调用
// ============================================================================

// InvokeRuntime 经线程入口表调用运行时。
// 出自慢路径的调用在 BLR 指令地址补记安全点（主路径调用的
// 安全点已由发射主循环记过）。
func (cg *CodeGeneratorARM64) InvokeRuntime(ep runtime.Entrypoint, in *hir.Instruction, sp codegen.SlowPath) {
	codegen.ValidateInvokeRuntime(cg.base, ep, in, sp)
	cg.asm.LdrX(IP0, TR, int32(runtime.EntrypointOffset(ep)))
	callOffset := uint32(cg.asm.Len())
	cg.asm.Blr(IP0)
	if sp != nil {
		cg.base.RecordPcInfo(cg, in, callOffset, sp, codegen.StackMapDefault)
	}
}

// ============================================================================
// 慢路径寄存器保存回调
// ============================================================================

// SaveCoreRegister 保存通用寄存器，返回 8
func (cg *CodeGeneratorARM64) SaveCoreRegister(stackOffset, reg int) int {
	cg.asm.StrX(Reg(reg), SP, int32(stackOffset))
	return 8
}

// RestoreCoreRegister 恢复通用寄存器
func (cg *CodeGeneratorARM64) RestoreCoreRegister(stackOffset, reg int) int {
	cg.asm.LdrX(Reg(reg), SP, int32(stackOffset))
	return 8
}

// SaveFpuRegister 保存浮点寄存器
func (cg *CodeGeneratorARM64) SaveFpuRegister(stackOffset, reg int) int {
	cg.asm.FStr(true, VReg(reg), SP, int32(stackOffset))
	return 8
}

// RestoreFpuRegister 恢复浮点寄存器
func (cg *CodeGeneratorARM64) RestoreFpuRegister(stackOffset, reg int) int {
	cg.asm.FLdr(true, VReg(reg), SP, int32(stackOffset))
	return 8
}

// ============================================================================
// 位置间移动
// ============================================================================

// EmitMove 任意位置到任意位置
func (cg *CodeGeneratorARM64) EmitMove(dst, src locations.Location, t locations.PrimitiveType) {
	is64 := t.Is64Bit() || t == locations.TypeReference
	switch {
	case src.Equals(dst):
		// 冗余移动

	case src.IsConstant():
		cg.moveConstant(dst, src, t)

	case src.IsRegister() && dst.IsRegister():
		cg.asm.MovRegReg(is64, Reg(dst.RegisterID()), Reg(src.RegisterID()))

	case src.IsRegister() && dst.IsAnyStackSlot():
		if is64 {
			cg.asm.StrX(Reg(src.RegisterID()), SP, dst.StackOffset())
		} else {
			cg.asm.StrW(Reg(src.RegisterID()), SP, dst.StackOffset())
		}

	case src.IsAnyStackSlot() && dst.IsRegister():
		if is64 {
			cg.asm.LdrX(Reg(dst.RegisterID()), SP, src.StackOffset())
		} else {
			cg.asm.LdrW(Reg(dst.RegisterID()), SP, src.StackOffset())
		}

	case src.IsFpuRegister() && dst.IsFpuRegister():
		cg.asm.Fmov(is64, VReg(dst.RegisterID()), VReg(src.RegisterID()))

	case src.IsFpuRegister() && dst.IsAnyStackSlot():
		cg.asm.FStr(is64, VReg(src.RegisterID()), SP, dst.StackOffset())

	case src.IsAnyStackSlot() && dst.IsFpuRegister():
		cg.asm.FLdr(is64, VReg(dst.RegisterID()), SP, src.StackOffset())

	case src.IsFpuRegister() && dst.IsRegister():
		cg.asm.FmovToGP(is64, Reg(dst.RegisterID()), VReg(src.RegisterID()))

	case src.IsRegister() && dst.IsFpuRegister():
		cg.asm.FmovFromGP(is64, VReg(dst.RegisterID()), Reg(src.RegisterID()))

	case src.IsAnyStackSlot() && dst.IsAnyStackSlot():
		// 栈到栈经 IP1 中转
		if is64 {
			cg.asm.LdrX(IP1, SP, src.StackOffset())
			cg.asm.StrX(IP1, SP, dst.StackOffset())
		} else {
			cg.asm.LdrW(IP1, SP, src.StackOffset())
			cg.asm.StrW(IP1, SP, dst.StackOffset())
		}

	default:
		cg.base.Logger.Fatal("无法发射的移动",
			zap.String("src", src.String()),
			zap.String("dst", dst.String()))
	}
}

// moveConstant 常量入位置
func (cg *CodeGeneratorARM64) moveConstant(dst, src locations.Location, t locations.PrimitiveType) {
	bits := src.ConstValue().Bits()
	switch {
	case dst.IsRegister():
		if t.Is64Bit() || t == locations.TypeReference {
			cg.asm.MovImm64(Reg(dst.RegisterID()), bits)
		} else {
			cg.asm.MovImm32(Reg(dst.RegisterID()), uint32(bits))
		}
	case dst.IsFpuRegister():
		if t.Is64Bit() {
			cg.asm.MovImm64(IP1, bits)
			cg.asm.FmovFromGP(true, VReg(dst.RegisterID()), IP1)
		} else {
			cg.asm.MovImm32(IP1, uint32(bits))
			cg.asm.FmovFromGP(false, VReg(dst.RegisterID()), IP1)
		}
	case dst.IsAnyStackSlot():
		if t.Is64Bit() {
			cg.asm.MovImm64(IP1, bits)
			cg.asm.StrX(IP1, SP, dst.StackOffset())
		} else {
			cg.asm.MovImm32(IP1, uint32(bits))
			cg.asm.StrW(IP1, SP, dst.StackOffset())
		}
	default:
		cg.base.Logger.Fatal("常量无法进入目的位置", zap.String("dst", dst.String()))
	}
}

// EmitSwap 两位置交换（并行移动的破环步骤）
func (cg *CodeGeneratorARM64) EmitSwap(a, b locations.Location, t locations.PrimitiveType) {
	is64 := t.Is64Bit() || t == locations.TypeReference
	switch {
	case a.IsRegister() && b.IsRegister():
		ra, rb := Reg(a.RegisterID()), Reg(b.RegisterID())
		cg.asm.MovRegReg(is64, IP1, ra)
		cg.asm.MovRegReg(is64, ra, rb)
		cg.asm.MovRegReg(is64, rb, IP1)

	case a.IsRegister() && b.IsAnyStackSlot():
		cg.swapRegStack(is64, Reg(a.RegisterID()), b.StackOffset())
	case a.IsAnyStackSlot() && b.IsRegister():
		cg.swapRegStack(is64, Reg(b.RegisterID()), a.StackOffset())

	case a.IsFpuRegister() && b.IsFpuRegister():
		va, vb := VReg(a.RegisterID()), VReg(b.RegisterID())
		cg.asm.FmovToGP(is64, IP1, va)
		cg.asm.Fmov(is64, va, vb)
		cg.asm.FmovFromGP(is64, vb, IP1)

	case a.IsAnyStackSlot() && b.IsAnyStackSlot():
		if is64 {
			cg.asm.LdrX(IP0, SP, a.StackOffset())
			cg.asm.LdrX(IP1, SP, b.StackOffset())
			cg.asm.StrX(IP0, SP, b.StackOffset())
			cg.asm.StrX(IP1, SP, a.StackOffset())
		} else {
			cg.asm.LdrW(IP0, SP, a.StackOffset())
			cg.asm.LdrW(IP1, SP, b.StackOffset())
			cg.asm.StrW(IP0, SP, b.StackOffset())
			cg.asm.StrW(IP1, SP, a.StackOffset())
		}

	default:
		cg.base.Logger.Fatal("无法发射的交换",
			zap.String("a", a.String()),
			zap.String("b", b.String()))
	}
}

func (cg *CodeGeneratorARM64) swapRegStack(is64 bool, reg Reg, offset int32) {
	if is64 {
		cg.asm.LdrX(IP1, SP, offset)
		cg.asm.StrX(reg, SP, offset)
	} else {
		cg.asm.LdrW(IP1, SP, offset)
		cg.asm.StrW(reg, SP, offset)
	}
	cg.asm.MovRegReg(is64, reg, IP1)
}
