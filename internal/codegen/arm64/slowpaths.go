// slowpaths.go - ARM64 慢路径
//
// 快路径登记，慢路径阶段统一发射。致命慢路径（必抛异常）
// 结尾放一条 BRK：运行时入口不返回，落到这里即内部错误。

package arm64

import (
	"github.com/quasarlang/quasar/internal/codegen"
	"github.com/quasarlang/quasar/internal/hir"
	"github.com/quasarlang/quasar/internal/locations"
	"github.com/quasarlang/quasar/internal/runtime"
)

// brkUnreachable 致命慢路径兜底断点号
const brkUnreachable = 0x700

// ============================================================================
// 边界检查
// ============================================================================

// BoundsCheckSlowPath 下标越界：按来源抛字符串或数组越界异常
type BoundsCheckSlowPath struct {
	codegen.SlowPathBase
	entry *Label
}

// NewBoundsCheckSlowPath 创建并登记
func NewBoundsCheckSlowPath(cg *CodeGeneratorARM64, in *hir.Instruction) *BoundsCheckSlowPath {
	s := &BoundsCheckSlowPath{
		SlowPathBase: codegen.NewSlowPathBase(in),
		entry:        NewLabel(),
	}
	cg.base.Data.AddSlowPath(s)
	return s
}

// Entry 入口标签
func (s *BoundsCheckSlowPath) Entry() *Label { return s.entry }

// IsFatal 永不返回
func (s *BoundsCheckSlowPath) IsFatal() bool { return true }

// Description 名称
func (s *BoundsCheckSlowPath) Description() string { return "BoundsCheckSlowPath" }

// EmitNativeCode 发射本体
func (s *BoundsCheckSlowPath) EmitNativeCode(b codegen.Backend) {
	cg := b.(*CodeGeneratorARM64)
	cg.asm.Bind(s.entry)
	locs := s.Instr.Locations

	// 下标、长度进原生约定 X0/X1（可能互相占位，走并行移动）
	cg.resolver.Resolve([]*codegen.MoveOperands{
		{Source: locs.Input(0), Destination: locations.Register(int(X0)), Type: locations.TypeInt32},
		{Source: locs.Input(1), Destination: locations.Register(int(X1)), Type: locations.TypeInt32},
	})

	ep := runtime.EPThrowArrayBounds
	if s.Instr.IsStringCharAt {
		ep = runtime.EPThrowStringBounds
	}
	cg.InvokeRuntime(ep, s.Instr, s)
	cg.asm.Brk(brkUnreachable)
}

// ============================================================================
// 除零检查
// ============================================================================

// DivZeroSlowPath 除零异常
type DivZeroSlowPath struct {
	codegen.SlowPathBase
	entry *Label
}

// NewDivZeroSlowPath 创建并登记
func NewDivZeroSlowPath(cg *CodeGeneratorARM64, in *hir.Instruction) *DivZeroSlowPath {
	s := &DivZeroSlowPath{
		SlowPathBase: codegen.NewSlowPathBase(in),
		entry:        NewLabel(),
	}
	cg.base.Data.AddSlowPath(s)
	return s
}

// Entry 入口标签
func (s *DivZeroSlowPath) Entry() *Label { return s.entry }

// IsFatal 永不返回
func (s *DivZeroSlowPath) IsFatal() bool { return true }

// Description 名称
func (s *DivZeroSlowPath) Description() string { return "DivZeroSlowPath" }

// EmitNativeCode 发射本体
func (s *DivZeroSlowPath) EmitNativeCode(b codegen.Backend) {
	cg := b.(*CodeGeneratorARM64)
	cg.asm.Bind(s.entry)
	cg.InvokeRuntime(runtime.EPThrowDivZero, s.Instr, s)
	cg.asm.Brk(brkUnreachable)
}

// ============================================================================
// 空指针检查
// ============================================================================

// NullCheckSlowPath 空指针异常
type NullCheckSlowPath struct {
	codegen.SlowPathBase
	entry *Label
}

// NewNullCheckSlowPath 创建并登记
func NewNullCheckSlowPath(cg *CodeGeneratorARM64, in *hir.Instruction) *NullCheckSlowPath {
	s := &NullCheckSlowPath{
		SlowPathBase: codegen.NewSlowPathBase(in),
		entry:        NewLabel(),
	}
	cg.base.Data.AddSlowPath(s)
	return s
}

// Entry 入口标签
func (s *NullCheckSlowPath) Entry() *Label { return s.entry }

// IsFatal 永不返回
func (s *NullCheckSlowPath) IsFatal() bool { return true }

// Description 名称
func (s *NullCheckSlowPath) Description() string { return "NullCheckSlowPath" }

// EmitNativeCode 发射本体
func (s *NullCheckSlowPath) EmitNativeCode(b codegen.Backend) {
	cg := b.(*CodeGeneratorARM64)
	cg.asm.Bind(s.entry)
	cg.InvokeRuntime(runtime.EPThrowNullPointer, s.Instr, s)
	cg.asm.Brk(brkUnreachable)
}

// ============================================================================
// 挂起检查
// ============================================================================

// SuspendCheckSlowPath 协作式安全点：保活跃寄存器，调运行时让路
type SuspendCheckSlowPath struct {
	codegen.SlowPathBase
	entry *Label
	exit  *Label

	// successor 非 nil 时返回该块而非落回检查点
	successor *hir.BasicBlock
}

// NewSuspendCheckSlowPath 创建并登记
func NewSuspendCheckSlowPath(cg *CodeGeneratorARM64, in *hir.Instruction, successor *hir.BasicBlock) *SuspendCheckSlowPath {
	s := &SuspendCheckSlowPath{
		SlowPathBase: codegen.NewSlowPathBase(in),
		entry:        NewLabel(),
		exit:         NewLabel(),
		successor:    successor,
	}
	cg.base.Data.AddSlowPath(s)
	return s
}

// Entry 入口标签
func (s *SuspendCheckSlowPath) Entry() *Label { return s.entry }

// Exit 返回快路径的标签
func (s *SuspendCheckSlowPath) Exit() *Label { return s.exit }

// IsFatal 会返回
func (s *SuspendCheckSlowPath) IsFatal() bool { return false }

// Description 名称
func (s *SuspendCheckSlowPath) Description() string { return "SuspendCheckSlowPath" }

// EmitNativeCode 发射本体
func (s *SuspendCheckSlowPath) EmitNativeCode(b codegen.Backend) {
	cg := b.(*CodeGeneratorARM64)
	cg.asm.Bind(s.entry)
	s.SaveLiveRegisters(cg, s.Instr.Locations)
	cg.InvokeRuntime(runtime.EPTestSuspend, s.Instr, s)
	s.RestoreLiveRegisters(cg, s.Instr.Locations)
	if s.successor != nil {
		cg.asm.B(cg.blockLabels[s.successor.ID])
	} else {
		cg.asm.B(s.exit)
	}
}

// ============================================================================
// 去优化
// ============================================================================

// DeoptimizeSlowPath 放弃编译代码，转回解释执行
type DeoptimizeSlowPath struct {
	codegen.SlowPathBase
	entry *Label
}

// NewDeoptimizeSlowPath 创建并登记
func NewDeoptimizeSlowPath(cg *CodeGeneratorARM64, in *hir.Instruction) *DeoptimizeSlowPath {
	s := &DeoptimizeSlowPath{
		SlowPathBase: codegen.NewSlowPathBase(in),
		entry:        NewLabel(),
	}
	cg.base.Data.AddSlowPath(s)
	return s
}

// Entry 入口标签
func (s *DeoptimizeSlowPath) Entry() *Label { return s.entry }

// IsFatal 不回本方法快路径
func (s *DeoptimizeSlowPath) IsFatal() bool { return true }

// Description 名称
func (s *DeoptimizeSlowPath) Description() string { return "DeoptimizeSlowPath" }

// EmitNativeCode 发射本体
func (s *DeoptimizeSlowPath) EmitNativeCode(b codegen.Backend) {
	cg := b.(*CodeGeneratorARM64)
	cg.asm.Bind(s.entry)
	s.SaveLiveRegisters(cg, s.Instr.Locations)
	cg.asm.MovImm32(X0, uint32(s.Instr.DeoptReason))
	cg.InvokeRuntime(runtime.EPDeoptimize, s.Instr, s)
	cg.asm.Brk(brkUnreachable)
}

// ============================================================================
// 类型检查
// ============================================================================

// TypeCheckSlowPath InstanceOf 的非平凡判定 / CheckCast 的失败抛出
type TypeCheckSlowPath struct {
	codegen.SlowPathBase
	entry *Label
	exit  *Label
	fatal bool // CheckCast 为 true
}

// NewTypeCheckSlowPath 创建并登记
func NewTypeCheckSlowPath(cg *CodeGeneratorARM64, in *hir.Instruction, fatal bool) *TypeCheckSlowPath {
	s := &TypeCheckSlowPath{
		SlowPathBase: codegen.NewSlowPathBase(in),
		entry:        NewLabel(),
		exit:         NewLabel(),
		fatal:        fatal,
	}
	cg.base.Data.AddSlowPath(s)
	return s
}

// Entry 入口标签
func (s *TypeCheckSlowPath) Entry() *Label { return s.entry }

// Exit 返回快路径的标签
func (s *TypeCheckSlowPath) Exit() *Label { return s.exit }

// IsFatal CheckCast 失败必抛
func (s *TypeCheckSlowPath) IsFatal() bool { return s.fatal }

// Description 名称
func (s *TypeCheckSlowPath) Description() string { return "TypeCheckSlowPath" }

// EmitNativeCode 发射本体
func (s *TypeCheckSlowPath) EmitNativeCode(b codegen.Backend) {
	cg := b.(*CodeGeneratorARM64)
	cg.asm.Bind(s.entry)
	locs := s.Instr.Locations

	if !s.fatal {
		s.SaveLiveRegisters(cg, locs)
	}

	// 对象、目标类进 X0/X1
	cg.resolver.Resolve([]*codegen.MoveOperands{
		{Source: locs.Input(0), Destination: locations.Register(int(X0)), Type: locations.TypeReference},
		{Source: locs.Input(1), Destination: locations.Register(int(X1)), Type: locations.TypeReference},
	})

	if s.fatal {
		cg.InvokeRuntime(runtime.EPThrowClassCast, s.Instr, s)
		cg.asm.Brk(brkUnreachable)
		return
	}

	cg.InvokeRuntime(runtime.EPInstanceofNonTrivial, s.Instr, s)
	out := locs.Output()
	if out.IsRegister() && Reg(out.RegisterID()) != X0 {
		cg.asm.MovRegReg(false, Reg(out.RegisterID()), X0)
	}
	s.RestoreLiveRegisters(cg, locs)
	cg.asm.B(s.exit)
}

// ============================================================================
// 类与字符串解析
// ============================================================================

// LoadClassSlowPath 运行时解析类型，可选顺带静态初始化
type LoadClassSlowPath struct {
	codegen.SlowPathBase
	entry *Label
	exit  *Label
}

// NewLoadClassSlowPath 创建并登记
func NewLoadClassSlowPath(cg *CodeGeneratorARM64, in *hir.Instruction) *LoadClassSlowPath {
	s := &LoadClassSlowPath{
		SlowPathBase: codegen.NewSlowPathBase(in),
		entry:        NewLabel(),
		exit:         NewLabel(),
	}
	cg.base.Data.AddSlowPath(s)
	return s
}

// Entry 入口标签
func (s *LoadClassSlowPath) Entry() *Label { return s.entry }

// Exit 返回快路径的标签
func (s *LoadClassSlowPath) Exit() *Label { return s.exit }

// IsFatal 会返回
func (s *LoadClassSlowPath) IsFatal() bool { return false }

// Description 名称
func (s *LoadClassSlowPath) Description() string { return "LoadClassSlowPath" }

// EmitNativeCode 发射本体
func (s *LoadClassSlowPath) EmitNativeCode(b codegen.Backend) {
	cg := b.(*CodeGeneratorARM64)
	cg.asm.Bind(s.entry)
	locs := s.Instr.Locations
	s.SaveLiveRegisters(cg, locs)

	cg.asm.MovImm32(X0, s.Instr.TypeIndex)
	ep := runtime.EPResolveType
	if s.Instr.Kind == hir.KindClinitCheck ||
		(s.Instr.Kind == hir.KindLoadClass && s.Instr.MustDoClinit) {
		ep = runtime.EPInitializeStaticStorage
	}
	cg.InvokeRuntime(ep, s.Instr, s)

	out := locs.Output()
	if out.IsRegister() && Reg(out.RegisterID()) != X0 {
		cg.asm.MovRegReg(false, Reg(out.RegisterID()), X0)
	}
	s.RestoreLiveRegisters(cg, locs)
	cg.asm.B(s.exit)
}

// LoadStringSlowPath 运行时解析字符串
type LoadStringSlowPath struct {
	codegen.SlowPathBase
	entry *Label
	exit  *Label
}

// NewLoadStringSlowPath 创建并登记
func NewLoadStringSlowPath(cg *CodeGeneratorARM64, in *hir.Instruction) *LoadStringSlowPath {
	s := &LoadStringSlowPath{
		SlowPathBase: codegen.NewSlowPathBase(in),
		entry:        NewLabel(),
		exit:         NewLabel(),
	}
	cg.base.Data.AddSlowPath(s)
	return s
}

// Entry 入口标签
func (s *LoadStringSlowPath) Entry() *Label { return s.entry }

// Exit 返回快路径的标签
func (s *LoadStringSlowPath) Exit() *Label { return s.exit }

// IsFatal 会返回
func (s *LoadStringSlowPath) IsFatal() bool { return false }

// Description 名称
func (s *LoadStringSlowPath) Description() string { return "LoadStringSlowPath" }

// EmitNativeCode 发射本体
func (s *LoadStringSlowPath) EmitNativeCode(b codegen.Backend) {
	cg := b.(*CodeGeneratorARM64)
	cg.asm.Bind(s.entry)
	locs := s.Instr.Locations
	s.SaveLiveRegisters(cg, locs)

	cg.asm.MovImm32(X0, s.Instr.StringIndex)
	cg.InvokeRuntime(runtime.EPResolveString, s.Instr, s)

	out := locs.Output()
	if out.IsRegister() && Reg(out.RegisterID()) != X0 {
		cg.asm.MovRegReg(false, Reg(out.RegisterID()), X0)
	}
	s.RestoreLiveRegisters(cg, locs)
	cg.asm.B(s.exit)
}
