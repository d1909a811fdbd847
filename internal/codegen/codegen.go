// codegen.go - 代码生成器核心协议
//
// 架构无关的发射管线：帧建立/拆除、逐块逐指令分发、安全点记录、
// 慢路径发射、写屏障省略决策、运行时调用契约。
// 具体指令发射由各架构后端实现 Backend 接口，经工厂按指令集选取。
//
// 单方法编译由单个工作线程从头跑到尾，后端对象即一次编译的
// 全部可变状态，Compile 返回后即丢弃。

package codegen

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/quasarlang/quasar/internal/hir"
	"github.com/quasarlang/quasar/internal/locations"
)

// ============================================================================
// 后端接口与工厂
// ============================================================================

// Backend 一个指令集后端，实例即一次编译的可变状态
type Backend interface {
	// Base 共享协议状态
	Base() *Base

	// Initialize 架构簿记（按块的标签数组等）
	Initialize(g *hir.Graph)

	// GenerateFrameEntry 序言：栈溢出探测、寄存器溢出、
	// should-deoptimize 槽清零、热度计数
	GenerateFrameEntry()

	// GenerateFrameExit 尾声：恢复寄存器、归还栈帧
	GenerateFrameExit()

	// BindBlockEntry 绑定块入口标签
	BindBlockEntry(blockID int)

	// BlockEntryOffset 已绑定块的入口本地码偏移
	BlockEntryOffset(blockID int) int

	// EmitInstruction 分发一条指令
	EmitInstruction(in *hir.Instruction)

	// EmitNop 发射一条空操作（分隔安全点用）
	EmitNop()

	// EmitMove / EmitSwap 并行移动求解的回调
	EmitMove(dst, src locations.Location, t locations.PrimitiveType)
	EmitSwap(a, b locations.Location, t locations.PrimitiveType)

	// 慢路径寄存器保存回调，返回占用字节数
	SaveCoreRegister(stackOffset, reg int) int
	RestoreCoreRegister(stackOffset, reg int) int
	SaveFpuRegister(stackOffset, reg int) int
	RestoreFpuRegister(stackOffset, reg int) int

	// CodeSize 当前已发射字节数
	CodeSize() int

	// Finalize 回填重定位，返回最终机器码
	Finalize() ([]byte, error)

	// EmitLinkerPatches AOT 链接补丁（不支持 AOT 的后端返回 nil）
	EmitLinkerPatches() []LinkerPatch

	// EmitThunkCode 合成补丁指向的共享 thunk（读屏障等）；
	// 不支持的后端返回错误
	EmitThunkCode(p LinkerPatch) ([]byte, string, error)

	// ISA 指令集名
	ISA() string
}

// BackendFactory 按图与选项构造后端
type BackendFactory func(g *hir.Graph, opts *CompilerOptions) (Backend, error)

var backendFactories = map[string]BackendFactory{}

// RegisterBackend 登记一个指令集后端（后端包 init 调用）
func RegisterBackend(isa string, f BackendFactory) {
	backendFactories[isa] = f
}

// Create 按指令集名构造后端，未编译进该后端时返回错误，
// 调用方可回退到解释执行
func Create(isa string, g *hir.Graph, opts *CompilerOptions) (Backend, error) {
	f, ok := backendFactories[isa]
	if !ok {
		return nil, fmt.Errorf("指令集 %q 没有编译进后端", isa)
	}
	return f(g, opts)
}

// ============================================================================
// 共享协议状态
// ============================================================================

// Base 各后端共享的协议状态，嵌入在具体后端中
type Base struct {
	Graph   *hir.Graph
	Options *CompilerOptions
	Data    *CodeGenerationData
	Logger  *zap.Logger

	// 帧布局（InitializeCodeGeneration 填写）
	FrameSize                   int
	FirstRegisterSlotInSlowPath int
	CoreSpillMask               uint32
	FpSpillMask                 uint32

	// 被调用者保存集（后端构造时填写）
	CoreCalleeSaveMask locations.RegisterMask
	FpuCalleeSaveMask  locations.RegisterMask

	// 对齐（后端构造时填写）
	StackAlignment     int
	PreferredAlignment int

	// 块发射序与当前块下标（单调递增）
	BlockOrder        []*hir.BasicBlock
	CurrentBlockIndex int
}

// NewBase 创建协议状态
func NewBase(g *hir.Graph, opts *CompilerOptions) *Base {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Base{
		Graph:   g,
		Options: opts,
		Logger:  logger,
		Data: &CodeGenerationData{
			StackMaps: NewStackMapWriter(logger),
			Roots:     NewJitRootTable(),
		},
	}
}

// ============================================================================
// 编译管线
// ============================================================================

// CompileResult 一次编译的产物
type CompileResult struct {
	Code      []byte
	StackMaps []byte
	Patches   []LinkerPatch
	Roots     *JitRootTable
	FrameSize int
}

// Compile 驱动整个发射管线
func Compile(cg Backend) (*CompileResult, error) {
	base := cg.Base()
	g := base.Graph

	cg.Initialize(g)

	base.Data.StackMaps.BeginMethod(
		base.FrameSize, base.CoreSpillMask, base.FpSpillMask,
		g.NumVRegs,
		g.IsDebuggable, g.IsCompilingBaseline, g.IsCompilingOSR)

	cg.GenerateFrameEntry()

	for i, block := range base.BlockOrder {
		// 纯单跳块不发射：前驱直接跳过它们
		if block.IsSingleGoto() {
			continue
		}
		base.CurrentBlockIndex = i
		cg.BindBlockEntry(block.ID)

		// 本地调试器要求块入口有独立于首条指令的栈图
		if base.Options.NativeDebuggable && block.HasThrowingInstructions() {
			base.maybeRecordNativeDebugInfo(cg, block.BCPC)
		}

		for _, in := range block.Instructions {
			if in.Locations != nil {
				if err := hir.CheckTypeConsistency(in); err != nil {
					base.Logger.Fatal("指令位置类型不一致",
						zap.String("instruction", in.Kind.String()),
						zap.Error(err))
				}
			}
			// catch 块入口的合成空操作由 RecordCatchBlockInfo 统一处理
			if in.HasEnvironment() && in.NeedsSafepoint() && in.Kind != hir.KindNop {
				// 安全点记录在发射之前：记录的 PC 必须指向调用
				// 指令本身而非运行时返回地址，catch 才解析到
				// 正确的源行
				base.RecordPcInfo(cg, in, uint32(cg.CodeSize()), nil, StackMapDefault)
			}
			cg.EmitInstruction(in)
		}
	}

	// 慢路径按登记序各发射一次
	for _, sp := range base.Data.SlowPaths {
		sp.EmitNativeCode(cg)
		GlobalStats.SlowPathsEmitted.Inc()
	}

	if g.HasTryCatch {
		base.RecordCatchBlockInfo(cg)
	}

	code, err := cg.Finalize()
	if err != nil {
		return nil, fmt.Errorf("汇编收尾失败: %w", err)
	}

	base.Data.StackMaps.EndMethod(len(code))
	blob := base.Data.StackMaps.Encode()

	var patches []LinkerPatch
	if !base.Options.IsJitCompiler {
		patches = cg.EmitLinkerPatches()
	}

	GlobalStats.MethodsCompiled.Inc()
	GlobalStats.CodeBytes.Add(int64(len(code)))
	GlobalStats.StackMapBytes.Add(int64(len(blob)))

	return &CompileResult{
		Code:      code,
		StackMaps: blob,
		Patches:   patches,
		Roots:     base.Data.Roots,
		FrameSize: base.FrameSize,
	}, nil
}

// GoesToNextBlock 当前块是否顺序落入 target（可省略无条件跳转）。
// 只在 current 恰为正在发射的块时有效，且比较对象是下一个
// 非单跳块，不是发射序里的字面下一块。
func (b *Base) GoesToNextBlock(current, target *hir.BasicBlock) bool {
	if b.BlockOrder[b.CurrentBlockIndex] != current {
		b.Logger.Fatal("GoesToNextBlock 的 current 不是正在发射的块",
			zap.Int("block", current.ID))
	}
	next := b.FirstNonEmptyBlock(b.CurrentBlockIndex + 1)
	if next == nil {
		return false
	}
	return next == b.FirstNonEmptyBlockFrom(target)
}

// FirstNonEmptyBlock 发射序 index 起第一个非单跳块
func (b *Base) FirstNonEmptyBlock(index int) *hir.BasicBlock {
	for i := index; i < len(b.BlockOrder); i++ {
		if !b.BlockOrder[i].IsSingleGoto() {
			return b.BlockOrder[i]
		}
	}
	return nil
}

// FirstNonEmptyBlockFrom 沿单跳链找 block 实际落点
func (b *Base) FirstNonEmptyBlockFrom(block *hir.BasicBlock) *hir.BasicBlock {
	for block.IsSingleGoto() {
		block = block.Successors[0]
	}
	return block
}

// maybeRecordNativeDebugInfo 为块入口补一个与首指令区分的调试栈图
func (b *Base) maybeRecordNativeDebugInfo(cg Backend, bcPC uint32) {
	off := uint32(cg.CodeSize())
	if b.Data.StackMaps.EntryCount() > 0 &&
		b.Data.StackMaps.Entry(b.Data.StackMaps.EntryCount()-1).NativeOffset == off {
		cg.EmitNop()
		off = uint32(cg.CodeSize())
	}
	b.Data.StackMaps.BeginStackMapEntry(bcPC, off, 0, nil, StackMapDebug)
	b.Data.StackMaps.EndStackMapEntry()
}

// setStackReferenceBit 标记某栈字节偏移处为对象引用槽
func (b *Base) setStackReferenceBit(locs *locations.Summary, stackByteOffset int) {
	mask := locs.ReferenceMask()
	if mask == nil {
		mask = locations.NewStackMask(b.FrameSize / VRegSize)
		locs.SetReferenceMask(mask)
	}
	mask.Set(stackByteOffset / VRegSize)
}

// ============================================================================
// 写屏障省略策略
// ============================================================================

// StoreNeedsWriteBarrier 存储是否需要写屏障：
// 存引用且值不是可证为 null 的常量
func StoreNeedsWriteBarrier(t locations.PrimitiveType, value *hir.Instruction) bool {
	if t != locations.TypeReference {
		return false
	}
	return !value.IsNullConstant()
}

// ShouldCheckGCCard 写屏障被结构性省略时，是否发射运行期
// GC 卡校验断言。命中条件：调试断言开启、并发 GC 在用、
// 本次存储的屏障被省略、而一般策略本会要求屏障。
// 断言在漏屏障即将造成堆损坏的当口抓住它，而不是静默丢对象。
func (b *Base) ShouldCheckGCCard(t locations.PrimitiveType, value *hir.Instruction, wb hir.WriteBarrierKind) bool {
	return b.Options.EmitRunTimeChecksInDebugMode &&
		b.Options.EmitReadBarrier &&
		wb == hir.BarrierDontEmit &&
		StoreNeedsWriteBarrier(t, value)
}
