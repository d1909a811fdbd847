// slowpath.go - 慢路径协议
//
// 快路径发射中登记，全部快路径结束后按登记序各发射一次。
// 状态机：未登记 → 已登记 → 已发射（恰一次）。
// 致命慢路径（必抛异常、永不返回快路径）可用缩减的调用者保存集。

package codegen

import (
	"go.uber.org/zap"

	"github.com/quasarlang/quasar/internal/hir"
	"github.com/quasarlang/quasar/internal/locations"
	"github.com/quasarlang/quasar/internal/runtime"
)

// VRegSize 一个 vreg 槽的字节数
const VRegSize = 4

// SlowPath 一段延迟发射的线外代码
type SlowPath interface {
	// EmitNativeCode 在慢路径阶段发射本体，恰好调用一次
	EmitNativeCode(cg Backend)

	// Instruction 触发指令，全局慢路径为 nil
	Instruction() *hir.Instruction

	// IsFatal 是否永不返回快路径
	IsFatal() bool

	// Description 日志用名称
	Description() string
}

// SlowPathBase 慢路径公共部分：触发指令 + 保存寄存器的栈偏移表
type SlowPathBase struct {
	Instr *hir.Instruction

	savedCoreOffsets [32]int
	savedFpOffsets   [32]int
}

// NewSlowPathBase 创建公共部分
func NewSlowPathBase(in *hir.Instruction) SlowPathBase {
	b := SlowPathBase{Instr: in}
	for i := range b.savedCoreOffsets {
		b.savedCoreOffsets[i] = -1
		b.savedFpOffsets[i] = -1
	}
	return b
}

// Instruction 触发指令
func (s *SlowPathBase) Instruction() *hir.Instruction {
	return s.Instr
}

// SavedCoreOffset 核心寄存器的保存栈偏移，未保存为 -1
func (s *SlowPathBase) SavedCoreOffset(reg int) int {
	return s.savedCoreOffsets[reg]
}

// SavedFpOffset 浮点寄存器的保存栈偏移，未保存为 -1
func (s *SlowPathBase) SavedFpOffset(reg int) int {
	return s.savedFpOffsets[reg]
}

// slowPathSpills 需要慢路径保存的活跃调用者保存寄存器掩码
func slowPathSpills(base *Base, locs *locations.Summary, core bool) locations.RegisterMask {
	var live, calleeSaves locations.RegisterMask
	if core {
		live = locs.LiveRegisters()
		calleeSaves = base.CoreCalleeSaveMask
	} else {
		live = locs.LiveFpuRegisters()
		calleeSaves = base.FpuCalleeSaveMask
	}
	spills := live &^ calleeSaves
	if core && locs.HasCustomSlowPathCallerSaves {
		// 致命慢路径可声明更小的调用者保存集
		spills &= locs.CustomSlowPathCallerSaves
	}
	return spills
}

// SaveLiveRegisters 把跨触发指令仍活跃、且非被调用者保存的寄存器
// 溢出到慢路径专属栈区，并同步更新引用栈掩码，保证 GC 在
// 慢路径运行期间扫到正确的根。
func (s *SlowPathBase) SaveLiveRegisters(cg Backend, locs *locations.Summary) {
	base := cg.Base()
	offset := base.FirstRegisterSlotInSlowPath
	coreSpills := slowPathSpills(base, locs, true)
	fpSpills := slowPathSpills(base, locs, false)

	for reg := 0; reg < 32; reg++ {
		if !coreSpills.Has(reg) {
			continue
		}
		s.savedCoreOffsets[reg] = offset
		if locs.RegisterContainsReference(reg) {
			base.setStackReferenceBit(locs, offset)
		}
		offset += cg.SaveCoreRegister(offset, reg)
	}
	for reg := 0; reg < 32; reg++ {
		if !fpSpills.Has(reg) {
			continue
		}
		s.savedFpOffsets[reg] = offset
		offset += cg.SaveFpuRegister(offset, reg)
	}

	if offset > base.FrameSize {
		base.Logger.Fatal("慢路径寄存器保存区越出栈帧",
			zap.Int("offset", offset),
			zap.Int("frame_size", base.FrameSize))
	}
}

// RestoreLiveRegisters 按 SaveLiveRegisters 的布局原样恢复
func (s *SlowPathBase) RestoreLiveRegisters(cg Backend, locs *locations.Summary) {
	base := cg.Base()
	offset := base.FirstRegisterSlotInSlowPath
	coreSpills := slowPathSpills(base, locs, true)
	fpSpills := slowPathSpills(base, locs, false)

	for reg := 0; reg < 32; reg++ {
		if !coreSpills.Has(reg) {
			continue
		}
		offset += cg.RestoreCoreRegister(offset, reg)
	}
	for reg := 0; reg < 32; reg++ {
		if !fpSpills.Has(reg) {
			continue
		}
		offset += cg.RestoreFpuRegister(offset, reg)
	}
}

// ValidateInvokeRuntime 运行时调用前的静态契约检查：
//  1. 调用出自慢路径时摘要须声明 CallOnSlowPath，出自主路径须声明
//     CallOnMainPath（内建函数化调用除外）
//  2. 入口可能触发 GC 时，指令副作用须声明 CanTriggerGC
//     （读屏障标记入口例外：它对被管堆无语义副作用）
//
// 违例意味着优化器声明与发射行为脱节，属内部错误，直接终止。
func ValidateInvokeRuntime(base *Base, ep runtime.Entrypoint, in *hir.Instruction, sp SlowPath) {
	if in == nil {
		base.Logger.Fatal("运行时调用缺少触发指令", zap.String("entrypoint", ep.String()))
	}
	locs := in.Locations
	if sp != nil {
		if locs.CallKind() != locations.CallOnSlowPath {
			base.Logger.Fatal("慢路径运行时调用但摘要未声明 CallOnSlowPath",
				zap.String("instruction", in.Kind.String()),
				zap.String("slow_path", sp.Description()))
		}
	} else if !locs.Intrinsified && locs.CallKind() != locations.CallOnMainPath {
		base.Logger.Fatal("主路径运行时调用但摘要未声明 CallOnMainPath",
			zap.String("instruction", in.Kind.String()),
			zap.String("entrypoint", ep.String()))
	}
	if ep.CanTriggerGC() && !isReadBarrierEntrypoint(ep) && !in.SideEffects.CanTriggerGC() {
		base.Logger.Fatal("入口可触发 GC 但指令副作用未声明",
			zap.String("instruction", in.Kind.String()),
			zap.String("entrypoint", ep.String()))
	}
}

func isReadBarrierEntrypoint(ep runtime.Entrypoint) bool {
	return ep == runtime.EPReadBarrierSlow ||
		ep == runtime.EPReadBarrierForRootSlow ||
		(ep >= runtime.EPReadBarrierMarkReg00 && ep < runtime.EPReadBarrierMarkReg00+30)
}
