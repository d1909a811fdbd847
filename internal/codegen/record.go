// record.go - 安全点记录
//
// RecordPcInfo 在指令发射前调用：记录的本地 PC 指向调用指令本身。
// 变量表只在确有消费者时编码（NeedsVregInfo），多数安全点
// 只带 GC 根掩码。

package codegen

import (
	"go.uber.org/zap"

	"github.com/quasarlang/quasar/internal/hir"
	"github.com/quasarlang/quasar/internal/locations"
)

// regSaver 保存过寄存器的慢路径（SlowPathBase 实现）
type regSaver interface {
	SavedCoreOffset(reg int) int
	SavedFpOffset(reg int) int
}

// NeedsVregInfo 该安全点是否需要变量位置表
func (b *Base) NeedsVregInfo(in *hir.Instruction, osr bool) bool {
	g := b.Graph
	return in.Kind == hir.KindDeoptimize ||
		g.IsDebuggable ||
		g.Method.HasMonitorOps ||
		osr ||
		(in.CanThrow && g.HasTryCatch)
}

// RecordPcInfo 为指令记录一个安全点条目
func (b *Base) RecordPcInfo(cg Backend, in *hir.Instruction, nativeOffset uint32, sp SlowPath, kind StackMapKind) {
	locs := in.Locations
	env := in.Env

	bcPC := in.BCPC
	if env != nil {
		bcPC = env.Outermost().BCPC
	}

	var registerMask uint32
	var stackMask *locations.StackMask
	if locs != nil {
		registerMask = uint32(locs.ReferenceRegisters())
		stackMask = locs.ReferenceMask()
	}

	sm := b.Data.StackMaps
	sm.BeginStackMapEntry(bcPC, nativeOffset, registerMask, stackMask, kind)

	if env != nil {
		// 内联链由外向内补记（最外层已是条目本身的源位置）
		chain := envChainOutward(env)
		for _, link := range chain[1:] {
			sm.AddInlineEntry(link.MethodIndex, link.BCPC)
		}
		if b.NeedsVregInfo(in, kind == StackMapOSR) {
			b.emitVRegMap(env, sp)
		}
		if kind == StackMapOSR && b.Options.EmitRunTimeChecksInDebugMode {
			b.checkOSREnvironment(env)
		}
	}

	sm.EndStackMapEntry()
	GlobalStats.SafepointsEmitted.Inc()
}

// envChainOutward 环境链，最外层在前
func envChainOutward(env *hir.Environment) []*hir.Environment {
	var chain []*hir.Environment
	for cur := env; cur != nil; cur = cur.Parent {
		chain = append([]*hir.Environment{cur}, chain...)
	}
	return chain
}

// emitVRegMap 按 vreg 序编码最内层环境的变量位置。
// 64 位值占两个槽，低字在前。被慢路径保存过的寄存器值
// 必须编码为其保存栈偏移：慢路径自己的运行时调用可能改写寄存器。
func (b *Base) emitVRegMap(env *hir.Environment, sp SlowPath) {
	sm := b.Data.StackMaps
	saver, _ := sp.(regSaver)

	slots := env.Slots
	for i := 0; i < len(slots); i++ {
		slot := slots[i]
		if slot.Value == nil {
			if slot.Location.IsValid() {
				b.Logger.Fatal("死变量槽挂着非 Invalid 位置", zap.Int("slot", i))
			}
			sm.AddDexRegisterEntry(VRegNone, 0)
			continue
		}
		loc := slot.Location
		wide := slot.Value.Type.Is64Bit()

		switch loc.Kind() {
		case locations.KindInvalid:
			sm.AddDexRegisterEntry(VRegNone, 0)

		case locations.KindConstant:
			bits := loc.ConstValue().Bits()
			sm.AddDexRegisterEntry(VRegConstant, int32(uint32(bits)))
			if wide {
				sm.AddDexRegisterEntry(VRegConstant, int32(uint32(bits>>32)))
				i++
			}

		case locations.KindStackSlot:
			sm.AddDexRegisterEntry(VRegInStack, int32(loc.StackOffset()))

		case locations.KindDoubleStackSlot:
			off := loc.StackOffset()
			sm.AddDexRegisterEntry(VRegInStack, int32(off))
			sm.AddDexRegisterEntry(VRegInStack, int32(off+VRegSize))
			i++

		case locations.KindRegister:
			reg := loc.RegisterID()
			if saved := savedCore(saver, reg); saved >= 0 {
				sm.AddDexRegisterEntry(VRegInStack, int32(saved))
				if wide {
					sm.AddDexRegisterEntry(VRegInStack, int32(saved+VRegSize))
					i++
				}
			} else {
				sm.AddDexRegisterEntry(VRegInRegister, int32(reg))
				if wide {
					sm.AddDexRegisterEntry(VRegInRegisterHigh, int32(reg))
					i++
				}
			}

		case locations.KindRegisterPair:
			sm.AddDexRegisterEntry(VRegInRegister, int32(loc.PairLow()))
			sm.AddDexRegisterEntry(VRegInRegisterHigh, int32(loc.PairHigh()))
			i++

		case locations.KindFpuRegister:
			reg := loc.RegisterID()
			if saved := savedFp(saver, reg); saved >= 0 {
				sm.AddDexRegisterEntry(VRegInStack, int32(saved))
				if wide {
					sm.AddDexRegisterEntry(VRegInStack, int32(saved+VRegSize))
					i++
				}
			} else {
				sm.AddDexRegisterEntry(VRegInFpuRegister, int32(reg))
				if wide {
					sm.AddDexRegisterEntry(VRegInFpuRegisterHigh, int32(reg))
					i++
				}
			}

		case locations.KindFpuRegisterPair:
			sm.AddDexRegisterEntry(VRegInFpuRegister, int32(loc.PairLow()))
			sm.AddDexRegisterEntry(VRegInFpuRegisterHigh, int32(loc.PairHigh()))
			i++

		default:
			b.Logger.Fatal("变量槽位置种类无法编码",
				zap.Int("slot", i),
				zap.String("location", loc.String()))
		}
	}
}

func savedCore(saver regSaver, reg int) int {
	if saver == nil {
		return -1
	}
	return saver.SavedCoreOffset(reg)
}

func savedFp(saver regSaver, reg int) int {
	if saver == nil {
		return -1
	}
	return saver.SavedFpOffset(reg)
}

// checkOSREnvironment OSR 入口约束：每个活值要么是循环 phi
// 要么是常量，栈内值必须落在当前帧内
func (b *Base) checkOSREnvironment(env *hir.Environment) {
	for i, slot := range env.Slots {
		if slot.Value == nil {
			continue
		}
		loc := slot.Location
		switch loc.Kind() {
		case locations.KindConstant:
			// 常量总是合法
		case locations.KindStackSlot, locations.KindDoubleStackSlot:
			off := int(loc.StackOffset())
			if off < 0 || off >= b.FrameSize {
				b.Logger.Fatal("OSR 环境栈值越出当前帧",
					zap.Int("slot", i),
					zap.Int("offset", off))
			}
			if slot.Value.Kind != hir.KindPhi {
				b.Logger.Fatal("OSR 环境非常量值不是循环 phi",
					zap.Int("slot", i),
					zap.String("kind", slot.Value.Kind.String()))
			}
		default:
			b.Logger.Fatal("OSR 环境值既非常量也非栈内 phi",
				zap.Int("slot", i),
				zap.String("location", loc.String()))
		}
	}
}

// RecordCatchBlockInfo 为每个 catch 块在其入口地址补一条
// Catch 栈图，从完整外推环境链构造，独立于普通安全点机制
// （catch 入口本身不是调用点）。
func (b *Base) RecordCatchBlockInfo(cg Backend) {
	sm := b.Data.StackMaps
	for _, block := range b.BlockOrder {
		if !block.IsCatchBlock {
			continue
		}
		off := uint32(cg.BlockEntryOffset(block.ID))
		first := block.FirstInstruction()

		var env *hir.Environment
		if first != nil && first.HasEnvironment() {
			env = first.Env
		}
		bcPC := block.BCPC
		if env != nil {
			bcPC = env.Outermost().BCPC
		}
		sm.BeginStackMapEntry(bcPC, off, 0, nil, StackMapCatch)
		if env != nil {
			chain := envChainOutward(env)
			for _, link := range chain[1:] {
				sm.AddInlineEntry(link.MethodIndex, link.BCPC)
			}
			b.emitVRegMap(env, nil)
		}
		sm.EndStackMapEntry()
	}
}
