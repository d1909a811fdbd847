// frame.go - 栈帧布局计算
//
// 两分支策略：平凡叶方法完全跳过序言/尾声（空帧），
// 其余方法按 慢路径保存区 + 安全点溢出 + deopt 标志 + 序言溢出
// 叠加后向栈对齐取整。

package codegen

import (
	"math/bits"

	"go.uber.org/zap"

	"github.com/quasarlang/quasar/internal/hir"
)

// InitializeCodeGeneration 计算帧布局
//
// firstRegisterSlotInSlowPath 置于寄存器分配器自有的
// 溢出槽与出参槽之上，慢路径保存调用者保存寄存器从这里开始。
func (b *Base) InitializeCodeGeneration(spillSlots, safepointSpillSize, outSlots int, blockOrder []*hir.BasicBlock) {
	b.BlockOrder = blockOrder
	b.FirstRegisterSlotInSlowPath = alignUp((outSlots+spillSlots)*VRegSize, b.PreferredAlignment)

	g := b.Graph
	if spillSlots == 0 &&
		b.CoreSpillMask == 0 && b.FpSpillMask == 0 &&
		g.IsLeafMethod() && !g.RequiresCurrentMethod {
		// 空帧：零溢出槽 + 无被调用者保存分配 + 叶方法 +
		// 不需要 current-method 寄存器
		b.FrameSize = 0
		return
	}

	size := b.FirstRegisterSlotInSlowPath + safepointSpillSize
	if g.HasShouldDeoptimizeFlag {
		size += VRegSize
	}
	size += b.FrameEntrySpillSize()
	b.FrameSize = alignUp(size, b.StackAlignment)

	if b.FrameSize > runtimeMaxFrameSize {
		b.Logger.Fatal("栈帧超出上限",
			zap.Int("frame_size", b.FrameSize),
			zap.String("method", g.Method.Name))
	}
}

// runtimeMaxFrameSize 单方法栈帧上限，防御性约束
const runtimeMaxFrameSize = 1 << 20

// FrameEntrySpillSize 序言溢出的被调用者保存寄存器总字节数
func (b *Base) FrameEntrySpillSize() int {
	core := bits.OnesCount32(b.CoreSpillMask)
	fp := bits.OnesCount32(b.FpSpillMask)
	return (core + fp) * 8
}

// HasEmptyFrame 是否空帧
func (b *Base) HasEmptyFrame() bool {
	return b.FrameSize == 0
}

// ShouldDeoptimizeFlagOffset should-deoptimize 标志槽的栈偏移
func (b *Base) ShouldDeoptimizeFlagOffset() int {
	return b.FrameSize - b.FrameEntrySpillSize() - VRegSize
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
