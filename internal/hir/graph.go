// graph.go - HIR 指令图
//
// 后端的输入：定稿的指令图 + 寄存器分配结论。
// Blocks 的顺序就是发射顺序（由上游线性化 pass 决定），
// 后端只按此顺序走一遍，不做任何重排。

package hir

import (
	"github.com/quasarlang/quasar/internal/bytecode"
	"github.com/quasarlang/quasar/internal/locations"
)

// Graph HIR 指令图
type Graph struct {
	Method *bytecode.Function

	// Blocks 发射顺序的基本块
	Blocks []*BasicBlock

	// 寄存器分配器的结论（后端直接复用）
	NumVRegs        int // 方法的 vreg 个数
	NumSpillSlots   int // 分配器用掉的溢出槽数
	NumOutVRegs     int // 出参区槽数（调用传参用）
	CatchSpillSlots int // catch 块 vreg 暂存槽数

	// 分配器动用的被调用者保存寄存器掩码
	UsedCoreCalleeSaves uint32
	UsedFpuCalleeSaves  uint32

	// 方法性质
	HasTryCatch             bool
	HasLoops                bool
	HasSIMD                 bool
	HasShouldDeoptimizeFlag bool
	RequiresCurrentMethod   bool

	// 编译模式
	IsCompilingOSR      bool
	IsCompilingBaseline bool
	IsDebuggable        bool

	nextInstrID int
}

// NewGraph 创建图
func NewGraph(method *bytecode.Function) *Graph {
	return &Graph{
		Method:   method,
		NumVRegs: method.NumRegisters,
	}
}

// NewBlock 创建并追加基本块
func (g *Graph) NewBlock() *BasicBlock {
	b := &BasicBlock{ID: len(g.Blocks)}
	g.Blocks = append(g.Blocks, b)
	return b
}

// AddInstruction 给指令分配 ID 并挂入块
func (g *Graph) AddInstruction(b *BasicBlock, in *Instruction) *Instruction {
	in.ID = g.nextInstrID
	g.nextInstrID++
	b.AddInstruction(in)
	return in
}

// IsLeafMethod 检查是否是叶方法（图中无调用且无慢路径调用需求）
func (g *Graph) IsLeafMethod() bool {
	for _, b := range g.Blocks {
		for _, in := range b.Instructions {
			switch in.Kind {
			case KindInvokeStatic, KindInvokeVirtual, KindInvokeInterface:
				return false
			}
			if in.Locations != nil && in.Locations.CallKind() != locations.NoCall {
				return false
			}
		}
	}
	return true
}
