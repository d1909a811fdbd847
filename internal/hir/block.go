// block.go - 基本块

package hir

// BasicBlock 基本块
type BasicBlock struct {
	ID           int
	Instructions []*Instruction
	Successors   []*BasicBlock
	Predecessors []*BasicBlock

	// BCPC 块第一条指令的字节码偏移
	BCPC uint32

	// 异常处理
	IsCatchBlock   bool
	CatchTypeIndex uint16

	// 循环
	IsLoopHeader bool
}

// AddInstruction 追加指令并回填 Block 指针
func (b *BasicBlock) AddInstruction(in *Instruction) {
	in.Block = b
	b.Instructions = append(b.Instructions, in)
}

// FirstInstruction 块内第一条指令，空块返回 nil
func (b *BasicBlock) FirstInstruction() *Instruction {
	if len(b.Instructions) == 0 {
		return nil
	}
	return b.Instructions[0]
}

// LastInstruction 块内最后一条指令，空块返回 nil
func (b *BasicBlock) LastInstruction() *Instruction {
	if len(b.Instructions) == 0 {
		return nil
	}
	return b.Instructions[len(b.Instructions)-1]
}

// IsSingleGoto 检查块是否只是一条无条件跳转
// 这类块不发射任何代码：前驱直接跳过它（见 codegen 的块序遍历）。
func (b *BasicBlock) IsSingleGoto() bool {
	return len(b.Instructions) == 1 && b.Instructions[0].Kind == KindGoto
}

// HasThrowingInstructions 检查块内是否有可抛异常的指令
func (b *BasicBlock) HasThrowingInstructions() bool {
	for _, in := range b.Instructions {
		if in.CanThrow {
			return true
		}
	}
	return false
}
