package main

import (
	"github.com/quasarlang/quasar/internal/bytecode"
	"github.com/quasarlang/quasar/internal/hir"
	"github.com/quasarlang/quasar/internal/locations"
)

// 自测图直接以寄存器分配完成的形态手写：
// 驱动不带上游优化管线，这些图覆盖发射器的代表性路径
// （空帧叶方法、魔数除法、带挂起检查的循环）。

// 自测用的固定寄存器编号（ARM64 调用者保存）
const (
	regR0 = 0
	regR1 = 1
	regR2 = 2
)

func selftestGraphs() []*hir.Graph {
	return []*hir.Graph{
		buildAddConstGraph(),
		buildDivBySevenGraph(),
		buildLoopSumGraph(),
	}
}

func intConst(g *hir.Graph, b *hir.BasicBlock, v int64) *hir.Instruction {
	in := hir.NewInstruction(hir.KindIntConstant, locations.TypeInt32)
	in.ConstVal = bytecode.NewInt(v)
	return g.AddInstruction(b, in)
}

// buildAddConstGraph 40 + 2：平凡叶方法，应得到空帧
func buildAddConstGraph() *hir.Graph {
	g := hir.NewGraph(&bytecode.Function{
		Name: "SelfTest.addConst", MethodIndex: 1,
		NumRegisters: 2, IsStatic: true, IsLeaf: true,
	})
	b0 := g.NewBlock()

	c40 := intConst(g, b0, 40)
	c2 := intConst(g, b0, 2)

	mov := hir.NewInstruction(hir.KindParallelMove, locations.TypeVoid)
	mov.Moves = []hir.MovePair{{
		Source:      locations.Constant(bytecode.NewInt(40)),
		Destination: locations.Register(regR1),
		Type:        locations.TypeInt32,
	}}
	g.AddInstruction(b0, mov)

	add := hir.NewInstruction(hir.KindAdd, locations.TypeInt32, c40, c2)
	add.Locations = locations.NewSummary(2, locations.NoCall)
	add.Locations.SetInput(0, locations.Register(regR1))
	add.Locations.SetInput(1, locations.Constant(bytecode.NewInt(2)))
	add.Locations.SetOutput(locations.Register(regR0))
	g.AddInstruction(b0, add)

	ret := hir.NewInstruction(hir.KindReturn, locations.TypeVoid, add)
	ret.Locations = locations.NewSummary(1, locations.NoCall)
	ret.Locations.SetInput(0, locations.Register(regR0))
	g.AddInstruction(b0, ret)
	return g
}

// buildDivBySevenGraph 1234 / 7：常量除数走魔数路径，不出 SDIV
func buildDivBySevenGraph() *hir.Graph {
	g := hir.NewGraph(&bytecode.Function{
		Name: "SelfTest.divBySeven", MethodIndex: 2,
		NumRegisters: 2, IsStatic: true, IsLeaf: true,
	})
	b0 := g.NewBlock()

	dividend := intConst(g, b0, 1234)
	divisor := intConst(g, b0, 7)

	mov := hir.NewInstruction(hir.KindParallelMove, locations.TypeVoid)
	mov.Moves = []hir.MovePair{{
		Source:      locations.Constant(bytecode.NewInt(1234)),
		Destination: locations.Register(regR1),
		Type:        locations.TypeInt32,
	}}
	g.AddInstruction(b0, mov)

	div := hir.NewInstruction(hir.KindDiv, locations.TypeInt32, dividend, divisor)
	div.Locations = locations.NewSummary(2, locations.NoCall)
	div.Locations.SetInput(0, locations.Register(regR1))
	div.Locations.SetInput(1, locations.Constant(bytecode.NewInt(7)))
	div.Locations.SetOutput(locations.Register(regR0))
	g.AddInstruction(b0, div)

	ret := hir.NewInstruction(hir.KindReturn, locations.TypeVoid, div)
	ret.Locations = locations.NewSummary(1, locations.NoCall)
	ret.Locations.SetInput(0, locations.Register(regR0))
	g.AddInstruction(b0, ret)
	return g
}

// buildLoopSumGraph sum(0..999)：循环头挂起检查由回边代发，
// 慢路径要保存/恢复跨安全点活跃的 R1/R2
func buildLoopSumGraph() *hir.Graph {
	g := hir.NewGraph(&bytecode.Function{
		Name: "SelfTest.loopSum", MethodIndex: 3,
		NumRegisters: 3, IsStatic: true,
	})
	g.HasLoops = true

	b0 := g.NewBlock() // 入口：i=0, sum=0
	b1 := g.NewBlock() // 循环头：挂起检查 + 条件
	b2 := g.NewBlock() // 循环体
	b3 := g.NewBlock() // 出口

	b0.Successors = []*hir.BasicBlock{b1}
	b1.Successors = []*hir.BasicBlock{b2, b3}
	b2.Successors = []*hir.BasicBlock{b1}
	b1.Predecessors = []*hir.BasicBlock{b0, b2}
	b2.Predecessors = []*hir.BasicBlock{b1}
	b3.Predecessors = []*hir.BasicBlock{b1}
	b1.IsLoopHeader = true

	// b0
	init := hir.NewInstruction(hir.KindParallelMove, locations.TypeVoid)
	zero := locations.Constant(bytecode.NewInt(0))
	init.Moves = []hir.MovePair{
		{Source: zero, Destination: locations.Register(regR1), Type: locations.TypeInt32},
		{Source: zero, Destination: locations.Register(regR2), Type: locations.TypeInt32},
	}
	g.AddInstruction(b0, init)
	g.AddInstruction(b0, hir.NewInstruction(hir.KindGoto, locations.TypeVoid))

	// b1：挂起检查排第一，回边融合发射依赖这个位置
	suspend := hir.NewInstruction(hir.KindSuspendCheck, locations.TypeVoid)
	suspend.SideEffects = hir.SideEffectCanTriggerGC
	suspend.Locations = locations.NewSummary(0, locations.CallOnSlowPath)
	suspend.Locations.AddLiveRegister(locations.Register(regR1))
	suspend.Locations.AddLiveRegister(locations.Register(regR2))
	g.AddInstruction(b1, suspend)

	phiI := hir.NewInstruction(hir.KindPhi, locations.TypeInt32)
	phiI.Locations = locations.NewSummary(0, locations.NoCall)
	phiI.Locations.SetOutput(locations.Register(regR1))
	g.AddInstruction(b1, phiI)

	phiSum := hir.NewInstruction(hir.KindPhi, locations.TypeInt32)
	phiSum.Locations = locations.NewSummary(0, locations.NoCall)
	phiSum.Locations.SetOutput(locations.Register(regR2))
	g.AddInstruction(b1, phiSum)

	limit := intConst(g, b1, 1000)
	cond := hir.NewInstruction(hir.KindCondition, locations.TypeBool, phiI, limit)
	cond.Cond = hir.CondLT
	cond.Locations = locations.NewSummary(2, locations.NoCall)
	cond.Locations.SetInput(0, locations.Register(regR1))
	cond.Locations.SetInput(1, locations.Constant(bytecode.NewInt(1000)))
	g.AddInstruction(b1, cond)

	ifInstr := hir.NewInstruction(hir.KindIf, locations.TypeVoid, cond)
	ifInstr.Locations = locations.NewSummary(1, locations.NoCall)
	g.AddInstruction(b1, ifInstr)

	// b2：sum += i; i += 1
	addSum := hir.NewInstruction(hir.KindAdd, locations.TypeInt32, phiSum, phiI)
	addSum.Locations = locations.NewSummary(2, locations.NoCall)
	addSum.Locations.SetInput(0, locations.Register(regR2))
	addSum.Locations.SetInput(1, locations.Register(regR1))
	addSum.Locations.SetOutput(locations.Register(regR2))
	g.AddInstruction(b2, addSum)

	one := intConst(g, b2, 1)
	addI := hir.NewInstruction(hir.KindAdd, locations.TypeInt32, phiI, one)
	addI.Locations = locations.NewSummary(2, locations.NoCall)
	addI.Locations.SetInput(0, locations.Register(regR1))
	addI.Locations.SetInput(1, locations.Constant(bytecode.NewInt(1)))
	addI.Locations.SetOutput(locations.Register(regR1))
	g.AddInstruction(b2, addI)
	g.AddInstruction(b2, hir.NewInstruction(hir.KindGoto, locations.TypeVoid))

	// b3
	mov := hir.NewInstruction(hir.KindParallelMove, locations.TypeVoid)
	mov.Moves = []hir.MovePair{{
		Source:      locations.Register(regR2),
		Destination: locations.Register(regR0),
		Type:        locations.TypeInt32,
	}}
	g.AddInstruction(b3, mov)

	ret := hir.NewInstruction(hir.KindReturn, locations.TypeVoid, phiSum)
	ret.Locations = locations.NewSummary(1, locations.NoCall)
	ret.Locations.SetInput(0, locations.Register(regR0))
	g.AddInstruction(b3, ret)
	return g
}
