// consistency_test.go - 指令一致性检查测试

package hir

import (
	"testing"

	"github.com/quasarlang/quasar/internal/bytecode"
	"github.com/quasarlang/quasar/internal/locations"
)

func intConstant(v int64) *Instruction {
	in := NewInstruction(KindIntConstant, locations.TypeInt32)
	in.ConstVal = bytecode.NewInt(v)
	return in
}

// TestConsistencyNilSummary 无摘要的指令直接放行
func TestConsistencyNilSummary(t *testing.T) {
	in := intConstant(1)
	if err := CheckTypeConsistency(in); err != nil {
		t.Errorf("nil summary should pass, got %v", err)
	}
}

// TestConsistencyValid 合法的寄存器分配通过检查
func TestConsistencyValid(t *testing.T) {
	a := intConstant(1)
	b := intConstant(2)
	add := NewInstruction(KindAdd, locations.TypeInt32, a, b)
	add.Locations = locations.NewSummary(2, locations.NoCall)
	add.Locations.SetInput(0, locations.Register(1))
	add.Locations.SetInput(1, locations.Constant(bytecode.NewInt(2)))
	add.Locations.SetOutput(locations.Register(0))

	if err := CheckTypeConsistency(add); err != nil {
		t.Errorf("valid allocation rejected: %v", err)
	}
}

// TestConsistencyFloatInCoreRegister 浮点输出落通用寄存器应报错
func TestConsistencyFloatInCoreRegister(t *testing.T) {
	a := NewInstruction(KindFloatConstant, locations.TypeFloat32)
	a.ConstVal = bytecode.NewFloat(1.5)
	neg := NewInstruction(KindNeg, locations.TypeFloat32, a)
	neg.Locations = locations.NewSummary(1, locations.NoCall)
	neg.Locations.SetInput(0, locations.FpuRegister(0))
	neg.Locations.SetOutput(locations.Register(0))

	if err := CheckTypeConsistency(neg); err == nil {
		t.Error("float output in core register should be rejected")
	}
}

// TestConsistencyIntInFpuRegister 整型输入落浮点寄存器应报错
func TestConsistencyIntInFpuRegister(t *testing.T) {
	a := intConstant(1)
	neg := NewInstruction(KindNeg, locations.TypeInt32, a)
	neg.Locations = locations.NewSummary(1, locations.NoCall)
	neg.Locations.SetInput(0, locations.FpuRegister(2))
	neg.Locations.SetOutput(locations.Register(0))

	if err := CheckTypeConsistency(neg); err == nil {
		t.Error("int input in fpu register should be rejected")
	}
}

// TestConsistencyUnallocated 分配完成后残留 Unallocated 应报错
func TestConsistencyUnallocated(t *testing.T) {
	a := intConstant(1)
	neg := NewInstruction(KindNeg, locations.TypeInt32, a)
	neg.Locations = locations.NewSummary(1, locations.NoCall)
	neg.Locations.SetInput(0, locations.Unallocated(locations.PolicyRequiresRegister))
	neg.Locations.SetOutput(locations.Register(0))

	if err := CheckTypeConsistency(neg); err == nil {
		t.Error("unallocated input should be rejected")
	}
}

// TestConsistencyInvalidInputSkipped 无效输入位置（融合场景）被跳过
func TestConsistencyInvalidInputSkipped(t *testing.T) {
	cond := NewInstruction(KindCondition, locations.TypeBool, intConstant(1), intConstant(2))
	cond.Cond = CondLT
	cond.Locations = locations.NewSummary(2, locations.NoCall)
	cond.Locations.SetInput(0, locations.Register(1))
	cond.Locations.SetInput(1, locations.Constant(bytecode.NewInt(2)))
	// 条件融合进分支时无输出

	br := NewInstruction(KindIf, locations.TypeVoid, cond)
	br.Locations = locations.NewSummary(1, locations.NoCall)
	// 融合后的分支不读条件的物化值，输入位置保持 Invalid

	if err := CheckTypeConsistency(cond); err != nil {
		t.Errorf("fused condition rejected: %v", err)
	}
	if err := CheckTypeConsistency(br); err != nil {
		t.Errorf("branch with invalid input rejected: %v", err)
	}
}

// TestConsistencyDeadEnvSlot 死环境槽挂着有效位置应报错
func TestConsistencyDeadEnvSlot(t *testing.T) {
	in := NewInstruction(KindSuspendCheck, locations.TypeVoid)
	in.Locations = locations.NewSummary(0, locations.CallOnSlowPath)
	in.Env = &Environment{
		Slots: []EnvSlot{
			{Value: nil, Location: locations.Register(1)},
		},
	}

	if err := CheckTypeConsistency(in); err == nil {
		t.Error("dead environment slot with live location should be rejected")
	}
}
