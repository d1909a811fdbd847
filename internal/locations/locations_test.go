// locations_test.go - 位置与摘要测试

package locations

import (
	"testing"

	"github.com/quasarlang/quasar/internal/bytecode"
)

// TestRegisterMask 测试寄存器掩码基本操作
func TestRegisterMask(t *testing.T) {
	var m RegisterMask

	m.Add(0)
	m.Add(19)
	m.Add(30)

	if !m.Has(0) || !m.Has(19) || !m.Has(30) {
		t.Error("Added registers should be present")
	}
	if m.Has(1) {
		t.Error("Register 1 was never added")
	}

	m.Remove(19)
	if m.Has(19) {
		t.Error("Register 19 should be removed")
	}
	if !m.Has(0) || !m.Has(30) {
		t.Error("Remove should not disturb other bits")
	}
}

// TestStackMask 测试栈掩码置位与最高位
func TestStackMask(t *testing.T) {
	m := NewStackMask(8)

	if m.HighestBit() != 0 {
		t.Errorf("Empty mask HighestBit = %d, want 0", m.HighestBit())
	}

	m.Set(2)
	m.Set(5)
	if !m.Has(2) || !m.Has(5) {
		t.Error("Set slots should be present")
	}
	if m.Has(3) {
		t.Error("Slot 3 was never set")
	}
	if m.HighestBit() != 6 {
		t.Errorf("HighestBit = %d, want 6", m.HighestBit())
	}

	// 越过初始容量时自动扩容
	m.Set(40)
	if !m.Has(40) {
		t.Error("Slot 40 should be present after grow")
	}
	if m.HighestBit() != 41 {
		t.Errorf("HighestBit = %d, want 41", m.HighestBit())
	}
	if len(m.Words()) != 2 {
		t.Errorf("Words = %d, want 2", len(m.Words()))
	}

	m.Clear(40)
	if m.Has(40) {
		t.Error("Slot 40 should be cleared")
	}
	if m.HighestBit() != 6 {
		t.Errorf("HighestBit after clear = %d, want 6", m.HighestBit())
	}
}

// TestStackMaskNil nil 掩码的只读访问都应安全
func TestStackMaskNil(t *testing.T) {
	var m *StackMask
	if m.Has(3) {
		t.Error("nil mask should contain nothing")
	}
	if m.HighestBit() != 0 {
		t.Error("nil mask HighestBit should be 0")
	}
	if m.Words() != nil {
		t.Error("nil mask Words should be nil")
	}
}

// TestSummaryInputsOutputs 测试摘要的输入/输出/临时位置
func TestSummaryInputsOutputs(t *testing.T) {
	s := NewSummary(2, NoCall)

	if s.InputCount() != 2 {
		t.Fatalf("InputCount = %d, want 2", s.InputCount())
	}
	if s.CallKind() != NoCall {
		t.Error("CallKind should be NoCall")
	}
	if s.NeedsSafepoint() {
		t.Error("NoCall summary should not need a safepoint")
	}

	s.SetInput(0, Register(1))
	s.SetInput(1, Constant(bytecode.NewInt(7)))
	s.SetOutput(Register(0))

	if s.Input(0).RegisterID() != 1 {
		t.Errorf("Input(0) = %s, want r1", s.Input(0))
	}
	if s.Input(1).Kind() != KindConstant {
		t.Errorf("Input(1) kind = %v, want constant", s.Input(1).Kind())
	}
	if s.Output().RegisterID() != 0 {
		t.Errorf("Output = %s, want r0", s.Output())
	}

	s.AddTemp(Register(16))
	s.AddTemp(FpuRegister(3))
	if s.TempCount() != 2 {
		t.Fatalf("TempCount = %d, want 2", s.TempCount())
	}
	if s.Temp(0).RegisterID() != 16 {
		t.Errorf("Temp(0) = %s, want r16", s.Temp(0))
	}
	if s.Temp(1).Kind() != KindFpuRegister {
		t.Errorf("Temp(1) kind = %v, want fpu register", s.Temp(1).Kind())
	}
}

// TestSummarySafepointMasks 测试安全点活跃/引用掩码
func TestSummarySafepointMasks(t *testing.T) {
	s := NewSummary(0, CallOnSlowPath)

	if !s.NeedsSafepoint() {
		t.Error("CallOnSlowPath summary should need a safepoint")
	}

	s.AddLiveRegister(Register(1))
	s.AddLiveRegister(Register(2))
	s.AddLiveRegister(FpuRegister(8))

	if !s.LiveRegisters().Has(1) || !s.LiveRegisters().Has(2) {
		t.Error("Core live registers missing")
	}
	if s.LiveRegisters().Has(8) {
		t.Error("FPU register leaked into core mask")
	}
	if !s.LiveFpuRegisters().Has(8) {
		t.Error("FPU live register missing")
	}

	s.AddReferenceRegister(1)
	if !s.RegisterContainsReference(1) {
		t.Error("Register 1 should hold a reference")
	}
	if s.RegisterContainsReference(2) {
		t.Error("Register 2 holds a plain value")
	}

	mask := NewStackMask(4)
	mask.Set(1)
	s.SetReferenceMask(mask)
	if !s.ReferenceMask().Has(1) {
		t.Error("Reference stack mask lost")
	}
}

// TestCheckType 测试类型/位置相容规则
func TestCheckType(t *testing.T) {
	tests := []struct {
		name string
		t    PrimitiveType
		loc  Location
		want bool
	}{
		{"int in core register", TypeInt32, Register(3), true},
		{"reference in core register", TypeReference, Register(3), true},
		{"float in core register", TypeFloat32, Register(3), false},
		{"float in fpu register", TypeFloat32, FpuRegister(3), true},
		{"int in fpu register", TypeInt32, FpuRegister(3), false},
		{"long in stack slot", TypeInt64, StackSlot(8), false},
		{"int in stack slot", TypeInt32, StackSlot(8), true},
		{"void with invalid", TypeVoid, Invalid(), true},
		{"int with invalid", TypeInt32, Invalid(), false},
		{"int constant", TypeInt32, Constant(bytecode.NewInt(1)), true},
	}
	for _, tt := range tests {
		if got := CheckType(tt.t, tt.loc); got != tt.want {
			t.Errorf("%s: CheckType = %v, want %v", tt.name, got, tt.want)
		}
	}
}
