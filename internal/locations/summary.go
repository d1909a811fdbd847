// summary.go - 指令位置摘要
//
// Summary 由位置构建 pass 创建，寄存器分配器改写其中的
// Unallocated 策略为具体位置，代码发射阶段只读。
// 活跃寄存器掩码与栈位掩码在安全点（safepoint）被栈图编码消费。

package locations

// CallKind 指令的调用性质
type CallKind byte

const (
	// NoCall 不调用运行时
	NoCall CallKind = iota
	// CallOnSlowPath 仅慢路径调用运行时
	CallOnSlowPath
	// CallOnMainPath 主路径直接调用运行时
	CallOnMainPath
)

// RegisterMask 寄存器位掩码
type RegisterMask uint32

// Add 置位寄存器
func (m *RegisterMask) Add(reg int) {
	*m |= 1 << uint(reg)
}

// Remove 清位寄存器
func (m *RegisterMask) Remove(reg int) {
	*m &^= 1 << uint(reg)
}

// Has 检查寄存器是否置位
func (m RegisterMask) Has(reg int) bool {
	return m&(1<<uint(reg)) != 0
}

// StackMask 栈槽位掩码（每位对应一个 vreg 宽度的栈槽）
type StackMask struct {
	bits []uint32
}

// NewStackMask 创建指定容量的栈掩码
func NewStackMask(slots int) *StackMask {
	return &StackMask{bits: make([]uint32, (slots+31)/32)}
}

// Set 置位栈槽
func (m *StackMask) Set(slot int) {
	word := slot / 32
	for word >= len(m.bits) {
		m.bits = append(m.bits, 0)
	}
	m.bits[word] |= 1 << uint(slot%32)
}

// Clear 清位栈槽
func (m *StackMask) Clear(slot int) {
	word := slot / 32
	if word < len(m.bits) {
		m.bits[word] &^= 1 << uint(slot%32)
	}
}

// Has 检查栈槽是否置位
func (m *StackMask) Has(slot int) bool {
	if m == nil {
		return false
	}
	word := slot / 32
	return word < len(m.bits) && m.bits[word]&(1<<uint(slot%32)) != 0
}

// Words 返回底层位字（栈图编码用）
func (m *StackMask) Words() []uint32 {
	if m == nil {
		return nil
	}
	return m.bits
}

// HighestBit 返回最高置位+1，无置位返回 0
func (m *StackMask) HighestBit() int {
	if m == nil {
		return 0
	}
	for w := len(m.bits) - 1; w >= 0; w-- {
		if m.bits[w] == 0 {
			continue
		}
		for b := 31; b >= 0; b-- {
			if m.bits[w]&(1<<uint(b)) != 0 {
				return w*32 + b + 1
			}
		}
	}
	return 0
}

// Summary 指令位置摘要
type Summary struct {
	inputs []Location
	temps  []Location
	output Location

	callKind CallKind

	// 安全点信息：跨过该指令仍活跃的寄存器与含引用的栈槽
	liveRegisters      RegisterMask
	liveFpuRegisters   RegisterMask
	referenceRegisters RegisterMask
	referenceMask      *StackMask

	// 标志
	Intrinsified                 bool
	CustomSlowPathCallerSaves    RegisterMask
	HasCustomSlowPathCallerSaves bool
}

// NewSummary 创建位置摘要
func NewSummary(inputCount int, callKind CallKind) *Summary {
	return &Summary{
		inputs:   make([]Location, inputCount),
		callKind: callKind,
	}
}

// SetInput 设置输入位置
func (s *Summary) SetInput(i int, loc Location) {
	s.inputs[i] = loc
}

// Input 取输入位置
func (s *Summary) Input(i int) Location {
	return s.inputs[i]
}

// InputCount 输入个数
func (s *Summary) InputCount() int {
	return len(s.inputs)
}

// SetOutput 设置输出位置
func (s *Summary) SetOutput(loc Location) {
	s.output = loc
}

// Output 取输出位置
func (s *Summary) Output() Location {
	return s.output
}

// OutputOverlapsFirstInput 输出是否采用"别名第一输入"策略
func (s *Summary) OutputOverlapsFirstInput() bool {
	return s.output.IsUnallocated() && s.output.UnallocatedPolicy() == PolicySameAsFirstInput
}

// AddTemp 添加临时位置
func (s *Summary) AddTemp(loc Location) {
	s.temps = append(s.temps, loc)
}

// Temp 取临时位置
func (s *Summary) Temp(i int) Location {
	return s.temps[i]
}

// TempCount 临时个数
func (s *Summary) TempCount() int {
	return len(s.temps)
}

// CallKind 取调用性质
func (s *Summary) CallKind() CallKind {
	return s.callKind
}

// NeedsSafepoint 指令是否需要安全点
func (s *Summary) NeedsSafepoint() bool {
	return s.callKind != NoCall
}

// AddLiveRegister 标记跨指令活跃的寄存器
func (s *Summary) AddLiveRegister(loc Location) {
	switch loc.Kind() {
	case KindRegister:
		s.liveRegisters.Add(loc.RegisterID())
	case KindRegisterPair:
		s.liveRegisters.Add(loc.PairLow())
		s.liveRegisters.Add(loc.PairHigh())
	case KindFpuRegister:
		s.liveFpuRegisters.Add(loc.RegisterID())
	case KindFpuRegisterPair:
		s.liveFpuRegisters.Add(loc.PairLow())
		s.liveFpuRegisters.Add(loc.PairHigh())
	}
}

// AddReferenceRegister 标记某通用寄存器持有对象引用
// （慢路径保存时据此回填栈引用掩码）
func (s *Summary) AddReferenceRegister(reg int) {
	s.referenceRegisters.Add(reg)
}

// RegisterContainsReference 检查寄存器是否持有对象引用
func (s *Summary) RegisterContainsReference(reg int) bool {
	return s.referenceRegisters.Has(reg)
}

// ReferenceRegisters 持有对象引用的寄存器掩码（安全点条目用）
func (s *Summary) ReferenceRegisters() RegisterMask {
	return s.referenceRegisters
}

// LiveRegisters 活跃通用寄存器掩码
func (s *Summary) LiveRegisters() RegisterMask {
	return s.liveRegisters
}

// LiveFpuRegisters 活跃浮点寄存器掩码
func (s *Summary) LiveFpuRegisters() RegisterMask {
	return s.liveFpuRegisters
}

// SetReferenceMask 设置含引用栈槽掩码
func (s *Summary) SetReferenceMask(m *StackMask) {
	s.referenceMask = m
}

// ReferenceMask 含引用栈槽掩码（可能为 nil）
func (s *Summary) ReferenceMask() *StackMask {
	return s.referenceMask
}
