// location.go - 操作数位置模型
//
// Location 描述一个操作数在机器层面的存放位置：
// 寄存器、寄存器对、栈槽、常量或尚未分配。
// 寄存器分配完成后附着在指令上的 Location 绝不允许是 Unallocated，
// 这是贯穿整个后端的standing invariant（见 check.go）。

package locations

import (
	"fmt"

	"github.com/quasarlang/quasar/internal/bytecode"
)

// Kind 位置种类
type Kind byte

const (
	KindInvalid Kind = iota
	KindConstant
	KindStackSlot       // 32 位栈槽
	KindDoubleStackSlot // 64 位栈槽
	KindSIMDStackSlot   // 128 位栈槽
	KindRegister
	KindRegisterPair
	KindFpuRegister
	KindFpuRegisterPair
	KindUnallocated
)

// Policy 未分配位置的分配策略（由寄存器分配器消费）
type Policy byte

const (
	PolicyAny Policy = iota
	PolicyRequiresRegister
	PolicyRequiresFpuRegister
	PolicySameAsFirstInput
)

// Location 操作数位置
// 值类型：可自由复制，零值即 Invalid。
type Location struct {
	kind   Kind
	lo     int32 // 寄存器编号 / 栈偏移 / 策略
	hi     int32 // 寄存器对的高位寄存器
	cval   bytecode.Value
}

// Invalid 无效位置
func Invalid() Location {
	return Location{kind: KindInvalid}
}

// Constant 常量位置
func Constant(v bytecode.Value) Location {
	return Location{kind: KindConstant, cval: v}
}

// StackSlot 32 位栈槽（相对帧基址的字节偏移）
func StackSlot(offset int32) Location {
	return Location{kind: KindStackSlot, lo: offset}
}

// DoubleStackSlot 64 位栈槽
func DoubleStackSlot(offset int32) Location {
	return Location{kind: KindDoubleStackSlot, lo: offset}
}

// SIMDStackSlot 128 位栈槽
func SIMDStackSlot(offset int32) Location {
	return Location{kind: KindSIMDStackSlot, lo: offset}
}

// Register 通用寄存器
func Register(id int) Location {
	return Location{kind: KindRegister, lo: int32(id)}
}

// RegisterPair 通用寄存器对（64 位值拆放两个 32 位寄存器）
func RegisterPair(lo, hi int) Location {
	return Location{kind: KindRegisterPair, lo: int32(lo), hi: int32(hi)}
}

// FpuRegister 浮点寄存器
func FpuRegister(id int) Location {
	return Location{kind: KindFpuRegister, lo: int32(id)}
}

// FpuRegisterPair 浮点寄存器对
func FpuRegisterPair(lo, hi int) Location {
	return Location{kind: KindFpuRegisterPair, lo: int32(lo), hi: int32(hi)}
}

// Unallocated 未分配位置（携带分配策略）
func Unallocated(p Policy) Location {
	return Location{kind: KindUnallocated, lo: int32(p)}
}

// Kind 返回位置种类
func (l Location) Kind() Kind {
	return l.kind
}

// IsValid 检查位置是否有效
func (l Location) IsValid() bool {
	return l.kind != KindInvalid
}

// IsConstant 检查是否是常量
func (l Location) IsConstant() bool {
	return l.kind == KindConstant
}

// IsRegister 检查是否是通用寄存器
func (l Location) IsRegister() bool {
	return l.kind == KindRegister
}

// IsRegisterPair 检查是否是通用寄存器对
func (l Location) IsRegisterPair() bool {
	return l.kind == KindRegisterPair
}

// IsFpuRegister 检查是否是浮点寄存器
func (l Location) IsFpuRegister() bool {
	return l.kind == KindFpuRegister
}

// IsStackSlot 检查是否是 32 位栈槽
func (l Location) IsStackSlot() bool {
	return l.kind == KindStackSlot
}

// IsDoubleStackSlot 检查是否是 64 位栈槽
func (l Location) IsDoubleStackSlot() bool {
	return l.kind == KindDoubleStackSlot
}

// IsAnyStackSlot 检查是否落在栈上
func (l Location) IsAnyStackSlot() bool {
	return l.kind == KindStackSlot || l.kind == KindDoubleStackSlot || l.kind == KindSIMDStackSlot
}

// IsUnallocated 检查是否未分配
func (l Location) IsUnallocated() bool {
	return l.kind == KindUnallocated
}

// RegisterID 取寄存器编号
func (l Location) RegisterID() int {
	return int(l.lo)
}

// PairLow 取寄存器对低位编号
func (l Location) PairLow() int {
	return int(l.lo)
}

// PairHigh 取寄存器对高位编号
func (l Location) PairHigh() int {
	return int(l.hi)
}

// StackOffset 取栈偏移
func (l Location) StackOffset() int32 {
	return l.lo
}

// ConstValue 取常量值
func (l Location) ConstValue() bytecode.Value {
	return l.cval
}

// UnallocatedPolicy 取分配策略
func (l Location) UnallocatedPolicy() Policy {
	return Policy(l.lo)
}

// Equals 检查两个位置是否相同
func (l Location) Equals(other Location) bool {
	if l.kind != other.kind {
		return false
	}
	if l.kind == KindConstant {
		return l.cval == other.cval
	}
	return l.lo == other.lo && l.hi == other.hi
}

// OverlapsWith 检查两个位置是否占用同一物理资源
// 寄存器对与其成员寄存器视为重叠。
func (l Location) OverlapsWith(other Location) bool {
	if l.Equals(other) {
		return true
	}
	if l.kind == KindRegisterPair && other.kind == KindRegister {
		return l.lo == other.lo || l.hi == other.lo
	}
	if other.kind == KindRegisterPair && l.kind == KindRegister {
		return other.lo == l.lo || other.hi == l.lo
	}
	if l.kind == KindRegisterPair && other.kind == KindRegisterPair {
		return l.lo == other.lo || l.lo == other.hi || l.hi == other.lo || l.hi == other.hi
	}
	return false
}

// String 返回位置的字符串表示
func (l Location) String() string {
	switch l.kind {
	case KindInvalid:
		return "invalid"
	case KindConstant:
		return fmt.Sprintf("const(%s)", l.cval.String())
	case KindStackSlot:
		return fmt.Sprintf("stack[%d]", l.lo)
	case KindDoubleStackSlot:
		return fmt.Sprintf("stack2[%d]", l.lo)
	case KindSIMDStackSlot:
		return fmt.Sprintf("simd[%d]", l.lo)
	case KindRegister:
		return fmt.Sprintf("r%d", l.lo)
	case KindRegisterPair:
		return fmt.Sprintf("r%d:r%d", l.lo, l.hi)
	case KindFpuRegister:
		return fmt.Sprintf("f%d", l.lo)
	case KindFpuRegisterPair:
		return fmt.Sprintf("f%d:f%d", l.lo, l.hi)
	case KindUnallocated:
		return fmt.Sprintf("unallocated(%d)", l.lo)
	default:
		return "???"
	}
}
