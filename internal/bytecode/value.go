// value.go - Quasar 字节码常量值
//
// 本文件定义了编译期可见的常量值表示。
// 后端只消费常量：常量池中的值要么被折叠进指令的 Location，
// 要么以立即数形式写入机器码，不存在运行期求值。

package bytecode

import (
	"fmt"
	"math"
)

// ValueType 值类型
type ValueType byte

const (
	ValNull ValueType = iota
	ValBool
	ValInt
	ValFloat
	ValString
	ValClass  // 类引用（常量池索引）
	ValMethod // 方法引用（常量池索引）
)

// Value 编译期常量值
type Value struct {
	Type ValueType
	Data interface{}
}

// NullValue 空值常量
var NullValue = Value{Type: ValNull}

// NewBool 创建布尔常量
func NewBool(b bool) Value {
	return Value{Type: ValBool, Data: b}
}

// NewInt 创建整数常量
func NewInt(i int64) Value {
	return Value{Type: ValInt, Data: i}
}

// NewFloat 创建浮点常量
func NewFloat(f float64) Value {
	return Value{Type: ValFloat, Data: f}
}

// NewString 创建字符串常量
func NewString(s string) Value {
	return Value{Type: ValString, Data: s}
}

// IsNull 检查是否为空值
func (v Value) IsNull() bool {
	return v.Type == ValNull
}

// AsBool 取布尔值
func (v Value) AsBool() bool {
	b, _ := v.Data.(bool)
	return b
}

// AsInt 取整数值
func (v Value) AsInt() int64 {
	i, _ := v.Data.(int64)
	return i
}

// AsFloat 取浮点值
func (v Value) AsFloat() float64 {
	f, _ := v.Data.(float64)
	return f
}

// AsString 取字符串值
func (v Value) AsString() string {
	s, _ := v.Data.(string)
	return s
}

// Bits 返回值的原始位模式（用于立即数发射）
// 浮点值按 IEEE754 位模式返回，布尔值返回 0/1。
func (v Value) Bits() uint64 {
	switch v.Type {
	case ValBool:
		if v.AsBool() {
			return 1
		}
		return 0
	case ValInt:
		return uint64(v.AsInt())
	case ValFloat:
		return math.Float64bits(v.AsFloat())
	default:
		return 0
	}
}

// String 返回值的字符串表示
func (v Value) String() string {
	switch v.Type {
	case ValNull:
		return "null"
	case ValBool:
		return fmt.Sprintf("%v", v.AsBool())
	case ValInt:
		return fmt.Sprintf("%d", v.AsInt())
	case ValFloat:
		return fmt.Sprintf("%g", v.AsFloat())
	case ValString:
		return fmt.Sprintf("%q", v.AsString())
	case ValClass:
		return fmt.Sprintf("class#%v", v.Data)
	case ValMethod:
		return fmt.Sprintf("method#%v", v.Data)
	default:
		return "unknown"
	}
}
