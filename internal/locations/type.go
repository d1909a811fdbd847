// type.go - 原生类型定义
//
// 指令声明的原生类型。Location 的种类必须与这里的类型一致，
// 一致性检查见 check.go。

package locations

// PrimitiveType 原生类型
type PrimitiveType byte

const (
	TypeVoid PrimitiveType = iota
	TypeBool
	TypeInt8
	TypeUint16
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeReference
)

// String 返回类型名称
func (t PrimitiveType) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeBool:
		return "bool"
	case TypeInt8:
		return "int8"
	case TypeUint16:
		return "uint16"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	case TypeReference:
		return "ref"
	default:
		return "unknown"
	}
}

// Is64Bit 检查是否是 64 位宽类型
func (t PrimitiveType) Is64Bit() bool {
	return t == TypeInt64 || t == TypeFloat64
}

// IsFloatingPoint 检查是否是浮点类型
func (t PrimitiveType) IsFloatingPoint() bool {
	return t == TypeFloat32 || t == TypeFloat64
}

// IsIntegralOrRef 检查是否是整型或引用类型
func (t PrimitiveType) IsIntegralOrRef() bool {
	switch t {
	case TypeBool, TypeInt8, TypeUint16, TypeInt16, TypeInt32, TypeInt64, TypeReference:
		return true
	default:
		return false
	}
}

// SizeInBytes 返回类型宽度（字节）
func (t PrimitiveType) SizeInBytes() int {
	switch t {
	case TypeBool, TypeInt8:
		return 1
	case TypeUint16, TypeInt16:
		return 2
	case TypeInt32, TypeFloat32, TypeReference:
		return 4
	case TypeInt64, TypeFloat64:
		return 8
	default:
		return 0
	}
}
