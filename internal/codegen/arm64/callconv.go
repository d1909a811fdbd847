// callconv.go - 调用约定
//
// 托管调用约定：X1-X7 传整型/引用参数（X0 留给被调方法指针），
// D0-D7 传浮点参数，多余参数走栈上出参区。运行时入口调用
// 按原生 AAPCS64：X0 起传参。

package arm64

import (
	"github.com/quasarlang/quasar/internal/locations"
)

// managedCoreArgs 托管约定的整型参数寄存器
var managedCoreArgs = []Reg{X1, X2, X3, X4, X5, X6, X7}

// managedFpuArgs 托管约定的浮点参数寄存器
var managedFpuArgs = []VReg{V0, V1, V2, V3, V4, V5, V6, V7}

// MethodReg 被调方法指针所在寄存器
const MethodReg = X0

// CallingConvention 参数位置迭代器
type CallingConvention struct {
	gpIndex    int
	fpIndex    int
	stackIndex int
}

// NextLocation 下一个参数的位置
func (c *CallingConvention) NextLocation(t locations.PrimitiveType) locations.Location {
	if t.IsFloatingPoint() {
		if c.fpIndex < len(managedFpuArgs) {
			reg := managedFpuArgs[c.fpIndex]
			c.fpIndex++
			return locations.FpuRegister(int(reg))
		}
	} else {
		if c.gpIndex < len(managedCoreArgs) {
			reg := managedCoreArgs[c.gpIndex]
			c.gpIndex++
			return locations.Register(int(reg))
		}
	}
	// 栈上出参，自 SP 起按 vreg 槽排布
	slot := c.stackIndex
	if t.Is64Bit() {
		c.stackIndex += 2
		return locations.DoubleStackSlot(int32(slot * 4))
	}
	c.stackIndex++
	return locations.StackSlot(int32(slot * 4))
}

// ReturnLocation 返回值位置
func ReturnLocation(t locations.PrimitiveType) locations.Location {
	switch {
	case t == locations.TypeVoid:
		return locations.Invalid()
	case t.IsFloatingPoint():
		return locations.FpuRegister(int(V0))
	default:
		return locations.Register(int(X0))
	}
}
