// check.go - 类型/位置一致性检查
//
// 寄存器分配器或位置构建器出 bug 时，错误的表现往往在很远的
// 下游（错误的机器码、GC 扫错栈槽）。这里的检查是 standing
// correctness net：位置构建完成后查一次，每条指令发射前再查一次。

package locations

// CheckType 检查位置种类与原生类型是否相容
//
// 规则：
//   - 浮点寄存器（对）只承载 float32/float64
//   - 寄存器对/双栈槽只承载 64 位类型
//   - 通用寄存器/栈槽承载整型与引用
//   - 常量按常量自身类型放行（由上游保证）
func CheckType(t PrimitiveType, loc Location) bool {
	switch loc.Kind() {
	case KindInvalid:
		// 无效位置只允许 void（无输出指令）
		return t == TypeVoid
	case KindConstant:
		return t != TypeVoid
	case KindRegister:
		return t.IsIntegralOrRef()
	case KindRegisterPair:
		return t == TypeInt64
	case KindFpuRegister:
		return t.IsFloatingPoint()
	case KindFpuRegisterPair:
		return t == TypeFloat64
	case KindStackSlot:
		return !t.Is64Bit() && t != TypeVoid
	case KindDoubleStackSlot:
		return t.Is64Bit()
	case KindSIMDStackSlot:
		return t.IsFloatingPoint()
	case KindUnallocated:
		// 分配完成后不允许出现，由调用方单独报错
		return false
	default:
		return false
	}
}
