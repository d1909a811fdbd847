// entrypoints.go - 运行时快速入口表
//
// 生成的代码通过"线程寄存器 + 固定偏移"调用运行时：
//   ldr ip0, [tr, #EntrypointOffset(ep)]
//   blr ip0
// 入口表的布局是后端与运行时之间的位级契约，
// 枚举顺序即表内槽位顺序，不允许重排。

package runtime

// Entrypoint 快速入口枚举
type Entrypoint int

const (
	EPThrowNullPointer Entrypoint = iota
	EPThrowArrayBounds
	EPThrowStringBounds
	EPThrowDivZero
	EPThrowClassCast
	EPThrowStackOverflow

	EPAllocObject
	EPAllocArray

	EPResolveType
	EPResolveString
	EPResolveMethod
	EPInitializeStaticStorage

	EPInstanceofNonTrivial

	EPTestSuspend
	EPDeoptimize

	EPMonitorEnter
	EPMonitorExit

	EPReadBarrierSlow
	EPReadBarrierForRootSlow

	// EPReadBarrierMarkReg00 起连续 30 个槽：每个可标记寄存器一个入口，
	// Baker thunk 按寄存器编号直接索引（见 MarkRegEntrypoint）。
	EPReadBarrierMarkReg00

	epMarkRegCount = 30
	// EntrypointCount 表长
	EntrypointCount = int(EPReadBarrierMarkReg00) + epMarkRegCount
)

// EntrypointSize 每个表项宽度（函数指针）
const EntrypointSize = 8

// EntrypointOffset 返回入口相对线程基址的字节偏移
func EntrypointOffset(ep Entrypoint) int32 {
	return ThreadEntrypointTableOffset + int32(ep)*EntrypointSize
}

// MarkRegEntrypoint 返回指定寄存器的标记入口
// 仅 0..29 号寄存器可作为标记目标（IP0/IP1 与特殊寄存器除外）。
func MarkRegEntrypoint(reg int) Entrypoint {
	return EPReadBarrierMarkReg00 + Entrypoint(reg)
}

// String 返回入口名称
func (ep Entrypoint) String() string {
	switch ep {
	case EPThrowNullPointer:
		return "ThrowNullPointer"
	case EPThrowArrayBounds:
		return "ThrowArrayBounds"
	case EPThrowStringBounds:
		return "ThrowStringBounds"
	case EPThrowDivZero:
		return "ThrowDivZero"
	case EPThrowClassCast:
		return "ThrowClassCast"
	case EPThrowStackOverflow:
		return "ThrowStackOverflow"
	case EPAllocObject:
		return "AllocObject"
	case EPAllocArray:
		return "AllocArray"
	case EPResolveType:
		return "ResolveType"
	case EPResolveString:
		return "ResolveString"
	case EPResolveMethod:
		return "ResolveMethod"
	case EPInitializeStaticStorage:
		return "InitializeStaticStorage"
	case EPInstanceofNonTrivial:
		return "InstanceofNonTrivial"
	case EPTestSuspend:
		return "TestSuspend"
	case EPDeoptimize:
		return "Deoptimize"
	case EPMonitorEnter:
		return "MonitorEnter"
	case EPMonitorExit:
		return "MonitorExit"
	case EPReadBarrierSlow:
		return "ReadBarrierSlow"
	case EPReadBarrierForRootSlow:
		return "ReadBarrierForRootSlow"
	default:
		if ep >= EPReadBarrierMarkReg00 && int(ep) < EntrypointCount {
			return "ReadBarrierMarkReg"
		}
		return "UnknownEntrypoint"
	}
}

// CanTriggerGC 检查入口是否可能触发 GC
// ValidateInvokeRuntime 据此交叉核对指令声明的副作用。
func (ep Entrypoint) CanTriggerGC() bool {
	switch ep {
	case EPAllocObject, EPAllocArray,
		EPResolveType, EPResolveString, EPResolveMethod,
		EPInitializeStaticStorage,
		EPTestSuspend, EPDeoptimize,
		EPMonitorEnter:
		return true
	default:
		return false
	}
}
