// side_effects.go - 指令副作用集合
//
// 优化器用副作用集合决定指令能否移动/合并；后端只消费其中
// 一件事：声明了 CanTriggerGC 的指令才允许经由慢路径调用
// 可能触发 GC 的运行时入口（见 codegen.ValidateInvokeRuntime）。

package hir

// SideEffects 副作用位集
type SideEffects uint32

const (
	SideEffectNone SideEffects = 0

	SideEffectFieldRead SideEffects = 1 << iota
	SideEffectFieldWrite
	SideEffectArrayRead
	SideEffectArrayWrite
	SideEffectCanTriggerGC
	SideEffectDependsOnGC
	SideEffectAll SideEffects = ^SideEffects(0)
)

// CanTriggerGC 检查是否声明了"可能触发 GC"
func (s SideEffects) CanTriggerGC() bool {
	return s&SideEffectCanTriggerGC != 0
}

// Union 合并副作用
func (s SideEffects) Union(other SideEffects) SideEffects {
	return s | other
}
