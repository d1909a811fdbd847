// environment.go - 反优化环境
//
// Environment 把安全点处每个源级变量槽（vreg）映射到它的存放
// 位置，供反优化、OSR、调试器与 catch 重入消费。
// 内联会形成链：每内联一层挂一个父环境，链深等于内联深度；
// 最外层环境的源位置就是栈图条目记录的"外层位置"。

package hir

import (
	"github.com/quasarlang/quasar/internal/locations"
)

// EnvSlot 环境中的一个变量槽
type EnvSlot struct {
	// Value 槽中活跃的值；nil 表示该槽已死
	Value *Instruction
	// Location 值的存放位置；Value 为 nil 时必须是 Invalid
	Location locations.Location
}

// Environment 单层反优化环境
type Environment struct {
	// Parent 外层（调用方）环境，最内层在链头
	Parent *Environment

	// BCPC 本层对应的字节码偏移
	BCPC uint32

	// MethodIndex 本层对应的方法
	MethodIndex uint32

	Slots []EnvSlot
}

// NewEnvironment 创建环境
func NewEnvironment(bcpc uint32, methodIndex uint32, slotCount int) *Environment {
	return &Environment{
		BCPC:        bcpc,
		MethodIndex: methodIndex,
		Slots:       make([]EnvSlot, slotCount),
	}
}

// SetSlot 设置变量槽
func (e *Environment) SetSlot(i int, value *Instruction, loc locations.Location) {
	e.Slots[i] = EnvSlot{Value: value, Location: loc}
}

// Depth 返回链深（内联层数，最少 1）
func (e *Environment) Depth() int {
	d := 0
	for cur := e; cur != nil; cur = cur.Parent {
		d++
	}
	return d
}

// Outermost 返回最外层环境
func (e *Environment) Outermost() *Environment {
	cur := e
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}
