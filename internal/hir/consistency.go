// consistency.go - 指令级类型/位置一致性检查
//
// 位置构建结束后跑一遍，每条指令发射前再跑一遍。
// 违反即编译器自身 bug，调用方以 fatal 方式终止整个编译。

package hir

import (
	"fmt"

	"github.com/quasarlang/quasar/internal/locations"
)

// CheckTypeConsistency 校验指令的声明类型与分配位置
//
// 检查项：
//  1. 输出位置与声明类型相容（"别名第一输入"策略按第一输入的类型查）
//  2. 每个输入位置与输入指令的声明类型相容
//  3. 环境槽：死槽必须是 Invalid 位置，活槽位置必须与值类型相容
//  4. 定稿指令上不允许出现 Unallocated
//
// 返回 nil 表示一致；否则返回描述首个违反项的错误。
func CheckTypeConsistency(in *Instruction) error {
	summary := in.Locations
	if summary == nil {
		return nil
	}

	out := summary.Output()
	if out.IsUnallocated() && !summary.OutputOverlapsFirstInput() {
		return fmt.Errorf("%s: unallocated output location after register allocation", in)
	}
	if summary.OutputOverlapsFirstInput() {
		// 输出别名第一输入：按第一输入位置查
		if in.InputCount() > 0 {
			first := summary.Input(0)
			if !first.IsUnallocated() && !locations.CheckType(in.Type, first) {
				return fmt.Errorf("%s: aliased output type %s incompatible with %s", in, in.Type, first)
			}
		}
	} else if out.IsValid() && !locations.CheckType(in.Type, out) {
		return fmt.Errorf("%s: output type %s incompatible with %s", in, in.Type, out)
	}

	for i := 0; i < summary.InputCount() && i < in.InputCount(); i++ {
		loc := summary.Input(i)
		if loc.IsUnallocated() {
			return fmt.Errorf("%s: unallocated input %d after register allocation", in, i)
		}
		if !loc.IsValid() {
			continue
		}
		if !locations.CheckType(in.InputAt(i).Type, loc) {
			return fmt.Errorf("%s: input %d type %s incompatible with %s",
				in, i, in.InputAt(i).Type, loc)
		}
	}

	for env := in.Env; env != nil; env = env.Parent {
		for i, slot := range env.Slots {
			if slot.Value == nil {
				if slot.Location.IsValid() {
					return fmt.Errorf("%s: dead environment slot %d has location %s", in, i, slot.Location)
				}
				continue
			}
			if slot.Location.IsUnallocated() {
				return fmt.Errorf("%s: unallocated environment slot %d", in, i)
			}
			if slot.Location.IsValid() && !locations.CheckType(slot.Value.Type, slot.Location) {
				return fmt.Errorf("%s: environment slot %d type %s incompatible with %s",
					in, i, slot.Value.Type, slot.Location)
			}
		}
	}

	return nil
}
