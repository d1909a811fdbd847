// patches.go - 链接补丁与 AOT 共享 thunk 合成

package arm64

import (
	"fmt"

	"github.com/quasarlang/quasar/internal/codegen"
	"github.com/quasarlang/quasar/internal/runtime"
)

// EmitLinkerPatches 本次编译累积的全部链接补丁
func (cg *CodeGeneratorARM64) EmitLinkerPatches() []codegen.LinkerPatch {
	return cg.base.Data.Patches
}

// EmitThunkCode 按补丁合成 AOT 共享 thunk。
// 返回码体和供调试符号表用的名字。
func (cg *CodeGeneratorARM64) EmitThunkCode(p codegen.LinkerPatch) ([]byte, string, error) {
	saved := cg.asm
	cg.asm = NewAssembler()
	defer func() { cg.asm = saved }()

	switch p.Kind {
	case codegen.PatchBakerThunk:
		cg.EmitBakerThunkBody(p.CustomData)
		if err := cg.asm.Resolve(); err != nil {
			return nil, "", fmt.Errorf("arm64: baker thunk: %w", err)
		}
		return cg.asm.Code(), bakerThunkName(p.CustomData), nil

	case codegen.PatchEntrypointThunk:
		// 远跳板：入口地址取线程入口表，blr 调用方负责返回
		ep := runtime.Entrypoint(p.TargetIndex)
		cg.asm.LdrX(IP0, TR, int32(runtime.EntrypointOffset(ep)))
		cg.asm.Br(IP0)
		if err := cg.asm.Resolve(); err != nil {
			return nil, "", fmt.Errorf("arm64: entrypoint thunk: %w", err)
		}
		return cg.asm.Code(), fmt.Sprintf("EntrypointThunk%d", p.TargetIndex), nil
	}
	return nil, "", fmt.Errorf("arm64: 补丁种类 %s 无 thunk 码体", p.Kind)
}

func bakerThunkName(data uint32) string {
	kind, base, dest, index := decodeBakerData(data)
	switch kind {
	case bakerField:
		return fmt.Sprintf("BakerReadBarrierThunk_Field_r%d_r%d", base.Encode(), dest.Encode())
	case bakerArray:
		return fmt.Sprintf("BakerReadBarrierThunk_Array_r%d_r%d_r%d", base.Encode(), dest.Encode(), index.Encode())
	default:
		return fmt.Sprintf("BakerReadBarrierThunk_GcRoot_r%d", dest.Encode())
	}
}
