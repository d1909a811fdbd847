// patches.go - 链接补丁与 JIT 字面量根表
//
// AOT 产物：有序补丁表（代码偏移 + 符号目标），交给独立链接阶段改写。
// JIT 产物：去重的字面量根表 + 代码中待回填的槽偏移，
// 安装进可执行内存后由代码缓存写入实际地址。

package codegen

// PatchKind 补丁种类
type PatchKind byte

const (
	// PatchMethod 方法引用（adrp/add 对）
	PatchMethod PatchKind = iota
	// PatchType 类型引用
	PatchType
	// PatchString 字符串引用
	PatchString
	// PatchBssEntry .bss 槽引用
	PatchBssEntry
	// PatchBootImageRelRo 启动镜像相对偏移
	PatchBootImageRelRo
	// PatchEntrypointThunk 运行时入口 thunk 调用
	PatchEntrypointThunk
	// PatchBakerThunk 读屏障 thunk 分支（目标由自定义数据区分）
	PatchBakerThunk
)

// String 补丁种类名
func (k PatchKind) String() string {
	switch k {
	case PatchMethod:
		return "method"
	case PatchType:
		return "type"
	case PatchString:
		return "string"
	case PatchBssEntry:
		return "bss_entry"
	case PatchBootImageRelRo:
		return "boot_image_rel_ro"
	case PatchEntrypointThunk:
		return "entrypoint_thunk"
	case PatchBakerThunk:
		return "baker_thunk"
	default:
		return "unknown"
	}
}

// LinkerPatch 一处待链接阶段改写的机器码
type LinkerPatch struct {
	Kind PatchKind `json:"kind"`

	// CodeOffset 待改写指令的代码偏移
	CodeOffset uint32 `json:"code_offset"`

	// TargetIndex 符号目标（方法/类型/字符串索引，或 rel-ro 偏移）
	TargetIndex uint32 `json:"target_index"`

	// BaseOffset 成对寻址中高位指令（adrp）的偏移，单指令补丁为 0
	BaseOffset uint32 `json:"base_offset,omitempty"`

	// CustomData Baker thunk 的（种类,寄存器对）编码
	CustomData uint32 `json:"custom_data,omitempty"`
}

// ============================================================================
// JIT 字面量根表
// ============================================================================

// RootKind 字面量根种类
type RootKind byte

const (
	// RootString 字符串根
	RootString RootKind = iota
	// RootClass 类根
	RootClass
	// RootMethodType 方法类型根
	RootMethodType
)

type rootKey struct {
	kind  RootKind
	index uint32
}

// JitRootTable 去重的字面量根表
type JitRootTable struct {
	keys  []rootKey
	dedup map[rootKey]int

	// patchOffsets[i] 第 i 个根在代码中所有待回填槽的偏移
	patchOffsets [][]int
}

// NewJitRootTable 创建根表
func NewJitRootTable() *JitRootTable {
	return &JitRootTable{dedup: make(map[rootKey]int)}
}

// Intern 登记一个根，返回其表内序号（重复登记返回同一序号）
func (t *JitRootTable) Intern(kind RootKind, index uint32) int {
	key := rootKey{kind: kind, index: index}
	if i, ok := t.dedup[key]; ok {
		return i
	}
	i := len(t.keys)
	t.keys = append(t.keys, key)
	t.patchOffsets = append(t.patchOffsets, nil)
	t.dedup[key] = i
	return i
}

// AddPatchOffset 记录第 i 个根在代码中的一个回填槽偏移
func (t *JitRootTable) AddPatchOffset(i, codeOffset int) {
	t.patchOffsets[i] = append(t.patchOffsets[i], codeOffset)
}

// Count 根个数
func (t *JitRootTable) Count() int {
	return len(t.keys)
}

// Root 取第 i 个根
func (t *JitRootTable) Root(i int) (RootKind, uint32) {
	return t.keys[i].kind, t.keys[i].index
}

// PatchOffsets 取第 i 个根的回填槽偏移表
func (t *JitRootTable) PatchOffsets(i int) []int {
	return t.patchOffsets[i]
}
