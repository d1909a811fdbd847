// data.go - 单次编译的临时状态
//
// 每个方法编译持有一份，编译结束即弃，绝不跨方法共享。

package codegen

// CodeGenerationData 单方法编译态
type CodeGenerationData struct {
	// SlowPaths 已登记、待发射的慢路径，按登记序发射
	SlowPaths []SlowPath

	// StackMaps 栈图流
	StackMaps *StackMapWriter

	// Roots JIT 字面量根表（仅 JIT 模式使用）
	Roots *JitRootTable

	// Patches AOT 链接补丁（仅 AOT 模式使用）
	Patches []LinkerPatch
}

// AddSlowPath 登记慢路径
func (d *CodeGenerationData) AddSlowPath(sp SlowPath) {
	d.SlowPaths = append(d.SlowPaths, sp)
}

// AddPatch 登记链接补丁
func (d *CodeGenerationData) AddPatch(p LinkerPatch) {
	d.Patches = append(d.Patches, p)
}
