// method.go - 方法结构布局
//
// 编译代码经 X0 里的方法指针访问这些字段，偏移是固定契约。

package runtime

const (
	// MethodDeclaringClassOffset 所属类引用
	MethodDeclaringClassOffset = 0

	// MethodAccessFlagsOffset 访问标志
	MethodAccessFlagsOffset = 4

	// MethodIndexOffset 方法索引
	MethodIndexOffset = 8

	// MethodHotnessCountOffset 热度计数（16 位，基线档位递减）
	MethodHotnessCountOffset = 12

	// MethodEntryPointOffset 编译代码入口
	MethodEntryPointOffset = 16

	// MethodSize 方法结构大小
	MethodSize = 24
)
