// stats.go - 编译统计

package codegen

import (
	"go.uber.org/atomic"
)

// Stats 编译统计计数器，多工作线程并发递增
type Stats struct {
	MethodsCompiled     atomic.Int64 // 编译完成的方法数
	CodeBytes           atomic.Int64 // 生成机器码字节数
	StackMapBytes       atomic.Int64 // 栈图 blob 字节数
	SlowPathsEmitted    atomic.Int64 // 发射的慢路径数
	SafepointsEmitted   atomic.Int64 // 记录的安全点数
	DivByConstMagic     atomic.Int64 // 魔数除法替换次数
	IntrinsicFallback   atomic.Int64 // 内建函数回退为普通调用的次数
	WriteBarriersElided atomic.Int64 // 省略的写屏障数
}

// GlobalStats 进程级统计
var GlobalStats Stats
