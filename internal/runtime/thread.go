// thread.go - 线程局部存储布局
//
// 生成的代码保留一个线程寄存器（ARM64 上为 X19），
// 以下偏移全部相对该寄存器。与运行时的线程结构逐字节对齐。

package runtime

const (
	// ThreadFlagsOffset 挂起/检查点标志字（suspend check 轮询目标）
	ThreadFlagsOffset = 0

	// ThreadIsGCMarkingOffset 并发收集器"正在标记"标志
	// Baker 读屏障快路径只测这一个字；ARM64 后端在方法入口
	// 把它缓存进标记寄存器（W20）。
	ThreadIsGCMarkingOffset = 4

	// ThreadCardTableOffset 卡表基址
	ThreadCardTableOffset = 8

	// ThreadExceptionOffset 挂起异常指针
	ThreadExceptionOffset = 16

	// ThreadStackEndOffset 栈增长极限（显式栈溢出检查比较对象）
	ThreadStackEndOffset = 24

	// ThreadSelfOffset 线程自指针
	ThreadSelfOffset = 32

	// ThreadEntrypointTableOffset 快速入口表起始
	ThreadEntrypointTableOffset = 128
)

// 挂起标志位
const (
	ThreadSuspendRequest    = 1 << 0
	ThreadCheckpointRequest = 1 << 1
	ThreadFlagsSuspendAny   = ThreadSuspendRequest | ThreadCheckpointRequest
)

// StackOverflowReservedBytes 栈溢出保护区大小
// 隐式检查在 [sp - 保护区] 做一次探测读，命中保护页即触发 SIGSEGV。
const StackOverflowReservedBytes = 8192
