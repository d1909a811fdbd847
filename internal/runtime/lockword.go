// lockword.go - 对象锁字位布局
//
// 锁字（对象头偏移 4 处的 32 位字）同时承载锁状态、
// 读屏障灰色位与 GC 转发地址。读屏障 thunk 只关心：
//   - 灰色位：对象是否待标记
//   - 状态位：是否处于"转发地址"状态（此时低位存转发指针 >>3）
//   - 标记位：GC 根加载的已标记短路

package runtime

const (
	// LockWordStateShift 状态域（最高 2 位）
	LockWordStateShift = 30
	LockWordStateMask  = 0x3 << LockWordStateShift

	// LockWordStateForwarding 对象已被移动，锁字低 30 位为转发地址 >>3
	LockWordStateForwarding = 0x3

	// LockWordGCStateShift 读屏障灰色位
	LockWordGCStateShift = 28
	LockWordGrayBit      = 1 << LockWordGCStateShift

	// LockWordMarkBitShift GC 标记位
	LockWordMarkBitShift = 29
	LockWordMarkBit      = 1 << LockWordMarkBitShift

	// LockWordForwardingAddressShift 转发地址还原左移量
	LockWordForwardingAddressShift = 3
)

// IsForwarding 检查锁字是否处于转发状态
func IsForwarding(lockWord uint32) bool {
	return lockWord>>LockWordStateShift == LockWordStateForwarding
}

// ForwardingAddress 从锁字还原转发地址
func ForwardingAddress(lockWord uint32) uintptr {
	return uintptr(lockWord&^LockWordStateMask) << LockWordForwardingAddressShift
}
