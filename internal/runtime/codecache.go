// codecache.go - JIT 代码缓存
//
// 负责把编译产物安装进可执行内存：
//   1. 申请 RW 页，拷贝机器码
//   2. 按根表偏移回填 JIT 字面量根的实际地址
//   3. 改权限为 RX
//   4. 登记到按入口地址排序的 btree，供栈回溯时
//      由本地 PC 反查方法与栈图
//
// 查找走 btree 的 DescendLessOrEqual：找到入口 <= pc 的最大条目，
// 再验证 pc 落在 [entry, entry+codeSize)。

package runtime

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/google/btree"
)

// CompiledMethod 一段已安装的编译代码
type CompiledMethod struct {
	MethodIndex uint32
	EntryPoint  uintptr
	CodeSize    int
	StackMaps   []byte
	FrameSize   int
	CoreSpills  uint32
	FpSpills    uint32
}

type cacheEntry struct {
	entry  uintptr
	method *CompiledMethod
}

// CodeCache JIT 代码缓存
type CodeCache struct {
	mu       sync.RWMutex
	methods  *btree.BTreeG[cacheEntry]
	capacity int
	used     int
}

// NewCodeCache 创建容量上限为 capacity 字节的代码缓存
func NewCodeCache(capacity int) *CodeCache {
	return &CodeCache{
		methods: btree.NewG[cacheEntry](8, func(a, b cacheEntry) bool {
			return a.entry < b.entry
		}),
		capacity: capacity,
	}
}

// InstallRequest 安装一段编译代码所需的全部输入
type InstallRequest struct {
	MethodIndex uint32
	Code        []byte
	StackMaps   []byte
	FrameSize   int
	CoreSpills  uint32
	FpSpills    uint32

	// RootOffsets 代码中 JIT 字面量根槽的字节偏移（每槽 4 字节），
	// 与 Roots 一一对应，安装时回填实际地址。
	RootOffsets []int
	Roots       []uint32
}

// Install 把编译产物写入可执行内存并登记
func (c *CodeCache) Install(req *InstallRequest) (*CompiledMethod, error) {
	if len(req.RootOffsets) != len(req.Roots) {
		return nil, fmt.Errorf("代码缓存: 根表偏移数 %d 与根数 %d 不一致",
			len(req.RootOffsets), len(req.Roots))
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	size := alignUp(len(req.Code), 16)
	if c.used+size > c.capacity {
		return nil, fmt.Errorf("代码缓存: 容量不足, 已用 %d + 申请 %d > 上限 %d",
			c.used, size, c.capacity)
	}

	mem, err := allocExecutable(size)
	if err != nil {
		return nil, fmt.Errorf("代码缓存: 申请可执行内存失败: %w", err)
	}
	copy(mem, req.Code)

	// 回填字面量根。根槽在代码尾部的根表区内，安装前为占位 0。
	for i, off := range req.RootOffsets {
		if off < 0 || off+4 > len(req.Code) {
			freeExecutable(mem)
			return nil, fmt.Errorf("代码缓存: 根槽偏移 %d 越界 (代码 %d 字节)", off, len(req.Code))
		}
		*(*uint32)(unsafe.Pointer(&mem[off])) = req.Roots[i]
	}

	if err := protectExecutable(mem); err != nil {
		freeExecutable(mem)
		return nil, fmt.Errorf("代码缓存: 设置可执行权限失败: %w", err)
	}

	m := &CompiledMethod{
		MethodIndex: req.MethodIndex,
		EntryPoint:  uintptr(unsafe.Pointer(&mem[0])),
		CodeSize:    len(req.Code),
		StackMaps:   req.StackMaps,
		FrameSize:   req.FrameSize,
		CoreSpills:  req.CoreSpills,
		FpSpills:    req.FpSpills,
	}
	c.methods.ReplaceOrInsert(cacheEntry{entry: m.EntryPoint, method: m})
	c.used += size
	return m, nil
}

// FindMethodForPC 由本地 PC 反查所属方法，未命中返回 nil
func (c *CodeCache) FindMethodForPC(pc uintptr) *CompiledMethod {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var found *CompiledMethod
	c.methods.DescendLessOrEqual(cacheEntry{entry: pc}, func(e cacheEntry) bool {
		if pc < e.entry+uintptr(e.method.CodeSize) {
			found = e.method
		}
		return false
	})
	return found
}

// UsedBytes 已占用字节数
func (c *CodeCache) UsedBytes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.used
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
