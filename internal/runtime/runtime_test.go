// runtime_test.go - 运行时支撑测试

package runtime

import (
	"encoding/binary"
	"testing"
	"unsafe"
)

// TestCodeCacheInstallAndLookup 安装后按 PC 反查
func TestCodeCacheInstallAndLookup(t *testing.T) {
	c := NewCodeCache(1 << 20)

	code := make([]byte, 32)
	// ret 占位，保证页内容是合法指令
	binary.LittleEndian.PutUint32(code, 0xD65F03C0)

	m, err := c.Install(&InstallRequest{
		MethodIndex: 7,
		Code:        code,
		StackMaps:   []byte{1, 2, 3},
		FrameSize:   48,
	})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if m.EntryPoint == 0 {
		t.Fatal("entry point is zero")
	}
	if m.CodeSize != 32 || m.FrameSize != 48 || m.MethodIndex != 7 {
		t.Errorf("installed method mismatch: %+v", m)
	}

	// 入口、中段、末字节都应命中
	for _, pc := range []uintptr{m.EntryPoint, m.EntryPoint + 16, m.EntryPoint + 31} {
		if got := c.FindMethodForPC(pc); got != m {
			t.Errorf("FindMethodForPC(%#x) = %v, want installed method", pc, got)
		}
	}
	// 代码段外不命中
	if got := c.FindMethodForPC(m.EntryPoint + 32); got != nil {
		t.Errorf("pc past code end should miss, got %+v", got)
	}
	if got := c.FindMethodForPC(m.EntryPoint - 1); got != nil {
		t.Errorf("pc before entry should miss, got %+v", got)
	}

	if c.UsedBytes() != 32 {
		t.Errorf("UsedBytes = %d, want 32", c.UsedBytes())
	}
}

// TestCodeCacheRootPatching 字面量根槽按偏移回填
func TestCodeCacheRootPatching(t *testing.T) {
	c := NewCodeCache(1 << 16)

	code := make([]byte, 16)
	m, err := c.Install(&InstallRequest{
		MethodIndex: 1,
		Code:        code,
		RootOffsets: []int{8},
		Roots:       []uint32{0xCAFEBABE},
	})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	// 从已安装页读回槽值
	slot := *(*uint32)(unsafe.Pointer(m.EntryPoint + 8))
	if slot != 0xCAFEBABE {
		t.Errorf("root slot = %#x, want 0xCAFEBABE", slot)
	}
}

// TestCodeCacheRejectsBadRequests 非法请求要报错
func TestCodeCacheRejectsBadRequests(t *testing.T) {
	c := NewCodeCache(64)

	// 根表长度不齐
	_, err := c.Install(&InstallRequest{
		Code:        make([]byte, 8),
		RootOffsets: []int{0},
	})
	if err == nil {
		t.Error("mismatched roots should fail")
	}

	// 根槽越界
	_, err = c.Install(&InstallRequest{
		Code:        make([]byte, 8),
		RootOffsets: []int{8},
		Roots:       []uint32{1},
	})
	if err == nil {
		t.Error("out-of-range root offset should fail")
	}

	// 容量耗尽
	if _, err := c.Install(&InstallRequest{Code: make([]byte, 48)}); err != nil {
		t.Fatalf("first install: %v", err)
	}
	if _, err := c.Install(&InstallRequest{Code: make([]byte, 48)}); err == nil {
		t.Error("over-capacity install should fail")
	}
}

// TestLockWordForwarding 转发状态判定与地址还原
func TestLockWordForwarding(t *testing.T) {
	fwd := uint32(LockWordStateForwarding)<<LockWordStateShift | (0x1000 >> LockWordForwardingAddressShift)
	if !IsForwarding(fwd) {
		t.Error("forwarding lock word not recognized")
	}
	if got := ForwardingAddress(fwd); got != 0x1000 {
		t.Errorf("ForwardingAddress = %#x, want 0x1000", got)
	}

	plain := uint32(LockWordGrayBit | LockWordMarkBit)
	if IsForwarding(plain) {
		t.Error("gray/marked word misread as forwarding")
	}
}

// TestEntrypointOffsets 入口点偏移落在线程结构入口表内且互不重叠
func TestEntrypointOffsets(t *testing.T) {
	seen := map[int32]Entrypoint{}
	for ep := Entrypoint(0); int(ep) < EntrypointCount; ep++ {
		off := EntrypointOffset(ep)
		if off < ThreadEntrypointTableOffset {
			t.Errorf("%v offset %d precedes entrypoint table", ep, off)
		}
		if prev, dup := seen[off]; dup {
			t.Errorf("%v and %v share offset %d", ep, prev, off)
		}
		seen[off] = ep
	}
}

// TestMarkRegEntrypoints 每个目的寄存器的标记入口互不相同
func TestMarkRegEntrypoints(t *testing.T) {
	seen := map[Entrypoint]bool{}
	for reg := 0; reg < 30; reg++ {
		ep := MarkRegEntrypoint(reg)
		if seen[ep] {
			t.Errorf("mark entrypoint for r%d duplicated", reg)
		}
		seen[ep] = true
	}
}

// TestAlignUp 对齐工具
func TestAlignUp(t *testing.T) {
	tests := []struct{ n, align, want int }{
		{0, 16, 0}, {1, 16, 16}, {16, 16, 16}, {17, 16, 32}, {31, 4, 32},
	}
	for _, tt := range tests {
		if got := alignUp(tt.n, tt.align); got != tt.want {
			t.Errorf("alignUp(%d, %d) = %d, want %d", tt.n, tt.align, got, tt.want)
		}
	}
}
