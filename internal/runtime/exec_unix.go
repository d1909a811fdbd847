//go:build linux || darwin

// exec_unix.go - 可执行内存管理 (unix)
//
// 先以 RW 申请匿名页，拷贝并回填完成后再改成 RX，
// 避免同时可写可执行。

package runtime

import (
	"golang.org/x/sys/unix"
)

// allocExecutable 申请 size 字节的可写匿名页（尚不可执行）
func allocExecutable(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
}

// protectExecutable 把页权限从 RW 改为 RX
func protectExecutable(mem []byte) error {
	return unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC)
}

// freeExecutable 释放页
func freeExecutable(mem []byte) error {
	return unix.Munmap(mem)
}
