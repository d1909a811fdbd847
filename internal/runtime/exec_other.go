//go:build !linux && !darwin

// exec_other.go - 可执行内存管理（不支持的平台）

package runtime

import "errors"

var errNoExecMem = errors.New("当前平台不支持可执行内存映射")

func allocExecutable(size int) ([]byte, error) {
	return nil, errNoExecMem
}

func protectExecutable(mem []byte) error {
	return errNoExecMem
}

func freeExecutable(mem []byte) error {
	return errNoExecMem
}
