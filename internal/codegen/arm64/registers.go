// registers.go - 寄存器约定
//
// 托管代码寄存器划分（AAPCS64 基础上保留）：
//   X19 (TR)  线程寄存器，指向当前线程结构
//   X20 (MR)  标记寄存器，缓存线程的 is-gc-marking 标志
//   X16/X17   过程内暂存器（IP0/IP1），代码生成随手用
//   X18       平台寄存器，不碰

package arm64

import (
	"github.com/quasarlang/quasar/internal/locations"
)

const (
	// TR 线程寄存器
	TR = X19
	// MR 标记寄存器（Baker 读屏障的 is-marking 快测）
	MR = X20
	// IP0 / IP1 暂存器
	IP0 = X16
	IP1 = X17
	// FP 帧指针
	FP = X29
	// LR 链接寄存器
	LR = X30
)

// NumCoreRegisters 可编码通用寄存器数
const NumCoreRegisters = 32

// NumFpuRegisters 浮点寄存器数
const NumFpuRegisters = 32

// CoreCalleeSaves 被调用者保存的通用寄存器掩码 (X21-X29, LR)。
// TR 与 MR 虽在 X19/X20，但被运行时约定独占，不进分配池。
var CoreCalleeSaves = regMask(X21, X22, X23, X24, X25, X26, X27, X28, X29, X30)

// FpuCalleeSaves 被调用者保存的浮点寄存器掩码 (D8-D15)
var FpuCalleeSaves = vregMask(V8, V9, V10, V11, V12, V13, V14, V15)

// ReservedCoreRegisters 不参与分配的通用寄存器
var ReservedCoreRegisters = regMask(X16, X17, X18, TR, MR, FP, LR, SP)

func regMask(regs ...Reg) locations.RegisterMask {
	var m locations.RegisterMask
	for _, r := range regs {
		m.Add(int(r))
	}
	return m
}

func vregMask(regs ...VReg) locations.RegisterMask {
	var m locations.RegisterMask
	for _, r := range regs {
		m.Add(int(r))
	}
	return m
}
