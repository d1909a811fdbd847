// asm.go - ARM64 汇编器
//
// 手工编码的 AArch64 指令发射器。
//
// ARM64 指令特点：
// - 固定 32 位指令长度
// - 31 个通用寄存器 (X0-X30) + SP + ZR
// - 加载/存储架构（不支持内存直接运算）
//
// 前向引用经 Label 记账，Resolve 阶段统一回填；
// adrp/add 成对寻址只发射占位指令，最终地址由链接补丁改写。

package arm64

import (
	"encoding/binary"
	"fmt"
)

// ============================================================================
// 寄存器定义
// ============================================================================

// Reg 通用寄存器
type Reg int

const (
	X0 Reg = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16 // IP0 - 过程内调用暂存器
	X17 // IP1
	X18 // 平台寄存器，不分配
	X19 // TR - 线程寄存器
	X20 // MR - 标记寄存器
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29 // FP - 帧指针
	X30 // LR - 链接寄存器

	// SP 与 ZR 共享编码 31，由指令语境决定
	SP Reg = 31
	ZR Reg = 31

	RegNone Reg = -1
)

// String 寄存器名称
func (r Reg) String() string {
	switch {
	case r >= X0 && r <= X28:
		return fmt.Sprintf("x%d", int(r))
	case r == X29:
		return "fp"
	case r == X30:
		return "lr"
	case r == SP:
		return "sp"
	default:
		return "???"
	}
}

// Encode 寄存器编码
func (r Reg) Encode() uint32 {
	if r < 0 {
		return 31
	}
	return uint32(r)
}

// VReg 浮点/SIMD 寄存器
type VReg int

const (
	V0 VReg = iota
	V1
	V2
	V3
	V4
	V5
	V6
	V7
	V8
	V9
	V10
	V11
	V12
	V13
	V14
	V15
	V16
	V17
	V18
	V19
	V20
	V21
	V22
	V23
	V24
	V25
	V26
	V27
	V28
	V29
	V30
	V31
)

// Encode 寄存器编码
func (v VReg) Encode() uint32 {
	return uint32(v)
}

// ============================================================================
// 条件码
// ============================================================================

// Cond 条件码
type Cond uint32

const (
	EQ Cond = 0x0 // 等于
	NE Cond = 0x1 // 不等于
	HS Cond = 0x2 // 无符号大于等于
	LO Cond = 0x3 // 无符号小于
	MI Cond = 0x4 // 负
	PL Cond = 0x5 // 非负
	VS Cond = 0x6 // 溢出
	VC Cond = 0x7 // 无溢出
	HI Cond = 0x8 // 无符号大于
	LS Cond = 0x9 // 无符号小于等于
	GE Cond = 0xA // 有符号大于等于
	LT Cond = 0xB // 有符号小于
	GT Cond = 0xC // 有符号大于
	LE Cond = 0xD // 有符号小于等于
	AL Cond = 0xE // 恒真
)

// Invert 反转条件
func (c Cond) Invert() Cond {
	return c ^ 1
}

// ============================================================================
// 标签与重定位
// ============================================================================

// Label 代码位置标签，支持前向引用
type Label struct {
	offset int // 绑定位置，-1 未绑定
	refs   []labelRef
}

type labelRef struct {
	offset int
	kind   relocKind
}

type relocKind int

const (
	relocBranch26 relocKind = iota // B / BL
	relocCond19                    // B.cond
	relocCmpBr19                   // CBZ / CBNZ
	relocTestBr14                  // TBZ / TBNZ
	relocAdr21                     // ADR
)

// NewLabel 创建未绑定标签
func NewLabel() *Label {
	return &Label{offset: -1}
}

// IsBound 是否已绑定
func (l *Label) IsBound() bool {
	return l.offset >= 0
}

// Offset 绑定位置（未绑定为 -1）
func (l *Label) Offset() int {
	return l.offset
}

// ============================================================================
// 汇编器
// ============================================================================

// Assembler ARM64 汇编器
type Assembler struct {
	code   []byte
	labels []*Label // 有未决引用或已绑定的标签，Resolve 时校验
}

// NewAssembler 创建汇编器
func NewAssembler() *Assembler {
	return &Assembler{code: make([]byte, 0, 1024)}
}

// Len 当前代码长度
func (a *Assembler) Len() int {
	return len(a.code)
}

// Code 已发射代码（Resolve 之后才是最终形态）
func (a *Assembler) Code() []byte {
	return a.code
}

// emit 写入一条 32 位指令
func (a *Assembler) emit(instr uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], instr)
	a.code = append(a.code, buf[:]...)
}

// InstrAt 读取 offset 处的指令字（测试与补丁用）
func (a *Assembler) InstrAt(offset int) uint32 {
	return binary.LittleEndian.Uint32(a.code[offset:])
}

// Bind 把标签绑定到当前位置
func (a *Assembler) Bind(l *Label) {
	l.offset = len(a.code)
	a.labels = append(a.labels, l)
}

func (a *Assembler) ref(l *Label, kind relocKind) {
	l.refs = append(l.refs, labelRef{offset: len(a.code), kind: kind})
	a.labels = append(a.labels, l)
}

// Resolve 回填全部标签引用
func (a *Assembler) Resolve() error {
	for _, l := range a.labels {
		if len(l.refs) == 0 {
			continue
		}
		if !l.IsBound() {
			return fmt.Errorf("标签未绑定但被引用 %d 次", len(l.refs))
		}
		for _, ref := range l.refs {
			delta := (l.offset - ref.offset) / 4
			instr := binary.LittleEndian.Uint32(a.code[ref.offset:])
			switch ref.kind {
			case relocBranch26:
				instr = (instr &^ 0x03FFFFFF) | (uint32(delta) & 0x03FFFFFF)
			case relocCond19, relocCmpBr19:
				instr = (instr &^ 0x00FFFFE0) | ((uint32(delta) & 0x7FFFF) << 5)
			case relocTestBr14:
				instr = (instr &^ 0x0007FFE0) | ((uint32(delta) & 0x3FFF) << 5)
			case relocAdr21:
				byteDelta := l.offset - ref.offset
				immlo := uint32(byteDelta) & 0x3
				immhi := (uint32(byteDelta) >> 2) & 0x7FFFF
				instr = (instr &^ 0x60FFFFE0) | (immlo << 29) | (immhi << 5)
			}
			binary.LittleEndian.PutUint32(a.code[ref.offset:], instr)
		}
		l.refs = l.refs[:0]
	}
	return nil
}

// sf 位：1 = 64 位操作
func sfBit(is64 bool) uint32 {
	if is64 {
		return 1 << 31
	}
	return 0
}

// ============================================================================
// 数据移动
// ============================================================================

// MovRegReg 寄存器间移动: mov dst, src（ORR 别名）
func (a *Assembler) MovRegReg(is64 bool, dst, src Reg) {
	a.emit(sfBit(is64) | 0x2A0003E0 | (src.Encode() << 16) | dst.Encode())
}

// MovSP 含 SP 的移动: mov dst, src（ADD #0 别名，SP 不能走 ORR）
func (a *Assembler) MovSP(dst, src Reg) {
	a.emit(0x91000000 | (src.Encode() << 5) | dst.Encode())
}

// Movz 载入 16 位立即数并清零其余位: movz dst, #imm, lsl #shift
func (a *Assembler) Movz(is64 bool, dst Reg, imm uint16, shift int) {
	hw := uint32(shift/16) << 21
	a.emit(sfBit(is64) | 0x52800000 | hw | (uint32(imm) << 5) | dst.Encode())
}

// Movk 载入 16 位立即数并保持其余位: movk dst, #imm, lsl #shift
func (a *Assembler) Movk(is64 bool, dst Reg, imm uint16, shift int) {
	hw := uint32(shift/16) << 21
	a.emit(sfBit(is64) | 0x72800000 | hw | (uint32(imm) << 5) | dst.Encode())
}

// Movn 载入取反立即数: movn dst, #imm, lsl #shift
func (a *Assembler) Movn(is64 bool, dst Reg, imm uint16, shift int) {
	hw := uint32(shift/16) << 21
	a.emit(sfBit(is64) | 0x12800000 | hw | (uint32(imm) << 5) | dst.Encode())
}

// MovImm64 合成任意 64 位立即数（MOVZ + 若干 MOVK）
func (a *Assembler) MovImm64(dst Reg, imm uint64) {
	a.Movz(true, dst, uint16(imm), 0)
	if imm > 0xFFFF {
		a.Movk(true, dst, uint16(imm>>16), 16)
	}
	if imm > 0xFFFFFFFF {
		a.Movk(true, dst, uint16(imm>>32), 32)
	}
	if imm > 0xFFFFFFFFFFFF {
		a.Movk(true, dst, uint16(imm>>48), 48)
	}
}

// MovImm32 合成 32 位立即数
func (a *Assembler) MovImm32(dst Reg, imm uint32) {
	a.Movz(false, dst, uint16(imm), 0)
	if imm > 0xFFFF {
		a.Movk(false, dst, uint16(imm>>16), 16)
	}
}

// ============================================================================
// 加载/存储
// ============================================================================

// size: 0=B 1=H 2=W 3=X，编码进 [31:30]
func (a *Assembler) loadStore(size uint32, opc uint32, rt, base Reg, offset int32) {
	scale := int32(1) << size
	if offset >= 0 && offset <= 4095*scale && offset%scale == 0 {
		imm12 := uint32(offset/scale) << 10
		a.emit((size << 30) | 0x39000000 | (opc << 22) | imm12 |
			(base.Encode() << 5) | rt.Encode())
		return
	}
	if offset >= -256 && offset <= 255 {
		// LDUR/STUR 族
		imm9 := (uint32(offset) & 0x1FF) << 12
		a.emit((size << 30) | 0x38000000 | (opc << 22) | imm9 |
			(base.Encode() << 5) | rt.Encode())
		return
	}
	// 偏移太大，经 IP1 合成地址
	a.MovImm64(X17, uint64(int64(offset)))
	a.AddRegReg(true, X17, base, X17)
	a.loadStore(size, opc, rt, X17, 0)
}

// LdrX 加载 64 位: ldr xt, [base, #offset]
func (a *Assembler) LdrX(rt, base Reg, offset int32) {
	a.loadStore(3, 1, rt, base, offset)
}

// LdrW 加载 32 位: ldr wt, [base, #offset]
func (a *Assembler) LdrW(rt, base Reg, offset int32) {
	a.loadStore(2, 1, rt, base, offset)
}

// LdrH 加载 16 位零扩展
func (a *Assembler) LdrH(rt, base Reg, offset int32) {
	a.loadStore(1, 1, rt, base, offset)
}

// LdrB 加载 8 位零扩展
func (a *Assembler) LdrB(rt, base Reg, offset int32) {
	a.loadStore(0, 1, rt, base, offset)
}

// LdrSW 加载 32 位符号扩展到 64 位
func (a *Assembler) LdrSW(rt, base Reg, offset int32) {
	a.loadStore(2, 2, rt, base, offset)
}

// LdrSH 加载 16 位符号扩展到 32 位
func (a *Assembler) LdrSH(rt, base Reg, offset int32) {
	a.loadStore(1, 3, rt, base, offset)
}

// LdrSB 加载 8 位符号扩展到 32 位
func (a *Assembler) LdrSB(rt, base Reg, offset int32) {
	a.loadStore(0, 3, rt, base, offset)
}

// StrX 存储 64 位
func (a *Assembler) StrX(rt, base Reg, offset int32) {
	a.loadStore(3, 0, rt, base, offset)
}

// StrW 存储 32 位
func (a *Assembler) StrW(rt, base Reg, offset int32) {
	a.loadStore(2, 0, rt, base, offset)
}

// StrH 存储 16 位
func (a *Assembler) StrH(rt, base Reg, offset int32) {
	a.loadStore(1, 0, rt, base, offset)
}

// StrB 存储 8 位
func (a *Assembler) StrB(rt, base Reg, offset int32) {
	a.loadStore(0, 0, rt, base, offset)
}

// LdrRegOffset 寄存器偏移加载: ldr rt, [base, index, lsl #shift]
// size 同 loadStore；shift 为 0 或 size
func (a *Assembler) LdrRegOffset(size uint32, rt, base, index Reg, scaled bool) {
	s := uint32(0)
	if scaled {
		s = 1 << 12
	}
	a.emit((size << 30) | 0x38606800 | s | (index.Encode() << 16) |
		(base.Encode() << 5) | rt.Encode())
}

// StrRegOffset 寄存器偏移存储
func (a *Assembler) StrRegOffset(size uint32, rt, base, index Reg, scaled bool) {
	s := uint32(0)
	if scaled {
		s = 1 << 12
	}
	a.emit((size << 30) | 0x38206800 | s | (index.Encode() << 16) |
		(base.Encode() << 5) | rt.Encode())
}

// LdarB 获取语义加载 8 位零扩展
func (a *Assembler) LdarB(rt, base Reg) {
	a.emit(0x08DFFC00 | (base.Encode() << 5) | rt.Encode())
}

// LdarW 获取语义加载 32 位（volatile 读）
func (a *Assembler) LdarW(rt, base Reg) {
	a.emit(0x88DFFC00 | (base.Encode() << 5) | rt.Encode())
}

// LdarX 获取语义加载 64 位
func (a *Assembler) LdarX(rt, base Reg) {
	a.emit(0xC8DFFC00 | (base.Encode() << 5) | rt.Encode())
}

// StlrW 释放语义存储 32 位（volatile 写）
func (a *Assembler) StlrW(rt, base Reg) {
	a.emit(0x889FFC00 | (base.Encode() << 5) | rt.Encode())
}

// StlrX 释放语义存储 64 位
func (a *Assembler) StlrX(rt, base Reg) {
	a.emit(0xC89FFC00 | (base.Encode() << 5) | rt.Encode())
}

// Dmb 数据内存屏障（ish 域）
func (a *Assembler) Dmb() {
	a.emit(0xD5033BBF)
}

// ============================================================================
// 寄存器对
// ============================================================================

// StpPre 预索引存对: stp rt1, rt2, [base, #offset]!
func (a *Assembler) StpPre(rt1, rt2, base Reg, offset int32) {
	imm7 := uint32((offset/8)&0x7F) << 15
	a.emit(0xA9800000 | imm7 | (rt2.Encode() << 10) |
		(base.Encode() << 5) | rt1.Encode())
}

// LdpPost 后索引取对: ldp rt1, rt2, [base], #offset
func (a *Assembler) LdpPost(rt1, rt2, base Reg, offset int32) {
	imm7 := uint32((offset/8)&0x7F) << 15
	a.emit(0xA8C00000 | imm7 | (rt2.Encode() << 10) |
		(base.Encode() << 5) | rt1.Encode())
}

// StpOffset 带符号偏移存对: stp rt1, rt2, [base, #offset]
func (a *Assembler) StpOffset(rt1, rt2, base Reg, offset int32) {
	imm7 := uint32((offset/8)&0x7F) << 15
	a.emit(0xA9000000 | imm7 | (rt2.Encode() << 10) |
		(base.Encode() << 5) | rt1.Encode())
}

// LdpOffset 带符号偏移取对: ldp rt1, rt2, [base, #offset]
func (a *Assembler) LdpOffset(rt1, rt2, base Reg, offset int32) {
	imm7 := uint32((offset/8)&0x7F) << 15
	a.emit(0xA9400000 | imm7 | (rt2.Encode() << 10) |
		(base.Encode() << 5) | rt1.Encode())
}

// ============================================================================
// 算术
// ============================================================================

// AddRegReg 加法: add dst, src1, src2
func (a *Assembler) AddRegReg(is64 bool, dst, src1, src2 Reg) {
	a.emit(sfBit(is64) | 0x0B000000 | (src2.Encode() << 16) |
		(src1.Encode() << 5) | dst.Encode())
}

// AddRegImm 立即数加法: add dst, src, #imm。
// 立即数形式才能对 SP 运算（移位寄存器形式的 31 号编码是 ZR），
// 大立即数拆为 LSL #12 的高 12 位 + 低 12 位两步。
func (a *Assembler) AddRegImm(is64 bool, dst, src Reg, imm uint32) {
	if imm > 4095 {
		hi := imm >> 12
		lo := imm & 0xFFF
		if hi > 4095 {
			a.MovImm64(X17, uint64(imm))
			a.AddRegReg(is64, dst, src, X17)
			return
		}
		a.emit(sfBit(is64) | 0x11400000 | (hi << 10) |
			(src.Encode() << 5) | dst.Encode())
		if lo != 0 {
			a.emit(sfBit(is64) | 0x11000000 | (lo << 10) |
				(dst.Encode() << 5) | dst.Encode())
		}
		return
	}
	a.emit(sfBit(is64) | 0x11000000 | (imm << 10) |
		(src.Encode() << 5) | dst.Encode())
}

// AddShifted 移位加法: add dst, src1, src2, lsl #shift
func (a *Assembler) AddShifted(is64 bool, dst, src1, src2 Reg, shift uint32) {
	a.emit(sfBit(is64) | 0x0B000000 | (src2.Encode() << 16) | (shift << 10) |
		(src1.Encode() << 5) | dst.Encode())
}

// SubShiftedAsr 算术移位减法: sub dst, src1, src2, asr #shift
func (a *Assembler) SubShiftedAsr(is64 bool, dst, src1, src2 Reg, shift uint32) {
	a.emit(sfBit(is64) | 0x4B800000 | (src2.Encode() << 16) | (shift << 10) |
		(src1.Encode() << 5) | dst.Encode())
}

// AddShiftedLsr 逻辑移位加法: add dst, src1, src2, lsr #shift
func (a *Assembler) AddShiftedLsr(is64 bool, dst, src1, src2 Reg, shift uint32) {
	a.emit(sfBit(is64) | 0x0B400000 | (src2.Encode() << 16) | (shift << 10) |
		(src1.Encode() << 5) | dst.Encode())
}

// AddsRegReg 置标志加法
func (a *Assembler) AddsRegReg(is64 bool, dst, src1, src2 Reg) {
	a.emit(sfBit(is64) | 0x2B000000 | (src2.Encode() << 16) |
		(src1.Encode() << 5) | dst.Encode())
}

// SubRegReg 减法: sub dst, src1, src2
func (a *Assembler) SubRegReg(is64 bool, dst, src1, src2 Reg) {
	a.emit(sfBit(is64) | 0x4B000000 | (src2.Encode() << 16) |
		(src1.Encode() << 5) | dst.Encode())
}

// SubRegImm 立即数减法，大立即数处理同 AddRegImm
func (a *Assembler) SubRegImm(is64 bool, dst, src Reg, imm uint32) {
	if imm > 4095 {
		hi := imm >> 12
		lo := imm & 0xFFF
		if hi > 4095 {
			a.MovImm64(X17, uint64(imm))
			a.SubRegReg(is64, dst, src, X17)
			return
		}
		a.emit(sfBit(is64) | 0x51400000 | (hi << 10) |
			(src.Encode() << 5) | dst.Encode())
		if lo != 0 {
			a.emit(sfBit(is64) | 0x51000000 | (lo << 10) |
				(dst.Encode() << 5) | dst.Encode())
		}
		return
	}
	a.emit(sfBit(is64) | 0x51000000 | (imm << 10) |
		(src.Encode() << 5) | dst.Encode())
}

// SubsRegReg 置标志减法
func (a *Assembler) SubsRegReg(is64 bool, dst, src1, src2 Reg) {
	a.emit(sfBit(is64) | 0x6B000000 | (src2.Encode() << 16) |
		(src1.Encode() << 5) | dst.Encode())
}

// Neg 取负: neg dst, src（SUB dst, ZR, src 别名）
func (a *Assembler) Neg(is64 bool, dst, src Reg) {
	a.emit(sfBit(is64) | 0x4B000000 | (src.Encode() << 16) |
		(ZR.Encode() << 5) | dst.Encode())
}

// Mul 乘法（MADD dst, s1, s2, zr 别名）
func (a *Assembler) Mul(is64 bool, dst, src1, src2 Reg) {
	a.Madd(is64, dst, src1, src2, ZR)
}

// Madd 乘加: madd dst, m1, m2, addend
func (a *Assembler) Madd(is64 bool, dst, m1, m2, addend Reg) {
	a.emit(sfBit(is64) | 0x1B000000 | (m2.Encode() << 16) |
		(addend.Encode() << 10) | (m1.Encode() << 5) | dst.Encode())
}

// Msub 乘减: msub dst, m1, m2, minuend → minuend - m1*m2
func (a *Assembler) Msub(is64 bool, dst, m1, m2, minuend Reg) {
	a.emit(sfBit(is64) | 0x1B008000 | (m2.Encode() << 16) |
		(minuend.Encode() << 10) | (m1.Encode() << 5) | dst.Encode())
}

// Smulh 有符号乘高 64 位
func (a *Assembler) Smulh(dst, src1, src2 Reg) {
	a.emit(0x9B407C00 | (src2.Encode() << 16) |
		(src1.Encode() << 5) | dst.Encode())
}

// Umulh 无符号乘高 64 位
func (a *Assembler) Umulh(dst, src1, src2 Reg) {
	a.emit(0x9BC07C00 | (src2.Encode() << 16) |
		(src1.Encode() << 5) | dst.Encode())
}

// Smull 32x32 → 64 有符号乘（SMADDL 别名）
func (a *Assembler) Smull(dst, src1, src2 Reg) {
	a.emit(0x9B207C00 | (src2.Encode() << 16) |
		(src1.Encode() << 5) | dst.Encode())
}

// Sdiv 有符号除法
func (a *Assembler) Sdiv(is64 bool, dst, src1, src2 Reg) {
	a.emit(sfBit(is64) | 0x1AC00C00 | (src2.Encode() << 16) |
		(src1.Encode() << 5) | dst.Encode())
}

// Udiv 无符号除法
func (a *Assembler) Udiv(is64 bool, dst, src1, src2 Reg) {
	a.emit(sfBit(is64) | 0x1AC00800 | (src2.Encode() << 16) |
		(src1.Encode() << 5) | dst.Encode())
}

// ============================================================================
// 逻辑与位域
// ============================================================================

// AndRegReg 按位与
func (a *Assembler) AndRegReg(is64 bool, dst, src1, src2 Reg) {
	a.emit(sfBit(is64) | 0x0A000000 | (src2.Encode() << 16) |
		(src1.Encode() << 5) | dst.Encode())
}

// OrrRegReg 按位或
func (a *Assembler) OrrRegReg(is64 bool, dst, src1, src2 Reg) {
	a.emit(sfBit(is64) | 0x2A000000 | (src2.Encode() << 16) |
		(src1.Encode() << 5) | dst.Encode())
}

// EorRegReg 按位异或
func (a *Assembler) EorRegReg(is64 bool, dst, src1, src2 Reg) {
	a.emit(sfBit(is64) | 0x4A000000 | (src2.Encode() << 16) |
		(src1.Encode() << 5) | dst.Encode())
}

// Mvn 按位取反
func (a *Assembler) Mvn(is64 bool, dst, src Reg) {
	a.emit(sfBit(is64) | 0x2A2003E0 | (src.Encode() << 16) | dst.Encode())
}

// TstRegReg 测试: tst s1, s2（ANDS → ZR 别名）
func (a *Assembler) TstRegReg(is64 bool, src1, src2 Reg) {
	a.emit(sfBit(is64) | 0x6A000000 | (src2.Encode() << 16) |
		(src1.Encode() << 5) | ZR.Encode())
}

// ubfm/sbfm 位域族
func (a *Assembler) bfm(base uint32, is64 bool, dst, src Reg, immr, imms uint32) {
	n := uint32(0)
	if is64 {
		n = 1 << 22
	}
	a.emit(sfBit(is64) | base | n | (immr << 16) | (imms << 10) |
		(src.Encode() << 5) | dst.Encode())
}

// LslImm 逻辑左移立即数
func (a *Assembler) LslImm(is64 bool, dst, src Reg, shift uint32) {
	width := uint32(32)
	if is64 {
		width = 64
	}
	a.bfm(0x53000000, is64, dst, src, (width-shift)%width, width-1-shift)
}

// LsrImm 逻辑右移立即数
func (a *Assembler) LsrImm(is64 bool, dst, src Reg, shift uint32) {
	width := uint32(32)
	if is64 {
		width = 64
	}
	a.bfm(0x53000000, is64, dst, src, shift, width-1)
}

// AsrImm 算术右移立即数
func (a *Assembler) AsrImm(is64 bool, dst, src Reg, shift uint32) {
	width := uint32(32)
	if is64 {
		width = 64
	}
	a.bfm(0x13000000, is64, dst, src, shift, width-1)
}

// Ubfx 无符号位域抽取: ubfx dst, src, #lsb, #width
func (a *Assembler) Ubfx(is64 bool, dst, src Reg, lsb, width uint32) {
	a.bfm(0x53000000, is64, dst, src, lsb, lsb+width-1)
}

// Sbfx 有符号位域抽取
func (a *Assembler) Sbfx(is64 bool, dst, src Reg, lsb, width uint32) {
	a.bfm(0x13000000, is64, dst, src, lsb, lsb+width-1)
}

// Sxtw 32 → 64 符号扩展（SBFM 别名）
func (a *Assembler) Sxtw(dst, src Reg) {
	a.bfm(0x13000000, true, dst, src, 0, 31)
}

// Uxtw 32 → 64 零扩展（32 位 mov 即清高位）
func (a *Assembler) Uxtw(dst, src Reg) {
	a.MovRegReg(false, dst, src)
}

// Bfi 位域插入: bfi dst, src, #lsb, #width
func (a *Assembler) Bfi(is64 bool, dst, src Reg, lsb, width uint32) {
	regWidth := uint32(32)
	if is64 {
		regWidth = 64
	}
	a.bfm(0x33000000, is64, dst, src, (regWidth-lsb)%regWidth, width-1)
}

// LslReg 寄存器移位
func (a *Assembler) LslReg(is64 bool, dst, src, shift Reg) {
	a.emit(sfBit(is64) | 0x1AC02000 | (shift.Encode() << 16) |
		(src.Encode() << 5) | dst.Encode())
}

// LsrReg 寄存器逻辑右移
func (a *Assembler) LsrReg(is64 bool, dst, src, shift Reg) {
	a.emit(sfBit(is64) | 0x1AC02400 | (shift.Encode() << 16) |
		(src.Encode() << 5) | dst.Encode())
}

// AsrReg 寄存器算术右移
func (a *Assembler) AsrReg(is64 bool, dst, src, shift Reg) {
	a.emit(sfBit(is64) | 0x1AC02800 | (shift.Encode() << 16) |
		(src.Encode() << 5) | dst.Encode())
}

// ============================================================================
// 比较与条件选择
// ============================================================================

// CmpRegReg 比较（SUBS → ZR 别名）
func (a *Assembler) CmpRegReg(is64 bool, src1, src2 Reg) {
	a.emit(sfBit(is64) | 0x6B00001F | (src2.Encode() << 16) |
		(src1.Encode() << 5))
}

// CmpRegImm 立即数比较
func (a *Assembler) CmpRegImm(is64 bool, src Reg, imm uint32) {
	if imm > 4095 {
		a.MovImm64(X17, uint64(imm))
		a.CmpRegReg(is64, src, X17)
		return
	}
	a.emit(sfBit(is64) | 0x7100001F | (imm << 10) | (src.Encode() << 5))
}

/// Csel 条件选择: csel dst, ifTrue, ifFalse, cond
func (a *Assembler) Csel(is64 bool, dst, ifTrue, ifFalse Reg, cond Cond) {
	a.emit(sfBit(is64) | 0x1A800000 | (ifFalse.Encode() << 16) |
		(uint32(cond) << 12) | (ifTrue.Encode() << 5) | dst.Encode())
}

// Csinc 条件选择加一: csinc dst, ifTrue, ifFalsePlus1, cond
func (a *Assembler) Csinc(is64 bool, dst, ifTrue, other Reg, cond Cond) {
	a.emit(sfBit(is64) | 0x1A800400 | (other.Encode() << 16) |
		(uint32(cond) << 12) | (ifTrue.Encode() << 5) | dst.Encode())
}

// Cset 条件置一（CSINC zr, zr, !cond 别名）
func (a *Assembler) Cset(is64 bool, dst Reg, cond Cond) {
	a.Csinc(is64, dst, ZR, ZR, cond.Invert())
}

// Cneg 条件取负: cneg dst, src, cond（CSNEG 别名）
func (a *Assembler) Cneg(is64 bool, dst, src Reg, cond Cond) {
	a.emit(sfBit(is64) | 0x5A800400 | (src.Encode() << 16) |
		(uint32(cond.Invert()) << 12) | (src.Encode() << 5) | dst.Encode())
}

// ============================================================================
// 跳转
// ============================================================================

// B 无条件跳转
func (a *Assembler) B(l *Label) {
	a.ref(l, relocBranch26)
	a.emit(0x14000000)
}

// Bl 带链接跳转
func (a *Assembler) Bl(l *Label) {
	a.ref(l, relocBranch26)
	a.emit(0x94000000)
}

// Bcond 条件跳转: b.cond label
func (a *Assembler) Bcond(cond Cond, l *Label) {
	a.ref(l, relocCond19)
	a.emit(0x54000000 | uint32(cond))
}

// Cbz 为零跳转
func (a *Assembler) Cbz(is64 bool, reg Reg, l *Label) {
	a.ref(l, relocCmpBr19)
	a.emit(sfBit(is64) | 0x34000000 | reg.Encode())
}

// Cbnz 非零跳转
func (a *Assembler) Cbnz(is64 bool, reg Reg, l *Label) {
	a.ref(l, relocCmpBr19)
	a.emit(sfBit(is64) | 0x35000000 | reg.Encode())
}

// CbnzPlaceholder 目标待链接补丁回填的 cbnz，返回指令偏移
func (a *Assembler) CbnzPlaceholder(is64 bool, reg Reg) int {
	off := len(a.code)
	a.emit(sfBit(is64) | 0x35000000 | reg.Encode())
	return off
}

// Tbz 位为零跳转: tbz reg, #bit, label
func (a *Assembler) Tbz(reg Reg, bit uint32, l *Label) {
	a.ref(l, relocTestBr14)
	b5 := (bit >> 5) << 31
	a.emit(b5 | 0x36000000 | ((bit & 0x1F) << 19) | reg.Encode())
}

// Tbnz 位非零跳转
func (a *Assembler) Tbnz(reg Reg, bit uint32, l *Label) {
	a.ref(l, relocTestBr14)
	b5 := (bit >> 5) << 31
	a.emit(b5 | 0x37000000 | ((bit & 0x1F) << 19) | reg.Encode())
}

// Adr 取标签地址: adr dst, label
func (a *Assembler) Adr(dst Reg, l *Label) {
	a.ref(l, relocAdr21)
	a.emit(0x10000000 | dst.Encode())
}

// Adrp 页地址占位（目标由链接补丁回填）
func (a *Assembler) Adrp(dst Reg) {
	a.emit(0x90000000 | dst.Encode())
}

// Blr 间接调用
func (a *Assembler) Blr(reg Reg) {
	a.emit(0xD63F0000 | (reg.Encode() << 5))
}

// Br 间接跳转
func (a *Assembler) Br(reg Reg) {
	a.emit(0xD61F0000 | (reg.Encode() << 5))
}

// Ret 返回（默认经 X30）
func (a *Assembler) Ret() {
	a.emit(0xD65F03C0)
}

// RetReg 指定返回地址寄存器
func (a *Assembler) RetReg(reg Reg) {
	a.emit(0xD65F0000 | (reg.Encode() << 5))
}

// Brk 断点陷入（内部断言失败）
func (a *Assembler) Brk(imm uint16) {
	a.emit(0xD4200000 | (uint32(imm) << 5))
}

// Nop 空操作
func (a *Assembler) Nop() {
	a.emit(0xD503201F)
}

// ============================================================================
// 浮点
// ============================================================================

// ftype: 0=S 1=D，编码进 [23:22]
func ftypeBit(isDouble bool) uint32 {
	if isDouble {
		return 1 << 22
	}
	return 0
}

// FLdr 加载浮点寄存器
func (a *Assembler) FLdr(isDouble bool, vt VReg, base Reg, offset int32) {
	size := uint32(2)
	scale := int32(4)
	if isDouble {
		size = 3
		scale = 8
	}
	if offset >= 0 && offset <= 4095*scale && offset%scale == 0 {
		imm12 := uint32(offset/scale) << 10
		a.emit((size << 30) | 0x3D400000 | imm12 |
			(base.Encode() << 5) | vt.Encode())
		return
	}
	a.MovImm64(X17, uint64(int64(offset)))
	a.AddRegReg(true, X17, base, X17)
	a.FLdr(isDouble, vt, X17, 0)
}

// FStr 存储浮点寄存器
func (a *Assembler) FStr(isDouble bool, vt VReg, base Reg, offset int32) {
	size := uint32(2)
	scale := int32(4)
	if isDouble {
		size = 3
		scale = 8
	}
	if offset >= 0 && offset <= 4095*scale && offset%scale == 0 {
		imm12 := uint32(offset/scale) << 10
		a.emit((size << 30) | 0x3D000000 | imm12 |
			(base.Encode() << 5) | vt.Encode())
		return
	}
	a.MovImm64(X17, uint64(int64(offset)))
	a.AddRegReg(true, X17, base, X17)
	a.FStr(isDouble, vt, X17, 0)
}

// Fmov 浮点寄存器间移动
func (a *Assembler) Fmov(isDouble bool, dst, src VReg) {
	a.emit(0x1E204000 | ftypeBit(isDouble) | (src.Encode() << 5) | dst.Encode())
}

// FmovToGP 浮点到通用寄存器（位模式不变）
func (a *Assembler) FmovToGP(isDouble bool, dst Reg, src VReg) {
	if isDouble {
		a.emit(0x9E660000 | (src.Encode() << 5) | dst.Encode())
	} else {
		a.emit(0x1E260000 | (src.Encode() << 5) | dst.Encode())
	}
}

// FmovFromGP 通用到浮点寄存器
func (a *Assembler) FmovFromGP(isDouble bool, dst VReg, src Reg) {
	if isDouble {
		a.emit(0x9E670000 | (src.Encode() << 5) | dst.Encode())
	} else {
		a.emit(0x1E270000 | (src.Encode() << 5) | dst.Encode())
	}
}

// Fadd 浮点加
func (a *Assembler) Fadd(isDouble bool, dst, src1, src2 VReg) {
	a.emit(0x1E202800 | ftypeBit(isDouble) | (src2.Encode() << 16) |
		(src1.Encode() << 5) | dst.Encode())
}

// Fsub 浮点减
func (a *Assembler) Fsub(isDouble bool, dst, src1, src2 VReg) {
	a.emit(0x1E203800 | ftypeBit(isDouble) | (src2.Encode() << 16) |
		(src1.Encode() << 5) | dst.Encode())
}

// Fmul 浮点乘
func (a *Assembler) Fmul(isDouble bool, dst, src1, src2 VReg) {
	a.emit(0x1E200800 | ftypeBit(isDouble) | (src2.Encode() << 16) |
		(src1.Encode() << 5) | dst.Encode())
}

// Fdiv 浮点除
func (a *Assembler) Fdiv(isDouble bool, dst, src1, src2 VReg) {
	a.emit(0x1E201800 | ftypeBit(isDouble) | (src2.Encode() << 16) |
		(src1.Encode() << 5) | dst.Encode())
}

// Fneg 浮点取负
func (a *Assembler) Fneg(isDouble bool, dst, src VReg) {
	a.emit(0x1E214000 | ftypeBit(isDouble) | (src.Encode() << 5) | dst.Encode())
}

// Fcmp 浮点比较
func (a *Assembler) Fcmp(isDouble bool, src1, src2 VReg) {
	a.emit(0x1E202000 | ftypeBit(isDouble) | (src2.Encode() << 16) |
		(src1.Encode() << 5))
}
