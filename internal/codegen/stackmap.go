// stackmap.go - 栈图流编码器
//
// 按安全点追加记录：本地码偏移、源位置（含内联链）、GC 根掩码、
// 可选的变量位置表。产物是紧凑二进制 blob，被运行时在
// GC 扫描、异常回溯、OSR 入口、去优化时消费。
//
// 不变式：条目按本地码偏移严格非降序追加，违例属编译器内部错误，
// 直接 Fatal 终止。

package codegen

import (
	"bytes"
	"encoding/binary"
	"sort"

	"go.uber.org/zap"

	"github.com/quasarlang/quasar/internal/locations"
)

// ============================================================================
// 条目模型
// ============================================================================

// StackMapKind 安全点种类
type StackMapKind byte

const (
	// StackMapDefault 普通调用点安全点
	StackMapDefault StackMapKind = iota
	// StackMapCatch catch 块入口
	StackMapCatch
	// StackMapOSR 栈上替换入口
	StackMapOSR
	// StackMapDebug 调试器单步点
	StackMapDebug
)

// VRegLocationKind 变量位置编码种类
type VRegLocationKind byte

const (
	// VRegNone 变量已死
	VRegNone VRegLocationKind = iota
	// VRegConstant 常量内嵌（64 位拆两条，低字在前）
	VRegConstant
	// VRegInStack 栈内（字节偏移）
	VRegInStack
	// VRegInRegister 通用寄存器
	VRegInRegister
	// VRegInRegisterHigh 64 位值高半所在通用寄存器
	VRegInRegisterHigh
	// VRegInFpuRegister 浮点寄存器
	VRegInFpuRegister
	// VRegInFpuRegisterHigh 64 位值高半所在浮点寄存器
	VRegInFpuRegisterHigh
	// VRegInvalid 非法占位
	VRegInvalid
)

// VRegLocation 一个变量槽的位置编码
type VRegLocation struct {
	Kind  VRegLocationKind
	Value int32 // 偏移 / 寄存器号 / 常量位
}

// InlineEntry 内联链一环的源位置
type InlineEntry struct {
	MethodIndex uint32
	BCPC        uint32
}

// StackMapEntry 一个安全点
type StackMapEntry struct {
	NativeOffset uint32
	BCPC         uint32
	Kind         StackMapKind
	RegisterMask uint32
	StackMask    []uint32
	StackMaskBits int

	// HasVRegMap 为 false 时 VRegs 为空（多数安全点只要根掩码）
	HasVRegMap bool
	VRegs      []VRegLocation

	// Inlined 内联链，由外向内
	Inlined []InlineEntry
}

// MethodHeader 方法级栈图头
type MethodHeader struct {
	FrameSize     int
	CoreSpillMask uint32
	FpSpillMask   uint32
	NumVRegs      int
	Debuggable    bool
	Baseline      bool
	OSR           bool
	CodeSize      int
}

// ============================================================================
// 写入器
// ============================================================================

// StackMapWriter 栈图流写入器，一次编译一个实例
type StackMapWriter struct {
	header  MethodHeader
	entries []StackMapEntry

	cur        *StackMapEntry
	curInline  int
	began      bool
	lastOffset uint32

	logger *zap.Logger
}

// NewStackMapWriter 创建写入器
func NewStackMapWriter(logger *zap.Logger) *StackMapWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StackMapWriter{logger: logger}
}

// BeginMethod 记录方法级信息，必须先于任何条目
func (w *StackMapWriter) BeginMethod(frameSize int, coreSpills, fpSpills uint32, numVRegs int, debuggable, baseline, osr bool) {
	w.header = MethodHeader{
		FrameSize:     frameSize,
		CoreSpillMask: coreSpills,
		FpSpillMask:   fpSpills,
		NumVRegs:      numVRegs,
		Debuggable:    debuggable,
		Baseline:      baseline,
		OSR:           osr,
	}
	w.began = true
}

// BeginStackMapEntry 开始一个安全点条目
func (w *StackMapWriter) BeginStackMapEntry(bcPC, nativeOffset uint32, registerMask uint32, stackMask *locations.StackMask, kind StackMapKind) {
	if !w.began {
		w.logger.Fatal("栈图: BeginMethod 之前记录条目")
	}
	if w.cur != nil {
		w.logger.Fatal("栈图: 条目未关闭就开始新条目",
			zap.Uint32("native_offset", nativeOffset))
	}
	// catch 入口在方法收尾统一补记，偏移指向块首，不参与单调检查
	if kind != StackMapCatch && len(w.entries) > 0 && nativeOffset < w.lastOffset {
		w.logger.Fatal("栈图: 本地码偏移回退",
			zap.Uint32("prev", w.lastOffset),
			zap.Uint32("new", nativeOffset))
	}
	e := StackMapEntry{
		NativeOffset: nativeOffset,
		BCPC:         bcPC,
		Kind:         kind,
		RegisterMask: registerMask,
	}
	if stackMask != nil {
		e.StackMask = append([]uint32(nil), stackMask.Words()...)
		e.StackMaskBits = stackMask.HighestBit()
	}
	w.entries = append(w.entries, e)
	w.cur = &w.entries[len(w.entries)-1]
	if kind != StackMapCatch {
		w.lastOffset = nativeOffset
	}
}

// AddDexRegisterEntry 追加一条变量位置（按 vreg 序）
func (w *StackMapWriter) AddDexRegisterEntry(kind VRegLocationKind, value int32) {
	if w.cur == nil {
		w.logger.Fatal("栈图: 条目之外追加变量位置")
	}
	w.cur.HasVRegMap = true
	w.cur.VRegs = append(w.cur.VRegs, VRegLocation{Kind: kind, Value: value})
}

// AddInlineEntry 追加内联链一环（由外向内调用）
func (w *StackMapWriter) AddInlineEntry(methodIndex, bcPC uint32) {
	if w.cur == nil {
		w.logger.Fatal("栈图: 条目之外追加内联环")
	}
	w.cur.Inlined = append(w.cur.Inlined, InlineEntry{MethodIndex: methodIndex, BCPC: bcPC})
}

// EndStackMapEntry 关闭当前条目
func (w *StackMapWriter) EndStackMapEntry() {
	if w.cur == nil {
		w.logger.Fatal("栈图: 关闭不存在的条目")
	}
	w.cur = nil
}

// EndMethod 记录最终代码尺寸并封口
func (w *StackMapWriter) EndMethod(codeSize int) {
	if w.cur != nil {
		w.logger.Fatal("栈图: EndMethod 时仍有未关闭条目")
	}
	w.header.CodeSize = codeSize
	w.began = false
}

// EntryCount 已记录条目数
func (w *StackMapWriter) EntryCount() int {
	return len(w.entries)
}

// Entry 取第 i 条（测试与 catch 信息复用）
func (w *StackMapWriter) Entry(i int) *StackMapEntry {
	return &w.entries[i]
}

// ============================================================================
// 二进制编码
// ============================================================================

// 魔数 "QSMP" + 版本
const stackMapMagic = 0x51534d50
const stackMapVersion = 1

// Encode 序列化为二进制 blob。条目按本地码偏移稳定排序后写出，
// 解码侧的按偏移二分查找依赖这一点（catch 补记条目偏移在前）。
func (w *StackMapWriter) Encode() []byte {
	sort.SliceStable(w.entries, func(i, j int) bool {
		return w.entries[i].NativeOffset < w.entries[j].NativeOffset
	})
	var buf bytes.Buffer
	putU32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	putUvarint := func(v uint64) {
		var b [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(b[:], v)
		buf.Write(b[:n])
	}

	putU32(stackMapMagic)
	putUvarint(stackMapVersion)
	putUvarint(uint64(w.header.FrameSize))
	putU32(w.header.CoreSpillMask)
	putU32(w.header.FpSpillMask)
	putUvarint(uint64(w.header.NumVRegs))
	flags := uint64(0)
	if w.header.Debuggable {
		flags |= 1
	}
	if w.header.Baseline {
		flags |= 2
	}
	if w.header.OSR {
		flags |= 4
	}
	putUvarint(flags)
	putUvarint(uint64(w.header.CodeSize))
	putUvarint(uint64(len(w.entries)))

	for i := range w.entries {
		e := &w.entries[i]
		putUvarint(uint64(e.NativeOffset))
		putUvarint(uint64(e.BCPC))
		buf.WriteByte(byte(e.Kind))
		putU32(e.RegisterMask)
		putUvarint(uint64(e.StackMaskBits))
		words := (e.StackMaskBits + 31) / 32
		for wi := 0; wi < words; wi++ {
			if wi < len(e.StackMask) {
				putU32(e.StackMask[wi])
			} else {
				putU32(0)
			}
		}
		if e.HasVRegMap {
			buf.WriteByte(1)
			putUvarint(uint64(len(e.VRegs)))
			for _, v := range e.VRegs {
				buf.WriteByte(byte(v.Kind))
				putUvarint(uint64(uint32(v.Value)))
			}
		} else {
			buf.WriteByte(0)
		}
		putUvarint(uint64(len(e.Inlined)))
		for _, in := range e.Inlined {
			putUvarint(uint64(in.MethodIndex))
			putUvarint(uint64(in.BCPC))
		}
	}
	return buf.Bytes()
}
