// Package aot 实现 AOT 编译产物的落盘
//
// 产物是一个自描述容器：方法目录 + 去重后的代码段 + 链接补丁表 +
// 栈图 blob + 可选调试段。机器码与补丁表都相同的方法（常见于
// 模板式访问器）按 blake2b 摘要去重，目录里多个方法指向同一段代码。
package aot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pierrec/lz4/v4"
	"golang.org/x/crypto/blake2b"

	"github.com/quasarlang/quasar/internal/codegen"
)

// 容器魔数 "QAOT" 与版本
const (
	ImageMagic   = 0x51414f54
	ImageVersion = 1
)

// 代码段对齐：ARM64 取指要求 4，预留到缓存行
const codeAlignment = 64

// MethodEntry 目录项
type MethodEntry struct {
	MethodIndex uint32
	CodeOffset  uint32 // 代码段内偏移（去重后）
	CodeSize    uint32
	FrameSize   uint32
	StackMapOff uint32
	StackMapLen uint32
}

// Writer AOT 容器写入器
type Writer struct {
	entries  []MethodEntry
	patches  []codegen.LinkerPatch
	code     bytes.Buffer
	stackMap bytes.Buffer
	debug    bytes.Buffer

	// 摘要 → 代码段偏移，相同代码只落一份
	dedup map[[blake2b.Size256]byte]uint32
}

// NewWriter 创建写入器
func NewWriter() *Writer {
	return &Writer{
		dedup: make(map[[blake2b.Size256]byte]uint32),
	}
}

// AddMethod 登记一个编译完成的方法
func (w *Writer) AddMethod(methodIndex uint32, res *codegen.CompileResult) error {
	if len(res.Code) == 0 {
		return fmt.Errorf("aot: 方法 %d 无代码", methodIndex)
	}

	codeOff, shared, err := w.internCode(res.Code, res.Patches)
	if err != nil {
		return err
	}

	smOff := uint32(w.stackMap.Len())
	w.stackMap.Write(res.StackMaps)

	w.entries = append(w.entries, MethodEntry{
		MethodIndex: methodIndex,
		CodeOffset:  codeOff,
		CodeSize:    uint32(len(res.Code)),
		FrameSize:   uint32(res.FrameSize),
		StackMapOff: smOff,
		StackMapLen: uint32(len(res.StackMaps)),
	})

	// 共享代码的补丁只随首份登记一次
	if !shared {
		for _, p := range res.Patches {
			p.CodeOffset += codeOff
			if p.BaseOffset != 0 {
				p.BaseOffset += codeOff
			}
			w.patches = append(w.patches, p)
		}
	}
	return nil
}

// internCode 代码去重落段，返回段内偏移与是否命中已有代码。
// 摘要连补丁表一起算：补丁点的立即数是占位符，字节相同而
// 补丁目标不同的两个方法链接后并不等价，不能折叠。
func (w *Writer) internCode(code []byte, patches []codegen.LinkerPatch) (uint32, bool, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return 0, false, fmt.Errorf("aot: 摘要初始化: %w", err)
	}
	h.Write(code)
	var pb [20]byte
	for _, p := range patches {
		binary.LittleEndian.PutUint32(pb[0:], uint32(p.Kind))
		binary.LittleEndian.PutUint32(pb[4:], p.CodeOffset)
		binary.LittleEndian.PutUint32(pb[8:], p.TargetIndex)
		binary.LittleEndian.PutUint32(pb[12:], p.BaseOffset)
		binary.LittleEndian.PutUint32(pb[16:], p.CustomData)
		h.Write(pb[:])
	}
	var digest [blake2b.Size256]byte
	h.Sum(digest[:0])
	if off, ok := w.dedup[digest]; ok {
		return off, true, nil
	}

	for w.code.Len()%codeAlignment != 0 {
		w.code.WriteByte(0)
	}
	off := uint32(w.code.Len())
	if _, err := w.code.Write(code); err != nil {
		return 0, false, fmt.Errorf("aot: 写代码段: %w", err)
	}
	w.dedup[digest] = off
	return off, false, nil
}

// AddDebugInfo 追加调试段内容（原生调试映射、符号名）
func (w *Writer) AddDebugInfo(data []byte) {
	w.debug.Write(data)
}

// WriteTo 序列化容器。补丁按代码偏移排序：
// 链接器单遍扫描代码段即可完成全部改写。
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	sort.SliceStable(w.patches, func(i, j int) bool {
		return w.patches[i].CodeOffset < w.patches[j].CodeOffset
	})
	sort.SliceStable(w.entries, func(i, j int) bool {
		return w.entries[i].MethodIndex < w.entries[j].MethodIndex
	})

	var buf bytes.Buffer
	u32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}

	u32(ImageMagic)
	u32(ImageVersion)
	u32(uint32(len(w.entries)))
	u32(uint32(len(w.patches)))
	u32(uint32(w.code.Len()))
	u32(uint32(w.stackMap.Len()))

	debugBlob, err := w.compressDebug()
	if err != nil {
		return 0, err
	}
	u32(uint32(len(debugBlob)))
	u32(uint32(w.debug.Len())) // 解压后尺寸

	for _, e := range w.entries {
		u32(e.MethodIndex)
		u32(e.CodeOffset)
		u32(e.CodeSize)
		u32(e.FrameSize)
		u32(e.StackMapOff)
		u32(e.StackMapLen)
	}
	for _, p := range w.patches {
		u32(uint32(p.Kind))
		u32(p.CodeOffset)
		u32(p.TargetIndex)
		u32(p.BaseOffset)
		u32(p.CustomData)
	}

	buf.Write(w.code.Bytes())
	buf.Write(w.stackMap.Bytes())
	buf.Write(debugBlob)

	n, err := out.Write(buf.Bytes())
	if err != nil {
		return int64(n), fmt.Errorf("aot: 写容器: %w", err)
	}
	return int64(n), nil
}

// compressDebug 调试段 lz4 压缩。调试信息体积大且只在
// 崩溃分析时解开，换压缩比不换解码速度。
func (w *Writer) compressDebug() ([]byte, error) {
	if w.debug.Len() == 0 {
		return nil, nil
	}
	var out bytes.Buffer
	zw := lz4.NewWriter(&out)
	if _, err := zw.Write(w.debug.Bytes()); err != nil {
		return nil, fmt.Errorf("aot: 压缩调试段: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("aot: 压缩调试段: %w", err)
	}
	return out.Bytes(), nil
}

// WriteFile 写到文件
func (w *Writer) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("aot: %w", err)
	}
	defer f.Close()
	if _, err := w.WriteTo(f); err != nil {
		return err
	}
	return f.Sync()
}

// MethodCount 已登记方法数
func (w *Writer) MethodCount() int {
	return len(w.entries)
}

// CodeSize 去重后的代码段字节数
func (w *Writer) CodeSize() int {
	return w.code.Len()
}

// PatchCount 补丁总数
func (w *Writer) PatchCount() int {
	return len(w.patches)
}
