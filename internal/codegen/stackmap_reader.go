// stackmap_reader.go - 栈图 blob 解码
//
// 运行时消费面：GC 扫描按本地 PC 找根掩码，异常回溯找源位置，
// 去优化/OSR 取变量位置表。与 stackmap.go 的编码严格互逆。

package codegen

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// StackMapInfo 解码后的方法栈图
type StackMapInfo struct {
	Header  MethodHeader
	Entries []StackMapEntry
}

// DecodeStackMaps 解码二进制 blob
func DecodeStackMaps(data []byte) (*StackMapInfo, error) {
	r := bytes.NewReader(data)
	getU32 := func() (uint32, error) {
		var b [4]byte
		if _, err := r.Read(b[:]); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint32(b[:]), nil
	}

	magic, err := getU32()
	if err != nil {
		return nil, fmt.Errorf("栈图解码: 读取魔数失败: %w", err)
	}
	if magic != stackMapMagic {
		return nil, fmt.Errorf("栈图解码: 魔数不匹配 %#x", magic)
	}
	version, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("栈图解码: 读取版本失败: %w", err)
	}
	if version != stackMapVersion {
		return nil, fmt.Errorf("栈图解码: 不支持的版本 %d", version)
	}

	info := &StackMapInfo{}
	frameSize, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("栈图解码: 读取帧尺寸失败: %w", err)
	}
	info.Header.FrameSize = int(frameSize)
	if info.Header.CoreSpillMask, err = getU32(); err != nil {
		return nil, fmt.Errorf("栈图解码: 读取核心溢出掩码失败: %w", err)
	}
	if info.Header.FpSpillMask, err = getU32(); err != nil {
		return nil, fmt.Errorf("栈图解码: 读取浮点溢出掩码失败: %w", err)
	}
	numVRegs, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("栈图解码: 读取 vreg 数失败: %w", err)
	}
	info.Header.NumVRegs = int(numVRegs)
	flags, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("栈图解码: 读取标志失败: %w", err)
	}
	info.Header.Debuggable = flags&1 != 0
	info.Header.Baseline = flags&2 != 0
	info.Header.OSR = flags&4 != 0
	codeSize, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("栈图解码: 读取代码尺寸失败: %w", err)
	}
	info.Header.CodeSize = int(codeSize)

	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("栈图解码: 读取条目数失败: %w", err)
	}
	info.Entries = make([]StackMapEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		var e StackMapEntry
		off, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("栈图解码: 条目 %d 偏移: %w", i, err)
		}
		e.NativeOffset = uint32(off)
		pc, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("栈图解码: 条目 %d bc pc: %w", i, err)
		}
		e.BCPC = uint32(pc)
		kind, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("栈图解码: 条目 %d 种类: %w", i, err)
		}
		e.Kind = StackMapKind(kind)
		if e.RegisterMask, err = getU32(); err != nil {
			return nil, fmt.Errorf("栈图解码: 条目 %d 寄存器掩码: %w", i, err)
		}
		maskBits, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("栈图解码: 条目 %d 栈掩码位数: %w", i, err)
		}
		e.StackMaskBits = int(maskBits)
		words := (e.StackMaskBits + 31) / 32
		for w := 0; w < words; w++ {
			word, err := getU32()
			if err != nil {
				return nil, fmt.Errorf("栈图解码: 条目 %d 栈掩码字: %w", i, err)
			}
			e.StackMask = append(e.StackMask, word)
		}
		hasVRegs, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("栈图解码: 条目 %d 变量表标志: %w", i, err)
		}
		if hasVRegs != 0 {
			e.HasVRegMap = true
			n, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("栈图解码: 条目 %d 变量数: %w", i, err)
			}
			for v := uint64(0); v < n; v++ {
				k, err := r.ReadByte()
				if err != nil {
					return nil, fmt.Errorf("栈图解码: 条目 %d 变量种类: %w", i, err)
				}
				val, err := binary.ReadUvarint(r)
				if err != nil {
					return nil, fmt.Errorf("栈图解码: 条目 %d 变量值: %w", i, err)
				}
				e.VRegs = append(e.VRegs, VRegLocation{Kind: VRegLocationKind(k), Value: int32(uint32(val))})
			}
		}
		inlined, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("栈图解码: 条目 %d 内联数: %w", i, err)
		}
		for in := uint64(0); in < inlined; in++ {
			mi, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("栈图解码: 条目 %d 内联方法: %w", i, err)
			}
			pc, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("栈图解码: 条目 %d 内联 pc: %w", i, err)
			}
			e.Inlined = append(e.Inlined, InlineEntry{MethodIndex: uint32(mi), BCPC: uint32(pc)})
		}
		info.Entries = append(info.Entries, e)
	}
	return info, nil
}

// EntryForNativeOffset 找偏移 <= off 的最近条目，无则返回 nil
func (s *StackMapInfo) EntryForNativeOffset(off uint32) *StackMapEntry {
	idx := sort.Search(len(s.Entries), func(i int) bool {
		return s.Entries[i].NativeOffset > off
	})
	if idx == 0 {
		return nil
	}
	return &s.Entries[idx-1]
}

// CatchEntryForBCPC 找 bc pc 对应的 catch 入口条目
func (s *StackMapInfo) CatchEntryForBCPC(pc uint32) *StackMapEntry {
	for i := range s.Entries {
		if s.Entries[i].Kind == StackMapCatch && s.Entries[i].BCPC == pc {
			return &s.Entries[i]
		}
	}
	return nil
}

// StackMaskBit 检查条目栈掩码某位
func (e *StackMapEntry) StackMaskBit(slot int) bool {
	word := slot / 32
	return word < len(e.StackMask) && e.StackMask[word]&(1<<uint(slot%32)) != 0
}
