// writer_test.go - AOT 容器写入测试

package aot

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/pierrec/lz4/v4"

	"github.com/quasarlang/quasar/internal/codegen"
)

func fakeResult(code []byte, patches ...codegen.LinkerPatch) *codegen.CompileResult {
	return &codegen.CompileResult{
		Code:      code,
		StackMaps: []byte{0xAA, 0xBB},
		Patches:   patches,
		FrameSize: 32,
	}
}

// TestWriterDedup 相同机器码只落一份
func TestWriterDedup(t *testing.T) {
	w := NewWriter()
	code := bytes.Repeat([]byte{0xC0, 0x03, 0x5F, 0xD6}, 4)

	if err := w.AddMethod(1, fakeResult(code)); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}
	sizeAfterFirst := w.CodeSize()

	if err := w.AddMethod(2, fakeResult(append([]byte(nil), code...))); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}
	if w.CodeSize() != sizeAfterFirst {
		t.Errorf("identical code grew section: %d -> %d", sizeAfterFirst, w.CodeSize())
	}
	if w.MethodCount() != 2 {
		t.Errorf("MethodCount = %d, want 2", w.MethodCount())
	}

	// 不同代码追加时按 64 字节对齐
	other := bytes.Repeat([]byte{0x1F, 0x20, 0x03, 0xD5}, 2)
	if err := w.AddMethod(3, fakeResult(other)); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}
	if w.CodeSize() != codeAlignment+len(other) {
		t.Errorf("CodeSize = %d, want %d", w.CodeSize(), codeAlignment+len(other))
	}
}

// TestWriterSharedCodePatchesOnce 代码与补丁全同的方法折叠，补丁只登记一次
func TestWriterSharedCodePatchesOnce(t *testing.T) {
	w := NewWriter()
	code := bytes.Repeat([]byte{0x00, 0x00, 0x80, 0x52}, 4)
	p := codegen.LinkerPatch{Kind: codegen.PatchMethod, CodeOffset: 4, BaseOffset: 0, TargetIndex: 9}

	if err := w.AddMethod(1, fakeResult(code, p)); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}
	sizeAfterFirst := w.CodeSize()
	if err := w.AddMethod(2, fakeResult(append([]byte(nil), code...), p)); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}
	if w.CodeSize() != sizeAfterFirst {
		t.Errorf("identical code+patches grew section: %d -> %d", sizeAfterFirst, w.CodeSize())
	}
	if w.PatchCount() != 1 {
		t.Errorf("PatchCount = %d, want 1 (shared code)", w.PatchCount())
	}
}

// TestWriterDistinctPatchTargetsNotFused 字节相同但补丁目标不同的
// 方法不折叠：ADRP/ADD 立即数是占位符，链接后语义由补丁决定
func TestWriterDistinctPatchTargetsNotFused(t *testing.T) {
	w := NewWriter()
	code := bytes.Repeat([]byte{0x00, 0x00, 0x80, 0x52}, 4)

	pa := codegen.LinkerPatch{Kind: codegen.PatchMethod, CodeOffset: 4, TargetIndex: 9}
	if err := w.AddMethod(1, fakeResult(code, pa)); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}
	sizeAfterFirst := w.CodeSize()

	pb := codegen.LinkerPatch{Kind: codegen.PatchMethod, CodeOffset: 4, TargetIndex: 11}
	if err := w.AddMethod(2, fakeResult(append([]byte(nil), code...), pb)); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}
	if w.CodeSize() == sizeAfterFirst {
		t.Error("methods with different patch targets were fused")
	}
	if w.PatchCount() != 2 {
		t.Errorf("PatchCount = %d, want 2", w.PatchCount())
	}

	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	data := buf.Bytes()
	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(data[off:]) }

	// 第二份代码落在 64 对齐的第二段，补丁各自指向各自的目标
	patchOff := 32 + 24*2
	if got := u32(patchOff + 8); got != 9 {
		t.Errorf("first patch target = %d, want 9", got)
	}
	if got := u32(patchOff + 20 + 4); got != codeAlignment+4 {
		t.Errorf("second patch code offset = %d, want %d", got, codeAlignment+4)
	}
	if got := u32(patchOff + 20 + 8); got != 11 {
		t.Errorf("second patch target = %d, want 11", got)
	}
}

// TestWriterRejectsEmptyMethod 空方法报错
func TestWriterRejectsEmptyMethod(t *testing.T) {
	w := NewWriter()
	if err := w.AddMethod(1, fakeResult(nil)); err == nil {
		t.Error("empty code should be rejected")
	}
}

// TestWriterContainerLayout 容器头与目录可按格式读回
func TestWriterContainerLayout(t *testing.T) {
	w := NewWriter()
	codeA := bytes.Repeat([]byte{0xC0, 0x03, 0x5F, 0xD6}, 2)
	codeB := bytes.Repeat([]byte{0x1F, 0x20, 0x03, 0xD5}, 2)

	// 倒序登记，写出时目录按方法号排序
	if err := w.AddMethod(5, fakeResult(codeB)); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}
	if err := w.AddMethod(2, fakeResult(codeA)); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}

	debugPayload := bytes.Repeat([]byte("quasar debug line table "), 64)
	w.AddDebugInfo(debugPayload)

	var buf bytes.Buffer
	n, err := w.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("WriteTo returned %d, buffer has %d", n, buf.Len())
	}

	data := buf.Bytes()
	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(data[off:]) }

	if u32(0) != ImageMagic {
		t.Fatalf("magic = %#x, want %#x", u32(0), ImageMagic)
	}
	if u32(4) != ImageVersion {
		t.Errorf("version = %d", u32(4))
	}
	entryCount := int(u32(8))
	patchCount := int(u32(12))
	codeLen := int(u32(16))
	stackMapLen := int(u32(20))
	debugLen := int(u32(24))
	rawDebugLen := int(u32(28))

	if entryCount != 2 || patchCount != 0 {
		t.Errorf("counts: entries %d patches %d", entryCount, patchCount)
	}
	if rawDebugLen != len(debugPayload) {
		t.Errorf("raw debug len = %d, want %d", rawDebugLen, len(debugPayload))
	}
	if debugLen >= rawDebugLen {
		t.Errorf("debug section not compressed: %d >= %d", debugLen, rawDebugLen)
	}

	// 目录：6 个 u32 一项，按方法号升序
	if got := u32(32); got != 2 {
		t.Errorf("first directory entry method = %d, want 2", got)
	}
	if got := u32(32 + 24); got != 5 {
		t.Errorf("second directory entry method = %d, want 5", got)
	}

	// 调试段回解
	debugOff := 32 + 24*entryCount + 20*patchCount + codeLen + stackMapLen
	zr := lz4.NewReader(bytes.NewReader(data[debugOff : debugOff+debugLen]))
	restored, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("lz4 decompress: %v", err)
	}
	if !bytes.Equal(restored, debugPayload) {
		t.Error("debug payload did not round-trip")
	}
}

// TestWriterPatchRebase 补丁偏移按代码段内偏移重定位
func TestWriterPatchRebase(t *testing.T) {
	w := NewWriter()

	codeA := bytes.Repeat([]byte{0xC0, 0x03, 0x5F, 0xD6}, 16)
	if err := w.AddMethod(1, fakeResult(codeA)); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}

	codeB := bytes.Repeat([]byte{0x1F, 0x20, 0x03, 0xD5}, 4)
	p := codegen.LinkerPatch{Kind: codegen.PatchMethod, CodeOffset: 8, BaseOffset: 4, TargetIndex: 3}
	if err := w.AddMethod(2, fakeResult(codeB, p)); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}

	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	data := buf.Bytes()
	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(data[off:]) }

	// codeB 落在 64 对齐的第二段
	patchOff := 32 + 24*2
	if got := u32(patchOff + 4); got != 64+8 {
		t.Errorf("patch code offset = %d, want %d", got, 64+8)
	}
	if got := u32(patchOff + 12); got != 64+4 {
		t.Errorf("patch base offset = %d, want %d", got, 64+4)
	}
}
