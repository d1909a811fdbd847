// stackmap_test.go - 栈图编解码测试

package codegen

import (
	"testing"

	"github.com/quasarlang/quasar/internal/locations"
)

// TestStackMapRoundTrip 编码后解码应完整还原
func TestStackMapRoundTrip(t *testing.T) {
	w := NewStackMapWriter(nil)
	w.BeginMethod(96, 0x40000000, 0xFF00, 4, true, false, false)

	mask := locations.NewStackMask(8)
	mask.Set(1)
	mask.Set(3)

	w.BeginStackMapEntry(2, 8, 0b0110, mask, StackMapDefault)
	w.AddDexRegisterEntry(VRegInRegister, 1)
	w.AddDexRegisterEntry(VRegConstant, 42)
	w.AddInlineEntry(7, 12)
	w.EndStackMapEntry()

	w.BeginStackMapEntry(5, 24, 0, nil, StackMapDefault)
	w.EndStackMapEntry()

	w.EndMethod(64)

	info, err := DecodeStackMaps(w.Encode())
	if err != nil {
		t.Fatalf("DecodeStackMaps: %v", err)
	}

	h := info.Header
	if h.FrameSize != 96 || h.CoreSpillMask != 0x40000000 || h.FpSpillMask != 0xFF00 {
		t.Errorf("header mismatch: %+v", h)
	}
	if h.NumVRegs != 4 || !h.Debuggable || h.Baseline || h.OSR {
		t.Errorf("header flags mismatch: %+v", h)
	}
	if h.CodeSize != 64 {
		t.Errorf("CodeSize = %d, want 64", h.CodeSize)
	}

	if len(info.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(info.Entries))
	}
	e := &info.Entries[0]
	if e.NativeOffset != 8 || e.BCPC != 2 || e.Kind != StackMapDefault {
		t.Errorf("entry 0 mismatch: %+v", e)
	}
	if e.RegisterMask != 0b0110 {
		t.Errorf("RegisterMask = %#x, want 0x6", e.RegisterMask)
	}
	if !e.StackMaskBit(1) || !e.StackMaskBit(3) || e.StackMaskBit(2) {
		t.Error("stack mask bits mismatch")
	}
	if !e.HasVRegMap || len(e.VRegs) != 2 {
		t.Fatalf("vreg map mismatch: %+v", e)
	}
	if e.VRegs[0] != (VRegLocation{Kind: VRegInRegister, Value: 1}) {
		t.Errorf("vreg 0 = %+v", e.VRegs[0])
	}
	if e.VRegs[1] != (VRegLocation{Kind: VRegConstant, Value: 42}) {
		t.Errorf("vreg 1 = %+v", e.VRegs[1])
	}
	if len(e.Inlined) != 1 || e.Inlined[0].MethodIndex != 7 || e.Inlined[0].BCPC != 12 {
		t.Errorf("inline chain mismatch: %+v", e.Inlined)
	}

	if info.Entries[1].HasVRegMap {
		t.Error("entry 1 should have no vreg map")
	}
}

// TestStackMapCatchEntrySorting catch 条目收尾补记在条目流末尾，
// 偏移指向块首（偏小），编码时要稳定排回偏移序
func TestStackMapCatchEntrySorting(t *testing.T) {
	w := NewStackMapWriter(nil)
	w.BeginMethod(32, 0, 0, 2, false, false, false)

	w.BeginStackMapEntry(1, 16, 0, nil, StackMapDefault)
	w.EndStackMapEntry()
	w.BeginStackMapEntry(2, 40, 0, nil, StackMapDefault)
	w.EndStackMapEntry()

	// catch 入口在偏移 4，晚于普通条目追加也不触发单调检查
	w.BeginStackMapEntry(9, 4, 0, nil, StackMapCatch)
	w.EndStackMapEntry()

	w.EndMethod(48)

	info, err := DecodeStackMaps(w.Encode())
	if err != nil {
		t.Fatalf("DecodeStackMaps: %v", err)
	}
	if len(info.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(info.Entries))
	}
	offsets := []uint32{info.Entries[0].NativeOffset, info.Entries[1].NativeOffset, info.Entries[2].NativeOffset}
	if offsets[0] != 4 || offsets[1] != 16 || offsets[2] != 40 {
		t.Errorf("entries not sorted by native offset: %v", offsets)
	}
	if info.Entries[0].Kind != StackMapCatch {
		t.Error("catch entry should sort first")
	}

	if got := info.CatchEntryForBCPC(9); got == nil || got.NativeOffset != 4 {
		t.Errorf("CatchEntryForBCPC(9) = %+v", got)
	}
	if info.CatchEntryForBCPC(1) != nil {
		t.Error("BCPC 1 is not a catch entry")
	}
}

// TestEntryForNativeOffset 按偏移反查最近条目
func TestEntryForNativeOffset(t *testing.T) {
	w := NewStackMapWriter(nil)
	w.BeginMethod(0, 0, 0, 0, false, false, false)
	w.BeginStackMapEntry(0, 8, 0, nil, StackMapDefault)
	w.EndStackMapEntry()
	w.BeginStackMapEntry(1, 20, 0, nil, StackMapDefault)
	w.EndStackMapEntry()
	w.EndMethod(32)

	info, err := DecodeStackMaps(w.Encode())
	if err != nil {
		t.Fatalf("DecodeStackMaps: %v", err)
	}

	if e := info.EntryForNativeOffset(4); e != nil {
		t.Errorf("offset 4 precedes all entries, got %+v", e)
	}
	if e := info.EntryForNativeOffset(8); e == nil || e.NativeOffset != 8 {
		t.Errorf("offset 8 should hit first entry, got %+v", e)
	}
	if e := info.EntryForNativeOffset(19); e == nil || e.NativeOffset != 8 {
		t.Errorf("offset 19 should hit first entry, got %+v", e)
	}
	if e := info.EntryForNativeOffset(100); e == nil || e.NativeOffset != 20 {
		t.Errorf("offset 100 should hit last entry, got %+v", e)
	}
}

// TestDecodeRejectsGarbage 非法输入要报错而不是崩
func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeStackMaps(nil); err == nil {
		t.Error("empty blob should fail")
	}
	if _, err := DecodeStackMaps([]byte{1, 2, 3, 4, 5, 6, 7, 8}); err == nil {
		t.Error("bad magic should fail")
	}
}
