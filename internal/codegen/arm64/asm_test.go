// asm_test.go - 汇编器编码测试
//
// 期望值全部取自 ARM 架构手册的标准编码，不从发射逻辑反推。

package arm64

import (
	"encoding/binary"
	"testing"
)

func singleInstr(t *testing.T, emit func(a *Assembler)) uint32 {
	t.Helper()
	a := NewAssembler()
	emit(a)
	if err := a.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a.Len() != 4 {
		t.Fatalf("expected single instruction, got %d bytes", a.Len())
	}
	return binary.LittleEndian.Uint32(a.Code())
}

// TestEncodeFixed 无操作数/固定编码指令
func TestEncodeFixed(t *testing.T) {
	tests := []struct {
		name string
		emit func(a *Assembler)
		want uint32
	}{
		{"nop", func(a *Assembler) { a.Nop() }, 0xD503201F},
		{"ret", func(a *Assembler) { a.Ret() }, 0xD65F03C0},
		{"brk #0", func(a *Assembler) { a.Brk(0) }, 0xD4200000},
		{"blr x16", func(a *Assembler) { a.Blr(IP0) }, 0xD63F0200},
		{"br x17", func(a *Assembler) { a.Br(IP1) }, 0xD61F0220},
		{"ret x30 alias", func(a *Assembler) { a.RetReg(LR) }, 0xD65F03C0},
	}
	for _, tt := range tests {
		if got := singleInstr(t, tt.emit); got != tt.want {
			t.Errorf("%s: got %#08x, want %#08x", tt.name, got, tt.want)
		}
	}
}

// TestEncodeDataProcessing 数据处理指令
func TestEncodeDataProcessing(t *testing.T) {
	tests := []struct {
		name string
		emit func(a *Assembler)
		want uint32
	}{
		{"mov x0, x1", func(a *Assembler) { a.MovRegReg(true, X0, X1) }, 0xAA0103E0},
		{"mov w2, w3", func(a *Assembler) { a.MovRegReg(false, X2, X3) }, 0x2A0303E2},
		{"mov w0, #1", func(a *Assembler) { a.Movz(false, X0, 1, 0) }, 0x52800020},
		{"movk x0, #2, lsl #16", func(a *Assembler) { a.Movk(true, X0, 2, 16) }, 0xF2A00040},
		{"add w2, w3, #4", func(a *Assembler) { a.AddRegImm(false, X2, X3, 4) }, 0x11001062},
		{"add x0, x1, x2", func(a *Assembler) { a.AddRegReg(true, X0, X1, X2) }, 0x8B020020},
		{"sub w0, w1, w2", func(a *Assembler) { a.SubRegReg(false, X0, X1, X2) }, 0x4B020020},
		{"sdiv w0, w1, w2", func(a *Assembler) { a.Sdiv(false, X0, X1, X2) }, 0x1AC20C20},
		{"lsl w0, w1, #3", func(a *Assembler) { a.LslImm(false, X0, X1, 3) }, 0x531D7020},
		{"lsr x0, x1, #32", func(a *Assembler) { a.LsrImm(true, X0, X1, 32) }, 0xD360FC20},
		{"asr w0, w1, #5", func(a *Assembler) { a.AsrImm(false, X0, X1, 5) }, 0x13057C20},
	}
	for _, tt := range tests {
		if got := singleInstr(t, tt.emit); got != tt.want {
			t.Errorf("%s: got %#08x, want %#08x", tt.name, got, tt.want)
		}
	}
}

// TestEncodeLoadStore 加载/存储寻址
func TestEncodeLoadStore(t *testing.T) {
	tests := []struct {
		name string
		emit func(a *Assembler)
		want uint32
	}{
		{"ldr w0, [x1, #8]", func(a *Assembler) { a.LdrW(X0, X1, 8) }, 0xB9400820},
		{"ldr x0, [sp, #16]", func(a *Assembler) { a.LdrX(X0, SP, 16) }, 0xF9400BE0},
		{"str w3, [x2]", func(a *Assembler) { a.StrW(X3, X2, 0) }, 0xB9000043},
		{"ldrb w1, [x0, #1]", func(a *Assembler) { a.LdrB(X1, X0, 1) }, 0x39400401},
		{"ldrh w1, [x0, #2]", func(a *Assembler) { a.LdrH(X1, X0, 2) }, 0x79400401},
		{"ldarb w1, [x0]", func(a *Assembler) { a.LdarB(X1, X0) }, 0x08DFFC01},
	}
	for _, tt := range tests {
		if got := singleInstr(t, tt.emit); got != tt.want {
			t.Errorf("%s: got %#08x, want %#08x", tt.name, got, tt.want)
		}
	}
}

// TestEncodeNegativeOffsetUsesUnscaled 负偏移落到 LDUR 族
func TestEncodeNegativeOffsetUsesUnscaled(t *testing.T) {
	got := singleInstr(t, func(a *Assembler) { a.LdrW(X0, X1, -4) })
	// ldur w0, [x1, #-4]
	if got != 0xB85FC020 {
		t.Errorf("got %#08x, want 0xB85FC020", got)
	}
}

// TestBranchResolution 前向/后向跳转回填
func TestBranchResolution(t *testing.T) {
	// 前向：b +8
	a := NewAssembler()
	l := NewLabel()
	a.B(l)
	a.Nop()
	a.Bind(l)
	a.Nop()
	if err := a.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := a.InstrAt(0); got != 0x14000002 {
		t.Errorf("b +8: got %#08x, want 0x14000002", got)
	}

	// 后向：cbz w0, -4
	a = NewAssembler()
	l = NewLabel()
	a.Bind(l)
	a.Nop()
	a.Cbz(false, X0, l)
	if err := a.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := a.InstrAt(4); got != 0x34FFFFE0 {
		t.Errorf("cbz -4: got %#08x, want 0x34FFFFE0", got)
	}

	// 条件跳转：b.eq +8
	a = NewAssembler()
	l = NewLabel()
	a.Bcond(EQ, l)
	a.Nop()
	a.Bind(l)
	a.Nop()
	if err := a.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := a.InstrAt(0); got != 0x54000040 {
		t.Errorf("b.eq +8: got %#08x, want 0x54000040", got)
	}

	// 位测试跳转：tbnz w20, #28, +8
	a = NewAssembler()
	l = NewLabel()
	a.Tbnz(MR, 28, l)
	a.Nop()
	a.Bind(l)
	a.Nop()
	if err := a.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := a.InstrAt(0); got != 0x37E00054 {
		t.Errorf("tbnz +8: got %#08x, want 0x37E00054", got)
	}
}

// TestMovImm64Synthesis 大立即数按需拆 movz/movk
func TestMovImm64Synthesis(t *testing.T) {
	a := NewAssembler()
	a.MovImm64(X0, 0x1234)
	if a.Len() != 4 {
		t.Errorf("16-bit imm should be single movz, got %d bytes", a.Len())
	}

	a = NewAssembler()
	a.MovImm64(X0, 0x12345678)
	if a.Len() != 8 {
		t.Errorf("32-bit imm should be movz+movk, got %d bytes", a.Len())
	}

	a = NewAssembler()
	a.MovImm64(X0, 0x123456789ABCDEF0)
	if a.Len() != 16 {
		t.Errorf("64-bit imm should be 4 instructions, got %d bytes", a.Len())
	}
}

// TestCondInvert 条件取反互为相反
func TestCondInvert(t *testing.T) {
	pairs := []struct{ a, b Cond }{
		{EQ, NE}, {LT, GE}, {LE, GT}, {LO, HS}, {LS, HI},
	}
	for _, p := range pairs {
		if p.a.Invert() != p.b || p.b.Invert() != p.a {
			t.Errorf("Invert(%v) != %v", p.a, p.b)
		}
	}
}
