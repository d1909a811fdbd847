// codegen_test.go - ARM64 编译场景测试
//
// 直接用寄存器分配完成形态的小图喂整条发射管线，
// 对产物的帧策略、指令选择与栈图做断言。

package arm64

import (
	"encoding/binary"
	"testing"

	"github.com/quasarlang/quasar/internal/bytecode"
	"github.com/quasarlang/quasar/internal/codegen"
	"github.com/quasarlang/quasar/internal/hir"
	"github.com/quasarlang/quasar/internal/locations"
	"github.com/quasarlang/quasar/internal/runtime"
)

func testOptions() *codegen.CompilerOptions {
	return codegen.DefaultOptions()
}

func newIntConst(g *hir.Graph, b *hir.BasicBlock, v int64) *hir.Instruction {
	in := hir.NewInstruction(hir.KindIntConstant, locations.TypeInt32)
	in.ConstVal = bytecode.NewInt(v)
	return g.AddInstruction(b, in)
}

// buildLeafAddGraph r0 = 40 + 2，平凡叶方法
func buildLeafAddGraph() *hir.Graph {
	g := hir.NewGraph(&bytecode.Function{
		Name: "t.add", MethodIndex: 1, NumRegisters: 2, IsStatic: true, IsLeaf: true,
	})
	b := g.NewBlock()

	c40 := newIntConst(g, b, 40)
	c2 := newIntConst(g, b, 2)

	mov := hir.NewInstruction(hir.KindParallelMove, locations.TypeVoid)
	mov.Moves = []hir.MovePair{{
		Source:      locations.Constant(bytecode.NewInt(40)),
		Destination: locations.Register(1),
		Type:        locations.TypeInt32,
	}}
	g.AddInstruction(b, mov)

	add := hir.NewInstruction(hir.KindAdd, locations.TypeInt32, c40, c2)
	add.Locations = locations.NewSummary(2, locations.NoCall)
	add.Locations.SetInput(0, locations.Register(1))
	add.Locations.SetInput(1, locations.Constant(bytecode.NewInt(2)))
	add.Locations.SetOutput(locations.Register(0))
	g.AddInstruction(b, add)

	ret := hir.NewInstruction(hir.KindReturn, locations.TypeVoid, add)
	ret.Locations = locations.NewSummary(1, locations.NoCall)
	ret.Locations.SetInput(0, locations.Register(0))
	g.AddInstruction(b, ret)
	return g
}

// buildDivGraph r0 = r1 / divisor（常量除数）
func buildDivGraph(divisor int64) *hir.Graph {
	g := hir.NewGraph(&bytecode.Function{
		Name: "t.div", MethodIndex: 2, NumRegisters: 2, IsStatic: true, IsLeaf: true,
	})
	b := g.NewBlock()

	n := newIntConst(g, b, 1234)
	d := newIntConst(g, b, divisor)

	mov := hir.NewInstruction(hir.KindParallelMove, locations.TypeVoid)
	mov.Moves = []hir.MovePair{{
		Source:      locations.Constant(bytecode.NewInt(1234)),
		Destination: locations.Register(1),
		Type:        locations.TypeInt32,
	}}
	g.AddInstruction(b, mov)

	div := hir.NewInstruction(hir.KindDiv, locations.TypeInt32, n, d)
	div.Locations = locations.NewSummary(2, locations.NoCall)
	div.Locations.SetInput(0, locations.Register(1))
	div.Locations.SetInput(1, locations.Constant(bytecode.NewInt(divisor)))
	div.Locations.SetOutput(locations.Register(0))
	g.AddInstruction(b, div)

	ret := hir.NewInstruction(hir.KindReturn, locations.TypeVoid, div)
	ret.Locations = locations.NewSummary(1, locations.NoCall)
	ret.Locations.SetInput(0, locations.Register(0))
	g.AddInstruction(b, ret)
	return g
}

func compile(t *testing.T, g *hir.Graph) *codegen.CompileResult {
	t.Helper()
	cg, err := codegen.Create("arm64", g, testOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	res, err := codegen.Compile(cg)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return res
}

func codeWords(res *codegen.CompileResult) []uint32 {
	words := make([]uint32, 0, len(res.Code)/4)
	for i := 0; i+4 <= len(res.Code); i += 4 {
		words = append(words, binary.LittleEndian.Uint32(res.Code[i:]))
	}
	return words
}

// TestCompileTrivialLeaf 平凡叶方法：空帧，尾指令是 ret
func TestCompileTrivialLeaf(t *testing.T) {
	res := compile(t, buildLeafAddGraph())

	if res.FrameSize != 0 {
		t.Errorf("leaf frame size = %d, want 0", res.FrameSize)
	}
	if len(res.Code) == 0 || len(res.Code)%4 != 0 {
		t.Fatalf("code length %d invalid", len(res.Code))
	}
	words := codeWords(res)
	if words[len(words)-1] != 0xD65F03C0 {
		t.Errorf("last instruction %#08x, want ret", words[len(words)-1])
	}
	if len(res.Patches) != 0 {
		t.Errorf("JIT compile should carry no linker patches, got %d", len(res.Patches))
	}

	info, err := codegen.DecodeStackMaps(res.StackMaps)
	if err != nil {
		t.Fatalf("DecodeStackMaps: %v", err)
	}
	if info.Header.FrameSize != 0 {
		t.Errorf("stack map frame size = %d, want 0", info.Header.FrameSize)
	}
	if info.Header.CodeSize != len(res.Code) {
		t.Errorf("stack map code size = %d, want %d", info.Header.CodeSize, len(res.Code))
	}
}

// TestCompileDivBySevenAvoidsSdiv 常量除数不出 SDIV
func TestCompileDivBySevenAvoidsSdiv(t *testing.T) {
	before := codegen.GlobalStats.DivByConstMagic.Load()
	res := compile(t, buildDivGraph(7))

	for i, w := range codeWords(res) {
		if w&0x7FE0FC00 == 0x1AC00C00 {
			t.Errorf("instruction %d is sdiv (%#08x), magic path expected", i, w)
		}
	}
	if codegen.GlobalStats.DivByConstMagic.Load() != before+1 {
		t.Error("magic division counter did not advance")
	}
}

// TestCompileDivByPowerOfTwo 2 的幂除数也绕开 SDIV
func TestCompileDivByPowerOfTwo(t *testing.T) {
	res := compile(t, buildDivGraph(8))
	for i, w := range codeWords(res) {
		if w&0x7FE0FC00 == 0x1AC00C00 {
			t.Errorf("instruction %d is sdiv (%#08x), shift path expected", i, w)
		}
	}
}

// TestCompileLoopWithSuspendCheck 带挂起检查的循环：
// 非空帧、挂起慢路径产生安全点
func TestCompileLoopWithSuspendCheck(t *testing.T) {
	g := hir.NewGraph(&bytecode.Function{
		Name: "t.loop", MethodIndex: 3, NumRegisters: 3, IsStatic: true,
	})
	g.HasLoops = true

	b0 := g.NewBlock()
	b1 := g.NewBlock()
	b2 := g.NewBlock()
	b3 := g.NewBlock()
	b0.Successors = []*hir.BasicBlock{b1}
	b1.Successors = []*hir.BasicBlock{b2, b3}
	b2.Successors = []*hir.BasicBlock{b1}
	b1.Predecessors = []*hir.BasicBlock{b0, b2}
	b2.Predecessors = []*hir.BasicBlock{b1}
	b3.Predecessors = []*hir.BasicBlock{b1}
	b1.IsLoopHeader = true

	init := hir.NewInstruction(hir.KindParallelMove, locations.TypeVoid)
	zero := locations.Constant(bytecode.NewInt(0))
	init.Moves = []hir.MovePair{
		{Source: zero, Destination: locations.Register(1), Type: locations.TypeInt32},
		{Source: zero, Destination: locations.Register(2), Type: locations.TypeInt32},
	}
	g.AddInstruction(b0, init)
	g.AddInstruction(b0, hir.NewInstruction(hir.KindGoto, locations.TypeVoid))

	suspend := hir.NewInstruction(hir.KindSuspendCheck, locations.TypeVoid)
	suspend.SideEffects = hir.SideEffectCanTriggerGC
	suspend.Locations = locations.NewSummary(0, locations.CallOnSlowPath)
	suspend.Locations.AddLiveRegister(locations.Register(1))
	suspend.Locations.AddLiveRegister(locations.Register(2))
	g.AddInstruction(b1, suspend)

	phiI := hir.NewInstruction(hir.KindPhi, locations.TypeInt32)
	phiI.Locations = locations.NewSummary(0, locations.NoCall)
	phiI.Locations.SetOutput(locations.Register(1))
	g.AddInstruction(b1, phiI)

	limit := newIntConst(g, b1, 1000)
	cond := hir.NewInstruction(hir.KindCondition, locations.TypeBool, phiI, limit)
	cond.Cond = hir.CondLT
	cond.Locations = locations.NewSummary(2, locations.NoCall)
	cond.Locations.SetInput(0, locations.Register(1))
	cond.Locations.SetInput(1, locations.Constant(bytecode.NewInt(1000)))
	g.AddInstruction(b1, cond)

	ifInstr := hir.NewInstruction(hir.KindIf, locations.TypeVoid, cond)
	ifInstr.Locations = locations.NewSummary(1, locations.NoCall)
	g.AddInstruction(b1, ifInstr)

	one := newIntConst(g, b2, 1)
	addI := hir.NewInstruction(hir.KindAdd, locations.TypeInt32, phiI, one)
	addI.Locations = locations.NewSummary(2, locations.NoCall)
	addI.Locations.SetInput(0, locations.Register(1))
	addI.Locations.SetInput(1, locations.Constant(bytecode.NewInt(1)))
	addI.Locations.SetOutput(locations.Register(1))
	g.AddInstruction(b2, addI)
	g.AddInstruction(b2, hir.NewInstruction(hir.KindGoto, locations.TypeVoid))

	ret := hir.NewInstruction(hir.KindReturnVoid, locations.TypeVoid)
	g.AddInstruction(b3, ret)

	res := compile(t, g)

	if res.FrameSize == 0 {
		t.Error("method with slow-path call should have a frame")
	}
	info, err := codegen.DecodeStackMaps(res.StackMaps)
	if err != nil {
		t.Fatalf("DecodeStackMaps: %v", err)
	}
	if len(info.Entries) == 0 {
		t.Error("suspend check slow path should record a safepoint")
	}
	for _, e := range info.Entries {
		if int(e.NativeOffset) > len(res.Code) {
			t.Errorf("safepoint offset %d beyond code size %d", e.NativeOffset, len(res.Code))
		}
	}
}

// TestBakerThunkSizes 合成 thunk 的尺寸与 LR 回调常量必须吻合
func TestBakerThunkSizes(t *testing.T) {
	g := hir.NewGraph(&bytecode.Function{Name: "t.thunk", MethodIndex: 9})
	opts := testOptions()
	opts.IsJitCompiler = false
	cg, err := New(g, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name string
		data uint32
		size int
	}{
		{"field", encodeBakerData(bakerField, X1, X2, ZR), bakerFieldThunkSize},
		{"array", encodeBakerData(bakerArray, X1, X2, X3), bakerArrayThunkSize},
		{"gc root", encodeBakerData(bakerGcRoot, ZR, X2, ZR), bakerGcRootThunkSize},
	}
	for _, tt := range tests {
		code, name, err := cg.EmitThunkCode(codegen.LinkerPatch{
			Kind:       codegen.PatchBakerThunk,
			CustomData: tt.data,
		})
		if err != nil {
			t.Fatalf("%s: EmitThunkCode: %v", tt.name, err)
		}
		if len(code) != tt.size {
			t.Errorf("%s thunk: %d bytes, want %d", tt.name, len(code), tt.size)
		}
		if name == "" {
			t.Errorf("%s thunk has no symbol name", tt.name)
		}
	}
}

// TestBakerThunkEntrypointSlots thunk 慢侧取的必须是目标寄存器
// 自己的标记入口槽位，种类偏移加在取出的入口地址上而不是槽位偏移上
func TestBakerThunkEntrypointSlots(t *testing.T) {
	g := hir.NewGraph(&bytecode.Function{Name: "t.slot", MethodIndex: 10})
	opts := testOptions()
	opts.IsJitCompiler = false
	cg, err := New(g, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name   string
		data   uint32
		adjust uint32
	}{
		{"field", encodeBakerData(bakerField, X1, X2, ZR), 0},
		{"array", encodeBakerData(bakerArray, X1, X2, X3), bakerArrayEntryAdjust},
		{"gc root", encodeBakerData(bakerGcRoot, ZR, X9, ZR), bakerRootEntryAdjust},
	}
	for _, tt := range tests {
		code, _, err := cg.EmitThunkCode(codegen.LinkerPatch{
			Kind:       codegen.PatchBakerThunk,
			CustomData: tt.data,
		})
		if err != nil {
			t.Fatalf("%s: EmitThunkCode: %v", tt.name, err)
		}
		words := make([]uint32, len(code)/4)
		for i := range words {
			words[i] = binary.LittleEndian.Uint32(code[i*4:])
		}

		_, _, dest, _ := decodeBakerData(tt.data)
		wantOff := uint32(runtime.EntrypointOffset(runtime.MarkRegEntrypoint(int(dest))))
		ldrAt := -1
		for i, w := range words {
			if w&0xFFC003FF == 0xF9400271 { // ldr x17, [x19, #imm]
				if got := (w >> 10 & 0xFFF) * 8; got != wantOff {
					t.Errorf("%s thunk loads table offset %d, want %d", tt.name, got, wantOff)
				}
				ldrAt = i
			}
		}
		if ldrAt < 0 {
			t.Fatalf("%s thunk has no entrypoint load from thread register", tt.name)
		}
		if tt.adjust != 0 {
			want := 0x91000231 | tt.adjust<<10 // add x17, x17, #adjust
			if words[ldrAt+1] != want {
				t.Errorf("%s thunk entry adjust = %#08x, want %#08x",
					tt.name, words[ldrAt+1], want)
			}
		}
	}
}

// TestClinitCheckReadsStatusByte 初始化检查只读状态字的最高字节
// （带获取语义），不碰同字低位的类型检查位串
func TestClinitCheckReadsStatusByte(t *testing.T) {
	g := hir.NewGraph(&bytecode.Function{
		Name: "t.clinit", MethodIndex: 11, NumRegisters: 2, IsStatic: true,
	})
	b := g.NewBlock()

	cls := hir.NewInstruction(hir.KindPhi, locations.TypeReference)
	cls.Locations = locations.NewSummary(0, locations.NoCall)
	cls.Locations.SetOutput(locations.Register(1))
	g.AddInstruction(b, cls)

	check := hir.NewInstruction(hir.KindClinitCheck, locations.TypeVoid, cls)
	check.TypeIndex = 7
	check.SideEffects = hir.SideEffectCanTriggerGC
	check.Locations = locations.NewSummary(1, locations.CallOnSlowPath)
	check.Locations.SetInput(0, locations.Register(1))
	g.AddInstruction(b, check)

	g.AddInstruction(b, hir.NewInstruction(hir.KindReturnVoid, locations.TypeVoid))

	res := compile(t, g)
	words := codeWords(res)

	const (
		addStatusByte = 0x91000000 | bytecode.ClassStatusByteOffset<<10 | 1<<5 | 16 // add x16, x1, #27
		ldarbStatus   = 0x08DFFC00 | 16<<5 | 16                                     // ldarb w16, [x16]
		ldrbStatusLow = 0x39400000 | bytecode.ClassStatusOffset<<10 | 1<<5 | 16     // ldrb w16, [x1, #24]
	)
	var haveAdd, haveLdarb bool
	for _, w := range words {
		switch w {
		case addStatusByte:
			haveAdd = true
		case ldarbStatus:
			haveLdarb = true
		case ldrbStatusLow:
			t.Error("clinit check reads the bitstring byte at the status word base")
		}
	}
	if !haveAdd || !haveLdarb {
		t.Errorf("status byte acquire-load missing: add=%v ldarb=%v", haveAdd, haveLdarb)
	}
}

// TestInstanceOfExactEmission 确切类判定：经读屏障取类指针，
// 比较结果物化为 0/1
func TestInstanceOfExactEmission(t *testing.T) {
	g := hir.NewGraph(&bytecode.Function{
		Name: "t.isa", MethodIndex: 12, NumRegisters: 4, IsStatic: true, IsLeaf: true,
	})
	b := g.NewBlock()

	obj := hir.NewInstruction(hir.KindPhi, locations.TypeReference)
	obj.CanBeNull = false
	obj.Locations = locations.NewSummary(0, locations.NoCall)
	obj.Locations.SetOutput(locations.Register(1))
	g.AddInstruction(b, obj)

	cls := hir.NewInstruction(hir.KindPhi, locations.TypeReference)
	cls.Locations = locations.NewSummary(0, locations.NoCall)
	cls.Locations.SetOutput(locations.Register(2))
	g.AddInstruction(b, cls)

	isa := hir.NewInstruction(hir.KindInstanceOf, locations.TypeBool, obj, cls)
	isa.CheckKind = hir.CheckExact
	isa.Locations = locations.NewSummary(2, locations.NoCall)
	isa.Locations.SetInput(0, locations.Register(1))
	isa.Locations.SetInput(1, locations.Register(2))
	isa.Locations.SetOutput(locations.Register(0))
	isa.Locations.AddTemp(locations.Register(3))
	g.AddInstruction(b, isa)

	ret := hir.NewInstruction(hir.KindReturn, locations.TypeVoid, isa)
	ret.Locations = locations.NewSummary(1, locations.NoCall)
	ret.Locations.SetInput(0, locations.Register(0))
	g.AddInstruction(b, ret)

	res := compile(t, g)
	words := codeWords(res)

	const (
		classLoad    = 0xB9400023 // ldr w3, [x1] 对象类指针
		csetEq       = 0x1A9F17E0 // cset w0, eq
		lockWordLoad = 0xB9400430 // ldr w16, [x1, #4] thunk 灰位检查
	)
	var haveClass, haveCset, haveLock bool
	for _, w := range words {
		switch w {
		case classLoad:
			haveClass = true
		case csetEq:
			haveCset = true
		case lockWordLoad:
			haveLock = true
		}
	}
	if !haveClass {
		t.Error("object class load not emitted")
	}
	if !haveCset {
		t.Error("comparison result not materialized with cset")
	}
	if !haveLock {
		t.Error("read-barrier thunk gray check not emitted")
	}
}

// TestBakerDataRoundTrip thunk 身份编码可逆
func TestBakerDataRoundTrip(t *testing.T) {
	data := encodeBakerData(bakerArray, X5, X7, X12)
	kind, base, dest, index := decodeBakerData(data)
	if kind != bakerArray || base != X5 || dest != X7 || index != X12 {
		t.Errorf("round trip mismatch: %v %v %v %v", kind, base, dest, index)
	}
}
