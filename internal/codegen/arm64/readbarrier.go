// readbarrier.go - Baker 读屏障
//
// 每个需要屏障的堆引用加载内联四步：
//   1. adr lr, 落点          把返回地址算进链接寄存器
//   2. cbnz mr, thunk        标记中才绕去 thunk
//   3. 实际加载
//   4. 落点标签
//
// thunk 按（种类，寄存器组合）共享：检查持有者锁字灰位，
// 灰位清零时把 LR 回拨固定指令数直接返回（加载原样执行），
// 回拨量与锁字到持有者指针的伪依赖强制了加载顺序，省掉全量
// 内存屏障；灰位置位时经标记入口走完整标记更新，入口地址按
// 加载种类（字段/数组/GC 根）加一个小固定偏移。
//
// thunk 发射尺寸有断言钉死：LR 回拨算术依赖精确的指令数。

package arm64

import (
	"go.uber.org/zap"

	"github.com/quasarlang/quasar/internal/bytecode"
	"github.com/quasarlang/quasar/internal/codegen"
	"github.com/quasarlang/quasar/internal/runtime"
)

// ============================================================================
// thunk 标识
// ============================================================================

type bakerKind uint32

const (
	bakerField bakerKind = iota
	bakerArray
	bakerGcRoot
)

// 标记入口内按种类的小固定入口偏移
const (
	bakerFieldEntryAdjust = 0
	bakerArrayEntryAdjust = 4
	bakerRootEntryAdjust  = 8
)

// LR 回拨量：落点标签回到已内联的加载指令
const (
	bakerFieldLrAdjust = 4 // 1 条 ldr
	bakerArrayLrAdjust = 8 // add 元素基址 + ldr
)

// thunk 精确尺寸（字节），发射后断言
const (
	bakerFieldThunkSize  = 7 * 4
	bakerArrayThunkSize  = 9 * 4
	bakerGcRootThunkSize = 12 * 4
)

// encodeBakerData (kind, base, dest, index) → 补丁自定义数据
func encodeBakerData(kind bakerKind, base, dest, index Reg) uint32 {
	return uint32(kind)<<15 | uint32(base.Encode())<<10 |
		uint32(dest.Encode())<<5 | uint32(index.Encode())
}

func decodeBakerData(data uint32) (kind bakerKind, base, dest, index Reg) {
	return bakerKind(data >> 15 & 0x3),
		Reg(data >> 10 & 0x1F),
		Reg(data >> 5 & 0x1F),
		Reg(data & 0x1F)
}

// bakerThunkTarget JIT 模式返回方法内 thunk 标签（去重），
// AOT 模式返回 nil 并由调用处记链接补丁
func (cg *CodeGeneratorARM64) bakerThunkTarget(data uint32) *Label {
	if !cg.base.Options.IsJitCompiler {
		return nil
	}
	if l, ok := cg.bakerThunkLabels[data]; ok {
		return l
	}
	l := NewLabel()
	cg.bakerThunkLabels[data] = l
	cg.bakerThunkOrder = append(cg.bakerThunkOrder, data)
	return l
}

// branchToBakerThunk 发射去 thunk 的条件分支（JIT 直跳，AOT 记补丁）
func (cg *CodeGeneratorARM64) branchToBakerThunk(data uint32) {
	if target := cg.bakerThunkTarget(data); target != nil {
		cg.asm.Cbnz(false, MR, target)
		return
	}
	off := cg.asm.CbnzPlaceholder(false, MR)
	cg.base.Data.AddPatch(codegen.LinkerPatch{
		Kind:       codegen.PatchBakerThunk,
		CodeOffset: uint32(off),
		CustomData: data,
	})
}

// ============================================================================
// 内联快路径
// ============================================================================

// GenerateFieldLoadWithBakerReadBarrier 带屏障的字段引用加载
func (cg *CodeGeneratorARM64) GenerateFieldLoadWithBakerReadBarrier(dest, obj Reg, offset int32) {
	if !cg.base.Options.EmitReadBarrier {
		cg.asm.LdrW(dest, obj, offset)
		return
	}
	ret := NewLabel()
	cg.asm.Adr(LR, ret)
	cg.branchToBakerThunk(encodeBakerData(bakerField, obj, dest, ZR))
	cg.asm.LdrW(dest, obj, offset)
	cg.asm.Bind(ret)
}

// GenerateArrayLoadWithBakerReadBarrier 带屏障的数组引用元素加载。
// 元素基址经 IP0 合成，thunk 的 LR 回拨覆盖 add + ldr 两条。
func (cg *CodeGeneratorARM64) GenerateArrayLoadWithBakerReadBarrier(dest, array, index Reg) {
	if !cg.base.Options.EmitReadBarrier {
		cg.asm.AddRegImm(true, IP0, array, bytecode.ArrayDataOffset)
		cg.asm.LdrRegOffset(2, dest, IP0, index, true)
		return
	}
	ret := NewLabel()
	cg.asm.Adr(LR, ret)
	cg.branchToBakerThunk(encodeBakerData(bakerArray, array, dest, index))
	cg.asm.AddRegImm(true, IP0, array, bytecode.ArrayDataOffset)
	cg.asm.LdrRegOffset(2, dest, IP0, index, true)
	cg.asm.Bind(ret)
}

// GenerateGcRootWithBakerReadBarrier 带屏障的 GC 根加载。
// 根先加载再测标记：根 thunk 操作已取出的引用本身，
// 无需回拨（落点就在分支之后）。
func (cg *CodeGeneratorARM64) GenerateGcRootWithBakerReadBarrier(root, base Reg, offset int32) {
	cg.asm.LdrW(root, base, offset)
	if !cg.base.Options.EmitReadBarrier {
		return
	}
	ret := NewLabel()
	cg.asm.Adr(LR, ret)
	cg.branchToBakerThunk(encodeBakerData(bakerGcRoot, base, root, ZR))
	cg.asm.Bind(ret)
}

// ============================================================================
// thunk 合成
// ============================================================================

// emitBakerThunks 在方法码尾部发射本次编译引用的全部 thunk（JIT）
func (cg *CodeGeneratorARM64) emitBakerThunks() {
	for _, data := range cg.bakerThunkOrder {
		cg.asm.Bind(cg.bakerThunkLabels[data])
		cg.EmitBakerThunkBody(data)
	}
}

// EmitBakerThunkBody 合成单个 thunk 本体（AOT 共享 thunk 亦经此）
func (cg *CodeGeneratorARM64) EmitBakerThunkBody(data uint32) {
	kind, base, dest, index := decodeBakerData(data)
	start := cg.asm.Len()

	switch kind {
	case bakerField:
		cg.emitBakerFieldThunk(base, dest)
		cg.assertThunkSize(start, bakerFieldThunkSize, "field")
	case bakerArray:
		cg.emitBakerArrayThunk(base, dest, index)
		cg.assertThunkSize(start, bakerArrayThunkSize, "array")
	case bakerGcRoot:
		cg.emitBakerGcRootThunk(dest)
		cg.assertThunkSize(start, bakerGcRootThunkSize, "gc_root")
	default:
		cg.base.Logger.Fatal("未知读屏障 thunk 种类", zap.Uint32("data", data))
	}
}

func (cg *CodeGeneratorARM64) assertThunkSize(start, want int, kind string) {
	got := cg.asm.Len() - start
	if got != want {
		cg.base.Logger.Fatal("读屏障 thunk 尺寸漂移，LR 回拨算术失效",
			zap.String("kind", kind),
			zap.Int("want", want),
			zap.Int("got", got))
	}
}

// emitBakerFieldThunk 字段 thunk：7 条指令
func (cg *CodeGeneratorARM64) emitBakerFieldThunk(holder, dest Reg) {
	mark := NewLabel()
	cg.asm.LdrW(IP0, holder, bytecode.ObjectLockWordOffset)
	cg.asm.Tbnz(IP0, runtime.LockWordGCStateShift, mark)
	// 伪依赖：锁字高 32 位恒零，加到持有者指针上，
	// 阻止处理器把锁字加载重排到它要守护的堆加载之后
	cg.asm.AddShiftedLsr(true, holder, holder, IP0, 32)
	cg.asm.SubRegImm(true, LR, LR, bakerFieldLrAdjust)
	cg.asm.Ret()
	cg.asm.Bind(mark)
	cg.asm.LdrX(IP1, TR, int32(runtime.EntrypointOffset(runtime.MarkRegEntrypoint(int(dest)))))
	cg.asm.Br(IP1)
}

// emitBakerArrayThunk 数组 thunk：9 条指令。
// 种类偏移加在取出的入口地址上（线程表槽位本身不偏移），
// 下标寄存器号经位域插入写进入口地址低位，标记入口按
// （目标寄存器，下标寄存器）变体分发。
func (cg *CodeGeneratorARM64) emitBakerArrayThunk(holder, dest, index Reg) {
	mark := NewLabel()
	cg.asm.LdrW(IP0, holder, bytecode.ObjectLockWordOffset)
	cg.asm.Tbnz(IP0, runtime.LockWordGCStateShift, mark)
	cg.asm.AddShiftedLsr(true, holder, holder, IP0, 32)
	cg.asm.SubRegImm(true, LR, LR, bakerArrayLrAdjust)
	cg.asm.Ret()
	cg.asm.Bind(mark)
	cg.asm.LdrX(IP1, TR, int32(runtime.EntrypointOffset(runtime.MarkRegEntrypoint(int(dest)))))
	cg.asm.AddRegImm(true, IP1, IP1, bakerArrayEntryAdjust)
	cg.asm.Bfi(true, IP1, index, 3, 5)
	cg.asm.Br(IP1)
}

// emitBakerGcRootThunk 根 thunk：12 条指令。
// 空根与已标记根直接短路；处于转发状态的根从锁字抽出
// 转发地址，无需任何运行时调用。慢侧取根专用入口：
// 先取本寄存器的标记槽位，再把种类偏移加到入口地址上。
func (cg *CodeGeneratorARM64) emitBakerGcRootThunk(root Reg) {
	mark := NewLabel()
	done := NewLabel()
	cg.asm.Cbz(false, root, done)
	cg.asm.LdrW(IP0, root, bytecode.ObjectLockWordOffset)
	cg.asm.Tbnz(IP0, runtime.LockWordMarkBitShift, done)
	cg.asm.LsrImm(false, IP1, IP0, runtime.LockWordStateShift)
	cg.asm.CmpRegImm(false, IP1, runtime.LockWordStateForwarding)
	cg.asm.Bcond(NE, mark)
	cg.asm.Ubfx(false, root, IP0, 0, runtime.LockWordStateShift)
	cg.asm.LslImm(false, root, root, runtime.LockWordForwardingAddressShift)
	cg.asm.Bind(done)
	cg.asm.Ret()
	cg.asm.Bind(mark)
	cg.asm.LdrX(IP1, TR, int32(runtime.EntrypointOffset(runtime.MarkRegEntrypoint(int(root)))))
	cg.asm.AddRegImm(true, IP1, IP1, bakerRootEntryAdjust)
	cg.asm.Br(IP1)
}
