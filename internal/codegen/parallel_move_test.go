// parallel_move_test.go - 并行移动求解测试

package codegen

import (
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/quasarlang/quasar/internal/bytecode"
	"github.com/quasarlang/quasar/internal/hir"
	"github.com/quasarlang/quasar/internal/locations"
)

// recordingBackend 只记录移动/交换序列的假后端
type recordingBackend struct {
	base *Base
	ops  []string
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{base: &Base{Logger: zap.NewNop()}}
}

func (b *recordingBackend) Base() *Base                 { return b.base }
func (b *recordingBackend) Initialize(g *hir.Graph)     {}
func (b *recordingBackend) GenerateFrameEntry()         {}
func (b *recordingBackend) GenerateFrameExit()          {}
func (b *recordingBackend) BindBlockEntry(blockID int)  {}
func (b *recordingBackend) BlockEntryOffset(int) int    { return 0 }
func (b *recordingBackend) EmitInstruction(*hir.Instruction) {}
func (b *recordingBackend) EmitNop()                    {}
func (b *recordingBackend) SaveCoreRegister(o, r int) int    { return 8 }
func (b *recordingBackend) RestoreCoreRegister(o, r int) int { return 8 }
func (b *recordingBackend) SaveFpuRegister(o, r int) int     { return 8 }
func (b *recordingBackend) RestoreFpuRegister(o, r int) int  { return 8 }
func (b *recordingBackend) CodeSize() int               { return 0 }
func (b *recordingBackend) Finalize() ([]byte, error)   { return nil, nil }
func (b *recordingBackend) EmitLinkerPatches() []LinkerPatch { return nil }
func (b *recordingBackend) EmitThunkCode(LinkerPatch) ([]byte, string, error) {
	return nil, "", fmt.Errorf("not supported")
}
func (b *recordingBackend) ISA() string { return "test" }

func (b *recordingBackend) EmitMove(dst, src locations.Location, t locations.PrimitiveType) {
	b.ops = append(b.ops, fmt.Sprintf("move %s<-%s", dst, src))
}

func (b *recordingBackend) EmitSwap(a, c locations.Location, t locations.PrimitiveType) {
	b.ops = append(b.ops, fmt.Sprintf("swap %s<->%s", a, c))
}

func mv(src, dst locations.Location) *MoveOperands {
	return &MoveOperands{Source: src, Destination: dst, Type: locations.TypeInt32}
}

// TestParallelMoveChain 链式依赖：被占目的先腾空
func TestParallelMoveChain(t *testing.T) {
	b := newRecordingBackend()
	r := NewParallelMoveResolver(b)

	r0, r1, r2 := locations.Register(0), locations.Register(1), locations.Register(2)
	// r0→r1 依赖 r1→r2 先走
	r.Resolve([]*MoveOperands{mv(r0, r1), mv(r1, r2)})

	if len(b.ops) != 2 {
		t.Fatalf("ops = %v, want 2 moves", b.ops)
	}
	want0 := fmt.Sprintf("move %s<-%s", r2, r1)
	want1 := fmt.Sprintf("move %s<-%s", r1, r0)
	if b.ops[0] != want0 || b.ops[1] != want1 {
		t.Errorf("wrong order: %v", b.ops)
	}
}

// TestParallelMoveCycle 两元环用一次交换打破
func TestParallelMoveCycle(t *testing.T) {
	b := newRecordingBackend()
	r := NewParallelMoveResolver(b)

	r0, r1 := locations.Register(0), locations.Register(1)
	r.Resolve([]*MoveOperands{mv(r0, r1), mv(r1, r0)})

	if len(b.ops) != 1 {
		t.Fatalf("ops = %v, want single swap", b.ops)
	}
	if b.ops[0] != fmt.Sprintf("swap %s<->%s", r1, r0) {
		t.Errorf("expected swap, got %v", b.ops)
	}
}

// TestParallelMoveThreeCycle n 元环拆成 n-1 次交换
func TestParallelMoveThreeCycle(t *testing.T) {
	b := newRecordingBackend()
	r := NewParallelMoveResolver(b)

	r0, r1, r2 := locations.Register(0), locations.Register(1), locations.Register(2)
	r.Resolve([]*MoveOperands{mv(r0, r1), mv(r1, r2), mv(r2, r0)})

	swaps, moves := 0, 0
	for _, op := range b.ops {
		switch op[0] {
		case 's':
			swaps++
		case 'm':
			moves++
		}
	}
	if swaps != 2 || moves != 0 {
		t.Errorf("three-cycle should emit 2 swaps, got %v", b.ops)
	}
}

// TestParallelMoveRedundant 源目相同的移动整条消掉
func TestParallelMoveRedundant(t *testing.T) {
	b := newRecordingBackend()
	r := NewParallelMoveResolver(b)

	r0 := locations.Register(0)
	r.Resolve([]*MoveOperands{mv(r0, r0)})

	if len(b.ops) != 0 {
		t.Errorf("redundant move should emit nothing, got %v", b.ops)
	}
}

// TestParallelMoveIndependent 无依赖移动按给定序发射
func TestParallelMoveIndependent(t *testing.T) {
	b := newRecordingBackend()
	r := NewParallelMoveResolver(b)

	c := locations.Constant(bytecode.NewInt(7))
	r1, r2 := locations.Register(1), locations.Register(2)
	r.Resolve([]*MoveOperands{mv(c, r1), mv(locations.StackSlot(16), r2)})

	if len(b.ops) != 2 {
		t.Fatalf("ops = %v, want 2", b.ops)
	}
}
