// parallel_move.go - 并行移动求解
//
// 寄存器分配产出的"并行赋值"可能成环（a→b, b→a）。
// 求解按依赖递归发射普通移动，遇环用一次交换打破。
// 交换后把其余未发射移动中引用了交换双方的源改写为对方，
// 保持剩余问题语义不变。

package codegen

import (
	"go.uber.org/zap"

	"github.com/quasarlang/quasar/internal/locations"
)

// MoveOperands 一条并行移动
type MoveOperands struct {
	Source      locations.Location
	Destination locations.Location
	Type        locations.PrimitiveType

	pending    bool
	eliminated bool
}

// IsRedundant 源与目的相同，无需发射
func (m *MoveOperands) IsRedundant() bool {
	return m.Source.Equals(m.Destination)
}

// ParallelMoveResolver 并行移动求解器
type ParallelMoveResolver struct {
	cg    Backend
	moves []*MoveOperands
}

// NewParallelMoveResolver 创建求解器
func NewParallelMoveResolver(cg Backend) *ParallelMoveResolver {
	return &ParallelMoveResolver{cg: cg}
}

// Resolve 发射一组并行移动
func (r *ParallelMoveResolver) Resolve(moves []*MoveOperands) {
	r.moves = r.moves[:0]
	for _, m := range moves {
		if m.IsRedundant() {
			m.eliminated = true
			continue
		}
		m.pending = false
		m.eliminated = false
		r.moves = append(r.moves, m)
	}
	for i := range r.moves {
		if !r.moves[i].eliminated {
			r.performMove(i)
		}
	}
	// 此时不应有残留
	for _, m := range r.moves {
		if !m.eliminated {
			r.cg.Base().Logger.Fatal("并行移动未收敛",
				zap.String("source", m.Source.String()),
				zap.String("destination", m.Destination.String()))
		}
	}
}

func (r *ParallelMoveResolver) performMove(index int) {
	move := r.moves[index]
	move.pending = true

	// 先清空目的位置的依赖者（读 move.Destination 的移动）
	for i, other := range r.moves {
		if i == index || other.eliminated || other.pending {
			continue
		}
		if other.Source.OverlapsWith(move.Destination) {
			r.performMove(i)
		}
	}
	move.pending = false

	if move.IsRedundant() {
		move.eliminated = true
		return
	}

	// 仍有 pending 移动占着目的位置 → 环，交换打破
	for _, other := range r.moves {
		if !other.pending || !other.Source.OverlapsWith(move.Destination) {
			continue
		}
		r.cg.EmitSwap(move.Source, move.Destination, move.Type)
		move.eliminated = true
		src, dst := move.Source, move.Destination
		for _, m := range r.moves {
			if m.eliminated {
				continue
			}
			if m.Source.Equals(src) {
				m.Source = dst
			} else if m.Source.Equals(dst) {
				m.Source = src
			}
		}
		return
	}

	r.cg.EmitMove(move.Destination, move.Source, move.Type)
	move.eliminated = true
}
