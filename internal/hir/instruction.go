// instruction.go - HIR 指令定义
//
// 后端消费的指令图节点。图由上游构建器/优化器产出并定稿，
// 每条指令带寄存器分配器改写完的 locations.Summary。
// 后端按 Kind 做 tagged dispatch，不使用双分派访问者。

package hir

import (
	"fmt"

	"github.com/quasarlang/quasar/internal/bytecode"
	"github.com/quasarlang/quasar/internal/locations"
)

// Kind 指令种类
type Kind int

const (
	KindNop Kind = iota

	// 常量
	KindIntConstant
	KindLongConstant
	KindFloatConstant
	KindDoubleConstant
	KindNullConstant

	// 算术
	KindAdd
	KindSub
	KindMul
	KindDiv
	KindRem
	KindNeg

	// 位运算
	KindAnd
	KindOr
	KindXor
	KindNot
	KindShl
	KindShr
	KindUShr

	// 比较与控制流
	KindCondition
	KindGoto
	KindIf
	KindReturn
	KindReturnVoid

	// 调用
	KindInvokeStatic
	KindInvokeVirtual
	KindInvokeInterface

	// 对象与数组
	KindNewInstance
	KindNewArray
	KindArrayLength
	KindArrayGet
	KindArraySet
	KindFieldGet
	KindFieldSet

	// 检查
	KindNullCheck
	KindBoundsCheck
	KindDivZeroCheck
	KindClinitCheck
	KindSuspendCheck
	KindDeoptimize

	// 类型
	KindInstanceOf
	KindCheckCast
	KindLoadClass
	KindLoadString

	// 同步
	KindMonitorOp

	// SSA 合并（仅循环头 OSR 入口仍可见）
	KindPhi

	// 并行移动（寄存器分配器插入）
	KindParallelMove
)

// CondKind 比较条件
type CondKind int

const (
	CondEQ CondKind = iota
	CondNE
	CondLT
	CondLE
	CondGT
	CondGE
	CondB  // 无符号 <
	CondBE // 无符号 <=
	CondA  // 无符号 >
	CondAE // 无符号 >=
)

// TypeCheckKind 类型检查的遍历策略
type TypeCheckKind int

const (
	CheckExact TypeCheckKind = iota
	CheckAbstractClass
	CheckClassHierarchy
	CheckArrayObject
	CheckArray
	CheckInterface
	CheckUnresolved
	CheckBitstring
)

// LoadRefKind 引用加载方式（LoadClass/LoadString）
type LoadRefKind int

const (
	LoadBootImageRelRo LoadRefKind = iota
	LoadBssEntry
	LoadJitTable
	LoadRuntimeCall
)

// WriteBarrierKind 单条存储的写屏障决策（由上游消除分析产出）
type WriteBarrierKind byte

const (
	// BarrierEmitWithNullCheck 发射屏障，先做空值判断
	BarrierEmitWithNullCheck WriteBarrierKind = iota
	// BarrierEmitNoNullCheck 发射屏障，值已知非空
	BarrierEmitNoNullCheck
	// BarrierDontEmit 分析证明可省略
	BarrierDontEmit
)

// DeoptKind 反优化原因
type DeoptKind int

const (
	DeoptInlineCache DeoptKind = iota
	DeoptBoundsCheckHoisted
	DeoptBlockProfile
)

// FieldInfo 字段访问元数据
type FieldInfo struct {
	Offset     uint32
	Type       locations.PrimitiveType
	IsVolatile bool
	IsStatic   bool
	Index      uint32 // 字段池索引
}

// InvokeInfo 调用元数据
type InvokeInfo struct {
	MethodIndex uint32
	VTableIndex int // 虚调用的 vtable 槽位
	ImtIndex    int // 接口调用的 IMT 槽位
	ArgCount    int
	Intrinsic   Intrinsic
}

// Intrinsic 后端识别的内建方法
type Intrinsic int

const (
	IntrinsicNone Intrinsic = iota
	IntrinsicStringCharAt
	IntrinsicStringLength
	IntrinsicMathAbsInt
	IntrinsicMathMinInt
	IntrinsicMathMaxInt
)

// MovePair 并行移动的一条赋值
type MovePair struct {
	Source      locations.Location
	Destination locations.Location
	Type        locations.PrimitiveType
}

// Instruction HIR 指令
type Instruction struct {
	ID    int
	Kind  Kind
	Type  locations.PrimitiveType
	Block *BasicBlock

	Inputs    []*Instruction
	Locations *locations.Summary
	Env       *Environment

	// 源位置
	BCPC uint32

	// 副作用与异常性质
	SideEffects SideEffects
	CanThrow    bool

	// 常量值（仅 *Constant 种类）
	ConstVal bytecode.Value

	// 种类专属元数据
	Cond          CondKind
	Field         FieldInfo
	Invoke        InvokeInfo
	CheckKind     TypeCheckKind
	TypeIndex     uint32 // LoadClass/InstanceOf/CheckCast/NewInstance 目标类型
	StringIndex   uint32
	LoadKind      LoadRefKind
	ComponentType locations.PrimitiveType // 数组访问的元素类型
	PathToRoot    uint32                  // Bitstring 检查的路径位串
	PathMask      uint32
	IsStringCharAt bool // BoundsCheck 来源是否为字符串下标
	IsMonitorEnter bool
	MustDoClinit   bool // LoadClass 是否顺带触发静态初始化
	DeoptReason    DeoptKind
	WriteBarrier   WriteBarrierKind
	Moves          []MovePair // 仅 ParallelMove

	// 静态可证明的值性质
	CanBeNull   bool
	NonNegative bool
}

// NewInstruction 创建指令
func NewInstruction(kind Kind, t locations.PrimitiveType, inputs ...*Instruction) *Instruction {
	return &Instruction{
		Kind:      kind,
		Type:      t,
		Inputs:    inputs,
		CanBeNull: true,
	}
}

// InputAt 取第 i 个输入
func (in *Instruction) InputAt(i int) *Instruction {
	return in.Inputs[i]
}

// InputCount 输入个数
func (in *Instruction) InputCount() int {
	return len(in.Inputs)
}

// IsConstant 检查是否是常量指令
func (in *Instruction) IsConstant() bool {
	switch in.Kind {
	case KindIntConstant, KindLongConstant, KindFloatConstant, KindDoubleConstant, KindNullConstant:
		return true
	default:
		return false
	}
}

// IsNullConstant 检查是否是空常量
func (in *Instruction) IsNullConstant() bool {
	return in.Kind == KindNullConstant
}

// IntValue 取 32 位整数常量值
func (in *Instruction) IntValue() int32 {
	return int32(in.ConstVal.AsInt())
}

// LongValue 取 64 位整数常量值
func (in *Instruction) LongValue() int64 {
	return in.ConstVal.AsInt()
}

// HasEnvironment 检查是否携带反优化环境
func (in *Instruction) HasEnvironment() bool {
	return in.Env != nil
}

// NeedsSafepoint 检查是否需要记录安全点
func (in *Instruction) NeedsSafepoint() bool {
	return in.Locations != nil && in.Locations.NeedsSafepoint()
}

// IsControlFlow 检查是否是控制流指令
func (in *Instruction) IsControlFlow() bool {
	switch in.Kind {
	case KindGoto, KindIf, KindReturn, KindReturnVoid, KindDeoptimize:
		return true
	default:
		return false
	}
}

// String 返回指令的简短表示
func (in *Instruction) String() string {
	return fmt.Sprintf("i%d:%s", in.ID, in.Kind.String())
}

// String 返回指令种类名称
func (k Kind) String() string {
	switch k {
	case KindNop:
		return "Nop"
	case KindIntConstant:
		return "IntConstant"
	case KindLongConstant:
		return "LongConstant"
	case KindFloatConstant:
		return "FloatConstant"
	case KindDoubleConstant:
		return "DoubleConstant"
	case KindNullConstant:
		return "NullConstant"
	case KindAdd:
		return "Add"
	case KindSub:
		return "Sub"
	case KindMul:
		return "Mul"
	case KindDiv:
		return "Div"
	case KindRem:
		return "Rem"
	case KindNeg:
		return "Neg"
	case KindAnd:
		return "And"
	case KindOr:
		return "Or"
	case KindXor:
		return "Xor"
	case KindNot:
		return "Not"
	case KindShl:
		return "Shl"
	case KindShr:
		return "Shr"
	case KindUShr:
		return "UShr"
	case KindCondition:
		return "Condition"
	case KindGoto:
		return "Goto"
	case KindIf:
		return "If"
	case KindReturn:
		return "Return"
	case KindReturnVoid:
		return "ReturnVoid"
	case KindInvokeStatic:
		return "InvokeStatic"
	case KindInvokeVirtual:
		return "InvokeVirtual"
	case KindInvokeInterface:
		return "InvokeInterface"
	case KindNewInstance:
		return "NewInstance"
	case KindNewArray:
		return "NewArray"
	case KindArrayLength:
		return "ArrayLength"
	case KindArrayGet:
		return "ArrayGet"
	case KindArraySet:
		return "ArraySet"
	case KindFieldGet:
		return "FieldGet"
	case KindFieldSet:
		return "FieldSet"
	case KindNullCheck:
		return "NullCheck"
	case KindBoundsCheck:
		return "BoundsCheck"
	case KindDivZeroCheck:
		return "DivZeroCheck"
	case KindClinitCheck:
		return "ClinitCheck"
	case KindSuspendCheck:
		return "SuspendCheck"
	case KindDeoptimize:
		return "Deoptimize"
	case KindInstanceOf:
		return "InstanceOf"
	case KindCheckCast:
		return "CheckCast"
	case KindLoadClass:
		return "LoadClass"
	case KindLoadString:
		return "LoadString"
	case KindMonitorOp:
		return "MonitorOp"
	case KindPhi:
		return "Phi"
	case KindParallelMove:
		return "ParallelMove"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}
