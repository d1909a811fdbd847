// object_layout.go - 运行时对象内存布局常量
//
// 本文件是后端与运行时对象模型之间的位级契约。
// 代码生成器不理解对象模型，只把这里的偏移当作固定常量烧进机器码；
// 任何一侧改动布局都必须同步修改另一侧。
//
// 对象头布局:
//   偏移 0: ClassRef  (4 bytes) - 压缩类引用
//   偏移 4: LockWord  (4 bytes) - 锁字（含 GC 标记/转发状态）
//   偏移 8: 实例字段 / 数组长度
//
// 数组布局:
//   偏移 8:  Length (4 bytes)
//   偏移 16: 元素数据（按 8 字节对齐起始，元素宽度见元素类型）

package bytecode

// 对象头
const (
	ObjectClassOffset    = 0
	ObjectLockWordOffset = 4
	ObjectHeaderSize     = 8
)

// 数组
const (
	ArrayLengthOffset = 8
	ArrayDataOffset   = 16
)

// 字符串（紧凑布局：长度 + 字符数据）
const (
	StringLengthOffset = 8
	StringValueOffset  = 16
)

// 类对象字段偏移（类型检查与初始化检查消费）
const (
	ClassSuperClassOffset    = 8  // 压缩引用：父类
	ClassComponentTypeOffset = 12 // 压缩引用：数组元素类型（非数组类为 null）
	ClassIfTableOffset       = 16 // 压缩引用：接口表
	ClassAccessFlagsOffset   = 20
	ClassStatusOffset        = 24 // 类初始化状态字（状态在最高字节，见 ClassStatus*）
	ClassStatusByteOffset    = ClassStatusOffset + 3 // 小端：状态字节本身的地址
	ClassPrimitiveTypeOffset = 28 // 基元类型编号（引用类型为 0），16 位
	ClassVTableOffset        = 32 // 虚方法表起始（内联于类对象）
)

// 类初始化状态值（存于 ClassStatusOffset 的最高字节）
const (
	ClassStatusVisiblyInitialized = 0xf0
)

// 类型检查位串（path-to-root 编码，存于 Status 字的低 24 位）
// 层级足够浅的类把"根到自身的路径"编码为定长位串，
// instanceof 退化为一次掩码比较。
const (
	ClassBitstringOffset = 24 // 与 Status 同字，低位部分
	ClassBitstringMask   = 0x00ffffff
)

// 接口表布局：iftable 是 (接口类, 方法数组) 对的数组
const (
	IfTableLengthOffset    = ArrayLengthOffset
	IfTableDataOffset      = ArrayDataOffset
	IfTableEntrySize       = 8 // 两个压缩引用
	IfTableInterfaceOffset = 0
	IfTableMethodsOffset   = 4
)

// 方法表
const (
	VTableEntrySize   = 8 // 方法指针
	MethodEntryOffset = 0 // 方法结构内：入口点指针偏移
)

// 压缩引用宽度
const (
	ReferenceSize = 4
)
