// function.go - Quasar 字节码方法元数据
//
// 后端消费的方法描述：寄存器数量、参数数量、源码位置表、try/catch 范围。
// 字节码指令流本身由上游的图构建器消费，这里只保留代码生成
// 需要回填进栈图（StackMap）与异常表的元数据。

package bytecode

// TryRange try/catch 覆盖范围
// 所有偏移均为字节码偏移（bcPC）。
type TryRange struct {
	StartPC   uint32
	EndPC     uint32
	HandlerPC uint32
	CatchType uint16 // 0 表示 catch-all
}

// Contains 检查偏移是否落在 try 范围内
func (t TryRange) Contains(pc uint32) bool {
	return pc >= t.StartPC && pc < t.EndPC
}

// LineEntry 字节码偏移到源码行号的映射
type LineEntry struct {
	PC   uint32
	Line int32
}

// Function 方法元数据
type Function struct {
	// 标识
	Name        string
	MethodIndex uint32 // 方法池索引（AOT 链接补丁的符号目标）
	ClassIndex  uint32 // 所属类的类型池索引

	// 寄存器机元数据
	Arity        int // 参数个数（含 receiver）
	NumRegisters int // 虚拟寄存器（vreg）总数
	CodeSize     int // 字节码长度

	// 位置与异常
	Lines     []LineEntry
	TryRanges []TryRange

	// 性质标志（由上游验证器/分析器计算）
	HasMonitorOps bool // 方法内是否有 monitor 进入/退出
	IsStatic      bool
	IsLeaf        bool // 不包含任何调用
}

// HasTryCatch 检查方法是否包含 try/catch
func (f *Function) HasTryCatch() bool {
	return len(f.TryRanges) > 0
}

// LineForPC 查询字节码偏移对应的源码行号
// 找不到时返回 -1。
func (f *Function) LineForPC(pc uint32) int32 {
	line := int32(-1)
	for _, e := range f.Lines {
		if e.PC > pc {
			break
		}
		line = e.Line
	}
	return line
}

// CatchHandlersForPC 返回覆盖指定偏移的全部 catch 处理器
func (f *Function) CatchHandlersForPC(pc uint32) []TryRange {
	var out []TryRange
	for _, t := range f.TryRanges {
		if t.Contains(pc) {
			out = append(out, t)
		}
	}
	return out
}
