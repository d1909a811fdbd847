// cardtable.go - 卡表常量
//
// 写屏障将 addr>>CardShift 处的卡字节置脏。
// 省略检查：若卡已脏（同一指令序列内已对该对象写过引用字段），
// 可以跳过再次写卡。

package runtime

const (
	// CardShift 每张卡覆盖 1<<CardShift 字节的堆
	CardShift = 10

	// CardClean 干净卡字节值
	CardClean = 0

	// CardDirty 脏卡字节值。写屏障把卡表基址本身当作脏值写入
	// （card_table[addr>>shift] = card_table_base 的低 8 位），
	// 避免额外加载一个立即数。
	CardDirty = 0x70
)
