// options.go - 编译器选项
//
// 选项从 quasar.toml 加载，环境变量 QUASAR_* 可逐项覆盖。
// 每个开关都对应一处明确的代码形态决策，见各字段注释。

package codegen

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/xyproto/env/v2"
	"go.uber.org/zap"
)

// CompilerOptions 编译器选项
type CompilerOptions struct {
	// EmitReadBarrier 是否为并发 GC 生成 Baker 读屏障
	EmitReadBarrier bool `toml:"emit_read_barrier"`

	// ImplicitNullChecks 空指针检查用故障加载代替显式分支
	ImplicitNullChecks bool `toml:"implicit_null_checks"`

	// ImplicitSuspendChecks 挂起检查用故障加载代替显式轮询
	ImplicitSuspendChecks bool `toml:"implicit_suspend_checks"`

	// ProfileBranches 分支插桩（基线档位收集 profile）
	ProfileBranches bool `toml:"profile_branches"`

	// CompileWithClinitCheck 帧建立前插入类初始化检查
	CompileWithClinitCheck bool `toml:"compile_with_clinit_check"`

	// 镜像种类（AOT 打补丁策略随之变化）
	IsBootImage          bool `toml:"is_boot_image"`
	IsBootImageExtension bool `toml:"is_boot_image_extension"`
	IsAppImage           bool `toml:"is_app_image"`

	// IsJitCompiler JIT 模式：字面量根走根表，不走链接补丁
	IsJitCompiler bool `toml:"is_jit_compiler"`

	// NativeDebuggable 本地调试器可见：块入口独立栈图
	NativeDebuggable bool `toml:"native_debuggable"`

	// EmitRunTimeChecksInDebugMode 生成运行期一致性断言
	// （写屏障省略的 GC 卡校验依赖此项）
	EmitRunTimeChecksInDebugMode bool `toml:"emit_runtime_checks_in_debug_mode"`

	// GenerateAnyDebugInfo 是否生成任何调试信息
	GenerateAnyDebugInfo bool `toml:"generate_any_debug_info"`

	// Debuggable 方法可被调试器挂起检视（每个安全点带变量表）
	Debuggable bool `toml:"debuggable"`

	// CodeCacheCapacity JIT 代码缓存容量（字节）
	CodeCacheCapacity int `toml:"code_cache_capacity"`

	// Logger 由驱动注入，内部一致性违例经其 Fatal 终止进程
	Logger *zap.Logger `toml:"-"`
}

// DefaultOptions 默认选项（JIT、并发 GC 开启）
func DefaultOptions() *CompilerOptions {
	return &CompilerOptions{
		EmitReadBarrier:   true,
		IsJitCompiler:     true,
		CodeCacheCapacity: 16 << 20,
		Logger:            zap.NewNop(),
	}
}

// LoadOptions 从 TOML 文件加载选项，文件不存在时返回默认值
func LoadOptions(path string) (*CompilerOptions, error) {
	opts := DefaultOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			opts.applyEnv()
			return opts, nil
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := toml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}
	opts.applyEnv()
	return opts, nil
}

// applyEnv 环境变量覆盖
func (o *CompilerOptions) applyEnv() {
	if env.Has("QUASAR_READ_BARRIER") {
		o.EmitReadBarrier = env.Bool("QUASAR_READ_BARRIER")
	}
	if env.Has("QUASAR_IMPLICIT_NULL_CHECKS") {
		o.ImplicitNullChecks = env.Bool("QUASAR_IMPLICIT_NULL_CHECKS")
	}
	if env.Has("QUASAR_DEBUGGABLE") {
		o.Debuggable = env.Bool("QUASAR_DEBUGGABLE")
	}
	if env.Has("QUASAR_RUNTIME_CHECKS") {
		o.EmitRunTimeChecksInDebugMode = env.Bool("QUASAR_RUNTIME_CHECKS")
	}
	if env.Has("QUASAR_CODE_CACHE_CAPACITY") {
		o.CodeCacheCapacity = env.Int("QUASAR_CODE_CACHE_CAPACITY", o.CodeCacheCapacity)
	}
}

// EmitsAnyImage 是否在构建某种镜像
func (o *CompilerOptions) EmitsAnyImage() bool {
	return o.IsBootImage || o.IsBootImageExtension || o.IsAppImage
}
