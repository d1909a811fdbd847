package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/segmentio/encoding/json"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/quasarlang/quasar/internal/aot"
	"github.com/quasarlang/quasar/internal/codegen"
	_ "github.com/quasarlang/quasar/internal/codegen/arm64"
)

var (
	isa           = flag.String("isa", "arm64", "Target instruction set")
	configPath    = flag.String("config", "quasarc.toml", "Compiler options file")
	outPath       = flag.String("o", "", "Write AOT image to file (enables AOT mode)")
	dumpCode      = flag.String("dump-code", "", "Dump machine code of the named method (hex)")
	dumpStackmaps = flag.String("dump-stackmaps", "", "Dump decoded stack maps of the named method (JSON)")
	emitThunks    = flag.Bool("emit-thunks", false, "Dump shared read-barrier thunks")
	selftest      = flag.Bool("selftest", false, "Compile built-in self-test methods")
	verbose       = flag.Bool("v", false, "Verbose compilation log")
)

func main() {
	flag.Parse()

	if !*selftest {
		fmt.Println("Quasar Optimizing Compiler v0.1.0")
		fmt.Println()
		fmt.Println("Usage: quasarc [options] -selftest")
		fmt.Println()
		fmt.Println("Options:")
		fmt.Println("  -isa <name>             Target instruction set (default arm64)")
		fmt.Println("  -config <file>          Compiler options file")
		fmt.Println("  -o <file>               Write AOT image")
		fmt.Println("  -dump-code <method>     Dump machine code (hex)")
		fmt.Println("  -dump-stackmaps <method> Dump stack maps (JSON)")
		fmt.Println("  -emit-thunks            Dump shared read-barrier thunks")
		fmt.Println("  -selftest               Compile built-in self-test methods")
		os.Exit(0)
	}

	opts, err := codegen.LoadOptions(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading options: %v\n", err)
		os.Exit(1)
	}
	if *outPath != "" {
		opts.IsJitCompiler = false
	}

	logger := zap.NewNop()
	if *verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
	}
	opts.Logger = logger

	graphs := selftestGraphs()
	writer := aot.NewWriter()

	var errs error
	results := make(map[string]*codegen.CompileResult)
	for i, g := range graphs {
		cg, err := codegen.Create(*isa, g, opts)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", g.Method.Name, err))
			continue
		}
		res, err := codegen.Compile(cg)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", g.Method.Name, err))
			continue
		}
		results[g.Method.Name] = res

		if *emitThunks {
			dumpThunks(cg, res)
		}
		if *outPath != "" {
			if err := writer.AddMethod(uint32(i), res); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}

	// 逐方法的失败不拦着其余方法出结果
	for _, e := range multierr.Errors(errs) {
		fmt.Fprintf(os.Stderr, "Compile error: %v\n", e)
	}

	if *dumpCode != "" {
		if err := dumpMethodCode(results, *dumpCode); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if *dumpStackmaps != "" {
		if err := dumpMethodStackmaps(results, *dumpStackmaps); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *outPath != "" {
		if err := writer.WriteFile(*outPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s: %d methods, %d code bytes (deduped), %d patches\n",
			*outPath, writer.MethodCount(), writer.CodeSize(), writer.PatchCount())
	}

	fmt.Printf("Compiled %d/%d methods\n", len(results), len(graphs))
	printStats()

	if errs != nil {
		os.Exit(1)
	}
}

func dumpMethodCode(results map[string]*codegen.CompileResult, name string) error {
	res, ok := results[name]
	if !ok {
		return fmt.Errorf("method %q not compiled", name)
	}
	fmt.Printf("=== %s: %d bytes, frame %d ===\n", name, len(res.Code), res.FrameSize)
	fmt.Println(hex.Dump(res.Code))
	for _, p := range res.Patches {
		fmt.Printf("  patch %-18s code=%#06x base=%#06x target=%d data=%#x\n",
			p.Kind, p.CodeOffset, p.BaseOffset, p.TargetIndex, p.CustomData)
	}
	return nil
}

func dumpMethodStackmaps(results map[string]*codegen.CompileResult, name string) error {
	res, ok := results[name]
	if !ok {
		return fmt.Errorf("method %q not compiled", name)
	}
	info, err := codegen.DecodeStackMaps(res.StackMaps)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// dumpThunks 列出方法引用的共享读屏障 thunk（AOT 形态）
func dumpThunks(cg codegen.Backend, res *codegen.CompileResult) {
	for _, p := range res.Patches {
		if p.Kind != codegen.PatchBakerThunk {
			continue
		}
		code, name, err := cg.EmitThunkCode(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Thunk error: %v\n", err)
			continue
		}
		fmt.Printf("=== thunk %s: %d bytes ===\n", name, len(code))
		fmt.Println(hex.Dump(code))
	}
}

func printStats() {
	s := &codegen.GlobalStats
	fmt.Printf("  code bytes:       %d\n", s.CodeBytes.Load())
	fmt.Printf("  stack map bytes:  %d\n", s.StackMapBytes.Load())
	fmt.Printf("  safepoints:       %d\n", s.SafepointsEmitted.Load())
	fmt.Printf("  slow paths:       %d\n", s.SlowPathsEmitted.Load())
	fmt.Printf("  magic divisions:  %d\n", s.DivByConstMagic.Load())
	fmt.Printf("  barriers elided:  %d\n", s.WriteBarriersElided.Load())
}
