package main

import (
	"flag"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strings"

	"github.com/klauspost/cpuid/v2"

	"github.com/born-ml/fieldproxy/internal/backend/cpu"
	"github.com/born-ml/fieldproxy/internal/backend/webgpu"
	"github.com/born-ml/fieldproxy/internal/proxy"
)

func infoCmd(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "fieldproxy %s\n\n", version)
	fmt.Fprintln(stdout, "Host:")
	fmt.Fprintf(stdout, "  CPU:       %s\n", cpuid.CPU.BrandName)
	fmt.Fprintf(stdout, "  Cores:     %d physical, %d logical\n", cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores)
	fmt.Fprintf(stdout, "  Features:  %s\n", strings.Join(simdFeatures(), " "))
	fmt.Fprintf(stdout, "  Backend:   %s\n", newCPU(cfg).Name())
	if webgpu.IsAvailable() {
		if gpu, err := webgpu.New(); err == nil {
			fmt.Fprintf(stdout, "  WebGPU:    %s\n", gpu.Name())
			gpu.Release()
		} else {
			fmt.Fprintf(stdout, "  WebGPU:    %v\n", err)
		}
	} else {
		fmt.Fprintln(stdout, "  WebGPU:    not available")
	}

	pc := cfg.Model.Proxy()
	model, err := proxy.New(pc, rand.New(rand.NewSource(cfg.Model.Seed)), cpu.New()) //nolint:gosec // G404: weight init
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, "\nModel:")
	fmt.Fprintf(stdout, "  Input:     %v\n", []int{1, pc.InChannels, pc.Height, pc.Width})
	fmt.Fprintf(stdout, "  Output:    %v\n", pc.OutputShape(1))
	sizes := model.BlockSizes()
	names := make([]string, 0, len(sizes))
	for name := range sizes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(stdout, "  %-10s %d\n", name+":", sizes[name])
	}
	fmt.Fprintf(stdout, "  Total:     %d parameters\n", model.NumParameters())
	return nil
}

func simdFeatures() []string {
	var out []string
	for _, f := range []struct {
		name string
		id   cpuid.FeatureID
	}{
		{"SSE4.2", cpuid.SSE42},
		{"AVX", cpuid.AVX},
		{"AVX2", cpuid.AVX2},
		{"FMA3", cpuid.FMA3},
		{"AVX512F", cpuid.AVX512F},
		{"NEON", cpuid.ASIMD},
	} {
		if cpuid.CPU.Supports(f.id) {
			out = append(out, f.name)
		}
	}
	if len(out) == 0 {
		out = append(out, "none")
	}
	return out
}
