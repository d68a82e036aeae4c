// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// heapstress drives a fixed-region heap with a seeded random alloc/free
// workload and prints the resulting counters. It maps its region straight
// from the OS so the heap runs over memory Go's own allocator never sees.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"unsafe"

	"github.com/spf13/cobra"

	"github.com/strange-secrets/memory/heap"
	"github.com/strange-secrets/memory/internal/region"
)

var (
	regionSize   int
	strategyName string
	rounds       int
	seed         int64
	maxAlloc     int
	dump         bool
)

var rootCmd = &cobra.Command{
	Use:   "heapstress",
	Short: "Exercise a fixed-region heap with a random workload",
	Long: `heapstress maps an anonymous memory region, initializes a heap on
top of it and runs a seeded random mix of allocations and releases against
the chosen free-block selection strategy. It reports the heap counters on
exit, so two strategies can be compared over the same workload.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().IntVar(&regionSize, "size", 1<<20,
		"region size in bytes")
	rootCmd.Flags().StringVar(&strategyName, "strategy", "first",
		"free-block selection strategy (first|smallest)")
	rootCmd.Flags().IntVar(&rounds, "rounds", 100000,
		"number of random operations")
	rootCmd.Flags().Int64Var(&seed, "seed", 1, "workload seed")
	rootCmd.Flags().IntVar(&maxAlloc, "max-alloc", 4096,
		"largest single allocation in bytes")
	rootCmd.Flags().BoolVar(&dump, "dump", false,
		"dump the heap status to the log on exit")
}

func run(cmd *cobra.Command, args []string) error {
	var strategy heap.Strategy
	switch strategyName {
	case "first":
		strategy = heap.StrategyFirst
	case "smallest":
		strategy = heap.StrategySmallest
	default:
		return fmt.Errorf("unknown strategy %q", strategyName)
	}

	mem, err := region.Map(regionSize)
	if err != nil {
		return fmt.Errorf("mapping %d bytes: %w", regionSize, err)
	}
	defer region.Unmap(mem)

	var h heap.Heap
	if !h.InitStrategy(mem, strategy) {
		return fmt.Errorf("heap rejected a %d byte region", regionSize)
	}

	rng := rand.New(rand.NewSource(seed))
	live := make([]unsafe.Pointer, 0, 1024)

	for i := 0; i < rounds; i++ {
		if len(live) == 0 || rng.Intn(2) == 0 {
			if p := h.Alloc(uint64(1 + rng.Intn(maxAlloc))); p != nil {
				live = append(live, p)
			}
		} else {
			j := rng.Intn(len(live))
			if !h.Free(live[j]) {
				return fmt.Errorf("round %d: release of %p failed", i, live[j])
			}
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]
		}
	}
	for _, p := range live {
		if !h.Free(p) {
			return fmt.Errorf("draining: release of %p failed", p)
		}
	}

	fmt.Printf("strategy:           %s\n", h.Strategy())
	fmt.Printf("region size:        %d\n", h.Size())
	fmt.Printf("total allocations:  %d\n", h.TotalAllocations())
	fmt.Printf("failed allocations: %d\n", h.FailedAllocations())
	fmt.Printf("failed frees:       %d\n", h.FailedFrees())
	fmt.Printf("live at exit:       %d\n", h.Allocations())

	if dump {
		h.DumpStatus()
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
