// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package heap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSyncHeapBasics(t *testing.T) {
	var s SyncHeap

	require.Equal(t, StrategyInvalid, s.Strategy())
	require.True(t, s.InitStrategy(make([]byte, testRegionSize), StrategySmallest))
	require.Equal(t, StrategySmallest, s.Strategy())
	require.EqualValues(t, testRegionSize, s.Size())

	p := s.Alloc(64)
	require.NotNil(t, p)
	require.EqualValues(t, 1, s.Allocations())

	require.False(t, s.FreeArray(p))
	require.EqualValues(t, 1, s.FailedFrees())
	require.True(t, s.Free(p))
	require.EqualValues(t, 0, s.Allocations())
	require.EqualValues(t, 1, s.TotalAllocations())
	require.EqualValues(t, 0, s.FailedAllocations())
}

func TestSyncHeapConcurrent(t *testing.T) {
	const workers = 4
	const rounds = 64

	var s SyncHeap
	require.True(t, s.Init(make([]byte, 64*1024)))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				p := s.Alloc(uint64(16 + 8*w))
				if p == nil {
					continue
				}
				if !s.Free(p) {
					t.Errorf("worker %d: free failed at round %d", w, i)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	require.EqualValues(t, 0, s.Allocations())
	require.EqualValues(t, workers*rounds, s.TotalAllocations())
	require.EqualValues(t, 0, s.FailedFrees())

	// Fully drained: the region folds back into one free block.
	require.NotNil(t, s.heap.root)
	require.Equal(t, s.heap.length, s.heap.root.size)
}
