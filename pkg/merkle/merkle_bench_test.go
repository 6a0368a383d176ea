package merkle

import (
	"fmt"
	"testing"
)

// BenchmarkMerkleTreeBuild benchmarks tree construction with various sizes
func BenchmarkMerkleTreeBuild(b *testing.B) {
	sizes := []int{10, 100, 1000, 10000}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("Allocations_%d", size), func(b *testing.B) {
			allocs := createTestAllocations(size)
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				_, _ = NewMerkleTree(allocs)
			}
		})
	}
}

// BenchmarkMerkleCalldata benchmarks proof extraction
func BenchmarkMerkleCalldata(b *testing.B) {
	sizes := []int{10, 100, 1000, 10000}

	for _, size := range sizes {
		allocs := createTestAllocations(size)
		tree, _ := NewMerkleTree(allocs)
		target := allocs[size/2].Address

		b.Run(fmt.Sprintf("Allocations_%d", size), func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = tree.Calldata(target)
			}
		})
	}
}

// BenchmarkSortAllocations benchmarks the address sort
func BenchmarkSortAllocations(b *testing.B) {
	allocs := shuffled(createTestAllocations(1000), 1)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = SortAllocations(allocs)
	}
}
