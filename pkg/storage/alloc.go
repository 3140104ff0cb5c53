package storage

import "github.com/apache/arrow-go/v18/arrow/memory"

func memoryAllocator() memory.Allocator {
	return memory.NewGoAllocator()
}
