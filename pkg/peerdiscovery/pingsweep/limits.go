package pingsweep

import (
	"os"

	"github.com/projectdiscovery/gologger"
	"github.com/shirou/gopsutil/v3/process"
)

// reservedFiles is kept free for stdio, output files and the runtime
const reservedFiles = 64

// openFileLimit returns the soft RLIMIT_NOFILE of this process, or 0 when it
// cannot be read
var openFileLimit = func() uint64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	limits, err := p.Rlimit()
	if err != nil {
		return 0
	}
	for _, limit := range limits {
		if limit.Resource == process.RLIMIT_NOFILE {
			return limit.Soft
		}
	}
	return 0
}

// clampChunkSize keeps the number of simultaneously open probe sockets
// (chunk size times parallelism) below the open file limit
func clampChunkSize(chunkSize, parallelism int) int {
	if chunkSize < 1 {
		chunkSize = DefaultOptions().ChunkSize
	}
	if parallelism < 1 {
		parallelism = 1
	}

	limit := openFileLimit()
	if limit == 0 || limit <= reservedFiles {
		return chunkSize
	}

	budget := int((limit - reservedFiles) / uint64(parallelism))
	if budget < 1 {
		budget = 1
	}
	if chunkSize > budget {
		gologger.Warning().Msgf("chunk size %d exceeds open file budget, lowering to %d (limit %d, parallelism %d)", chunkSize, budget, limit, parallelism)
		return budget
	}
	return chunkSize
}
