// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"runtime"
	"strconv"
	"sync"
)

// ContainerParallelEnv overrides the capacity of ContainerSemaphore.
const ContainerParallelEnv = "STACKCTL_TEST_CONTAINER_PARALLEL"

// ContainerSemaphore returns a process-wide buffered channel that limits how many
// tests start real containers at once. Acquire a slot by sending, release by receiving:
//
//	sem := testutil.ContainerSemaphore()
//	sem <- struct{}{}
//	defer func() { <-sem }()
//
// The capacity is STACKCTL_TEST_CONTAINER_PARALLEL when set, else min(GOMAXPROCS, 2).
var ContainerSemaphore = sync.OnceValue(func() chan struct{} {
	return make(chan struct{}, containerParallelism(os.Getenv(ContainerParallelEnv)))
})

func containerParallelism(env string) int {
	if env != "" {
		if n, err := strconv.Atoi(env); err == nil && n > 0 {
			return n
		}
	}
	return min(runtime.GOMAXPROCS(0), 2)
}
