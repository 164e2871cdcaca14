package chat

import (
	"math/rand"
	"sync"
	"time"
)

var (
	randMu  sync.Mutex
	randSrc = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func randIntn(n int) int {
	randMu.Lock()
	defer randMu.Unlock()
	return randSrc.Intn(n)
}
