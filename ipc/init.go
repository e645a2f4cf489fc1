package ipc

import (
	"sync"

	"github.com/pithecene-io/ipcpipe/types"
)

var initOnce sync.Once

// EnsureInitialized performs the process-wide setup the codec depends on:
// events become valid structure values. It is safe to call repeatedly and
// is called by NewComm.
func EnsureInitialized() {
	initOnce.Do(func() {
		types.RegisterValueCodec(types.EventValueCodec)
	})
}
