package keystore

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/rgb-ln/rlnd/internal/core/ports"
)

type entropySource struct {
	seed    []byte
	counter atomic.Uint64
}

// NewEntropySource mixes the node seed, a counter and OS randomness. A nil
// seed leaves only the OS randomness.
func NewEntropySource(seed []byte) ports.EntropySource {
	return &entropySource{seed: seed}
}

func (e *entropySource) SecureRandomBytes() [32]byte {
	var random [32]byte
	if _, err := rand.Read(random[:]); err != nil {
		panic(err)
	}

	buf := make([]byte, 0, len(e.seed)+8+len(random))
	buf = append(buf, e.seed...)
	buf = binary.BigEndian.AppendUint64(buf, e.counter.Add(1))
	buf = append(buf, random[:]...)
	return chainhash.HashH(buf)
}
