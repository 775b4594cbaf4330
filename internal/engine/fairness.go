package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	maxMultiplier = 1000000.00
	houseEdge     = 0.01
)

// crashPointFromSeeds reproduces the server's seed-to-multiplier mapping:
// HMAC-SHA256 over "clientSeed:nonce" keyed by the server seed, first 64 bits
// mapped through an exponential distribution with a 1% instant-crash edge.
func crashPointFromSeeds(serverSeed, clientSeed string, nonce int) float64 {
	data := fmt.Sprintf("%s:%d", clientSeed, nonce)
	h := hmac.New(sha256.New, []byte(serverSeed))
	h.Write([]byte(data))
	hashHex := hex.EncodeToString(h.Sum(nil))

	i := new(big.Int)
	i.SetString(hashHex[:16], 16)

	const maxUint64F = 18446744073709551616.0
	rFloat := float64(i.Uint64()) / maxUint64F

	if rFloat < houseEdge {
		return MinMultiplier
	}

	crashValue := (100.0 - houseEdge*100) / (100.0 - rFloat*100.0)
	finalMultiplier := float64(int(crashValue*100)) / 100.0

	if finalMultiplier < MinMultiplier {
		return MinMultiplier
	}
	if finalMultiplier > maxMultiplier {
		return maxMultiplier
	}
	return finalMultiplier
}

// VerifyCommitment checks a revealed server seed against the hash the server
// committed to before the round.
func VerifyCommitment(serverSeed, commitment string) bool {
	h := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(h[:]) == commitment
}

// VerifyCrashPoint checks the revealed seeds against the crash point the
// server settled the round at. A small tolerance absorbs float rounding.
func VerifyCrashPoint(serverSeed, clientSeed string, nonce int, crashPoint float64) bool {
	calculated := crashPointFromSeeds(serverSeed, clientSeed, nonce)
	diff := calculated - crashPoint
	if diff < 0 {
		diff = -diff
	}
	return diff < 0.01
}
