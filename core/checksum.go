package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ContentChecksum computes the integrity hash over the canonical subset of
// detection fields: event id, device id, species, confidence and event
// timestamp. Devices send this alongside the payload; the gateway recomputes
// it and rejects on mismatch. The field order and formatting here are part
// of the wire contract and must not change.
func ContentChecksum(eventID, deviceID, species string, confidence float64, ts time.Time) string {
	canonical := fmt.Sprintf("%s|%s|%s|%.6f|%d",
		eventID, deviceID, strings.ToLower(species), confidence, ts.Unix())
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
