package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// GenerateArtifactID generates a unique ID for a stitched artifact
func GenerateArtifactID() string {
	// Generate random bytes
	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		// Fallback to time-based ID if random generation fails
		return fmt.Sprintf("art_%d", time.Now().UnixNano())
	}

	// Create ID with timestamp and random component
	timestamp := time.Now().UnixNano() / int64(time.Millisecond)
	return fmt.Sprintf("art_%d_%s", timestamp, hex.EncodeToString(randomBytes))
}
