package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GenerateETag builds a weak ETag from a document id and its last update time.
func GenerateETag(id primitive.ObjectID, updatedAt time.Time) string {
	sum := sha256.Sum256([]byte(id.Hex() + updatedAt.UTC().Format(time.RFC3339Nano)))
	return fmt.Sprintf(`W/"%s"`, hex.EncodeToString(sum[:8]))
}
