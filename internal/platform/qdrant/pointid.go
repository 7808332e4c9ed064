package qdrant

import "github.com/google/uuid"

var pointIDNamespaceUUID = uuid.MustParse("0f1705d1-2c3f-4e40-b2f4-f855f7d3c8e8")

// deterministicPointID derives a stable UUIDv5-style point ID from a
// collection-qualified vector ID, so re-upserting the same vector_id always
// targets the same qdrant point.
func deterministicPointID(collection, vectorID string) string {
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(collection+"|"+vectorID)).String()
}
