package models

import (
	"fmt"

	"github.com/google/uuid"
)

// DeterministicID derives a UUIDv5 in the DNS namespace from "{tenant}:{key}".
// Re-processing the same logical entity always yields the same primary key,
// which is what makes event redelivery idempotent.
func DeterministicID(tenant, key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(tenant+":"+key))
}

// FileID derives the File primary key from its tenant and blob path.
func FileID(tenant, path string) uuid.UUID {
	return DeterministicID(tenant, path)
}

// ChunkID derives a chunk primary key from its parent file, the extraction
// method that produced it, and its ordinal within the file.
func ChunkID(fileID uuid.UUID, extractionMethod string, ordinal int) uuid.UUID {
	name := fmt.Sprintf("%s-%s-%d", fileID, extractionMethod, ordinal)
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name))
}
