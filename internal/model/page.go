package model

import (
	"crypto/sha512"
	"encoding/hex"
	"time"
)

// Page is a reviewable URL belonging to exactly one Domain. Score is
// non-negative and monotonically non-decreasing except via bulk
// recalibration; URLHash is the uniqueness key ingestion upserts on.
type Page struct {
	ID              int64      `bson:"_id"`
	UUID            string     `bson:"uuid"`
	URL             string     `bson:"url"`
	URLHash         string     `bson:"url_hash"`
	DomainID        int64      `bson:"domain_id"`
	Score           float64    `bson:"score"`
	LastReviewDate  *time.Time `bson:"last_review_date,omitempty"`
	LastReviewUUID  string     `bson:"last_review_uuid,omitempty"`
	ViolationsCount int64      `bson:"violations_count"`
	CreatedDate     time.Time  `bson:"created_date"`
}

// MaxURLLength is the maximum byte length accepted for a page URL.
const MaxURLLength = 2000

// HashURL returns the SHA-512 hex digest used as a page's uniqueness key.
// The URL is hashed as UTF-8 bytes, matching the original implementation's
// encode-then-hash step (spec.md §9 Open Questions flags that non-ASCII
// round-tripping through the storage column is otherwise unverified; this
// module hashes the raw bytes and stores URL/URLHash as UTF-8 text, which
// is all the hash step itself can guarantee).
func HashURL(url string) string {
	sum := sha512.Sum512([]byte(url))
	return hex.EncodeToString(sum[:])
}
