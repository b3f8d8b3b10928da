package core

import "time"

// BucketWidth is the granularity at which clock face images change.
const BucketWidth = 10 * time.Minute

const bucketMinutes = int(BucketWidth / time.Minute)

// BucketMinute rounds a minute down to the start of its 10-minute bucket.
func BucketMinute(minute int) int {
	return minute / bucketMinutes * bucketMinutes
}

// BucketStart truncates t to the start of its bucket in t's own location.
func BucketStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), BucketMinute(t.Minute()), 0, 0, t.Location())
}

// NextBucket returns the start of the bucket following the one containing t.
func NextBucket(t time.Time) time.Time {
	return BucketStart(t).Add(BucketWidth)
}

// UntilNextBucket is the delay from t to the next bucket boundary, in whole seconds.
func UntilNextBucket(t time.Time) time.Duration {
	return BucketWidth - time.Duration(t.Minute()%bucketMinutes)*time.Minute - time.Duration(t.Second())*time.Second
}
