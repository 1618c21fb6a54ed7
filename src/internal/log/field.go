package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// JobID is a Field naming a job.
func JobID(id string) Field {
	return zap.String("jobID", id)
}

// MapID is a Field naming a dataset.
func MapID(id int64) Field {
	return zap.Int64("mapID", id)
}

// FolderID is a Field naming a folder.
func FolderID(id int64) Field {
	return zap.Int64("folderID", id)
}

type attempt struct{ i, max int }

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (a attempt) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("attempt", a.i)
	enc.AddInt("totalAttempts", a.max)
	return nil
}

// RetryAttempt is a Field that encodes the current retry (0-indexed) and the total number of
// retries.
func RetryAttempt(i int, max int) Field {
	return zap.Inline(&attempt{i: i, max: max})
}
