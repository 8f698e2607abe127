package errors

// Mongo-specific helpers for mapping driver errors to project ErrorCode

import (
	stderrs "errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// IsMongoDuplicateKey reports whether the error is a duplicate key write error
func IsMongoDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(Root(err))
}

// IsMongoNoDocuments reports whether the error is the driver's empty result sentinel
func IsMongoNoDocuments(err error) bool {
	return stderrs.Is(err, mongo.ErrNoDocuments)
}

// IsMongoTimeout reports whether the error is a driver-side timeout
func IsMongoTimeout(err error) bool {
	return mongo.IsTimeout(Root(err))
}

// IsMongoNetwork reports whether the error is a network-level failure
func IsMongoNetwork(err error) bool {
	return mongo.IsNetworkError(Root(err))
}

// MongoErrorCode maps a mongo driver error to an ErrorCode with an ok flag
// !ok means err carried no recognizable driver signal; caller may fall back
func MongoErrorCode(err error) (ErrorCode, bool) {
	if err == nil {
		return ErrorCodeUnknown, false
	}
	switch {
	case IsMongoNoDocuments(err):
		return ErrorCodeNotFound, true
	case IsMongoDuplicateKey(err):
		return ErrorCodeDuplicateKey, true
	case IsMongoTimeout(err), IsMongoNetwork(err):
		return ErrorCodeUnavailable, true
	}

	var we mongo.WriteException
	if stderrs.As(Root(err), &we) {
		return ErrorCodeDB, true
	}
	var be mongo.BulkWriteException
	if stderrs.As(Root(err), &be) {
		return ErrorCodeDB, true
	}
	var ce mongo.CommandError
	if stderrs.As(Root(err), &ce) {
		return ErrorCodeDB, true
	}
	return ErrorCodeUnknown, false
}

// FromMongo wraps a mongo error with a mapped ErrorCode and message.
// If err is nil, returns nil
func FromMongo(err error, msg string) error {
	if err == nil {
		return nil
	}
	if code, ok := MongoErrorCode(err); ok {
		return Wrap(err, code, msg)
	}
	return Wrap(err, ErrorCodeDB, msg)
}

// FromMongof is the formatted variant of FromMongo
func FromMongof(err error, format string, a ...any) error {
	if err == nil {
		return nil
	}
	if code, ok := MongoErrorCode(err); ok {
		return Wrap(err, code, fmt.Sprintf(format, a...))
	}
	return Wrap(err, ErrorCodeDB, fmt.Sprintf(format, a...))
}
