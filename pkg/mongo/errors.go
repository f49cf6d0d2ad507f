package mongo

import "errors"

var (
	ErrFailedToConnectToMongo = errors.New("failed to connect to mongo")
	ErrHealthcheckFailed      = errors.New("mongo healthcheck failed")
	ErrCreateIndexes          = errors.New("failed to create queue indexes")
	ErrInvalidEntryDocument   = errors.New("invalid queue entry document")
	ErrDatabaseNil            = errors.New("mongo database cannot be nil")
)
