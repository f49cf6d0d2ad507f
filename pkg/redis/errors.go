package redis

import "errors"

var (
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("redis did not become ready within the given time period")
	ErrHealthcheckFailed            = errors.New("redis healthcheck failed")
	ErrClientNil                    = errors.New("redis client cannot be nil")
	ErrEncodeField                  = errors.New("failed to encode document field")
)
