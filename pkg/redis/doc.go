// Package redis connects to Redis and applies delivered deferred writes to Redis hashes.
//
// The package wraps the go-redis client and adds:
//
//   - Connect, which retries the connection using the supplied configuration.
//   - HashWriter, a queue.Writer that stores each document as a hash. Merge writes run HSET,
//     overwrite writes run DEL and HSET inside MULTI/EXEC.
//   - Healthcheck, for readiness probes of the drain service.
//
// Configuration is described by the Config struct whose fields are populated from REDIS_*
// environment variables via github.com/caarlos0/env.
//
// # Usage
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	writer, _ := redis.NewHashWriter(client, cfg.KeyPrefix)
//	processor, _ := queue.NewProcessor(storage, writer)
//
// Values that are not strings are encoded as JSON, times as RFC 3339, so HGETALL returns
// a readable document.
//
// # Errors
//
// Sentinel errors such as ErrRedisNotReady wrap the underlying go-redis errors using
// errors.Join and can be checked with errors.Is.
package redis
