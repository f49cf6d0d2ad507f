// Package config loads typed configuration from environment variables.
//
// It combines github.com/joho/godotenv, which reads optional .env files into the process
// environment, with github.com/caarlos0/env/v11, which parses the environment into a struct
// annotated with `env` and `envDefault` tags. Every connection package of this module
// (mongo, pg, redis) and the queue itself expose such a struct.
//
// Each configuration type is parsed once and cached by value. Structs that implement
// Validator are validated before they are cached, so a bad cleanup policy or similar
// mistake stops the service at startup.
//
// # Usage
//
//	if err := config.LoadEnv("./deploy/.env"); err != nil {
//	    log.Fatal(err)
//	}
//
//	var qcfg queue.Config
//	config.MustLoad(&qcfg)
//
// # Error Handling
//
// Sentinel errors can be compared with errors.Is: ErrParsingConfig, ErrInvalidConfig,
// ErrLoadingEnvFile and ErrNilPointer.
//
// # Testing Helpers
//
// ResetCache clears the cache between tests that change the environment.
package config
