package main

import (
	"fmt"
	"slices"
)

// Backend drivers
const (
	driverMemory = "memory"
	driverMongo  = "mongo"
	driverPG     = "pg"
	driverRedis  = "redis"
)

var (
	storageDrivers = []string{driverMemory, driverMongo, driverPG}
	writerDrivers  = []string{driverMemory, driverMongo, driverPG, driverRedis}
)

// appConfig selects the backends and the logging setup of the drain service
type appConfig struct {
	Env           string `env:"APP_ENV" envDefault:"development"`
	ServiceName   string `env:"SERVICE_NAME" envDefault:"deferq"`
	LogLevel      string `env:"LOG_LEVEL"`
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"memory"`
	WriterDriver  string `env:"WRITER_DRIVER" envDefault:"memory"`
}

func (c appConfig) Validate() error {
	if !slices.Contains(storageDrivers, c.StorageDriver) {
		return fmt.Errorf("unsupported STORAGE_DRIVER %q, use one of %v", c.StorageDriver, storageDrivers)
	}
	if !slices.Contains(writerDrivers, c.WriterDriver) {
		return fmt.Errorf("unsupported WRITER_DRIVER %q, use one of %v", c.WriterDriver, writerDrivers)
	}
	return nil
}

// uses reports whether either backend runs on driver
func (c appConfig) uses(driver string) bool {
	return c.StorageDriver == driver || c.WriterDriver == driver
}
