// Package common provides configuration and logging shared by the library
// packages and the command line interface.
//
// Key Components:
//
//   - StoreConfig: Configuration for opening a document store (root directory,
//     storage engine, codec, compression, recovery scan parallelism and log
//     level) with validation and a human readable String form.
//
//   - Logger: Custom logging implementation that plugs into the dragonboat
//     logger package (logger.ILogger) and formats every line as
//     "LEVEL | package | message". Library packages obtain their loggers with
//     logger.GetLogger; InitLoggers installs the factory and sets the levels.
package common
