// Package util provides utility components shared by the unit database
// engines and the document store.
//
// The package contains:
//   - statistics: UnitSizes (bucketed unit size summary) and DistributionStats (spread of units across shards) reported by GetInfo
//   - functions: Seed generation and hash functions used for sharding and identifier fingerprints
package util
