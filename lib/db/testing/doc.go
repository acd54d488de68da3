// Package testing provides standardised tests and benchmarks for
// database implementations that satisfy the db.UnitDB interface.
//
// The package contains:
//   - testing: A comprehensive test suite for validating conformance to the UnitDB interface contract
//   - benchmark: Performance tests for measuring throughput of common database operations
//
// Tests and benchmarks that need a feature the implementation does not
// advertise (see db.Feature) are skipped.
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() db.UnitDB {
//		return NewMyDatabase()
//	}
//
//	// Running the standard test suite
//	dbtesting.RunUnitDBTests(t, "MyDatabase", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunUnitDBBenchmarks(b, "MyDatabase", factory)
package testing
