package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/ValentinKolb/dDoc/lib/db"
)

// RunUnitDBBenchmarks runs all benchmarks for a unit database implementation
func RunUnitDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Put", func(b *testing.B) {
		benchmarkPut(b, factory())
	})

	b.Run("PutExisting", func(b *testing.B) {
		benchmarkPutExisting(b, factory())
	})

	b.Run("PutLargeValue", func(b *testing.B) {
		benchmarkPutLargeValue(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("Get(not)", func(b *testing.B) {
		benchmarkGetNot(b, factory())
	})

	b.Run("Delete", func(b *testing.B) {
		benchmarkDelete(b, factory())
	})

	b.Run("Keys", func(b *testing.B) {
		benchmarkKeys(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Put operation
func benchmarkPut(b *testing.B, database db.UnitDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := rand.Int()
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter)
			value := []byte(fmt.Sprintf("test-value-%d", counter))
			_, _ = database.Put(key, value)
			counter++
		}
	})
}

// Benchmark for Put operation with existing keys
func benchmarkPutExisting(b *testing.B, database db.UnitDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)

	// Prepare data
	numKeys := 1000
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("test-key-%d", i)
		value := []byte(fmt.Sprintf("test-value-%d", i))
		_, _ = database.Put(key, value)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter%numKeys)
			value := []byte(fmt.Sprintf("test-value-%d", counter))
			_, _ = database.Put(key, value)
			counter++
		}
	})
}

// Benchmark for Put operation with large values
func benchmarkPutLargeValue(b *testing.B, database db.UnitDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)

	largeValue := bytes.Repeat([]byte("x"), 100*1024) // 100KB

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := rand.Int()
		for pb.Next() {
			key := fmt.Sprintf("large-key-%d", counter)
			_, _ = database.Put(key, largeValue)
			counter++
		}
	})
}

// Benchmark for Get operation
func benchmarkGet(b *testing.B, database db.UnitDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureGet)

	// Prepare data
	numKeys := 1000
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("test-key-%d", i)
		value := []byte(fmt.Sprintf("test-value-%d", i))
		_, _ = database.Put(key, value)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter%numKeys)
			_, _, _ = database.Get(key)
			counter++
		}
	})
}

// Benchmark for Get operation on missing keys
func benchmarkGetNot(b *testing.B, database db.UnitDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureGet)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("missing-key-%d", counter)
			_, _, _ = database.Get(key)
			counter++
		}
	})
}

// Benchmark for Delete operation
func benchmarkDelete(b *testing.B, database db.UnitDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureDelete)

	// Prepare data
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("test-key-%d", i)
		_, _ = database.Put(key, []byte("value"))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("test-key-%d", i)
		_ = database.Delete(key)
	}
}

// Benchmark for Keys operation
func benchmarkKeys(b *testing.B, database db.UnitDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureKeys)

	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("test-key-%d", i)
		_, _ = database.Put(key, []byte("value"))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = database.Keys()
	}
}

// Benchmark for Save and Load operations
func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := factory()
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSnapshot)
	source := database.(snapshotter)

	numKeys := 10_000
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("test-key-%d", i)
		value := []byte(fmt.Sprintf("test-value-%d", i))
		_, _ = database.Put(key, value)
	}

	var snapshot bytes.Buffer
	if err := source.Save(&snapshot); err != nil {
		b.Fatalf("Save failed: %v", err)
	}

	b.Run("Save", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			_ = source.Save(&buf)
		}
	})

	b.Run("Load", func(b *testing.B) {
		target := factory()
		defer target.Close()
		loader := target.(snapshotter)

		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_ = loader.Load(bytes.NewReader(snapshot.Bytes()))
		}
	})
}

// Benchmark for a mix of reads and writes
func benchmarkMixedUsage(b *testing.B, database db.UnitDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureGet|db.FeatureDelete)

	numKeys := 1000
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("test-key-%d", i)
		_, _ = database.Put(key, []byte(fmt.Sprintf("test-value-%d", i)))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter%numKeys)
			switch counter % 10 {
			case 0, 1, 2, 3, 4, 5, 6:
				_, _, _ = database.Get(key)
			case 7, 8:
				_, _ = database.Put(key, []byte("updated"))
			case 9:
				_ = database.Delete(key)
			}
			counter++
		}
	})
}
