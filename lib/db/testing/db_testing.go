package testing

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dDoc/lib/db"
)

// DBFactory is a function that creates a new, empty instance of a UnitDB implementation
type DBFactory func() db.UnitDB

// snapshotter is implemented by engines that advertise db.FeatureSnapshot
type snapshotter interface {
	Save(w io.Writer) error
	Load(r io.Reader) error
}

// RunUnitDBTests runs a comprehensive test suite for a UnitDB implementation.
func RunUnitDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("DeleteAll", func(t *testing.T) {
			testDeleteAll(t, factory())
		})

		t.Run("Keys", func(t *testing.T) {
			testKeys(t, factory())
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, factory())
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("AtomicReplace", func(t *testing.T) {
			testAtomicReplace(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.UnitDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

func mustPut(t testing.TB, database db.UnitDB, key string, value []byte) {
	if _, err := database.Put(key, value); err != nil {
		t.Fatalf("Put(%s) failed: %v", key, err)
	}
}

func mustGet(t testing.TB, database db.UnitDB, key string) ([]byte, bool) {
	value, found, err := database.Get(key)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", key, err)
	}
	return value, found
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, database db.UnitDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	location, err := database.Put(testKey, testValue1)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if location == "" {
		t.Errorf("Expected a non-empty location from Put")
	}
	if location != database.Location(testKey) {
		t.Errorf("Expected Location to match Put: %s != %s", database.Location(testKey), location)
	}

	result, exists := mustGet(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Put", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	mustPut(t, database, testKey, testValue2)

	result, exists = mustGet(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Put", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists = mustGet(t, database, "nonexistent-key")
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	// Get must return a copy
	retrievedValue, _ := mustGet(t, database, testKey)
	retrievedValue[0] = 'X'

	originalValue, _ := mustGet(t, database, testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	// Put must not keep a reference to the caller's slice
	input := []byte("input-value")
	mustPut(t, database, "copy-key", input)
	input[0] = 'X'

	stored, _ := mustGet(t, database, "copy-key")
	if !bytes.Equal(stored, []byte("input-value")) {
		t.Errorf("Put should store a copy of the value, got %s", stored)
	}
}

func testDelete(t *testing.T, database db.UnitDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureDelete)

	mustPut(t, database, "delete-key", []byte("value"))

	if err := database.Delete("delete-key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, exists := mustGet(t, database, "delete-key"); exists {
		t.Errorf("Expected key to be gone after Delete")
	}

	// deleting a missing key is not an error
	if err := database.Delete("delete-key"); err != nil {
		t.Errorf("Deleting a missing key should not fail, got %v", err)
	}
	if err := database.Delete("never-existed"); err != nil {
		t.Errorf("Deleting a missing key should not fail, got %v", err)
	}

	// the key can be reused
	mustPut(t, database, "delete-key", []byte("again"))
	if value, exists := mustGet(t, database, "delete-key"); !exists || string(value) != "again" {
		t.Errorf("Expected reused key to hold the new value, got %s (exists=%v)", value, exists)
	}
}

func testDeleteAll(t *testing.T, database db.UnitDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureDeleteAll|db.FeatureKeys)

	for i := 0; i < 50; i++ {
		mustPut(t, database, fmt.Sprintf("key-%d", i), []byte(fmt.Sprintf("value-%d", i)))
	}

	if err := database.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}

	keys, err := database.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected no keys after DeleteAll, got %d", len(keys))
	}

	// DeleteAll on an empty database is fine
	if err := database.DeleteAll(); err != nil {
		t.Errorf("DeleteAll on empty database failed: %v", err)
	}

	// the database stays usable
	mustPut(t, database, "key-1", []byte("fresh"))
	if value, exists := mustGet(t, database, "key-1"); !exists || string(value) != "fresh" {
		t.Errorf("Expected database to be usable after DeleteAll")
	}
}

func testKeys(t *testing.T, database db.UnitDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureDelete|db.FeatureKeys)

	keys, err := database.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected empty database to have no keys, got %v", keys)
	}

	expected := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("key-%02d", i)
		mustPut(t, database, key, []byte("v"))
		expected = append(expected, key)
	}

	// overwriting must not duplicate keys
	mustPut(t, database, "key-00", []byte("w"))

	if err := database.Delete("key-19"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	expected = expected[:19]

	keys, err = database.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	sort.Strings(keys)

	if len(keys) != len(expected) {
		t.Fatalf("Expected %d keys, got %d: %v", len(expected), len(keys), keys)
	}
	for i := range expected {
		if keys[i] != expected[i] {
			t.Errorf("Expected key %s at position %d, got %s", expected[i], i, keys[i])
		}
	}
}

func testInfo(t *testing.T, database db.UnitDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut)

	mustPut(t, database, "a", []byte("12345"))
	mustPut(t, database, "b", []byte("1234567890"))

	info := database.GetInfo()
	if info.UnitCount != 2 {
		t.Errorf("Expected UnitCount 2, got %d", info.UnitCount)
	}
	if info.SizeBytes < 15 {
		t.Errorf("Expected SizeBytes >= 15, got %d", info.SizeBytes)
	}
	if info.DbType == "" {
		t.Errorf("Expected DbType to be set")
	}

	for _, feature := range info.SupportedFeatures {
		if !database.SupportsFeature(feature) {
			t.Errorf("GetInfo lists %s but SupportsFeature denies it", feature)
		}
	}
}

func testClosed(t *testing.T, database db.UnitDB) {
	mustPut(t, database, "key", []byte("value"))

	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := database.Put("key", []byte("value")); err != db.ErrClosed {
		t.Errorf("Expected ErrClosed from Put, got %v", err)
	}
	if _, _, err := database.Get("key"); err != db.ErrClosed {
		t.Errorf("Expected ErrClosed from Get, got %v", err)
	}
	if err := database.Delete("key"); err != db.ErrClosed {
		t.Errorf("Expected ErrClosed from Delete, got %v", err)
	}
	if err := database.DeleteAll(); err != db.ErrClosed {
		t.Errorf("Expected ErrClosed from DeleteAll, got %v", err)
	}
	if _, err := database.Keys(); err != db.ErrClosed {
		t.Errorf("Expected ErrClosed from Keys, got %v", err)
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	defer database.Close()

	requireFeature(t, database, db.FeatureSnapshot)

	source, ok := database.(snapshotter)
	if !ok {
		t.Fatalf("Database advertises FeatureSnapshot but does not implement Save/Load")
	}

	for i := 0; i < 200; i++ {
		mustPut(t, database, fmt.Sprintf("key-%d", i), []byte(fmt.Sprintf("value-%d", i)))
	}

	var buf bytes.Buffer
	if err := source.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	restored := factory()
	defer restored.Close()

	if err := restored.(snapshotter).Load(&buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("key-%d", i)
		value, exists := mustGet(t, restored, key)
		if !exists {
			t.Errorf("Expected key %s to exist after Load", key)
			continue
		}
		if string(value) != fmt.Sprintf("value-%d", i) {
			t.Errorf("Unexpected value for %s after Load: %s", key, value)
		}
	}
}

func testEdgeCases(t *testing.T, database db.UnitDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	// empty value
	mustPut(t, database, "empty", []byte{})
	value, exists := mustGet(t, database, "empty")
	if !exists {
		t.Errorf("Expected empty value to be stored")
	}
	if len(value) != 0 {
		t.Errorf("Expected empty value, got %d bytes", len(value))
	}

	// nil value behaves like an empty value
	mustPut(t, database, "nil", nil)
	if _, exists := mustGet(t, database, "nil"); !exists {
		t.Errorf("Expected nil value to be stored")
	}

	// large value
	large := make([]byte, 4*1024*1024)
	for i := range large {
		large[i] = byte(i % 251)
	}
	mustPut(t, database, "large", large)
	value, exists = mustGet(t, database, "large")
	if !exists || !bytes.Equal(value, large) {
		t.Errorf("Large value was not stored correctly")
	}

	// hex style keys as used by the document store
	hexKey := "65f1c0de0a1b2c3d4e5f6071"
	mustPut(t, database, hexKey, []byte(`{"name":"Garfield"}`))
	if value, exists := mustGet(t, database, hexKey); !exists || string(value) != `{"name":"Garfield"}` {
		t.Errorf("Expected hex key to round-trip, got %s", value)
	}
}

// testAtomicReplace checks that readers never observe a mixed or empty value
// while a writer keeps replacing a unit.
func testAtomicReplace(t *testing.T, database db.UnitDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	size := 64 * 1024
	valueA := bytes.Repeat([]byte{'a'}, size)
	valueB := bytes.Repeat([]byte{'b'}, size)

	mustPut(t, database, "atomic", valueA)

	var (
		wg       sync.WaitGroup
		stop     atomic.Bool
		torn     atomic.Int32
		readErrs atomic.Int32
	)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				value, found, err := database.Get("atomic")
				if err != nil {
					readErrs.Add(1)
					continue
				}
				if !found || !(bytes.Equal(value, valueA) || bytes.Equal(value, valueB)) {
					torn.Add(1)
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		value := valueA
		if i%2 == 0 {
			value = valueB
		}
		if _, err := database.Put("atomic", value); err != nil {
			t.Errorf("Put failed: %v", err)
			break
		}
	}

	stop.Store(true)
	wg.Wait()

	if n := torn.Load(); n > 0 {
		t.Errorf("Readers observed %d torn or missing values", n)
	}
	if n := readErrs.Load(); n > 0 {
		t.Errorf("Readers observed %d errors", n)
	}
}

func testRealisticUsage(t *testing.T, database db.UnitDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureDelete)

	type operation struct {
		op    string
		key   string
		value []byte
	}

	numOperations := 2_000
	operations := make([]operation, numOperations)

	for i := 0; i < numOperations; i++ {
		var op string
		switch i % 10 {
		case 0, 1, 2, 3, 4, 5, 6:
			op = "put"
		case 7, 8:
			op = "get"
		case 9:
			op = "delete"
		}

		var key string
		if i%5 == 0 {
			key = fmt.Sprintf("hot-key-%d", i%50)
		} else {
			key = fmt.Sprintf("key-%d", i)
		}

		var value []byte
		if op == "put" {
			valueSize := 64
			if i%10 == 0 {
				valueSize = 1024
			}
			value = make([]byte, valueSize)
			for j := 0; j < valueSize; j++ {
				value[j] = byte((i + j) % 256)
			}
		}

		operations[i] = operation{op, key, value}
	}

	allKeys := make(map[string]bool)
	for _, op := range operations {
		allKeys[op.key] = true
	}

	numWorkers := 8
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	var errorCount atomic.Int32

	opsPerWorker := numOperations / numWorkers

	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()

			start := workerId * opsPerWorker
			end := start + opsPerWorker

			for i := start; i < end; i++ {
				op := operations[i]

				var err error
				switch op.op {
				case "put":
					_, err = database.Put(op.key, op.value)
				case "get":
					_, _, err = database.Get(op.key)
				case "delete":
					err = database.Delete(op.key)
				}
				if err != nil {
					errorCount.Add(1)
				}
			}
		}(w)
	}

	wg.Wait()

	if n := errorCount.Load(); n > 0 {
		t.Fatalf("Test had %d errors during parallel operations", n)
	}

	// after all writers are done the state must be stable
	for key := range allKeys {
		first, exists1 := mustGet(t, database, key)
		second, exists2 := mustGet(t, database, key)

		if exists1 != exists2 {
			t.Errorf("Consistency error: Key %s existence changed without writers", key)
			continue
		}
		if exists1 && !bytes.Equal(first, second) {
			t.Errorf("Value mismatch for key %s between reads", key)
		}
	}
}
