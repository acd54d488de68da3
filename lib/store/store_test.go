package store

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/ValentinKolb/dDoc/lib/db/engines/maple"
	"github.com/ValentinKolb/dDoc/lib/objectid"
	"github.com/ValentinKolb/dDoc/lib/serializer"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Test documents
// --------------------------------------------------------------------------

type Cat struct {
	ID   objectid.ID `json:"_id"`
	Name string      `json:"name"`
	Legs int         `json:"legs"`
}

func (c *Cat) GetID() objectid.ID   { return c.ID }
func (c *Cat) SetID(id objectid.ID) { c.ID = id }

type Dog struct {
	ID    objectid.ID `json:"_id"`
	Breed string      `json:"breed"`
}

func (d *Dog) GetID() objectid.ID   { return d.ID }
func (d *Dog) SetID(id objectid.ID) { d.ID = id }

// Unencodable can not be serialized by the JSON codec
type Unencodable struct {
	ID objectid.ID `json:"_id"`
	C  chan int    `json:"c"`
}

func (u *Unencodable) GetID() objectid.ID   { return u.ID }
func (u *Unencodable) SetID(id objectid.ID) { u.ID = id }

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func newTestServer(t *testing.T, root string, opts *Options) *Server {
	t.Helper()
	if root == "" {
		root = t.TempDir()
	}
	server, err := Create(root, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Shutdown() })
	return server
}

func cats(t *testing.T, server *Server) *Collection[Cat, *Cat] {
	t.Helper()
	database, err := server.GetDatabase("pets")
	require.NoError(t, err)
	c, err := GetCollection[Cat](database, "cats")
	require.NoError(t, err)
	return c
}

func findAll(t *testing.T, c *Collection[Cat, *Cat]) []Cat {
	t.Helper()
	seq, err := c.FindAll()
	require.NoError(t, err)
	return slices.Collect(seq)
}

func count(t *testing.T, c *Collection[Cat, *Cat]) int {
	t.Helper()
	n, err := c.Count()
	require.NoError(t, err)
	return n
}

// --------------------------------------------------------------------------
// Collection behavior
// --------------------------------------------------------------------------

func TestGarfieldScenario(t *testing.T) {
	c := cats(t, newTestServer(t, "", nil))

	saved, err := c.Save(Cat{Name: "Garfield", Legs: 4})
	require.NoError(t, err)
	require.False(t, saved.ID.IsZero())

	found, ok, err := c.FindOneById(saved.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Cat{ID: saved.ID, Name: "Garfield", Legs: 4}, found)

	require.NoError(t, c.Remove(saved.ID))
	assert.Empty(t, findAll(t, c))
	assert.Equal(t, 0, count(t, c))
}

func TestSaveLastWriteWins(t *testing.T) {
	c := cats(t, newTestServer(t, "", nil))

	first, err := c.Save(Cat{Name: "Garfield", Legs: 4})
	require.NoError(t, err)

	_, err = c.Save(Cat{ID: first.ID, Name: "Garfield", Legs: 3})
	require.NoError(t, err)

	found, ok, err := c.FindOneById(first.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, found.Legs)
	assert.Equal(t, 1, count(t, c))
}

func TestSaveWithGivenIdentifier(t *testing.T) {
	c := cats(t, newTestServer(t, "", nil))

	id := objectid.MustFromHex("65f1c0de0a1b2c3d4e5f6071")
	saved, err := c.Save(Cat{ID: id, Name: "Arlene"})
	require.NoError(t, err)
	assert.Equal(t, id, saved.ID)

	found, ok, err := c.FindOneById(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Arlene", found.Name)
}

func TestSaveAssignsUniqueIdentifiers(t *testing.T) {
	c := cats(t, newTestServer(t, "", nil))

	seen := make(map[objectid.ID]bool)
	for i := 0; i < 200; i++ {
		saved, err := c.Save(Cat{Name: fmt.Sprintf("cat-%d", i)})
		require.NoError(t, err)
		require.False(t, saved.ID.IsZero())
		require.False(t, seen[saved.ID], "identifier %s was assigned twice", saved.ID)
		seen[saved.ID] = true
	}
	assert.Equal(t, 200, count(t, c))
}

// Absence is reported through the boolean, not as an error.
// A NotFound error would be an equally valid contract, this test pins the chosen one.
func TestFindOneByIdAbsentIsNotAnError(t *testing.T) {
	c := cats(t, newTestServer(t, "", nil))

	found, ok, err := c.FindOneById(objectid.New())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Cat{}, found)

	found, ok, err = c.FindOneById(objectid.Nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Cat{}, found)
}

func TestRemove(t *testing.T) {
	c := cats(t, newTestServer(t, "", nil))

	a, err := c.Save(Cat{Name: "Garfield"})
	require.NoError(t, err)
	b, err := c.Save(Cat{Name: "Nermal"})
	require.NoError(t, err)
	require.Equal(t, 2, count(t, c))

	require.NoError(t, c.Remove(a.ID))
	assert.Equal(t, 1, count(t, c))

	_, ok, err := c.FindOneById(a.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// removing a missing document is a no-op
	require.NoError(t, c.Remove(a.ID))
	require.NoError(t, c.Remove(objectid.New()))
	assert.Equal(t, 1, count(t, c))

	_, ok, err = c.FindOneById(b.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRemoveAllKeepsCollectionUsable(t *testing.T) {
	c := cats(t, newTestServer(t, "", nil))

	for i := 0; i < 20; i++ {
		_, err := c.Save(Cat{Name: fmt.Sprintf("cat-%d", i)})
		require.NoError(t, err)
	}

	require.NoError(t, c.RemoveAll())
	assert.Equal(t, 0, count(t, c))
	assert.Empty(t, findAll(t, c))

	saved, err := c.Save(Cat{Name: "Pooky"})
	require.NoError(t, err)

	found, ok, err := c.FindOneById(saved.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Pooky", found.Name)
	assert.Equal(t, 1, count(t, c))
}

func TestFindAllIsOrderedAndRestartable(t *testing.T) {
	c := cats(t, newTestServer(t, "", nil))

	var ids []objectid.ID
	for i := 0; i < 10; i++ {
		saved, err := c.Save(Cat{Name: fmt.Sprintf("cat-%d", i)})
		require.NoError(t, err)
		ids = append(ids, saved.ID)
	}
	slices.SortFunc(ids, objectid.ID.Compare)

	seq, err := c.FindAll()
	require.NoError(t, err)

	for round := 0; round < 2; round++ {
		var got []objectid.ID
		for cat := range seq {
			got = append(got, cat.ID)
		}
		assert.Equal(t, ids, got, "round %d", round)
	}

	// early stop
	n := 0
	for range seq {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestFindAllUsesSnapshot(t *testing.T) {
	c := cats(t, newTestServer(t, "", nil))

	a, err := c.Save(Cat{Name: "a"})
	require.NoError(t, err)
	_, err = c.Save(Cat{Name: "b"})
	require.NoError(t, err)

	seq, err := c.FindAll()
	require.NoError(t, err)

	// removed documents are left out, documents added later are not part of the snapshot
	require.NoError(t, c.Remove(a.ID))
	_, err = c.Save(Cat{Name: "c"})
	require.NoError(t, err)

	var names []string
	for cat := range seq {
		names = append(names, cat.Name)
	}
	assert.Equal(t, []string{"b"}, names)
}

func TestUnencodableDocument(t *testing.T) {
	server := newTestServer(t, "", nil)
	database, err := server.GetDatabase("pets")
	require.NoError(t, err)
	c, err := GetCollection[Unencodable](database, "broken")
	require.NoError(t, err)

	_, err = c.Save(Unencodable{C: make(chan int)})
	require.Error(t, err)
	assert.True(t, IsSerializationError(err))
	assert.False(t, IsConnectionError(err))

	n, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCorruptDocumentAfterOpen(t *testing.T) {
	fs := afero.NewMemMapFs()
	var skipped []SkipReport
	var mu sync.Mutex

	server := newTestServer(t, "/root", &Options{
		Fs: fs,
		OnSkip: func(r SkipReport) {
			mu.Lock()
			skipped = append(skipped, r)
			mu.Unlock()
		},
	})
	c := cats(t, server)

	good, err := c.Save(Cat{Name: "Garfield"})
	require.NoError(t, err)
	bad, err := c.Save(Cat{Name: "Odie"})
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fs, "/root/pets/cats/"+bad.ID.Hex()+".doc", []byte("{broken"), 0644))

	_, ok, err := c.FindOneById(bad.ID)
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, IsSerializationError(err))

	all := findAll(t, c)
	require.Len(t, all, 1)
	assert.Equal(t, good.ID, all[0].ID)

	require.Len(t, skipped, 1)
	assert.Equal(t, bad.ID.Hex(), skipped[0].Key)
	assert.True(t, IsSerializationError(skipped[0].Reason))
}

func TestCollectionInfo(t *testing.T) {
	c := cats(t, newTestServer(t, "", nil))

	_, err := c.Save(Cat{Name: "Garfield"})
	require.NoError(t, err)

	info, err := c.Info()
	require.NoError(t, err)
	assert.Equal(t, "pets", info.Database)
	assert.Equal(t, "cats", info.Name)
	assert.Equal(t, 1, info.Count)
	assert.Equal(t, "json", info.Serializer)
	assert.Equal(t, 1, info.Engine.UnitCount)
	assert.Equal(t, "cats", c.Name())
}

// --------------------------------------------------------------------------
// Database and server behavior
// --------------------------------------------------------------------------

func TestHandlesAreCached(t *testing.T) {
	server := newTestServer(t, "", nil)

	db1, err := server.GetDatabase("pets")
	require.NoError(t, err)
	db2, err := server.GetDatabase("pets")
	require.NoError(t, err)
	assert.Same(t, db1, db2)
	assert.Equal(t, "pets", db1.Name())

	c1, err := GetCollection[Cat](db1, "cats")
	require.NoError(t, err)
	c2, err := GetCollection[Cat](db2, "cats")
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	assert.Equal(t, []string{"pets"}, server.DatabaseNames())
	assert.Equal(t, []string{"cats"}, db1.CollectionNames())
}

func TestConcurrentGetCollectionCreatesOneHandle(t *testing.T) {
	server := newTestServer(t, "", nil)
	database, err := server.GetDatabase("pets")
	require.NoError(t, err)

	const n = 32
	handles := make([]*Collection[Cat, *Cat], n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := GetCollection[Cat](database, "cats")
			assert.NoError(t, err)
			handles[i] = c
		}()
	}
	wg.Wait()

	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
	assert.Equal(t, uint64(1), server.OpCount("pets", "cats", opOpen))
}

func TestGetCollectionTypeMismatch(t *testing.T) {
	server := newTestServer(t, "", nil)
	database, err := server.GetDatabase("pets")
	require.NoError(t, err)

	_, err = GetCollection[Cat](database, "animals")
	require.NoError(t, err)

	_, err = GetCollection[Dog](database, "animals")
	require.Error(t, err)
	assert.True(t, IsInvalidOperation(err))

	// the original handle is still usable
	_, err = GetCollection[Cat](database, "animals")
	require.NoError(t, err)
}

func TestInvalidNames(t *testing.T) {
	server := newTestServer(t, "", nil)

	for _, name := range []string{"", ".", "..", "a/b", `a\b`, `a"b`, "a\nb"} {
		_, err := server.GetDatabase(name)
		assert.True(t, IsInvalidOperation(err), "database name %q", name)
	}

	database, err := server.GetDatabase("pets")
	require.NoError(t, err)
	for _, name := range []string{"", "..", "x/y"} {
		_, err := GetCollection[Cat](database, name)
		assert.True(t, IsInvalidOperation(err), "collection name %q", name)
	}
}

func TestCollectionsAreIndependent(t *testing.T) {
	server := newTestServer(t, "", nil)
	database, err := server.GetDatabase("pets")
	require.NoError(t, err)

	catsC, err := GetCollection[Cat](database, "cats")
	require.NoError(t, err)
	dogs, err := GetCollection[Dog](database, "dogs")
	require.NoError(t, err)

	_, err = catsC.Save(Cat{Name: "Garfield"})
	require.NoError(t, err)
	_, err = dogs.Save(Dog{Breed: "Beagle"})
	require.NoError(t, err)

	require.NoError(t, dogs.RemoveAll())
	assert.Equal(t, 1, count(t, catsC))

	other, err := server.GetDatabase("zoo")
	require.NoError(t, err)
	zooCats, err := GetCollection[Cat](other, "cats")
	require.NoError(t, err)
	assert.Equal(t, 0, count(t, zooCats))
}

func TestConcurrentAccess(t *testing.T) {
	c := cats(t, newTestServer(t, "", nil))

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker*3)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				saved, err := c.Save(Cat{Name: fmt.Sprintf("w%d-%d", w, i), Legs: 4})
				if err != nil {
					errs <- err
					continue
				}
				found, ok, err := c.FindOneById(saved.ID)
				if err != nil || !ok || found.Name != saved.Name {
					errs <- fmt.Errorf("read back %s: ok=%v err=%v", saved.ID, ok, err)
				}
				if i%5 == 0 {
					if err := c.Remove(saved.ID); err != nil {
						errs <- err
					}
				}
				if _, err := c.Count(); err != nil {
					errs <- err
				}
			}
		}()
	}

	// concurrent readers
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				seq, err := c.FindAll()
				if err != nil {
					errs <- err
					continue
				}
				for cat := range seq {
					if cat.Legs != 4 {
						errs <- errors.New("torn document " + cat.Name)
					}
				}
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	assert.Equal(t, workers*(perWorker-perWorker/5), count(t, c))
}

func TestMetrics(t *testing.T) {
	server := newTestServer(t, "", nil)
	c := cats(t, server)

	for i := 0; i < 3; i++ {
		_, err := c.Save(Cat{Name: "Garfield"})
		require.NoError(t, err)
	}
	_, _, _ = c.FindOneById(objectid.New())

	assert.Equal(t, uint64(3), server.OpCount("pets", "cats", opSave))
	assert.Equal(t, uint64(1), server.OpCount("pets", "cats", opFindOne))

	var sb strings.Builder
	server.WriteMetrics(&sb)
	assert.Contains(t, sb.String(), `ddoc_ops_total{db="pets",collection="cats",op="save"} 3`)
}

func TestErrorsIs(t *testing.T) {
	err := wrapError(RetCConnectionError, errors.New("disk full"), "failed to write")
	assert.True(t, errors.Is(err, ErrConnection))
	assert.False(t, errors.Is(err, ErrSerialization))
	assert.Contains(t, err.Error(), "ConnectionError")
	assert.Contains(t, err.Error(), "disk full")

	var storeErr *Error
	require.True(t, errors.As(fmt.Errorf("outer: %w", err), &storeErr))
	assert.Equal(t, RetCConnectionError, storeErr.Code)
}

// --------------------------------------------------------------------------
// Engines and serializers
// --------------------------------------------------------------------------

func TestMapleEngine(t *testing.T) {
	fs := afero.NewMemMapFs()
	opts := &Options{Fs: fs, Engine: maple.NewFactory(&maple.DBOptions{Fs: fs})}

	server, err := Create("/mem", opts)
	require.NoError(t, err)
	c := cats(t, server)

	saved, err := c.Save(Cat{Name: "Garfield", Legs: 4})
	require.NoError(t, err)
	require.NoError(t, server.Shutdown())

	// the snapshot written on shutdown is restored on the next open
	restarted := newTestServer(t, "/mem", opts)
	c = cats(t, restarted)
	found, ok, err := c.FindOneById(saved.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Garfield", found.Name)
}

func TestCompressedSerializers(t *testing.T) {
	for _, compression := range []string{serializer.CompressionZSTD, serializer.CompressionLZ4} {
		t.Run(compression, func(t *testing.T) {
			codec, err := serializer.ByName("json", compression)
			require.NoError(t, err)

			root := t.TempDir()
			server, err := Create(root, &Options{Serializer: codec})
			require.NoError(t, err)

			saved, err := cats(t, server).Save(Cat{Name: strings.Repeat("Garfield ", 100)})
			require.NoError(t, err)
			require.NoError(t, server.Shutdown())

			restarted := newTestServer(t, root, &Options{Serializer: codec})
			found, ok, err := cats(t, restarted).FindOneById(saved.ID)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, saved, found)
		})
	}
}

// removeLimitFs fails every Remove once its budget is used up
type removeLimitFs struct {
	afero.Fs
	mu     sync.Mutex
	budget int
}

func (f *removeLimitFs) setBudget(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.budget = n
}

func (f *removeLimitFs) Remove(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.budget <= 0 {
		return errors.New("remove failed")
	}
	f.budget--
	return f.Fs.Remove(name)
}

func TestRemoveAllPartialFailureKeepsIndexConsistent(t *testing.T) {
	fs := &removeLimitFs{Fs: afero.NewMemMapFs(), budget: 1 << 20}
	server := newTestServer(t, "/partial", &Options{Fs: fs})
	c := cats(t, server)

	for i := 0; i < 5; i++ {
		_, err := c.Save(Cat{Name: fmt.Sprintf("cat-%d", i), Legs: 4})
		require.NoError(t, err)
	}

	fs.setBudget(2)
	err := c.RemoveAll()
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))

	remaining := findAll(t, c)
	assert.Len(t, remaining, 3)
	assert.Equal(t, len(remaining), count(t, c))
	for _, cat := range remaining {
		_, ok, err := c.FindOneById(cat.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	fs.setBudget(1 << 20)
	require.NoError(t, c.RemoveAll())
	assert.Equal(t, 0, count(t, c))
}
