package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ValentinKolb/dDoc/lib/objectid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoveryAfterRestart(t *testing.T) {
	root := t.TempDir()

	server, err := Create(root, nil)
	require.NoError(t, err)

	c := cats(t, server)
	saved := make(map[objectid.ID]Cat)
	for i := 0; i < 50; i++ {
		cat, err := c.Save(Cat{Name: "cat", Legs: i})
		require.NoError(t, err)
		saved[cat.ID] = cat
	}
	require.NoError(t, server.Shutdown())

	restarted := newTestServer(t, root, nil)
	c = cats(t, restarted)

	assert.Equal(t, len(saved), count(t, c))
	for id, expected := range saved {
		found, ok, err := c.FindOneById(id)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, expected, found)
	}
}

func TestRecoverySkipsCorruptUnits(t *testing.T) {
	root := t.TempDir()

	server, err := Create(root, nil)
	require.NoError(t, err)
	good, err := cats(t, server).Save(Cat{Name: "Garfield", Legs: 4})
	require.NoError(t, err)
	require.NoError(t, server.Shutdown())

	dir := filepath.Join(root, "pets", "cats")
	corruptID := objectid.New()
	otherID := objectid.New()
	zeroID := objectid.New()

	// undecodable unit
	require.NoError(t, os.WriteFile(filepath.Join(dir, corruptID.Hex()+".doc"), []byte("{not json"), 0644))
	// unit name is not an identifier
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.doc"), []byte(`{"name":"x"}`), 0644))
	// identifier in the document disagrees with the unit name
	require.NoError(t, os.WriteFile(filepath.Join(dir, objectid.New().Hex()+".doc"),
		[]byte(`{"_id":"`+otherID.Hex()+`","name":"Impostor"}`), 0644))
	// document without identifier takes the one of the unit name
	require.NoError(t, os.WriteFile(filepath.Join(dir, zeroID.Hex()+".doc"), []byte(`{"name":"Nermal","legs":4}`), 0644))
	// leftover of an interrupted write
	require.NoError(t, os.WriteFile(filepath.Join(dir, objectid.New().Hex()+".doc.tmp-123"), []byte(`{"na`), 0644))

	var (
		mu      sync.Mutex
		reports []SkipReport
	)
	restarted := newTestServer(t, root, &Options{
		ScanWorkers: 2,
		OnSkip: func(r SkipReport) {
			mu.Lock()
			reports = append(reports, r)
			mu.Unlock()
		},
	})
	c := cats(t, restarted)

	assert.Equal(t, 2, count(t, c))

	found, ok, err := c.FindOneById(good.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, good, found)

	nermal, ok, err := c.FindOneById(zeroID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, zeroID, nermal.ID)

	require.Len(t, reports, 3)
	reasons := make(map[string]error)
	for _, r := range reports {
		assert.Equal(t, "pets", r.Database)
		assert.Equal(t, "cats", r.Collection)
		reasons[r.Key] = r.Reason
	}
	assert.True(t, IsSerializationError(reasons[corruptID.Hex()]))
	assert.ErrorIs(t, reasons["notes"], ErrSkipInvalidName)

	assert.Equal(t, uint64(3), restarted.SkippedCount("pets", "cats"))

	// the temp file was removed by the scan
	matches, _ := filepath.Glob(filepath.Join(dir, "*.tmp-*"))
	assert.Empty(t, matches)
}

func TestRecoveryOnMemoryFilesystem(t *testing.T) {
	fs := afero.NewMemMapFs()
	opts := &Options{Fs: fs}

	server, err := Create("/data", opts)
	require.NoError(t, err)
	saved, err := cats(t, server).Save(Cat{Name: "Garfield"})
	require.NoError(t, err)
	require.NoError(t, server.Shutdown())

	ok, err := afero.Exists(fs, "/data/pets/cats/"+saved.ID.Hex()+".doc")
	require.NoError(t, err)
	require.True(t, ok, "documents are stored as <root>/<database>/<collection>/<id>.doc")

	restarted := newTestServer(t, "/data", opts)
	found, ok, err := cats(t, restarted).FindOneById(saved.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, saved, found)
}
