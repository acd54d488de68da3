package util

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ValentinKolb/dDoc/lib/common"
	"github.com/ValentinKolb/dDoc/lib/objectid"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "", WrapString(""))
}

func TestGetStoreOptions(t *testing.T) {
	conf := common.DefaultStoreConfig(t.TempDir())
	conf.Compression = "zstd"

	root, opts, err := GetStoreOptions(conf)
	require.NoError(t, err)
	assert.Equal(t, conf.RootDir, root)
	assert.Equal(t, "json+zstd", opts.Serializer.Name())
	assert.NotNil(t, opts.Engine)

	conf.Serializer = "yaml"
	_, _, err = GetStoreOptions(conf)
	assert.Error(t, err)
}

func TestMemoryOnlyMaple(t *testing.T) {
	conf := common.DefaultStoreConfig("")
	conf.Engine = common.EngineMaple
	require.NoError(t, conf.Validate())

	root, opts, err := GetStoreOptions(conf)
	require.NoError(t, err)
	assert.Equal(t, memoryRoot, root)

	server, err := store.Create(root, opts)
	require.NoError(t, err)
	defer server.Shutdown()

	database, err := server.GetDatabase("default")
	require.NoError(t, err)
	c, err := store.GetCollection[Document](database, "documents")
	require.NoError(t, err)

	saved, err := c.Save(Document{Data: json.RawMessage(`{"name":"Garfield"}`)})
	require.NoError(t, err)
	found, ok, err := c.FindOneById(saved.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"Garfield"}`, string(found.Data))
}

func TestDocumentJSON(t *testing.T) {
	id := objectid.New()
	doc := Document{ID: id, Data: json.RawMessage(`{"legs":4}`)}

	b, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"_id":"`+id.Hex()+`","data":{"legs":4}}`, string(b))
}
