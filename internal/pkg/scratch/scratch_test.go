package scratch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir_RemovedOnClose(t *testing.T) {
	d, err := New("idv-test-")
	require.NoError(t, err)
	root := d.Path()

	p, err := d.Write("../escape.png", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, root, filepath.Dir(p), "names are confined to the dir")

	_, err = d.Write("roi.png", []byte("y"))
	require.NoError(t, err)

	require.NoError(t, d.Close())
	_, err = os.Stat(root)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, d.Close())
}

func TestDir_NilClose(t *testing.T) {
	var d *Dir
	assert.NoError(t, d.Close())
}
