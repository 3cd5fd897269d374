package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, normalizeLimit(0))
	assert.Equal(t, DefaultListLimit, normalizeLimit(-5))
	assert.Equal(t, DefaultListLimit, normalizeLimit(5000))
	assert.Equal(t, 25, normalizeLimit(25))
}

func TestIndexesTargetKnownCollections(t *testing.T) {
	known := map[string]bool{
		ItemCollection:        true,
		CheckSourceCollection: true,
		VersionLogCollection:  true,
	}

	names := map[string]bool{}
	for _, idx := range indexes {
		assert.True(t, known[idx.Collection], idx.IdxName)
		assert.NotEmpty(t, idx.Fields, idx.IdxName)
		assert.False(t, names[idx.IdxName], "duplicate index %s", idx.IdxName)
		names[idx.IdxName] = true
	}
}
