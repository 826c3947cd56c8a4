package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEncryptionKeys(t *testing.T) {
	keys, current, err := parseEncryptionKeys("k1:aaaa,*k2:bbbb")
	require.NoError(t, err)
	assert.Equal(t, "k2", current)
	assert.Equal(t, "aaaa", keys["k1"])
	assert.Equal(t, "bbbb", keys["k2"])
}

func TestParseEncryptionKeysEmpty(t *testing.T) {
	keys, current, err := parseEncryptionKeys("")
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Empty(t, current)
}

func TestParseEncryptionKeysNoCurrent(t *testing.T) {
	_, _, err := parseEncryptionKeys("k1:aaaa")
	assert.Error(t, err)
}

func TestParseEncryptionKeysMalformed(t *testing.T) {
	_, _, err := parseEncryptionKeys("not-a-pair")
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"/auth", "/health"}, splitList(" /auth , /health ,"))
	assert.Nil(t, splitList(""))
}
