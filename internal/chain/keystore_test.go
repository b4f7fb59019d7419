package chain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestLoadKeystore(t *testing.T) {
	t.Parallel()

	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	key := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(priv.PublicKey),
		PrivateKey: priv,
	}
	data, err := keystore.EncryptKey(key, "hunter2", keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "keeper.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	got, err := LoadKeystore(path, "hunter2")
	require.NoError(t, err)
	require.Equal(t, key.Address, crypto.PubkeyToAddress(got.PublicKey))

	_, err = LoadKeystore(path, "wrong")
	require.Error(t, err)
}

func TestParsePrivateKey(t *testing.T) {
	t.Parallel()

	const hexKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	a, err := ParsePrivateKey(hexKey)
	require.NoError(t, err)
	b, err := ParsePrivateKey("0x" + hexKey + "\n")
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(a.PublicKey), crypto.PubkeyToAddress(b.PublicKey))

	_, err = ParsePrivateKey("  ")
	require.Error(t, err)
	_, err = ParsePrivateKey("zz")
	require.Error(t, err)
}
