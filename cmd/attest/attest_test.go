package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idregistry/internal/platform/admintoken"
	"idregistry/internal/registry/handler"
	"idregistry/internal/registry/models"
	"idregistry/internal/registry/signature"
	id "idregistry/pkg/domain"
)

const older = "0x0000000000000000000000000000000000000002"

// submitter returns the key of the address that will submit, and its hex form.
func submitter(t *testing.T) (string, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return hexutil.Encode(crypto.FromECDSA(key)), signature.AddressOf(key).Hex()
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func signWith(t *testing.T, dir, subject string, n int, ts string) (string, id.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	out, err := execute(t, "", "sign",
		"--key", hexutil.Encode(crypto.FromECDSA(key)),
		"--timestamp", ts,
		"--address", subject,
		"--address", older,
	)
	require.NoError(t, err)

	path := filepath.Join(dir, "att"+string(rune('0'+n))+".json")
	require.NoError(t, os.WriteFile(path, []byte(out), 0o600))
	return path, signature.AddressOf(key)
}

func TestSignAndMerge(t *testing.T) {
	dir := t.TempDir()
	submitterKey, subject := submitter(t)
	p1, v1 := signWith(t, dir, subject, 1, "1600000000")
	p2, v2 := signWith(t, dir, subject, 2, "1600000005")

	out, err := execute(t, "", "merge", p1, p2, "--key", submitterKey,
		"--receiver", "0x00000000000000000000000000000000000000bb", "--payload", "0xcafe")
	require.NoError(t, err)

	var body handler.RegisterRequest
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	require.NoError(t, body.Validate())
	assert.Equal(t, []uint64{1600000000, 1600000005}, body.Timestamps)
	assert.Equal(t, "0xcafe", body.Payload)

	req := body.Domain()
	attCtx, err := id.ContextFromString("1hive")
	require.NoError(t, err)

	caller, err := signature.Recover(signature.SubmissionHash(attCtx, req.Addresses, req.Timestamps, req.Receiver, req.Payload), req.CallerSignature)
	require.NoError(t, err)
	assert.Equal(t, id.MustParseAddress(subject), caller)

	for i, want := range []id.Address{v1, v2} {
		hash := signature.MessageHash(attCtx, req.Addresses, req.Timestamps[i])
		got, err := signature.Recover(hash, models.Signature{V: req.V[i], R: req.R[i], S: req.S[i]})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestMergeRejectsMismatches(t *testing.T) {
	dir := t.TempDir()
	submitterKey, subject := submitter(t)
	p1, _ := signWith(t, dir, subject, 1, "1600000000")

	t.Run("same verifier twice", func(t *testing.T) {
		_, err := execute(t, "", "merge", p1, p1, "--key", submitterKey)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "repeats verifier")
	})

	t.Run("different address list", func(t *testing.T) {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		other, err := execute(t, "", "sign", "--key", hexutil.Encode(crypto.FromECDSA(key)), "--address", subject)
		require.NoError(t, err)

		_, err = execute(t, other, "merge", p1, "-", "--key", submitterKey)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "different address list")
	})

	t.Run("key does not control the first address", func(t *testing.T) {
		otherKey, _ := submitter(t)
		_, err := execute(t, "", "merge", p1, "--key", otherKey)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "first listed address")
	})

	t.Run("no submitter key", func(t *testing.T) {
		t.Setenv("SUBMITTER_KEY", "")
		_, err := execute(t, "", "merge", p1)
		require.Error(t, err)
	})
}

func TestSignRequiresKeyAndAddress(t *testing.T) {
	t.Setenv("VERIFIER_KEY", "")
	_, err := execute(t, "", "sign", "--address", older)
	require.Error(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, err = execute(t, "", "sign", "--key", hexutil.Encode(crypto.FromECDSA(key)))
	require.Error(t, err)
}

func TestAdminToken(t *testing.T) {
	out, err := execute(t, "", "admin-token", "--signing-key", "k", "--subject", "ops@example.org", "--ttl", "10m")
	require.NoError(t, err)

	claims, err := admintoken.NewService("k", "idregistry", "idregistry-admin").Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops@example.org", claims.Subject)
	assert.True(t, claims.Has("update_settings"))
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), claims.ExpiresAt.Time, time.Minute)
}
