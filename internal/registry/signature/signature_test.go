package signature

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idregistry/internal/registry/models"
	id "idregistry/pkg/domain"
)

const (
	testKey     = "0xd49743deccbccc5dc7baa8e69e5be03298da8688a15dd202e20f15d5e0e9a9fb"
	testAddress = "0xeAD9C93b79Ae7C1591b1FB5323BD777E86e150d4"
	testTime    = uint64(1_600_000_000)
)

func mustContext(t *testing.T) id.AttestationContext {
	t.Helper()
	ctx, err := id.ContextFromString("1hive")
	require.NoError(t, err)
	return ctx
}

func TestMessageHash(t *testing.T) {
	ctx := mustContext(t)
	user := id.MustParseAddress(testAddress)
	other := id.MustParseAddress("0x0000000000000000000000000000000000000001")

	tests := []struct {
		name  string
		addrs []id.Address
		want  string
	}{
		{"single address", []id.Address{user}, "eb21a2722ec36365366815025b8ea1a4f5dcf9e82581de023ff30b7b89ffdbd4"},
		{"two addresses", []id.Address{user, other}, "7dd9c8de3aded6908e55112167a5f97e83ad02122269d79499e844218194b232"},
		{"no addresses", nil, "6c5b0a12898f7610356bb1267ab1cf5bf34919aea54eb2d57b7644830b721a0c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MessageHash(ctx, tt.addrs, testTime)
			assert.Equal(t, tt.want, hex.EncodeToString(got[:]))
		})
	}

	t.Run("order matters", func(t *testing.T) {
		a := MessageHash(ctx, []id.Address{user, other}, testTime)
		b := MessageHash(ctx, []id.Address{other, user}, testTime)
		assert.NotEqual(t, a, b)
	})

	t.Run("matches go-ethereum keccak over the packed encoding", func(t *testing.T) {
		packed := make([]byte, 0, 96)
		packed = append(packed, ctx[:]...)
		packed = append(packed, make([]byte, 12)...)
		packed = append(packed, user[:]...)
		ts := make([]byte, 32)
		ts[28], ts[29], ts[30], ts[31] = 0x5f, 0x5e, 0x10, 0x00
		packed = append(packed, ts...)

		got := MessageHash(ctx, []id.Address{user}, testTime)
		assert.Equal(t, crypto.Keccak256(packed), got[:])
	})
}

func TestSignAndRecover(t *testing.T) {
	key, err := ParseKey(testKey)
	require.NoError(t, err)
	assert.Equal(t, id.MustParseAddress(testAddress), AddressOf(key))

	ctx := mustContext(t)
	hash := MessageHash(ctx, []id.Address{AddressOf(key)}, testTime)

	sig, err := Sign(hash, key)
	require.NoError(t, err)
	assert.Contains(t, []uint8{27, 28}, sig.V)

	signer, err := Recover(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, AddressOf(key), signer)

	t.Run("different message recovers a different signer", func(t *testing.T) {
		other := MessageHash(ctx, []id.Address{AddressOf(key)}, testTime+1)
		got, err := Recover(other, sig)
		require.NoError(t, err)
		assert.NotEqual(t, AddressOf(key), got)
	})
}

func TestSubmissionHash(t *testing.T) {
	ctx := mustContext(t)
	user := id.MustParseAddress(testAddress)
	receiver := id.MustParseAddress("0x00000000000000000000000000000000000000cc")
	base := SubmissionHash(ctx, []id.Address{user}, []uint64{testTime}, receiver, []byte{1})

	t.Run("differs from the attestation digest", func(t *testing.T) {
		assert.NotEqual(t, MessageHash(ctx, []id.Address{user}, testTime), base)
	})

	tests := []struct {
		name string
		got  Hash
	}{
		{"other address list", SubmissionHash(ctx, []id.Address{user, receiver}, []uint64{testTime}, receiver, []byte{1})},
		{"other timestamps", SubmissionHash(ctx, []id.Address{user}, []uint64{testTime + 1}, receiver, []byte{1})},
		{"other receiver", SubmissionHash(ctx, []id.Address{user}, []uint64{testTime}, id.Address{}, []byte{1})},
		{"other payload", SubmissionHash(ctx, []id.Address{user}, []uint64{testTime}, receiver, []byte{2})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, tt.got)
		})
	}

	t.Run("submit recovers the submitter", func(t *testing.T) {
		key, err := ParseKey(testKey)
		require.NoError(t, err)
		req := &models.RegisterRequest{
			Addresses:  []id.Address{AddressOf(key)},
			Timestamps: []uint64{testTime},
			Receiver:   receiver,
			Payload:    []byte("hello"),
		}
		sig, err := Submit(ctx, req, key)
		require.NoError(t, err)

		signer, err := Recover(SubmissionHash(ctx, req.Addresses, req.Timestamps, req.Receiver, req.Payload), sig)
		require.NoError(t, err)
		assert.Equal(t, AddressOf(key), signer)
	})
}

func TestRecoverRejectsMalformedSignatures(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hash := MessageHash(mustContext(t), nil, testTime)
	good, err := Sign(hash, key)
	require.NoError(t, err)

	highS := good
	// secp256k1 order minus one is above half the order.
	copy(highS.S[:], mustHex(t, "fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364140"))

	tests := []struct {
		name string
		sig  models.Signature
	}{
		{"recovery id zero", func() models.Signature { s := good; s.V = 0; return s }()},
		{"recovery id 29", func() models.Signature { s := good; s.V = 29; return s }()},
		{"zero r", func() models.Signature { s := good; s.R = [32]byte{}; return s }()},
		{"high s", highS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Recover(hash, tt.sig)
			require.Error(t, err)
			assert.True(t, models.HasReason(err, models.ReasonInvalidSignature))
		})
	}
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}
