package signer

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

// unsignedTransfer builds a serialized transfer with no signatures attached.
func unsignedTransfer(t *testing.T, payer, from solana.PublicKey) []byte {
	t.Helper()
	to := newKey(t).PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1000, from, to).Build()},
		solana.Hash{},
		solana.TransactionPayer(payer),
	)
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func verify(t *testing.T, signed *Signed, index int, pub solana.PublicKey) {
	t.Helper()
	tx, err := Decode(signed.Raw)
	require.NoError(t, err)
	require.Greater(t, len(tx.Signatures), index)

	msg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	sig := tx.Signatures[index]
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig[:]))
	assert.Equal(t, sig.String(), signed.Signature)
}

func TestSigner_SignsAsFeePayer(t *testing.T) {
	key := newKey(t)
	raw := unsignedTransfer(t, key.PublicKey(), key.PublicKey())

	signed, err := New(key).Sign(raw)
	require.NoError(t, err)
	verify(t, signed, 0, key.PublicKey())
}

func TestSigner_PlacesSignatureAtSignerIndex(t *testing.T) {
	operator := newKey(t)
	payer := newKey(t)
	raw := unsignedTransfer(t, payer.PublicKey(), operator.PublicKey())

	signed, err := New(operator).Sign(raw)
	require.NoError(t, err)
	verify(t, signed, 1, operator.PublicKey())

	tx, err := Decode(signed.Raw)
	require.NoError(t, err)
	assert.Equal(t, solana.Signature{}, tx.Signatures[0], "other signer slot must stay empty")
}

func TestSigner_PreservesMessageBytes(t *testing.T) {
	key := newKey(t)
	raw := unsignedTransfer(t, key.PublicKey(), key.PublicKey())

	before, err := Decode(raw)
	require.NoError(t, err)
	beforeMsg, err := before.Message.MarshalBinary()
	require.NoError(t, err)

	signed, err := New(key).Sign(raw)
	require.NoError(t, err)

	after, err := Decode(signed.Raw)
	require.NoError(t, err)
	afterMsg, err := after.Message.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, beforeMsg, afterMsg)
}

func TestSigner_VersionedMessage(t *testing.T) {
	key := newKey(t)
	to := newKey(t).PublicKey()
	table := newKey(t).PublicKey()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1000, key.PublicKey(), to).Build()},
		solana.Hash{},
		solana.TransactionPayer(key.PublicKey()),
		solana.TransactionAddressTables(map[solana.PublicKey]solana.PublicKeySlice{
			table: {to},
		}),
	)
	require.NoError(t, err)
	require.True(t, tx.Message.IsVersioned())
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	before, err := Decode(raw)
	require.NoError(t, err)
	beforeMsg, err := before.Message.MarshalBinary()
	require.NoError(t, err)

	signed, err := New(key).Sign(raw)
	require.NoError(t, err)
	verify(t, signed, 0, key.PublicKey())

	after, err := Decode(signed.Raw)
	require.NoError(t, err)
	assert.True(t, after.Message.IsVersioned())
	require.Len(t, after.Message.AddressTableLookups, 1)
	assert.Equal(t, table, after.Message.AddressTableLookups[0].AccountKey)

	afterMsg, err := after.Message.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, beforeMsg, afterMsg)
}

func TestSigner_NotARequiredSigner(t *testing.T) {
	payer := newKey(t)
	raw := unsignedTransfer(t, payer.PublicKey(), payer.PublicKey())

	_, err := New(newKey(t)).Sign(raw)

	var signErr *SignError
	require.True(t, errors.As(err, &signErr))
}

func TestSigner_MalformedPayload(t *testing.T) {
	s := New(newKey(t))

	for _, raw := range [][]byte{nil, {0x01}, []byte("not a transaction")} {
		_, err := s.Sign(raw)
		var dErr *DeserializationError
		assert.True(t, errors.As(err, &dErr), "payload %q", raw)
	}
}

func TestParsePrivateKey_Base58(t *testing.T) {
	key := newKey(t)

	parsed, err := ParsePrivateKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), parsed.PublicKey())
}

func TestParsePrivateKey_ByteArray(t *testing.T) {
	key := newKey(t)
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	require.NoError(t, err)

	parsed, err := ParsePrivateKey(" " + string(data) + "\n")
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), parsed.PublicKey())
}

func TestParsePrivateKey_Invalid(t *testing.T) {
	key := newKey(t)
	mismatched := append(solana.PrivateKey{}, key...)
	other := newKey(t).PublicKey()
	copy(mismatched[32:], other[:])

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"bad base58", "0OIl"},
		{"short", "[1,2,3]"},
		{"out of range", "[256" + strings.Repeat(",0", 63) + "]"},
		{"not json", "[1,2"},
		{"mismatched public key", mismatched.String()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePrivateKey(tt.input)
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}
