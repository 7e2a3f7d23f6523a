package auth_test

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	auth "github.com/goliatone/go-fhir-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinarySigner(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	signer := auth.NewBinarySigner(testSigningKey, time.Minute, "fhirauth").WithClock(clock)

	t.Run("valid for the signed binary", func(t *testing.T) {
		sig, err := signer.Sign("B1", "")
		require.NoError(t, err)

		assert.NoError(t, signer.Verify(ctx, auth.RetrieveRequest{ID: "B1", Signature: sig}))
		assert.NoError(t, signer.Verify(ctx, auth.RetrieveRequest{ID: "B1", VersionID: "v2", Signature: sig}))
	})

	t.Run("other binary", func(t *testing.T) {
		sig, err := signer.Sign("B1", "")
		require.NoError(t, err)

		err = signer.Verify(ctx, auth.RetrieveRequest{ID: "B2", Signature: sig})
		assert.True(t, auth.IsOutcome(err, auth.OutcomeUnauthorized))
	})

	t.Run("pinned version", func(t *testing.T) {
		sig, err := signer.Sign("B1", "v1")
		require.NoError(t, err)

		assert.NoError(t, signer.Verify(ctx, auth.RetrieveRequest{ID: "B1", VersionID: "v1", Signature: sig}))
		err = signer.Verify(ctx, auth.RetrieveRequest{ID: "B1", VersionID: "v2", Signature: sig})
		assert.True(t, auth.IsOutcome(err, auth.OutcomeUnauthorized))
		err = signer.Verify(ctx, auth.RetrieveRequest{ID: "B1", Signature: sig})
		assert.True(t, auth.IsOutcome(err, auth.OutcomeUnauthorized))
	})

	t.Run("expired", func(t *testing.T) {
		sig, err := signer.Sign("B1", "")
		require.NoError(t, err)

		later := auth.NewBinarySigner(testSigningKey, time.Minute, "fhirauth").
			WithClock(func() time.Time { return now.Add(2 * time.Minute) })
		err = later.Verify(ctx, auth.RetrieveRequest{ID: "B1", Signature: sig})
		assert.True(t, auth.IsOutcome(err, auth.OutcomeUnauthorized))
	})

	t.Run("other key", func(t *testing.T) {
		other := auth.NewBinarySigner([]byte(strings.Repeat("k", 32)), time.Minute, "fhirauth").WithClock(clock)
		sig, err := other.Sign("B1", "")
		require.NoError(t, err)

		err = signer.Verify(ctx, auth.RetrieveRequest{ID: "B1", Signature: sig})
		assert.True(t, auth.IsOutcome(err, auth.OutcomeUnauthorized))
	})

	t.Run("garbage", func(t *testing.T) {
		err := signer.Verify(ctx, auth.RetrieveRequest{ID: "B1", Signature: "x"})
		assert.True(t, auth.IsOutcome(err, auth.OutcomeUnauthorized))
	})
}

func TestBinarySignerURL(t *testing.T) {
	signer := auth.NewBinarySigner(testSigningKey, 0, "")
	binary := &auth.Binary{ResourceBase: auth.ResourceBase{ID: "B1"}}

	location, err := signer.URL("http://localhost:8572", binary)
	require.NoError(t, err)

	parsed, err := url.Parse(location)
	require.NoError(t, err)
	assert.Equal(t, "/storage/B1", parsed.Path)

	sig := parsed.Query().Get("Signature")
	require.NotEmpty(t, sig)
	assert.NoError(t, signer.Verify(context.Background(), auth.RetrieveRequest{ID: "B1", Signature: sig}))
}

func TestBinaryGatewayWithSigner(t *testing.T) {
	ctx := context.Background()
	signer := auth.NewBinarySigner(testSigningKey, time.Minute, "")
	gateway := auth.NewBinaryGateway(auth.NewMemoryRepository(), newMemoryContentStore(),
		auth.WithSignatureVerifier(signer))
	binary := storeBinary(t, gateway, "text/plain", "signed")

	_, err := gateway.Open(ctx, auth.RetrieveRequest{ID: binary.ID, Signature: "x"})
	assert.True(t, auth.IsOutcome(err, auth.OutcomeUnauthorized))

	sig, err := signer.Sign(binary.ID, "")
	require.NoError(t, err)
	sink := &bufferSink{}
	_, err = gateway.Retrieve(ctx, auth.RetrieveRequest{ID: binary.ID, Signature: sig}, sink)
	require.NoError(t, err)
	assert.Equal(t, "signed", sink.String())
}
