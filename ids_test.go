package auth_test

import (
	"testing"
	"time"

	auth "github.com/goliatone/go-fhir-auth"
	"github.com/stretchr/testify/assert"
)

func TestNewVersionIDIsOrderedUUID(t *testing.T) {
	first := auth.NewVersionID()
	time.Sleep(2 * time.Millisecond)
	second := auth.NewVersionID()

	assert.True(t, auth.IsUUID(first))
	assert.True(t, auth.IsUUID(second))
	assert.Less(t, first, second)
}

func TestIsUUID(t *testing.T) {
	t.Run("uuid", func(t *testing.T) {
		assert.True(t, auth.IsUUID(auth.NewResourceID()))
	})

	t.Run("not a uuid", func(t *testing.T) {
		assert.False(t, auth.IsUUID("Practitioner/1"))
	})
}
