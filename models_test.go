package auth_test

import (
	"testing"

	auth "github.com/goliatone/go-fhir-auth"
	"github.com/stretchr/testify/assert"
)

func TestProjectHasFeature(t *testing.T) {
	project := &auth.Project{Name: "Demo Clinic", Features: []string{"bots", "email"}}

	assert.True(t, project.HasFeature("bots"))
	assert.True(t, project.HasFeature("email"))
	assert.False(t, project.HasFeature("cron"))
	assert.False(t, (&auth.Project{}).HasFeature("bots"))
}

func TestProjectValidate(t *testing.T) {
	assert.NoError(t, (&auth.Project{Name: "Demo Clinic"}).Validate())
	assert.Error(t, (&auth.Project{}).Validate())
}
