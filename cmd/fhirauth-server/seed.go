package main

import (
	"context"
	"strings"

	auth "github.com/goliatone/go-fhir-auth"
	"github.com/goliatone/hashid/pkg/hashid"
)

// demoID derives a stable id so repeated seeding finds the same records.
func demoID(key string) string {
	id, err := hashid.NewUUID(key)
	if err != nil {
		return auth.NewResourceID()
	}
	return id.String()
}

// Seed creates a demo project with two memberships, a pending login and
// a stored binary, then logs what a client needs to walk the flow.
func Seed(ctx context.Context, app *App) error {
	logger := app.GetLogger("seed")
	repo := app.repo.Resources()

	project := &auth.Project{Name: "Demo Clinic", Features: []string{"bots"}}
	project.ID = demoID("project:demo-clinic")

	user := &auth.User{FirstName: "Alice", LastName: "Smith", Email: "alice@example.com"}
	user.ID = demoID("user:alice@example.com")

	practitioner := &auth.Practitioner{Name: []auth.HumanName{{Given: []string{"Alice"}, Family: "Smith"}}}
	practitioner.ID = demoID("practitioner:alice")

	patient := &auth.Patient{Name: []auth.HumanName{{Given: []string{"Alice"}, Family: "Smith"}}}
	patient.ID = demoID("patient:alice")

	policy := &auth.AccessPolicy{
		Name: "Clinician",
		Resource: []auth.AccessPolicyResource{
			{ResourceType: "Patient"},
			{ResourceType: "Binary"},
		},
	}
	policy.ID = demoID("policy:clinician")

	for _, resource := range []auth.Resource{project, user, practitioner, patient, policy} {
		resource.GetMeta().Project = project.ID
		if err := ensure(ctx, repo, resource); err != nil {
			return err
		}
	}

	clinician := &auth.ProjectMembership{
		Project:      auth.CreateReference(project),
		User:         auth.CreateReference(user),
		Profile:      auth.CreateReference(practitioner),
		AccessPolicy: auth.CreateReference(policy),
		Admin:        true,
	}
	clinician.ID = demoID("membership:alice:practitioner")

	portal := &auth.ProjectMembership{
		Project: auth.CreateReference(project),
		User:    auth.CreateReference(user),
		Profile: auth.CreateReference(patient),
	}
	portal.ID = demoID("membership:alice:patient")

	for _, membership := range []*auth.ProjectMembership{clinician, portal} {
		membership.GetMeta().Project = project.ID
		if err := ensure(ctx, repo, membership); err != nil {
			return err
		}
	}

	login, err := auth.CreateAs(ctx, repo, &auth.Login{
		User:       auth.CreateReference(user),
		AuthMethod: auth.AuthMethodPassword,
		Scope:      "openid profile",
	})
	if err != nil {
		return err
	}

	logger.Info("demo login ready",
		"login", login.ID,
		"code", login.Code,
		"memberships", []string{clinician.ID, portal.ID},
	)

	binaryID := demoID("binary:welcome")
	binary, err := auth.ReadAs[*auth.Binary](ctx, repo, "Binary", binaryID)
	if auth.IsOutcome(err, auth.OutcomeNotFound) {
		seed := &auth.Binary{
			ContentType:     "text/plain",
			SecurityContext: auth.CreateReference(practitioner),
		}
		seed.ID = binaryID
		seed.GetMeta().Project = project.ID
		binary, err = app.gateway.Store(ctx, seed, strings.NewReader("welcome to the demo clinic\n"))
	}
	if err != nil {
		return err
	}

	location, err := app.signer.URL(app.Config().GetStorage().GetBaseURL(), binary)
	if err != nil {
		return err
	}
	logger.Info("demo binary ready", "id", binary.ID, "url", location)

	return nil
}

func ensure(ctx context.Context, repo auth.ResourceRepository, resource auth.Resource) error {
	_, err := repo.ReadResource(ctx, resource.ResourceType(), resource.GetID())
	if err == nil {
		return nil
	}
	if !auth.IsOutcome(err, auth.OutcomeNotFound) {
		return err
	}
	_, err = repo.CreateResource(ctx, resource)
	return err
}
