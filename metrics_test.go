package auth_test

import (
	"context"
	"strings"
	"testing"

	auth "github.com/goliatone/go-fhir-auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentedRepository(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	repo := auth.NewInstrumentedRepository(auth.NewMemoryRepository(), auth.NewMetrics(reg))

	project, err := auth.CreateAs(ctx, repo, &auth.Project{Name: "Acme"})
	require.NoError(t, err)

	_, err = repo.ReadReference(ctx, auth.CreateReference(project))
	require.NoError(t, err)
	_, err = repo.ReadResource(ctx, "Project", "missing")
	require.Error(t, err)
	_, err = repo.Search(ctx, "Project", auth.SearchParam{Name: "name", Value: "Acme"})
	require.NoError(t, err)
	require.NoError(t, repo.DeleteResource(ctx, "Project", project.ID))

	expected := `
# HELP fhirauth_repository_operations_total Repository operations by operation and outcome.
# TYPE fhirauth_repository_operations_total counter
fhirauth_repository_operations_total{op="create",outcome="ok"} 1
fhirauth_repository_operations_total{op="delete",outcome="ok"} 1
fhirauth_repository_operations_total{op="read",outcome="not_found"} 1
fhirauth_repository_operations_total{op="read",outcome="ok"} 1
fhirauth_repository_operations_total{op="search",outcome="ok"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "fhirauth_repository_operations_total"))

	series, err := testutil.GatherAndCount(reg, "fhirauth_repository_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 4, series)
}

func TestNilMetricsRecordNothing(t *testing.T) {
	repo := auth.NewInstrumentedRepository(auth.NewMemoryRepository(), nil)

	_, err := auth.CreateAs(context.Background(), repo, &auth.Project{Name: "Acme"})
	assert.NoError(t, err)
}
