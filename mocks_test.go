package auth_test

import (
	"context"
	"io"
	"testing"
	"time"

	auth "github.com/goliatone/go-fhir-auth"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockResourceRepository implements auth.ResourceRepository
type MockResourceRepository struct {
	mock.Mock
}

func (m *MockResourceRepository) CreateResource(ctx context.Context, resource auth.Resource) (auth.Resource, error) {
	args := m.Called(ctx, resource)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(auth.Resource), args.Error(1)
}

func (m *MockResourceRepository) ReadResource(ctx context.Context, resourceType, id string) (auth.Resource, error) {
	args := m.Called(ctx, resourceType, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(auth.Resource), args.Error(1)
}

func (m *MockResourceRepository) ReadVersion(ctx context.Context, resourceType, id, versionID string) (auth.Resource, error) {
	args := m.Called(ctx, resourceType, id, versionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(auth.Resource), args.Error(1)
}

func (m *MockResourceRepository) ReadReference(ctx context.Context, ref *auth.Reference) (auth.Resource, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(auth.Resource), args.Error(1)
}

func (m *MockResourceRepository) UpdateResource(ctx context.Context, resource auth.Resource) (auth.Resource, error) {
	args := m.Called(ctx, resource)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(auth.Resource), args.Error(1)
}

func (m *MockResourceRepository) DeleteResource(ctx context.Context, resourceType, id string) error {
	args := m.Called(ctx, resourceType, id)
	return args.Error(0)
}

func (m *MockResourceRepository) Search(ctx context.Context, resourceType string, param auth.SearchParam) ([]auth.Resource, error) {
	args := m.Called(ctx, resourceType, param)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]auth.Resource), args.Error(1)
}

// MockContentStore implements auth.ContentStore
type MockContentStore struct {
	mock.Mock
}

func (m *MockContentStore) ReadBinary(ctx context.Context, binary *auth.Binary, w io.Writer) (int64, error) {
	args := m.Called(ctx, binary, w)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockContentStore) WriteBinary(ctx context.Context, binary *auth.Binary, r io.Reader) (int64, error) {
	args := m.Called(ctx, binary, r)
	return args.Get(0).(int64), args.Error(1)
}

// memoryContentStore keeps content by key and can cut a stream short.
type memoryContentStore struct {
	content map[string][]byte
	cutAt   int
	failErr error
}

func newMemoryContentStore() *memoryContentStore {
	return &memoryContentStore{content: map[string][]byte{}, cutAt: -1}
}

func (s *memoryContentStore) ReadBinary(_ context.Context, binary *auth.Binary, w io.Writer) (int64, error) {
	data, ok := s.content[auth.BinaryContentKey(binary)]
	if !ok {
		return 0, auth.NewNotFoundError("Binary", binary.ID)
	}
	if s.cutAt >= 0 && s.cutAt < len(data) {
		n, err := w.Write(data[:s.cutAt])
		if err != nil {
			return int64(n), err
		}
		return int64(n), s.failErr
	}
	n, err := w.Write(data)
	return int64(n), err
}

func (s *memoryContentStore) WriteBinary(_ context.Context, binary *auth.Binary, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	s.content[auth.BinaryContentKey(binary)] = data
	return int64(len(data)), nil
}

// recordingSink collects activity events.
type recordingSink struct {
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.events = append(s.events, event)
	return nil
}

type fixture struct {
	repo         auth.ResourceRepository
	project      *auth.Project
	user         *auth.User
	practitioner *auth.Practitioner
	policy       *auth.AccessPolicy
	membership   *auth.ProjectMembership
	login        *auth.Login
}

func fixedClock() func() time.Time {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

// newFixture seeds a project with one practitioner membership for a user
// and a pending login for that user.
func newFixture(t *testing.T, repo auth.ResourceRepository) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{repo: repo}
	var err error

	f.project, err = auth.CreateAs(ctx, repo, &auth.Project{Name: "Acme Clinic"})
	require.NoError(t, err)

	f.user, err = auth.CreateAs(ctx, repo, &auth.User{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"})
	require.NoError(t, err)

	f.practitioner, err = auth.CreateAs(ctx, repo, &auth.Practitioner{
		Name: []auth.HumanName{{Given: []string{"Ada"}, Family: "Lovelace"}},
	})
	require.NoError(t, err)

	f.policy, err = auth.CreateAs(ctx, repo, &auth.AccessPolicy{
		Name:     "Clinician",
		Resource: []auth.AccessPolicyResource{{ResourceType: "Patient"}},
	})
	require.NoError(t, err)

	f.membership, err = auth.CreateAs(ctx, repo, &auth.ProjectMembership{
		Project:      auth.CreateReference(f.project),
		User:         auth.CreateReference(f.user),
		Profile:      auth.CreateReference(f.practitioner),
		AccessPolicy: auth.CreateReference(f.policy),
	})
	require.NoError(t, err)

	f.login, err = auth.CreateAs(ctx, repo, &auth.Login{
		User:       auth.CreateReference(f.user),
		AuthMethod: auth.AuthMethodPassword,
		Scope:      "openid",
	})
	require.NoError(t, err)

	return f
}
