package auth

import "context"

type repositoryMemberships struct {
	repo ResourceRepository
}

// NewMembershipProvider returns a MembershipProvider that searches
// ProjectMembership resources by their user reference.
func NewMembershipProvider(repo ResourceRepository) MembershipProvider {
	return &repositoryMemberships{repo: repo}
}

func (m *repositoryMemberships) GetUserMemberships(ctx context.Context, user *Reference) ([]*ProjectMembership, error) {
	if user == nil || user.Reference == "" {
		return nil, NewInvalidReferenceError("", "missing user reference")
	}

	resources, err := m.repo.Search(ctx, "ProjectMembership", SearchParam{
		Name:  "user",
		Value: user.Reference,
	})
	if err != nil {
		return nil, err
	}

	memberships := make([]*ProjectMembership, 0, len(resources))
	for _, resource := range resources {
		membership, ok := resource.(*ProjectMembership)
		if !ok {
			return nil, newContractError("membership search returned %T", resource)
		}
		memberships = append(memberships, membership)
	}
	return memberships, nil
}

// MembershipProviderFunc adapts a function to MembershipProvider.
type MembershipProviderFunc func(ctx context.Context, user *Reference) ([]*ProjectMembership, error)

// GetUserMemberships implements MembershipProvider.
func (f MembershipProviderFunc) GetUserMemberships(ctx context.Context, user *Reference) ([]*ProjectMembership, error) {
	return f(ctx, user)
}

func findMembership(memberships []*ProjectMembership, id string) *ProjectMembership {
	for _, membership := range memberships {
		if membership != nil && membership.ID == id {
			return membership
		}
	}
	return nil
}
