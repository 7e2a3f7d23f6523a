package auth

import (
	"context"
	"fmt"
	"time"
)

// LoginStatus is the lifecycle position of a login, derived from its fields.
type LoginStatus string

const (
	LoginStatusPending      LoginStatus = "pending"
	LoginStatusProfileBound LoginStatus = "profile-bound"
	LoginStatusGranted      LoginStatus = "granted"
	LoginStatusRevoked      LoginStatus = "revoked"
)

// LoginStatusOf derives the status of login.
func LoginStatusOf(login *Login) LoginStatus {
	switch {
	case login == nil:
		return ""
	case login.Revoked:
		return LoginStatusRevoked
	case login.Granted:
		return LoginStatusGranted
	case login.Project != nil || login.Profile != nil:
		return LoginStatusProfileBound
	default:
		return LoginStatusPending
	}
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor ActorRef
	Login *Login
	From  LoginStatus
	To    LoginStatus
	Meta  TransitionMetadata
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionHookPhase identifies whether a hook ran before or after persistence.
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// BindProfileResult is what a successful profile selection hands back to
// the client. The login itself stays server side.
type BindProfileResult struct {
	Login string `json:"login"`
	Code  string `json:"code"`
}

// LoginStateMachine drives a login through pending, profile-bound, granted
// and revoked.
type LoginStateMachine interface {
	BindProfile(ctx context.Context, loginID, membershipID string, opts ...TransitionOption) (*BindProfileResult, error)
	Grant(ctx context.Context, loginID string, opts ...TransitionOption) (*Login, error)
	Revoke(ctx context.Context, loginID string, opts ...TransitionOption) (*Login, error)
	CurrentStatus(login *Login) LoginStatus
}

// HookErrorHandler handles errors surfaced by transition hooks.
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*loginStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *loginStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *loginStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineHookErrorHandler overrides how hook failures are propagated.
// Without one, a failing hook panics.
func WithStateMachineHookErrorHandler(handler HookErrorHandler) StateMachineOption {
	return func(sm *loginStateMachine) {
		if handler != nil {
			sm.hookErrorHandler = handler
		}
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *loginStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithStateMachineMemberships overrides the membership lookup.
func WithStateMachineMemberships(memberships MembershipProvider) StateMachineOption {
	return func(sm *loginStateMachine) {
		if memberships != nil {
			sm.memberships = memberships
		}
	}
}

// WithStateMachineResolver overrides the reference resolver.
func WithStateMachineResolver(resolver ReferenceResolver) StateMachineOption {
	return func(sm *loginStateMachine) {
		if resolver != nil {
			sm.resolver = resolver
		}
	}
}

// WithStateMachineMetrics records transition outcomes.
func WithStateMachineMetrics(metrics *Metrics) StateMachineOption {
	return func(sm *loginStateMachine) {
		sm.metrics = metrics
	}
}

// WithTransitionActor records who requested the transition.
func WithTransitionActor(actor ActorRef) TransitionOption {
	return func(opts *transitionOptions) {
		opts.actor = actor
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the login is written.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the write succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// NewLoginStateMachine returns the default implementation backed by repo.
// Membership lookup and reference resolution default to repo as well.
func NewLoginStateMachine(repo ResourceRepository, opts ...StateMachineOption) LoginStateMachine {
	sm := &loginStateMachine{
		repo:         repo,
		memberships:  NewMembershipProvider(repo),
		resolver:     NewReferenceResolver(repo),
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		hookErrorHandler: func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
			return defaultHookErrorHandler(ctx, phase, err, tc)
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type loginStateMachine struct {
	repo             ResourceRepository
	memberships      MembershipProvider
	resolver         ReferenceResolver
	now              func() time.Time
	activitySink     ActivitySink
	logger           Logger
	metrics          *Metrics
	hookErrorHandler HookErrorHandler
}

type transitionOptions struct {
	actor       ActorRef
	metadata    TransitionMetadata
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

// BindProfile attaches the profile of one of the login user's memberships.
// Checks run in order and the first failure wins; nothing is written unless
// every check passes.
func (sm *loginStateMachine) BindProfile(ctx context.Context, loginID, membershipID string, opts ...TransitionOption) (result *BindProfileResult, err error) {
	defer func() { sm.metrics.observeTransition("bind_profile", err) }()

	login, err := ReadAs[*Login](ctx, sm.repo, "Login", loginID)
	if err != nil {
		return nil, err
	}

	if err := checkBindable(login); err != nil {
		return nil, err
	}

	memberships, err := sm.memberships.GetUserMemberships(ctx, login.User)
	if err != nil {
		return nil, err
	}

	membership := findMembership(memberships, membershipID)
	if membership == nil {
		return nil, NewProfileNotFoundError(membershipID)
	}

	project, err := ResolveAs[*Project](ctx, sm.resolver, membership.Project)
	if err != nil {
		return nil, err
	}

	profile, err := sm.resolver.Resolve(ctx, membership.Profile)
	if err != nil {
		return nil, err
	}

	options := sm.buildTransitionOptions(opts...)
	from := LoginStatusOf(login)

	login.Project = CreateReference(project)
	login.Profile = CreateReference(profile)
	login.Membership = CreateReference(membership)
	login.AccessPolicy = membership.AccessPolicy.Clone()

	updated, err := sm.persist(ctx, login, from, LoginStatusProfileBound, options)
	if err != nil {
		return nil, err
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventProfileBound,
		Actor:      options.actor,
		LoginID:    updated.ID,
		User:       updated.User.String(),
		FromStatus: from,
		ToStatus:   LoginStatusProfileBound,
		Metadata: sm.transitionMetadata(options.cloneMetadata(), map[string]any{
			"membership": membership.ID,
			"project":    updated.Project.String(),
			"profile":    updated.Profile.String(),
		}),
	})

	return &BindProfileResult{
		Login: updated.ID,
		Code:  updated.Code,
	}, nil
}

// Grant completes a bound login so a token can be issued for it.
func (sm *loginStateMachine) Grant(ctx context.Context, loginID string, opts ...TransitionOption) (granted *Login, err error) {
	defer func() { sm.metrics.observeTransition("grant", err) }()

	login, err := ReadAs[*Login](ctx, sm.repo, "Login", loginID)
	if err != nil {
		return nil, err
	}

	switch {
	case login.Revoked:
		return nil, NewInvalidStateError(TextCodeLoginRevoked, MessageLoginRevoked)
	case login.Granted:
		return nil, NewInvalidStateError(TextCodeLoginGranted, MessageLoginGranted)
	case login.Profile == nil:
		return nil, NewInvalidStateError(TextCodeLoginProfileNotSet, MessageLoginProfileNotSet)
	}

	options := sm.buildTransitionOptions(opts...)
	from := LoginStatusOf(login)
	login.Granted = true

	updated, err := sm.persist(ctx, login, from, LoginStatusGranted, options)
	if err != nil {
		return nil, err
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventLoginGranted,
		Actor:      options.actor,
		LoginID:    updated.ID,
		User:       updated.User.String(),
		FromStatus: from,
		ToStatus:   LoginStatusGranted,
		Metadata:   sm.transitionMetadata(options.cloneMetadata(), nil),
	})

	return updated, nil
}

// Revoke ends a login that has not been granted. Revoking twice is a no-op.
func (sm *loginStateMachine) Revoke(ctx context.Context, loginID string, opts ...TransitionOption) (revoked *Login, err error) {
	defer func() { sm.metrics.observeTransition("revoke", err) }()

	login, err := ReadAs[*Login](ctx, sm.repo, "Login", loginID)
	if err != nil {
		return nil, err
	}

	if login.Revoked {
		return login, nil
	}
	if login.Granted {
		return nil, NewInvalidStateError(TextCodeLoginGranted, MessageLoginGranted)
	}

	options := sm.buildTransitionOptions(opts...)
	from := LoginStatusOf(login)
	login.Revoked = true

	updated, err := sm.persist(ctx, login, from, LoginStatusRevoked, options)
	if err != nil {
		return nil, err
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventLoginRevoked,
		Actor:      options.actor,
		LoginID:    updated.ID,
		User:       updated.User.String(),
		FromStatus: from,
		ToStatus:   LoginStatusRevoked,
		Metadata:   sm.transitionMetadata(options.cloneMetadata(), nil),
	})

	return updated, nil
}

func (sm *loginStateMachine) CurrentStatus(login *Login) LoginStatus {
	return LoginStatusOf(login)
}

func checkBindable(login *Login) error {
	switch {
	case login.Revoked:
		return NewInvalidStateError(TextCodeLoginRevoked, MessageLoginRevoked)
	case login.Granted:
		return NewInvalidStateError(TextCodeLoginGranted, MessageLoginGranted)
	case login.Project != nil || login.Profile != nil:
		return NewInvalidStateError(TextCodeLoginProfileSet, MessageLoginProfileSet)
	}
	return nil
}

// persist runs hooks around a version checked write of login.
func (sm *loginStateMachine) persist(ctx context.Context, login *Login, from, to LoginStatus, options *transitionOptions) (*Login, error) {
	tc := TransitionContext{
		Actor: options.actor,
		Login: login,
		From:  from,
		To:    to,
		Meta:  options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, tc, HookPhaseBefore); err != nil {
		return nil, err
	}

	updated, err := UpdateAs(ctx, sm.repo, login)
	if err != nil {
		return nil, err
	}

	tc.Login = updated
	if err := sm.runHooks(ctx, options.afterHooks, tc, HookPhaseAfter); err != nil {
		return nil, err
	}

	return updated, nil
}

func (sm *loginStateMachine) runHooks(ctx context.Context, hooks []TransitionHook, data TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, data); err != nil {
			if sm.hookErrorHandler == nil {
				return err
			}
			return sm.hookErrorHandler(ctx, phase, err, data)
		}
	}
	return nil
}

func (sm *loginStateMachine) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func defaultHookErrorHandler(_ context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
	loginID := ""
	if tc.Login != nil {
		loginID = tc.Login.ID
	}
	panic(fmt.Sprintf(
		"go-fhir-auth: %s transition hook failed: %v\nLoginID: %s from=%s to=%s reason=%s\nProvide auth.WithStateMachineHookErrorHandler to customize error handling in production.",
		phase,
		err,
		loginID,
		tc.From,
		tc.To,
		tc.Meta.Reason,
	))
}

func (sm *loginStateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}
	recordActivity(ctx, normalizeActivitySink(sm.activitySink), sm.logger, sm.now, event)
}

func (sm *loginStateMachine) transitionMetadata(meta TransitionMetadata, extra map[string]any) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 && len(extra) == 0 {
		return nil
	}

	result := map[string]any{}
	for k, v := range extra {
		result[k] = v
	}
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	return result
}
