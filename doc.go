// Package auth binds an authenticated login to one of the user's project
// memberships and serves the resources that binding depends on.
//
// Resources:
//   - ResourceRepository stores versioned resources (Login, ProjectMembership,
//     Project, profiles, Binary). Every write produces a new version id and
//     updates carrying a version id are compare-and-swap. A memory and a Bun
//     backed implementation share the same semantics.
//   - References are "Type/id" pointers resolved through a ReferenceResolver.
//
// Login lifecycle:
//   - LoginStateMachine moves a login from pending to profile-bound (profile
//     selection), granted (code exchange) and revoked. Bindings never
//     overwrite an existing project or profile and a revoked login refuses
//     everything.
//   - BindProfileHandler and ExchangeCodeHandler are the command entry
//     points; ProfileController exposes them over go-router.
//
// Binaries:
//   - BinaryGateway rejects unsigned requests before any read, streams the
//     content of a Binary to a sink and reports a cut stream as truncated
//     instead of a complete payload. Content stores live in package storage.
//   - The default SignatureVerifier only checks that a signature is present,
//     so a signed request for a missing binary is NotFound. Wiring a
//     BinarySigner as the verifier, as cmd/fhirauth-server does, is
//     stricter: a signature that does not verify for the requested id is
//     Unauthorized before the binary is looked up.
//
// Activity sinks:
//   - ActivitySink receives best-effort audit events for transitions, token
//     issuance and binary retrievals. Errors are logged, never returned.
package auth
