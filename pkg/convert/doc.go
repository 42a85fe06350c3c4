// Package convert holds the domain converters of the bridge.
//
// Each converter module owns one handle cache and one table of class specs:
//
//   - ConfigConverter reads BootstrapConfiguration and its sections into
//     config.BootstrapConfig.
//   - RequestConverter reads AuthorizeRequest, AuthorizeRequestUnsigned,
//     EntityData and Context into authz types.
//   - ResultConverter builds AuthorizeResult, PolicyResponse, Diagnostics,
//     PolicyId and AuthzError objects from authz.Result.
//
// Registry ties them together with the core runtime classes and the exception
// classes. Init registers every table in one pass, so a missing class or member
// surfaces at initialization rather than on first use.
//
// Converters never recover from an error. Domain failures carry the foreign
// class and field (and index for lists) and match marshal.ErrDomain; boundary
// failures match foreign.ErrCallFailed; lookups before Init match
// handles.ErrCacheMiss.
package convert
