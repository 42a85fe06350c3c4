// Package hostlib is the caller-side class library of the bridge, defined in
// the in-process object runtime.
//
// Define installs every class the bridge reads or produces: the configuration
// classes under config/, the request and result classes under authz/, the
// policy response classes under cedar/policy/, the exception hierarchy rooted
// at CedarlingError, and the Cedarling class whose native methods are bound to
// a Natives implementation.
//
// The Build functions turn native documents (config.BootstrapConfig,
// authz.Request, authz.RequestUnsigned) into object graphs, and ReadResult
// turns an AuthorizeResult back into an authz.Result. Cedarling wraps the whole
// round trip the way a caller application would use it.
package hostlib
