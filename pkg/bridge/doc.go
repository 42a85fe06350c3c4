// Package bridge implements the native methods of the Cedarling class: the
// boundary entry points between the foreign runtime and the decision engine.
//
// Each entry point runs the same sequence:
//
//	Start -> ConvertInput -> Invoke -> ConvertOutput -> Return
//
// and any failure moves to ReportFailure, which raises one foreign exception and
// returns null. The exception category depends on the entry point:
//
//	initCache          CedarlingError
//	createInstance     CedarlingConfigurationError
//	authorize          CedarlingAuthorizationError
//	authorizeUnsigned  CedarlingAuthorizationError
//	cleanup            CedarlingError
//
// The message is the entry point's description followed by the full cause
// chain.
//
// An engine instance is attached to its Cedarling object through the object's
// cedarlingRef long field, which holds an id into the bridge's instance table.
// The table also keeps a durable reference to the owning object until cleanup.
// Calls against one instance are serialized by a per-instance mutex; calls
// against different instances run in parallel.
package bridge
