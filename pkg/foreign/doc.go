// Package foreign defines the contract between the bridge and the caller's object
// runtime.
//
// The caller runtime is class based and reflective: classes are resolved by their
// fully-qualified, slash-separated name, methods by name plus a JVM-style type
// signature, and object instances are handed across the boundary as opaque
// references. Every foreign call made by the bridge goes through an Env, which is
// valid only for the duration of one call into the bridge.
//
// # References
//
// References come in two lifetimes:
//
//   - Context-local references are created by the runtime for every object returned
//     from an Env operation. They become invalid when the current call returns.
//   - Durable references survive the call. The only way to create one is Promote,
//     which returns a Global that the owner must Release.
//
// Code that stores a reference anywhere that outlives the current call (a cache, an
// object that escapes, an instance table) must hold a Global, never an Object.
//
// # Failures
//
// Any operation whose foreign side traps returns an error wrapping ErrCallFailed.
// These are boundary failures: they are not attributable to a particular field and
// are never retried.
package foreign
