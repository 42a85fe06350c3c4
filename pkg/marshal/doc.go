// Package marshal provides the conversion primitives shared by every domain
// converter.
//
// A Context wraps the Env of one foreign call together with the cache of core
// runtime classes (Object, List, Long, File, Duration). From it a converter
// creates a Reader for an inbound object or a Writer for an outbound one; both
// resolve members through the converter's own handles.Cache.
//
// Reader getters map directly onto the native shapes:
//
//	String     required string, null is FieldCannotBeNullError
//	OptString  *string, null is nil
//	Bool, Int, Long
//	OptLong    *int64 from a boxed java/lang/Long
//	Object     opaque handle for nested conversion, may be null
//
// Lists are walked with size and get in index order. A null element is a
// NullListElementError, except in Strings, which skips null strings.
//
// Enums are decoded through their string form against an EnumTable. Names
// outside the table are an UnknownEnumValueError, never a default.
//
// All domain errors match ErrDomain. Boundary failures come back from the Env
// unchanged and match foreign.ErrCallFailed.
package marshal
