package foreign

// Env is the per-call view of the foreign runtime.
//
// An Env is handed to the bridge by the runtime at the start of a foreign call and
// must not be retained after the call returns. Objects returned by an Env are
// context-local references.
type Env interface {
	// FindClass resolves a class by its fully-qualified, slash-separated name.
	FindClass(name string) (Class, error)

	// GetMethodID resolves an instance method or constructor ("<init>") of cls.
	GetMethodID(cls Class, name, sig string) (MethodID, error)

	// GetStaticFieldID resolves a static field of cls.
	GetStaticFieldID(cls Class, name, sig string) (FieldID, error)

	// GetStaticObjectField reads a static object field.
	GetStaticObjectField(cls Class, field FieldID) (Object, error)

	// NewObject allocates an instance of cls and runs the constructor ctor.
	NewObject(cls Class, ctor MethodID, args ...Value) (Object, error)

	// CallObjectMethod invokes a method returning an object. The result may be null.
	CallObjectMethod(obj Object, method MethodID, args ...Value) (Object, error)

	// CallBooleanMethod invokes a method returning a boolean.
	CallBooleanMethod(obj Object, method MethodID, args ...Value) (bool, error)

	// CallIntMethod invokes a method returning a 32-bit integer.
	CallIntMethod(obj Object, method MethodID, args ...Value) (int32, error)

	// CallLongMethod invokes a method returning a 64-bit integer.
	CallLongMethod(obj Object, method MethodID, args ...Value) (int64, error)

	// CallVoidMethod invokes a method with no result.
	CallVoidMethod(obj Object, method MethodID, args ...Value) error

	// NewString creates a foreign string.
	NewString(s string) (Object, error)

	// GetString reads a foreign string. The object must not be null.
	GetString(obj Object) (string, error)

	// NewLocalRef creates a context-local reference to the object behind ref,
	// which may be a local or a durable reference.
	NewLocalRef(ref Object) (Object, error)

	// NewGlobalRef creates a durable reference. Prefer Promote, which pairs the
	// reference with its release.
	NewGlobalRef(obj Object) (Object, error)

	// DeleteGlobalRef releases a durable reference.
	DeleteGlobalRef(ref Object) error

	// GetLongField reads a named long field of obj.
	GetLongField(obj Object, name string) (int64, error)

	// SetLongField writes a named long field of obj.
	SetLongField(obj Object, name string, value int64) error

	// ThrowNew raises an exception of class cls with the given message. The
	// exception becomes pending and is delivered when the current call returns.
	ThrowNew(cls Class, message string) error

	// ExceptionCheck reports whether an exception is pending.
	ExceptionCheck() bool
}
