package marshal

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/openfroyo/cedarbridge/pkg/foreign"
	"github.com/openfroyo/cedarbridge/pkg/handles"
)

// Type signatures used by getters and setters.
const (
	SigString    = "Ljava/lang/String;"
	SigBool      = "Z"
	SigInt       = "I"
	SigLong      = "J"
	SigVoid      = "V"
	SigBoxedLong = "Ljava/lang/Long;"
	SigObject    = "Ljava/lang/Object;"
	SigList      = "Ljava/util/List;"
)

// Core runtime class names.
const (
	ClassObject   = "java/lang/Object"
	ClassString   = "java/lang/String"
	ClassLong     = "java/lang/Long"
	ClassList     = "java/util/List"
	ClassFile     = "java/io/File"
	ClassURI      = "java/net/URI"
	ClassDuration = "java/time/Duration"
)

// Sig returns the object type signature of a class, e.g. "Ljava/lang/String;".
func Sig(class string) string {
	return "L" + class + ";"
}

// GetterName returns the accessor name for a field: "idTokenTrustMode" becomes
// "getIdTokenTrustMode".
func GetterName(field string) string {
	r, size := utf8.DecodeRuneInString(field)
	return "get" + string(unicode.ToUpper(r)) + field[size:]
}

// Getter declares the no-argument accessor of a field returning sig.
func Getter(field, sig string) handles.Member {
	return handles.Member{Name: GetterName(field), Sig: "()" + sig}
}

// SimpleName returns the last path element of a class name.
func SimpleName(class string) string {
	if i := strings.LastIndexByte(class, '/'); i >= 0 {
		return class[i+1:]
	}
	return class
}

// CoreClasses lists the runtime classes every converter depends on.
var CoreClasses = []handles.ClassSpec{
	{
		Name:    ClassObject,
		Methods: []handles.Member{{Name: "toString", Sig: "()" + SigString}},
	},
	{
		Name: ClassList,
		Methods: []handles.Member{
			{Name: "size", Sig: "()I"},
			{Name: "get", Sig: "(I)" + SigObject},
		},
	},
	{
		Name:    ClassLong,
		Methods: []handles.Member{{Name: "longValue", Sig: "()J"}},
	},
	{
		Name:    ClassFile,
		Methods: []handles.Member{{Name: "getAbsolutePath", Sig: "()" + SigString}},
	},
	{
		Name:    ClassDuration,
		Methods: []handles.Member{{Name: "toMillis", Sig: "()J"}},
	},
}

var (
	keyToString  = handles.MemberKey{Class: ClassObject, Name: "toString", Sig: "()" + SigString}
	keyListSize  = handles.MemberKey{Class: ClassList, Name: "size", Sig: "()I"}
	keyListGet   = handles.MemberKey{Class: ClassList, Name: "get", Sig: "(I)" + SigObject}
	keyLongValue = handles.MemberKey{Class: ClassLong, Name: "longValue", Sig: "()J"}
	keyAbsPath   = handles.MemberKey{Class: ClassFile, Name: "getAbsolutePath", Sig: "()" + SigString}
	keyToMillis  = handles.MemberKey{Class: ClassDuration, Name: "toMillis", Sig: "()J"}
)

// Context carries what a conversion needs during one foreign call: the Env and
// the cache holding CoreClasses.
type Context struct {
	env  foreign.Env
	core *handles.Cache
}

// NewContext creates a conversion context. core must have CoreClasses registered.
func NewContext(env foreign.Env, core *handles.Cache) *Context {
	return &Context{env: env, core: core}
}

// Env returns the call's Env.
func (c *Context) Env() foreign.Env {
	return c.env
}

// ToString returns the string form of obj via its toString method.
func (c *Context) ToString(obj foreign.Object) (string, error) {
	method, err := c.core.LookupMethod(keyToString)
	if err != nil {
		return "", err
	}
	str, err := c.env.CallObjectMethod(obj, method)
	if err != nil {
		return "", err
	}
	if str.IsNull() {
		return "", &FieldCannotBeNullError{Class: ClassObject, Field: "toString"}
	}
	return c.env.GetString(str)
}

// String reads a foreign string. Null reads as nil.
func (c *Context) String(obj foreign.Object) (*string, error) {
	if obj.IsNull() {
		return nil, nil
	}
	s, err := c.env.GetString(obj)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Unbox reads a java/lang/Long. Null reads as nil.
func (c *Context) Unbox(obj foreign.Object) (*int64, error) {
	if obj.IsNull() {
		return nil, nil
	}
	method, err := c.core.LookupMethod(keyLongValue)
	if err != nil {
		return nil, err
	}
	v, err := c.env.CallLongMethod(obj, method)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// AbsolutePath reads a java/io/File as an absolute path.
func (c *Context) AbsolutePath(file foreign.Object) (string, error) {
	method, err := c.core.LookupMethod(keyAbsPath)
	if err != nil {
		return "", err
	}
	path, err := c.env.CallObjectMethod(file, method)
	if err != nil {
		return "", err
	}
	if path.IsNull() {
		return "", &FieldCannotBeNullError{Class: ClassFile, Field: "absolutePath"}
	}
	return c.env.GetString(path)
}

// Millis reads a java/time/Duration in milliseconds.
func (c *Context) Millis(duration foreign.Object) (int64, error) {
	method, err := c.core.LookupMethod(keyToMillis)
	if err != nil {
		return 0, err
	}
	return c.env.CallLongMethod(duration, method)
}

// Each walks a foreign list in index order. A null element fails the walk with
// NullListElementError naming class, field and index. A null list is empty.
func (c *Context) Each(list foreign.Object, class, field string, fn func(i int, elem foreign.Object) error) error {
	if list.IsNull() {
		return nil
	}
	size, err := c.listSize(list)
	if err != nil {
		return err
	}
	get, err := c.core.LookupMethod(keyListGet)
	if err != nil {
		return err
	}
	for i := int32(0); i < size; i++ {
		elem, err := c.env.CallObjectMethod(list, get, foreign.Int(i))
		if err != nil {
			return err
		}
		if elem.IsNull() {
			return &NullListElementError{Class: class, Field: field, Index: int(i)}
		}
		if err := fn(int(i), elem); err != nil {
			return err
		}
	}
	return nil
}

// Strings reads a foreign list of strings. Null elements are skipped. A null
// list reads as nil.
func (c *Context) Strings(list foreign.Object) ([]string, error) {
	if list.IsNull() {
		return nil, nil
	}
	size, err := c.listSize(list)
	if err != nil {
		return nil, err
	}
	get, err := c.core.LookupMethod(keyListGet)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, size)
	for i := int32(0); i < size; i++ {
		elem, err := c.env.CallObjectMethod(list, get, foreign.Int(i))
		if err != nil {
			return nil, err
		}
		if elem.IsNull() {
			continue
		}
		s, err := c.env.GetString(elem)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *Context) listSize(list foreign.Object) (int32, error) {
	size, err := c.core.LookupMethod(keyListSize)
	if err != nil {
		return 0, err
	}
	return c.env.CallIntMethod(list, size)
}

// NewString creates a foreign string, or null for a nil pointer.
func (c *Context) NewString(s *string) (foreign.Object, error) {
	if s == nil {
		return foreign.Null(), nil
	}
	return c.env.NewString(*s)
}
