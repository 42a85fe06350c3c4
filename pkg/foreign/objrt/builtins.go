package objrt

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

// Built-in class names.
const (
	ClassObject           = "java/lang/Object"
	ClassClass            = "java/lang/Class"
	ClassString           = "java/lang/String"
	ClassLong             = "java/lang/Long"
	ClassBoolean          = "java/lang/Boolean"
	ClassEnum             = "java/lang/Enum"
	ClassThrowable        = "java/lang/Throwable"
	ClassException        = "java/lang/Exception"
	ClassRuntimeException = "java/lang/RuntimeException"
	ClassList             = "java/util/List"
	ClassArrayList        = "java/util/ArrayList"
	ClassFile             = "java/io/File"
	ClassURI              = "java/net/URI"
	ClassDuration         = "java/time/Duration"
)

// EnumConstant is the native payload of an enum instance.
type EnumConstant struct {
	Name    string
	Ordinal int32
}

type listData struct {
	mu    sync.Mutex
	items []*Instance
}

func (rt *Runtime) bootstrap() {
	object := &classEntry{
		def: ClassDef{
			Name: ClassObject,
			Methods: map[string]Method{
				"<init>()V": nil,
				"toString()Ljava/lang/String;": func(_ *Env, this *Instance, _ []any) (any, error) {
					return fmt.Sprintf("%s@%p", this.ClassName(), this), nil
				},
			},
		},
		statics: make(map[string]*Instance),
	}
	class := &classEntry{
		def:     ClassDef{Name: ClassClass},
		super:   object,
		statics: make(map[string]*Instance),
	}
	object.object = &Instance{class: class, Native: object}
	class.object = &Instance{class: class, Native: class}
	rt.classes[ClassObject] = object
	rt.classes[ClassClass] = class

	rt.MustDefine(
		ClassDef{
			Name: ClassString,
			Methods: map[string]Method{
				"toString()Ljava/lang/String;": func(_ *Env, this *Instance, _ []any) (any, error) {
					return this, nil
				},
				"length()I": func(_ *Env, this *Instance, _ []any) (any, error) {
					s, _ := StringValue(this)
					return int32(len([]rune(s))), nil
				},
			},
		},
		ClassDef{
			Name: ClassLong,
			Methods: map[string]Method{
				"longValue()J": func(_ *Env, this *Instance, _ []any) (any, error) {
					v, ok := this.Native.(int64)
					if !ok {
						return nil, errors.New("Long without a value")
					}
					return v, nil
				},
				"toString()Ljava/lang/String;": func(_ *Env, this *Instance, _ []any) (any, error) {
					return fmt.Sprintf("%d", this.Native), nil
				},
			},
		},
		ClassDef{
			Name: ClassBoolean,
			Methods: map[string]Method{
				"booleanValue()Z": func(_ *Env, this *Instance, _ []any) (any, error) {
					v, _ := this.Native.(bool)
					return v, nil
				},
			},
		},
		ClassDef{
			Name: ClassEnum,
			Methods: map[string]Method{
				"name()Ljava/lang/String;":     enumName,
				"toString()Ljava/lang/String;": enumName,
				"ordinal()I": func(_ *Env, this *Instance, _ []any) (any, error) {
					c, ok := this.Native.(EnumConstant)
					if !ok {
						return nil, errors.New("enum without a constant")
					}
					return c.Ordinal, nil
				},
			},
		},
		ClassDef{
			Name: ClassThrowable,
			Methods: map[string]Method{
				"<init>(Ljava/lang/String;)V": func(_ *Env, this *Instance, args []any) (any, error) {
					this.Set("message", args[0])
					return nil, nil
				},
				"getMessage()Ljava/lang/String;": Getter("message"),
			},
		},
		ClassDef{Name: ClassException, Super: ClassThrowable},
		ClassDef{Name: ClassRuntimeException, Super: ClassException},
		ClassDef{
			Name:      ClassList,
			Interface: true,
			Methods: map[string]Method{
				"size()I":                  nil,
				"get(I)Ljava/lang/Object;": nil,
				"add(Ljava/lang/Object;)Z": nil,
			},
		},
		ClassDef{
			Name:       ClassArrayList,
			Interfaces: []string{ClassList},
			Methods: map[string]Method{
				"<init>()V": func(_ *Env, this *Instance, _ []any) (any, error) {
					this.Native = &listData{}
					return nil, nil
				},
				"size()I": func(_ *Env, this *Instance, _ []any) (any, error) {
					l, err := listOf(this)
					if err != nil {
						return nil, err
					}
					l.mu.Lock()
					defer l.mu.Unlock()
					return int32(len(l.items)), nil
				},
				"get(I)Ljava/lang/Object;": func(_ *Env, this *Instance, args []any) (any, error) {
					l, err := listOf(this)
					if err != nil {
						return nil, err
					}
					idx, _ := args[0].(int32)
					l.mu.Lock()
					defer l.mu.Unlock()
					if idx < 0 || int(idx) >= len(l.items) {
						return nil, fmt.Errorf("index %d out of bounds for length %d", idx, len(l.items))
					}
					return l.items[idx], nil
				},
				"add(Ljava/lang/Object;)Z": func(_ *Env, this *Instance, args []any) (any, error) {
					l, err := listOf(this)
					if err != nil {
						return nil, err
					}
					item, _ := args[0].(*Instance)
					l.mu.Lock()
					l.items = append(l.items, item)
					l.mu.Unlock()
					return true, nil
				},
			},
		},
		ClassDef{
			Name: ClassFile,
			Methods: map[string]Method{
				"getAbsolutePath()Ljava/lang/String;": func(_ *Env, this *Instance, _ []any) (any, error) {
					p, _ := this.Native.(string)
					abs, err := filepath.Abs(p)
					if err != nil {
						return nil, err
					}
					return abs, nil
				},
				"getPath()Ljava/lang/String;": func(_ *Env, this *Instance, _ []any) (any, error) {
					p, _ := this.Native.(string)
					return p, nil
				},
			},
		},
		ClassDef{
			Name: ClassURI,
			Methods: map[string]Method{
				"toString()Ljava/lang/String;": func(_ *Env, this *Instance, _ []any) (any, error) {
					u, _ := this.Native.(string)
					return u, nil
				},
			},
		},
		ClassDef{
			Name: ClassDuration,
			Methods: map[string]Method{
				"toMillis()J": func(_ *Env, this *Instance, _ []any) (any, error) {
					d, _ := this.Native.(time.Duration)
					return d.Milliseconds(), nil
				},
				"getSeconds()J": func(_ *Env, this *Instance, _ []any) (any, error) {
					d, _ := this.Native.(time.Duration)
					return int64(d / time.Second), nil
				},
			},
		},
	)
}

func enumName(_ *Env, this *Instance, _ []any) (any, error) {
	c, ok := this.Native.(EnumConstant)
	if !ok {
		return nil, errors.New("enum without a constant")
	}
	return c.Name, nil
}

func listOf(inst *Instance) (*listData, error) {
	l, ok := inst.Native.(*listData)
	if !ok {
		return nil, errors.New("list not initialized")
	}
	return l, nil
}

// StringValue returns the Go string of a String instance.
func StringValue(inst *Instance) (string, bool) {
	if inst == nil || inst.class.def.Name != ClassString {
		return "", false
	}
	s, ok := inst.Native.(string)
	return s, ok
}

// String creates a String instance.
func (rt *Runtime) String(s string) *Instance {
	return newInstance(rt.mustClass(ClassString), s)
}

// Long creates a boxed Long.
func (rt *Runtime) Long(v int64) *Instance {
	return newInstance(rt.mustClass(ClassLong), v)
}

// File creates a File for path.
func (rt *Runtime) File(path string) *Instance {
	return newInstance(rt.mustClass(ClassFile), path)
}

// URI creates a URI.
func (rt *Runtime) URI(uri string) *Instance {
	return newInstance(rt.mustClass(ClassURI), uri)
}

// Duration creates a Duration.
func (rt *Runtime) Duration(d time.Duration) *Instance {
	return newInstance(rt.mustClass(ClassDuration), d)
}

// List creates an ArrayList holding items. Nil items are foreign nulls.
func (rt *Runtime) List(items ...*Instance) *Instance {
	data := &listData{items: append([]*Instance(nil), items...)}
	return newInstance(rt.mustClass(ClassArrayList), data)
}

// StringList creates an ArrayList of strings.
func (rt *Runtime) StringList(values ...string) *Instance {
	items := make([]*Instance, len(values))
	for i, v := range values {
		items[i] = rt.String(v)
	}
	return rt.List(items...)
}

// ListItems returns a snapshot of an ArrayList's items.
func ListItems(inst *Instance) ([]*Instance, bool) {
	l, ok := inst.Native.(*listData)
	if !ok {
		return nil, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Instance(nil), l.items...), true
}

// DefineEnum defines an enum class with one static field per constant.
func (rt *Runtime) DefineEnum(name string, constants ...string) error {
	statics := make(map[string]string, len(constants))
	for _, c := range constants {
		statics[c] = "L" + name + ";"
	}
	if err := rt.DefineClass(ClassDef{Name: name, Super: ClassEnum, StaticFields: statics}); err != nil {
		return err
	}
	entry, err := rt.class(name)
	if err != nil {
		return err
	}
	for i, c := range constants {
		inst := newInstance(entry, EnumConstant{Name: c, Ordinal: int32(i)})
		if err := rt.SetStatic(name, c, inst); err != nil {
			return err
		}
	}
	return nil
}

// Enum returns the instance of an enum constant.
func (rt *Runtime) Enum(name, constant string) (*Instance, error) {
	return rt.Static(name, constant)
}

// MustEnum is Enum for constants known to exist. It panics otherwise.
func (rt *Runtime) MustEnum(name, constant string) *Instance {
	inst, err := rt.Enum(name, constant)
	if err != nil {
		panic(err)
	}
	return inst
}

// ForeignEnum creates an instance of an enum class carrying a constant name the
// class does not declare. Callers use it to model values from a newer caller
// version.
func (rt *Runtime) ForeignEnum(name, constant string) (*Instance, error) {
	entry, err := rt.class(name)
	if err != nil {
		return nil, err
	}
	return newInstance(entry, EnumConstant{Name: constant, Ordinal: -1}), nil
}

// EnumName returns the constant name of an enum instance.
func EnumName(inst *Instance) (string, bool) {
	if inst == nil {
		return "", false
	}
	c, ok := inst.Native.(EnumConstant)
	return c.Name, ok
}

func (rt *Runtime) mustClass(name string) *classEntry {
	entry, err := rt.class(name)
	if err != nil {
		panic(err)
	}
	return entry
}
