package marshal

import (
	"errors"
	"testing"

	"github.com/openfroyo/cedarbridge/pkg/foreign"
	"github.com/openfroyo/cedarbridge/pkg/foreign/objrt"
	"github.com/openfroyo/cedarbridge/pkg/handles"
)

const (
	recordClass = "test/Record"
	colorClass  = "test/Color"
)

type color int

const (
	red color = iota + 1
	green
)

var colors = NewEnumTable[color]("Color",
	EnumValue[color]{Name: "RED", Value: red},
	EnumValue[color]{Name: "GREEN", Value: green},
)

var recordSpec = handles.ClassSpec{
	Name: recordClass,
	Methods: []handles.Member{
		handles.Constructor("()V"),
		Getter("name", SigString),
		Getter("nickname", SigString),
		Getter("enabled", SigBool),
		Getter("count", SigInt),
		Getter("total", SigLong),
		Getter("limit", SigBoxedLong),
		Getter("tags", SigList),
		Getter("children", SigList),
		Getter("color", Sig(colorClass)),
		Getter("payload", SigString),
		{Name: "setName", Sig: "(" + SigString + ")V"},
		{Name: "setEnabled", Sig: "(Z)V"},
		{Name: "setColor", Sig: "(" + Sig(colorClass) + ")V"},
	},
}

var colorSpec = handles.ClassSpec{
	Name: colorClass,
	StaticFields: []handles.Member{
		{Name: "RED", Sig: Sig(colorClass)},
		{Name: "GREEN", Sig: Sig(colorClass)},
	},
}

func setter(field string) objrt.Method {
	return func(_ *objrt.Env, this *objrt.Instance, args []any) (any, error) {
		this.Set(field, args[0])
		return nil, nil
	}
}

type fixture struct {
	rt    *objrt.Runtime
	core  *handles.Cache
	cache *handles.Cache
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	rt := objrt.New()
	if err := rt.DefineEnum(colorClass, "RED", "GREEN"); err != nil {
		t.Fatalf("DefineEnum failed: %v", err)
	}
	rt.MustDefine(objrt.ClassDef{
		Name: recordClass,
		Methods: map[string]objrt.Method{
			"<init>()V":                       nil,
			"getName()Ljava/lang/String;":     objrt.Getter("name"),
			"getNickname()Ljava/lang/String;": objrt.Getter("nickname"),
			"getEnabled()Z":                   objrt.Getter("enabled"),
			"getCount()I":                     objrt.Getter("count"),
			"getTotal()J":                     objrt.Getter("total"),
			"getLimit()Ljava/lang/Long;":      objrt.Getter("limit"),
			"getTags()Ljava/util/List;":       objrt.Getter("tags"),
			"getChildren()Ljava/util/List;":   objrt.Getter("children"),
			"getColor()Ltest/Color;":          objrt.Getter("color"),
			"getPayload()Ljava/lang/String;":  objrt.Getter("payload"),
			"setName(Ljava/lang/String;)V":    setter("name"),
			"setEnabled(Z)V":                  setter("enabled"),
			"setColor(Ltest/Color;)V":         setter("color"),
		},
	})

	f := &fixture{rt: rt, core: handles.New("core"), cache: handles.New("records")}
	if err := rt.Call(func(env *objrt.Env) error {
		if err := f.core.Register(env, CoreClasses...); err != nil {
			return err
		}
		return f.cache.Register(env, recordSpec, colorSpec)
	}); err != nil {
		t.Fatalf("registration failed: %v", err)
	}
	return f
}

func (f *fixture) record(t *testing.T) *objrt.Instance {
	t.Helper()
	inst, err := f.rt.NewInstance(recordClass, nil)
	if err != nil {
		t.Fatalf("NewInstance failed: %v", err)
	}
	return inst
}

func (f *fixture) call(t *testing.T, fn func(ctx *Context, env *objrt.Env) error) {
	t.Helper()
	if err := f.rt.Call(func(env *objrt.Env) error {
		return fn(NewContext(env, f.core), env)
	}); err != nil {
		t.Fatalf("call failed: %v", err)
	}
}

func TestReaderScalars(t *testing.T) {
	f := setupFixture(t)
	rec := f.record(t).
		Set("name", f.rt.String("alpha")).
		Set("enabled", true).
		Set("count", int32(7)).
		Set("total", int64(1<<40)).
		Set("limit", f.rt.Long(99))

	f.call(t, func(ctx *Context, env *objrt.Env) error {
		r := ctx.Read(f.cache, recordClass, env.Import(rec))

		name, err := r.String("name")
		if err != nil || name != "alpha" {
			t.Errorf("String(name) = %q, %v", name, err)
		}
		nick, err := r.OptString("nickname")
		if err != nil || nick != nil {
			t.Errorf("OptString(nickname) = %v, %v; want nil", nick, err)
		}
		enabled, err := r.Bool("enabled")
		if err != nil || !enabled {
			t.Errorf("Bool(enabled) = %v, %v", enabled, err)
		}
		count, err := r.Int("count")
		if err != nil || count != 7 {
			t.Errorf("Int(count) = %d, %v", count, err)
		}
		total, err := r.Long("total")
		if err != nil || total != 1<<40 {
			t.Errorf("Long(total) = %d, %v", total, err)
		}
		limit, err := r.OptLong("limit")
		if err != nil || limit == nil || *limit != 99 {
			t.Errorf("OptLong(limit) = %v, %v", limit, err)
		}
		return nil
	})
}

func TestReaderRequiredNull(t *testing.T) {
	f := setupFixture(t)
	rec := f.record(t)

	f.call(t, func(ctx *Context, env *objrt.Env) error {
		r := ctx.Read(f.cache, recordClass, env.Import(rec))

		_, err := r.String("name")
		var target *FieldCannotBeNullError
		if !errors.As(err, &target) {
			t.Fatalf("String(name) error = %v, want FieldCannotBeNullError", err)
		}
		if target.Class != recordClass || target.Field != "name" {
			t.Errorf("error = %+v, want {%s name}", target, recordClass)
		}
		if !IsDomain(err) {
			t.Errorf("IsDomain(%v) = false", err)
		}

		if _, err := r.RequireObject("color", colorClass); !IsFieldCannotBeNull(err) {
			t.Errorf("RequireObject(color) error = %v, want FieldCannotBeNullError", err)
		}

		limit, err := r.OptLong("limit")
		if err != nil || limit != nil {
			t.Errorf("OptLong(limit) = %v, %v; want nil", limit, err)
		}
		return nil
	})
}

func TestReaderUnregisteredGetter(t *testing.T) {
	f := setupFixture(t)
	rec := f.record(t)

	f.call(t, func(ctx *Context, env *objrt.Env) error {
		r := ctx.Read(f.cache, recordClass, env.Import(rec))
		if _, err := r.String("unknownField"); !handles.IsCacheMiss(err) {
			t.Errorf("error = %v, want cache miss", err)
		}
		return nil
	})
}

func TestListOrderAndNulls(t *testing.T) {
	f := setupFixture(t)

	a := f.record(t).Set("name", f.rt.String("a"))
	b := f.record(t).Set("name", f.rt.String("b"))
	c := f.record(t).Set("name", f.rt.String("c"))

	tests := []struct {
		name     string
		children *objrt.Instance
		want     []string
		wantIdx  int
	}{
		{name: "ordered", children: f.rt.List(a, b, c), want: []string{"a", "b", "c"}, wantIdx: -1},
		{name: "null element", children: f.rt.List(a, nil, c), wantIdx: 1},
		{name: "null list", children: nil, want: nil, wantIdx: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent := f.record(t).Set("children", tt.children)

			f.call(t, func(ctx *Context, env *objrt.Env) error {
				r := ctx.Read(f.cache, recordClass, env.Import(parent))
				var got []string
				err := r.Each("children", func(_ int, elem foreign.Object) error {
					name, err := ctx.Read(f.cache, recordClass, elem).String("name")
					if err != nil {
						return err
					}
					got = append(got, name)
					return nil
				})

				if tt.wantIdx >= 0 {
					var target *NullListElementError
					if !errors.As(err, &target) || target.Index != tt.wantIdx || target.Field != "children" {
						t.Errorf("error = %v, want NullListElementError at %d", err, tt.wantIdx)
					}
					return nil
				}
				if err != nil {
					t.Fatalf("Each failed: %v", err)
				}
				if len(got) != len(tt.want) {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
				for i := range got {
					if got[i] != tt.want[i] {
						t.Errorf("got[%d] = %q, want %q", i, got[i], tt.want[i])
					}
				}
				return nil
			})
		})
	}
}

func TestStringsSkipsNulls(t *testing.T) {
	f := setupFixture(t)
	rec := f.record(t).Set("tags", f.rt.List(f.rt.String("x"), nil, f.rt.String("y")))

	f.call(t, func(ctx *Context, env *objrt.Env) error {
		tags, err := ctx.Read(f.cache, recordClass, env.Import(rec)).Strings("tags")
		if err != nil {
			return err
		}
		if len(tags) != 2 || tags[0] != "x" || tags[1] != "y" {
			t.Errorf("Strings(tags) = %v, want [x y]", tags)
		}
		return nil
	})
}

func TestEnumDecode(t *testing.T) {
	f := setupFixture(t)
	unknown, err := f.rt.ForeignEnum(colorClass, "BLUE")
	if err != nil {
		t.Fatalf("ForeignEnum failed: %v", err)
	}

	tests := []struct {
		name    string
		value   *objrt.Instance
		want    color
		wantErr bool
	}{
		{name: "red", value: f.rt.MustEnum(colorClass, "RED"), want: red},
		{name: "green", value: f.rt.MustEnum(colorClass, "GREEN"), want: green},
		{name: "unknown", value: unknown, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.record(t).Set("color", tt.value)
			f.call(t, func(ctx *Context, env *objrt.Env) error {
				got, err := colors.DecodeField(ctx.Read(f.cache, recordClass, env.Import(rec)), "color", colorClass)
				if tt.wantErr {
					var target *UnknownEnumValueError
					if !errors.As(err, &target) || target.Enum != "Color" || target.Value != "BLUE" {
						t.Errorf("error = %v, want UnknownEnumValueError{Color, BLUE}", err)
					}
					return nil
				}
				if err != nil {
					return err
				}
				if got != tt.want {
					t.Errorf("decoded %v, want %v", got, tt.want)
				}
				return nil
			})
		})
	}
}

func TestEnumRoundTrip(t *testing.T) {
	f := setupFixture(t)

	for _, name := range colors.Names() {
		t.Run(name, func(t *testing.T) {
			f.call(t, func(ctx *Context, env *objrt.Env) error {
				v, err := colors.Parse(name)
				if err != nil {
					return err
				}
				encoded, ok := colors.Name(v)
				if !ok {
					t.Fatalf("Name(%v) not found", v)
				}
				obj, err := ctx.StaticObject(f.cache, colorClass, encoded, Sig(colorClass))
				if err != nil {
					return err
				}
				decoded, err := colors.Decode(ctx, obj)
				if err != nil {
					return err
				}
				back, _ := colors.Name(decoded)
				if back != name {
					t.Errorf("round trip of %s gave %s", name, back)
				}
				return nil
			})
		})
	}
}

func TestWriter(t *testing.T) {
	f := setupFixture(t)

	var built *objrt.Instance
	f.call(t, func(ctx *Context, env *objrt.Env) error {
		w, err := ctx.New(f.cache, recordClass, "()V")
		if err != nil {
			return err
		}
		name := "written"
		if err := w.SetString("setName", &name); err != nil {
			return err
		}
		if err := w.SetBool("setEnabled", true); err != nil {
			return err
		}
		green, err := ctx.StaticObject(f.cache, colorClass, "GREEN", Sig(colorClass))
		if err != nil {
			return err
		}
		if err := w.SetObject("setColor", colorClass, green); err != nil {
			return err
		}
		built, err = env.Export(w.Object())
		return err
	})

	if s, _ := objrt.StringValue(built.Get("name").(*objrt.Instance)); s != "written" {
		t.Errorf("name = %q, want written", s)
	}
	if built.Get("enabled") != true {
		t.Errorf("enabled = %v, want true", built.Get("enabled"))
	}
	if name, _ := objrt.EnumName(built.Get("color").(*objrt.Instance)); name != "GREEN" {
		t.Errorf("color = %q, want GREEN", name)
	}
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		wantLen int
	}{
		{name: "object", input: `{"a":1,"b":"x"}`, wantLen: 2},
		{name: "empty object", input: `{}`, wantLen: 0},
		{name: "empty string", input: "", wantErr: true},
		{name: "malformed", input: `{"a":`, wantErr: true},
		{name: "null", input: `null`, wantErr: true},
		{name: "array", input: `[1,2]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseObject(tt.input, "Record.payload")
			if tt.wantErr {
				var target *StructuredDataError
				if !errors.As(err, &target) || target.What != "Record.payload" {
					t.Errorf("error = %v, want StructuredDataError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseObject failed: %v", err)
			}
			if len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestGetterName(t *testing.T) {
	tests := map[string]string{
		"idTokenTrustMode": "getIdTokenTrustMode",
		"data":             "getData",
		"cedarMapping":     "getCedarMapping",
	}
	for field, want := range tests {
		if got := GetterName(field); got != want {
			t.Errorf("GetterName(%q) = %q, want %q", field, got, want)
		}
	}
}
