package objrt

import (
	"errors"
	"testing"
	"time"

	"github.com/openfroyo/cedarbridge/pkg/foreign"
)

func TestRuntimeStringRoundTrip(t *testing.T) {
	rt := New()

	err := rt.Call(func(env *Env) error {
		obj, err := env.NewString("héllo")
		if err != nil {
			return err
		}
		got, err := env.GetString(obj)
		if err != nil {
			return err
		}
		if got != "héllo" {
			t.Errorf("GetString = %q, want %q", got, "héllo")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
}

func TestRuntimeListDispatch(t *testing.T) {
	rt := New()
	list := rt.StringList("a", "b")

	err := rt.Call(func(env *Env) error {
		cls, err := env.FindClass(ClassList)
		if err != nil {
			return err
		}
		size, err := env.GetMethodID(cls, "size", "()I")
		if err != nil {
			return err
		}
		get, err := env.GetMethodID(cls, "get", "(I)Ljava/lang/Object;")
		if err != nil {
			return err
		}

		obj := env.Import(list)
		n, err := env.CallIntMethod(obj, size)
		if err != nil {
			return err
		}
		if n != 2 {
			t.Errorf("size = %d, want 2", n)
		}

		item, err := env.CallObjectMethod(obj, get, foreign.Int(1))
		if err != nil {
			return err
		}
		s, err := env.GetString(item)
		if err != nil {
			return err
		}
		if s != "b" {
			t.Errorf("get(1) = %q, want b", s)
		}

		if _, err := env.CallObjectMethod(obj, get, foreign.Int(5)); !foreign.IsCallFailure(err) {
			t.Errorf("get(5) error = %v, want call failure", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
}

func TestRuntimeReceiverMustBeAssignable(t *testing.T) {
	rt := New()

	err := rt.Call(func(env *Env) error {
		cls, err := env.FindClass(ClassLong)
		if err != nil {
			return err
		}
		longValue, err := env.GetMethodID(cls, "longValue", "()J")
		if err != nil {
			return err
		}
		str, _ := env.NewString("x")
		if _, err := env.CallLongMethod(str, longValue); !foreign.IsCallFailure(err) {
			t.Errorf("CallLongMethod on String error = %v, want call failure", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
}

func TestRuntimeMissingMembers(t *testing.T) {
	rt := New()

	err := rt.Call(func(env *Env) error {
		if _, err := env.FindClass("does/not/Exist"); !foreign.IsCallFailure(err) {
			t.Errorf("FindClass error = %v, want call failure", err)
		}
		cls, err := env.FindClass(ClassString)
		if err != nil {
			return err
		}
		if _, err := env.GetMethodID(cls, "nope", "()V"); !foreign.IsCallFailure(err) {
			t.Errorf("GetMethodID error = %v, want call failure", err)
		}
		if _, err := env.GetStaticFieldID(cls, "NOPE", "Ljava/lang/String;"); !foreign.IsCallFailure(err) {
			t.Errorf("GetStaticFieldID error = %v, want call failure", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
}

func TestRuntimeLocalRefsDieWithCall(t *testing.T) {
	rt := New()

	var local foreign.Object
	var global foreign.Object
	if err := rt.Call(func(env *Env) error {
		obj, err := env.NewString("kept")
		if err != nil {
			return err
		}
		local = obj
		global, err = env.NewGlobalRef(obj)
		return err
	}); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	if rt.GlobalRefs() != 1 {
		t.Fatalf("GlobalRefs = %d, want 1", rt.GlobalRefs())
	}

	if err := rt.Call(func(env *Env) error {
		if _, err := env.GetString(local); !foreign.IsCallFailure(err) {
			t.Errorf("stale local ref error = %v, want call failure", err)
		}
		s, err := env.GetString(global)
		if err != nil {
			return err
		}
		if s != "kept" {
			t.Errorf("global ref = %q, want kept", s)
		}
		return env.DeleteGlobalRef(global)
	}); err != nil {
		t.Fatalf("second call failed: %v", err)
	}

	if rt.GlobalRefs() != 0 {
		t.Errorf("GlobalRefs after delete = %d, want 0", rt.GlobalRefs())
	}
}

func TestRuntimeEnumsAndStatics(t *testing.T) {
	rt := New()
	if err := rt.DefineEnum("test/Color", "RED", "GREEN"); err != nil {
		t.Fatalf("DefineEnum failed: %v", err)
	}

	err := rt.Call(func(env *Env) error {
		cls, err := env.FindClass("test/Color")
		if err != nil {
			return err
		}
		fid, err := env.GetStaticFieldID(cls, "GREEN", "Ltest/Color;")
		if err != nil {
			return err
		}
		green, err := env.GetStaticObjectField(cls, fid)
		if err != nil {
			return err
		}
		enumCls, _ := env.FindClass(ClassEnum)
		name, err := env.GetMethodID(enumCls, "name", "()Ljava/lang/String;")
		if err != nil {
			return err
		}
		nameObj, err := env.CallObjectMethod(green, name)
		if err != nil {
			return err
		}
		s, _ := env.GetString(nameObj)
		if s != "GREEN" {
			t.Errorf("name() = %q, want GREEN", s)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
}

func TestRuntimeThrowNew(t *testing.T) {
	rt := New()
	rt.MustDefine(ClassDef{Name: "test/Boom", Super: ClassException})

	err := rt.Call(func(env *Env) error {
		cls, err := env.FindClass("test/Boom")
		if err != nil {
			return err
		}
		if err := env.ThrowNew(cls, "kaput"); err != nil {
			return err
		}
		if !env.ExceptionCheck() {
			t.Error("ExceptionCheck = false after ThrowNew")
		}
		return nil
	})

	var exc *Exception
	if !errors.As(err, &exc) {
		t.Fatalf("Call error = %v, want *Exception", err)
	}
	if exc.Class != "test/Boom" || exc.Message != "kaput" {
		t.Errorf("exception = %+v", exc)
	}
}

func TestRuntimeThrowNewRejectsNonThrowable(t *testing.T) {
	rt := New()

	err := rt.Call(func(env *Env) error {
		cls, _ := env.FindClass(ClassString)
		if err := env.ThrowNew(cls, "nope"); !foreign.IsCallFailure(err) {
			t.Errorf("ThrowNew error = %v, want call failure", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
}

func TestRuntimeLongField(t *testing.T) {
	rt := New()
	rt.MustDefine(ClassDef{Name: "test/Holder", Fields: map[string]string{"ref": "J"}})
	holder, err := rt.NewInstance("test/Holder", nil)
	if err != nil {
		t.Fatalf("NewInstance failed: %v", err)
	}

	err = rt.Call(func(env *Env) error {
		obj := env.Import(holder)
		if err := env.SetLongField(obj, "ref", 42); err != nil {
			return err
		}
		v, err := env.GetLongField(obj, "ref")
		if err != nil {
			return err
		}
		if v != 42 {
			t.Errorf("GetLongField = %d, want 42", v)
		}
		if _, err := env.GetLongField(obj, "missing"); !foreign.IsCallFailure(err) {
			t.Errorf("missing field error = %v, want call failure", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
}

func TestRuntimeDuration(t *testing.T) {
	rt := New()
	d := rt.Duration(1500 * time.Millisecond)

	err := rt.Call(func(env *Env) error {
		cls, _ := env.FindClass(ClassDuration)
		toMillis, err := env.GetMethodID(cls, "toMillis", "()J")
		if err != nil {
			return err
		}
		ms, err := env.CallLongMethod(env.Import(d), toMillis)
		if err != nil {
			return err
		}
		if ms != 1500 {
			t.Errorf("toMillis = %d, want 1500", ms)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
}
