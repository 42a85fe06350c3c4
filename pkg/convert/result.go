package convert

import (
	"github.com/openfroyo/cedarbridge/pkg/authz"
	"github.com/openfroyo/cedarbridge/pkg/foreign"
	"github.com/openfroyo/cedarbridge/pkg/handles"
	"github.com/openfroyo/cedarbridge/pkg/marshal"
)

// ResultConverter builds AuthorizeResult graphs from authz.Result.
type ResultConverter struct {
	cache *handles.Cache
}

// NewResultConverter creates a converter with an empty cache.
func NewResultConverter() *ResultConverter {
	return &ResultConverter{cache: handles.New("result")}
}

// Register resolves ResultClasses into the converter's cache.
func (c *ResultConverter) Register(env foreign.Env) error {
	return c.cache.Register(env, ResultClasses...)
}

// Cache returns the converter's handle cache.
func (c *ResultConverter) Cache() *handles.Cache {
	return c.cache
}

// Result builds an AuthorizeResult. Sub-decisions are built before the result
// itself; principals are added in key order.
func (c *ResultConverter) Result(ctx *marshal.Context, res *authz.Result) (foreign.Object, error) {
	if res == nil {
		return foreign.Null(), nil
	}

	person, err := c.PolicyResponse(ctx, res.Person)
	if err != nil {
		return foreign.Object{}, err
	}
	workload, err := c.PolicyResponse(ctx, res.Workload)
	if err != nil {
		return foreign.Object{}, err
	}
	keys := res.PrincipalKeys()
	principals := make([]foreign.Object, len(keys))
	for i, key := range keys {
		resp := res.Principals[key]
		if principals[i], err = c.PolicyResponse(ctx, &resp); err != nil {
			return foreign.Object{}, err
		}
	}

	w, err := ctx.New(c.cache, ClassAuthorizeResult, "()V")
	if err != nil {
		return foreign.Object{}, err
	}
	if err := w.SetObject("setPerson", ClassPolicyResponse, person); err != nil {
		return foreign.Object{}, err
	}
	if err := w.SetObject("setWorkload", ClassPolicyResponse, workload); err != nil {
		return foreign.Object{}, err
	}
	adder := "(" + sigString + marshal.Sig(ClassPolicyResponse) + ")V"
	for i, key := range keys {
		name, err := ctx.Env().NewString(key)
		if err != nil {
			return foreign.Object{}, err
		}
		if err := w.Call("addPrincipal", adder, foreign.Obj(name), foreign.Obj(principals[i])); err != nil {
			return foreign.Object{}, err
		}
	}
	requestID := res.RequestID
	if err := w.SetString("setRequestId", &requestID); err != nil {
		return foreign.Object{}, err
	}
	if err := w.SetBool("setDecision", res.Decision); err != nil {
		return foreign.Object{}, err
	}
	return w.Object(), nil
}

// PolicyResponse builds a PolicyResponse. A nil response builds null.
func (c *ResultConverter) PolicyResponse(ctx *marshal.Context, resp *authz.PolicyResponse) (foreign.Object, error) {
	if resp == nil {
		return foreign.Null(), nil
	}
	decision, err := c.Decision(ctx, resp.Decision)
	if err != nil {
		return foreign.Object{}, err
	}
	diag, err := c.Diagnostics(ctx, resp.Diagnostics)
	if err != nil {
		return foreign.Object{}, err
	}
	ctor := "(" + marshal.Sig(ClassAuthzDecision) + marshal.Sig(ClassDiagnostics) + ")V"
	w, err := ctx.New(c.cache, ClassPolicyResponse, ctor, foreign.Obj(decision), foreign.Obj(diag))
	if err != nil {
		return foreign.Object{}, err
	}
	return w.Object(), nil
}

// Diagnostics builds a Diagnostics, adding policy ids and errors in order.
func (c *ResultConverter) Diagnostics(ctx *marshal.Context, d authz.Diagnostics) (foreign.Object, error) {
	w, err := ctx.New(c.cache, ClassDiagnostics, "()V")
	if err != nil {
		return foreign.Object{}, err
	}
	for _, id := range d.Reason {
		obj, err := c.PolicyID(ctx, id)
		if err != nil {
			return foreign.Object{}, err
		}
		if err := w.SetObject("addPolicyId", ClassPolicyId, obj); err != nil {
			return foreign.Object{}, err
		}
	}
	for _, msg := range d.Errors {
		obj, err := c.AuthzError(ctx, msg)
		if err != nil {
			return foreign.Object{}, err
		}
		if err := w.SetObject("addError", ClassAuthzError, obj); err != nil {
			return foreign.Object{}, err
		}
	}
	return w.Object(), nil
}

// PolicyID builds a PolicyId.
func (c *ResultConverter) PolicyID(ctx *marshal.Context, id string) (foreign.Object, error) {
	return c.wrapString(ctx, ClassPolicyId, id)
}

// AuthzError builds an AuthzError carrying a formatted message.
func (c *ResultConverter) AuthzError(ctx *marshal.Context, msg string) (foreign.Object, error) {
	return c.wrapString(ctx, ClassAuthzError, msg)
}

func (c *ResultConverter) wrapString(ctx *marshal.Context, class, value string) (foreign.Object, error) {
	s, err := ctx.Env().NewString(value)
	if err != nil {
		return foreign.Object{}, err
	}
	w, err := ctx.New(c.cache, class, "("+sigString+")V", foreign.Obj(s))
	if err != nil {
		return foreign.Object{}, err
	}
	return w.Object(), nil
}

// Decision returns the AuthzDecision constant for d.
func (c *ResultConverter) Decision(ctx *marshal.Context, d authz.Decision) (foreign.Object, error) {
	name, ok := Decisions.Name(d)
	if !ok {
		return foreign.Object{}, &marshal.UnknownEnumValueError{Enum: Decisions.Enum(), Value: string(d)}
	}
	return ctx.StaticObject(c.cache, ClassAuthzDecision, name, marshal.Sig(ClassAuthzDecision))
}
