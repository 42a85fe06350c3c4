package convert

import (
	"encoding/json"
	"errors"

	"github.com/openfroyo/cedarbridge/pkg/authz"
	"github.com/openfroyo/cedarbridge/pkg/foreign"
	"github.com/openfroyo/cedarbridge/pkg/handles"
	"github.com/openfroyo/cedarbridge/pkg/marshal"
)

// RequestConverter reads signed and unsigned authorization requests.
type RequestConverter struct {
	cache *handles.Cache
}

// NewRequestConverter creates a converter with an empty cache.
func NewRequestConverter() *RequestConverter {
	return &RequestConverter{cache: handles.New("request")}
}

// Register resolves RequestClasses into the converter's cache.
func (c *RequestConverter) Register(env foreign.Env) error {
	return c.cache.Register(env, RequestClasses...)
}

// Cache returns the converter's handle cache.
func (c *RequestConverter) Cache() *handles.Cache {
	return c.cache
}

// Request converts an AuthorizeRequest. A null object converts to nil.
func (c *RequestConverter) Request(ctx *marshal.Context, obj foreign.Object) (*authz.Request, error) {
	if obj.IsNull() {
		return nil, nil
	}
	r := ctx.Read(c.cache, ClassAuthorizeRequest, obj)

	tokens, err := c.tokens(ctx, r)
	if err != nil {
		return nil, err
	}
	action, resource, context, err := c.common(ctx, r)
	if err != nil {
		return nil, err
	}
	return &authz.Request{
		Tokens:   tokens,
		Action:   action,
		Resource: *resource,
		Context:  context,
	}, nil
}

// tokens reads the token map through getTokenNames and getToken.
func (c *RequestConverter) tokens(ctx *marshal.Context, r *marshal.Reader) (map[string]string, error) {
	names, err := r.Call("getTokenNames", "()"+sigList)
	if err != nil {
		return nil, err
	}
	if names.IsNull() {
		return nil, &marshal.FieldCannotBeNullError{Class: ClassAuthorizeRequest, Field: "tokenNames"}
	}

	tokens := make(map[string]string)
	err = ctx.Each(names, ClassAuthorizeRequest, "tokenNames", func(_ int, nameObj foreign.Object) error {
		name, err := ctx.Env().GetString(nameObj)
		if err != nil {
			return err
		}
		tokenObj, err := r.Call("getToken", "("+sigString+")"+sigString, foreign.Obj(nameObj))
		if err != nil {
			return err
		}
		token, err := ctx.String(tokenObj)
		if err != nil {
			return err
		}
		if token == nil {
			return &TokenCannotBeNullError{Name: name}
		}
		tokens[name] = *token
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// common reads the action, resource and context shared by both request shapes.
func (c *RequestConverter) common(ctx *marshal.Context, r *marshal.Reader) (string, *authz.EntityData, json.RawMessage, error) {
	action, err := r.String("action")
	if err != nil {
		return "", nil, nil, err
	}
	resourceObj, err := r.RequireObject("resource", ClassEntityData)
	if err != nil {
		return "", nil, nil, err
	}
	resource, err := c.EntityData(ctx, resourceObj)
	if err != nil {
		return "", nil, nil, err
	}
	contextObj, err := r.RequireObject("context", ClassContext)
	if err != nil {
		return "", nil, nil, err
	}
	context, err := c.Context(ctx, contextObj)
	if err != nil {
		return "", nil, nil, err
	}
	return action, resource, context, nil
}

// RequestUnsigned converts an AuthorizeRequestUnsigned. A null object converts
// to nil. A null principal fails the whole conversion.
func (c *RequestConverter) RequestUnsigned(ctx *marshal.Context, obj foreign.Object) (*authz.RequestUnsigned, error) {
	if obj.IsNull() {
		return nil, nil
	}
	r := ctx.Read(c.cache, ClassAuthorizeRequestUnsigned, obj)

	list, err := r.RequireObject("principals", marshal.ClassList)
	if err != nil {
		return nil, err
	}
	principals := []authz.EntityData{}
	err = ctx.Each(list, ClassAuthorizeRequestUnsigned, "principals", func(_ int, elem foreign.Object) error {
		p, err := c.EntityData(ctx, elem)
		if err != nil {
			return err
		}
		principals = append(principals, *p)
		return nil
	})
	var nullElem *marshal.NullListElementError
	if errors.As(err, &nullElem) && nullElem.Class == ClassAuthorizeRequestUnsigned && nullElem.Field == "principals" {
		return nil, &PrincipalCannotBeNullError{Index: nullElem.Index, Err: nullElem}
	}
	if err != nil {
		return nil, err
	}

	action, resource, context, err := c.common(ctx, r)
	if err != nil {
		return nil, err
	}
	return &authz.RequestUnsigned{
		Principals: principals,
		Action:     action,
		Resource:   *resource,
		Context:    context,
	}, nil
}

// EntityData converts an EntityData. The CedarEntityMapping takes precedence
// over the legacy type and id fields. A null object converts to nil.
func (c *RequestConverter) EntityData(ctx *marshal.Context, obj foreign.Object) (*authz.EntityData, error) {
	if obj.IsNull() {
		return nil, nil
	}
	r := ctx.Read(c.cache, ClassEntityData, obj)

	out := &authz.EntityData{}
	mapping, err := r.Object("cedarMapping", ClassCedarEntityMapping)
	if err != nil {
		return nil, err
	}
	if mapping.IsNull() {
		if out.Type, err = r.String("type"); err != nil {
			return nil, err
		}
		if out.ID, err = r.String("id"); err != nil {
			return nil, err
		}
	} else {
		m := ctx.Read(c.cache, ClassCedarEntityMapping, mapping)
		if out.Type, err = m.String("entityType"); err != nil {
			return nil, err
		}
		if out.ID, err = m.String("id"); err != nil {
			return nil, err
		}
	}

	attrs, err := r.String("attributes")
	if err != nil {
		return nil, err
	}
	if out.Attributes, err = marshal.ParseObject(attrs, "EntityData.attributes"); err != nil {
		return nil, err
	}
	return out, nil
}

// Context converts a Context into its JSON object payload. A null object
// converts to nil.
func (c *RequestConverter) Context(ctx *marshal.Context, obj foreign.Object) (json.RawMessage, error) {
	if obj.IsNull() {
		return nil, nil
	}
	data, err := ctx.Read(c.cache, ClassContext, obj).String("data")
	if err != nil {
		return nil, err
	}
	if _, err := marshal.ParseObject(data, "Context.data"); err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
