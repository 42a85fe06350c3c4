package hostlib

import (
	"fmt"

	"github.com/openfroyo/cedarbridge/pkg/authz"
	"github.com/openfroyo/cedarbridge/pkg/foreign/objrt"
)

// ReadResult reads an AuthorizeResult object produced by the native side.
func ReadResult(inst *objrt.Instance) (*authz.Result, error) {
	if inst.ClassName() != ClassAuthorizeResult {
		return nil, fmt.Errorf("expected %s, got %s", ClassAuthorizeResult, inst.ClassName())
	}
	data, ok := inst.Native.(*resultData)
	if !ok {
		return nil, fmt.Errorf("%s: %w", ClassAuthorizeResult, errUninitialized)
	}

	result := &authz.Result{
		Principals: make(map[string]authz.PolicyResponse, len(data.principals)),
	}
	result.Decision, _ = inst.Get("decision").(bool)
	result.RequestID, _ = objrt.StringValue(asInstance(inst.Get("requestId")))

	var err error
	if result.Workload, err = readOptResponse(inst.Get("workload")); err != nil {
		return nil, fmt.Errorf("workload: %w", err)
	}
	if result.Person, err = readOptResponse(inst.Get("person")); err != nil {
		return nil, fmt.Errorf("person: %w", err)
	}
	for _, p := range data.principals {
		resp, err := readResponse(p.response)
		if err != nil {
			return nil, fmt.Errorf("principal %s: %w", p.key, err)
		}
		result.Principals[p.key] = *resp
	}
	return result, nil
}

// PrincipalOrder returns the principal keys in the order they were added.
func PrincipalOrder(inst *objrt.Instance) []string {
	data, ok := inst.Native.(*resultData)
	if !ok {
		return nil
	}
	keys := make([]string, len(data.principals))
	for i, p := range data.principals {
		keys[i] = p.key
	}
	return keys
}

func readOptResponse(v any) (*authz.PolicyResponse, error) {
	inst := asInstance(v)
	if inst == nil {
		return nil, nil
	}
	return readResponse(inst)
}

func readResponse(inst *objrt.Instance) (*authz.PolicyResponse, error) {
	if inst == nil {
		return nil, fmt.Errorf("policy response is null")
	}
	name, ok := objrt.EnumName(asInstance(inst.Get("decision")))
	if !ok {
		return nil, fmt.Errorf("policy response without a decision")
	}
	diag := asInstance(inst.Get("diagnostics"))
	if diag == nil {
		return nil, fmt.Errorf("policy response without diagnostics")
	}
	data, ok := diag.Native.(*diagnosticsData)
	if !ok {
		return nil, fmt.Errorf("%s: %w", ClassDiagnostics, errUninitialized)
	}
	return &authz.PolicyResponse{
		Decision: authz.Decision(name),
		Diagnostics: authz.Diagnostics{
			Reason: append([]string{}, data.reason...),
			Errors: append([]string{}, data.errors...),
		},
	}, nil
}
