package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/cedarbridge/pkg/authz"
	"github.com/openfroyo/cedarbridge/pkg/config"
	"github.com/openfroyo/cedarbridge/pkg/decisionlog"
	"github.com/openfroyo/cedarbridge/pkg/policy"
	"github.com/openfroyo/cedarbridge/pkg/telemetry"
	"github.com/openfroyo/cedarbridge/pkg/tokens"
)

const (
	kindSigned   = "signed"
	kindUnsigned = "unsigned"
)

// Cedarling evaluates authorization requests against one policy store. It
// is safe for concurrent use.
type Cedarling struct {
	cfg      *config.BootstrapConfig
	policies *policy.Engine
	loader   *policy.Loader
	decoder  *tokens.Decoder
	rule     *PrincipalRule
	log      *decisionlog.Logger

	tel     *telemetry.Telemetry
	logger  *telemetry.Logger
	metrics *telemetry.Metrics

	stopWatch context.CancelFunc
	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

type options struct {
	tel         *telemetry.Telemetry
	logOpts     []decisionlog.Option
	now         func() time.Time
	leeway      time.Duration
	reloadDelay time.Duration
}

// Option configures New.
type Option func(*options)

// WithTelemetry sets the telemetry used for logging, spans and metrics.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(o *options) { o.tel = tel }
}

// WithDecisionLogOptions passes options to the decision log.
func WithDecisionLogOptions(opts ...decisionlog.Option) Option {
	return func(o *options) { o.logOpts = append(o.logOpts, opts...) }
}

// WithClock overrides the clock used to validate token times.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLeeway allows clock skew when validating token times.
func WithLeeway(d time.Duration) Option {
	return func(o *options) { o.leeway = d }
}

// WithReloadDelay changes how long file policy stores wait for writes to
// settle before reloading.
func WithReloadDelay(d time.Duration) Option {
	return func(o *options) { o.reloadDelay = d }
}

// New validates cfg, loads the policy store and opens the decision log.
// File policy stores are reloaded when the file changes.
func New(ctx context.Context, cfg *config.BootstrapConfig, opts ...Option) (*Cedarling, error) {
	if cfg == nil {
		return nil, &ConfigError{Component: "bootstrap", Err: errors.New("configuration is nil")}
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.tel == nil {
		o.tel = telemetry.NewNopTelemetry()
	}

	if err := config.NewParser().Validate(ctx, cfg); err != nil {
		return nil, &ConfigError{Component: "bootstrap", Err: err}
	}

	c := &Cedarling{
		cfg:     cfg,
		tel:     o.tel,
		logger:  o.tel.Logger.NewComponentLogger("engine"),
		metrics: o.tel.Metrics,
	}
	zl := c.logger.Zerolog()

	c.loader = policy.NewLoader(zl)
	if o.reloadDelay > 0 {
		c.loader.SetReloadDelay(o.reloadDelay)
	}
	doc, err := c.loader.Load(cfg.PolicyStore)
	if err != nil {
		return nil, &ConfigError{Component: "policy store", Err: err}
	}
	if c.policies, err = policy.NewEngine(ctx, doc, zl); err != nil {
		return nil, &ConfigError{Component: "policy store", Err: err}
	}

	topts := tokens.OptionsFromConfig(cfg.JWT)
	topts.Now = o.now
	topts.Leeway = o.leeway
	if c.decoder, err = tokens.NewDecoder(topts); err != nil {
		return nil, &ConfigError{Component: "jwt", Err: err}
	}

	if c.rule, err = CompilePrincipalRule(cfg.Authorization.PrincipalBoolOperator); err != nil {
		return nil, &ConfigError{Component: "authorization", Err: err}
	}

	logOpts := append([]decisionlog.Option{decisionlog.WithTelemetry(o.tel)}, o.logOpts...)
	if c.log, err = decisionlog.New(ctx, cfg, logOpts...); err != nil {
		return nil, &ConfigError{Component: "log", Err: err}
	}

	if cfg.PolicyStore.Source.IsFile() {
		c.watchStore()
	}

	zl.Info().
		Str("application", cfg.ApplicationName).
		Str("store", c.policies.StoreID()).
		Int("policies", len(c.policies.PolicyIDs())).
		Msg("Engine ready")
	return c, nil
}

// watchStore reloads a file policy store on change. A store that fails to
// load keeps the previous one in service.
func (c *Cedarling) watchStore() {
	format := config.FormatYAML
	if c.cfg.PolicyStore.Source == config.PolicyStoreFileJSON {
		format = config.FormatJSON
	}

	ctx, cancel := context.WithCancel(context.Background())
	err := c.loader.Watch(ctx, c.cfg.PolicyStore.Path, format,
		func(doc *policy.Document) error {
			if err := c.policies.Load(ctx, doc); err != nil {
				return err
			}
			c.metrics.RecordStoreReload("success")
			return nil
		},
		func(err error) {
			c.metrics.RecordStoreReload("failure")
		},
	)
	if err != nil {
		cancel()
		c.logger.WithError(err).Warn("Policy store will not be reloaded")
		return
	}
	c.stopWatch = cancel
}

// PolicyStoreID returns the id of the served policy store.
func (c *Cedarling) PolicyStoreID() string {
	return c.policies.StoreID()
}

// DecisionLog returns the decision log.
func (c *Cedarling) DecisionLog() *decisionlog.Logger {
	return c.log
}

// Authorize evaluates a request whose principals come from JWTs.
func (c *Cedarling) Authorize(ctx context.Context, req authz.Request) (*authz.Result, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()
	requestID := uuid.NewString()
	ctx, span := c.tel.Tracer.StartAuthorizeSpan(ctx, kindSigned, req.Action)
	defer span.End()
	logger := c.logger.WithRequestID(requestID)

	res, entry, err := c.authorizeSigned(ctx, requestID, req)
	if err != nil {
		telemetry.RecordError(span, err)
		logger.WithError(err).Debug("Authorization failed")
		return nil, err
	}
	c.finish(ctx, span, res, entry, start)
	logger.Debugf("Signed authorization decided %t", res.Decision)
	return res, nil
}

func (c *Cedarling) authorizeSigned(ctx context.Context, requestID string, req authz.Request) (*authz.Result, *decisionlog.Entry, error) {
	toks, err := c.decoder.DecodeAll(req.Tokens)
	if err != nil {
		return nil, nil, newAuthorizeError(ErrorTypeProcessTokens, "failed to process tokens", err)
	}

	set := newEntitySet()
	sp, err := c.buildSignedEntities(toks, set)
	if err != nil {
		return nil, nil, err
	}

	var principals []principal
	for _, p := range []*principal{sp.workload, sp.user} {
		if p != nil {
			principals = append(principals, *p)
		}
	}

	res, entry, err := c.evaluate(ctx, requestID, kindSigned, req.Action, req.Resource, req.Context, principals, set)
	if err != nil {
		return nil, nil, err
	}

	if sp.workload != nil {
		resp := res.Principals[sp.workload.key]
		res.Workload = &resp
	}
	if sp.user != nil {
		resp := res.Principals[sp.user.key]
		res.Person = &resp
	}

	if c.rule != nil {
		res.Decision, err = c.applyRule(res.Principals)
		if err != nil {
			return nil, nil, err
		}
	} else {
		res.Decision, err = c.combineFlags(res)
		if err != nil {
			return nil, nil, err
		}
	}

	auth := c.cfg.Authorization
	entry.Tokens = c.tokenIDs(toks)
	if access := toks[tokens.AccessToken]; access != nil && len(auth.DecisionLogWorkloadClaims) > 0 {
		entry.WorkloadClaims = access.Select(auth.DecisionLogWorkloadClaims)
	}
	if sp.userClaims != nil && len(auth.DecisionLogUserClaims) > 0 {
		entry.UserClaims = selectClaims(sp.userClaims, auth.DecisionLogUserClaims)
	}
	return res, entry, nil
}

// combineFlags requires every principal enabled by the use flags to allow.
func (c *Cedarling) combineFlags(res *authz.Result) (bool, error) {
	auth := c.cfg.Authorization
	if auth.UseWorkloadPrincipal && res.Workload == nil {
		return false, newAuthorizeError(ErrorTypeCreateRequestWorkloadEntity,
			"workload principal is required", errors.New("no workload entity was built"))
	}
	if auth.UseUserPrincipal && res.Person == nil {
		return false, newAuthorizeError(ErrorTypeCreateRequestUserEntity,
			"user principal is required", errors.New("no user entity was built"))
	}
	if !auth.UseWorkloadPrincipal && !auth.UseUserPrincipal {
		return false, nil
	}
	if auth.UseWorkloadPrincipal && !res.Workload.Decision.IsAllow() {
		return false, nil
	}
	if auth.UseUserPrincipal && !res.Person.Decision.IsAllow() {
		return false, nil
	}
	return true, nil
}

// AuthorizeUnsigned evaluates a request whose principals are supplied
// directly.
func (c *Cedarling) AuthorizeUnsigned(ctx context.Context, req authz.RequestUnsigned) (*authz.Result, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()
	requestID := uuid.NewString()
	ctx, span := c.tel.Tracer.StartAuthorizeSpan(ctx, kindUnsigned, req.Action)
	defer span.End()
	logger := c.logger.WithRequestID(requestID)

	res, entry, err := c.authorizeUnsigned(ctx, requestID, req)
	if err != nil {
		telemetry.RecordError(span, err)
		logger.WithError(err).Debug("Authorization failed")
		return nil, err
	}
	c.finish(ctx, span, res, entry, start)
	logger.Debugf("Unsigned authorization decided %t", res.Decision)
	return res, nil
}

func (c *Cedarling) authorizeUnsigned(ctx context.Context, requestID string, req authz.RequestUnsigned) (*authz.Result, *decisionlog.Entry, error) {
	set := newEntitySet()
	principals, err := c.buildUnsignedPrincipals(req.Principals, set)
	if err != nil {
		return nil, nil, err
	}

	res, entry, err := c.evaluate(ctx, requestID, kindUnsigned, req.Action, req.Resource, req.Context, principals, set)
	if err != nil {
		return nil, nil, err
	}

	if c.rule != nil {
		// Rules may name principals by reference or by type. A type allows
		// only when every principal of that type allows.
		decisions := make(map[string]authz.Decision, 2*len(principals))
		for _, p := range principals {
			d := res.Principals[p.key].Decision
			decisions[p.key] = d
			if prev, ok := decisions[p.spec.Type]; !ok || prev.IsAllow() {
				decisions[p.spec.Type] = d
			}
		}
		if res.Decision, err = c.evalRule(decisions); err != nil {
			return nil, nil, err
		}
		return res, entry, nil
	}

	res.Decision = len(principals) > 0
	for _, p := range principals {
		if !res.Principals[p.key].Decision.IsAllow() {
			res.Decision = false
		}
	}
	return res, entry, nil
}

// evaluate builds the resource, action and context, runs the guards and
// evaluates every principal.
func (c *Cedarling) evaluate(ctx context.Context, requestID, kind, action string, resource authz.EntityData, rawContext []byte, principals []principal, set *entitySet) (*authz.Result, *decisionlog.Entry, error) {
	if resource.Type == "" || resource.ID == "" {
		return nil, nil, newAuthorizeError(ErrorTypeResourceEntity,
			"invalid resource", errors.New("type and id are required"))
	}
	resourceSpec := policy.EntitySpec{Type: resource.Type, ID: resource.ID, Attributes: resource.Attributes}
	set.add(resourceSpec)

	actionUID, err := policy.ParseEntityUID(action)
	if err != nil {
		return nil, nil, newAuthorizeError(ErrorTypeAction, "invalid action", err)
	}

	record, ctxValues, err := policy.ParseContext(rawContext)
	if err != nil {
		return nil, nil, newAuthorizeError(ErrorTypeCreateContext, "invalid context", err)
	}

	entities, err := policy.BuildEntities(set.specs)
	if err != nil {
		return nil, nil, newAuthorizeError(ErrorTypeEntities, "failed to build entities", err)
	}

	guard := c.policies.Guard(ctx, guardInput(kind, action, resource, principals, ctxValues))
	violations := make([]string, 0, len(guard.Violations))
	for _, v := range guard.Violations {
		violations = append(violations, v.String())
	}

	res := &authz.Result{
		Principals: make(map[string]authz.PolicyResponse, len(principals)),
		RequestID:  requestID,
	}
	for _, p := range principals {
		var resp authz.PolicyResponse
		if guard.Allowed {
			resp = c.policies.Authorize(policy.Query{
				Principal: p.spec.UID(),
				Action:    actionUID,
				Resource:  resourceSpec.UID(),
				Context:   record,
				Entities:  entities,
			})
		} else {
			resp = authz.PolicyResponse{
				Decision: authz.Deny,
				Diagnostics: authz.Diagnostics{
					Reason: []string{},
					Errors: append([]string(nil), violations...),
				},
			}
		}
		res.Principals[p.key] = resp
	}

	entry := decisionlog.NewEntry(requestID, config.LogLevelInfo)
	entry.Kind = kind
	entry.ApplicationName = c.cfg.ApplicationName
	entry.PolicyStoreID = c.policies.StoreID()
	entry.Action = action
	entry.Resource = resource.UID()
	entry.GuardViolations = violations
	entry.Diagnostics = make(map[string]authz.Diagnostics, len(principals))
	for _, p := range principals {
		entry.Principals = append(entry.Principals, authz.EntityData{Type: p.spec.Type, ID: p.spec.ID}.UID())
		entry.Diagnostics[p.key] = res.Principals[p.key].Diagnostics
	}
	return res, entry, nil
}

// applyRule runs the principal rule over signed principals keyed by type.
func (c *Cedarling) applyRule(responses map[string]authz.PolicyResponse) (bool, error) {
	decisions := make(map[string]authz.Decision, len(responses))
	for k, r := range responses {
		decisions[k] = r.Decision
	}
	return c.evalRule(decisions)
}

func (c *Cedarling) evalRule(decisions map[string]authz.Decision) (bool, error) {
	ok, err := c.rule.Eval(decisions)
	if err != nil {
		return false, newAuthorizeError(ErrorTypePrincipalRule, "failed to combine principal decisions", err)
	}
	return ok, nil
}

// finish records the decision in metrics, the span and the decision log.
func (c *Cedarling) finish(ctx context.Context, span trace.Span, res *authz.Result, entry *decisionlog.Entry, start time.Time) {
	entry.Decision = authz.DecisionOf(res.Decision)
	entry.DecisionTime = time.Since(start)

	c.metrics.RecordDecision(entry.Kind, res.Decision)
	span.SetAttributes(
		attribute.String("authz.request_id", res.RequestID),
		attribute.Bool("authz.decision", res.Decision),
	)
	telemetry.RecordSuccess(span)
	c.log.Log(ctx, entry)
}

// tokenIDs returns the configured id claim of each token, keyed by kind.
func (c *Cedarling) tokenIDs(toks map[tokens.Kind]*tokens.Token) map[string]string {
	claim := c.cfg.Authorization.DecisionLogDefaultJwtID
	if claim == "" {
		claim = config.DefaultDecisionLogJwtID
	}
	ids := make(map[string]string, len(toks))
	for kind, tok := range toks {
		if id := tok.String(claim); id != "" {
			ids[string(kind)] = id
		}
	}
	return ids
}

// Close stops the policy store watcher and flushes the decision log. Calls
// after the first return its result.
func (c *Cedarling) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.stopWatch != nil {
			c.stopWatch()
		}
		var errs []error
		if err := c.loader.StopWatching(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop policy store watcher: %w", err))
		}
		if err := c.log.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close decision log: %w", err))
		}
		c.closeErr = errors.Join(errs...)
		c.logger.Info("Engine closed")
	})
	return c.closeErr
}

func guardInput(kind, action string, resource authz.EntityData, principals []principal, ctxValues map[string]any) *policy.GuardInput {
	in := &policy.GuardInput{
		Kind:   kind,
		Action: action,
		Resource: policy.EntityInput{
			Type:       resource.Type,
			ID:         resource.ID,
			Attributes: resource.Attributes,
		},
		Principals: make([]policy.EntityInput, 0, len(principals)),
		Context:    ctxValues,
	}
	for _, p := range principals {
		in.Principals = append(in.Principals, policy.EntityInput{
			Type:       p.spec.Type,
			ID:         p.spec.ID,
			Attributes: p.spec.Attributes,
		})
	}
	return in
}

func selectClaims(claims map[string]any, names []string) map[string]any {
	out := make(map[string]any, len(names))
	for _, n := range names {
		if v, ok := claims[n]; ok {
			out[n] = v
		}
	}
	return out
}
