package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cedar-policy/cedar-go"
	"github.com/rs/zerolog"

	"github.com/openfroyo/cedarbridge/pkg/authz"
)

// snapshot is one compiled policy store. Engines swap snapshots atomically
// on reload.
type snapshot struct {
	storeID  string
	store    Store
	policies *cedar.PolicySet
	ids      []string
	guards   []*compiledGuard
	loadedAt time.Time
}

// Engine evaluates requests against one policy store.
type Engine struct {
	mu     sync.RWMutex
	snap   *snapshot
	logger zerolog.Logger
}

// NewEngine compiles doc into a new engine.
func NewEngine(ctx context.Context, doc *Document, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		logger: logger.With().Str("component", "policy-engine").Logger(),
	}
	if err := e.Load(ctx, doc); err != nil {
		return nil, err
	}
	return e, nil
}

// Load compiles doc and replaces the served store. On error the previous
// store stays in place.
func (e *Engine) Load(ctx context.Context, doc *Document) error {
	snap, err := compile(ctx, doc)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.snap = snap
	e.mu.Unlock()

	e.logger.Debug().
		Str("store", snap.storeID).
		Int("policies", len(snap.ids)).
		Int("guards", len(snap.guards)).
		Msg("Policy store loaded")
	return nil
}

func compile(ctx context.Context, doc *Document) (*snapshot, error) {
	id, store, err := doc.Single()
	if err != nil {
		return nil, err
	}
	set, ids, err := compilePolicies(store.Policies)
	if err != nil {
		return nil, fmt.Errorf("failed to compile policy store: %w", err)
	}

	snap := &snapshot{
		storeID:  id,
		store:    store,
		policies: set,
		ids:      ids,
		loadedAt: time.Now(),
	}
	seen := make(map[string]bool, len(store.Guards))
	for i := range store.Guards {
		g := store.Guards[i]
		if g.Name == "" {
			return nil, fmt.Errorf("guard %d has no name", i)
		}
		if seen[g.Name] {
			return nil, fmt.Errorf("duplicate guard %s", g.Name)
		}
		seen[g.Name] = true
		if g.Disabled {
			continue
		}
		if g.Severity == "" {
			g.Severity = SeverityError
		}
		cg, err := compileGuard(ctx, &g)
		if err != nil {
			return nil, fmt.Errorf("failed to compile guard %s: %w", g.Name, err)
		}
		snap.guards = append(snap.guards, cg)
	}
	return snap, nil
}

func (e *Engine) current() *snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap
}

// Authorize evaluates the Cedar policies for one principal.
func (e *Engine) Authorize(q Query) authz.PolicyResponse {
	return evaluate(e.current().policies, q)
}

// Guard evaluates every enabled guard. A guard that fails to evaluate is
// reported as a blocking violation.
func (e *Engine) Guard(ctx context.Context, input *GuardInput) *GuardResult {
	snap := e.current()
	res := &GuardResult{
		Allowed:   true,
		Evaluated: make([]string, 0, len(snap.guards)),
	}

	for _, cg := range snap.guards {
		res.Evaluated = append(res.Evaluated, cg.guard.Name)

		violations, err := cg.evaluate(ctx, input)
		if err != nil {
			e.logger.Error().Err(err).
				Str("guard", cg.guard.Name).
				Msg("Guard evaluation failed")
			violations = []Violation{{
				Guard:    cg.guard.Name,
				Message:  err.Error(),
				Severity: SeverityError,
			}}
		}

		for _, v := range violations {
			if v.Severity.Blocks() {
				res.Violations = append(res.Violations, v)
			} else {
				res.Warnings = append(res.Warnings, v)
			}
		}
	}

	res.Allowed = len(res.Violations) == 0
	if len(res.Warnings) > 0 {
		e.logger.Debug().Int("warnings", len(res.Warnings)).Msg("Guard warnings")
	}
	return res
}

// StoreID returns the id of the served store.
func (e *Engine) StoreID() string {
	return e.current().storeID
}

// PolicyIDs returns the ids of the served Cedar policies in sorted order.
func (e *Engine) PolicyIDs() []string {
	return append([]string(nil), e.current().ids...)
}

// GuardNames returns the names of the enabled guards.
func (e *Engine) GuardNames() []string {
	snap := e.current()
	names := make([]string, len(snap.guards))
	for i, cg := range snap.guards {
		names[i] = cg.guard.Name
	}
	return names
}

// LoadedAt returns when the served store was compiled.
func (e *Engine) LoadedAt() time.Time {
	return e.current().loadedAt
}

// TrustedIssuer returns the issuer whose discovery endpoint lives under iss.
func (e *Engine) TrustedIssuer(iss string) (string, TrustedIssuer, bool) {
	snap := e.current()
	want := strings.TrimSuffix(iss, "/")
	ids := make([]string, 0, len(snap.store.TrustedIssuers))
	for id := range snap.store.TrustedIssuers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		ti := snap.store.TrustedIssuers[id]
		endpoint := strings.TrimSuffix(ti.OpenIDConfigurationEndpoint, "/.well-known/openid-configuration")
		if strings.TrimSuffix(endpoint, "/") == want {
			return id, ti, true
		}
	}
	return "", TrustedIssuer{}, false
}

// HasTrustedIssuers reports whether the store restricts token issuers.
func (e *Engine) HasTrustedIssuers() bool {
	return len(e.current().store.TrustedIssuers) > 0
}
