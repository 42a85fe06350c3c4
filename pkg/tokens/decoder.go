package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/openfroyo/cedarbridge/pkg/config"
)

// Options configures a Decoder.
type Options struct {
	// CheckSignature verifies signatures against JWKS.
	CheckSignature bool

	// CheckStatus checks the shape of the status claim when present.
	CheckStatus bool

	// Algorithms lists the accepted signature algorithms. Empty accepts all.
	Algorithms []config.JwtAlgorithm

	// JWKS is an inline JSON Web Key Set.
	JWKS string

	// Leeway is the clock skew allowed on exp, nbf and iat.
	Leeway time.Duration

	// Now overrides the clock.
	Now func() time.Time

	// Requirements overrides the claim requirements per kind.
	Requirements map[Kind]ClaimRequirements
}

// OptionsFromConfig builds decoder options from the JWT configuration.
func OptionsFromConfig(cfg config.JWTConfig) Options {
	return Options{
		CheckSignature: cfg.CheckSignature,
		CheckStatus:    cfg.CheckStatus,
		Algorithms:     cfg.SignatureAlgorithms,
		JWKS:           cfg.JWKS,
	}
}

// Decoder decodes and validates the tokens of signed requests.
type Decoder struct {
	opts Options
	keys jwk.Set
}

// NewDecoder parses the key set. Signature checking without a key set is a
// configuration error.
func NewDecoder(opts Options) (*Decoder, error) {
	d := &Decoder{opts: opts}
	if opts.JWKS != "" {
		set, err := jwk.Parse([]byte(opts.JWKS))
		if err != nil {
			return nil, fmt.Errorf("failed to parse JWKS: %w", err)
		}
		d.keys = set
	}
	if opts.CheckSignature && d.keys == nil {
		return nil, errors.New("signature validation requires a JWKS")
	}
	return d, nil
}

// DecodeAll decodes every token of a request, keyed by kind.
func (d *Decoder) DecodeAll(raw map[string]string) (map[Kind]*Token, error) {
	out := make(map[Kind]*Token, len(raw))
	for name, value := range raw {
		kind, err := ParseKind(name)
		if err != nil {
			return nil, &TokenError{Kind: Kind(name), Err: err}
		}
		tok, err := d.Decode(kind, value)
		if err != nil {
			return nil, err
		}
		out[kind] = tok
	}
	return out, nil
}

// Decode parses one token and validates its claims. The signature is
// verified when CheckSignature is set.
func (d *Decoder) Decode(kind Kind, raw string) (*Token, error) {
	tok, err := d.decode(kind, raw)
	if err != nil {
		return nil, &TokenError{Kind: kind, Err: err}
	}
	return tok, nil
}

func (d *Decoder) decode(kind Kind, raw string) (*Token, error) {
	parserOpts := d.parserOptions(kind)
	claims := jwt.MapClaims{}

	var parsed *jwt.Token
	if d.opts.CheckSignature {
		var err error
		parsed, err = jwt.NewParser(parserOpts...).ParseWithClaims(raw, claims, d.keyFunc)
		if err != nil {
			return nil, err
		}
		claims, _ = parsed.Claims.(jwt.MapClaims)
	} else {
		var err error
		parsed, _, err = jwt.NewParser(parserOpts...).ParseUnverified(raw, claims)
		if err != nil {
			return nil, err
		}
		claims, _ = parsed.Claims.(jwt.MapClaims)
		if err := jwt.NewValidator(parserOpts...).Validate(claims); err != nil {
			return nil, err
		}
	}

	if err := d.requirements(kind).Check(claims); err != nil {
		return nil, err
	}
	if d.opts.CheckStatus {
		if err := checkStatus(claims); err != nil {
			return nil, err
		}
	}

	tok := &Token{
		Kind:     kind,
		Raw:      raw,
		Claims:   claims,
		Verified: d.opts.CheckSignature,
	}
	if alg, ok := parsed.Header["alg"].(string); ok {
		tok.Algorithm = alg
	}
	if kid, ok := parsed.Header["kid"].(string); ok {
		tok.KeyID = kid
	}
	return tok, nil
}

func (d *Decoder) parserOptions(kind Kind) []jwt.ParserOption {
	opts := []jwt.ParserOption{jwt.WithLeeway(d.opts.Leeway)}
	if d.opts.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(d.opts.Now))
	}
	if len(d.opts.Algorithms) > 0 {
		methods := make([]string, len(d.opts.Algorithms))
		for i, a := range d.opts.Algorithms {
			methods[i] = string(a)
		}
		opts = append(opts, jwt.WithValidMethods(methods))
	}
	req := d.requirements(kind)
	if req.Exp {
		opts = append(opts, jwt.WithExpirationRequired())
	}
	if req.Iat {
		opts = append(opts, jwt.WithIssuedAt())
	}
	return opts
}

func (d *Decoder) requirements(kind Kind) ClaimRequirements {
	if r, ok := d.opts.Requirements[kind]; ok {
		return r
	}
	return RequirementsFor(kind)
}

// keyFunc selects the verification key by kid, or the only key of a
// single-key set.
func (d *Decoder) keyFunc(token *jwt.Token) (any, error) {
	var (
		key jwk.Key
		ok  bool
	)
	if kid, _ := token.Header["kid"].(string); kid != "" {
		key, ok = d.keys.LookupKeyID(kid)
		if !ok {
			return nil, fmt.Errorf("%w for kid %q", ErrNoKey, kid)
		}
	} else if d.keys.Len() == 1 {
		key, _ = d.keys.Key(0)
	} else {
		return nil, fmt.Errorf("%w: token has no kid", ErrNoKey)
	}

	if _, sym := key.(jwk.SymmetricKey); !sym {
		pub, err := jwk.PublicKeyOf(key)
		if err != nil {
			return nil, fmt.Errorf("failed to derive public key: %w", err)
		}
		key = pub
	}
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("failed to export key: %w", err)
	}
	return raw, nil
}

// checkStatus requires a present status claim to reference a status list
// entry.
func checkStatus(claims jwt.MapClaims) error {
	v, ok := claims["status"]
	if !ok {
		return nil
	}
	status, ok := v.(map[string]any)
	if !ok {
		return errors.New("status claim must be an object")
	}
	list, ok := status["status_list"].(map[string]any)
	if !ok {
		return errors.New("status claim must contain status_list")
	}
	if _, ok := list["idx"].(float64); !ok {
		return errors.New("status_list.idx must be a number")
	}
	if uri, ok := list["uri"].(string); !ok || uri == "" {
		return errors.New("status_list.uri must be a non-empty string")
	}
	return nil
}
