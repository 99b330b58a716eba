package secretstore

import (
	"context"
	"fmt"
	"strings"
)

// ResolveMode controls how resolved secrets are returned.
type ResolveMode string

const (
	ResolveModeValue ResolveMode = "value"
)

// Provider resolves secret paths.
type Provider interface {
	Resolve(ctx context.Context, path string) (string, error)
}

// ResolverOptions customize resolver behavior.
type ResolverOptions struct {
	DefaultProvider string
	Mode            ResolveMode
	BaseDir         string
}

type Resolver struct {
	providers       map[string]Provider
	defaultProvider string
	mode            ResolveMode
	cache           map[string]string
}

// NewResolver builds a resolver from config and options.
func NewResolver(cfg Config, opts ResolverOptions) (*Resolver, error) {
	providers := make(map[string]Provider, len(cfg.Providers))
	for name, pcfg := range cfg.Providers {
		providerName := strings.TrimSpace(name)
		if providerName == "" {
			return nil, fmt.Errorf("secret provider name cannot be empty")
		}
		providerType := strings.ToLower(strings.TrimSpace(pcfg.Type))
		switch providerType {
		case "file":
			provider, err := newFileProvider(pcfg.Path, opts.BaseDir)
			if err != nil {
				return nil, fmt.Errorf("provider %q: %w", providerName, err)
			}
			providers[providerName] = provider
		case "vault":
			provider, err := newVaultProvider(pcfg)
			if err != nil {
				return nil, fmt.Errorf("provider %q: %w", providerName, err)
			}
			providers[providerName] = provider
		case "":
			return nil, fmt.Errorf("provider %q missing type", providerName)
		default:
			return nil, fmt.Errorf("provider %q has unsupported type %q", providerName, providerType)
		}
	}
	mode := opts.Mode
	if mode == "" {
		mode = ResolveModeValue
	}
	defaultProvider := strings.TrimSpace(opts.DefaultProvider)
	if defaultProvider == "" {
		defaultProvider = strings.TrimSpace(cfg.DefaultProvider)
	}
	return &Resolver{
		providers:       providers,
		defaultProvider: defaultProvider,
		mode:            mode,
		cache:           map[string]string{},
	}, nil
}

// ResolveString resolves a single value if it is a secret:// reference,
// returning it unchanged (replaced=false) otherwise.
func (r *Resolver) ResolveString(ctx context.Context, value string) (string, bool, error) {
	defaultProvider := ""
	if r != nil {
		defaultProvider = r.defaultProvider
	}
	ref, ok, err := ParseRef(value, defaultProvider)
	if !ok {
		return value, false, err
	}
	if err != nil {
		return "", false, err
	}
	if r == nil {
		return "", false, fmt.Errorf("secret resolver is not configured")
	}
	val, err := r.resolveRef(ctx, ref)
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *Resolver) resolveRef(ctx context.Context, ref Ref) (string, error) {
	key := ref.Provider + "|" + ref.Path
	if cached, ok := r.cache[key]; ok {
		return cached, nil
	}
	provider := r.providers[ref.Provider]
	if provider == nil {
		return "", fmt.Errorf("secret provider %q is not configured", ref.Provider)
	}
	val, err := provider.Resolve(ctx, ref.Path)
	if err != nil {
		return "", err
	}
	r.cache[key] = val
	return val, nil
}

// Ref captures a parsed secret reference.
type Ref struct {
	Provider string
	Path     string
	Raw      string
}

// Reference returns the canonical secret reference string.
func (r Ref) Reference() string {
	if r.Provider == "" {
		return "secret:///" + r.Path
	}
	return "secret://" + r.Provider + "/" + r.Path
}

// ParseRef detects and parses secret:// references. Returns ok=false when value is not a reference.
func ParseRef(value string, defaultProvider string) (Ref, bool, error) {
	const prefix = "secret://"
	if !strings.HasPrefix(value, prefix) {
		return Ref{}, false, nil
	}
	rest := strings.TrimSpace(strings.TrimPrefix(value, prefix))
	if rest == "" {
		return Ref{}, true, fmt.Errorf("secret reference is missing provider/path")
	}
	if strings.HasPrefix(rest, "/") {
		rest = strings.TrimPrefix(rest, "/")
		if rest == "" {
			return Ref{}, true, fmt.Errorf("secret reference is missing path")
		}
		if strings.TrimSpace(defaultProvider) == "" {
			return Ref{}, true, fmt.Errorf("secret reference %q requires a default provider", value)
		}
		return Ref{Provider: strings.TrimSpace(defaultProvider), Path: rest, Raw: value}, true, nil
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 1 {
		if strings.TrimSpace(defaultProvider) == "" {
			return Ref{}, true, fmt.Errorf("secret reference %q is missing provider", value)
		}
		path := strings.TrimSpace(parts[0])
		if path == "" {
			return Ref{}, true, fmt.Errorf("secret reference %q is missing path", value)
		}
		return Ref{Provider: strings.TrimSpace(defaultProvider), Path: path, Raw: value}, true, nil
	}
	provider := strings.TrimSpace(parts[0])
	path := strings.TrimSpace(parts[1])
	if provider == "" {
		if strings.TrimSpace(defaultProvider) == "" {
			return Ref{}, true, fmt.Errorf("secret reference %q is missing provider", value)
		}
		provider = strings.TrimSpace(defaultProvider)
	}
	if path == "" {
		return Ref{}, true, fmt.Errorf("secret reference %q is missing path", value)
	}
	return Ref{Provider: provider, Path: path, Raw: value}, true, nil
}
