package trap

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Source describes the sender of a notification.
type Source struct {
	Address  string
	Hostname string
	Domain   string
}

// Properties returns the hostname, ipaddress and domain property map.
func (s Source) Properties() map[string]string {
	return map[string]string{
		PropHostname:  s.Hostname,
		PropIPAddress: s.Address,
		PropDomain:    s.Domain,
	}
}

// lookupAddrFunc matches net.Resolver.LookupAddr.
type lookupAddrFunc func(ctx context.Context, addr string) ([]string, error)

// HostResolver turns a source address into a Source using reverse DNS.
// Results, failures included, are cached per address.
type HostResolver struct {
	enabled bool
	timeout time.Duration
	lookup  lookupAddrFunc // injectable for tests
	cache   *lru.Cache[string, Source]
	logger  *slog.Logger
}

// NewHostResolver returns a resolver. When enabled is false no DNS queries
// are made and every address resolves to itself.
func NewHostResolver(enabled bool, timeout time.Duration, cacheSize int, logger *slog.Logger) (*HostResolver, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, Source](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("trap: create host cache: %w", err)
	}
	return &HostResolver{
		enabled: enabled,
		timeout: timeout,
		lookup:  net.DefaultResolver.LookupAddr,
		cache:   cache,
		logger:  logger.With("component", "resolver"),
	}, nil
}

// Resolve returns the Source for addr. The first PTR name is split into
// hostname (first label) and domain (the rest). On failure both hostname and
// domain are the address itself.
func (h *HostResolver) Resolve(ctx context.Context, addr string) Source {
	if !h.enabled {
		return Source{Address: addr, Hostname: addr, Domain: addr}
	}
	if s, ok := h.cache.Get(addr); ok {
		return s
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	src := Source{Address: addr, Hostname: addr, Domain: addr}
	names, err := h.lookup(ctx, addr)
	if err != nil || len(names) == 0 {
		h.logger.Debug("reverse lookup failed", "addr", addr, "err", err)
	} else {
		src.Hostname, src.Domain = SplitHostname(names[0])
	}
	h.cache.Add(addr, src)
	return src
}

// SplitHostname splits a fully qualified name into its first label and the
// remaining domain. Short names have an empty domain.
func SplitHostname(fqdn string) (host, domain string) {
	fqdn = strings.TrimSuffix(fqdn, ".")
	host, domain, _ = strings.Cut(fqdn, ".")
	return host, domain
}
