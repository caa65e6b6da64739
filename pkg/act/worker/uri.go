package worker

import (
	"context"
	"net/netip"
	"net/url"
	"strings"

	"github.com/mnemonic-no/act-api-go/pkg/act"
	"github.com/mnemonic-no/act-api-go/pkg/act/errors"
)

// URIFacts returns the facts describing the components of a URI: the address
// it points to, its scheme, port, path, basename and query.
func URIFacts(ctx context.Context, a *act.Act, uri string) ([]*act.Fact, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.NewValidationError("error parsing URI: %s: %s", uri, err.Error())
	}

	scheme := u.Scheme
	host := u.Hostname()

	if scheme == "" || host == "" {
		return nil, errors.NewValidationError("URI requires both scheme and address part: %s", uri)
	}

	addressType, address := "fqdn", host
	if _, err := netip.ParseAddr(host); err == nil {
		addressType, address, err = IPObject(host)
		if err != nil {
			return nil, err
		}
	}

	type factSpec struct {
		factType string
		options  []act.FactOption
	}

	specs := []factSpec{
		{"componentOf", []act.FactOption{act.Source(addressType, address), act.Destination("uri", uri)}},
	}

	if port := u.Port(); port != "" {
		specs = append(specs, factSpec{"port", []act.FactOption{act.Value(port), act.Source("uri", uri)}})
	}

	specs = append(specs, factSpec{"scheme", []act.FactOption{act.Value(scheme), act.Source("uri", uri)}})

	if path := u.EscapedPath(); path != "" && strings.TrimSpace(path) != "/" {
		specs = append(specs, factSpec{"componentOf", []act.FactOption{act.Source("path", path), act.Destination("uri", uri)}})

		basename := path[strings.LastIndex(path, "/")+1:]
		if strings.TrimSpace(basename) != "" {
			specs = append(specs, factSpec{"basename", []act.FactOption{act.Value(basename), act.Source("path", path)}})
		}
	}

	if u.RawQuery != "" {
		specs = append(specs, factSpec{"componentOf", []act.FactOption{act.Source("query", u.RawQuery), act.Destination("uri", uri)}})
	}

	facts := make([]*act.Fact, 0, len(specs))
	for _, spec := range specs {
		f, err := a.Fact(ctx, spec.factType, spec.options...)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}

	return facts, nil
}

// HandleURI passes every fact of the URI to the handler. No fact is handled
// if the URI is invalid.
func HandleURI(ctx context.Context, a *act.Act, h *FactHandler, uri string) error {
	facts, err := URIFacts(ctx, a, uri)
	if err != nil {
		return err
	}

	for _, f := range facts {
		if err := h.Handle(ctx, f); err != nil {
			return err
		}
	}

	return nil
}

// IPObject returns the object type and the expanded form of an IPv4 or IPv6 address.
func IPObject(addr string) (string, string, error) {
	ip, err := netip.ParseAddr(strings.TrimSpace(addr))
	if err != nil || ip.Zone() != "" {
		return "", "", errors.NewValidationError("invalid IP address: %s", addr)
	}

	ip = ip.Unmap()
	if ip.Is4() {
		return "ipv4", ip.String(), nil
	}

	return "ipv6", ip.StringExpanded(), nil
}
