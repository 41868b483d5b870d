// Package metadata implements the MetadataProvider capability of
// spec.md §6/§9: an opaque provider giving the worker its own identity,
// region, and public endpoint, backed by an IMDSv2-style token-protected
// HTTP endpoint with a NAT-PMP/UPnP fallback for the public endpoint
// when the cloud metadata service doesn't expose one directly
// (bare-metal/on-prem workers).
package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/huin/goupnp"
	natpmp "github.com/jackpal/go-nat-pmp"
)

// Grounded on the teacher's p2p/nat/nat.go, which wraps the same two
// dependencies (natpmp.NewClient, goupnp discovery) behind a port-mapper
// Interface; here they serve the narrower "what is my public endpoint"
// question instead of port mapping.

// Provider is the capability injected into the worker boot path.
type Provider interface {
	WorkerID(ctx context.Context) (string, error)
	Region(ctx context.Context) (string, error)
	PublicEndpoint(ctx context.Context) (string, error)
}

// IMDSProvider talks to an IMDSv2-shaped token-protected metadata
// endpoint (AWS IMDSv2 path shape; other clouds expose an equivalent).
type IMDSProvider struct {
	baseURL    string
	httpClient *http.Client
}

func NewIMDSProvider(baseURL string) *IMDSProvider {
	return &IMDSProvider{baseURL: baseURL, httpClient: &http.Client{Timeout: 5 * time.Second}}
}

var _ Provider = (*IMDSProvider)(nil)

func (p *IMDSProvider) token(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.baseURL+"/latest/api/token", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-aws-ec2-metadata-token-ttl-seconds", "21600")
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("metadata: fetch token: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("metadata: read token: %w", err)
	}
	return string(body), nil
}

func (p *IMDSProvider) get(ctx context.Context, path string) (string, error) {
	tok, err := p.token(ctx)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-aws-ec2-metadata-token", tok)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("metadata: get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("metadata: get %s: status %d", path, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("metadata: read %s: %w", path, err)
	}
	return string(body), nil
}

func (p *IMDSProvider) WorkerID(ctx context.Context) (string, error) {
	return p.get(ctx, "/latest/meta-data/instance-id")
}

func (p *IMDSProvider) Region(ctx context.Context) (string, error) {
	return p.get(ctx, "/latest/meta-data/placement/region")
}

// PublicEndpoint tries the cloud metadata service first, falling back to
// NAT-PMP then UPnP router discovery when the metadata service has no
// public IP entry (spec.md §6's [DOMAIN] addition for bare-metal/on-prem
// workers).
func (p *IMDSProvider) PublicEndpoint(ctx context.Context) (string, error) {
	if ip, err := p.get(ctx, "/latest/meta-data/public-ipv4"); err == nil && ip != "" {
		return ip, nil
	}
	if ip, err := discoverNATPMP(); err == nil {
		return ip, nil
	}
	return discoverUPnP(ctx)
}

// discoverNATPMP asks the default gateway for the router's external
// address via NAT-PMP (github.com/jackpal/go-nat-pmp).
func discoverNATPMP() (string, error) {
	gw, err := natpmp.DiscoverGateway()
	if err != nil {
		return "", fmt.Errorf("metadata: nat-pmp discover gateway: %w", err)
	}
	client := natpmp.NewClient(gw)
	resp, err := client.GetExternalAddress()
	if err != nil {
		return "", fmt.Errorf("metadata: nat-pmp external address: %w", err)
	}
	ip := resp.ExternalIPAddress
	return fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], ip[3]), nil
}

// discoverUPnP falls back to a UPnP IGD query (github.com/huin/goupnp)
// when NAT-PMP isn't supported by the router. goupnp's discovery only
// yields the gateway device's location, not the WAN IP directly (that
// requires the generated WANIPConnection1 SOAP bindings, out of scope
// for this fallback-of-a-fallback); the device host is used as the
// best-effort public endpoint.
func discoverUPnP(ctx context.Context) (string, error) {
	devices, err := goupnp.DiscoverDevices("urn:schemas-upnp-org:device:InternetGatewayDevice:1")
	if err != nil {
		return "", fmt.Errorf("metadata: upnp discover: %w", err)
	}
	for _, d := range devices {
		if d.Err != nil || d.Location == nil {
			continue
		}
		return d.Location.Host, nil
	}
	return "", fmt.Errorf("metadata: upnp: no gateway devices found")
}
