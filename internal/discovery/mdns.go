// Package discovery advertises the mediaout API on the local network over
// mDNS so control surfaces can find it without configuration.
package discovery

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/mdns"

	"github.com/smazurov/mediaout/internal/logging"
)

// ServiceType is the DNS-SD service advertised for the API.
const ServiceType = "_mediaout._tcp"

// Config describes the advertised service.
type Config struct {
	// Instance defaults to the host name.
	Instance string
	Port     int
	Version  string
	// HostName and IPs default to the local host and its non-loopback
	// addresses. HostName must be fully qualified when set.
	HostName string
	IPs      []net.IP
}

// Advertiser answers mDNS queries for the API until Shutdown.
type Advertiser struct {
	server *mdns.Server
	logger *slog.Logger
}

// NewService builds the mDNS zone for cfg without opening any socket.
func NewService(cfg Config) (*mdns.MDNSService, error) {
	if cfg.Port <= 0 {
		return nil, errors.New("discovery: port is required")
	}
	if cfg.Instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("discovery: %w", err)
		}
		cfg.Instance = "mediaout on " + host
	}
	ips := cfg.IPs
	if len(ips) == 0 {
		var err error
		if ips, err = localIPs(); err != nil {
			return nil, err
		}
	}

	txt := []string{"path=/api", "docs=/docs"}
	if cfg.Version != "" {
		txt = append(txt, "version="+cfg.Version)
	}
	svc, err := mdns.NewMDNSService(cfg.Instance, ServiceType, "", cfg.HostName, cfg.Port, ips, txt)
	if err != nil {
		return nil, fmt.Errorf("discovery: failed to create service: %w", err)
	}
	return svc, nil
}

// Advertise starts answering queries for cfg.
func Advertise(cfg Config) (*Advertiser, error) {
	svc, err := NewService(cfg)
	if err != nil {
		return nil, err
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return nil, fmt.Errorf("discovery: failed to start mdns server: %w", err)
	}

	logger := logging.GetLogger("discovery")
	logger.Info("Advertising API over mDNS", "instance", svc.Instance, "service", ServiceType, "port", svc.Port)
	return &Advertiser{server: server, logger: logger}, nil
}

// Shutdown stops answering queries.
func (a *Advertiser) Shutdown() error {
	if a == nil || a.server == nil {
		return nil
	}
	a.logger.Debug("Stopping mDNS advertisement")
	return a.server.Shutdown()
}

// ParsePort extracts the port from a listen address such as ":8090".
func ParsePort(addr string) (int, error) {
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port in %q", addr)
	}
	return port, nil
}

func localIPs() ([]net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("discovery: failed to list addresses: %w", err)
	}
	var ips []net.IP
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			ips = append(ips, ip4)
		}
	}
	if len(ips) == 0 {
		return nil, errors.New("discovery: no non-loopback IPv4 address")
	}
	return ips, nil
}
