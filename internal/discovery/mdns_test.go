package discovery

import (
	"net"
	"slices"
	"testing"
)

func TestNewService(t *testing.T) {
	svc, err := NewService(Config{
		Instance: "studio",
		Port:     8090,
		Version:  "1.2.3",
		HostName: "studio.local.",
		IPs:      []net.IP{net.ParseIP("192.168.1.20")},
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	if svc.Service != ServiceType || svc.Port != 8090 || svc.Instance != "studio" {
		t.Errorf("service = %+v", svc)
	}
	if !slices.Contains(svc.TXT, "version=1.2.3") || !slices.Contains(svc.TXT, "path=/api") {
		t.Errorf("TXT = %v", svc.TXT)
	}
}

func TestNewServiceErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing port", Config{Instance: "x", HostName: "x.local.", IPs: []net.IP{net.IPv4(10, 0, 0, 1)}}},
		{"host not fully qualified", Config{Instance: "x", Port: 1, HostName: "x.local", IPs: []net.IP{net.IPv4(10, 0, 0, 1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewService(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParsePort(t *testing.T) {
	tests := []struct {
		addr    string
		want    int
		wantErr bool
	}{
		{":8090", 8090, false},
		{"0.0.0.0:9000", 9000, false},
		{"8091", 8091, false},
		{"[::1]:7000", 7000, false},
		{":http", 0, true},
		{":0", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			got, err := ParsePort(tt.addr)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParsePort(%q) = %d, %v", tt.addr, got, err)
			}
		})
	}
}
