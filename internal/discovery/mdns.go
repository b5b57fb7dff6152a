package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	ServiceType   = "_archstudio._tcp"
	ServiceDomain = "local."

	DefaultBrowseTimeout = 3 * time.Second
)

// Studio is a render studio found on the local network.
type Studio struct {
	Instance string            `json:"instance"`
	Hostname string            `json:"hostname"`
	IP       string            `json:"ip"`
	Port     int               `json:"port"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s Studio) URL() string {
	return "http://" + net.JoinHostPort(s.IP, strconv.Itoa(s.Port))
}

type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registers the web server on every multicast interface until
// Shutdown is called.
func Advertise(instance string, port int, meta map[string]string) (*Advertiser, error) {
	if strings.TrimSpace(instance) == "" {
		instance = "Render Studio"
	}
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, txtRecords(meta), nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}
	return &Advertiser{server: server}, nil
}

func (a *Advertiser) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// Browse collects studios answering within timeout.
func Browse(ctx context.Context, timeout time.Duration) ([]Studio, error) {
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("create mDNS resolver: %w", err)
	}

	var (
		mu    sync.Mutex
		found = make(map[string]Studio)
	)
	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for entry := range entries {
			if s, ok := parseEntry(entry); ok {
				mu.Lock()
				found[s.Instance] = s
				mu.Unlock()
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("browse mDNS services: %w", err)
	}
	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	out := make([]Studio, 0, len(found))
	for _, s := range found {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out, nil
}

func parseEntry(entry *zeroconf.ServiceEntry) (Studio, bool) {
	if entry == nil || entry.Port == 0 {
		return Studio{}, false
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return Studio{}, false
	}

	meta := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		if key != "" {
			meta[key] = value
		}
	}

	return Studio{
		Instance: entry.Instance,
		Hostname: entry.HostName,
		IP:       ip,
		Port:     entry.Port,
		Metadata: meta,
	}, true
}

func txtRecords(meta map[string]string) []string {
	out := make([]string, 0, len(meta))
	for k, v := range meta {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
