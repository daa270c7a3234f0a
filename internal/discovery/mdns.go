// Package discovery объявляет сервис доски в локальной сети через mDNS.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const ServiceType = "_boardservice._tcp"

// Entry — найденный в сети инстанс.
type Entry struct {
	Instance string
	Addr     string // host:port
	Info     []string
}

// Advertise публикует сервис на port до вызова Shutdown у результата.
func Advertise(instance string, port int, info []string) (*mdns.Server, error) {
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("could not get hostname: %w", err)
		}
		instance = host
	}

	service, err := mdns.NewMDNSService(instance, ServiceType, "", "", port, nil, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	return server, nil
}

// Browse опрашивает сеть timeout и возвращает найденные инстансы.
func Browse(ctx context.Context, timeout time.Duration) ([]Entry, error) {
	if timeout <= 0 {
		timeout = time.Second
	}
	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan []Entry, 1)

	go func() {
		var out []Entry
		seen := make(map[string]struct{})
		for e := range entries {
			entry, ok := toEntry(e)
			if !ok {
				continue
			}
			if _, dup := seen[entry.Addr]; dup {
				continue
			}
			seen[entry.Addr] = struct{}{}
			out = append(out, entry)
		}
		done <- out
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < params.Timeout {
			params.Timeout = left
		}
	}

	err := mdns.Query(params)
	close(entries)
	found := <-done
	if err != nil {
		return found, fmt.Errorf("mdns query: %w", err)
	}
	return found, nil
}

func toEntry(e *mdns.ServiceEntry) (Entry, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return Entry{}, false
	}
	instance := strings.TrimSuffix(e.Name, "."+ServiceType+".local.")
	return Entry{
		Instance: instance,
		Addr:     net.JoinHostPort(e.AddrV4.String(), fmt.Sprint(e.Port)),
		Info:     e.InfoFields,
	}, true
}
