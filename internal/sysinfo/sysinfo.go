// Package sysinfo collects host information relevant to running UDP
// endpoints: build version, uptime, local addresses and the interfaces
// able to carry multicast traffic.
package sysinfo

import (
	"net"
	"os"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

var (
	// Version is the build version, set at build time via ldflags.
	// Example: go build -ldflags="-X github.com/postalsys/dgram/internal/sysinfo.Version=1.0.0"
	Version = "dev"

	// startTime is when the process started.
	startTime     time.Time
	startTimeOnce sync.Once
)

func init() {
	startTimeOnce.Do(func() {
		startTime = time.Now()
	})
	if Version == "dev" {
		Version = enhanceDevVersion()
	}
}

// Info describes the local host.
type Info struct {
	Hostname            string
	OS                  string
	Arch                string
	Version             string
	StartTime           time.Time
	IPAddresses         []string
	MulticastInterfaces []string
}

// Collect gathers local system information.
func Collect() *Info {
	hostname, _ := os.Hostname()

	return &Info{
		Hostname:            hostname,
		OS:                  runtime.GOOS,
		Arch:                runtime.GOARCH,
		Version:             Version,
		StartTime:           startTime,
		IPAddresses:         GetLocalIPs(),
		MulticastInterfaces: MulticastInterfaces(),
	}
}

// GetLocalIPs returns non-loopback IPv4 addresses.
func GetLocalIPs() []string {
	var ips []string

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ips
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}

		if ipNet.IP.IsLoopback() {
			continue
		}

		if ipv4 := ipNet.IP.To4(); ipv4 != nil {
			ips = append(ips, ipv4.String())
		}
	}

	if len(ips) > 10 {
		ips = ips[:10]
	}

	return ips
}

// MulticastInterfaces returns the names of interfaces that are up and
// support multicast. Any of them is a valid udp.multicast_interface.
func MulticastInterfaces() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var names []string
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		names = append(names, ifi.Name)
	}
	return names
}

// StartTime returns the process start time.
func StartTime() time.Time {
	return startTime
}

// Uptime returns the process uptime.
func Uptime() time.Duration {
	return time.Since(startTime)
}

// enhanceDevVersion derives dev-<commit>[-dirty] from the embedded VCS
// metadata, falling back to dev-<start timestamp>.
func enhanceDevVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		var revision string
		var dirty bool
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				revision = s.Value
			case "vcs.modified":
				dirty = s.Value == "true"
			}
		}
		if revision != "" {
			if len(revision) > 7 {
				revision = revision[:7]
			}
			if dirty {
				return "dev-" + revision + "-dirty"
			}
			return "dev-" + revision
		}
	}
	return "dev-" + startTime.Format("20060102-150405")
}
