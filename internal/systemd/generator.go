// Package systemd renders the service and timer units that run the archive
// command on a calendar.
package systemd

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultUnitDir    = "/etc/systemd/system"
	DefaultBinary     = "/usr/local/bin/objarchiver"
	DefaultConfigPath = "/etc/objarchiver/config.yaml"
	DefaultCalendar   = "daily"
)

type Options struct {
	Name       string
	Binary     string
	ConfigPath string
	// OnCalendar takes systemd calendar expressions, e.g. "daily" or
	// "Mon *-*-* 02:00:00".
	OnCalendar      []string
	RandomizedDelay time.Duration
	// LockDir is kept writable when Hardening is on.
	LockDir   string
	Hardening bool
}

type Units struct {
	ServiceName string
	TimerName   string
	Service     string
	Timer       string
}

func Generate(opts Options) (*Units, error) {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = DefaultConfigPath
	}
	if len(opts.OnCalendar) == 0 {
		opts.OnCalendar = []string{DefaultCalendar}
	}
	for _, c := range opts.OnCalendar {
		if strings.TrimSpace(c) == "" || strings.ContainsAny(c, "\n\r") {
			return nil, fmt.Errorf("invalid calendar expression %q", c)
		}
	}
	if opts.RandomizedDelay < 0 {
		return nil, fmt.Errorf("randomized delay must not be negative")
	}

	base := "objarchiver-" + sanitizeUnitName(opts.Name)
	units := &Units{
		ServiceName: base + ".service",
		TimerName:   base + ".timer",
	}
	units.Service = buildService(opts)
	units.Timer = buildTimer(opts, units.ServiceName)
	return units, nil
}

func buildService(opts Options) string {
	var b strings.Builder

	b.WriteString("[Unit]\n")
	fmt.Fprintf(&b, "Description=objarchiver archive run %s\n", opts.Name)
	b.WriteString("After=network-online.target\n")
	b.WriteString("Wants=network-online.target\n\n")

	b.WriteString("[Service]\n")
	b.WriteString("Type=oneshot\n")
	fmt.Fprintf(&b, "ExecStart=%s archive --config %s\n", opts.Binary, opts.ConfigPath)

	if opts.Hardening {
		b.WriteString("ProtectSystem=strict\n")
		b.WriteString("ProtectHome=read-only\n")
		b.WriteString("PrivateTmp=yes\n")
		b.WriteString("NoNewPrivileges=yes\n")
		b.WriteString("ProtectKernelTunables=yes\n")
		b.WriteString("ProtectKernelModules=yes\n")
		b.WriteString("ProtectControlGroups=yes\n")
		b.WriteString("RestrictRealtime=yes\n")
		b.WriteString("RestrictSUIDSGID=yes\n")
		b.WriteString("LockPersonality=yes\n")
		b.WriteString("ProtectClock=yes\n")
		b.WriteString("ProtectHostname=yes\n")
		b.WriteString("ProtectKernelLogs=yes\n")
		b.WriteString("RestrictNamespaces=yes\n")
		b.WriteString("RestrictAddressFamilies=AF_UNIX AF_INET AF_INET6\n")
		if opts.LockDir != "" {
			fmt.Fprintf(&b, "ReadWritePaths=%s\n", opts.LockDir)
		}
	}
	return b.String()
}

func buildTimer(opts Options, serviceName string) string {
	var b strings.Builder

	b.WriteString("[Unit]\n")
	fmt.Fprintf(&b, "Description=objarchiver timer %s\n", opts.Name)
	fmt.Fprintf(&b, "Requires=%s\n\n", serviceName)

	b.WriteString("[Timer]\n")
	for _, c := range opts.OnCalendar {
		b.WriteString("OnCalendar=" + strings.TrimSpace(c) + "\n")
	}
	if sec := int64(opts.RandomizedDelay / time.Second); sec > 0 {
		fmt.Fprintf(&b, "RandomizedDelaySec=%d\n", sec)
	}
	b.WriteString("Persistent=yes\n\n")

	b.WriteString("[Install]\n")
	b.WriteString("WantedBy=timers.target\n")
	return b.String()
}

func sanitizeUnitName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else if r == ' ' || r == '.' || r == '/' {
			b.WriteRune('-')
		}
	}
	s := strings.Trim(b.String(), "-")
	if s == "" {
		return "default"
	}
	return s
}
