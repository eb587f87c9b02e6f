package ssh

import (
	"strconv"
	"strings"
	"time"
)

// WithOptions applies the OpenSSH command line options in opts that the Go
// client understands: -p, -i, -J, -l and -o for Port, IdentityFile, User,
// ProxyJump, ConnectTimeout and StrictHostKeyChecking. Options only fill
// fields that are still unset, matching ssh's first-value-wins rule when
// explicit settings come first. Everything else is returned as ignored.
func (cfg Config) WithOptions(opts string) (Config, []string) {
	var ignored []string
	fields := strings.Fields(opts)
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		next := func() (string, bool) {
			if i+1 < len(fields) {
				i++
				return fields[i], true
			}
			return "", false
		}
		tok := f
		var key, val string
		switch {
		case f == "-o":
			v, ok := next()
			if !ok {
				ignored = append(ignored, f)
				continue
			}
			tok = f + " " + v
			key, val = splitOption(v)
		case strings.HasPrefix(f, "-o"):
			key, val = splitOption(f[2:])
		case f == "-p" || f == "-i" || f == "-J" || f == "-l":
			v, ok := next()
			if !ok {
				ignored = append(ignored, f)
				continue
			}
			tok = f + " " + v
			key, val = map[string]string{"-p": "port", "-i": "identityfile", "-J": "proxyjump", "-l": "user"}[f], v
		default:
			ignored = append(ignored, f)
			continue
		}
		if !cfg.apply(key, val) {
			ignored = append(ignored, tok)
		}
	}
	return cfg, ignored
}

func splitOption(s string) (string, string) {
	k, v, ok := strings.Cut(s, "=")
	if !ok {
		k, v, _ = strings.Cut(s, " ")
	}
	return strings.ToLower(strings.TrimSpace(k)), strings.TrimSpace(v)
}

func (cfg *Config) apply(key, val string) bool {
	switch key {
	case "port":
		n, err := strconv.Atoi(val)
		if err != nil {
			return false
		}
		if cfg.Port == 0 {
			cfg.Port = n
		}
	case "identityfile":
		if cfg.KeyPath == "" {
			cfg.KeyPath = val
		}
	case "user":
		if cfg.User == "" {
			cfg.User = val
		}
	case "proxyjump":
		if cfg.ProxyJump == "" && !strings.EqualFold(val, "none") {
			cfg.ProxyJump = val
		}
	case "connecttimeout":
		n, err := strconv.Atoi(val)
		if err != nil {
			return false
		}
		if cfg.Timeout == 0 {
			cfg.Timeout = time.Duration(n) * time.Second
		}
	case "stricthostkeychecking":
		switch strings.ToLower(val) {
		case "no", "off":
			cfg.Insecure = true
		}
	default:
		return false
	}
	return true
}

// jumpTarget splits a ProxyJump value of the form [user@]host[:port].
// Only the first hop of a comma separated chain is used.
func jumpTarget(spec, defaultUser string) (user, addr string) {
	spec, _, _ = strings.Cut(spec, ",")
	user = defaultUser
	if u, h, ok := strings.Cut(spec, "@"); ok {
		user, spec = u, h
	}
	return user, Config{Host: spec}.Addr()
}
