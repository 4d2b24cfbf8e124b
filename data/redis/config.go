package redis

import (
	"errors"
	"strings"
	"time"
)

type Mode = string

const (
	ModeSingle   Mode = "single"
	ModeSentinel Mode = "sentinel"
	ModeCluster  Mode = "cluster"
)

// Config selects one of the go-redis universal client modes. URL, when set,
// is parsed with redis.ParseURL and implies single mode; explicit fields
// other than timeouts and pool sizes are then ignored.
type Config struct {
	URL string

	Mode       string
	Addr       string
	Addrs      []string
	MasterName string
	DB         int
	Username   string
	Password   string
	TLSEnabled bool

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
}

var (
	errAddressRequired      = errors.New("redis: address is required")
	errUnsupportedMode      = errors.New("redis: unsupported mode")
	errMasterNameRequired   = errors.New("redis: master name is required for sentinel mode")
	errMasterNameUnexpected = errors.New("redis: master name is only valid for sentinel mode")
	errSingleModeAddrCount  = errors.New("redis: single mode requires exactly one address")
	errClusterModeAddrCount = errors.New("redis: cluster mode requires at least two addresses")
	errClusterDBUnsupported = errors.New("redis: db must be 0 in cluster mode")
	errInvalidDB            = errors.New("redis: db must be >= 0")
)

func (c Config) mode() Mode {
	m := strings.ToLower(strings.TrimSpace(c.Mode))
	if m == "" {
		return ModeSingle
	}
	return m
}

// addrs prefers Addrs and falls back to Addr.
func (c Config) addrs() []string {
	out := make([]string, 0, len(c.Addrs)+1)
	for _, a := range c.Addrs {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		if a := strings.TrimSpace(c.Addr); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c Config) validate() error {
	if strings.TrimSpace(c.URL) != "" {
		return nil
	}
	if c.DB < 0 {
		return errInvalidDB
	}
	addrs := c.addrs()
	if len(addrs) == 0 {
		return errAddressRequired
	}
	master := strings.TrimSpace(c.MasterName)

	switch c.mode() {
	case ModeSingle:
		if len(addrs) != 1 {
			return errSingleModeAddrCount
		}
		if master != "" {
			return errMasterNameUnexpected
		}
	case ModeCluster:
		if len(addrs) < 2 {
			return errClusterModeAddrCount
		}
		if master != "" {
			return errMasterNameUnexpected
		}
		if c.DB != 0 {
			return errClusterDBUnsupported
		}
	case ModeSentinel:
		if master == "" {
			return errMasterNameRequired
		}
	default:
		return errUnsupportedMode
	}
	return nil
}
