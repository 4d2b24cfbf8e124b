// Package phone turns raw phone input into E.164 strings used to match
// contacts across devices.
package phone

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/vortex-fintech/go-contacts/contact"
)

var ErrInvalidRegion = errors.New("phone: invalid default region")

type Config struct {
	// DefaultRegion is the ISO 3166-1 alpha-2 region assumed for numbers
	// written without a country code.
	DefaultRegion string
}

func (c Config) validate() (string, error) {
	region, ok := NormalizeRegion(c.DefaultRegion)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRegion, c.DefaultRegion)
	}
	if phonenumbers.GetCountryCodeForRegion(region) == 0 {
		return "", fmt.Errorf("%w: %q is not a dialing region", ErrInvalidRegion, region)
	}
	return region, nil
}

// Normalizer implements contact.Normalizer on top of libphonenumber metadata.
type Normalizer struct {
	region string
}

var _ contact.Normalizer = (*Normalizer)(nil)

func New(cfg Config) (*Normalizer, error) {
	region, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	return &Normalizer{region: region}, nil
}

func (n *Normalizer) Region() string { return n.region }

// Normalize sets FormattedNumber from ContactNumber, falling back to the
// current FormattedNumber when there is no raw input, so applying it twice
// changes nothing. Numbers that cannot be resolved become "".
func (n *Normalizer) Normalize(c contact.Contact) contact.Contact {
	raw := c.ContactNumber
	if strings.TrimSpace(raw) == "" {
		raw = c.FormattedNumber
	}
	c.FormattedNumber = n.Format(raw)
	return c
}

// Format returns raw in E.164, or "" when it is not a possible number.
func (n *Normalizer) Format(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	num, err := phonenumbers.Parse(raw, n.region)
	if err != nil {
		return ""
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// NormalizeRegion upper-cases and trims an ISO2 code. ok is false when the
// result is not two ASCII letters.
func NormalizeRegion(code string) (string, bool) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if len(c) != 2 {
		return "", false
	}
	if c[0] < 'A' || c[0] > 'Z' || c[1] < 'A' || c[1] > 'Z' {
		return "", false
	}
	return c, true
}
