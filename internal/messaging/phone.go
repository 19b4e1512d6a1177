package messaging

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is assumed for numbers written without a country code.
const DefaultRegion = "MX"

const whatsappPrefix = "whatsapp:"

// NormalizeE164 parses a loosely formatted phone number into E.164, reading
// numbers without a country code in region.
func NormalizeE164(value, region string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("messaging: phone required")
	}
	if region == "" {
		region = DefaultRegion
	}
	num, err := phonenumbers.Parse(value, strings.ToUpper(region))
	if err != nil {
		return "", fmt.Errorf("messaging: parse phone %q: %w", value, err)
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", fmt.Errorf("messaging: phone %q is not a possible number", value)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// NormalizeWhatsApp returns the Twilio WhatsApp address ("whatsapp:+5255...")
// for a phone number. Values already carrying the prefix pass through.
func NormalizeWhatsApp(value, region string) (string, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(strings.ToLower(value), whatsappPrefix) {
		return whatsappPrefix + strings.TrimSpace(value[len(whatsappPrefix):]), nil
	}
	e164, err := NormalizeE164(value, region)
	if err != nil {
		return "", err
	}
	return whatsappPrefix + e164, nil
}
