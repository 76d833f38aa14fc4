package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/squigly/coach-api/internal/models"
)

var channelIDRegex = regexp.MustCompile(`^UC[a-zA-Z0-9_-]{22}$`)

// fingerprintRegex matches a hex sha256 or the empty-list marker.
var fingerprintRegex = regexp.MustCompile(`^([a-f0-9]{64}|unknown)$`)

type Validator struct {
	strictChannelIDs bool
}

// New returns a Validator. With strictChannelIDs off, any non-blank channel id
// up to 64 characters is accepted.
func New(strictChannelIDs bool) *Validator {
	return &Validator{strictChannelIDs: strictChannelIDs}
}

func (v *Validator) IsValidChannelID(channelID string) bool {
	if v.strictChannelIDs {
		return channelIDRegex.MatchString(channelID)
	}
	trimmed := strings.TrimSpace(channelID)
	return trimmed != "" && trimmed == channelID && len(channelID) <= 64
}

func (v *Validator) ValidateAnalyzeRequest(req *models.AnalyzeRequest) error {
	if !v.IsValidChannelID(req.ChannelID) {
		return fmt.Errorf("invalid channel ID format: %s", req.ChannelID)
	}
	if req.Fingerprint != "" && !fingerprintRegex.MatchString(req.Fingerprint) {
		return fmt.Errorf("invalid fingerprint format")
	}
	return nil
}

// NormalizeEmail trims and lowercases addr and rejects anything that is not a
// bare address.
func (v *Validator) NormalizeEmail(addr string) (string, error) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr || !strings.Contains(addr[strings.LastIndex(addr, "@")+1:], ".") {
		return "", fmt.Errorf("invalid email address: %s", addr)
	}
	return addr, nil
}
