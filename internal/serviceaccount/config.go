package serviceaccount

import (
	"encoding/json"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/boostline/boostline/internal/roles"
)

// Account is one entry of the static allow-list, as configured in JSON.
type Account struct {
	ID    string   `json:"id" validate:"required"`
	Tiers []string `json:"tiers" validate:"required,min=1,dive,oneof=member operator admin"`
}

func (a Account) tiers() []roles.Tier {
	out := make([]roles.Tier, 0, len(a.Tiers))
	for _, raw := range a.Tiers {
		tier, ok := roles.ParseTier(raw)
		if !ok {
			continue
		}
		out = append(out, tier)
	}
	return out
}

// LoadAccounts parses the JSON account list. Malformed configuration
// degrades to an empty list so no bypass is grantable; it never fails
// startup.
func LoadAccounts(raw string, logger *slog.Logger) []Account {
	if raw == "" {
		return nil
	}
	var accounts []Account
	if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
		if logger != nil {
			logger.Warn("service account config rejected", slog.Any("error", err))
		}
		return nil
	}
	validate := validator.New()
	valid := accounts[:0]
	for _, acc := range accounts {
		if err := validate.Struct(acc); err != nil {
			if logger != nil {
				logger.Warn("service account entry rejected",
					slog.String("id", acc.ID),
					slog.Any("error", err))
			}
			continue
		}
		valid = append(valid, acc)
	}
	return valid
}
