package profiles

import (
	"math"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/localworks/localworks-api/internal/app/apperr"
	"github.com/localworks/localworks-api/internal/domain"
)

const (
	maxDisplayName = 100
	maxHeadline    = 120
	maxBio         = 2000
	maxSkills      = 50
	maxCredentials = 20
	maxPhotos      = 12
)

func normalizeRate(in RateInput) (domain.Rate, error) {
	r := domain.DefaultRate()
	if in.Currency != nil {
		c := strings.ToUpper(strings.TrimSpace(*in.Currency))
		if len(c) != 3 || strings.IndexFunc(c, func(r rune) bool { return r < 'A' || r > 'Z' }) >= 0 {
			return domain.Rate{}, apperr.Validation("rate.currency", "must be a 3-letter currency code")
		}
		r.Currency = c
	}
	if in.Amount != nil {
		a := *in.Amount
		if math.IsNaN(a) || math.IsInf(a, 0) || a < 0 {
			return domain.Rate{}, apperr.Validation("rate.amount", "must be >= 0")
		}
		r.Amount = a
	}
	if in.Unit != nil {
		u := domain.RateUnit(strings.ToLower(strings.TrimSpace(*in.Unit)))
		if !u.Valid() {
			return domain.Rate{}, apperr.Validation("rate.unit", "must be one of hour, day, project")
		}
		r.Unit = u
	}
	return r, nil
}

func normalizeCredentials(in []domain.Credential) ([]domain.Credential, error) {
	if len(in) > maxCredentials {
		return nil, apperr.Validation("credentials", "too many entries")
	}
	out := make([]domain.Credential, 0, len(in))
	for _, c := range in {
		c = domain.Credential{
			Label:  strings.TrimSpace(c.Label),
			Issuer: strings.TrimSpace(c.Issuer),
			ID:     strings.TrimSpace(c.ID),
		}
		if !c.Complete() {
			return nil, apperr.Validation("credentials", "each credential requires label, issuer and id")
		}
		out = append(out, c)
	}
	return out, nil
}

func normalizePhotos(in []string) ([]string, error) {
	if len(in) > maxPhotos {
		return nil, apperr.Validation("photos", "too many entries")
	}
	out := make([]string, 0, len(in))
	for _, raw := range in {
		s := strings.TrimSpace(raw)
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, apperr.Validation("photos", "must be absolute http(s) URLs")
		}
		out = append(out, s)
	}
	return out, nil
}

func normalizeSkills(in []string) ([]string, error) {
	out := domain.NormalizeSkills(in)
	if len(out) > maxSkills {
		return nil, apperr.Validation("skills", "too many entries")
	}
	return out, nil
}

func checkText(field, v string, max int) error {
	if utf8.RuneCountInString(v) > max {
		return apperr.Validation(field, "too long")
	}
	return nil
}

func checkCoordinates(loc domain.Location) error {
	if lat := loc.Latitude; lat != nil && (math.IsNaN(*lat) || *lat < -90 || *lat > 90) {
		return apperr.Validation("location.lat", "must be within [-90, 90]")
	}
	if lng := loc.Longitude; lng != nil && (math.IsNaN(*lng) || *lng < -180 || *lng > 180) {
		return apperr.Validation("location.lng", "must be within [-180, 180]")
	}
	return nil
}

func checkRadius(km int) error {
	if km < 0 || km > domain.MaxServiceRadiusKm {
		return apperr.Validation("serviceRadiusKm", "must be between 0 and 100")
	}
	return nil
}

// validate checks a fully assembled profile, including the publish invariant.
func validate(p domain.Profile) error {
	if p.DisplayName == "" {
		return apperr.Validation("displayName", "must be non-empty")
	}
	if err := checkText("displayName", p.DisplayName, maxDisplayName); err != nil {
		return err
	}
	if err := checkText("headline", p.Headline, maxHeadline); err != nil {
		return err
	}
	if err := checkText("bio", p.Bio, maxBio); err != nil {
		return err
	}
	if err := checkCoordinates(p.Location); err != nil {
		return err
	}
	if err := checkRadius(p.ServiceRadiusKm); err != nil {
		return err
	}
	if p.IsPublished && !p.Publishable() {
		return apperr.ProfileIncomplete()
	}
	return nil
}
