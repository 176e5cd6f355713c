// Package validation checks inbound region parameters before any upstream
// call is made. Range rules are go-playground/validator struct tags; parsing
// and the date ordering rule are done here.
package validation

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/samirrijal/forestlens/internal/core/domain"
)

// Query parameter names, in the order violations are reported.
const (
	FieldLat       = "lat"
	FieldLng       = "lng"
	FieldRadius    = "radius"
	FieldStartDate = "start-date"
	FieldEndDate   = "end-date"
	FieldGeostore  = "geostoreId"
)

var fieldOrder = []string{FieldLat, FieldLng, FieldRadius, FieldStartDate, FieldEndDate}

var messages = map[string]string{
	FieldLat:       "Latitude must be between -90 and 90",
	FieldLng:       "Longitude must be between -180 and 180",
	FieldRadius:    "Radius must be between 100 and 100000 meters",
	FieldStartDate: "Start date must be in ISO 8601 format",
	FieldEndDate:   "End date must be in ISO 8601 format",
}

const msgDateOrder = "End date must be after start date"

var geostoreIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// RawRegionParams are the unparsed query values of a region request.
type RawRegionParams struct {
	Lat       string
	Lng       string
	Radius    string
	StartDate string
	EndDate   string
}

// regionParams is the parsed form the struct tags run against.
type regionParams struct {
	Lat       float64  `validate:"gte=-90,lte=90"`
	Lng       float64  `validate:"gte=-180,lte=180"`
	Radius    *float64 `validate:"omitempty,gte=100,lte=100000"`
	StartDate string   `validate:"omitempty,isodate"`
	EndDate   string   `validate:"omitempty,isodate"`
}

var structFields = map[string]string{
	"Lat":       FieldLat,
	"Lng":       FieldLng,
	"Radius":    FieldRadius,
	"StartDate": FieldStartDate,
	"EndDate":   FieldEndDate,
}

// getValidator returns the shared validator with the isodate tag registered.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
			_, ok := ParseISODate(fl.Field().String())
			return ok
		})
	})
	return validate
}

// ParseISODate accepts an ISO-8601 calendar date or an RFC 3339 timestamp.
func ParseISODate(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ValidateRegion turns raw params into a RegionQuery or a VALIDATION_ERROR
// listing every violated field in a fixed order.
func ValidateRegion(raw RawRegionParams) (domain.RegionQuery, error) {
	failed := map[string]string{}
	var p regionParams

	lat, ok := parseFloat(raw.Lat)
	if !ok {
		failed[FieldLat] = messages[FieldLat]
	}
	p.Lat = lat

	lng, ok := parseFloat(raw.Lng)
	if !ok {
		failed[FieldLng] = messages[FieldLng]
	}
	p.Lng = lng

	if strings.TrimSpace(raw.Radius) != "" {
		r, ok := parseFloat(raw.Radius)
		if !ok {
			failed[FieldRadius] = messages[FieldRadius]
		} else {
			p.Radius = &r
		}
	}
	p.StartDate = strings.TrimSpace(raw.StartDate)
	p.EndDate = strings.TrimSpace(raw.EndDate)

	var verrs validator.ValidationErrors
	if err := getValidator().Struct(&p); errors.As(err, &verrs) {
		for _, fe := range verrs {
			field := structFields[fe.StructField()]
			if _, seen := failed[field]; !seen {
				failed[field] = messages[field]
			}
		}
	}

	if _, bad := failed[FieldStartDate]; !bad && p.StartDate != "" && p.EndDate != "" {
		if _, bad := failed[FieldEndDate]; !bad {
			start, _ := ParseISODate(p.StartDate)
			end, _ := ParseISODate(p.EndDate)
			if !start.Before(end) {
				failed[FieldEndDate] = msgDateOrder
			}
		}
	}

	if len(failed) > 0 {
		violations := make([]domain.FieldViolation, 0, len(failed))
		for _, f := range fieldOrder {
			if msg, ok := failed[f]; ok {
				violations = append(violations, domain.FieldViolation{Field: f, Message: msg})
			}
		}
		return domain.RegionQuery{}, domain.ValidationError(violations)
	}

	q := domain.RegionQuery{
		Coordinate:   domain.Coordinate{Lat: p.Lat, Lng: p.Lng},
		RadiusMeters: domain.DefaultRadiusMeters,
		DateRange:    domain.DateRange{Start: p.StartDate, End: p.EndDate},
	}
	if p.Radius != nil {
		q.RadiusMeters = *p.Radius
	}
	return q, nil
}

// ValidateGeostoreID checks a path geostore id before it is embedded in an
// upstream URL.
func ValidateGeostoreID(id string) error {
	if !geostoreIDPattern.MatchString(id) {
		return domain.ValidationError([]domain.FieldViolation{{
			Field:   FieldGeostore,
			Message: "Geostore id must be 1-128 characters of letters, digits, '-' or '_'",
		}})
	}
	return nil
}

// ValidateDateParam checks an optional by-id date parameter.
func ValidateDateParam(field, value string) error {
	if value == "" {
		return nil
	}
	if _, ok := ParseISODate(value); !ok {
		return domain.ValidationError([]domain.FieldViolation{{
			Field:   field,
			Message: field + " must be in ISO 8601 format",
		}})
	}
	return nil
}

// parseFloat rejects empty, NaN and infinite input.
func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
