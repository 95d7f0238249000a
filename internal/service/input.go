package service

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/timmy/linkweaver/internal/domain"
)

// BacklinkRow is one row of an uploaded project CSV.
// Band counts arrive as text and are parsed during validation.
type BacklinkRow struct {
	Backlink         string `json:"backlink" validate:"required,http_url"`
	PrimaryKeyword   string `json:"primary_keyword" validate:"required"`
	SecondaryKeyword string `json:"seconday_keyword"`
	LowDR            string `json:"dr_0_30"`
	MidDR            string `json:"dr_30_60"`
	HighDR           string `json:"dr_60_100"`
	Industry         string `json:"industry"`
}

// WebsiteRow is one candidate site from an upload.
type WebsiteRow struct {
	URL      string  `json:"url" validate:"required,http_url"`
	Username string  `json:"username"`
	Password string  `json:"password"`
	DR       float64 `json:"dr" validate:"gte=0,lte=100"`
	Industry string  `json:"industry"`
}

// CreateProjectInput is a project submission.
type CreateProjectInput struct {
	Name        string        `json:"name" validate:"required"`
	TokenBudget int           `json:"token" validate:"gt=0"`
	Backlinks   []BacklinkRow `json:"data" validate:"required,min=1,dive"`
	Websites    []WebsiteRow  `json:"website" validate:"dive"`
}

// websitesInput wraps a bare website list so it validates with the same tags.
type websitesInput struct {
	Websites []WebsiteRow `json:"website" validate:"dive"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names, e.g. data[0].backlink.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// normalize trims the free-text cells so whitespace-only values count as empty.
func (in *CreateProjectInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	for i := range in.Backlinks {
		r := &in.Backlinks[i]
		r.Backlink = strings.TrimSpace(r.Backlink)
		r.PrimaryKeyword = strings.TrimSpace(r.PrimaryKeyword)
		r.Industry = strings.TrimSpace(r.Industry)
	}
	normalizeWebsites(in.Websites)
}

func normalizeWebsites(rows []WebsiteRow) {
	for i := range rows {
		rows[i].URL = strings.TrimSpace(rows[i].URL)
		rows[i].Industry = strings.TrimSpace(rows[i].Industry)
	}
}

func (in CreateProjectInput) validate(maxPerBand int) error {
	var errs []error
	if err := validate.Struct(in); err != nil {
		errs = append(errs, describe(err))
	}
	for i, row := range in.Backlinks {
		if _, err := row.counts(maxPerBand); err != nil {
			errs = append(errs, fmt.Errorf("data[%d].%w", i, err))
		}
	}
	return errors.Join(errs...)
}

func validateWebsites(rows []WebsiteRow) error {
	if err := validate.Struct(websitesInput{Websites: rows}); err != nil {
		return describe(err)
	}
	return nil
}

// describe turns validator output into one line per failing field.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("%s failed %q check", fieldPath(fe), fe.Tag()))
	}
	return errors.Join(errs...)
}

// fieldPath drops the struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

type bandCounts struct {
	low, mid, high int
}

func (r BacklinkRow) counts(maxPerBand int) (bandCounts, error) {
	var c bandCounts
	var errs []error
	var err error
	if c.low, err = parseCount(r.LowDR, maxPerBand); err != nil {
		errs = append(errs, fmt.Errorf("dr_0_30: %w", err))
	}
	if c.mid, err = parseCount(r.MidDR, maxPerBand); err != nil {
		errs = append(errs, fmt.Errorf("dr_30_60: %w", err))
	}
	if c.high, err = parseCount(r.HighDR, maxPerBand); err != nil {
		errs = append(errs, fmt.Errorf("dr_60_100: %w", err))
	}
	return c, errors.Join(errs...)
}

// requirement builds the stored row. The input must already have passed validate.
func (r BacklinkRow) requirement(id, projectID string, maxPerBand int) (domain.BacklinkRequirement, error) {
	c, err := r.counts(maxPerBand)
	if err != nil {
		return domain.BacklinkRequirement{}, err
	}
	return domain.BacklinkRequirement{
		ID:                id,
		ProjectID:         projectID,
		TargetURL:         r.Backlink,
		PrimaryKeyword:    r.PrimaryKeyword,
		SecondaryKeywords: splitKeywords(r.SecondaryKeyword),
		Industry:          r.Industry,
		LowDR:             c.low,
		MidDR:             c.mid,
		HighDR:            c.high,
	}, nil
}

func (w WebsiteRow) site(id string, projectID *string) domain.CandidateSite {
	return domain.CandidateSite{
		ID:        id,
		ProjectID: projectID,
		URL:       w.URL,
		Username:  w.Username,
		Password:  w.Password,
		DR:        int(math.Floor(w.DR)),
		Industry:  w.Industry,
	}
}

// parseCount reads a band count. An empty cell means zero.
func parseCount(raw string, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("%d is negative", n)
	}
	if n > max {
		return 0, fmt.Errorf("%d exceeds the per-band limit of %d", n, max)
	}
	return n, nil
}

func splitKeywords(raw string) domain.StringArray {
	var out domain.StringArray
	for _, kw := range strings.Split(raw, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
