package shopcache

import (
	"regexp"
	"slices"
	"strings"
)

var (
	slugRe = regexp.MustCompile(`^[a-z0-9_]+(?:-[a-z0-9_]+)*$`)

	validGenders = []string{GenderMen, GenderWomen, GenderKid, GenderUnisex}
	validSizes   = []string{"XS", "S", "M", "L", "XL", "XXL"}
)

// ProductInput is the payload of a create or update. Images holds the
// references the product already has; uploaded names are appended to it.
type ProductInput struct {
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Stock       int      `json:"stock"`
	Sizes       []string `json:"sizes"`
	Gender      string   `json:"gender"`
	Tags        []string `json:"tags"`
	Images      []string `json:"images"`
}

// InputFrom seeds an edit payload from a fetched product.
func InputFrom(p Product) ProductInput {
	return ProductInput{
		Title:       p.Title,
		Slug:        p.Slug,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		Sizes:       slices.Clone(p.Sizes),
		Gender:      p.Gender,
		Tags:        slices.Clone(p.Tags),
		Images:      slices.Clone(p.Images),
	}
}

// Validate checks the payload before anything goes over the network.
// It returns ValidationErrors or nil.
func (in ProductInput) Validate() error {
	var errs ValidationErrors
	if strings.TrimSpace(in.Title) == "" {
		errs = append(errs, &FieldError{Field: "title", Reason: "required"})
	}
	switch {
	case in.Slug == "":
		errs = append(errs, &FieldError{Field: "slug", Reason: "required"})
	case !slugRe.MatchString(in.Slug):
		errs = append(errs, &FieldError{Field: "slug", Reason: "must be lower-case words joined by '-'"})
	}
	if strings.TrimSpace(in.Description) == "" {
		errs = append(errs, &FieldError{Field: "description", Reason: "required"})
	}
	if in.Price < 0 {
		errs = append(errs, &FieldError{Field: "price", Reason: "must be >= 0"})
	}
	if in.Stock < 0 {
		errs = append(errs, &FieldError{Field: "stock", Reason: "must be >= 0"})
	}
	if !slices.Contains(validGenders, in.Gender) {
		errs = append(errs, &FieldError{Field: "gender", Reason: "must be one of men, women, kid, unisex"})
	}
	for _, s := range in.Sizes {
		if !slices.Contains(validSizes, s) {
			errs = append(errs, &FieldError{Field: "sizes", Reason: "unknown size " + s})
			break
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ParseTags turns the comma separated tag field into lower-cased, trimmed tags.
// Empty entries are dropped.
func ParseTags(raw string) []string {
	parts := strings.Split(strings.ToLower(raw), ",")
	tags := make([]string, 0, len(parts))
	for _, t := range parts {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
