// Package catalog defines the product record supplied by external scrapers.
// The record identifier is the join key across every index structure;
// re-ingesting an identifier is an update, never a duplicate.
package catalog

import (
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/shopscout/searchcore/pkg/errors"
)

// Source identifies the marketplace a record was scraped from.
type Source string

const (
	SourceWildberries  Source = "wildberries"
	SourceOzon         Source = "ozon"
	SourceYandexMarket Source = "yandexmarket"
	SourceAliExpress   Source = "aliexpress"
	SourceCustom       Source = "custom"
)

// KnownSources lists the fixed marketplace tags. Anything else normalises
// to SourceCustom.
func KnownSources() []Source {
	return []Source{
		SourceWildberries,
		SourceOzon,
		SourceYandexMarket,
		SourceAliExpress,
		SourceCustom,
	}
}

// Normalize maps unknown source strings to SourceCustom.
func (s Source) Normalize() Source {
	for _, known := range KnownSources() {
		if s == known {
			return s
		}
	}
	return SourceCustom
}

// ProductRecord is the raw scraped product supplied by the excluded
// scraper layer. Unknown extra fields are ignored at decode time.
type ProductRecord struct {
	ID            string            `json:"id" validate:"required"`
	Title         string            `json:"title"`
	Price         float64           `json:"price" validate:"gte=0"`
	OriginalPrice *float64          `json:"original_price,omitempty"`
	Currency      string            `json:"currency"`
	ImageURL      string            `json:"image_url,omitempty"`
	URL           string            `json:"url,omitempty"`
	Source        Source            `json:"source"`
	Category      string            `json:"category,omitempty"`
	Brand         string            `json:"brand,omitempty"`
	Rating        *float64          `json:"rating,omitempty" validate:"omitempty,gte=0,lte=5"`
	ReviewCount   int               `json:"review_count,omitempty" validate:"gte=0"`
	Available     bool              `json:"available"`
	Description   string            `json:"description,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	IngestedAt    int64             `json:"ingested_at"`
}

// IngestedTime converts the millisecond ingestion timestamp to time.Time.
func (r ProductRecord) IngestedTime() time.Time {
	return time.UnixMilli(r.IngestedAt)
}

var validate = validator.New()

// Validate checks the structural constraints of a record. A negative price
// or empty identifier rejects the single record, not the whole batch.
func Validate(r ProductRecord) error {
	if err := validate.Struct(r); err != nil {
		return apperrors.Newf(apperrors.ErrInvalidRecord, 400, "record %q: %v", r.ID, err)
	}
	return nil
}
