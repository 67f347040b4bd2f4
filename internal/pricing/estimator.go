// Package pricing suggests prices for handmade products from their attributes.
//
// The model is a rule-based fallback: labour + material + size, with a flat
// locality adjustment. There is no historical sales data behind it yet.
package pricing

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/raine/kalamitra/internal/listing"
)

const (
	// HourlyWage is the artisan's hourly wage in rupees.
	HourlyWage = 120

	// DefaultMaterialFactor applies to materials missing from the factor table.
	DefaultMaterialFactor = 100

	// DefaultDominantSize is used when the dimensions contain no number.
	DefaultDominantSize = 5

	// DefaultLocalityFactor is the flat market adjustment applied to the base cost.
	DefaultLocalityFactor = 1.1

	minAcceptableFactor = 0.9
	sizeFactorPerUnit   = 10
)

var materialFactors = map[string]int{
	"terracotta": 50,
	"clay":       50,
	"wood":       100,
	"metal":      150,
	"brass":      180,
	"textile":    70,
	"cotton":     70,
	"silk":       200,
}

var numberRe = regexp.MustCompile(`\d+(\.\d+)?`)

// Estimator computes price suggestions. The zero value uses DefaultLocalityFactor.
type Estimator struct {
	// LocalityFactor multiplies the base cost to get the suggested price. It is
	// where a market or historical-average adjustment plugs in.
	LocalityFactor float64
}

// Estimate suggests a price using the default estimator.
func Estimate(attrs listing.ProductAttributes) listing.PricingSuggestion {
	return Estimator{}.Estimate(attrs)
}

// Estimate suggests a price for a product. It never fails: unknown materials and
// dimensions without numbers fall back to defaults, and negative hours count as zero.
func (e Estimator) Estimate(attrs listing.ProductAttributes) listing.PricingSuggestion {
	locality := e.LocalityFactor
	if locality < minAcceptableFactor {
		// Keeps the suggested price from dropping below the minimum.
		locality = DefaultLocalityFactor
	}

	hours := math.Max(attrs.TimeToMakeHrs, 0)
	sizeFactor := DominantSize(attrs.Dimensions) * sizeFactorPerUnit
	base := hours*HourlyWage + float64(MaterialFactor(attrs.Material)) + sizeFactor

	return listing.PricingSuggestion{
		AISuggested:   roundHalfUp(base * locality),
		MinAcceptable: roundHalfUp(base * minAcceptableFactor),
		Reasoning: fmt.Sprintf(
			"Calculated based on ~%s hours of work, cost of %s, product size, and a standard market adjustment.",
			strconv.FormatFloat(hours, 'f', -1, 64), attrs.Material,
		),
	}
}

// MaterialFactor returns the per-unit cost factor for a material name.
func MaterialFactor(material string) int {
	if f, ok := materialFactors[strings.ToLower(strings.TrimSpace(material))]; ok {
		return f
	}
	return DefaultMaterialFactor
}

// DominantSize returns the first number found in a free-text dimensions string,
// e.g. "12cm x 15cm" -> 12.
func DominantSize(dimensions string) float64 {
	m := numberRe.FindString(dimensions)
	if m == "" {
		return DefaultDominantSize
	}
	size, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return DefaultDominantSize
	}
	return size
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
