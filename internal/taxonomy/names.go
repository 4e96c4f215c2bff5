package taxonomy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tphakala/birdhomie/internal/errors"
)

var (
	genusCaser   = cases.Title(language.Und)
	epithetCaser = cases.Lower(language.Und)
	taxonURLRe   = regexp.MustCompile(`/taxa/(\d+)`)
)

// NormalizeScientificName turns classifier labels such as "PARUS_MAJOR" or
// " parus  major " into binomial form "Parus major".
func NormalizeScientificName(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	if len(words) == 0 {
		return ""
	}
	words[0] = genusCaser.String(words[0])
	for i := 1; i < len(words); i++ {
		words[i] = epithetCaser.String(words[i])
	}
	return strings.Join(words, " ")
}

// ParseTaxonURL extracts the taxon id from an iNaturalist taxon URL such as
// https://www.inaturalist.org/taxa/13094-Parus-major. A bare number is accepted too.
func ParseTaxonURL(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if id, err := strconv.Atoi(raw); err == nil && id > 0 {
		return id, nil
	}
	m := taxonURLRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, errors.New(fmt.Errorf("not an iNaturalist taxon URL: %q", raw)).
			Component("taxonomy").
			Category(errors.CategoryValidation).
			Build()
	}
	id, err := strconv.Atoi(m[1])
	if err != nil || id <= 0 {
		return 0, errors.New(fmt.Errorf("invalid taxon id in %q", raw)).
			Component("taxonomy").
			Category(errors.CategoryValidation).
			Build()
	}
	return id, nil
}
