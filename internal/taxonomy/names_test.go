package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdhomie/internal/errors"
)

func TestNormalizeScientificName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"PARUS_MAJOR":              "Parus major",
		"parus major":              "Parus major",
		"  Cyanistes   caeruleus ": "Cyanistes caeruleus",
		"Parus major":              "Parus major",
		"PICA_PICA_PICA":           "Pica pica pica",
		"":                         "",
		"__":                       "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeScientificName(in), "input %q", in)
	}
}

func TestParseTaxonURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"https://www.inaturalist.org/taxa/13094", 13094, false},
		{"https://www.inaturalist.org/taxa/13094-Parus-major", 13094, false},
		{"https://www.inaturalist.org/taxa/144849?locale=de", 144849, false},
		{" 13094 ", 13094, false},
		{"https://www.inaturalist.org/observations/13094", 0, true},
		{"taxa", 0, true},
		{"0", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTaxonURL(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
