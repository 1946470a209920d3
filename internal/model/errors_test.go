package model

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := eris.New("overpass: empty result")

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"acquisition", AcquisitionError("network.build", base), KindAcquisition},
		{"degenerate", DegenerateError("orientation", base), KindDegenerate},
		{"configuration", ConfigurationError("boundary.load", base), KindConfiguration},
		{"wrapped", eris.Wrap(AcquisitionError("buildings", base), "morpho: built stage"), KindAcquisition},
		{"wrapped twice", eris.Wrapf(eris.Wrap(DegenerateError("fractal.fit", base), "fractal"), "polygon %d", 3), KindDegenerate},
		{"outermost kind", ConfigurationError("batch", AcquisitionError("network.build", base)), KindConfiguration},
		{"plain", errors.New("boom"), KindUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
			assert.True(t, IsKind(tt.err, tt.want))
		})
	}
	assert.False(t, IsKind(nil, KindUnexpected))
}

func TestError_MessageAndUnwrap(t *testing.T) {
	base := errors.New("no ways")
	err := AcquisitionError("network.build", base)

	assert.Equal(t, "network.build: no ways", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "acquisition_failure", KindAcquisition.String())
	assert.Equal(t, "x: configuration_error", (&Error{Kind: KindConfiguration, Op: "x"}).Error())
}
