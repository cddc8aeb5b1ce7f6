package entity

import (
	"sort"
	"testing"

	"github.com/agrovision/leaf-diagnosis/pkg/types/errs"
	"github.com/stretchr/testify/assert"
)

func TestLabelsAreLexicographicallySorted(t *testing.T) {
	labels := Labels()

	assert.True(t, sort.SliceIsSorted(labels, func(i, j int) bool {
		return labels[i] < labels[j]
	}))
}

func TestParseLabel(t *testing.T) {
	for _, label := range Labels() {
		parsed, err := ParseLabel(string(label))
		assert.NoError(t, err)
		assert.Equal(t, label, parsed)
	}

	for _, bad := range []string{"", "rust", "BROWN_RUST", "healthy "} {
		_, err := ParseLabel(bad)
		assert.ErrorIs(t, err, errs.ErrUnknownLabel)
	}
}

func TestStatusReviewed(t *testing.T) {
	assert.False(t, Pending.Reviewed())
	assert.False(t, AutoClassified.Reviewed())
	assert.True(t, Corrected.Reviewed())
	assert.True(t, Confirmed.Reviewed())
}

func TestEffectiveLabel(t *testing.T) {
	auto := Septoria
	manual := Healthy

	d := Diagnosis{}
	assert.Nil(t, d.EffectiveLabel())

	d.AutomaticLabel = &auto
	assert.Equal(t, &auto, d.EffectiveLabel())

	d.ManualLabel = &manual
	assert.Equal(t, &manual, d.EffectiveLabel())
}
