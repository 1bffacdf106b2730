package casebuilder

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SavinovAleksandr/dss/inputs"
	"github.com/SavinovAleksandr/dss/simfacade"
)

func TestEstablishBaselineNormalVariant(t *testing.T) {
	dir := t.TempDir()
	f := simfacade.NewFake()
	b := New(f, dir)

	ok, err := b.EstablishBaseline(context.Background(), inputs.Regime{Path: "rgm1.rst"}, inputs.Variant{ID: inputs.NormalVariantID, Name: "Normal"}, "")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, b.BaselinePath())
	require.FileExists(t, b.BaselinePath())

	path := b.BaselinePath()
	require.NoError(t, b.Close())
	require.NoFileExists(t, path)
}

func TestEstablishBaselineUnbalancedVariant(t *testing.T) {
	dir := t.TempDir()
	f := simfacade.NewFake()
	f.ApplyVariantFn = func(ctx context.Context, ordinal int, repairFile string) (bool, error) {
		return false, nil
	}
	b := New(f, dir)

	ok, err := b.EstablishBaseline(context.Background(), inputs.Regime{Path: "rgm1.rst"}, inputs.Variant{ID: 1, Name: "RepairA", Ordinal: 1}, "repairs.rst")
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, b.BaselinePath())
}

func TestResetToBaselineWithoutEstablishErrors(t *testing.T) {
	b := New(simfacade.NewFake(), t.TempDir())
	err := b.ResetToBaseline(context.Background())
	require.Error(t, err)
}

func TestCloseRemovesBaselineFile(t *testing.T) {
	dir := t.TempDir()
	b := New(simfacade.NewFake(), dir)
	_, err := b.EstablishBaseline(context.Background(), inputs.Regime{Path: "rgm1.rst"}, inputs.Variant{ID: inputs.NormalVariantID}, "")
	require.NoError(t, err)
	path := b.BaselinePath()

	require.NoError(t, b.Close())
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}
