// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package augment_test

import (
	"context"
	"testing"

	"github.com/OpenPSG/eegprep"
	"github.com/OpenPSG/eegprep/augment"
	"github.com/OpenPSG/eegprep/internal/testutil"
	"github.com/OpenPSG/eegprep/tensor"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

func trials(n, channels, samples int) *tensor.Tensor {
	t := tensor.New(n, channels, samples)
	for i := 0; i < n; i++ {
		for ch := 0; ch < channels; ch++ {
			copy(t.Series(i, ch), testutil.Ramp(samples, float64(100*i+10*ch+1), 1))
		}
	}
	return t
}

func TestSigmas(t *testing.T) {
	p := augment.Params{Method: augment.Jitter, Factor: 3, LowSigma: 5, HighSigma: 6}
	assert.Equal(t, []float64{5, 5.5, 6}, p.Sigmas())

	p.Factor = 1
	assert.Equal(t, []float64{5}, p.Sigmas())
}

func TestIdentifier(t *testing.T) {
	p := augment.Params{Method: augment.Jitter}
	assert.Equal(t, "jitter__sigma_5.5e+00__target_pat", p.Identifier(5.5, "pat"))

	p.Method = augment.Scaling
	assert.Equal(t, "scaling__sigma_1.0e-01__target_gnaw", p.Identifier(0.1, "gnaw"))
}

func TestAugmentLayout(t *testing.T) {
	src := trials(3, 2, 50)
	labels := []string{"pat", "pot", "knew"}
	p := augment.Params{Method: augment.Jitter, Factor: 2, LowSigma: 1, HighSigma: 2, Seed: 42}

	a, err := augment.New(p, augment.WithLogger(zaptest.NewLogger(t))).Augment(context.Background(), src, labels)
	require.NoError(t, err)

	assert.Equal(t, [3]int{9, 2, 50}, a.Tensor.Shape())

	wantLabels := []string{"pat", "pot", "knew", "pat", "pot", "knew", "pat", "pot", "knew"}
	if diff := cmp.Diff(wantLabels, a.Labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}

	wantIdentifiers := []string{
		"original", "original", "original",
		"jitter__sigma_1.0e+00__target_pat",
		"jitter__sigma_1.0e+00__target_pot",
		"jitter__sigma_1.0e+00__target_knew",
		"jitter__sigma_2.0e+00__target_pat",
		"jitter__sigma_2.0e+00__target_pot",
		"jitter__sigma_2.0e+00__target_knew",
	}
	if diff := cmp.Diff(wantIdentifiers, a.Identifiers); diff != "" {
		t.Errorf("identifiers mismatch (-want +got):\n%s", diff)
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, src.Trial(i), a.Tensor.Trial(i), "original trial %d", i)
		assert.NotEqual(t, src.Trial(i), a.Tensor.Trial(3+i), "jittered trial %d", i)
	}
}

func TestAugmentZeroSigmaCopies(t *testing.T) {
	src := trials(2, 3, 20)
	labels := []string{"a", "b"}

	for _, method := range []augment.Method{augment.Jitter, augment.Scaling} {
		p := augment.Params{Method: method, Factor: 2, Seed: 7}
		a, err := augment.New(p).Augment(context.Background(), src, labels)
		require.NoError(t, err)

		for slot := 0; slot < 6; slot++ {
			assert.Equal(t, src.Trial(slot%2), a.Tensor.Trial(slot), "%s slot %d", method, slot)
		}
	}
}

func TestAugmentDeterministic(t *testing.T) {
	src := trials(4, 2, 64)
	labels := []string{"a", "b", "c", "d"}
	p := augment.Params{Method: augment.Scaling, Factor: 3, LowSigma: 0.1, HighSigma: 0.3, Seed: 1234}

	one, err := augment.New(p, augment.WithWorkers(1)).Augment(context.Background(), src, labels)
	require.NoError(t, err)
	many, err := augment.New(p, augment.WithWorkers(8)).Augment(context.Background(), src, labels)
	require.NoError(t, err)
	assert.Equal(t, one.Tensor.Data, many.Tensor.Data)

	p.Seed++
	other, err := augment.New(p).Augment(context.Background(), src, labels)
	require.NoError(t, err)
	assert.NotEqual(t, one.Tensor.Data, other.Tensor.Data)
}

func TestJitterNoiseLevel(t *testing.T) {
	src := tensor.New(1, 4, 5000)
	p := augment.Params{Method: augment.Jitter, Factor: 1, LowSigma: 2, HighSigma: 2, Seed: 3}

	a, err := augment.New(p).Augment(context.Background(), src, []string{"x"})
	require.NoError(t, err)

	noise := a.Tensor.Trial(1)
	mean, std := stat.MeanStdDev(noise, nil)
	assert.InDelta(t, 0, mean, 0.1)
	assert.InDelta(t, 2, std, 0.1)
}

func TestScalingBroadcastsAcrossChannels(t *testing.T) {
	src := trials(1, 3, 200)
	p := augment.Params{Method: augment.Scaling, Factor: 1, LowSigma: 0.5, HighSigma: 0.5, Seed: 9}

	a, err := augment.New(p).Augment(context.Background(), src, []string{"x"})
	require.NoError(t, err)

	for k := 0; k < 200; k++ {
		factor := a.Tensor.At(1, 0, k) / src.At(0, 0, k)
		for ch := 1; ch < 3; ch++ {
			assert.InDelta(t, factor, a.Tensor.At(1, ch, k)/src.At(0, ch, k), 1e-9, "sample %d channel %d", k, ch)
		}
	}
}

func TestAugmentInvalid(t *testing.T) {
	src := trials(2, 1, 10)
	ctx := context.Background()

	_, err := augment.New(augment.Params{Method: augment.Jitter, Factor: 0}).Augment(ctx, src, []string{"a", "b"})
	assert.ErrorIs(t, err, eegprep.ErrInvalidParameter)

	_, err = augment.New(augment.Params{Method: augment.Jitter, Factor: 1}).Augment(ctx, src, []string{"a"})
	assert.ErrorIs(t, err, eegprep.ErrInvalidParameter)

	_, err = augment.New(augment.Params{Method: augment.Jitter, Factor: 1, LowSigma: -1}).Augment(ctx, src, []string{"a", "b"})
	assert.ErrorIs(t, err, eegprep.ErrInvalidParameter)

	_, err = augment.New(augment.Params{Factor: 1}).Augment(ctx, src, []string{"a", "b"})
	assert.ErrorIs(t, err, eegprep.ErrInvalidKey)
}

func TestMethodYAML(t *testing.T) {
	var v struct {
		Method augment.Method `yaml:"method"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("method: scaling\n"), &v))
	assert.Equal(t, augment.Scaling, v.Method)

	err := yaml.Unmarshal([]byte("method: warp\n"), &v)
	assert.ErrorIs(t, err, eegprep.ErrInvalidKey)
}
