// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package stats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, name string) float64 {
	t.Helper()
	families, err := Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		m := mf.GetMetric()[0]
		if m.Counter != nil {
			return m.Counter.GetValue()
		}
		if m.Gauge != nil {
			return m.Gauge.GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestTagsCreatedIncrements(t *testing.T) {
	before := counterValue(t, "daxd_tags_created_total")
	TagsCreated.Inc()
	after := counterValue(t, "daxd_tags_created_total")
	require.Equal(t, before+1, after)
}

func TestTagCountGaugeSet(t *testing.T) {
	TagCount.Set(7)
	require.Equal(t, float64(7), counterValue(t, "daxd_tag_count"))
}

func TestRegistryIsNotTheDefaultRegisterer(t *testing.T) {
	require.NotNil(t, Registry)
	families, err := Registry.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		require.NotContains(t, mf.GetName(), "go_goroutines")
	}
}
