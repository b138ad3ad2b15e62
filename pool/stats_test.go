/*
Copyright 2025 The Apache Software Foundation.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pool

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestManagerStatisticsSnapshot(t *testing.T) {
	clock := &fakeClock{}
	factory := &fakeConnectionFactory{}
	m := newTestManager(t, DefaultSettings(WithMaxSize(3), WithMinSize(1), WithServerAddress("db.internal:9090")), factory, clock)

	ch, err := m.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer ch.Close()

	stats := m.Statistics().Snapshot()
	if stats.Size != 1 || stats.CheckedOutCount != 1 {
		t.Fatalf("unexpected snapshot after one outstanding Get: %+v", stats)
	}
	if stats.MaxSize != 3 || stats.MinSize != 1 {
		t.Fatalf("unexpected configured bounds in snapshot: %+v", stats)
	}
}

func TestPrometheusObserverRegistryRegisterUnregister(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := &PrometheusObserverRegistry{Registerer: reg}

	provider := stubStatsProvider{}
	r.Register("pool-a", provider)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one registered metric family")
	}

	r.Unregister("pool-a")
	families, err = reg.Gather()
	if err != nil {
		t.Fatalf("Gather after unregister: %v", err)
	}
	for _, f := range families {
		if f.GetName() == "dbpool_size" {
			t.Fatal("expected dbpool_size to be gone after Unregister")
		}
	}
}

type stubStatsProvider struct{}

func (stubStatsProvider) Snapshot() Stats {
	return Stats{Size: 2, CheckedOutCount: 1, WaitQueueSize: 0, MinSize: 1, MaxSize: 5}
}
