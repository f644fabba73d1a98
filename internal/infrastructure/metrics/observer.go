// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package metrics exposes roster activity as Prometheus metrics by observing
// the notification bus.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/port"
)

const groupLabel = "group"

// Observer counts transitions and tracks current membership sizes.
// Groups are aggregated under one label value to bound cardinality.
type Observer struct {
	Transitions *prometheus.CounterVec
	Members     *prometheus.GaugeVec
	GroupEvents *prometheus.CounterVec
}

// Ensure Observer implements both observer interfaces
var (
	_ port.ChangeObserver = (*Observer)(nil)
	_ port.GroupObserver  = (*Observer)(nil)
)

// New creates an Observer registered with reg
func New(reg prometheus.Registerer) *Observer {
	factory := promauto.With(reg)
	return &Observer{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_transitions_total",
			Help: "Total number of applied membership transitions",
		}, []string{"list", "action"}),
		Members: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roster_members",
			Help: "Current number of rows per list, pending states included",
		}, []string{"list", "state"}),
		GroupEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_group_events_total",
			Help: "Total number of group lifecycle events",
		}, []string{"action"}),
	}
}

func listLabel(t model.Target) string {
	if t.IsGroup() {
		return groupLabel
	}
	return t.List.String()
}

// MembershipChanged records one transition
func (o *Observer) MembershipChanged(_ context.Context, event model.ChangeEvent) {
	list := listLabel(event.Target)
	o.Transitions.WithLabelValues(list, string(event.Action())).Inc()

	if event.OldState != model.StateNone {
		o.Members.WithLabelValues(list, event.OldState.String()).Dec()
	}
	if event.NewState != model.StateNone {
		o.Members.WithLabelValues(list, event.NewState.String()).Inc()
	}
}

// GroupChanged records one group event
func (o *Observer) GroupChanged(_ context.Context, event model.GroupEvent) {
	o.GroupEvents.WithLabelValues(string(event.Action)).Inc()
}
