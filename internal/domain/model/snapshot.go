// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

import "time"

// RosterSnapshot is the persisted form of a roster, keyed by contact
// identifier rather than handle so it survives restarts.
type RosterSnapshot struct {
	Account  string            `json:"account" msgpack:"account"`
	SavedAt  time.Time         `json:"saved_at" msgpack:"saved_at"`
	Contacts []ContactSnapshot `json:"contacts" msgpack:"contacts"`
	Groups   []string          `json:"groups" msgpack:"groups"`
	Blocked  []string          `json:"blocked" msgpack:"blocked"`
}

// ContactSnapshot holds every membership of one contact
type ContactSnapshot struct {
	ContactID        string   `json:"contact_id" msgpack:"contact_id"`
	Stored           bool     `json:"stored" msgpack:"stored"`
	Subscribe        string   `json:"subscribe" msgpack:"subscribe"`
	Publish          string   `json:"publish" msgpack:"publish"`
	SubscribeMessage string   `json:"subscribe_message,omitempty" msgpack:"subscribe_message,omitempty"`
	PublishMessage   string   `json:"publish_message,omitempty" msgpack:"publish_message,omitempty"`
	Groups           []string `json:"groups,omitempty" msgpack:"groups,omitempty"`
}
