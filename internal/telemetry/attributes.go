// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used on scheduler and receiver spans.
const (
	ScanIDKey        = "scan.id"
	ScanTriggerKey   = "scan.trigger"
	ScanStatusKey    = "scan.status"
	ScanChannelsKey  = "scan.channels"
	ScanProgramsKey  = "scan.programs"
	ScanDecisionsKey = "scan.decisions"
	ScanCreatedKey   = "scan.timers_created"

	ChannelIDKey   = "guide.channel_id"
	ChannelNameKey = "guide.channel_name"

	ReceiverEndpointKey = "receiver.endpoint"

	ErrorTypeKey = "error.type"
)

// ScanAttributes describes a scan at start.
func ScanAttributes(scanID, trigger string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ScanIDKey, scanID),
		attribute.String(ScanTriggerKey, trigger),
	}
}

// ScanResultAttributes describes a finished scan.
func ScanResultAttributes(status string, channels, programs, decisions, created int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ScanStatusKey, status),
		attribute.Int(ScanChannelsKey, channels),
		attribute.Int(ScanProgramsKey, programs),
		attribute.Int(ScanDecisionsKey, decisions),
		attribute.Int(ScanCreatedKey, created),
	}
}

// ChannelAttributes describes one guide channel fetch.
func ChannelAttributes(id, name string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ChannelIDKey, id),
		attribute.String(ChannelNameKey, name),
	}
}
