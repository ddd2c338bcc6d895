package domain

import "fmt"

// Device channels under /crowdsense/device/{device_id}/.
const (
	ChannelFix           = "fix"
	ChannelAuthorization = "authorization"
	ChannelRegion        = "region"
	ChannelCommand       = "command"
)

// Commands sent to the device on ChannelCommand.
const (
	CommandRequestLocation            = "request_location"
	CommandStartSignificantChanges    = "start_significant_changes"
	CommandStopSignificantChanges     = "stop_significant_changes"
	CommandStartMonitoring            = "start_monitoring"
	CommandStopMonitoring             = "stop_monitoring"
	CommandRequestAlwaysAuthorization = "request_always_authorization"
)

func DeviceTopic(deviceID, channel string) string {
	return fmt.Sprintf("/crowdsense/device/%s/%s", deviceID, channel)
}
