// Package commands serves the control operations over MQTT.
//
// Requests arrive on dreams/request/{op} where op is meters, poll, control or
// deadband. Each request is answered once on dreams/response/{request_id}:
//
//	-> dreams/request/control
//	   {"request_id":"r-17","plant_no":"PL1","type":"active_power","value":50}
//	<- dreams/response/r-17
//	   {"request_id":"r-17","op":"control","ok":true,"output":["..."]}
//
// Failures carry a stable code (not_found, bad_request, service_unavailable,
// process_error, uncertain_outcome, internal_error). uncertain_outcome means
// the command may have reached the device; poll before repeating a write.
package commands
