// Package notify delivers alert messages to emergency contacts over SMS.
//
// Two transports are provided: GatewayClient posts one JSON request to an
// internal gateway that fans out to every contact, and TwilioClient sends one
// form-encoded request per contact to the Twilio Messages API. Both report how
// many contacts were reached.
package notify
