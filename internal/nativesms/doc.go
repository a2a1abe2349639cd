// Package nativesms sends SMS through the device's own messaging stack by
// running a platform command such as termux-sms-send. It is the fallback
// transport used when the device has no data connection.
package nativesms
