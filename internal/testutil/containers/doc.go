// Package containers starts throwaway Docker services for integration
// tests through testcontainers-go: MySQL for the datastore, Mosquitto for
// the MQTT sink and ntfy for push notifications.
//
// Everything here is behind the "integration" build tag:
//
//	go test -tags=integration ./...
//
// Start containers once per package in TestMain and terminate them after
// m.Run returns.
package containers
