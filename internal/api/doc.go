// Package api serves the core's operational HTTP endpoints.
//
// It serves a health probe, Prometheus metrics and the
// plant roster the DNP3 master daemon loads at startup. Control operations are
// not exposed here; they are served over MQTT by the commands package.
//
//	GET /healthz                       liveness of database, broker, master
//	GET /metrics                       Prometheus exposition
//	GET /api/Plants?access_token=...   outstation roster for the master daemon
//
// The server follows the same lifecycle as the other components:
//
//	server, err := api.New(deps)
//	err = server.Start(ctx)
//	defer server.Close()
package api
