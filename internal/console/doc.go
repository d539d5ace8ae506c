// Package console is the HTTP surface of the MQTT connection manager.
//
// Routes:
//
//	GET  /mqtt_status.json  current status snapshot (503 while the snapshot lock is busy)
//	POST /connect.json      connect or disconnect order, parameters in X-Custom-mqtt-* headers
//	GET  /ws                websocket; pushes every new snapshot
//	GET  /health            liveness, connection flags and dependency checks
//	GET  /metrics           prometheus metrics, when configured
//
// The connect order reads the broker URI, username and password from the
// X-Custom-mqtt-uri, X-Custom-mqtt-username and X-Custom-mqtt-pwd headers.
// The value __EMPTY__ stands for an empty string. The URI DISCONNECT
// orders a disconnect instead.
//
// When security.jwt.secret is set, POST /connect.json requires an HS256
// bearer token; see IssueToken.
//
// The Hub is created before the manager and passed to it as its snapshot
// observer:
//
//	hub := console.NewHub(log)
//	mgr, _ := manager.New(manager.Options{Observer: hub, ...})
//	srv, _ := console.New(console.Deps{Manager: mgr, Hub: hub, ...})
//	srv.Start(ctx)
//	defer srv.Close()
package console
