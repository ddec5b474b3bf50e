// Package http exposes the scheduling core over a JSON API.
//
// The router exposes the following endpoints:
//   - POST /propagations: expands a company's class templates into events for
//     one month. Body: {"company","month","year","templates"?}; stored templates
//     are used when "templates" is omitted. Response: {"ok","inserted","skipped",
//     "dropped","events"}. Returns 409 while another run holds the same month.
//   - POST /propagations/preview: same body, returns {"events","dropped"} without
//     writing anything.
//   - GET /slots?company=&duration=&professional_id=&limit=: bookable appointment
//     start times as {"slots":[{"start","professional":{"id","name"}}]}.
//   - GET /events?company=&from=&to=, POST /events, PUT /events/{id},
//     DELETE /events/{id}: event management exchanging the `eventDTO` payload
//     defined in event_handler.go. Writes keep class credits in step.
//   - GET /healthz, GET /metrics.
//
// Errors are returned as {"error","error_code"?,"errors"?} with 400 for
// malformed bodies, 404 for unknown resources, 409 for conflicts and 422 for
// field validation failures.
package http
