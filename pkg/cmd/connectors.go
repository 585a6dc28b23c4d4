package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/cadenzo/cadenzo/pkg/dispatch"
)

// NewConnectors wires the task engine's outbound surfaces: one HTTP connector
// for direct calls, named endpoints, service invocation and bindings, and a
// broker publisher for pubsub tasks.
//
// endpointsJSON is an optional JSON object mapping endpoint names to base
// URLs.
func NewConnectors(endpointsJSON string, publisher message.Publisher) dispatch.Connectors {
	var options []dispatch.HTTPConnectorOption

	if endpointsJSON != "" {
		endpoints := map[string]string{}
		if err := json.Unmarshal([]byte(endpointsJSON), &endpoints); err != nil {
			panic(fmt.Errorf("failed to parse endpoints configuration: %w", err))
		}

		options = append(options, dispatch.WithEndpoints(endpoints))
	}

	connector := dispatch.NewHTTPConnector(options...)

	return dispatch.Connectors{
		HTTP:      connector,
		Endpoints: connector,
		Services:  connector,
		Bindings:  connector,
		Topics:    dispatch.NewBusPublisher(publisher),
	}
}
