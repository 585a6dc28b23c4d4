// Package dispatch carries the side effects of workflow tasks: outbound HTTP
// calls, service invocations, binding operations, and pub/sub publishes. The
// task engine talks to these interfaces so tests can swap in fakes.
package dispatch

import (
	"context"
)

// Result is what a connector hands back to the task engine. Body is the raw
// response; JSON is set when the body parses as JSON.
type Result struct {
	StatusCode int            `json:"status_code,omitempty"`
	Body       string         `json:"body,omitempty"`
	JSON       any            `json:"json,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// HTTPCaller performs a plain outbound HTTP request.
type HTTPCaller interface {
	Call(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Result, error)
}

// EndpointCaller calls a named, pre-configured HTTP endpoint by path.
type EndpointCaller interface {
	CallEndpoint(ctx context.Context, endpoint, method, path string, body []byte) (*Result, error)
}

// ServiceInvoker invokes a method on another application by its ID.
type ServiceInvoker interface {
	InvokeService(ctx context.Context, appID, verb, method string, body []byte) (*Result, error)
}

// BindingInvoker performs an operation against a named resource binding.
type BindingInvoker interface {
	InvokeBinding(ctx context.Context, binding, operation string, metadata map[string]string, body []byte) (*Result, error)
}

// TopicPublisher publishes a payload to a pub/sub topic.
type TopicPublisher interface {
	PublishTopic(ctx context.Context, topic string, metadata map[string]string, body []byte) error
}

// Connectors bundles every connector the task engine needs.
type Connectors struct {
	HTTP      HTTPCaller
	Endpoints EndpointCaller
	Services  ServiceInvoker
	Bindings  BindingInvoker
	Topics    TopicPublisher
}
