package graph

import "github.com/prostomarkeloff/emergent/observability"

const (
	EventRunStart      observability.EventType = "graph.run.start"
	EventRunComplete   observability.EventType = "graph.run.complete"
	EventLevelStart    observability.EventType = "graph.level.start"
	EventLevelComplete observability.EventType = "graph.level.complete"
	EventNodeStart     observability.EventType = "graph.node.start"
	EventNodeComplete  observability.EventType = "graph.node.complete"
	EventNodeInjected  observability.EventType = "graph.node.injected"
)
