package recommend

import (
	"fmt"
	"strings"

	"github.com/efebarandurmaz/flowscope/internal/diagram"
)

// Thresholds used by the default rules.
const (
	maxDatabaseNodes  = 3
	maxDecisionNodes  = 5
	maxNodesPerFlow   = 20
	maxHTMLElements   = 5
	minExternalForCB  = 2
	minIntegrations   = 3
	undocumentedRatio = 0.5
)

// DefaultRules returns the built-in rule table in generation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:    "database-optimization",
			Match: func(f *Facts) bool { return f.Count(diagram.NodeDatabase) > maxDatabaseNodes },
			Build: func(f *Facts) Recommendation {
				return Recommendation{
					Category:    "performance",
					Priority:    High,
					Title:       "Optimize database operations",
					Description: fmt.Sprintf("The flow touches the database %d times. Pool connections and cache frequent reads to cut latency.", f.Count(diagram.NodeDatabase)),
					Impact:      High,
					Effort:      Medium,
					Implementation: Implementation{
						Steps: []string{
							"Introduce a connection pool sized for peak load",
							"Add indexes for the most frequent lookups",
							"Cache hot reads with an expiry policy",
							"Batch consecutive writes into one transaction",
						},
						EstimatedTime: "1-2 weeks",
						Technologies:  []string{"PgBouncer", "Redis", "database indexes"},
					},
				}
			},
		},
		{
			ID: "authentication",
			Match: func(f *Facts) bool {
				return f.Count(diagram.NodeUserAction) > 0 && !f.HasAuth
			},
			Build: func(f *Facts) Recommendation {
				return Recommendation{
					Category:    "security",
					Priority:    High,
					Title:       "Add authentication",
					Description: fmt.Sprintf("The flow accepts %d user actions but has no authentication service.", f.Count(diagram.NodeUserAction)),
					Impact:      High,
					Effort:      Medium,
					Implementation: Implementation{
						Steps: []string{
							"Add an authentication service before the first user action",
							"Issue short-lived tokens after login",
							"Validate tokens on every API call",
						},
						EstimatedTime: "1 week",
						Technologies:  []string{"OAuth 2.0", "OpenID Connect", "JWT"},
					},
				}
			},
		},
		{
			ID:    "api-error-handling",
			Match: func(f *Facts) bool { return len(f.UnguardedAPI) > 0 },
			Build: func(f *Facts) Recommendation {
				return Recommendation{
					Category:    "reliability",
					Priority:    High,
					Title:       "Handle API call failures",
					Description: fmt.Sprintf("API calls %s are not followed by a decision that checks their outcome.", strings.Join(f.UnguardedAPI, ", ")),
					Impact:      High,
					Effort:      Low,
					Implementation: Implementation{
						Steps: []string{
							"Add a decision after each API call that checks the response status",
							"Route failures to an error path or retry",
							"Surface a user-facing message for unrecoverable errors",
						},
						EstimatedTime: "2-3 days",
						Technologies:  []string{"HTTP status handling", "retry with backoff"},
					},
				}
			},
		},
		{
			ID:    "external-resilience",
			Match: func(f *Facts) bool { return f.Count(diagram.NodeExternalService) >= minExternalForCB },
			Build: func(f *Facts) Recommendation {
				return Recommendation{
					Category:    "reliability",
					Priority:    Medium,
					Title:       "Protect external service calls",
					Description: fmt.Sprintf("The flow depends on %d external services. A slow dependency can stall the whole flow.", f.Count(diagram.NodeExternalService)),
					Impact:      High,
					Effort:      Medium,
					Implementation: Implementation{
						Steps: []string{
							"Set timeouts on every outbound call",
							"Wrap each dependency in a circuit breaker",
							"Define fallbacks for non-critical services",
						},
						EstimatedTime: "1 week",
						Technologies:  []string{"circuit breaker", "bulkheads", "timeouts"},
					},
				}
			},
		},
		{
			ID:    "decision-simplification",
			Match: func(f *Facts) bool { return f.Count(diagram.NodeDecision) > maxDecisionNodes },
			Build: func(f *Facts) Recommendation {
				return Recommendation{
					Category:    "maintainability",
					Priority:    Medium,
					Title:       "Simplify decision logic",
					Description: fmt.Sprintf("%d decision nodes make the flow hard to follow. Consolidate related conditions.", f.Count(diagram.NodeDecision)),
					Impact:      Medium,
					Effort:      Medium,
					Implementation: Implementation{
						Steps: []string{
							"Group related conditions into a single rule table",
							"Extract repeated decision chains into sub-flows",
							"Document each branch outcome",
						},
						EstimatedTime: "3-5 days",
						Technologies:  []string{"rules engine", "decision tables"},
					},
				}
			},
		},
		{
			ID:    "cycle-review",
			Match: func(f *Facts) bool { return f.CycleCount > 0 },
			Build: func(f *Facts) Recommendation {
				return Recommendation{
					Category:    "structure",
					Priority:    Medium,
					Title:       "Review loops in the flow",
					Description: fmt.Sprintf("The flow contains %d loop(s). Make sure each has an exit condition and a retry limit.", f.CycleCount),
					Impact:      Medium,
					Effort:      Low,
					Implementation: Implementation{
						Steps: []string{
							"Confirm every loop has a reachable exit",
							"Cap retries and add backoff between attempts",
						},
						EstimatedTime: "1-2 days",
						Technologies:  []string{"retry limits", "exponential backoff"},
					},
				}
			},
		},
		{
			ID:    "modularization",
			Match: func(f *Facts) bool { return f.NodeCount > maxNodesPerFlow },
			Build: func(f *Facts) Recommendation {
				return Recommendation{
					Category:    "maintainability",
					Priority:    Medium,
					Title:       "Split the flow into modules",
					Description: fmt.Sprintf("With %d nodes the flow is large. Break it into smaller sub-flows with clear interfaces.", f.NodeCount),
					Impact:      High,
					Effort:      High,
					Implementation: Implementation{
						Steps: []string{
							"Identify cohesive groups of nodes",
							"Extract each group into a sub-flow",
							"Define the inputs and outputs between sub-flows",
						},
						EstimatedTime: "2-3 weeks",
						Technologies:  []string{"modular architecture", "service boundaries"},
					},
				}
			},
		},
		{
			ID:    "entry-exit",
			Match: func(f *Facts) bool { return f.NodeCount > 0 && (!f.HasStart || !f.HasEnd) },
			Build: func(f *Facts) Recommendation {
				var missing []string
				if !f.HasStart {
					missing = append(missing, "start")
				}
				if !f.HasEnd {
					missing = append(missing, "end")
				}
				return Recommendation{
					Category:    "structure",
					Priority:    High,
					Title:       "Define clear entry and exit points",
					Description: fmt.Sprintf("The flow has no %s node.", strings.Join(missing, " or ")),
					Impact:      Medium,
					Effort:      Low,
					Implementation: Implementation{
						Steps: []string{
							"Add a single start node",
							"Add an end node to every terminal branch",
						},
						EstimatedTime: "1 hour",
						Technologies:  []string{"flow modelling"},
					},
				}
			},
		},
		{
			ID:    "ui-componentization",
			Match: func(f *Facts) bool { return f.Count(diagram.NodeHTMLElement) > maxHTMLElements },
			Build: func(f *Facts) Recommendation {
				return Recommendation{
					Category:    "usability",
					Priority:    Low,
					Title:       "Extract reusable UI components",
					Description: fmt.Sprintf("%d HTML elements suggest repeated UI. Build shared components.", f.Count(diagram.NodeHTMLElement)),
					Impact:      Medium,
					Effort:      Medium,
					Implementation: Implementation{
						Steps: []string{
							"Identify repeated element patterns",
							"Build components with consistent props",
						},
						EstimatedTime: "1 week",
						Technologies:  []string{"React", "Vue", "Web Components"},
					},
				}
			},
		},
		{
			ID:    "parallelization",
			Match: func(f *Facts) bool { return len(f.ParallelForks) > 0 },
			Build: func(f *Facts) Recommendation {
				return Recommendation{
					Category:    "performance",
					Priority:    Low,
					Title:       "Run independent branches in parallel",
					Description: fmt.Sprintf("Nodes %s fan out to independent branches that could run concurrently.", strings.Join(f.ParallelForks, ", ")),
					Impact:      Medium,
					Effort:      Medium,
					Implementation: Implementation{
						Steps: []string{
							"Confirm the branches share no mutable state",
							"Dispatch the branches concurrently",
							"Join the results before the next step",
						},
						EstimatedTime: "3-5 days",
						Technologies:  []string{"worker pools", "async/await", "message queues"},
					},
				}
			},
		},
		{
			ID: "monitoring",
			Match: func(f *Facts) bool {
				return f.Count(diagram.NodeAPICall)+f.Count(diagram.NodeExternalService) >= minIntegrations
			},
			Build: func(f *Facts) Recommendation {
				return Recommendation{
					Category:    "observability",
					Priority:    Medium,
					Title:       "Add monitoring for integrations",
					Description: fmt.Sprintf("%d integration points should be traced and alerted on.", f.Count(diagram.NodeAPICall)+f.Count(diagram.NodeExternalService)),
					Impact:      Medium,
					Effort:      Low,
					Implementation: Implementation{
						Steps: []string{
							"Emit request metrics for every integration",
							"Trace requests across service boundaries",
							"Alert on error rate and latency",
						},
						EstimatedTime: "2-4 days",
						Technologies:  []string{"OpenTelemetry", "Prometheus", "Grafana"},
					},
				}
			},
		},
		{
			ID: "documentation",
			Match: func(f *Facts) bool {
				return f.NodeCount > 0 && float64(f.UndocumentedNode) > float64(f.NodeCount)*undocumentedRatio
			},
			Build: func(f *Facts) Recommendation {
				return Recommendation{
					Category:    "documentation",
					Priority:    Low,
					Title:       "Document the flow",
					Description: fmt.Sprintf("%d of %d nodes have no description.", f.UndocumentedNode, f.NodeCount),
					Impact:      Low,
					Effort:      Low,
					Implementation: Implementation{
						Steps: []string{
							"Describe the purpose of each node",
							"Note inputs, outputs and failure modes",
						},
						EstimatedTime: "1 day",
						Technologies:  []string{"Markdown", "architecture decision records"},
					},
				}
			},
		},
	}
}
